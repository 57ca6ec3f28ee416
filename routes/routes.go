package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/tenantchat/backend/app"
	"github.com/upb/tenantchat/backend/internal/observability"
	"github.com/upb/tenantchat/backend/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.RequestLogger(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Cookies carry the session, so credentials are allowed for listed origins only
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/healthz", deps.HealthHandler.HandleHealth)
	r.Get("/readyz", deps.HealthHandler.HandleReadiness)

	// Interactive login through the configured identity providers
	r.Route("/auth", deps.AuthHandler.Routes)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(deps.AuthMiddleware.Authenticate)

		r.With(deps.AuthMiddleware.RequirePermission("user.read.self")).Get("/me", deps.UserHandler.HandleGetMe)
		r.With(deps.AuthMiddleware.RequirePermission("user.update.self")).Patch("/me", deps.UserHandler.HandleUpdateMe)
	})

	// Local administrator
	r.Route("/admin", func(r chi.Router) {
		r.Post("/login", deps.AdminHandler.HandleLogin)
		r.Post("/logout", deps.AdminHandler.HandleLogout)

		r.Group(func(r chi.Router) {
			r.Use(deps.AdminMiddleware.RequireAdminSession)
			r.Get("/session", deps.AdminHandler.HandleSession)
			r.Post("/password", deps.AdminHandler.HandleChangePassword)
		})

		r.Group(func(r chi.Router) {
			r.Use(deps.AdminMiddleware.RequireAdmin)
			r.Get("/users/{id}", deps.AdminHandler.HandleGetUser)
			r.Post("/users/{id}/roles", deps.AdminHandler.HandleAssignRole)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})

	return r
}
