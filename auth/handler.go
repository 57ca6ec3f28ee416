package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/upb/tenantchat/backend/cookies"
	"github.com/upb/tenantchat/backend/handlers"
	"github.com/upb/tenantchat/backend/utils"
	"go.uber.org/zap"
)

// Handler exposes the login flow over HTTP: start, callback, logout and
// the list of providers a browser can sign in with.
type Handler struct {
	flow    *Orchestrator
	cookies *cookies.Codec
	logger  *zap.Logger
}

// NewHandler creates a new auth handler
func NewHandler(flow *Orchestrator, codec *cookies.Codec, logger *zap.Logger) *Handler {
	return &Handler{
		flow:    flow,
		cookies: codec,
		logger:  logger,
	}
}

// Routes mounts the handler under the router it is given
func (h *Handler) Routes(r chi.Router) {
	r.Get("/providers", h.HandleProviders)
	r.Get("/{provider}/start", h.HandleStart)
	r.Get("/{provider}/callback", h.HandleCallback)
	r.Post("/logout", h.HandleLogout)
	r.Get("/logout", h.HandleLogout)
}

// HandleStart writes the flow cookie and redirects to the provider
func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.flow.Start(r.Context(), chi.URLParam(r, "provider"), q.Get("mode"), q.Get("returnTo"))
	if err != nil {
		handlers.HandleServiceError(w, err, h.logger)
		return
	}

	if err := h.cookies.Flow.Write(w, result.Flow); err != nil {
		h.logger.Error("failed to write flow cookie", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to initiate login")
		return
	}

	http.Redirect(w, r, result.RedirectURL, http.StatusFound)
}

// HandleCallback finishes the flow. On failure the flow cookie is left to
// expire on its own.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := CallbackParams{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	}

	var flow *cookies.FlowState
	if stored, ok := h.cookies.Flow.Read(r); ok {
		flow = &stored
	}

	result, err := h.flow.Callback(r.Context(), chi.URLParam(r, "provider"), params, flow)
	if err != nil {
		handlers.HandleServiceError(w, err, h.logger)
		return
	}

	if err := h.cookies.Session.Write(w, result.Session); err != nil {
		h.logger.Error("failed to write session cookie", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to complete login")
		return
	}
	h.cookies.Flow.Clear(w)

	http.Redirect(w, r, result.ReturnTo, http.StatusFound)
}

// HandleLogout clears the session cookie. Nothing is revoked server side.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.cookies.Session.Clear(w)

	if r.Method == http.MethodGet {
		http.Redirect(w, r, SanitizeReturnTo(r.URL.Query().Get("returnTo")), http.StatusFound)
		return
	}
	utils.WriteNoContent(w)
}

// HandleProviders lists the providers that support the login flow
func (h *Handler) HandleProviders(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, map[string]interface{}{
		"providers": h.flow.Providers(),
	})
}
