package middleware

import (
	"context"
	"net/http"

	"github.com/upb/tenantchat/backend/cookies"
	"github.com/upb/tenantchat/backend/handlers"
	"github.com/upb/tenantchat/backend/internal/identity"
	"github.com/upb/tenantchat/backend/services"
	"go.uber.org/zap"
)

// PrincipalProvider resolves credentials into provisioned principals
type PrincipalProvider interface {
	GetPrincipal(ctx context.Context, authorizationHeader string) (*identity.Principal, error)
	PrincipalFromToken(ctx context.Context, token string) (*identity.Principal, error)
}

// AuthMiddleware provides authentication middleware functionality
type AuthMiddleware struct {
	principals PrincipalProvider
	sessions   *cookies.Envelope[cookies.SessionState]
	checker    *identity.PermissionChecker
	logger     *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(
	principals PrincipalProvider,
	sessions *cookies.Envelope[cookies.SessionState],
	checker *identity.PermissionChecker,
	logger *zap.Logger,
) *AuthMiddleware {
	return &AuthMiddleware{
		principals: principals,
		sessions:   sessions,
		checker:    checker,
		logger:     logger,
	}
}

// Authenticate resolves the request principal from the Authorization header,
// falling back to the session cookie, and stores it in the request context.
// Requests without credentials pass through anonymously. A bad bearer token
// is rejected; a session cookie that no longer verifies is cleared instead.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		principal, err := m.principals.GetPrincipal(ctx, r.Header.Get("Authorization"))
		if err != nil {
			m.logger.Warn("bearer authentication failed",
				zap.String("request_id", requestID),
				zap.String("code", services.GetErrorCode(err)))
			handlers.HandleServiceError(w, err, m.logger)
			return
		}

		if principal == nil {
			if session, ok := m.sessions.Read(r); ok {
				principal, err = m.principals.PrincipalFromToken(ctx, session.AccessToken)
				switch {
				case err == nil:
				case services.IsUnauthorizedError(err) || services.IsForbiddenError(err):
					m.logger.Debug("session cookie rejected",
						zap.String("request_id", requestID),
						zap.String("code", services.GetErrorCode(err)))
					m.sessions.Clear(w)
					principal = nil
				default:
					handlers.HandleServiceError(w, err, m.logger)
					return
				}
			}
		}

		if principal != nil {
			ctx = identity.WithPrincipal(ctx, principal)
			m.logger.Debug("authentication successful",
				zap.String("request_id", requestID),
				zap.String("issuer", principal.Issuer),
				zap.String("user_id", principal.UserID.String()))
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth rejects requests that Authenticate left anonymous
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !identity.PrincipalFromContext(r.Context()).IsProvisioned() {
			handlers.HandleServiceError(w, services.ErrUnauthorized, m.logger)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequirePermission allows the request only when the principal may perform action
func (m *AuthMiddleware) RequirePermission(action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			principal := identity.PrincipalFromContext(ctx)
			if !principal.IsProvisioned() {
				handlers.HandleServiceError(w, services.ErrUnauthorized, m.logger)
				return
			}

			if !m.checker.Can(principal, action) {
				m.logger.Warn("permission denied",
					zap.String("request_id", GetRequestIDFromContext(ctx)),
					zap.String("action", action),
					zap.Strings("roles", principal.Roles))
				handlers.HandleServiceError(w, services.ErrForbidden.Wrap(nil).WithDetail("action", action), m.logger)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
