package middleware

import (
	"net/http"

	"github.com/upb/tenantchat/backend/admin"
	"github.com/upb/tenantchat/backend/cookies"
	"github.com/upb/tenantchat/backend/handlers"
	"go.uber.org/zap"
)

// AdminMiddleware gates the local admin endpoints on the admin session cookie
type AdminMiddleware struct {
	service  *admin.Service
	sessions *cookies.Envelope[cookies.AdminSession]
	logger   *zap.Logger
}

// NewAdminMiddleware creates a new AdminMiddleware
func NewAdminMiddleware(service *admin.Service, sessions *cookies.Envelope[cookies.AdminSession], logger *zap.Logger) *AdminMiddleware {
	return &AdminMiddleware{
		service:  service,
		sessions: sessions,
		logger:   logger,
	}
}

// RequireAdmin admits requests with a valid admin session whose password has
// been rotated away from the default.
func (m *AdminMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return m.require(false, next)
}

// RequireAdminSession admits any valid admin session, including one that
// still has to change the default password.
func (m *AdminMiddleware) RequireAdminSession(next http.Handler) http.Handler {
	return m.require(true, next)
}

func (m *AdminMiddleware) require(allowPendingChange bool, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var session *cookies.AdminSession
		if s, ok := m.sessions.Read(r); ok {
			session = &s
		}

		if err := m.service.Authorize(session, allowPendingChange); err != nil {
			m.logger.Debug("admin request rejected",
				zap.String("request_id", GetRequestIDFromContext(r.Context())),
				zap.Error(err))
			handlers.HandleServiceError(w, err, m.logger)
			return
		}

		next.ServeHTTP(w, r.WithContext(admin.WithSession(r.Context(), session)))
	})
}
