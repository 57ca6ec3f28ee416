package admin

import (
	"context"

	"github.com/upb/tenantchat/backend/cookies"
)

type sessionKey struct{}

// WithSession returns a context carrying an authorized admin session
func WithSession(ctx context.Context, session *cookies.AdminSession) context.Context {
	return context.WithValue(ctx, sessionKey{}, session)
}

// SessionFromContext returns the admin session stored by WithSession, or nil
func SessionFromContext(ctx context.Context) *cookies.AdminSession {
	session, _ := ctx.Value(sessionKey{}).(*cookies.AdminSession)
	return session
}
