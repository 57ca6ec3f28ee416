package identity

import "context"

type ctxKey string

const ctxKeyPrincipal ctxKey = "principal"

// WithPrincipal stores the authenticated principal in ctx
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal, p)
}

// PrincipalFromContext returns the principal stored by WithPrincipal, or nil
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(ctxKeyPrincipal).(*Principal)
	return p
}
