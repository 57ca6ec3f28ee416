// Package cookies implements the signed cookies that carry login flow state,
// the user session and the admin session. No server side state backs them.
package cookies

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/upb/tenantchat/backend/config"
	"go.uber.org/zap"
)

// Codec bundles the three cookie envelopes used by the service
type Codec struct {
	Session *Envelope[SessionState]
	Flow    *Envelope[FlowState]
	Admin   *Envelope[AdminSession]
}

// NewCodec builds the envelopes from configuration. Without a secret a random
// key is generated, so cookies do not survive a restart.
func NewCodec(cfg config.CookieConfig, secure bool, flowTTL time.Duration, logger *zap.Logger) (*Codec, error) {
	keys := Keys{Hash: []byte(cfg.Secret)}
	if len(keys.Hash) == 0 {
		keys.Hash = securecookie.GenerateRandomKey(32)
		if keys.Hash == nil {
			return nil, fmt.Errorf("failed to generate cookie signing key")
		}
		logger.Warn("COOKIE_SECRET not set, using a random signing key")
	}
	if cfg.EncryptionKey != "" {
		keys.Block = []byte(cfg.EncryptionKey)
	}

	opts := Options{
		Secure:   secure,
		SameSite: ParseSameSite(cfg.SameSite),
	}

	// the provider redirects back cross-site, which a strict cookie would not survive
	flowOpts := opts
	if flowOpts.SameSite == http.SameSiteStrictMode {
		flowOpts.SameSite = http.SameSiteLaxMode
	}

	return &Codec{
		Session: NewEnvelope[SessionState](cfg.SessionName, keys, 0, opts),
		Flow:    NewEnvelope[FlowState](cfg.FlowName, keys, flowTTL, flowOpts),
		Admin:   NewEnvelope[AdminSession](cfg.AdminName, keys, 0, opts),
	}, nil
}

// ParseSameSite maps lax, strict and none to cookie modes. Anything else is lax.
func ParseSameSite(v string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
