package verifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/upb/tenantchat/backend/config"
	"go.uber.org/zap"
)

// VerifiedJWT is a token whose signature and registered claims were checked
// against the issuer that minted it.
type VerifiedJWT struct {
	Issuer *config.IssuerConfig
	Claims *Claims
	Header map[string]interface{}
}

// Options tunes verification
type Options struct {
	ClockSkew          time.Duration
	JWKSTimeout        time.Duration
	MinRefreshInterval time.Duration
	HTTPClient         *http.Client
}

type issuerEntry struct {
	config *config.IssuerConfig
	keys   *KeySet
	parser *jwt.Parser
}

// MultiIssuerVerifier verifies tokens from any configured issuer. The issuer
// is chosen from the unverified iss claim; the signature is then checked only
// against that issuer's keys.
type MultiIssuerVerifier struct {
	issuers map[string]*issuerEntry
	logger  *zap.Logger
}

// NewMultiIssuerVerifier creates a verifier for the given issuers. An empty
// list is valid; every verification then fails with ErrAuthNotConfigured.
func NewMultiIssuerVerifier(issuers []config.IssuerConfig, opts Options, logger *zap.Logger) (*MultiIssuerVerifier, error) {
	if opts.JWKSTimeout == 0 {
		opts.JWKSTimeout = 10 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.JWKSTimeout}
	}

	v := &MultiIssuerVerifier{
		issuers: make(map[string]*issuerEntry, len(issuers)),
		logger:  logger,
	}
	for i := range issuers {
		cfg := issuers[i]
		keys, err := NewKeySet(cfg.JWKSURI, httpClient, opts.MinRefreshInterval, logger)
		if err != nil {
			return nil, err
		}
		v.issuers[cfg.Issuer] = &issuerEntry{
			config: &cfg,
			keys:   keys,
			parser: jwt.NewParser(
				jwt.WithValidMethods(cfg.Algorithms),
				jwt.WithLeeway(opts.ClockSkew),
				jwt.WithIssuer(cfg.Issuer),
				jwt.WithExpirationRequired(),
			),
		}
	}
	return v, nil
}

// Configured reports whether at least one issuer is trusted
func (v *MultiIssuerVerifier) Configured() bool {
	return len(v.issuers) > 0
}

// Verify checks token and returns its claims together with the issuer configuration
func (v *MultiIssuerVerifier) Verify(ctx context.Context, token string) (*VerifiedJWT, error) {
	if len(v.issuers) == 0 {
		return nil, ErrAuthNotConfigured
	}

	unverified := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, unverified); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	iss, _ := unverified["iss"].(string)
	if iss == "" {
		return nil, fmt.Errorf("%w: token has no iss claim", ErrUnknownIssuer)
	}
	entry, ok := v.issuers[iss]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownIssuer, iss)
	}

	raw := jwt.MapClaims{}
	parsed, err := entry.parser.ParseWithClaims(token, raw, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		return entry.keys.Key(ctx, kid)
	})
	if err != nil {
		classified := classify(err)
		if errors.Is(classified, ErrJWKSFetchFailed) {
			v.logger.Warn("jwks unavailable", zap.String("issuer", iss), zap.Error(err))
		}
		return nil, classified
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}

	claims, err := decodeClaims(raw)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: token has no sub claim", ErrInvalidClaims)
	}
	if !audienceMatches(claims.Audience, entry.config.Audience) {
		return nil, fmt.Errorf("%w: audience not accepted", ErrInvalidClaims)
	}

	if want := entry.config.TokenUse; want != "" && want != config.TokenUseAny {
		if kind := declaredKind(claims, parsed.Header); kind != "" && kind != want {
			return nil, fmt.Errorf("%w: expected %s token, got %s", ErrWrongTokenType, want, kind)
		}
	}

	for _, scope := range entry.config.RequiredScopes {
		if !claims.HasScope(scope) {
			return nil, fmt.Errorf("%w: missing %s", ErrInsufficientScope, scope)
		}
	}

	return &VerifiedJWT{
		Issuer: entry.config,
		Claims: claims,
		Header: parsed.Header,
	}, nil
}

// classify maps parser failures to verification error kinds. Signature
// problems are checked before claim problems because the parser only
// validates claims once the signature holds.
func classify(err error) error {
	switch {
	case errors.Is(err, ErrJWKSFetchFailed):
		return err
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	case errors.Is(err, ErrKeyNotFound),
		errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenInvalidClaims):
		return fmt.Errorf("%w: %v", ErrInvalidClaims, err)
	default:
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
}

func audienceMatches(got, accepted []string) bool {
	for _, a := range accepted {
		for _, g := range got {
			if a == g {
				return true
			}
		}
	}
	return false
}
