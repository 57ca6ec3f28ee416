package verifier

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mitchellh/mapstructure"
)

// Claims is the typed view of a verified token. Raw keeps every claim,
// including provider specific ones, for claim mapping.
type Claims struct {
	Subject   string   `mapstructure:"sub"`
	Issuer    string   `mapstructure:"iss"`
	Audience  []string `mapstructure:"aud"`
	ExpiresAt int64    `mapstructure:"exp"`
	IssuedAt  int64    `mapstructure:"iat"`
	NotBefore int64    `mapstructure:"nbf"`
	TokenUse  string   `mapstructure:"token_use"`
	Type      string   `mapstructure:"typ"`
	Nonce     string   `mapstructure:"nonce"`

	Scopes []string               `mapstructure:"-"`
	Raw    map[string]interface{} `mapstructure:"-"`
}

// Expiry returns exp as a time
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.Unix(c.ExpiresAt, 0)
}

// HasScope reports whether scope was granted
func (c *Claims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// decodeClaims converts map claims into the typed record. Single valued
// audiences are lifted into a list.
func decodeClaims(raw jwt.MapClaims) (*Claims, error) {
	claims := &Claims{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           claims,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(map[string]interface{}(raw)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidClaims, err)
	}

	claims.Scopes = scopesFrom(raw)
	claims.Raw = map[string]interface{}(raw)
	return claims, nil
}

// scopesFrom reads the space delimited scope claim. List valued scope and
// scp claims are accepted as well.
func scopesFrom(raw jwt.MapClaims) []string {
	var scopes []string
	for _, name := range []string{"scope", "scp"} {
		switch v := raw[name].(type) {
		case string:
			scopes = append(scopes, strings.Fields(v)...)
		case []interface{}:
			for _, item := range v {
				if s, ok := item.(string); ok && s != "" {
					scopes = append(scopes, s)
				}
			}
		}
	}
	return scopes
}

// Token kinds after normalization
const (
	kindAccess = "access"
	kindID     = "id"
)

// declaredKind returns the token kind declared by token_use, then typ, then
// an RFC 9068 at+jwt header. Empty means the token declares nothing that
// names an access or ID token; values such as "JWT" or "Refresh" count as
// no declaration.
func declaredKind(c *Claims, header map[string]interface{}) string {
	for _, v := range []string{c.TokenUse, c.Type} {
		if kind := normalizeKind(v); kind != "" {
			return kind
		}
	}
	if typ, ok := header["typ"].(string); ok {
		if kind := normalizeKind(typ); kind == kindAccess {
			return kind
		}
	}
	return ""
}

func normalizeKind(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "access", "access_token", "at+jwt", "application/at+jwt", "bearer":
		return kindAccess
	case "id", "id_token", "idtoken":
		return kindID
	default:
		return ""
	}
}

// UnverifiedExpiry reads exp from a token without checking its signature.
// It is only suitable for deciding how long to keep a token that the
// issuer itself just handed out.
func UnverifiedExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// UnverifiedClaim reads a single claim from a token without checking its signature
func UnverifiedClaim(token, name string) (interface{}, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, false
	}
	v, ok := claims[name]
	return v, ok
}
