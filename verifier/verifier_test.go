package verifier

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/tenantchat/backend/config"
	"go.uber.org/zap"
)

type signingKey struct {
	kid    string
	method jwt.SigningMethod
	signer crypto.Signer
}

// issuerFixture serves a JWKS document whose keys can be swapped at runtime
type issuerFixture struct {
	t       *testing.T
	server  *httptest.Server
	cfg     config.IssuerConfig
	fetches atomic.Int32

	mu   sync.Mutex
	keys []signingKey
	down bool
}

func newRSAKey(t *testing.T, kid string) signingKey {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return signingKey{kid: kid, method: jwt.SigningMethodRS256, signer: priv}
}

func newECKey(t *testing.T, kid string) signingKey {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return signingKey{kid: kid, method: jwt.SigningMethodES256, signer: priv}
}

func newIssuerFixture(t *testing.T, name string, keys ...signingKey) *issuerFixture {
	f := &issuerFixture{t: t, keys: keys}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.fetches.Add(1)
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.down {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		set := jose.JSONWebKeySet{}
		for _, k := range f.keys {
			set.Keys = append(set.Keys, jose.JSONWebKey{
				Key:       k.signer.Public(),
				KeyID:     k.kid,
				Algorithm: k.method.Alg(),
				Use:       "sig",
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(f.server.Close)

	f.cfg = config.IssuerConfig{
		Name:       name,
		Issuer:     f.server.URL + "/" + name,
		Audience:   config.StringList{"tenantchat-api"},
		JWKSURI:    f.server.URL + "/jwks",
		TokenUse:   config.TokenUseAny,
		Algorithms: []string{"RS256"},
	}
	return f
}

func (f *issuerFixture) setKeys(keys ...signingKey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = keys
}

func (f *issuerFixture) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func (f *issuerFixture) claims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":   f.cfg.Issuer,
		"sub":   "user-123",
		"aud":   "tenantchat-api",
		"exp":   now.Add(time.Hour).Unix(),
		"iat":   now.Unix(),
		"email": "ada@example.com",
	}
}

func sign(t *testing.T, key signingKey, claims jwt.MapClaims) string {
	token := jwt.NewWithClaims(key.method, claims)
	token.Header["kid"] = key.kid
	signed, err := token.SignedString(key.signer)
	require.NoError(t, err)
	return signed
}

func newVerifier(t *testing.T, opts Options, issuers ...config.IssuerConfig) *MultiIssuerVerifier {
	v, err := NewMultiIssuerVerifier(issuers, opts, zap.NewNop())
	require.NoError(t, err)
	return v
}

func TestVerify_ValidToken(t *testing.T) {
	key := newRSAKey(t, "k1")
	okta := newIssuerFixture(t, "okta", key)
	v := newVerifier(t, Options{}, okta.cfg)

	verified, err := v.Verify(context.Background(), sign(t, key, okta.claims()))

	require.NoError(t, err)
	assert.Equal(t, "okta", verified.Issuer.Name)
	assert.Equal(t, "user-123", verified.Claims.Subject)
	assert.Equal(t, okta.cfg.Issuer, verified.Claims.Issuer)
	assert.Equal(t, []string{"tenantchat-api"}, verified.Claims.Audience)
	assert.Equal(t, "ada@example.com", verified.Claims.Raw["email"])
	assert.Equal(t, "k1", verified.Header["kid"])
}

func TestVerify_MultipleIssuers(t *testing.T) {
	oktaKey := newRSAKey(t, "okta-1")
	auth0Key := newRSAKey(t, "auth0-1")
	okta := newIssuerFixture(t, "okta", oktaKey)
	auth0 := newIssuerFixture(t, "auth0", auth0Key)
	v := newVerifier(t, Options{}, okta.cfg, auth0.cfg)

	fromOkta, err := v.Verify(context.Background(), sign(t, oktaKey, okta.claims()))
	require.NoError(t, err)
	assert.Equal(t, "okta", fromOkta.Issuer.Name)

	fromAuth0, err := v.Verify(context.Background(), sign(t, auth0Key, auth0.claims()))
	require.NoError(t, err)
	assert.Equal(t, "auth0", fromAuth0.Issuer.Name)
}

func TestVerify_CrossIssuerSignatureRejected(t *testing.T) {
	oktaKey := newRSAKey(t, "shared-kid")
	auth0Key := newRSAKey(t, "shared-kid")
	auth0Only := newRSAKey(t, "auth0-only")
	okta := newIssuerFixture(t, "okta", oktaKey)
	auth0 := newIssuerFixture(t, "auth0", auth0Key, auth0Only)
	v := newVerifier(t, Options{}, okta.cfg, auth0.cfg)

	t.Run("same kid different key", func(t *testing.T) {
		_, err := v.Verify(context.Background(), sign(t, auth0Key, okta.claims()))
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("kid unknown to the claimed issuer", func(t *testing.T) {
		_, err := v.Verify(context.Background(), sign(t, auth0Only, okta.claims()))
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})
}

func TestVerify_IssuerErrors(t *testing.T) {
	key := newRSAKey(t, "k1")
	okta := newIssuerFixture(t, "okta", key)
	v := newVerifier(t, Options{}, okta.cfg)

	t.Run("unknown issuer", func(t *testing.T) {
		claims := okta.claims()
		claims["iss"] = "https://evil.example.com"
		_, err := v.Verify(context.Background(), sign(t, key, claims))
		assert.ErrorIs(t, err, ErrUnknownIssuer)
	})

	t.Run("missing issuer", func(t *testing.T) {
		claims := okta.claims()
		delete(claims, "iss")
		_, err := v.Verify(context.Background(), sign(t, key, claims))
		assert.ErrorIs(t, err, ErrUnknownIssuer)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := v.Verify(context.Background(), "not.a.jwt")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := v.Verify(context.Background(), "")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestVerify_NotConfigured(t *testing.T) {
	v := newVerifier(t, Options{})

	assert.False(t, v.Configured())
	_, err := v.Verify(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrAuthNotConfigured)
}

func TestVerify_ExpiryAndClockSkew(t *testing.T) {
	key := newRSAKey(t, "k1")
	okta := newIssuerFixture(t, "okta", key)

	claims := okta.claims()
	claims["exp"] = time.Now().Add(-30 * time.Second).Unix()
	token := sign(t, key, claims)

	_, err := newVerifier(t, Options{ClockSkew: 0}, okta.cfg).Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrTokenExpired)

	_, err = newVerifier(t, Options{ClockSkew: time.Minute}, okta.cfg).Verify(context.Background(), token)
	assert.NoError(t, err)
}

func TestVerify_ClaimErrors(t *testing.T) {
	key := newRSAKey(t, "k1")
	okta := newIssuerFixture(t, "okta", key)
	v := newVerifier(t, Options{}, okta.cfg)

	tests := []struct {
		name   string
		mutate func(jwt.MapClaims)
	}{
		{"audience mismatch", func(c jwt.MapClaims) { c["aud"] = "someone-else" }},
		{"missing audience", func(c jwt.MapClaims) { delete(c, "aud") }},
		{"not yet valid", func(c jwt.MapClaims) { c["nbf"] = time.Now().Add(time.Hour).Unix() }},
		{"missing exp", func(c jwt.MapClaims) { delete(c, "exp") }},
		{"missing sub", func(c jwt.MapClaims) { delete(c, "sub") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := okta.claims()
			tt.mutate(claims)
			_, err := v.Verify(context.Background(), sign(t, key, claims))
			assert.ErrorIs(t, err, ErrInvalidClaims)
		})
	}
}

func TestVerify_AudienceList(t *testing.T) {
	key := newRSAKey(t, "k1")
	okta := newIssuerFixture(t, "okta", key)
	okta.cfg.Audience = config.StringList{"other", "tenantchat-api"}
	v := newVerifier(t, Options{}, okta.cfg)

	claims := okta.claims()
	claims["aud"] = []string{"account", "tenantchat-api"}
	_, err := v.Verify(context.Background(), sign(t, key, claims))
	assert.NoError(t, err)
}

func TestVerify_AlgorithmNotAllowed(t *testing.T) {
	ecKey := newECKey(t, "ec1")
	okta := newIssuerFixture(t, "okta", ecKey)
	v := newVerifier(t, Options{}, okta.cfg)

	_, err := v.Verify(context.Background(), sign(t, ecKey, okta.claims()))
	assert.ErrorIs(t, err, ErrInvalidSignature)

	hmac := jwt.NewWithClaims(jwt.SigningMethodHS256, okta.claims())
	hmac.Header["kid"] = "ec1"
	signed, err := hmac.SignedString([]byte("shared-secret"))
	require.NoError(t, err)
	_, err = v.Verify(context.Background(), signed)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerify_ECDSAIssuer(t *testing.T) {
	ecKey := newECKey(t, "ec1")
	okta := newIssuerFixture(t, "okta", ecKey)
	okta.cfg.Algorithms = []string{"ES256"}
	v := newVerifier(t, Options{}, okta.cfg)

	_, err := v.Verify(context.Background(), sign(t, ecKey, okta.claims()))
	assert.NoError(t, err)
}

func TestVerify_TokenUse(t *testing.T) {
	key := newRSAKey(t, "k1")
	okta := newIssuerFixture(t, "okta", key)
	okta.cfg.TokenUse = config.TokenUseAccess
	v := newVerifier(t, Options{}, okta.cfg)

	tests := []struct {
		name    string
		claim   string
		value   string
		wantErr error
	}{
		{"no declaration", "", "", nil},
		{"access token_use", "token_use", "access", nil},
		{"at+jwt typ claim", "typ", "at+jwt", nil},
		{"bearer typ claim", "typ", "Bearer", nil},
		{"id token_use", "token_use", "id", ErrWrongTokenType},
		{"id typ claim", "typ", "ID", ErrWrongTokenType},
		{"generic JWT typ claim", "typ", "JWT", nil},
		{"refresh typ claim", "typ", "Refresh", nil},
		{"offline typ claim", "typ", "Offline", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := okta.claims()
			if tt.claim != "" {
				claims[tt.claim] = tt.value
			}
			_, err := v.Verify(context.Background(), sign(t, key, claims))
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestVerify_TokenUseID(t *testing.T) {
	key := newRSAKey(t, "k1")
	okta := newIssuerFixture(t, "okta", key)
	okta.cfg.TokenUse = config.TokenUseID
	v := newVerifier(t, Options{}, okta.cfg)

	claims := okta.claims()
	claims["token_use"] = "access"
	_, err := v.Verify(context.Background(), sign(t, key, claims))
	assert.ErrorIs(t, err, ErrWrongTokenType)

	claims["token_use"] = "id"
	_, err = v.Verify(context.Background(), sign(t, key, claims))
	assert.NoError(t, err)
}

func TestVerify_RequiredScopes(t *testing.T) {
	key := newRSAKey(t, "k1")
	okta := newIssuerFixture(t, "okta", key)
	okta.cfg.RequiredScopes = []string{"chat.read", "chat.write"}
	v := newVerifier(t, Options{}, okta.cfg)

	claims := okta.claims()
	claims["scope"] = "openid chat.read"
	_, err := v.Verify(context.Background(), sign(t, key, claims))
	assert.ErrorIs(t, err, ErrInsufficientScope)

	claims["scope"] = "openid chat.read chat.write"
	verified, err := v.Verify(context.Background(), sign(t, key, claims))
	require.NoError(t, err)
	assert.True(t, verified.Claims.HasScope("chat.write"))

	delete(claims, "scope")
	claims["scp"] = []string{"chat.read", "chat.write"}
	_, err = v.Verify(context.Background(), sign(t, key, claims))
	assert.NoError(t, err)
}

func TestVerify_KeyRotation(t *testing.T) {
	oldKey := newRSAKey(t, "old")
	newKey := newRSAKey(t, "new")
	okta := newIssuerFixture(t, "okta", oldKey)
	v := newVerifier(t, Options{MinRefreshInterval: 0}, okta.cfg)

	_, err := v.Verify(context.Background(), sign(t, oldKey, okta.claims()))
	require.NoError(t, err)
	assert.Equal(t, int32(1), okta.fetches.Load())

	// cached key is reused
	_, err = v.Verify(context.Background(), sign(t, oldKey, okta.claims()))
	require.NoError(t, err)
	assert.Equal(t, int32(1), okta.fetches.Load())

	okta.setKeys(oldKey, newKey)
	_, err = v.Verify(context.Background(), sign(t, newKey, okta.claims()))
	require.NoError(t, err)
	assert.Equal(t, int32(2), okta.fetches.Load())
}

func TestVerify_RefreshIsThrottled(t *testing.T) {
	key := newRSAKey(t, "k1")
	stranger := newRSAKey(t, "unknown")
	okta := newIssuerFixture(t, "okta", key)
	v := newVerifier(t, Options{MinRefreshInterval: time.Hour}, okta.cfg)

	_, err := v.Verify(context.Background(), sign(t, key, okta.claims()))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = v.Verify(context.Background(), sign(t, stranger, okta.claims()))
		assert.ErrorIs(t, err, ErrInvalidSignature)
	}
	assert.Equal(t, int32(1), okta.fetches.Load())
}

func TestVerify_ConcurrentMissesShareOneFetch(t *testing.T) {
	key := newRSAKey(t, "k1")
	okta := newIssuerFixture(t, "okta", key)
	v := newVerifier(t, Options{MinRefreshInterval: time.Hour}, okta.cfg)
	token := sign(t, key, okta.claims())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := v.Verify(context.Background(), token)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), okta.fetches.Load())
}

func TestVerify_JWKSUnavailable(t *testing.T) {
	key := newRSAKey(t, "k1")
	okta := newIssuerFixture(t, "okta", key)
	okta.setDown(true)
	v := newVerifier(t, Options{}, okta.cfg)

	_, err := v.Verify(context.Background(), sign(t, key, okta.claims()))
	assert.ErrorIs(t, err, ErrJWKSFetchFailed)
	assert.NotErrorIs(t, err, ErrInvalidSignature)
}

func TestVerify_TokenWithoutKid(t *testing.T) {
	key := newRSAKey(t, "k1")
	okta := newIssuerFixture(t, "okta", key)
	v := newVerifier(t, Options{}, okta.cfg)

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, okta.claims())
	signed, err := token.SignedString(key.signer)
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), signed)
	assert.NoError(t, err)

	okta.setKeys(key, newRSAKey(t, "k2"))
	v = newVerifier(t, Options{}, okta.cfg)
	_, err = v.Verify(context.Background(), signed)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestUnverifiedExpiry(t *testing.T) {
	key := newRSAKey(t, "k1")
	exp := time.Now().Add(90 * time.Minute).Truncate(time.Second)

	token := sign(t, key, jwt.MapClaims{"exp": exp.Unix()})
	got, ok := UnverifiedExpiry(token)
	require.True(t, ok)
	assert.True(t, exp.Equal(got))

	_, ok = UnverifiedExpiry(sign(t, key, jwt.MapClaims{"sub": "x"}))
	assert.False(t, ok)

	_, ok = UnverifiedExpiry("opaque-access-token")
	assert.False(t, ok)
}

func TestUnverifiedClaim(t *testing.T) {
	key := newRSAKey(t, "k1")
	token := sign(t, key, jwt.MapClaims{"nonce": "n-1"})

	v, ok := UnverifiedClaim(token, "nonce")
	require.True(t, ok)
	assert.Equal(t, "n-1", v)

	_, ok = UnverifiedClaim(token, "missing")
	assert.False(t, ok)
}
