package verifier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

const (
	maxKeysPerIssuer = 64
	maxJWKSBytes     = 1 << 20
)

// KeySet holds the signing keys of one issuer. Keys are fetched lazily and
// refreshed when a token names a kid the set does not hold.
type KeySet struct {
	jwksURL            string
	httpClient         *http.Client
	minRefreshInterval time.Duration
	logger             *zap.Logger
	now                func() time.Time

	keys *lru.Cache[string, jose.JSONWebKey]

	// refreshMu serializes fetches so concurrent misses share one request
	refreshMu   sync.Mutex
	lastRefresh time.Time
	loaded      bool
}

// NewKeySet creates an empty key set for the JWKS document at jwksURL
func NewKeySet(jwksURL string, httpClient *http.Client, minRefreshInterval time.Duration, logger *zap.Logger) (*KeySet, error) {
	cache, err := lru.New[string, jose.JSONWebKey](maxKeysPerIssuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create key cache: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &KeySet{
		jwksURL:            jwksURL,
		httpClient:         httpClient,
		minRefreshInterval: minRefreshInterval,
		logger:             logger,
		now:                time.Now,
		keys:               cache,
	}, nil
}

// Key returns the public key for kid. An empty kid resolves only when the
// set holds exactly one key.
func (k *KeySet) Key(ctx context.Context, kid string) (interface{}, error) {
	if key, ok := k.lookup(kid); ok {
		return key, nil
	}

	if err := k.refresh(ctx, kid); err != nil {
		return nil, err
	}

	if key, ok := k.lookup(kid); ok {
		return key, nil
	}
	return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
}

func (k *KeySet) lookup(kid string) (interface{}, bool) {
	if kid == "" {
		if k.keys.Len() != 1 {
			return nil, false
		}
		values := k.keys.Values()
		return values[0].Key, true
	}
	jwk, ok := k.keys.Get(kid)
	if !ok {
		return nil, false
	}
	return jwk.Key, true
}

func (k *KeySet) refresh(ctx context.Context, kid string) error {
	k.refreshMu.Lock()
	defer k.refreshMu.Unlock()

	// another request may have refreshed the set while this one waited
	if _, ok := k.lookup(kid); ok {
		return nil
	}
	if k.loaded && k.now().Sub(k.lastRefresh) < k.minRefreshInterval {
		return nil
	}

	keys, err := k.fetch(ctx)
	if err != nil {
		return err
	}

	k.keys.Purge()
	for _, jwk := range keys {
		k.keys.Add(jwk.KeyID, jwk)
	}
	k.lastRefresh = k.now()
	k.loaded = true

	k.logger.Debug("jwks refreshed",
		zap.String("jwks_url", k.jwksURL),
		zap.Int("keys", len(keys)))
	return nil
}

// fetch downloads the JWKS document. Keys that fail to decode or are not
// signature keys are skipped so one exotic entry cannot disable the issuer.
func (k *KeySet) fetch(ctx context.Context) ([]jose.JSONWebKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status code %d", ErrJWKSFetchFailed, resp.StatusCode)
	}

	var doc struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJWKSBytes)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: failed to decode JWKS: %v", ErrJWKSFetchFailed, err)
	}

	keys := make([]jose.JSONWebKey, 0, len(doc.Keys))
	for _, raw := range doc.Keys {
		var jwk jose.JSONWebKey
		if err := jwk.UnmarshalJSON(raw); err != nil {
			k.logger.Warn("skipping undecodable jwk", zap.String("jwks_url", k.jwksURL), zap.Error(err))
			continue
		}
		if jwk.Use != "" && jwk.Use != "sig" {
			continue
		}
		if !jwk.IsPublic() {
			jwk = jwk.Public()
		}
		if !jwk.Valid() {
			continue
		}
		keys = append(keys, jwk)
	}
	return keys, nil
}

// Len returns the number of cached keys
func (k *KeySet) Len() int {
	return k.keys.Len()
}
