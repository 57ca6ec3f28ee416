package services

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/upb/tenantchat/backend/config"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// AuthorizationRequest carries the per-flow values put on the authorization URL
type AuthorizationRequest struct {
	State         string
	Nonce         string
	CodeChallenge string
	Mode          string
}

// TokenSet is the subset of a token endpoint response used by the login flow
type TokenSet struct {
	AccessToken string
	IDToken     string
	// ExpiresIn is the declared lifetime in seconds, zero when absent
	ExpiresIn int64
}

// AuthorizationURLBuilder builds the provider authorization URL
type AuthorizationURLBuilder interface {
	AuthorizationURL(ctx context.Context, provider *config.IssuerConfig, req AuthorizationRequest) (string, error)
}

// CodeExchanger redeems an authorization code at the provider token endpoint
type CodeExchanger interface {
	Exchange(ctx context.Context, provider *config.IssuerConfig, code, codeVerifier string) (*TokenSet, error)
}

// Parameters owned by the flow itself; per-mode extras cannot override them
var reservedAuthParams = map[string]bool{
	"client_id":             true,
	"redirect_uri":          true,
	"response_type":         true,
	"scope":                 true,
	"state":                 true,
	"nonce":                 true,
	"code_challenge":        true,
	"code_challenge_method": true,
}

// OIDCClient implements AuthorizationURLBuilder and CodeExchanger with
// x/oauth2. Endpoints not set in the issuer configuration are discovered
// from the issuer's openid-configuration document once and cached.
type OIDCClient struct {
	httpClient      *http.Client
	exchangeTimeout time.Duration
	logger          *zap.Logger

	mu        sync.Mutex
	endpoints map[string]oauth2.Endpoint
}

// NewOIDCClient creates a client. A nil httpClient uses one bounded by exchangeTimeout.
func NewOIDCClient(httpClient *http.Client, exchangeTimeout time.Duration, logger *zap.Logger) *OIDCClient {
	if exchangeTimeout <= 0 {
		exchangeTimeout = 15 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: exchangeTimeout}
	}
	return &OIDCClient{
		httpClient:      httpClient,
		exchangeTimeout: exchangeTimeout,
		logger:          logger,
		endpoints:       make(map[string]oauth2.Endpoint),
	}
}

// AuthorizationURL builds the authorization request with an S256 PKCE
// challenge, the nonce and the mode specific extra parameters.
func (c *OIDCClient) AuthorizationURL(ctx context.Context, provider *config.IssuerConfig, req AuthorizationRequest) (string, error) {
	cfg, err := c.oauthConfig(ctx, provider)
	if err != nil {
		return "", err
	}

	var opts []oauth2.AuthCodeOption
	for k, v := range provider.Client.AuthParams(req.Mode) {
		if reservedAuthParams[k] {
			continue
		}
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}
	opts = append(opts,
		oauth2.SetAuthURLParam("code_challenge", req.CodeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		oauth2.SetAuthURLParam("nonce", req.Nonce),
	)

	return cfg.AuthCodeURL(req.State, opts...), nil
}

// Exchange redeems code together with the PKCE verifier
func (c *OIDCClient) Exchange(ctx context.Context, provider *config.IssuerConfig, code, codeVerifier string) (*TokenSet, error) {
	cfg, err := c.oauthConfig(ctx, provider)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.exchangeTimeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	token, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		c.logger.Warn("token exchange failed",
			zap.String("provider", provider.Name),
			zap.Error(err))
		return nil, WrapExternal("token exchange failed", err)
	}
	if token.AccessToken == "" {
		return nil, WrapExternal("token exchange failed", fmt.Errorf("token response has no access_token"))
	}

	set := &TokenSet{
		AccessToken: token.AccessToken,
		ExpiresIn:   token.ExpiresIn,
	}
	if set.ExpiresIn <= 0 && !token.Expiry.IsZero() {
		set.ExpiresIn = int64(time.Until(token.Expiry).Round(time.Second) / time.Second)
	}
	if idToken, ok := token.Extra("id_token").(string); ok {
		set.IDToken = idToken
	}
	return set, nil
}

func (c *OIDCClient) oauthConfig(ctx context.Context, provider *config.IssuerConfig) (*oauth2.Config, error) {
	if provider == nil || provider.Client == nil {
		return nil, ErrProviderNotFound
	}
	endpoint, err := c.endpoint(ctx, provider)
	if err != nil {
		return nil, err
	}
	client := provider.Client
	return &oauth2.Config{
		ClientID:     client.ClientID,
		ClientSecret: client.ClientSecret,
		RedirectURL:  client.RedirectURI,
		Scopes:       client.Scopes,
		Endpoint:     endpoint,
	}, nil
}

func (c *OIDCClient) endpoint(ctx context.Context, provider *config.IssuerConfig) (oauth2.Endpoint, error) {
	client := provider.Client
	if client.AuthorizationEndpoint != "" && client.TokenEndpoint != "" {
		return oauth2.Endpoint{
			AuthURL:  client.AuthorizationEndpoint,
			TokenURL: client.TokenEndpoint,
		}, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if ep, ok := c.endpoints[provider.Issuer]; ok {
		return ep, nil
	}

	discoverCtx, cancel := context.WithTimeout(ctx, c.exchangeTimeout)
	defer cancel()
	discovered, err := oidc.NewProvider(oidc.ClientContext(discoverCtx, c.httpClient), provider.Issuer)
	if err != nil {
		c.logger.Warn("oidc discovery failed",
			zap.String("provider", provider.Name),
			zap.Error(err))
		return oauth2.Endpoint{}, WrapExternal("provider discovery failed", err)
	}

	ep := discovered.Endpoint()
	if client.AuthorizationEndpoint != "" {
		ep.AuthURL = client.AuthorizationEndpoint
	}
	if client.TokenEndpoint != "" {
		ep.TokenURL = client.TokenEndpoint
	}
	c.endpoints[provider.Issuer] = ep
	return ep, nil
}
