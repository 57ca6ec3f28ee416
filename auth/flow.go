// Package auth runs the browser login flow: an OIDC authorization code
// exchange protected by PKCE, with all in-flight state carried in a signed
// cookie rather than a server side store.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/upb/tenantchat/backend/config"
	"github.com/upb/tenantchat/backend/cookies"
	"github.com/upb/tenantchat/backend/internal/identity"
	"github.com/upb/tenantchat/backend/services"
	"github.com/upb/tenantchat/backend/verifier"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	defaultSessionTTL = time.Hour
	randomTokenBytes  = 32
)

// ProviderRegistry resolves configured issuers by name
type ProviderRegistry interface {
	LookupByName(name string) (*config.IssuerConfig, bool)
	LoginProviders() []string
}

// PrincipalResolver turns an access token into a provisioned principal
type PrincipalResolver interface {
	PrincipalFromToken(ctx context.Context, token string) (*identity.Principal, error)
}

// StartResult is the outcome of starting a flow: where to send the browser
// and the flow state to store in its cookie.
type StartResult struct {
	RedirectURL string
	Flow        cookies.FlowState
}

// CallbackParams are the query parameters the provider redirects back with
type CallbackParams struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// CallbackResult is a completed login
type CallbackResult struct {
	Session   cookies.SessionState
	Principal *identity.Principal
	ReturnTo  string
}

// Orchestrator holds the decisions of the login flow. It knows nothing about
// HTTP; Handler adapts it to requests and cookies.
type Orchestrator struct {
	providers  ProviderRegistry
	urls       services.AuthorizationURLBuilder
	exchanger  services.CodeExchanger
	principals PrincipalResolver
	sessionTTL time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewOrchestrator creates an orchestrator. sessionTTL is used when neither the
// token response nor the access token states a lifetime.
func NewOrchestrator(
	providers ProviderRegistry,
	urls services.AuthorizationURLBuilder,
	exchanger services.CodeExchanger,
	principals PrincipalResolver,
	sessionTTL time.Duration,
	logger *zap.Logger,
) *Orchestrator {
	if sessionTTL <= 0 {
		sessionTTL = defaultSessionTTL
	}
	return &Orchestrator{
		providers:  providers,
		urls:       urls,
		exchanger:  exchanger,
		principals: principals,
		sessionTTL: sessionTTL,
		logger:     logger,
		now:        time.Now,
	}
}

// Start begins a flow against the named provider
func (o *Orchestrator) Start(ctx context.Context, providerName, mode, returnTo string) (*StartResult, error) {
	provider, err := o.lookup(providerName)
	if err != nil {
		return nil, err
	}
	mode = NormalizeMode(mode)

	state, err := randomToken()
	if err != nil {
		return nil, services.WrapInternal("failed to generate state", err)
	}
	nonce, err := randomToken()
	if err != nil {
		return nil, services.WrapInternal("failed to generate nonce", err)
	}
	codeVerifier := oauth2.GenerateVerifier()

	redirectURL, err := o.urls.AuthorizationURL(ctx, provider, services.AuthorizationRequest{
		State:         state,
		Nonce:         nonce,
		CodeChallenge: oauth2.S256ChallengeFromVerifier(codeVerifier),
		Mode:          mode,
	})
	if err != nil {
		return nil, err
	}

	o.logger.Debug("login flow started",
		zap.String("provider", provider.Name),
		zap.String("mode", mode))

	return &StartResult{
		RedirectURL: redirectURL,
		Flow: cookies.FlowState{
			ProviderName: provider.Name,
			Mode:         mode,
			ReturnTo:     SanitizeReturnTo(returnTo),
			State:        state,
			Nonce:        nonce,
			CodeVerifier: codeVerifier,
			CreatedAt:    o.now().UTC(),
		},
	}, nil
}

// Callback completes a flow. flow is the decoded flow cookie, nil when the
// cookie was absent, tampered with or expired.
func (o *Orchestrator) Callback(ctx context.Context, providerName string, params CallbackParams, flow *cookies.FlowState) (*CallbackResult, error) {
	provider, err := o.lookup(providerName)
	if err != nil {
		return nil, err
	}

	if params.Error != "" {
		return nil, services.ErrAuthCallbackError.Wrap(nil).
			WithDetail("error", params.Error).
			WithDetail("error_description", params.ErrorDescription)
	}
	if params.Code == "" || params.State == "" {
		return nil, services.ErrInvalidCallback
	}
	if flow == nil {
		return nil, services.ErrAuthFlowMissing
	}
	if flow.ProviderName != provider.Name {
		return nil, services.ErrProviderMismatch
	}
	if !constantTimeEqual(flow.State, params.State) {
		o.logger.Warn("login callback state mismatch", zap.String("provider", provider.Name))
		return nil, services.ErrStateMismatch
	}

	tokens, err := o.exchanger.Exchange(ctx, provider, params.Code, flow.CodeVerifier)
	if err != nil {
		return nil, err
	}

	if tokens.IDToken != "" {
		if nonce, ok := verifier.UnverifiedClaim(tokens.IDToken, "nonce"); ok {
			if s, _ := nonce.(string); !constantTimeEqual(s, flow.Nonce) {
				return nil, services.ErrInvalidToken.WithMessage("id token nonce does not match the login flow")
			}
		}
	}

	principal, err := o.principals.PrincipalFromToken(ctx, tokens.AccessToken)
	if err != nil {
		return nil, err
	}
	if principal == nil {
		return nil, services.ErrInvalidToken
	}

	expiresAt := o.sessionExpiry(tokens)
	if !expiresAt.After(o.now()) {
		return nil, services.ErrTokenExpired
	}

	o.logger.Info("login completed",
		zap.String("provider", provider.Name),
		zap.String("user_id", principal.UserID.String()))

	return &CallbackResult{
		Session: cookies.SessionState{
			AccessToken:  tokens.AccessToken,
			ProviderName: provider.Name,
			ExpiresAt:    expiresAt,
		},
		Principal: principal,
		ReturnTo:  SanitizeReturnTo(flow.ReturnTo),
	}, nil
}

// Providers returns the names of the providers that support the login flow
func (o *Orchestrator) Providers() []string {
	return o.providers.LoginProviders()
}

func (o *Orchestrator) lookup(name string) (*config.IssuerConfig, error) {
	provider, ok := o.providers.LookupByName(name)
	if !ok || !provider.SupportsLogin() {
		return nil, services.ErrProviderNotFound.Wrap(nil).WithDetail("provider", name)
	}
	return provider, nil
}

// sessionExpiry prefers the declared lifetime, then the token's own exp
func (o *Orchestrator) sessionExpiry(tokens *services.TokenSet) time.Time {
	now := o.now().UTC()
	if tokens.ExpiresIn > 0 {
		return now.Add(time.Duration(tokens.ExpiresIn) * time.Second)
	}
	if exp, ok := verifier.UnverifiedExpiry(tokens.AccessToken); ok {
		return exp.UTC()
	}
	return now.Add(o.sessionTTL)
}

// NormalizeMode maps anything other than register to login
func NormalizeMode(mode string) string {
	if strings.EqualFold(strings.TrimSpace(mode), config.ModeRegister) {
		return config.ModeRegister
	}
	return config.ModeLogin
}

// SanitizeReturnTo keeps only same-origin absolute paths. Anything else,
// including protocol relative URLs, collapses to "/".
func SanitizeReturnTo(returnTo string) string {
	if returnTo == "" || returnTo[0] != '/' {
		return "/"
	}
	if len(returnTo) > 1 && (returnTo[1] == '/' || returnTo[1] == '\\') {
		return "/"
	}
	if strings.ContainsAny(returnTo, "\r\n") {
		return "/"
	}
	return returnTo
}

func randomToken() (string, error) {
	b := make([]byte, randomTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
