package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/upb/tenantchat/backend/internal/identity"
	"github.com/upb/tenantchat/backend/models"
	"github.com/upb/tenantchat/backend/repositories"
	"github.com/upb/tenantchat/backend/verifier"
	"go.uber.org/zap"
)

// maxProvisionAttempts bounds the retries after losing a first-login race
const maxProvisionAttempts = 3

// errIdentityRace aborts a provisioning attempt whose identity link was
// inserted concurrently by another request.
var errIdentityRace = errors.New("external identity linked concurrently")

// TokenVerifier verifies bearer tokens
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*verifier.VerifiedJWT, error)
}

// AuthContextProvider resolves bearer tokens into provisioned principals.
// The first time an (issuer, subject) pair is seen a local user is created
// and linked to it.
type AuthContextProvider struct {
	verifier    TokenVerifier
	uow         repositories.UnitOfWork
	defaultRole string
	logger      *zap.Logger
	now         func() time.Time
}

// NewAuthContextProvider creates a provider that assigns defaultRole to new users
func NewAuthContextProvider(v TokenVerifier, uow repositories.UnitOfWork, defaultRole string, logger *zap.Logger) *AuthContextProvider {
	if defaultRole == "" {
		defaultRole = string(models.RoleMember)
	}
	return &AuthContextProvider{
		verifier:    v,
		uow:         uow,
		defaultRole: defaultRole,
		logger:      logger,
		now:         time.Now,
	}
}

// GetPrincipal resolves an Authorization header. It returns nil without an
// error when the header carries no bearer token, so callers can fall back to
// other credentials.
func (p *AuthContextProvider) GetPrincipal(ctx context.Context, authorizationHeader string) (*identity.Principal, error) {
	token, ok := BearerToken(authorizationHeader)
	if !ok {
		return nil, nil
	}
	return p.PrincipalFromToken(ctx, token)
}

// PrincipalFromToken verifies token, maps its claims and provisions the user
func (p *AuthContextProvider) PrincipalFromToken(ctx context.Context, token string) (*identity.Principal, error) {
	verified, err := p.verifier.Verify(ctx, token)
	if err != nil {
		return nil, MapVerificationError(err)
	}

	principal := identity.MapPrincipal(verified)
	if err := principal.Validate(); err != nil {
		return nil, ErrInvalidClaims.Wrap(err)
	}

	userID, roles, err := p.provision(ctx, principal)
	if err != nil {
		return nil, err
	}
	return principal.WithUser(userID, roles), nil
}

// provision runs the lookup-or-create sequence in a unit of work. When the
// identity link loses a race the whole unit is rolled back and run again,
// which then finds the winner's user.
func (p *AuthContextProvider) provision(ctx context.Context, principal *identity.Principal) (uuid.UUID, []string, error) {
	var (
		userID uuid.UUID
		roles  []string
	)

	for attempt := 1; attempt <= maxProvisionAttempts; attempt++ {
		err := p.uow.Execute(ctx, func(ctx context.Context, repos repositories.TxRepositories) error {
			id, err := p.resolveUser(ctx, repos, principal)
			if err != nil {
				return err
			}
			if err := repos.Users.TouchLastSeen(ctx, id, p.now().UTC()); err != nil {
				return err
			}
			assigned, err := repos.Roles.ListRoleNamesForUser(ctx, id)
			if err != nil {
				return err
			}
			userID, roles = id, assigned
			return nil
		})

		switch {
		case err == nil:
			return userID, roles, nil
		case errors.Is(err, errIdentityRace):
			p.logger.Debug("identity linked concurrently, retrying",
				zap.String("issuer", principal.Issuer),
				zap.Int("attempt", attempt))
			continue
		default:
			return uuid.Nil, nil, WrapInternal("failed to provision user", err)
		}
	}

	return uuid.Nil, nil, WrapInternal("failed to provision user", errIdentityRace)
}

func (p *AuthContextProvider) resolveUser(ctx context.Context, repos repositories.TxRepositories, principal *identity.Principal) (uuid.UUID, error) {
	user, err := repos.Users.GetByExternalIdentity(ctx, principal.Issuer, principal.Subject)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return uuid.Nil, err
	}

	if user != nil {
		if update := user.ProfileDrift(principal.Email, principal.Name); !update.IsEmpty() {
			if err := repos.Users.UpdateProfile(ctx, user.ID, update); err != nil {
				return uuid.Nil, err
			}
		}
		return user.ID, nil
	}

	user = models.NewUser(principal.Email, principal.Name)
	if err := repos.Users.CreateUser(ctx, user); err != nil {
		return uuid.Nil, err
	}
	linked, err := repos.Users.LinkExternalIdentity(ctx, models.NewExternalIdentity(user.ID, principal.Issuer, principal.Subject))
	if err != nil {
		return uuid.Nil, err
	}
	if !linked {
		return uuid.Nil, errIdentityRace
	}
	if err := repos.Roles.AssignRoleToUser(ctx, user.ID, p.defaultRole); err != nil {
		return uuid.Nil, err
	}

	p.logger.Info("provisioned user",
		zap.String("user_id", user.ID.String()),
		zap.String("issuer", principal.Issuer))
	return user.ID, nil
}

// BearerToken extracts the token from an Authorization header. The scheme is
// matched case-insensitively; anything malformed counts as no token.
func BearerToken(header string) (string, bool) {
	const prefix = "bearer "
	header = strings.TrimSpace(header)
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", false
	}
	return token, true
}

// MapVerificationError converts verifier failures into domain errors
func MapVerificationError(err error) error {
	switch {
	case errors.Is(err, verifier.ErrAuthNotConfigured):
		return ErrAuthNotConfigured.Wrap(err)
	case errors.Is(err, verifier.ErrJWKSFetchFailed):
		return ErrUpstream.Wrap(err).WithMessage("signing keys could not be retrieved")
	case errors.Is(err, verifier.ErrUnknownIssuer):
		return ErrUnknownIssuer.Wrap(err)
	case errors.Is(err, verifier.ErrTokenExpired):
		return ErrTokenExpired.Wrap(err)
	case errors.Is(err, verifier.ErrInvalidSignature):
		return ErrInvalidSignature.Wrap(err)
	case errors.Is(err, verifier.ErrInvalidClaims):
		return ErrInvalidClaims.Wrap(err)
	case errors.Is(err, verifier.ErrWrongTokenType):
		return ErrWrongTokenType.Wrap(err)
	case errors.Is(err, verifier.ErrInsufficientScope):
		return ErrInsufficientScope.Wrap(err)
	default:
		return ErrInvalidToken.Wrap(err)
	}
}
