// Package admin implements local administrator authentication. It is
// independent of the identity providers used by regular users.
package admin

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/upb/tenantchat/backend/config"
	"github.com/upb/tenantchat/backend/cookies"
	"github.com/upb/tenantchat/backend/repositories"
	"github.com/upb/tenantchat/backend/services"
	"github.com/upb/tenantchat/backend/utils"
	"go.uber.org/zap"
)

const (
	minPasswordLength = 10
	maxPasswordLength = 256
)

// Service logs the administrator in and rotates the admin password
type Service struct {
	cfg    config.AdminConfig
	creds  repositories.AdminCredentialRepository
	hasher *PasswordHasher
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates the admin service
func NewService(cfg config.AdminConfig, creds repositories.AdminCredentialRepository, logger *zap.Logger) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 8 * time.Hour
	}
	return &Service{
		cfg:    cfg,
		creds:  creds,
		hasher: NewPasswordHasher(),
		logger: logger,
		now:    time.Now,
	}
}

// Login checks the credentials and returns a new session. A session opened
// with the default password must rotate it before any other admin action.
func (s *Service) Login(ctx context.Context, username, password string) (*cookies.AdminSession, error) {
	ok, mustChange, err := s.checkPassword(ctx, password)
	if err != nil {
		return nil, err
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.cfg.Username)) == 1
	if !ok || !userOK {
		s.logger.Warn("admin login failed", zap.String("username", username))
		return nil, services.ErrInvalidCredentials
	}

	if mustChange {
		s.logger.Warn("admin logged in with the default password", zap.String("username", username))
	} else {
		s.logger.Info("admin logged in", zap.String("username", username))
	}
	return s.newSession(mustChange), nil
}

// Authorize checks a session for an admin action. allowPendingChange admits
// sessions that still have to rotate the default password.
func (s *Service) Authorize(session *cookies.AdminSession, allowPendingChange bool) error {
	if session == nil || session.Username != s.cfg.Username {
		return services.ErrAdminUnauthorized
	}
	if !session.ExpiresAt.After(s.now()) {
		return services.ErrAdminUnauthorized
	}
	if session.MustChangePassword && !allowPendingChange {
		return services.ErrAdminPasswordChangeRequired
	}
	return nil
}

// ChangePassword rotates the admin password and returns a session without
// the pending change flag.
func (s *Service) ChangePassword(ctx context.Context, session *cookies.AdminSession, current, next string) (*cookies.AdminSession, error) {
	if err := s.Authorize(session, true); err != nil {
		return nil, err
	}

	ok, _, err := s.checkPassword(ctx, current)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, services.ErrInvalidCredentials
	}
	if err := ValidateNewPassword(next); err != nil {
		return nil, err
	}

	if s.creds == nil {
		return nil, services.WrapInternal("admin credential store is not configured", nil)
	}
	hash, err := s.hasher.Hash(next)
	if err != nil {
		return nil, services.WrapInternal("failed to hash admin password", err)
	}
	if err := s.creds.SetPasswordHash(ctx, s.cfg.Username, hash); err != nil {
		return nil, services.WrapInternal("failed to store admin password", err)
	}

	s.logger.Info("admin password changed", zap.String("username", s.cfg.Username))
	return s.newSession(false), nil
}

// ValidateNewPassword enforces the admin password policy
func ValidateNewPassword(password string) error {
	if err := utils.ValidateStringLength(password, "password", minPasswordLength, maxPasswordLength); err != nil {
		return services.ErrInvalidPassword.Wrap(nil).WithDetail("reason", err.Error())
	}
	if isDefaultPassword(password) {
		return services.ErrInvalidPassword.Wrap(nil).WithDetail("reason", "password must not be the default password")
	}
	return nil
}

// checkPassword verifies password against the stored hash. The stored hash
// comes from the credential store, then ADMIN_PASSWORD_HASH; when neither is
// set only the default password is accepted.
func (s *Service) checkPassword(ctx context.Context, password string) (ok bool, mustChange bool, err error) {
	stored, err := s.storedHash(ctx)
	if err != nil {
		return false, false, err
	}
	if stored == "" {
		ok = isDefaultPassword(password)
		return ok, ok, nil
	}
	ok = s.hasher.Verify(password, stored)
	return ok, ok && isDefaultPassword(password), nil
}

func (s *Service) storedHash(ctx context.Context) (string, error) {
	if s.creds != nil {
		hash, err := s.creds.GetPasswordHash(ctx, s.cfg.Username)
		switch {
		case err == nil && strings.TrimSpace(hash) != "":
			return strings.TrimSpace(hash), nil
		case err != nil && !errors.Is(err, repositories.ErrNotFound):
			return "", services.WrapInternal("failed to load admin credentials", err)
		}
	}
	return strings.TrimSpace(s.cfg.PasswordHash), nil
}

func (s *Service) newSession(mustChange bool) *cookies.AdminSession {
	now := s.now()
	return &cookies.AdminSession{
		Username:           s.cfg.Username,
		MustChangePassword: mustChange,
		IssuedAt:           now,
		ExpiresAt:          now.Add(s.cfg.SessionTTL),
	}
}
