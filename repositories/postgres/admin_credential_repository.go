package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/upb/tenantchat/backend/repositories"
	"go.uber.org/zap"
)

// AdminCredentialRepository implements the repositories.AdminCredentialRepository interface
type AdminCredentialRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAdminCredentialRepository creates a new admin credential repository
func NewAdminCredentialRepository(db *DB, logger *zap.Logger) repositories.AdminCredentialRepository {
	return &AdminCredentialRepository{
		db:     db,
		logger: logger,
	}
}

// GetPasswordHash returns the stored hash for username
func (r *AdminCredentialRepository) GetPasswordHash(ctx context.Context, username string) (string, error) {
	query := `SELECT password_hash FROM admin_credentials WHERE username = $1`

	var hash string
	err := GetExecutor(ctx, r.db).QueryRowContext(ctx, query, username).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", repositories.ErrNotFound
		}
		return "", fmt.Errorf("failed to get admin credential: %w", err)
	}
	return hash, nil
}

// SetPasswordHash upserts the hash for username
func (r *AdminCredentialRepository) SetPasswordHash(ctx context.Context, username, hash string) error {
	query := `
		INSERT INTO admin_credentials (username, password_hash, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (username) DO UPDATE
		SET password_hash = EXCLUDED.password_hash,
		    updated_at = EXCLUDED.updated_at
	`

	_, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, username, hash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to store admin credential: %w", err)
	}

	r.logger.Info("admin password hash updated", zap.String("username", username))
	return nil
}
