package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/upb/tenantchat/backend/models"
	"github.com/upb/tenantchat/backend/repositories"
	"go.uber.org/zap"
)

// UserRepository implements the repositories.UserRepository interface
type UserRepository struct {
	db     *DB
	tx     *Transaction
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB, logger *zap.Logger) repositories.UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

const userColumns = `u.id, u.email, u.name, u.avatar_url, u.avatar_source, u.created_at, u.updated_at, u.last_seen_at`

func scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.AvatarURL,
		&user.AvatarSource,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.LastSeenAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetByExternalIdentity retrieves the user linked to (issuer, subject)
func (r *UserRepository) GetByExternalIdentity(ctx context.Context, issuer, subject string) (*models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users u
		JOIN external_identities ei ON ei.user_id = u.id
		WHERE ei.issuer = $1 AND ei.subject = $2
	`

	executor := boundExecutor(ctx, r.db, r.tx)
	user, err := scanUser(executor.QueryRowContext(ctx, query, issuer, subject))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by external identity: %w", err)
	}

	return user, nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users u
		WHERE u.id = $1
	`

	executor := boundExecutor(ctx, r.db, r.tx)
	user, err := scanUser(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// CreateUser creates a new user
func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, email, name, avatar_url, avatar_source, created_at, updated_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	executor := boundExecutor(ctx, r.db, r.tx)
	_, err := executor.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.Name,
		user.AvatarURL,
		user.AvatarSource,
		user.CreatedAt,
		user.UpdatedAt,
		user.LastSeenAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	r.logger.Debug("user created", zap.String("id", user.ID.String()))
	return nil
}

// UpdateProfile overwrites the non-nil fields of update
func (r *UserRepository) UpdateProfile(ctx context.Context, id uuid.UUID, update models.ProfileUpdate) error {
	if update.IsEmpty() {
		return nil
	}

	query := `
		UPDATE users
		SET email = COALESCE($2, email),
		    name = COALESCE($3, name),
		    updated_at = $4
		WHERE id = $1
	`

	executor := boundExecutor(ctx, r.db, r.tx)
	result, err := executor.ExecContext(ctx, query, id, update.Email, update.Name, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update user profile: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repositories.ErrNotFound
	}

	r.logger.Debug("user profile updated", zap.String("id", id.String()))
	return nil
}

// TouchLastSeen records the time of the latest authenticated request
func (r *UserRepository) TouchLastSeen(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE users SET last_seen_at = $2 WHERE id = $1`

	executor := boundExecutor(ctx, r.db, r.tx)
	result, err := executor.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to update last seen: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

// LinkExternalIdentity inserts the (issuer, subject) link. A concurrent
// insert of the same pair blocks on the unique index until the other
// transaction finishes, then reports false.
func (r *UserRepository) LinkExternalIdentity(ctx context.Context, identity *models.ExternalIdentity) (bool, error) {
	query := `
		INSERT INTO external_identities (id, user_id, issuer, subject, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (issuer, subject) DO NOTHING
	`

	executor := boundExecutor(ctx, r.db, r.tx)
	result, err := executor.ExecContext(ctx, query,
		identity.ID,
		identity.UserID,
		identity.Issuer,
		identity.Subject,
		identity.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to link external identity: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		r.logger.Debug("external identity already linked",
			zap.String("issuer", identity.Issuer),
			zap.String("subject", identity.Subject))
		return false, nil
	}
	return true, nil
}

// WithTx returns a new repository instance bound to the transaction
func (r *UserRepository) WithTx(tx repositories.Transaction) repositories.UserRepository {
	return &UserRepository{
		db:     r.db,
		tx:     asTransaction(tx),
		logger: r.logger,
	}
}
