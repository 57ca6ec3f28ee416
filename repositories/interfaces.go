package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/upb/tenantchat/backend/models"
)

// ErrNotFound is returned by lookups that match no row
var ErrNotFound = errors.New("record not found")

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction. The returned transaction's Context
	// carries the transaction so repositories join it.
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// UserRepository handles users and their external identity links
type UserRepository interface {
	// GetByExternalIdentity returns the user linked to (issuer, subject) or ErrNotFound
	GetByExternalIdentity(ctx context.Context, issuer, subject string) (*models.User, error)

	// GetByID retrieves a user by ID or ErrNotFound
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// CreateUser inserts a new user
	CreateUser(ctx context.Context, user *models.User) error

	// UpdateProfile overwrites the non-nil fields of update
	UpdateProfile(ctx context.Context, id uuid.UUID, update models.ProfileUpdate) error

	// TouchLastSeen records the time of the latest authenticated request
	TouchLastSeen(ctx context.Context, id uuid.UUID, at time.Time) error

	// LinkExternalIdentity inserts the link. It reports false, without error,
	// when the (issuer, subject) pair is already linked.
	LinkExternalIdentity(ctx context.Context, identity *models.ExternalIdentity) (bool, error)

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) UserRepository
}

// RoleRepository handles role assignments
type RoleRepository interface {
	// AssignRoleToUser grants the named role. Assigning an already held role is a no-op.
	AssignRoleToUser(ctx context.Context, userID uuid.UUID, role string) error

	// ListRoleNamesForUser returns the persisted role names, sorted
	ListRoleNamesForUser(ctx context.Context, userID uuid.UUID) ([]string, error)

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) RoleRepository
}

// AdminCredentialRepository stores the rotated local admin password hash
type AdminCredentialRepository interface {
	// GetPasswordHash returns the stored hash or ErrNotFound
	GetPasswordHash(ctx context.Context, username string) (string, error)

	// SetPasswordHash upserts the hash for username
	SetPasswordHash(ctx context.Context, username, hash string) error
}

// TxRepositories are the repositories available inside a unit of work
type TxRepositories struct {
	Users UserRepository
	Roles RoleRepository
}

// UnitOfWork runs fn atomically. Any error returned by fn rolls back every
// write made through repos.
type UnitOfWork interface {
	Execute(ctx context.Context, fn func(ctx context.Context, repos TxRepositories) error) error
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Users            UserRepository
	Roles            RoleRepository
	AdminCredentials AdminCredentialRepository
}
