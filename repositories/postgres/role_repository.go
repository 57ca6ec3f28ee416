package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/upb/tenantchat/backend/repositories"
	"go.uber.org/zap"
)

// RoleRepository implements the repositories.RoleRepository interface
type RoleRepository struct {
	db     *DB
	tx     *Transaction
	logger *zap.Logger
}

// NewRoleRepository creates a new role repository
func NewRoleRepository(db *DB, logger *zap.Logger) repositories.RoleRepository {
	return &RoleRepository{
		db:     db,
		logger: logger,
	}
}

// AssignRoleToUser grants the named role to the user
func (r *RoleRepository) AssignRoleToUser(ctx context.Context, userID uuid.UUID, role string) error {
	query := `
		INSERT INTO user_roles (user_id, role_id)
		SELECT $1, id FROM roles WHERE name = $2
		ON CONFLICT (user_id, role_id) DO NOTHING
	`

	executor := boundExecutor(ctx, r.db, r.tx)
	result, err := executor.ExecContext(ctx, query, userID, role)
	if err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		r.logger.Debug("role not assigned",
			zap.String("user_id", userID.String()),
			zap.String("role", role))
	}
	return nil
}

// ListRoleNamesForUser returns the user's role names in name order
func (r *RoleRepository) ListRoleNamesForUser(ctx context.Context, userID uuid.UUID) ([]string, error) {
	query := `
		SELECT ro.name
		FROM user_roles ur
		JOIN roles ro ON ro.id = ur.role_id
		WHERE ur.user_id = $1
		ORDER BY ro.name
	`

	executor := boundExecutor(ctx, r.db, r.tx)
	rows, err := executor.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	roles := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating roles: %w", err)
	}

	return roles, nil
}

// WithTx returns a new repository instance bound to the transaction
func (r *RoleRepository) WithTx(tx repositories.Transaction) repositories.RoleRepository {
	return &RoleRepository{
		db:     r.db,
		tx:     asTransaction(tx),
		logger: r.logger,
	}
}
