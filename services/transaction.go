package services

import (
	"context"
	"fmt"

	"github.com/upb/tenantchat/backend/repositories"
)

// WithTransaction executes a function within a database transaction.
// Automatically commits on success, rolls back on error or panic.
// fn receives the transaction's context so repositories join the transaction.
func WithTransaction(ctx context.Context, txMgr repositories.TransactionManager, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	tx, err := txMgr.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx.Context(), tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// TxUnitOfWork implements repositories.UnitOfWork on top of a TransactionManager
type TxUnitOfWork struct {
	txMgr repositories.TransactionManager
	users repositories.UserRepository
	roles repositories.RoleRepository
}

// NewUnitOfWork creates a unit of work over the given repositories
func NewUnitOfWork(txMgr repositories.TransactionManager, users repositories.UserRepository, roles repositories.RoleRepository) *TxUnitOfWork {
	return &TxUnitOfWork{
		txMgr: txMgr,
		users: users,
		roles: roles,
	}
}

// Execute runs fn inside one transaction
func (u *TxUnitOfWork) Execute(ctx context.Context, fn func(ctx context.Context, repos repositories.TxRepositories) error) error {
	return WithTransaction(ctx, u.txMgr, func(txCtx context.Context, tx repositories.Transaction) error {
		return fn(txCtx, repositories.TxRepositories{
			Users: u.users.WithTx(tx),
			Roles: u.roles.WithTx(tx),
		})
	})
}
