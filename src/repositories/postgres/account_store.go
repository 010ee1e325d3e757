// Package postgres implements the account and subscriber stores on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/linq/waitlist/src/models"
	"github.com/linq/waitlist/src/repositories"
)

const accountColumns = `username, password_hash, failed_login_attempts, locked_until, last_login, created_at, updated_at`

// AccountStore persists admin accounts in the admin_accounts table
type AccountStore struct {
	pool *pgxpool.Pool
}

// NewAccountStore creates a new account store
func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

// Ping checks the database is reachable
func (s *AccountStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Get returns the account for username or repositories.ErrNotFound
func (s *AccountStore) Get(ctx context.Context, username string) (*models.AdminAccount, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+accountColumns+" FROM admin_accounts WHERE username = $1", username)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get admin account: %w", err)
	}
	return account, nil
}

// Create inserts the account unless one with the same username exists
func (s *AccountStore) Create(ctx context.Context, account *models.AdminAccount) (bool, error) {
	result, err := s.pool.Exec(ctx, `
		INSERT INTO admin_accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (username) DO NOTHING
	`, account.Username, account.PasswordHash, account.FailedLoginAttempts,
		account.LockedUntil, account.LastLogin, account.CreatedAt, account.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to create admin account: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// Update locks the row with SELECT ... FOR UPDATE, applies mutate and writes
// the result back in the same transaction.
func (s *AccountStore) Update(ctx context.Context, username string, mutate repositories.AccountMutation) (*models.AdminAccount, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, "SELECT "+accountColumns+" FROM admin_accounts WHERE username = $1 FOR UPDATE", username)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock admin account: %w", err)
	}

	if err := mutate(account); err != nil {
		return nil, err
	}
	account.Username = username

	_, err = tx.Exec(ctx, `
		UPDATE admin_accounts
		SET password_hash = $2,
			failed_login_attempts = $3,
			locked_until = $4,
			last_login = $5,
			updated_at = $6
		WHERE username = $1
	`, account.Username, account.PasswordHash, account.FailedLoginAttempts,
		account.LockedUntil, account.LastLogin, account.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update admin account: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return account, nil
}

func scanAccount(row pgx.Row) (*models.AdminAccount, error) {
	var a models.AdminAccount
	err := row.Scan(&a.Username, &a.PasswordHash, &a.FailedLoginAttempts,
		&a.LockedUntil, &a.LastLogin, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

var _ repositories.AccountStore = (*AccountStore)(nil)
