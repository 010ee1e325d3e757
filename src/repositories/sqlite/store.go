// Package sqlite stores admin accounts and subscribers in a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/linq/waitlist/src/models"
	"github.com/linq/waitlist/src/repositories"
	modsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Store is a SQLite-backed AccountStore and SubscriberRepository
type Store struct {
	db *sqlx.DB
}

// NewStore opens (or creates) the database at path. Pass an empty path for
// an in-memory database.
func NewStore(path string) (*Store, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// one connection serializes writers, which is what makes Update atomic
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS admin_accounts (
			username TEXT PRIMARY KEY,
			password_hash TEXT NOT NULL,
			failed_login_attempts INTEGER NOT NULL DEFAULT 0,
			locked_until DATETIME,
			last_login DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS subscribers (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT UNIQUE NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_subscribers_created_at ON subscribers(created_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(m), err)
		}
	}
	return nil
}

func firstLine(q string) string {
	if i := strings.IndexByte(q, '\n'); i >= 0 {
		return q[:i]
	}
	return q
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const accountColumns = `username, password_hash, failed_login_attempts, locked_until, last_login, created_at, updated_at`

// Get returns the account for username or repositories.ErrNotFound
func (s *Store) Get(ctx context.Context, username string) (*models.AdminAccount, error) {
	var account models.AdminAccount
	err := s.db.GetContext(ctx, &account,
		"SELECT "+accountColumns+" FROM admin_accounts WHERE username = ?", username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("get admin account: %w", err)
	}
	return &account, nil
}

// Create inserts the account unless one with the same username exists
func (s *Store) Create(ctx context.Context, account *models.AdminAccount) (bool, error) {
	const q = `INSERT INTO admin_accounts
		(username, password_hash, failed_login_attempts, locked_until, last_login, created_at, updated_at)
		VALUES
		(:username, :password_hash, :failed_login_attempts, :locked_until, :last_login, :created_at, :updated_at)
		ON CONFLICT(username) DO NOTHING`

	result, err := s.db.NamedExecContext(ctx, q, utcAccount(*account))
	if err != nil {
		return false, fmt.Errorf("insert admin account: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert admin account rows affected: %w", err)
	}
	return n == 1, nil
}

// Update applies mutate to the stored account inside one transaction
func (s *Store) Update(ctx context.Context, username string, mutate repositories.AccountMutation) (*models.AdminAccount, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var account models.AdminAccount
	err = tx.GetContext(ctx, &account,
		"SELECT "+accountColumns+" FROM admin_accounts WHERE username = ?", username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("get admin account: %w", err)
	}

	if err := mutate(&account); err != nil {
		return nil, err
	}
	account.Username = username
	account = utcAccount(account)

	_, err = tx.NamedExecContext(ctx, `UPDATE admin_accounts SET
			password_hash = :password_hash,
			failed_login_attempts = :failed_login_attempts,
			locked_until = :locked_until,
			last_login = :last_login,
			updated_at = :updated_at
		WHERE username = :username`, account)
	if err != nil {
		return nil, fmt.Errorf("update admin account: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit admin account: %w", err)
	}
	return &account, nil
}

// utcAccount normalizes timestamps so they round-trip through SQLite text columns
func utcAccount(a models.AdminAccount) models.AdminAccount {
	a.LockedUntil = utcPtr(a.LockedUntil)
	a.LastLogin = utcPtr(a.LastLogin)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// ---------------------------------------------------------------------------
// Subscribers
// ---------------------------------------------------------------------------

// SubscriberRepository exposes the subscriber half of the store
func (s *Store) SubscriberRepository() repositories.SubscriberRepository {
	return subscriberRepository{db: s.db}
}

type subscriberRepository struct {
	db *sqlx.DB
}

func (r subscriberRepository) Create(ctx context.Context, subscriber *models.Subscriber) error {
	subscriber.CreatedAt = subscriber.CreatedAt.UTC()
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO subscribers (id, name, email, created_at) VALUES (:id, :name, :email, :created_at)`,
		subscriber)
	if err != nil {
		if isUniqueViolation(err) {
			return repositories.ErrDuplicate
		}
		return fmt.Errorf("insert subscriber: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *modsqlite.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

func (r subscriberRepository) GetByEmail(ctx context.Context, email string) (*models.Subscriber, error) {
	var subscriber models.Subscriber
	err := r.db.GetContext(ctx, &subscriber,
		"SELECT id, name, email, created_at FROM subscribers WHERE email = ?", email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("get subscriber: %w", err)
	}
	return &subscriber, nil
}

func (r subscriberRepository) List(ctx context.Context) ([]models.Subscriber, error) {
	subscribers := []models.Subscriber{}
	err := r.db.SelectContext(ctx, &subscribers,
		"SELECT id, name, email, created_at FROM subscribers ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	return subscribers, nil
}

var (
	_ repositories.AccountStore         = (*Store)(nil)
	_ repositories.SubscriberRepository = subscriberRepository{}
)
