package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/linq/waitlist/src/models"
	"github.com/linq/waitlist/src/repositories"
	goredis "github.com/redis/go-redis/v9"
)

const (
	accountKeyPrefix = "waitlist:admin:"

	// maxTxRetries bounds optimistic retries when a watched key changes
	maxTxRetries = 10
)

// AccountStore keeps each admin account in a Redis hash
type AccountStore struct {
	client *goredis.Client
}

// NewAccountStore creates an account store backed by Redis hashes
func NewAccountStore(client *goredis.Client) *AccountStore {
	return &AccountStore{client: client}
}

func accountKey(username string) string {
	return accountKeyPrefix + username
}

// Ping checks the server is reachable
func (s *AccountStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Get returns the account for username or repositories.ErrNotFound
func (s *AccountStore) Get(ctx context.Context, username string) (*models.AdminAccount, error) {
	data, err := s.client.HGetAll(ctx, accountKey(username)).Result()
	if err != nil {
		return nil, fmt.Errorf("get admin account: %w", err)
	}
	if len(data) == 0 {
		return nil, repositories.ErrNotFound
	}
	return decodeAccount(data)
}

// Create writes the account unless the key already exists
func (s *AccountStore) Create(ctx context.Context, account *models.AdminAccount) (bool, error) {
	key := accountKey(account.Username)
	created := false

	txf := func(tx *goredis.Tx) error {
		created = false
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			p.HSet(ctx, key, encodeAccount(account))
			return nil
		})
		if err != nil {
			return err
		}
		created = true
		return nil
	}

	if err := s.watch(ctx, txf, key); err != nil {
		return false, fmt.Errorf("create admin account: %w", err)
	}
	return created, nil
}

// Update reads the hash under WATCH, applies mutate and writes it back in a
// MULTI block. A concurrent write to the key restarts the whole cycle, so
// mutate may run more than once.
func (s *AccountStore) Update(ctx context.Context, username string, mutate repositories.AccountMutation) (*models.AdminAccount, error) {
	key := accountKey(username)
	var (
		updated   *models.AdminAccount
		mutateErr error
	)

	txf := func(tx *goredis.Tx) error {
		data, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if len(data) == 0 {
			mutateErr = repositories.ErrNotFound
			return mutateErr
		}
		account, err := decodeAccount(data)
		if err != nil {
			return err
		}
		if err := mutate(account); err != nil {
			mutateErr = err
			return err
		}
		account.Username = username

		_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			p.HSet(ctx, key, encodeAccount(account))
			return nil
		})
		if err != nil {
			return err
		}
		updated = account
		return nil
	}

	if err := s.watch(ctx, txf, key); err != nil {
		if mutateErr != nil && errors.Is(err, mutateErr) {
			return nil, mutateErr
		}
		return nil, fmt.Errorf("update admin account: %w", err)
	}
	return updated, nil
}

func (s *AccountStore) watch(ctx context.Context, txf func(*goredis.Tx) error, key string) error {
	return watchWithRetry(ctx, s.client, txf, key)
}

// watchWithRetry runs txf under WATCH, restarting it when a watched key
// changes, up to maxTxRetries times
func watchWithRetry(ctx context.Context, client *goredis.Client, txf func(*goredis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := client.Watch(ctx, txf, keys...)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		return err
	}
	return goredis.TxFailedErr
}

func encodeAccount(a *models.AdminAccount) map[string]interface{} {
	return map[string]interface{}{
		"username":              a.Username,
		"password_hash":         a.PasswordHash,
		"failed_login_attempts": a.FailedLoginAttempts,
		"locked_until":          formatTime(a.LockedUntil),
		"last_login":            formatTime(a.LastLogin),
		"created_at":            a.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":            a.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func decodeAccount(data map[string]string) (*models.AdminAccount, error) {
	a := &models.AdminAccount{
		Username:     data["username"],
		PasswordHash: data["password_hash"],
	}

	var err error
	if raw := data["failed_login_attempts"]; raw != "" {
		if a.FailedLoginAttempts, err = strconv.Atoi(raw); err != nil {
			return nil, fmt.Errorf("decode failed_login_attempts: %w", err)
		}
	}
	if a.LockedUntil, err = parseTime(data["locked_until"]); err != nil {
		return nil, fmt.Errorf("decode locked_until: %w", err)
	}
	if a.LastLogin, err = parseTime(data["last_login"]); err != nil {
		return nil, fmt.Errorf("decode last_login: %w", err)
	}
	if t, err := parseTime(data["created_at"]); err != nil {
		return nil, fmt.Errorf("decode created_at: %w", err)
	} else if t != nil {
		a.CreatedAt = *t
	}
	if t, err := parseTime(data["updated_at"]); err != nil {
		return nil, fmt.Errorf("decode updated_at: %w", err)
	} else if t != nil {
		a.UpdatedAt = *t
	}
	return a, nil
}

// formatTime stores a nil time as the empty string
func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

var _ repositories.AccountStore = (*AccountStore)(nil)
