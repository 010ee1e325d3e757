package redis

import (
	"context"
	"errors"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/linq/waitlist/src/models"
	"github.com/linq/waitlist/src/repositories"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient connects to TEST_REDIS_URL and flushes that database.
// Point it at a scratch database.
func newTestClient(t *testing.T) *goredis.Client {
	t.Helper()

	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Connect(ctx, url)
	if err != nil {
		t.Skipf("Could not connect to test redis: %v", err)
	}
	require.NoError(t, client.FlushDB(ctx).Err())

	t.Cleanup(func() {
		_ = client.FlushDB(context.Background()).Err()
		_ = client.Close()
	})
	return client
}

func TestEncodeDecodeAccount_NilTimes(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in := &models.AdminAccount{
		Username:            "admin",
		PasswordHash:        "hash",
		FailedLoginAttempts: 3,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	data := map[string]string{}
	for k, v := range encodeAccount(in) {
		switch val := v.(type) {
		case string:
			data[k] = val
		case int:
			data[k] = strconv.Itoa(val)
		}
	}

	out, err := decodeAccount(data)
	require.NoError(t, err)
	assert.Equal(t, 3, out.FailedLoginAttempts)
	assert.Nil(t, out.LockedUntil)
	assert.Nil(t, out.LastLogin)
	assert.True(t, now.Equal(out.CreatedAt))
}

func TestDecodeAccount_BadCounter(t *testing.T) {
	_, err := decodeAccount(map[string]string{"username": "admin", "failed_login_attempts": "x"})
	assert.Error(t, err)
}

func TestAccountStore_CreateGetUpdate(t *testing.T) {
	client := newTestClient(t)
	store := NewAccountStore(client)
	ctx := context.Background()

	now := time.Now().UTC()
	created, err := store.Create(ctx, &models.AdminAccount{Username: "admin", PasswordHash: "hash", CreatedAt: now, UpdatedAt: now})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.Create(ctx, &models.AdminAccount{Username: "admin", PasswordHash: "other"})
	require.NoError(t, err)
	assert.False(t, created)

	until := now.Add(15 * time.Minute)
	updated, err := store.Update(ctx, "admin", func(a *models.AdminAccount) error {
		a.FailedLoginAttempts = 5
		a.LockedUntil = &until
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 5, updated.FailedLoginAttempts)

	got, err := store.Get(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, "hash", got.PasswordHash)
	require.NotNil(t, got.LockedUntil)
	assert.True(t, until.Equal(*got.LockedUntil))
}

func TestAccountStore_UpdateMissingAndAborted(t *testing.T) {
	client := newTestClient(t)
	store := NewAccountStore(client)
	ctx := context.Background()

	_, err := store.Update(ctx, "nobody", func(*models.AdminAccount) error { return nil })
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	_, err = store.Create(ctx, &models.AdminAccount{Username: "admin", PasswordHash: "hash"})
	require.NoError(t, err)

	_, err = store.Update(ctx, "admin", func(a *models.AdminAccount) error {
		a.PasswordHash = "changed"
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	got, err := store.Get(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, "hash", got.PasswordHash)
}

func TestAccountStore_ConcurrentIncrements(t *testing.T) {
	client := newTestClient(t)
	store := NewAccountStore(client)
	ctx := context.Background()

	_, err := store.Create(ctx, &models.AdminAccount{Username: "admin", PasswordHash: "hash"})
	require.NoError(t, err)

	// stays within maxTxRetries under contention
	const workers = 5
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Update(ctx, "admin", func(a *models.AdminAccount) error {
				a.FailedLoginAttempts++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, workers, got.FailedLoginAttempts)
}

func TestSubscriberRepository_CreateListDuplicate(t *testing.T) {
	client := newTestClient(t)
	repo := NewSubscriberRepository(client)
	ctx := context.Background()

	older := &models.Subscriber{ID: uuid.New(), Name: "Ada", Email: "ada@example.com", CreatedAt: time.Now().Add(-time.Hour).UTC()}
	newer := &models.Subscriber{ID: uuid.New(), Name: "Bob", Email: "bob@example.com", CreatedAt: time.Now().UTC()}
	require.NoError(t, repo.Create(ctx, older))
	require.NoError(t, repo.Create(ctx, newer))

	assert.ErrorIs(t, repo.Create(ctx, &models.Subscriber{ID: uuid.New(), Email: "ada@example.com"}), repositories.ErrDuplicate)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "bob@example.com", list[0].Email)
	assert.Equal(t, "ada@example.com", list[1].Email)

	_, err = repo.GetByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestSubscriberRepository_ConcurrentCreateSameEmail(t *testing.T) {
	client := newTestClient(t)
	repo := NewSubscriberRepository(client)
	ctx := context.Background()

	const workers = 5
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		created    int
		duplicates int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Create(ctx, &models.Subscriber{ID: uuid.New(), Name: "Ada", Email: "ada@example.com", CreatedAt: time.Now().UTC()})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, repositories.ErrDuplicate):
				duplicates++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, workers-1, duplicates)

	// the stored record and its index entry are written together
	members, err := client.ZRange(ctx, subscriberIndexKey, 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"ada@example.com"}, members)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
