package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/linq/waitlist/src/database"
	"github.com/linq/waitlist/src/models"
	"github.com/linq/waitlist/src/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAccount(username string) *models.AdminAccount {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.AdminAccount{
		Username:     username,
		PasswordHash: "hash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestAccountStore_CreateIsIdempotent(t *testing.T) {
	database.WithTestDB(t, func(tdb *database.TestDB) {
		store := NewAccountStore(tdb.Pool)
		ctx := context.Background()

		created, err := store.Create(ctx, newAccount("admin"))
		require.NoError(t, err)
		assert.True(t, created)

		again := newAccount("admin")
		again.PasswordHash = "other"
		created, err = store.Create(ctx, again)
		require.NoError(t, err)
		assert.False(t, created)

		got, err := store.Get(ctx, "admin")
		require.NoError(t, err)
		assert.Equal(t, "hash", got.PasswordHash)
	})
}

func TestAccountStore_GetMissing(t *testing.T) {
	database.WithTestDB(t, func(tdb *database.TestDB) {
		store := NewAccountStore(tdb.Pool)

		_, err := store.Get(context.Background(), "nobody")
		assert.ErrorIs(t, err, repositories.ErrNotFound)

		_, err = store.Update(context.Background(), "nobody", func(*models.AdminAccount) error { return nil })
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})
}

func TestAccountStore_UpdatePersistsLockout(t *testing.T) {
	database.WithTestDB(t, func(tdb *database.TestDB) {
		store := NewAccountStore(tdb.Pool)
		ctx := context.Background()
		require.NoError(t, tdb.CreateTestAdmin("admin", "hash"))

		until := time.Now().Add(15 * time.Minute).UTC().Truncate(time.Microsecond)
		_, err := store.Update(ctx, "admin", func(a *models.AdminAccount) error {
			a.FailedLoginAttempts = 5
			a.LockedUntil = &until
			return nil
		})
		require.NoError(t, err)

		got, err := store.Get(ctx, "admin")
		require.NoError(t, err)
		assert.Equal(t, 5, got.FailedLoginAttempts)
		require.NotNil(t, got.LockedUntil)
		assert.True(t, until.Equal(*got.LockedUntil))
	})
}

func TestAccountStore_ConcurrentUpdatesDoNotLoseIncrements(t *testing.T) {
	database.WithTestDB(t, func(tdb *database.TestDB) {
		store := NewAccountStore(tdb.Pool)
		ctx := context.Background()
		_, err := store.Create(ctx, newAccount("admin"))
		require.NoError(t, err)

		const workers = 20
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
	})
}

func TestSubscriberRepository_DuplicateEmail(t *testing.T) {
	database.WithTestDB(t, func(tdb *database.TestDB) {
		repo := NewSubscriberRepository(tdb.Pool)
		ctx := context.Background()

		first := &models.Subscriber{ID: uuid.New(), Name: "Ada", Email: "ada@example.com", CreatedAt: time.Now()}
		require.NoError(t, repo.Create(ctx, first))

		dup := &models.Subscriber{ID: uuid.New(), Name: "Ada", Email: "ada@example.com", CreatedAt: time.Now()}
		assert.ErrorIs(t, repo.Create(ctx, dup), repositories.ErrDuplicate)

		got, err := repo.GetByEmail(ctx, "ada@example.com")
		require.NoError(t, err)
		assert.Equal(t, first.ID, got.ID)

		list, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})
}
