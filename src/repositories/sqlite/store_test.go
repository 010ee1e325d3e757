package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/linq/waitlist/src/models"
	"github.com/linq/waitlist/src/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore("") // in-memory
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedAccount(t *testing.T, s *Store) models.AdminAccount {
	t.Helper()
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	account := models.AdminAccount{
		Username:     "admin",
		PasswordHash: "$2a$04$hash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	created, err := s.Create(context.Background(), &account)
	require.NoError(t, err)
	require.True(t, created)
	return account
}

func TestAccountCreateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	seedAccount(t, s)

	again := models.AdminAccount{Username: "admin", PasswordHash: "other", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	created, err := s.Create(context.Background(), &again)
	require.NoError(t, err)
	assert.False(t, created)

	got, err := s.Get(context.Background(), "admin")
	require.NoError(t, err)
	assert.Equal(t, "$2a$04$hash", got.PasswordHash)
	assert.Equal(t, 0, got.FailedLoginAttempts)
	assert.Nil(t, got.LockedUntil)
	assert.Nil(t, got.LastLogin)
}

func TestAccountGetNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	_, err = s.Update(context.Background(), "missing", func(a *models.AdminAccount) error { return nil })
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestAccountUpdateRoundTripsTimestamps(t *testing.T) {
	s := newTestStore(t)
	seedAccount(t, s)
	until := time.Date(2026, 5, 4, 10, 15, 0, 123456789, time.UTC)

	updated, err := s.Update(context.Background(), "admin", func(a *models.AdminAccount) error {
		a.FailedLoginAttempts = 5
		a.LockedUntil = &until
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 5, updated.FailedLoginAttempts)

	got, err := s.Get(context.Background(), "admin")
	require.NoError(t, err)
	assert.Equal(t, 5, got.FailedLoginAttempts)
	require.NotNil(t, got.LockedUntil)
	assert.True(t, got.LockedUntil.Equal(until), "got %v want %v", got.LockedUntil, until)

	_, err = s.Update(context.Background(), "admin", func(a *models.AdminAccount) error {
		a.FailedLoginAttempts = 0
		a.LockedUntil = nil
		return nil
	})
	require.NoError(t, err)

	got, err = s.Get(context.Background(), "admin")
	require.NoError(t, err)
	assert.Nil(t, got.LockedUntil)
}

func TestAccountUpdateAbortsOnMutationError(t *testing.T) {
	s := newTestStore(t)
	seedAccount(t, s)
	boom := errors.New("boom")

	_, err := s.Update(context.Background(), "admin", func(a *models.AdminAccount) error {
		a.PasswordHash = "changed"
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.Get(context.Background(), "admin")
	require.NoError(t, err)
	assert.Equal(t, "$2a$04$hash", got.PasswordHash)
}

func TestAccountConcurrentUpdatesDoNotLoseIncrements(t *testing.T) {
	s := newTestStore(t)
	seedAccount(t, s)
	const workers = 25

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(context.Background(), "admin", func(a *models.AdminAccount) error {
				a.FailedLoginAttempts++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.Get(context.Background(), "admin")
	require.NoError(t, err)
	assert.Equal(t, workers, got.FailedLoginAttempts)
}

func TestStoreOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "waitlist.db")
	s, err := NewStore(path)
	require.NoError(t, err)
	seedAccount(t, s)
	require.NoError(t, s.Close())

	reopened, err := NewStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(context.Background(), "admin")
	require.NoError(t, err)
	assert.Equal(t, "admin", got.Username)
	assert.NoError(t, reopened.Ping(context.Background()))
}

func TestSubscribers(t *testing.T) {
	s := newTestStore(t)
	repo := s.SubscriberRepository()
	ctx := context.Background()
	base := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

	first := &models.Subscriber{ID: uuid.New(), Name: "Ada", Email: "ada@example.com", CreatedAt: base}
	second := &models.Subscriber{ID: uuid.New(), Name: "Grace", Email: "grace@example.com", CreatedAt: base.Add(time.Hour)}
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))

	dup := &models.Subscriber{ID: uuid.New(), Name: "Ada 2", Email: "ada@example.com", CreatedAt: base}
	assert.ErrorIs(t, repo.Create(ctx, dup), repositories.ErrDuplicate)

	got, err := repo.GetByEmail(ctx, "grace@example.com")
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	_, err = repo.GetByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "grace@example.com", list[0].Email)
	assert.Equal(t, "ada@example.com", list[1].Email)
}

func TestSubscriberCreateMapsOnlyEmailConflictToDuplicate(t *testing.T) {
	s := newTestStore(t)
	repo := s.SubscriberRepository()
	ctx := context.Background()
	base := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

	first := &models.Subscriber{ID: uuid.New(), Name: "Ada", Email: "ada@example.com", CreatedAt: base}
	require.NoError(t, repo.Create(ctx, first))

	err := repo.Create(ctx, &models.Subscriber{ID: uuid.New(), Name: "Ada", Email: "ada@example.com", CreatedAt: base})
	assert.ErrorIs(t, err, repositories.ErrDuplicate)

	// a reused id is a primary key conflict, not a repeat signup
	err = repo.Create(ctx, &models.Subscriber{ID: first.ID, Name: "Bob", Email: "bob@example.com", CreatedAt: base})
	require.Error(t, err)
	assert.NotErrorIs(t, err, repositories.ErrDuplicate)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, isUniqueViolation(nil))
	assert.False(t, isUniqueViolation(errors.New("UNIQUE constraint failed: subscribers.email")))
}
