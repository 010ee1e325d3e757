package repositories

import (
	"context"
	"errors"

	"github.com/linq/waitlist/src/models"
)

var (
	// ErrNotFound is returned when the requested record does not exist
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when a unique key is already taken
	ErrDuplicate = errors.New("duplicate record")
)

// AccountMutation edits an account in place inside a store transaction.
// Returning an error aborts the update and nothing is written.
type AccountMutation func(account *models.AdminAccount) error

// AccountStore owns persisted AdminAccount records, one per username.
// Update must apply the mutation atomically relative to any other
// concurrent Update of the same username.
type AccountStore interface {
	Get(ctx context.Context, username string) (*models.AdminAccount, error)
	Create(ctx context.Context, account *models.AdminAccount) (bool, error)
	Update(ctx context.Context, username string, mutate AccountMutation) (*models.AdminAccount, error)
	Ping(ctx context.Context) error
}

// SubscriberRepository defines the interface for waitlist data access
type SubscriberRepository interface {
	Create(ctx context.Context, subscriber *models.Subscriber) error
	GetByEmail(ctx context.Context, email string) (*models.Subscriber, error)
	List(ctx context.Context) ([]models.Subscriber, error)
}
