package mock

import (
	"context"
	"sort"
	"sync"

	"github.com/linq/waitlist/src/models"
	"github.com/linq/waitlist/src/repositories"
)

// SubscriberRepository is an in-memory implementation of repositories.SubscriberRepository
type SubscriberRepository struct {
	// Function stubs that can be overridden in tests
	CreateFunc func(ctx context.Context, subscriber *models.Subscriber) error
	ListFunc   func(ctx context.Context) ([]models.Subscriber, error)

	mu          sync.Mutex
	subscribers map[string]models.Subscriber
}

// NewSubscriberRepository creates a new in-memory subscriber repository
func NewSubscriberRepository() *SubscriberRepository {
	return &SubscriberRepository{
		subscribers: make(map[string]models.Subscriber),
	}
}

func (m *SubscriberRepository) Create(ctx context.Context, subscriber *models.Subscriber) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, subscriber)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subscribers[subscriber.Email]; ok {
		return repositories.ErrDuplicate
	}
	m.subscribers[subscriber.Email] = *subscriber
	return nil
}

func (m *SubscriberRepository) GetByEmail(ctx context.Context, email string) (*models.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subscriber, ok := m.subscribers[email]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &subscriber, nil
}

func (m *SubscriberRepository) List(ctx context.Context) ([]models.Subscriber, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]models.Subscriber, 0, len(m.subscribers))
	for _, s := range m.subscribers {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// Ensure SubscriberRepository implements the interface
var _ repositories.SubscriberRepository = (*SubscriberRepository)(nil)
