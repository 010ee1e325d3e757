package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/linq/waitlist/src/models"
	"github.com/linq/waitlist/src/repositories"
	goredis "github.com/redis/go-redis/v9"
)

const (
	subscriberKeyPrefix = "waitlist:subscriber:"
	subscriberIndexKey  = "waitlist:subscribers"
)

// SubscriberRepository stores each subscriber as a JSON string keyed by
// email, plus a sorted set ordered by signup time.
type SubscriberRepository struct {
	client *goredis.Client
}

// NewSubscriberRepository creates a Redis-backed subscriber repository
func NewSubscriberRepository(client *goredis.Client) *SubscriberRepository {
	return &SubscriberRepository{client: client}
}

// Create writes the subscriber and its index entry in one MULTI block,
// returning repositories.ErrDuplicate when the email is already on the list
func (r *SubscriberRepository) Create(ctx context.Context, subscriber *models.Subscriber) error {
	payload, err := json.Marshal(subscriber)
	if err != nil {
		return fmt.Errorf("encode subscriber: %w", err)
	}

	key := subscriberKeyPrefix + subscriber.Email
	txf := func(tx *goredis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return repositories.ErrDuplicate
		}

		_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			p.Set(ctx, key, payload, 0)
			p.ZAdd(ctx, subscriberIndexKey, goredis.Z{
				Score:  float64(subscriber.CreatedAt.UnixNano()),
				Member: subscriber.Email,
			})
			return nil
		})
		return err
	}

	if err := watchWithRetry(ctx, r.client, txf, key); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return repositories.ErrDuplicate
		}
		return fmt.Errorf("create subscriber: %w", err)
	}
	return nil
}

// GetByEmail returns the subscriber with the given email
func (r *SubscriberRepository) GetByEmail(ctx context.Context, email string) (*models.Subscriber, error) {
	raw, err := r.client.Get(ctx, subscriberKeyPrefix+email).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("get subscriber: %w", err)
	}

	var s models.Subscriber
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode subscriber: %w", err)
	}
	return &s, nil
}

// List returns every subscriber, newest first
func (r *SubscriberRepository) List(ctx context.Context) ([]models.Subscriber, error) {
	emails, err := r.client.ZRevRange(ctx, subscriberIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}

	subscribers := make([]models.Subscriber, 0, len(emails))
	if len(emails) == 0 {
		return subscribers, nil
	}

	keys := make([]string, len(emails))
	for i, email := range emails {
		keys[i] = subscriberKeyPrefix + email
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load subscribers: %w", err)
	}
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var s models.Subscriber
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return nil, fmt.Errorf("decode subscriber: %w", err)
		}
		subscribers = append(subscribers, s)
	}
	return subscribers, nil
}

var _ repositories.SubscriberRepository = (*SubscriberRepository)(nil)
