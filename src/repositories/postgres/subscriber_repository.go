package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/linq/waitlist/src/models"
	"github.com/linq/waitlist/src/repositories"
)

// uniqueViolation is the SQLSTATE for a unique constraint failure
const uniqueViolation = "23505"

// SubscriberRepository persists waitlist signups
type SubscriberRepository struct {
	pool *pgxpool.Pool
}

// NewSubscriberRepository creates a new subscriber repository
func NewSubscriberRepository(pool *pgxpool.Pool) *SubscriberRepository {
	return &SubscriberRepository{pool: pool}
}

// Create inserts a subscriber, returning repositories.ErrDuplicate when the
// email is already on the list
func (r *SubscriberRepository) Create(ctx context.Context, subscriber *models.Subscriber) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO subscribers (id, name, email, created_at)
		VALUES ($1, $2, $3, $4)
	`, subscriber.ID, subscriber.Name, subscriber.Email, subscriber.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return repositories.ErrDuplicate
		}
		return fmt.Errorf("failed to create subscriber: %w", err)
	}
	return nil
}

// GetByEmail returns the subscriber with the given email
func (r *SubscriberRepository) GetByEmail(ctx context.Context, email string) (*models.Subscriber, error) {
	var s models.Subscriber
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, email, created_at FROM subscribers WHERE email = $1`, email,
	).Scan(&s.ID, &s.Name, &s.Email, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get subscriber: %w", err)
	}
	return &s, nil
}

// List returns every subscriber, newest first
func (r *SubscriberRepository) List(ctx context.Context) ([]models.Subscriber, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, email, created_at FROM subscribers ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}
	defer rows.Close()

	subscribers := []models.Subscriber{}
	for rows.Next() {
		var s models.Subscriber
		if err := rows.Scan(&s.ID, &s.Name, &s.Email, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan subscriber: %w", err)
		}
		subscribers = append(subscribers, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate subscribers: %w", err)
	}
	return subscribers, nil
}

var _ repositories.SubscriberRepository = (*SubscriberRepository)(nil)
