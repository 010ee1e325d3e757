package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/linq/waitlist/src/logging"
	"github.com/linq/waitlist/src/models"
	"github.com/linq/waitlist/src/repositories"
	"github.com/rs/zerolog"
)

const syncTimeout = 30 * time.Second

// SubscriberSyncer pushes new signups to an external mailing list
type SubscriberSyncer interface {
	AddSubscriber(ctx context.Context, email, name string) error
}

// SubscriberService handles waitlist signups
type SubscriberService struct {
	repo      repositories.SubscriberRepository
	syncer    SubscriberSyncer
	analytics *AnalyticsService
	now       func() time.Time
	logger    zerolog.Logger
}

// SubscriberStats are the counters shown on the admin page
type SubscriberStats struct {
	Total    int `json:"total"`
	NewToday int `json:"new_today"`
}

// NewSubscriberService creates a new subscriber service.
// syncer and analytics may be nil.
func NewSubscriberService(repo repositories.SubscriberRepository, syncer SubscriberSyncer, analytics *AnalyticsService) *SubscriberService {
	return &SubscriberService{
		repo:      repo,
		syncer:    syncer,
		analytics: analytics,
		now:       time.Now,
		logger:    logging.NewLogger("subscriber_service"),
	}
}

// NormalizeEmail trims and lower-cases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Subscribe adds a new signup to the waitlist
func (s *SubscriberService) Subscribe(ctx context.Context, name, email string) (*models.Subscriber, error) {
	subscriber := &models.Subscriber{
		ID:        uuid.New(),
		Name:      strings.TrimSpace(name),
		Email:     NormalizeEmail(email),
		CreatedAt: s.now().UTC(),
	}

	if _, err := s.repo.GetByEmail(ctx, subscriber.Email); err == nil {
		return nil, ErrEmailAlreadyRegistered
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, storeError("get subscriber", err)
	}

	if err := s.repo.Create(ctx, subscriber); err != nil {
		// lost a race with a concurrent signup for the same address
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, ErrEmailAlreadyRegistered
		}
		s.logger.Error().Err(err).Msg("failed to store subscriber")
		return nil, storeError("create subscriber", err)
	}

	s.logger.Info().Str("subscriber_id", subscriber.ID.String()).Msg("new waitlist signup")

	if s.syncer != nil {
		s.syncInBackground(ctx, *subscriber)
	}
	if s.analytics != nil {
		s.analytics.TrackWaitlistSignup(ctx, HashEmail(subscriber.Email))
	}

	return subscriber, nil
}

// syncInBackground pushes the signup to the mailing list without holding up
// the request. The sync outlives ctx cancellation but not syncTimeout.
func (s *SubscriberService) syncInBackground(ctx context.Context, subscriber models.Subscriber) {
	go func() {
		syncCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), syncTimeout)
		defer cancel()
		if err := s.syncer.AddSubscriber(syncCtx, subscriber.Email, subscriber.Name); err != nil {
			s.logger.Warn().Err(err).Str("subscriber_id", subscriber.ID.String()).Msg("mailing list sync failed")
		}
	}()
}

// List returns every subscriber, newest first
func (s *SubscriberService) List(ctx context.Context) ([]models.Subscriber, error) {
	subscribers, err := s.repo.List(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list subscribers")
		return nil, storeError("list subscribers", err)
	}
	return subscribers, nil
}

// Stats counts the subscribers and how many signed up today (UTC)
func (s *SubscriberService) Stats(subscribers []models.Subscriber) SubscriberStats {
	y, m, d := s.now().UTC().Date()
	stats := SubscriberStats{Total: len(subscribers)}
	for _, sub := range subscribers {
		sy, sm, sd := sub.CreatedAt.UTC().Date()
		if sy == y && sm == m && sd == d {
			stats.NewToday++
		}
	}
	return stats
}
