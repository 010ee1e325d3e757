package services

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/posthog/posthog-go"
	"github.com/rs/zerolog/log"
)

// HashEmail returns a hex-encoded SHA-256 hash of the email for use as PostHog distinct ID
func HashEmail(email string) string {
	h := sha256.Sum256([]byte(email))
	return fmt.Sprintf("%x", h)
}

// AnalyticsService handles product analytics tracking
type AnalyticsService struct {
	client      posthog.Client
	enabled     bool
	environment string
}

type posthogLogger struct{}

func (l posthogLogger) Success(m posthog.APIMessage) {
	log.Debug().Str("type", fmt.Sprintf("%T", m)).Msg("PostHog event delivered")
}

func (l posthogLogger) Failure(m posthog.APIMessage, err error) {
	log.Error().Err(err).Str("type", fmt.Sprintf("%T", m)).Msg("PostHog delivery failed")
}

// AnalyticsConfig holds analytics configuration
type AnalyticsConfig struct {
	PostHogAPIKey string
	PostHogHost   string
	Enabled       bool
	Environment   string
}

// NewAnalyticsService creates a new analytics service.
// A disabled or unconfigured service accepts every call and sends nothing.
func NewAnalyticsService(cfg AnalyticsConfig) (*AnalyticsService, error) {
	if !cfg.Enabled || cfg.PostHogAPIKey == "" {
		return &AnalyticsService{enabled: false}, nil
	}

	client, err := posthog.NewWithConfig(
		cfg.PostHogAPIKey,
		posthog.Config{
			Endpoint:  cfg.PostHogHost,
			Interval:  30 * time.Second,
			BatchSize: 100,
			Callback:  posthogLogger{},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostHog client: %w", err)
	}

	env := cfg.Environment
	if env == "" {
		env = "production"
	}

	return &AnalyticsService{
		client:      client,
		enabled:     true,
		environment: env,
	}, nil
}

// Enabled reports whether events are actually sent
func (s *AnalyticsService) Enabled() bool {
	return s.enabled
}

// Close flushes pending events and closes client
func (s *AnalyticsService) Close() error {
	if !s.enabled {
		return nil
	}
	return s.client.Close()
}

// TrackEvent captures a generic event
func (s *AnalyticsService) TrackEvent(ctx context.Context, distinctID, event string, properties map[string]interface{}) {
	if !s.enabled {
		return
	}

	if properties == nil {
		properties = make(map[string]interface{})
	}
	properties["timestamp"] = time.Now().Unix()
	properties["environment"] = s.environment

	if err := s.client.Enqueue(posthog.Capture{
		DistinctId: distinctID,
		Event:      event,
		Properties: properties,
	}); err != nil {
		log.Error().Err(err).Str("event", event).Msg("PostHog enqueue failed")
	}
}

// TrackWaitlistSignup tracks a new waitlist subscriber
func (s *AnalyticsService) TrackWaitlistSignup(ctx context.Context, emailHash string) {
	s.TrackEvent(ctx, "email_"+emailHash, "waitlist_signup", nil)
}

// TrackAdminLogin tracks a successful admin login
func (s *AnalyticsService) TrackAdminLogin(ctx context.Context, username string) {
	s.TrackEvent(ctx, "admin_"+username, "admin_login", nil)
}

// NotifyLockout tracks an admin lockout; it satisfies LockoutNotifier
func (s *AnalyticsService) NotifyLockout(ctx context.Context, username string, lockedUntil time.Time) {
	s.TrackEvent(ctx, "admin_"+username, "admin_locked_out", map[string]interface{}{
		"locked_until": lockedUntil.Unix(),
	})
}
