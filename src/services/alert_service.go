package services

import (
	"context"
	"fmt"
	"time"

	"github.com/linq/waitlist/src/logging"
	"github.com/linq/waitlist/src/templates"
	"github.com/mailgun/mailgun-go/v4"
	"github.com/rs/zerolog"
)

// alertSender is the part of the Mailgun client used for alerts
type alertSender interface {
	NewMessage(from, subject, text string, to ...string) *mailgun.Message
	Send(ctx context.Context, m *mailgun.Message) (string, string, error)
}

// AlertService emails an operator when an admin account gets locked
type AlertService struct {
	mg        alertSender
	fromEmail string
	fromName  string
	to        string
	logger    zerolog.Logger
}

// NewAlertService creates a Mailgun-backed alert service
func NewAlertService(domain, apiKey, fromEmail, fromName, to string) *AlertService {
	mg := mailgun.NewMailgun(domain, apiKey)
	mg.SetAPIBase(mailgun.APIBaseEU)

	return &AlertService{
		mg:        mg,
		fromEmail: fromEmail,
		fromName:  fromName,
		to:        to,
		logger:    logging.NewLogger("alert_service"),
	}
}

// NotifyLockout sends the lockout alert in the background so the login
// request is not held up by Mailgun.
func (s *AlertService) NotifyLockout(ctx context.Context, username string, lockedUntil time.Time) {
	go func() {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := s.SendLockoutAlert(sendCtx, username, lockedUntil); err != nil {
			s.logger.Error().Err(err).Str("username", username).Msg("failed to send lockout alert")
		}
	}()
}

// SendLockoutAlert emails the operator about a locked admin account
func (s *AlertService) SendLockoutAlert(ctx context.Context, username string, lockedUntil time.Time) error {
	alert, err := templates.RenderLockoutAlert(username, lockedUntil)
	if err != nil {
		return fmt.Errorf("failed to render lockout alert: %w", err)
	}

	message := s.mg.NewMessage(
		fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail),
		alert.Subject,
		alert.Text,
		s.to,
	)
	message.SetHtml(alert.HTML)

	if _, _, err := s.mg.Send(ctx, message); err != nil {
		return fmt.Errorf("failed to send lockout alert to %s: %w", s.to, err)
	}
	return nil
}

// LockoutNotifiers fans a lockout out to several notifiers
type LockoutNotifiers []LockoutNotifier

func (n LockoutNotifiers) NotifyLockout(ctx context.Context, username string, lockedUntil time.Time) {
	for _, notifier := range n {
		notifier.NotifyLockout(ctx, username, lockedUntil)
	}
}
