package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/linq/waitlist/src/logging"
	"github.com/linq/waitlist/src/models"
	"github.com/linq/waitlist/src/repositories"
	"github.com/rs/zerolog"
)

// LockoutNotifier is told when a failed login locks an account
type LockoutNotifier interface {
	NotifyLockout(ctx context.Context, username string, lockedUntil time.Time)
}

// AccountGuard authenticates admin accounts and enforces the failed-login lockout
type AccountGuard struct {
	store    repositories.AccountStore
	hasher   PasswordHasher
	now      func() time.Time
	notifier LockoutNotifier
	logger   zerolog.Logger
}

// AccountGuardOption configures an AccountGuard
type AccountGuardOption func(*AccountGuard)

// WithClock replaces the wall clock (used by tests to control lockout expiry)
func WithClock(now func() time.Time) AccountGuardOption {
	return func(g *AccountGuard) {
		g.now = now
	}
}

// WithLockoutNotifier registers a notifier for newly triggered lockouts
func WithLockoutNotifier(n LockoutNotifier) AccountGuardOption {
	return func(g *AccountGuard) {
		g.notifier = n
	}
}

// NewAccountGuard creates a new account guard
func NewAccountGuard(store repositories.AccountStore, hasher PasswordHasher, opts ...AccountGuardOption) *AccountGuard {
	g := &AccountGuard{
		store:  store,
		hasher: hasher,
		now:    time.Now,
		logger: logging.NewLogger("account_guard"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// VerifyLogin checks a username and password and returns the account on success.
//
// Unknown usernames and wrong passwords both yield ErrInvalidCredentials.
// A locked account yields a *LockoutError without the password being compared
// and without the failure counter moving.
func (g *AccountGuard) VerifyLogin(ctx context.Context, username, password string) (*models.AdminAccount, error) {
	account, err := g.store.Get(ctx, username)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		g.logger.Error().Err(err).Msg("failed to load admin account")
		return nil, storeError("get account", err)
	}

	if account.IsLocked(g.now()) {
		g.logger.Warn().
			Str("username", username).
			Time("locked_until", *account.LockedUntil).
			Msg("login refused: account locked")
		return nil, &LockoutError{LockedUntil: *account.LockedUntil}
	}

	if err := g.hasher.Compare(account.PasswordHash, strings.TrimSpace(password)); err != nil {
		failed, err := g.recordFailure(ctx, username)
		if err != nil {
			return nil, err
		}
		if failed.FailedLoginAttempts >= models.MaxFailedLoginAttempts && failed.LockedUntil != nil {
			return nil, &LockoutError{LockedUntil: *failed.LockedUntil}
		}
		return nil, ErrInvalidCredentials
	}

	return g.recordSuccess(ctx, username)
}

// recordFailure bumps the failure counter and locks the account once the
// threshold is reached. An already active lock is never extended.
func (g *AccountGuard) recordFailure(ctx context.Context, username string) (*models.AdminAccount, error) {
	now := g.now()
	tripped := false

	account, err := g.store.Update(ctx, username, func(a *models.AdminAccount) error {
		// stores may retry the mutation on conflict
		tripped = false
		a.FailedLoginAttempts++
		if a.FailedLoginAttempts >= models.MaxFailedLoginAttempts && !a.IsLocked(now) {
			until := now.Add(models.LockoutWindow)
			a.LockedUntil = &until
			tripped = true
		}
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		g.logger.Error().Err(err).Str("username", username).Msg("failed to record login failure")
		return nil, storeError("record failure", err)
	}

	g.logger.Info().
		Str("username", username).
		Int("failed_attempts", account.FailedLoginAttempts).
		Msg("login failed")

	if tripped {
		g.logger.Warn().
			Str("username", username).
			Time("locked_until", *account.LockedUntil).
			Msg("account locked after repeated failures")
		if g.notifier != nil {
			g.notifier.NotifyLockout(ctx, username, *account.LockedUntil)
		}
	}

	return account, nil
}

// recordSuccess clears the failure counter and any lock and stamps last_login
func (g *AccountGuard) recordSuccess(ctx context.Context, username string) (*models.AdminAccount, error) {
	now := g.now()

	account, err := g.store.Update(ctx, username, func(a *models.AdminAccount) error {
		a.FailedLoginAttempts = 0
		a.LockedUntil = nil
		a.LastLogin = &now
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		g.logger.Error().Err(err).Str("username", username).Msg("failed to record login success")
		return nil, storeError("record success", err)
	}

	g.logger.Info().Str("username", username).Msg("admin logged in")
	return account, nil
}

// ChangePassword replaces the password of an authenticated admin.
// It does not read or modify the lockout fields.
func (g *AccountGuard) ChangePassword(ctx context.Context, username, currentPassword, newPassword string) error {
	account, err := g.store.Get(ctx, username)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrAccountNotFound
		}
		g.logger.Error().Err(err).Msg("failed to load admin account")
		return storeError("get account", err)
	}

	if err := g.hasher.Compare(account.PasswordHash, strings.TrimSpace(currentPassword)); err != nil {
		return ErrInvalidCurrentPassword
	}

	hash, err := g.hasher.Hash(strings.TrimSpace(newPassword))
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	verified := account.PasswordHash
	now := g.now()
	_, err = g.store.Update(ctx, username, func(a *models.AdminAccount) error {
		// the password changed after it was verified above
		if a.PasswordHash != verified {
			return ErrInvalidCurrentPassword
		}
		a.PasswordHash = hash
		a.UpdatedAt = now
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidCurrentPassword):
		return ErrInvalidCurrentPassword
	case errors.Is(err, repositories.ErrNotFound):
		return ErrAccountNotFound
	default:
		g.logger.Error().Err(err).Str("username", username).Msg("failed to store new password")
		return storeError("change password", err)
	}

	g.logger.Info().Str("username", username).Msg("admin password changed")
	return nil
}

// EnsureAdmin provisions the admin account if it does not exist yet.
// With reset set, an existing account gets its password overwritten;
// lockout state is left as is. Reports whether the account was created.
func (g *AccountGuard) EnsureAdmin(ctx context.Context, username, password string, reset bool) (bool, error) {
	if _, err := g.store.Get(ctx, username); err == nil && !reset {
		return false, nil
	} else if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return false, storeError("get account", err)
	}

	hash, err := g.hasher.Hash(strings.TrimSpace(password))
	if err != nil {
		return false, fmt.Errorf("failed to hash password: %w", err)
	}

	now := g.now()
	created, err := g.store.Create(ctx, &models.AdminAccount{
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return false, storeError("create account", err)
	}
	if created {
		g.logger.Info().Str("username", username).Msg("admin account provisioned")
		return true, nil
	}
	if !reset {
		return false, nil
	}

	_, err = g.store.Update(ctx, username, func(a *models.AdminAccount) error {
		a.PasswordHash = hash
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		return false, storeError("reset password", err)
	}

	g.logger.Info().Str("username", username).Msg("admin password reset")
	return false, nil
}
