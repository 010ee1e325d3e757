package services

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for explicit error handling
// These errors allow callers to distinguish between different failure modes
// using errors.Is() instead of string matching

var (
	// ErrInvalidCredentials covers both an unknown username and a wrong password
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountLocked indicates login is refused until the lockout window ends
	ErrAccountLocked = errors.New("account locked")

	// ErrAccountNotFound indicates the admin account does not exist
	ErrAccountNotFound = errors.New("account not found")

	// ErrInvalidCurrentPassword indicates a password change supplied the wrong current password
	ErrInvalidCurrentPassword = errors.New("invalid current password")

	// ErrStoreUnavailable indicates the persistence layer failed
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrEmailAlreadyRegistered indicates a duplicate waitlist signup
	ErrEmailAlreadyRegistered = errors.New("email already registered")
)

// LockoutError is returned for a login refused because of an active lockout.
// errors.Is(err, ErrAccountLocked) holds for it.
type LockoutError struct {
	LockedUntil time.Time
}

func (e *LockoutError) Error() string {
	return fmt.Sprintf("%s until %s", ErrAccountLocked, e.LockedUntil.UTC().Format(time.RFC3339))
}

// Is reports ErrAccountLocked as the error kind
func (e *LockoutError) Is(target error) bool {
	return target == ErrAccountLocked
}

// storeError wraps a persistence failure so callers only see ErrStoreUnavailable
func storeError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}
