package models

import (
	"time"
)

// AdminAccount represents the credential and lockout state of one administrator
type AdminAccount struct {
	Username            string     `json:"username" db:"username"`
	PasswordHash        string     `json:"-" db:"password_hash"` // never expose
	FailedLoginAttempts int        `json:"failed_login_attempts" db:"failed_login_attempts"`
	LockedUntil         *time.Time `json:"locked_until,omitempty" db:"locked_until"`
	LastLogin           *time.Time `json:"last_login,omitempty" db:"last_login"`
	CreatedAt           time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at" db:"updated_at"`
}

// IsLocked reports whether a lockout is in effect at the given instant.
// A lock expiring exactly at now no longer applies.
func (a *AdminAccount) IsLocked(now time.Time) bool {
	return a.LockedUntil != nil && a.LockedUntil.After(now)
}
