package models

import "time"

const (
	// MaxFailedLoginAttempts is the failure count that triggers a lockout
	MaxFailedLoginAttempts = 5
	// LockoutWindow is how long an account stays locked once the threshold is hit
	LockoutWindow = 15 * time.Minute
)

// Table names
const (
	TableAdminAccounts = "admin_accounts"
	TableSubscribers   = "subscribers"
)
