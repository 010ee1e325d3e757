package models

import (
	"time"

	"github.com/google/uuid"
)

// Subscriber is a single waitlist signup
type Subscriber struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
