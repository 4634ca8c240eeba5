package models

import (
	"time"
)

// User owns workflows. Users are provisioned on first login from the
// identity provider's email claim.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
