package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/kiosk/go/internal/auth"
)

// Staff represents a restaurant staff account
type Staff struct {
	ID           uuid.UUID  `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	Role         auth.Role  `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}
