package staff

import (
	"errors"

	"github.com/mcdev12/kiosk/go/internal/presence"
)

var (
	// ErrUsernameTaken is returned when registering an existing username
	ErrUsernameTaken = errors.New("username already taken")
	// ErrNotFound is returned when no staff member matches
	ErrNotFound = errors.New("staff member not found")
	// ErrInvalidCredentials hides whether the username or password was wrong
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrRegistrationClosed is returned when a non-admin registers after bootstrap
	ErrRegistrationClosed = errors.New("only admins can register staff")
)

// RegisterRequest represents the data needed to create a staff account
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// RegisterResponse returns the created account
type RegisterResponse struct {
	Identity presence.Identity `json:"identity"`
	Role     string            `json:"role"`
}

// LoginRequest carries staff credentials
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is what the kiosk persists under kitchen_token and
// kitchen_user
type LoginResponse struct {
	Token    string            `json:"token"`
	Identity presence.Identity `json:"identity"`
	Role     string            `json:"role"`
}

// CheckKitchenAccessRequest has no fields, the caller is read from the token
type CheckKitchenAccessRequest struct{}

// CheckKitchenAccessResponse reports whether the caller may use the kitchen
// display
type CheckKitchenAccessResponse struct {
	Allowed bool   `json:"allowed"`
	StaffID string `json:"staff_id,omitempty"`
	Role    string `json:"role,omitempty"`
}
