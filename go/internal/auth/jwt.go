// Package auth issues and verifies staff access tokens and gates kitchen
// routes on them.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrMissingToken = errors.New("missing token")
)

// Role is a staff member's role
type Role string

const (
	RoleKitchen Role = "kitchen"
	RoleWaiter  Role = "waiter"
	RoleAdmin   Role = "admin"
)

// ParseRole validates a role name
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleKitchen, RoleWaiter, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// HasKitchenAccess reports whether role may use the kitchen display
func HasKitchenAccess(role Role) bool {
	return role == RoleKitchen || role == RoleAdmin
}

// Claims are the custom JWT claims carried by staff tokens
type Claims struct {
	jwt.RegisteredClaims
	StaffID  string `json:"staff_id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// Verifier validates a token string
type Verifier interface {
	Verify(token string) (*Claims, error)
}

// Issuer signs and verifies HS256 staff tokens
type Issuer struct {
	secret   []byte
	validity time.Duration
	clock    clockwork.Clock
}

// NewIssuer creates a new token issuer
func NewIssuer(secret []byte, validity time.Duration, clock clockwork.Clock) *Issuer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Issuer{secret: secret, validity: validity, clock: clock}
}

// Issue signs a token for the given staff member
func (i *Issuer) Issue(staffID, username string, role Role) (string, error) {
	now := i.clock.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   staffID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.validity)),
		},
		StaffID:  staffID,
		Username: username,
		Role:     role,
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.StaffID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
