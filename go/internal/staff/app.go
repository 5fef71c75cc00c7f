package staff

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/mcdev12/kiosk/go/internal/auth"
	"github.com/mcdev12/kiosk/go/internal/models"
	"github.com/mcdev12/kiosk/go/internal/presence"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 32
	minPasswordLen = 8
	// bcrypt ignores everything past 72 bytes
	maxPasswordLen = 72
)

// StaffRepository defines what the app layer needs from the repository
type StaffRepository interface {
	CreateStaff(ctx context.Context, username, passwordHash string, role auth.Role) (*models.Staff, error)
	CreateFirstStaff(ctx context.Context, username, passwordHash string) (*models.Staff, error)
	GetStaff(ctx context.Context, id uuid.UUID) (*models.Staff, error)
	GetStaffByUsername(ctx context.Context, username string) (*models.Staff, error)
	CountStaff(ctx context.Context) (int64, error)
	TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

// TokenIssuer signs access tokens for logged in staff
type TokenIssuer interface {
	Issue(staffID, username string, role auth.Role) (string, error)
}

// ValidationError reports a rejected request field
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// App handles staff business logic
type App struct {
	repo       StaffRepository
	issuer     TokenIssuer
	clock      clockwork.Clock
	bcryptCost int
}

// NewApp creates a new staff App
func NewApp(repo StaffRepository, issuer TokenIssuer) *App {
	return &App{
		repo:       repo,
		issuer:     issuer,
		clock:      clockwork.NewRealClock(),
		bcryptCost: bcrypt.DefaultCost,
	}
}

// Register creates a staff account. The first account may be created by
// anyone so a fresh install can bootstrap its admin; it is always an admin
// whatever role was asked for. After that only admins register staff.
func (a *App) Register(ctx context.Context, req RegisterRequest) (*models.Staff, error) {
	role, err := a.validateRegisterRequest(&req)
	if err != nil {
		return nil, err
	}

	claims, ok := auth.ClaimsFromContext(ctx)
	bootstrap := !ok || claims.Role != auth.RoleAdmin
	if bootstrap {
		// Skip hashing when registration is obviously closed
		count, err := a.repo.CountStaff(ctx)
		if err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, ErrRegistrationClosed
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), a.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	var member *models.Staff
	if bootstrap {
		if role != auth.RoleAdmin {
			log.Warn().Str("username", req.Username).Str("requested_role", string(role)).Msg("first staff account is always an admin")
		}
		member, err = a.repo.CreateFirstStaff(ctx, req.Username, string(hash))
	} else {
		member, err = a.repo.CreateStaff(ctx, req.Username, string(hash), role)
	}
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("staff_id", member.ID.String()).
		Str("username", member.Username).
		Str("role", string(member.Role)).
		Msg("registered staff member")
	return member, nil
}

// Login checks credentials and returns a signed token plus the identity the
// kiosk stores for the presence beacon
func (a *App) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return nil, ErrInvalidCredentials
	}

	member, err := a.repo.GetStaffByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(member.PasswordHash), []byte(req.Password)); err != nil {
		log.Debug().Str("username", username).Msg("login rejected")
		return nil, ErrInvalidCredentials
	}

	token, err := a.issuer.Issue(member.ID.String(), member.Username, member.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	if err := a.repo.TouchLastLogin(ctx, member.ID, a.clock.Now()); err != nil {
		log.Warn().Err(err).Str("staff_id", member.ID.String()).Msg("failed to record login")
	}

	return &LoginResponse{
		Token:    token,
		Identity: presence.Identity{ID: member.ID.String(), Username: member.Username},
		Role:     string(member.Role),
	}, nil
}

// CheckKitchenAccess reports whether the caller on ctx may use the kitchen
// display
func (a *App) CheckKitchenAccess(ctx context.Context) CheckKitchenAccessResponse {
	claims, ok := auth.ClaimsFromContext(ctx)
	if !ok {
		return CheckKitchenAccessResponse{Allowed: false}
	}
	return CheckKitchenAccessResponse{
		Allowed: auth.HasKitchenAccess(claims.Role),
		StaffID: claims.StaffID,
		Role:    string(claims.Role),
	}
}

// validateRegisterRequest normalizes req in place and resolves its role
func (a *App) validateRegisterRequest(req *RegisterRequest) (auth.Role, error) {
	req.Username = strings.TrimSpace(req.Username)
	if n := len(req.Username); n < minUsernameLen || n > maxUsernameLen {
		return "", &ValidationError{Field: "username", Reason: fmt.Sprintf("must be %d-%d characters", minUsernameLen, maxUsernameLen)}
	}
	if strings.ContainsAny(req.Username, " \t\n") {
		return "", &ValidationError{Field: "username", Reason: "must not contain whitespace"}
	}
	if n := len(req.Password); n < minPasswordLen || n > maxPasswordLen {
		return "", &ValidationError{Field: "password", Reason: fmt.Sprintf("must be %d-%d bytes", minPasswordLen, maxPasswordLen)}
	}

	if req.Role == "" {
		return auth.RoleKitchen, nil
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		return "", &ValidationError{Field: "role", Reason: err.Error()}
	}
	return role, nil
}
