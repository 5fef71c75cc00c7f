package staff

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mcdev12/kiosk/go/internal/auth"
	"github.com/mcdev12/kiosk/go/internal/models"
)

type fakeRepo struct {
	mu        sync.Mutex
	byName    map[string]*models.Staff
	touched   []uuid.UUID
	touchedAt []time.Time
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byName: make(map[string]*models.Staff)}
}

func (r *fakeRepo) CreateStaff(_ context.Context, username, hash string, role auth.Role) (*models.Staff, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[username]; ok {
		return nil, ErrUsernameTaken
	}
	m := &models.Staff{ID: uuid.New(), Username: username, PasswordHash: hash, Role: role, CreatedAt: time.Now()}
	r.byName[username] = m
	return m, nil
}

func (r *fakeRepo) CreateFirstStaff(_ context.Context, username, hash string) (*models.Staff, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.byName) > 0 {
		return nil, ErrRegistrationClosed
	}
	m := &models.Staff{ID: uuid.New(), Username: username, PasswordHash: hash, Role: auth.RoleAdmin, CreatedAt: time.Now()}
	r.byName[username] = m
	return m, nil
}

func (r *fakeRepo) GetStaff(_ context.Context, id uuid.UUID) (*models.Staff, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.byName {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, ErrNotFound
}

func (r *fakeRepo) GetStaffByUsername(_ context.Context, username string) (*models.Staff, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byName[username]
	if !ok {
		return nil, ErrNotFound
	}
	return m, nil
}

func (r *fakeRepo) CountStaff(context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.byName)), nil
}

func (r *fakeRepo) TouchLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touched = append(r.touched, id)
	r.touchedAt = append(r.touchedAt, at)
	return nil
}

func newTestApp(t *testing.T) (*App, *fakeRepo, *auth.Issuer) {
	t.Helper()

	repo := newFakeRepo()
	issuer := auth.NewIssuer([]byte("staff-secret"), time.Hour, nil)
	app := NewApp(repo, issuer)
	app.bcryptCost = bcrypt.MinCost
	return app, repo, issuer
}

func adminContext() context.Context {
	return auth.WithClaims(context.Background(), &auth.Claims{StaffID: "admin-1", Role: auth.RoleAdmin})
}

func TestRegister_BootstrapThenAdminOnly(t *testing.T) {
	t.Parallel()

	app, _, _ := newTestApp(t)

	first, err := app.Register(context.Background(), RegisterRequest{Username: "owner", Password: "correct-horse", Role: "admin"})
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, first.Role)
	assert.NotEqual(t, "correct-horse", first.PasswordHash)

	_, err = app.Register(context.Background(), RegisterRequest{Username: "cook", Password: "battery-staple"})
	assert.ErrorIs(t, err, ErrRegistrationClosed)

	cook, err := app.Register(adminContext(), RegisterRequest{Username: "cook", Password: "battery-staple"})
	require.NoError(t, err)
	assert.Equal(t, auth.RoleKitchen, cook.Role)

	_, err = app.Register(adminContext(), RegisterRequest{Username: "cook", Password: "battery-staple"})
	assert.ErrorIs(t, err, ErrUsernameTaken)
}

func TestRegister_BootstrapIsAlwaysAdmin(t *testing.T) {
	t.Parallel()

	app, _, _ := newTestApp(t)

	first, err := app.Register(context.Background(), RegisterRequest{Username: "cook", Password: "battery-staple", Role: "kitchen"})
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, first.Role)

	second, err := app.Register(adminContext(), RegisterRequest{Username: "grill", Password: "battery-staple"})
	require.NoError(t, err)
	assert.Equal(t, auth.RoleKitchen, second.Role)
}

func TestRegister_ConcurrentBootstrapHasOneWinner(t *testing.T) {
	t.Parallel()

	app, repo, _ := newTestApp(t)

	const racers = 8
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = app.Register(context.Background(), RegisterRequest{
				Username: fmt.Sprintf("owner-%d", i),
				Password: "correct-horse",
			})
		}()
	}
	wg.Wait()

	var won int
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		assert.ErrorIs(t, err, ErrRegistrationClosed)
	}
	assert.Equal(t, 1, won)
	count, err := repo.CountStaff(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRegister_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		req   RegisterRequest
		field string
	}{
		{name: "short username", req: RegisterRequest{Username: "ab", Password: "long-enough"}, field: "username"},
		{name: "blank username", req: RegisterRequest{Username: "   ", Password: "long-enough"}, field: "username"},
		{name: "whitespace", req: RegisterRequest{Username: "line cook", Password: "long-enough"}, field: "username"},
		{name: "short password", req: RegisterRequest{Username: "cook", Password: "short"}, field: "password"},
		{name: "unknown role", req: RegisterRequest{Username: "cook", Password: "long-enough", Role: "chef"}, field: "role"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			app, _, _ := newTestApp(t)
			_, err := app.Register(adminContext(), tt.req)

			var validation *ValidationError
			require.ErrorAs(t, err, &validation)
			assert.Equal(t, tt.field, validation.Field)
		})
	}
}

func TestLogin(t *testing.T) {
	t.Parallel()

	app, repo, issuer := newTestApp(t)
	loginAt := time.Date(2026, 5, 2, 18, 4, 5, 0, time.UTC)
	app.clock = clockwork.NewFakeClockAt(loginAt)
	member, err := app.Register(adminContext(), RegisterRequest{Username: "cook", Password: "battery-staple"})
	require.NoError(t, err)

	resp, err := app.Login(context.Background(), LoginRequest{Username: " cook ", Password: "battery-staple"})
	require.NoError(t, err)
	assert.Equal(t, member.ID.String(), resp.Identity.ID)
	assert.Equal(t, "cook", resp.Identity.Username)
	assert.Equal(t, "kitchen", resp.Role)

	claims, err := issuer.Verify(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, member.ID.String(), claims.StaffID)
	assert.Equal(t, auth.RoleKitchen, claims.Role)
	assert.Equal(t, []uuid.UUID{member.ID}, repo.touched)
	assert.Equal(t, []time.Time{loginAt}, repo.touchedAt)
}

func TestLogin_Rejects(t *testing.T) {
	t.Parallel()

	app, _, _ := newTestApp(t)
	_, err := app.Register(context.Background(), RegisterRequest{Username: "cook", Password: "battery-staple"})
	require.NoError(t, err)

	tests := []struct {
		name string
		req  LoginRequest
	}{
		{name: "wrong password", req: LoginRequest{Username: "cook", Password: "wrong-password"}},
		{name: "unknown user", req: LoginRequest{Username: "ghost", Password: "battery-staple"}},
		{name: "empty", req: LoginRequest{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := app.Login(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrInvalidCredentials)
		})
	}
}

func TestApp_CheckKitchenAccess(t *testing.T) {
	t.Parallel()

	app, _, _ := newTestApp(t)

	tests := []struct {
		name    string
		ctx     context.Context
		allowed bool
	}{
		{name: "anonymous", ctx: context.Background(), allowed: false},
		{name: "kitchen", ctx: auth.WithClaims(context.Background(), &auth.Claims{StaffID: "1", Role: auth.RoleKitchen}), allowed: true},
		{name: "admin", ctx: adminContext(), allowed: true},
		{name: "waiter", ctx: auth.WithClaims(context.Background(), &auth.Claims{StaffID: "2", Role: auth.RoleWaiter}), allowed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, app.CheckKitchenAccess(tt.ctx).Allowed)
		})
	}
}
