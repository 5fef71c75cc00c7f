package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer(clock clockwork.Clock) *Issuer {
	return NewIssuer([]byte("kitchen-secret"), time.Hour, clock)
}

func TestIssueAndVerify(t *testing.T) {
	t.Parallel()

	issuer := newTestIssuer(nil)
	token, err := issuer.Issue("42", "alice", RoleKitchen)
	require.NoError(t, err)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.StaffID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, RoleKitchen, claims.Role)
	assert.Equal(t, "42", claims.Subject)
}

func TestVerify_Expired(t *testing.T) {
	t.Parallel()

	fc := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	issuer := newTestIssuer(fc)
	token, err := issuer.Issue("42", "alice", RoleKitchen)
	require.NoError(t, err)

	fc.Advance(2 * time.Hour)
	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerify_WrongSecret(t *testing.T) {
	t.Parallel()

	token, err := newTestIssuer(nil).Issue("42", "alice", RoleKitchen)
	require.NoError(t, err)

	other := NewIssuer([]byte("other-secret"), time.Hour, nil)
	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_Malformed(t *testing.T) {
	t.Parallel()

	_, err := newTestIssuer(nil).Verify("not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = newTestIssuer(nil).Verify("")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestParseRole(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"kitchen", "waiter", "admin"} {
		r, err := ParseRole(s)
		require.NoError(t, err)
		assert.Equal(t, Role(s), r)
	}
	_, err := ParseRole("chef")
	assert.Error(t, err)
}

func TestCheckKitchenAccess(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ctx  context.Context
		want bool
	}{
		{name: "no claims", ctx: context.Background(), want: false},
		{name: "kitchen", ctx: WithClaims(context.Background(), &Claims{StaffID: "1", Role: RoleKitchen}), want: true},
		{name: "admin", ctx: WithClaims(context.Background(), &Claims{StaffID: "1", Role: RoleAdmin}), want: true},
		{name: "waiter", ctx: WithClaims(context.Background(), &Claims{StaffID: "1", Role: RoleWaiter}), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CheckKitchenAccess(tt.ctx))
		})
	}
}

func TestRequireKitchenAccess(t *testing.T) {
	t.Parallel()

	issuer := newTestIssuer(nil)
	kitchenToken, err := issuer.Issue("42", "alice", RoleKitchen)
	require.NoError(t, err)
	waiterToken, err := issuer.Issue("7", "bob", RoleWaiter)
	require.NoError(t, err)

	var seen *Claims
	handler := RequireKitchenAccess(issuer, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		status int
	}{
		{name: "missing token", setup: func(r *http.Request) {}, status: http.StatusUnauthorized},
		{name: "garbage token", setup: func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, status: http.StatusUnauthorized},
		{name: "waiter", setup: func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+waiterToken) }, status: http.StatusForbidden},
		{name: "kitchen header", setup: func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+kitchenToken) }, status: http.StatusNoContent},
		{name: "kitchen query", setup: func(r *http.Request) {
			q := r.URL.Query()
			q.Set("token", kitchenToken)
			r.URL.RawQuery = q.Encode()
		}, status: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/kitchen/orders", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}

	require.NotNil(t, seen)
	assert.Equal(t, "42", seen.StaffID)
}

func TestMiddleware_OptionalClaims(t *testing.T) {
	t.Parallel()

	issuer := newTestIssuer(nil)
	token, err := issuer.Issue("42", "alice", RoleAdmin)
	require.NoError(t, err)

	var got bool
	handler := Middleware(issuer, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = CheckKitchenAccess(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.False(t, got)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.True(t, got)
}
