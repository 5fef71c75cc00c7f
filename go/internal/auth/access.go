package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

type claimsKey struct{}

// WithClaims returns a context carrying claims
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext returns the claims attached by the auth middleware
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*Claims)
	return claims, ok && claims != nil
}

// CheckKitchenAccess reports whether the caller on ctx may use kitchen routes
func CheckKitchenAccess(ctx context.Context) bool {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return false
	}
	return HasKitchenAccess(claims.Role)
}

// TokenFromRequest extracts a bearer token from the Authorization header or
// the token query parameter (browsers cannot set headers on websocket upgrades).
func TokenFromRequest(r *http.Request) string {
	if token := TokenFromHeader(r.Header); token != "" {
		return token
	}
	return r.URL.Query().Get("token")
}

// TokenFromHeader extracts a bearer token from the Authorization header
func TokenFromHeader(h http.Header) string {
	if token, ok := strings.CutPrefix(h.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// Middleware attaches claims to the request context when a valid token is
// present. Requests without a valid token pass through unauthenticated.
func Middleware(v Verifier, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := TokenFromRequest(r); token != "" {
			if claims, err := v.Verify(token); err == nil {
				r = r.WithContext(WithClaims(r.Context(), claims))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireKitchenAccess gates next behind a valid token with kitchen access
func RequireKitchenAccess(v Verifier, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := v.Verify(TokenFromRequest(r))
		if err != nil {
			if !errors.Is(err, ErrMissingToken) {
				log.Debug().Err(err).Str("path", r.URL.Path).Msg("rejected token")
			}
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		ctx := WithClaims(r.Context(), claims)
		if !CheckKitchenAccess(ctx) {
			log.Info().
				Str("staff_id", claims.StaffID).
				Str("role", string(claims.Role)).
				Str("path", r.URL.Path).
				Msg("kitchen access denied")
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
