package rpc

import (
	"context"
	"errors"
	"time"

	"connectrpc.com/connect"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/kiosk/go/internal/auth"
)

// AuthInterceptor attaches verified claims to the context. Calls without a
// token pass through, each handler decides what it requires.
func AuthInterceptor(v auth.Verifier) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if req.Spec().IsClient {
				return next(ctx, req)
			}
			token := auth.TokenFromHeader(req.Header())
			if token == "" {
				return next(ctx, req)
			}
			claims, err := v.Verify(token)
			if err != nil {
				return nil, connect.NewError(connect.CodeUnauthenticated, err)
			}
			return next(auth.WithClaims(ctx, claims), req)
		}
	}
}

// LoggingInterceptor logs every unary call with its duration and code
func LoggingInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			event := log.Debug()
			code := "ok"
			if err != nil {
				code = connect.CodeOf(err).String()
				if connect.CodeOf(err) == connect.CodeInternal || connect.CodeOf(err) == connect.CodeUnknown {
					event = log.Error().Err(err)
				}
			}
			event.
				Str("procedure", req.Spec().Procedure).
				Str("code", code).
				Dur("duration", time.Since(start)).
				Msg("rpc")
			return resp, err
		}
	}
}

// BearerAuth returns a client interceptor sending token on every call
func BearerAuth(token string) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if req.Spec().IsClient && token != "" {
				req.Header().Set("Authorization", "Bearer "+token)
			}
			return next(ctx, req)
		}
	}
}

// RequireClaims returns the caller's claims or an Unauthenticated error
func RequireClaims(ctx context.Context) (*auth.Claims, error) {
	claims, ok := auth.ClaimsFromContext(ctx)
	if !ok {
		return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrMissingToken)
	}
	return claims, nil
}

// RequireRole returns the caller's claims when their role is one of roles
func RequireRole(ctx context.Context, roles ...auth.Role) (*auth.Claims, error) {
	claims, err := RequireClaims(ctx)
	if err != nil {
		return nil, err
	}
	for _, role := range roles {
		if claims.Role == role {
			return claims, nil
		}
	}
	return nil, connect.NewError(connect.CodePermissionDenied, errors.New("insufficient role"))
}
