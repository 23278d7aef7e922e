package middleware

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/tripledger/internal/auth"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// CallerIDKey is the context key for the authenticated caller ID.
	CallerIDKey contextKey = "caller_id"
	// CallerNameKey is the context key for the caller's display name.
	CallerNameKey contextKey = "caller_name"
)

// GetCallerID extracts the caller ID from the context.
// Returns empty string if not found.
func GetCallerID(ctx context.Context) string {
	callerID, _ := ctx.Value(CallerIDKey).(string)
	return callerID
}

// GetCallerName extracts the caller's display name from the context.
func GetCallerName(ctx context.Context) string {
	name, _ := ctx.Value(CallerNameKey).(string)
	return name
}

// WithCaller returns ctx carrying the given caller identity.
func WithCaller(ctx context.Context, claims *auth.Claims) context.Context {
	ctx = context.WithValue(ctx, CallerIDKey, claims.CallerID)
	return context.WithValue(ctx, CallerNameKey, claims.Name)
}

// bearerClaims validates the bearer token in an Authorization header value.
func bearerClaims(jwtManager *auth.JWTManager, header string) (*auth.Claims, error) {
	if header == "" {
		return nil, auth.ErrMissingToken
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, auth.ErrInvalidToken
	}
	return jwtManager.Validate(parts[1])
}

// RequireAuth returns an interceptor that rejects RPCs without a valid
// bearer token and adds the caller identity to the request context.
func RequireAuth(jwtManager *auth.JWTManager) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			claims, err := bearerClaims(jwtManager, req.Header().Get("Authorization"))
			if err != nil {
				return nil, connect.NewError(connect.CodeUnauthenticated, err)
			}
			return next(WithCaller(ctx, claims), req)
		}
	}
}

// RequireAuthHTTP is RequireAuth for plain HTTP routes.
func RequireAuthHTTP(jwtManager *auth.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := bearerClaims(jwtManager, r.Header.Get("Authorization"))
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), claims)))
		})
	}
}
