package auth

import (
	"context"
	"net/http"
	"strings"

	pkghttp "github.com/BradenHooton/warden/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// ClaimsContextKey is the key for storing verified claims in context
	ClaimsContextKey contextKey = "claims"
)

// Middleware verifies the bearer access token and injects its claims into
// the request context. Missing, malformed, forged and expired tokens all get
// the same 401 so callers cannot tell which check failed.
func Middleware(codec *Codec) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				pkghttp.WriteUnauthorized(w, "Authentication required")
				return
			}

			claims, err := codec.Verify(tokenString)
			if err != nil || claims.Subject() == "" {
				pkghttp.WriteUnauthorized(w, "Authentication required")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// WithClaims returns a copy of ctx carrying claims
func WithClaims(ctx context.Context, claims Claims) context.Context {
	return context.WithValue(ctx, ClaimsContextKey, claims)
}

// ClaimsFromContext extracts verified claims from ctx
func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	claims, ok := ctx.Value(ClaimsContextKey).(Claims)
	return claims, ok
}

// SubjectFromRequest returns the authenticated account id, or "" when the
// request did not pass through Middleware
func SubjectFromRequest(r *http.Request) string {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		return ""
	}
	return claims.Subject()
}
