package auth

import (
	"context"
	"net/http"
	"strings"
)

// contextKey is unexported so only this package can read or write the
// identity stored in a request context.
type contextKey string

const identityKey contextKey = "identity"

const unauthorizedBody = `{"error":"unauthorized","message":"invalid or expired token"}` + "\n"

// RequireAuth is a middleware that enforces authentication on protected routes.
//
// It reads "Authorization: Bearer <access token>", verifies it, and stores
// the caller's Claims in the request context. Missing, malformed, expired
// or wrongly signed tokens all produce the same 401 body.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := extractClaims(r, tokens)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("WWW-Authenticate", `Bearer realm="recipebox"`)
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(unauthorizedBody))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), claims)))
		})
	}
}

// WithIdentity returns a copy of ctx carrying c. Exposed for handler tests.
func WithIdentity(ctx context.Context, c Claims) context.Context {
	return context.WithValue(ctx, identityKey, c)
}

// IdentityFromContext returns the verified claims of the caller, if any.
func IdentityFromContext(ctx context.Context) (Claims, bool) {
	c, ok := ctx.Value(identityKey).(Claims)
	return c, ok && c.Subject != ""
}

// UserIDFromContext retrieves the authenticated user's ID from the request context.
// Returns ("", false) if the request is anonymous.
func UserIDFromContext(ctx context.Context) (string, bool) {
	c, ok := IdentityFromContext(ctx)
	return c.Subject, ok
}

func extractClaims(r *http.Request, tokens *TokenService) (Claims, error) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return Claims{}, ErrInvalidToken
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, ErrInvalidToken
	}
	return tokens.VerifyAccess(token)
}
