package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/gridbill/backend/internal/services"
)

type claimsKey struct{}

// TokenAuthenticator validates access tokens and their sessions.
type TokenAuthenticator interface {
	ParseToken(token string) (*services.Claims, error)
	SessionActive(ctx context.Context, sessionID string) (bool, error)
}

// WithClaims returns a copy of ctx carrying the caller's claims.
func WithClaims(ctx context.Context, claims *services.Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFrom returns the claims placed by Authenticate.
func ClaimsFrom(ctx context.Context) (*services.Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*services.Claims)
	return claims, ok && claims != nil
}

// Authenticate requires a bearer token whose session is still open.
func Authenticate(auth TokenAuthenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				services.SendErrorResponse(w, "Authorization header required", http.StatusUnauthorized, nil)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				services.SendErrorResponse(w, "Invalid authorization header format", http.StatusUnauthorized, nil)
				return
			}

			claims, err := auth.ParseToken(parts[1])
			if err != nil {
				services.SendErrorResponse(w, "Invalid token", http.StatusUnauthorized, nil)
				return
			}

			active, err := auth.SessionActive(r.Context(), claims.SessionID)
			if err != nil {
				slog.ErrorContext(r.Context(), "[AUTH] session lookup failed", "err", err)
				services.SendErrorResponse(w, "internal error", http.StatusInternalServerError, nil)
				return
			}
			if !active {
				services.SendErrorResponse(w, "Session expired or revoked", http.StatusUnauthorized, nil)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireRole rejects callers whose role is not listed.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFrom(r.Context())
			if !ok {
				services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
				return
			}
			if !slices.Contains(roles, claims.Role) {
				services.SendErrorResponse(w, "Forbidden", http.StatusForbidden, nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
