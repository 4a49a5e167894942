package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridbill/backend/internal/services"
)

type stubAuthenticator struct {
	claims    *services.Claims
	parseErr  error
	active    bool
	activeErr error
}

func (s stubAuthenticator) ParseToken(token string) (*services.Claims, error) {
	if s.parseErr != nil {
		return nil, s.parseErr
	}
	return s.claims, nil
}

func (s stubAuthenticator) SessionActive(ctx context.Context, sessionID string) (bool, error) {
	return s.active, s.activeErr
}

func okHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFrom(r.Context())
		require.True(t, ok)
		w.Header().Set("X-User", claims.UserID)
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestAuthenticate(t *testing.T) {
	claims := &services.Claims{UserID: "user-1", OrgID: "org-1", Role: "admin", SessionID: "sid-1"}

	tests := []struct {
		name   string
		header string
		auth   stubAuthenticator
		status int
	}{
		{"missing header", "", stubAuthenticator{}, http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", stubAuthenticator{}, http.StatusUnauthorized},
		{"bad token", "Bearer abc", stubAuthenticator{parseErr: errors.New("bad")}, http.StatusUnauthorized},
		{"revoked session", "Bearer abc", stubAuthenticator{claims: claims}, http.StatusUnauthorized},
		{"session lookup fails", "Bearer abc", stubAuthenticator{claims: claims, activeErr: errors.New("redis down")}, http.StatusInternalServerError},
		{"valid", "Bearer abc", stubAuthenticator{claims: claims, active: true}, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/batches", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()

			Authenticate(tt.auth)(okHandler(t)).ServeHTTP(rr, req)

			assert.Equal(t, tt.status, rr.Code)
			if tt.status == http.StatusNoContent {
				assert.Equal(t, "user-1", rr.Header().Get("X-User"))
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	guarded := RequireRole("admin", "approver")(next)

	t.Run("no claims", func(t *testing.T) {
		rr := httptest.NewRecorder()
		guarded.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("role not allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithClaims(req.Context(), &services.Claims{Role: "viewer"}))
		rr := httptest.NewRecorder()
		guarded.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("role allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithClaims(req.Context(), &services.Claims{Role: "approver"}))
		rr := httptest.NewRecorder()
		guarded.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
	})
}
