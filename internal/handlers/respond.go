package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gridbill/backend/internal/middleware"
	"github.com/gridbill/backend/internal/services"
)

const maxBodyBytes = 1_048_576

// decodeJSON reads exactly one JSON object into dst and validates it. On
// failure the error response is already written.
func decodeJSON(w http.ResponseWriter, r *http.Request, v *services.ValidationHelper, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}

	if err := v.ValidateStruct(dst); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeServiceError maps a service error to its HTTP status.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var exceeded *services.ThresholdExceededError
	var cooldown *services.CooldownError

	switch {
	case errors.As(err, &exceeded):
		services.SendErrorResponse(w, err.Error(), http.StatusUnprocessableEntity, nil)
	case errors.As(err, &cooldown):
		w.Header().Set("Retry-After", strconv.Itoa(cooldown.RetryAfterSeconds()))
		writeJSON(w, http.StatusTooManyRequests, services.ErrorResponse{
			Error:      err.Error(),
			RetryAfter: cooldown.RetryAfterSeconds(),
		})
	case errors.Is(err, services.ErrNotFound):
		services.SendErrorResponse(w, err.Error(), http.StatusNotFound, nil)
	case errors.Is(err, services.ErrInvalidState):
		services.SendErrorResponse(w, err.Error(), http.StatusConflict, nil)
	case errors.Is(err, services.ErrForbidden):
		services.SendErrorResponse(w, err.Error(), http.StatusForbidden, nil)
	case errors.Is(err, services.ErrInvalidInput), errors.Is(err, services.ErrInvalidOTP):
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
	case errors.Is(err, services.ErrInvalidCredentials), errors.Is(err, services.ErrUnauthorized):
		services.SendErrorResponse(w, err.Error(), http.StatusUnauthorized, nil)
	default:
		slog.ErrorContext(r.Context(), "[HTTP] request failed",
			"method", r.Method, "path", r.URL.Path, "err", err)
		services.SendErrorResponse(w, services.PublicMessage(err), http.StatusInternalServerError, nil)
	}
}

// caller returns the authenticated identity or writes 401.
func caller(w http.ResponseWriter, r *http.Request) (*services.Claims, bool) {
	claims, ok := middleware.ClaimsFrom(r.Context())
	if !ok || claims.UserID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return nil, false
	}
	return claims, true
}
