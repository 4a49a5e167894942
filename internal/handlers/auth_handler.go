package handlers

import (
	"net"
	"net/http"

	"github.com/gridbill/backend/internal/services"
)

type AuthHandler struct {
	service   *services.AuthService
	validator *services.ValidationHelper
}

func NewAuthHandler(service *services.AuthService) *AuthHandler {
	return &AuthHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// SendOTP sends a login code to a registered phone number
// @Summary Send OTP
// @Description Verifies the CAPTCHA token and sends a one-time code by SMS. Repeat requests inside the cooldown get 429.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body services.SendOTPRequest true "Phone number"
// @Success 200 {object} object{message=string}
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 429 {object} services.ErrorResponse
// @Router /auth/otp/send [post]
func (h *AuthHandler) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req services.SendOTPRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	if err := h.service.SendOTP(r.Context(), req, clientIP(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "If the number is registered, a code has been sent"})
}

// VerifyOTP exchanges a code for an access token
// @Summary Verify OTP
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body services.VerifyOTPRequest true "Phone number and code"
// @Success 200 {object} services.AuthResponse
// @Failure 400 {object} services.ErrorResponse
// @Router /auth/otp/verify [post]
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req services.VerifyOTPRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	resp, err := h.service.VerifyOTP(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Login authenticates a staff account by password
// @Summary Login
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body services.LoginRequest true "Credentials"
// @Success 200 {object} services.AuthResponse
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req services.LoginRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	resp, err := h.service.Login(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Logout ends the current session
// @Summary Logout
// @Tags Authentication
// @Security BearerAuth
// @Success 204
// @Failure 401 {object} services.ErrorResponse
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	if err := h.service.Logout(r.Context(), claims); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RevokeSessions signs a user out everywhere except the current session
// @Summary Revoke sessions
// @Description Admins may revoke any user of their organization; others only themselves
// @Tags Authentication
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.RevokeSessionsRequest true "Target user"
// @Success 200 {object} object{revoked=int}
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /auth/revoke-sessions [post]
func (h *AuthHandler) RevokeSessions(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	var req services.RevokeSessionsRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	n, err := h.service.RevokeSessions(r.Context(), claims, req.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"revoked": n})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
