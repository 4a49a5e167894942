package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gridbill/backend/internal/services"
)

type OrganizationHandler struct {
	orgs      *services.OrganizationService
	threshold *services.ThresholdService
	validator *services.ValidationHelper
}

func NewOrganizationHandler(orgs *services.OrganizationService, threshold *services.ThresholdService) *OrganizationHandler {
	return &OrganizationHandler{
		orgs:      orgs,
		threshold: threshold,
		validator: services.NewValidationHelper(),
	}
}

// Create onboards an organization with its first admin
// @Summary Create organization
// @Tags Organizations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.CreateOrganizationRequest true "Organization"
// @Success 201 {object} services.OrganizationCreated
// @Failure 400 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /organizations [post]
func (h *OrganizationHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	var req services.CreateOrganizationRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	created, err := h.orgs.Create(r.Context(), claims.UserID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// Me returns the caller's organization
// @Summary Current organization
// @Tags Organizations
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.Organization
// @Router /organizations/me [get]
func (h *OrganizationHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	org, err := h.orgs.Get(r.Context(), claims.OrgID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

// Threshold reports threshold utilization
// @Summary Threshold utilization
// @Tags Organizations
// @Produce json
// @Security BearerAuth
// @Success 200 {object} services.ThresholdView
// @Router /organizations/me/threshold [get]
func (h *OrganizationHandler) Threshold(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	status, err := h.threshold.Status(r.Context(), claims.OrgID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, services.NewThresholdView(status))
}

// UpdateThreshold sets the organization's batch threshold
// @Summary Update threshold
// @Tags Organizations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Organization ID"
// @Param request body services.UpdateThresholdRequest true "Threshold"
// @Success 200 {object} services.UpdateThresholdRequest
// @Failure 403 {object} services.ErrorResponse
// @Router /organizations/{id}/threshold [put]
func (h *OrganizationHandler) UpdateThreshold(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	if chi.URLParam(r, "id") != claims.OrgID {
		services.SendErrorResponse(w, "Forbidden", http.StatusForbidden, nil)
		return
	}

	var req services.UpdateThresholdRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	if err := h.orgs.UpdateThreshold(r.Context(), claims.OrgID, claims.UserID, req.BatchThresholdAmount); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// AddUser creates a staff account in the caller's organization
// @Summary Add user
// @Tags Organizations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.CreateUserRequest true "User"
// @Success 201 {object} models.User
// @Failure 400 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /users [post]
func (h *OrganizationHandler) AddUser(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	var req services.CreateUserRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	user, err := h.orgs.AddUser(r.Context(), claims.OrgID, claims.UserID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// CreateConnection registers a metered site
// @Summary Add connection
// @Tags Connections
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.CreateConnectionRequest true "Connection"
// @Success 201 {object} models.Connection
// @Failure 400 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /connections [post]
func (h *OrganizationHandler) CreateConnection(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	var req services.CreateConnectionRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	conn, err := h.orgs.CreateConnection(r.Context(), claims.OrgID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, conn)
}

// ListConnections returns the organization's connections
// @Summary List connections
// @Tags Connections
// @Produce json
// @Security BearerAuth
// @Param type query string false "prepaid, postpaid or submeter"
// @Success 200 {array} models.Connection
// @Router /connections [get]
func (h *OrganizationHandler) ListConnections(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	conns, err := h.orgs.ListConnections(r.Context(), claims.OrgID, r.URL.Query().Get("type"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conns)
}
