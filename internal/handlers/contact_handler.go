package handlers

import (
	"net/http"

	"github.com/gridbill/backend/internal/services"
)

type ContactHandler struct {
	service   *services.ContactService
	validator *services.ValidationHelper
}

func NewContactHandler(service *services.ContactService) *ContactHandler {
	return &ContactHandler{service: service, validator: services.NewValidationHelper()}
}

// Send forwards a contact form message to support
// @Summary Send contact email
// @Tags Contact
// @Accept json
// @Produce json
// @Param request body services.ContactRequest true "Message"
// @Success 202 {object} object{message=string}
// @Failure 400 {object} services.ErrorResponse
// @Router /send-contact-email [post]
func (h *ContactHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req services.ContactRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	if err := h.service.Send(r.Context(), req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"message": "Message received"})
}
