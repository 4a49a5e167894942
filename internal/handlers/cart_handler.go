package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gridbill/backend/internal/services"
)

type CartHandler struct {
	cart      *services.CartService
	validator *services.ValidationHelper
}

func NewCartHandler(cart *services.CartService) *CartHandler {
	return &CartHandler{cart: cart, validator: services.NewValidationHelper()}
}

// Items lists the caller's cart
// @Summary Get cart
// @Tags Cart
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{items=[]services.CartItem}
// @Router /cart [get]
func (h *CartHandler) Items(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	items, err := h.cart.Items(r.Context(), claims.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Add puts an approved bill or recharge in the cart
// @Summary Add to cart
// @Tags Cart
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.CartItem true "Cart item"
// @Success 201 {object} services.CartItem
// @Failure 400 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /cart [post]
func (h *CartHandler) Add(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	var item services.CartItem
	if !decodeJSON(w, r, h.validator, &item) {
		return
	}

	if err := h.cart.Add(r.Context(), claims.OrgID, claims.UserID, item); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// Remove drops one item from the cart
// @Summary Remove from cart
// @Tags Cart
// @Security BearerAuth
// @Param kind path string true "bill or recharge"
// @Param id path string true "Item ID"
// @Success 204
// @Failure 400 {object} services.ErrorResponse
// @Router /cart/{kind}/{id} [delete]
func (h *CartHandler) Remove(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	item := services.CartItem{Kind: chi.URLParam(r, "kind"), ID: chi.URLParam(r, "id")}
	if err := h.validator.ValidateStruct(&item); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if err := h.cart.Remove(r.Context(), claims.UserID, item); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Clear empties the cart
// @Summary Clear cart
// @Tags Cart
// @Security BearerAuth
// @Success 204
// @Router /cart [delete]
func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	if err := h.cart.Clear(r.Context(), claims.UserID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
