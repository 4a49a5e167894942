package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/gridbill/backend/internal/services"
)

// ApproveBillRequest optionally overrides the approved amount
// @Description Bill approval request
type ApproveBillRequest struct {
	Amount *decimal.Decimal `json:"amount,omitempty" swaggertype:"string" example:"1225.00"`
}

// PaymentStatusRequest marks a bill paid or unpaid at the biller
// @Description Bill payment status update
type PaymentStatusRequest struct {
	Paid bool `json:"paid"`
}

// BulkBillRequest lists the bills to act on
// @Description Bulk bill request
type BulkBillRequest struct {
	BillIDs []string `json:"billIds" validate:"required,min=1,max=200"`
}

type BillHandler struct {
	bills     *services.BillService
	recharges *services.RechargeService
	validator *services.ValidationHelper
}

func NewBillHandler(bills *services.BillService, recharges *services.RechargeService) *BillHandler {
	return &BillHandler{
		bills:     bills,
		recharges: recharges,
		validator: services.NewValidationHelper(),
	}
}

// Create adds a bill for one of the organization's connections
// @Summary Add bill
// @Tags Bills
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.CreateBillRequest true "Bill"
// @Success 201 {object} models.Bill
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /bill-add [post]
func (h *BillHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	var req services.CreateBillRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	bill, err := h.bills.Create(r.Context(), claims.OrgID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, bill)
}

// List returns the organization's bills
// @Summary List bills
// @Tags Bills
// @Produce json
// @Security BearerAuth
// @Param status query string false "Bill status"
// @Param connectionId query string false "Connection ID"
// @Success 200 {array} models.Bill
// @Router /bills [get]
func (h *BillHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	filter := services.BillFilter{
		Status:       r.URL.Query().Get("status"),
		ConnectionID: r.URL.Query().Get("connectionId"),
	}
	bills, err := h.bills.List(r.Context(), claims.OrgID, filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bills)
}

// Approve approves a bill for batching
// @Summary Approve bill
// @Description Without an amount, the discounted amount applies until the discount date
// @Tags Bills
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Bill ID"
// @Param request body ApproveBillRequest false "Approved amount"
// @Success 200 {object} object{billId=string,approvedAmount=string}
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /bills/{id}/approve [post]
func (h *BillHandler) Approve(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	var req ApproveBillRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, h.validator, &req) {
		return
	}

	billID := chi.URLParam(r, "id")
	amount, err := h.bills.Approve(r.Context(), claims.OrgID, billID, claims.UserID, req.Amount)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"billId": billID, "approvedAmount": amount})
}

// Unapprove returns an approved bill to new
// @Summary Un-approve bill
// @Description Clears the approved amount and removes the bill from every cart
// @Tags Bills
// @Produce json
// @Security BearerAuth
// @Param id path string true "Bill ID"
// @Success 200 {object} object{billId=string}
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /bills/{id}/unapprove [post]
func (h *BillHandler) Unapprove(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	billID := chi.URLParam(r, "id")
	if err := h.bills.Unapprove(r.Context(), claims.OrgID, billID, claims.UserID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"billId": billID})
}

// SetPaymentStatus records whether the biller was paid
// @Summary Set bill payment status
// @Tags Bills
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Bill ID"
// @Param request body PaymentStatusRequest true "Payment status"
// @Success 200 {object} object{billId=string,paid=bool}
// @Failure 404 {object} services.ErrorResponse
// @Router /bills/{id}/payment-status [put]
func (h *BillHandler) SetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	var req PaymentStatusRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	billID := chi.URLParam(r, "id")
	if err := h.bills.SetPaymentStatus(r.Context(), claims.OrgID, billID, req.Paid); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"billId": billID, "paid": req.Paid})
}

// BulkApprove approves several bills
// @Summary Bulk approve bills
// @Tags Bills
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body BulkBillRequest true "Bills"
// @Success 200 {object} object{results=[]services.ItemResult}
// @Failure 400 {object} services.ErrorResponse
// @Router /bills/bulk-approve [post]
func (h *BillHandler) BulkApprove(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	var req BulkBillRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	results := h.bills.BulkApprove(r.Context(), claims.OrgID, claims.UserID, req.BillIDs)
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// BulkUnapprove un-approves several bills
// @Summary Bulk un-approve bills
// @Tags Bills
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body BulkBillRequest true "Bills"
// @Success 200 {object} object{results=[]services.ItemResult}
// @Failure 400 {object} services.ErrorResponse
// @Router /bills/bulk-unapprove [post]
func (h *BillHandler) BulkUnapprove(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	var req BulkBillRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	results := h.bills.BulkUnapprove(r.Context(), claims.OrgID, claims.UserID, req.BillIDs)
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// CreateRecharge adds a top-up for a prepaid connection
// @Summary Add recharge
// @Tags Recharges
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.CreateRechargeRequest true "Recharge"
// @Success 201 {object} models.Recharge
// @Failure 400 {object} services.ErrorResponse
// @Router /recharges [post]
func (h *BillHandler) CreateRecharge(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	var req services.CreateRechargeRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	recharge, err := h.recharges.Create(r.Context(), claims.OrgID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, recharge)
}

// ListRecharges returns the organization's recharges
// @Summary List recharges
// @Tags Recharges
// @Produce json
// @Security BearerAuth
// @Param status query string false "Recharge status"
// @Success 200 {array} models.Recharge
// @Router /recharges [get]
func (h *BillHandler) ListRecharges(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	recharges, err := h.recharges.List(r.Context(), claims.OrgID, r.URL.Query().Get("status"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recharges)
}

// ApproveRecharge approves a recharge for batching
// @Summary Approve recharge
// @Tags Recharges
// @Produce json
// @Security BearerAuth
// @Param id path string true "Recharge ID"
// @Success 200 {object} object{rechargeId=string}
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /recharges/{id}/approve [post]
func (h *BillHandler) ApproveRecharge(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	rechargeID := chi.URLParam(r, "id")
	if err := h.recharges.Approve(r.Context(), claims.OrgID, rechargeID, claims.UserID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"rechargeId": rechargeID})
}
