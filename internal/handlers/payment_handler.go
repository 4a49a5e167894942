package handlers

import (
	"bufio"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gridbill/backend/internal/services"
)

// RejectRequest carries the reviewer's reason
// @Description Transaction rejection request
type RejectRequest struct {
	Reason string `json:"reason" validate:"required,max=500" example:"UTR not found in bank statement"`
}

// BulkPaymentRequest wraps the payments to record
// @Description Bulk batch payment request
type BulkPaymentRequest struct {
	Items []services.PaymentRequest `json:"items" validate:"required,min=1"`
}

type PaymentHandler struct {
	payments  *services.PaymentService
	reviews   *services.ReviewService
	receipts  *services.ReceiptService
	validator *services.ValidationHelper
}

func NewPaymentHandler(payments *services.PaymentService, reviews *services.ReviewService, receipts *services.ReceiptService) *PaymentHandler {
	return &PaymentHandler{
		payments:  payments,
		reviews:   reviews,
		receipts:  receipts,
		validator: services.NewValidationHelper(),
	}
}

// Pay records a payment for a batch
// @Summary Record batch payment
// @Description Writes a pending transaction for a payable batch. A batch that is not payable is skipped with recorded=false.
// @Tags Payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.PaymentRequest true "Payment details"
// @Success 200 {object} services.PaymentResult
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /batch/pay [post]
func (h *PaymentHandler) Pay(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	var req services.PaymentRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	result, err := h.payments.Record(r.Context(), claims.OrgID, claims.UserID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// PayBulk records payments for several batches
// @Summary Record bulk batch payments
// @Description Each item is processed independently; the response lists one result per item
// @Tags Payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body BulkPaymentRequest true "Payments"
// @Success 200 {object} services.BulkPaymentResult
// @Failure 400 {object} services.ErrorResponse
// @Router /batch/pay/bulk [post]
func (h *PaymentHandler) PayBulk(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	var req BulkPaymentRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	result, err := h.payments.RecordBulk(r.Context(), claims.OrgID, claims.UserID, req.Items)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListTransactions returns payment transactions for review
// @Summary List transactions
// @Tags Transactions
// @Produce json
// @Security BearerAuth
// @Param status query string false "pending, approved or rejected"
// @Success 200 {array} models.PaymentGatewayTransaction
// @Router /transactions [get]
func (h *PaymentHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	txs, err := h.reviews.List(r.Context(), claims.OrgID, r.URL.Query().Get("status"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

// Approve approves a pending transaction
// @Summary Approve transaction
// @Description Threshold payments restore threshold credit; direct payments move the batch to processing
// @Tags Transactions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Transaction ID"
// @Success 200 {object} services.ReviewResult
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /transactions/{id}/approve [post]
func (h *PaymentHandler) Approve(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	result, err := h.reviews.Approve(r.Context(), claims.OrgID, chi.URLParam(r, "id"), claims.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Reject rejects a pending transaction
// @Summary Reject transaction
// @Tags Transactions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Transaction ID"
// @Param request body RejectRequest true "Rejection reason"
// @Success 200 {object} services.ReviewResult
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /transactions/{id}/reject [post]
func (h *PaymentHandler) Reject(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	var req RejectRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	result, err := h.reviews.Reject(r.Context(), claims.OrgID, chi.URLParam(r, "id"), claims.UserID, req.Reason)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// UploadReceipt attaches a payment receipt to a transaction
// @Summary Upload receipt
// @Tags Transactions
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path string true "Transaction ID"
// @Param receipt formData file true "PDF, PNG or JPEG receipt"
// @Success 201 {object} object{path=string}
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /transactions/{id}/receipt [post]
func (h *PaymentHandler) UploadReceipt(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, services.MaxReceiptSize+maxBodyBytes)
	if err := r.ParseMultipartForm(services.MaxReceiptSize); err != nil {
		services.SendErrorResponse(w, "Receipt must be a multipart upload under 5MB", http.StatusBadRequest, nil)
		return
	}

	file, _, err := r.FormFile("receipt")
	if err != nil {
		services.SendErrorResponse(w, "receipt file is required", http.StatusBadRequest, nil)
		return
	}
	defer file.Close()

	// Sniffed from the bytes, not the declared part type.
	br := bufio.NewReaderSize(file, 512)
	head, _ := br.Peek(512)
	contentType := http.DetectContentType(head)

	path, err := h.receipts.Upload(r.Context(), claims.OrgID, chi.URLParam(r, "id"), claims.UserID, contentType, br)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"path": path})
}

// ReceiptURL returns a short-lived link to the transaction's receipt
// @Summary Receipt link
// @Tags Transactions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Transaction ID"
// @Success 200 {object} services.ReceiptURL
// @Failure 404 {object} services.ErrorResponse
// @Router /transactions/{id}/receipt [get]
func (h *PaymentHandler) ReceiptURL(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	link, err := h.receipts.SignedURL(r.Context(), claims.OrgID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, link)
}
