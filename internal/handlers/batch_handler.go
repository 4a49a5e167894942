package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gridbill/backend/internal/services"
)

type BatchHandler struct {
	batches    *services.BatchService
	threshold  *services.ThresholdService
	settlement *services.SettlementService
	qr         *services.QRService
	validator  *services.ValidationHelper
}

func NewBatchHandler(batches *services.BatchService, threshold *services.ThresholdService,
	settlement *services.SettlementService, qr *services.QRService) *BatchHandler {
	return &BatchHandler{
		batches:    batches,
		threshold:  threshold,
		settlement: settlement,
		qr:         qr,
		validator:  services.NewValidationHelper(),
	}
}

// Create builds a batch from approved bills and recharges
// @Summary Create batch
// @Description Batch approved bills and recharges, by id or from the caller's cart
// @Tags Batches
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.CreateBatchRequest true "Batch selection"
// @Success 201 {object} services.BatchDetail
// @Failure 400 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /batches [post]
func (h *BatchHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	var req services.CreateBatchRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	batch, err := h.batches.Create(r.Context(), claims.OrgID, claims.UserID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, batch)
}

// List returns the organization's batches
// @Summary List batches
// @Tags Batches
// @Produce json
// @Security BearerAuth
// @Param status query string false "Batch status"
// @Success 200 {array} services.BatchSummary
// @Router /batches [get]
func (h *BatchHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	batches, err := h.batches.List(r.Context(), claims.OrgID, r.URL.Query().Get("status"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batches)
}

// Get returns one batch with its lines and transactions
// @Summary Get batch
// @Tags Batches
// @Produce json
// @Security BearerAuth
// @Param id path string true "Batch ID"
// @Success 200 {object} services.BatchDetail
// @Failure 404 {object} services.ErrorResponse
// @Router /batches/{id} [get]
func (h *BatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	batch, err := h.batches.Get(r.Context(), claims.OrgID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

// Submit moves a batch to processing on threshold credit
// @Summary Submit batch on threshold
// @Description Checks the organization's threshold and, when it holds, moves the batch to processing
// @Tags Batches
// @Produce json
// @Security BearerAuth
// @Param id path string true "Batch ID"
// @Success 200 {object} services.SubmitResult
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse "Threshold exceeded"
// @Router /batches/{id}/submit [post]
func (h *BatchHandler) Submit(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	result, err := h.threshold.SubmitBatch(r.Context(), claims.OrgID, chi.URLParam(r, "id"), claims.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// PayNow reports whether a payment may be recorded and how to pay
// @Summary Pay Now state
// @Tags Batches
// @Produce json
// @Security BearerAuth
// @Param id path string true "Batch ID"
// @Success 200 {object} services.PayNowInfo
// @Failure 404 {object} services.ErrorResponse
// @Router /batches/{id}/pay-now [get]
func (h *BatchHandler) PayNow(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	info, err := h.batches.PayNow(r.Context(), claims.OrgID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// Statement downloads the batch lines as a spreadsheet
// @Summary Batch statement
// @Tags Batches
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security BearerAuth
// @Param id path string true "Batch ID"
// @Success 200 {file} binary
// @Failure 404 {object} services.ErrorResponse
// @Router /batches/{id}/statement.xlsx [get]
func (h *BatchHandler) Statement(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	batchID := chi.URLParam(r, "id")
	data, err := h.batches.Statement(r.Context(), claims.OrgID, batchID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeAttachment(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"batch-"+batchID+".xlsx", data)
}

// Settlement exports the batch as ISO 20022 credit transfers
// @Summary Settlement export (pacs.008)
// @Tags Batches
// @Produce xml
// @Security BearerAuth
// @Param id path string true "Batch ID"
// @Success 200 {file} binary
// @Failure 404 {object} services.ErrorResponse
// @Router /batches/{id}/settlement.xml [get]
func (h *BatchHandler) Settlement(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	batchID := chi.URLParam(r, "id")
	data, err := h.settlement.CreditTransfers(r.Context(), claims.OrgID, batchID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeAttachment(w, "application/xml", "settlement-"+batchID+".xml", data)
}

// StatusReport exports the review state of the batch's transactions
// @Summary Payment status report (pacs.002)
// @Tags Batches
// @Produce xml
// @Security BearerAuth
// @Param id path string true "Batch ID"
// @Success 200 {file} binary
// @Failure 404 {object} services.ErrorResponse
// @Router /batches/{id}/status-report.xml [get]
func (h *BatchHandler) StatusReport(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	batchID := chi.URLParam(r, "id")
	data, err := h.settlement.StatusReport(r.Context(), claims.OrgID, batchID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeAttachment(w, "application/xml", "status-"+batchID+".xml", data)
}

// SettleSweep settles every processing batch that is fully paid
// @Summary Run settlement sweep
// @Tags Batches
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{settled=[]services.SettledBatch}
// @Failure 403 {object} services.ErrorResponse
// @Router /batches/settle-sweep [post]
func (h *BatchHandler) SettleSweep(w http.ResponseWriter, r *http.Request) {
	settled, err := h.settlement.Sweep(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"settled": settled})
}

// ResolveQR returns the batch and amount a payment QR reference points to
// @Summary Resolve payment QR
// @Tags Batches
// @Produce json
// @Security BearerAuth
// @Param ref path string true "QR reference"
// @Success 200 {object} services.PaymentQRTarget
// @Failure 404 {object} services.ErrorResponse
// @Router /payment-qr/{ref} [get]
func (h *BatchHandler) ResolveQR(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	target, err := h.qr.Resolve(r.Context(), claims.OrgID, chi.URLParam(r, "ref"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, target)
}

func writeAttachment(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
