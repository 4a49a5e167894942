package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gridbill/backend/internal/audit"
	"github.com/gridbill/backend/internal/metrics"
	"github.com/gridbill/backend/internal/models"
	"github.com/gridbill/backend/internal/notify"
)

// PaymentRequest represents a batch payment recording
// @Description Batch payment recording request
type PaymentRequest struct {
	BatchID              string `json:"batchId" validate:"required" example:"5f0c6c1e-7a43-4c55-8f57-2f1b0c7a9d10"`
	TransactionReference string `json:"transactionReference" validate:"required,max=64" example:"UTR202603010001"`
	PaymentMode          string `json:"paymentMode" validate:"required,oneof=neft rtgs imps upi cheque dd cash" example:"neft"`
	Remarks              string `json:"remarks" validate:"max=500" example:"March bills"`
	TransactionDate      string `json:"transactionDate" validate:"required,datetime=2006-01-02" example:"2026-03-01"`
}

// PaymentResult is the outcome for one batch. Recorded is false when the
// batch no longer matched the payable status filter.
type PaymentResult struct {
	BatchID       string `json:"batchId"`
	Recorded      bool   `json:"recorded"`
	TransactionID string `json:"transactionId,omitempty"`
	PayType       string `json:"payType,omitempty"`
	Error         string `json:"error,omitempty"`
}

type BulkSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// BulkPaymentResult lists one result per requested batch, in request order.
type BulkPaymentResult struct {
	Results []PaymentResult `json:"results"`
	Summary BulkSummary     `json:"summary"`
	Error   string          `json:"error,omitempty"`
}

type PaymentService struct {
	db        *sql.DB
	validator *ValidationHelper
	audit     *audit.Logger
	notifier  *notify.Notifier
	newID     IDGenerator
	workers   int
	maxItems  int
}

func NewPaymentService(db *sql.DB, auditLogger *audit.Logger, notifier *notify.Notifier, workers, maxItems int) *PaymentService {
	if workers < 1 {
		workers = 1
	}
	return &PaymentService{
		db:        db,
		validator: NewValidationHelper(),
		audit:     auditLogger,
		notifier:  notifier,
		newID:     newUUID,
		workers:   workers,
		maxItems:  maxItems,
	}
}

// Record writes a pending payment gateway transaction for the batch. A batch
// that is not payable (see models.Batch.CanPayNow) is skipped without error.
func (s *PaymentService) Record(ctx context.Context, orgID, userID string, req PaymentRequest) (PaymentResult, error) {
	result := PaymentResult{BatchID: req.BatchID}

	txDate, err := time.Parse("2006-01-02", req.TransactionDate)
	if err != nil {
		return result, inputErr("transactionDate must be YYYY-MM-DD")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var batch models.Batch
	err = tx.QueryRowContext(ctx,
		"SELECT batch_status, batch_type, total_amount FROM batches WHERE id = $1 AND organization_id = $2 FOR UPDATE",
		req.BatchID, orgID).Scan(&batch.BatchStatus, &batch.BatchType, &batch.TotalAmount)
	if errors.Is(err, sql.ErrNoRows) {
		return result, notFound("batch")
	}
	if err != nil {
		return result, fmt.Errorf("lock batch: %w", err)
	}

	live, err := countLiveTransactions(ctx, tx, req.BatchID)
	if err != nil {
		return result, fmt.Errorf("count transactions: %w", err)
	}

	payType := batch.PayType()
	if !batch.CanPayNow(live) {
		metrics.BatchPayments.WithLabelValues("skipped", payType).Inc()
		slog.InfoContext(ctx, "[PAYMENT] batch no longer payable, skipping",
			"batch_id", req.BatchID, "status", batch.BatchStatus, "type", batch.BatchType, "live_transactions", live)
		return result, nil
	}

	txID := s.newID()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO payment_gateway_transactions
			(id, batch_id, organization_id, transaction_reference, amount, payment_mode, remarks, transaction_date, payment_status, transaction_pay_type, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		txID, req.BatchID, orgID, req.TransactionReference, batch.TotalAmount, req.PaymentMode, req.Remarks,
		txDate, models.TransactionPending, payType, userID)
	if err != nil {
		return result, fmt.Errorf("insert transaction: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE batches SET updated_by = $1, updated_at = NOW() WHERE id = $2",
		userID, req.BatchID)
	if err != nil {
		return result, fmt.Errorf("touch batch: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("commit: %w", err)
	}

	metrics.BatchPayments.WithLabelValues("recorded", payType).Inc()
	s.audit.LogPayment(orgID, req.BatchID, txID, userID, batch.TotalAmount, payType)
	s.notifier.PublishEvent(ctx, notify.Event{
		Type:           "payment.recorded",
		OrganizationID: orgID,
		EntityID:       txID,
		Data: map[string]string{
			"batch_id":  req.BatchID,
			"pay_type":  payType,
			"amount":    batch.TotalAmount.String(),
			"reference": req.TransactionReference,
		},
	})
	slog.InfoContext(ctx, "[PAYMENT] payment recorded", "batch_id", req.BatchID, "transaction_id", txID, "pay_type", payType)

	result.Recorded = true
	result.TransactionID = txID
	result.PayType = payType
	return result, nil
}

// RecordBulk records each item independently on a bounded worker group.
// One item failing never affects another.
func (s *PaymentService) RecordBulk(ctx context.Context, orgID, userID string, items []PaymentRequest) (BulkPaymentResult, error) {
	if len(items) == 0 {
		return BulkPaymentResult{}, inputErr("at least one item is required")
	}
	if s.maxItems > 0 && len(items) > s.maxItems {
		return BulkPaymentResult{}, inputErr("at most %d items per request", s.maxItems)
	}

	results := make([]PaymentResult, len(items))
	var g errgroup.Group
	g.SetLimit(s.workers)

	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			if err := s.validator.ValidateStruct(&item); err != nil {
				results[i] = PaymentResult{BatchID: item.BatchID, Error: "validation failed: " + summarizeValidation(err)}
				return nil
			}
			res, err := s.Record(ctx, orgID, userID, item)
			if err != nil {
				metrics.BatchPayments.WithLabelValues("failed", "").Inc()
				slog.WarnContext(ctx, "[PAYMENT] bulk item failed", "batch_id", item.BatchID, "err", err)
				res.Error = PublicMessage(err)
			}
			results[i] = res
			return nil
		})
	}
	g.Wait()

	out := BulkPaymentResult{Results: results, Summary: BulkSummary{Total: len(results)}}
	for _, r := range results {
		switch {
		case r.Error != "":
			out.Summary.Failed++
			if out.Error == "" {
				out.Error = fmt.Sprintf("payment for batch %s failed: %s", r.BatchID, r.Error)
			}
		case r.Recorded:
			out.Summary.Succeeded++
		default:
			out.Summary.Skipped++
		}
	}
	return out, nil
}
