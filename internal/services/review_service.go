package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/gridbill/backend/internal/audit"
	"github.com/gridbill/backend/internal/metrics"
	"github.com/gridbill/backend/internal/models"
	"github.com/gridbill/backend/internal/notify"
)

const lockReviewSQL = `SELECT t.batch_id, t.amount, t.payment_status, t.transaction_pay_type, b.batch_status, b.batch_type
	FROM payment_gateway_transactions t
	JOIN batches b ON b.id = t.batch_id
	WHERE t.id = $1 AND t.organization_id = $2
	FOR UPDATE OF t, b`

// ReviewResult reports what a review changed. Changed is false for a repeated
// decision that was already applied.
type ReviewResult struct {
	TransactionID   string          `json:"transactionId"`
	PaymentStatus   string          `json:"paymentStatus"`
	Changed         bool            `json:"changed"`
	BatchID         string          `json:"batchId"`
	BatchStatus     string          `json:"batchStatus"`
	ThresholdCredit decimal.Decimal `json:"thresholdCredit"`
}

type reviewTarget struct {
	batchID     string
	amount      decimal.Decimal
	status      string
	payType     string
	batchStatus string
	batchType   string
}

// ReviewService applies reviewer decisions on payment gateway transactions.
// Each decision and its side effect commit together.
type ReviewService struct {
	db       *sql.DB
	audit    *audit.Logger
	notifier *notify.Notifier
}

func NewReviewService(db *sql.DB, auditLogger *audit.Logger, notifier *notify.Notifier) *ReviewService {
	return &ReviewService{db: db, audit: auditLogger, notifier: notifier}
}

func lockReviewTarget(ctx context.Context, tx *sql.Tx, orgID, txID string) (reviewTarget, error) {
	var t reviewTarget
	err := tx.QueryRowContext(ctx, lockReviewSQL, txID, orgID).
		Scan(&t.batchID, &t.amount, &t.status, &t.payType, &t.batchStatus, &t.batchType)
	if errors.Is(err, sql.ErrNoRows) {
		return t, notFound("transaction")
	}
	if err != nil {
		return t, fmt.Errorf("lock transaction: %w", err)
	}
	return t, nil
}

// Approve marks a pending transaction approved. A threshold payment credits
// its amount back to the organization's threshold; a direct payment moves its
// batch into processing. Approving twice credits once.
func (s *ReviewService) Approve(ctx context.Context, orgID, txID, reviewerID string) (ReviewResult, error) {
	result := ReviewResult{TransactionID: txID, ThresholdCredit: decimal.Zero}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	target, err := lockReviewTarget(ctx, tx, orgID, txID)
	if err != nil {
		return result, err
	}
	result.BatchID = target.batchID
	result.BatchStatus = target.batchStatus

	switch target.status {
	case models.TransactionApproved:
		result.PaymentStatus = models.TransactionApproved
		return result, nil
	case models.TransactionRejected:
		return result, stateErr("transaction was already rejected")
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE payment_gateway_transactions SET payment_status = $1, reviewed_by = $2, reviewed_at = NOW() WHERE id = $3",
		models.TransactionApproved, reviewerID, txID)
	if err != nil {
		return result, fmt.Errorf("approve transaction: %w", err)
	}

	switch target.payType {
	case models.PayTypeThreshold:
		_, err = tx.ExecContext(ctx,
			"UPDATE organizations SET batch_threshold_amount = batch_threshold_amount + $1, updated_at = NOW() WHERE id = $2",
			target.amount, orgID)
		if err != nil {
			return result, fmt.Errorf("restore threshold: %w", err)
		}
		result.ThresholdCredit = target.amount
	default:
		if target.batchStatus == models.BatchStatusClientPaid {
			_, err = tx.ExecContext(ctx,
				"UPDATE batches SET batch_status = $1, updated_by = $2, updated_at = NOW() WHERE id = $3",
				models.BatchStatusProcessing, reviewerID, target.batchID)
			if err != nil {
				return result, fmt.Errorf("move batch to processing: %w", err)
			}
			result.BatchStatus = models.BatchStatusProcessing
		}
	}

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("commit: %w", err)
	}

	result.PaymentStatus = models.TransactionApproved
	result.Changed = true

	metrics.TransactionReviews.WithLabelValues("approved", target.payType).Inc()
	if target.payType == models.PayTypeThreshold {
		metrics.AddAmount(metrics.ThresholdCredited, target.amount)
	}
	s.audit.LogReview(orgID, txID, reviewerID, "APPROVED", target.amount, map[string]string{
		"batch_id":         target.batchID,
		"pay_type":         target.payType,
		"threshold_credit": result.ThresholdCredit.String(),
	})
	s.notifier.PublishEvent(ctx, notify.Event{
		Type:           "transaction.approved",
		OrganizationID: orgID,
		EntityID:       txID,
		Data:           map[string]string{"batch_id": target.batchID, "pay_type": target.payType, "amount": target.amount.String()},
	})
	slog.InfoContext(ctx, "[REVIEW] transaction approved", "transaction_id", txID, "pay_type", target.payType)
	return result, nil
}

// Reject marks a pending transaction rejected. A batch that went to
// processing on threshold credit returns to client_paid so it can be
// resubmitted or paid directly.
func (s *ReviewService) Reject(ctx context.Context, orgID, txID, reviewerID, reason string) (ReviewResult, error) {
	result := ReviewResult{TransactionID: txID, ThresholdCredit: decimal.Zero}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	target, err := lockReviewTarget(ctx, tx, orgID, txID)
	if err != nil {
		return result, err
	}
	result.BatchID = target.batchID
	result.BatchStatus = target.batchStatus

	switch target.status {
	case models.TransactionRejected:
		result.PaymentStatus = models.TransactionRejected
		return result, nil
	case models.TransactionApproved:
		return result, stateErr("transaction was already approved")
	}

	var reasonArg any
	if r := strings.TrimSpace(reason); r != "" {
		reasonArg = r
	}
	_, err = tx.ExecContext(ctx,
		"UPDATE payment_gateway_transactions SET payment_status = $1, reviewed_by = $2, reviewed_at = NOW(), rejection_reason = $3 WHERE id = $4",
		models.TransactionRejected, reviewerID, reasonArg, txID)
	if err != nil {
		return result, fmt.Errorf("reject transaction: %w", err)
	}

	if target.batchType == models.BatchTypeThreshold || target.payType == models.PayTypeThreshold {
		_, err = tx.ExecContext(ctx,
			"UPDATE batches SET batch_status = $1, batch_type = $2, updated_by = $3, updated_at = NOW() WHERE id = $4",
			models.BatchStatusClientPaid, models.BatchTypeDirect, reviewerID, target.batchID)
		if err != nil {
			return result, fmt.Errorf("reset batch: %w", err)
		}
		result.BatchStatus = models.BatchStatusClientPaid
	}

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("commit: %w", err)
	}

	result.PaymentStatus = models.TransactionRejected
	result.Changed = true

	metrics.TransactionReviews.WithLabelValues("rejected", target.payType).Inc()
	s.audit.LogReview(orgID, txID, reviewerID, "REJECTED", target.amount, map[string]string{
		"batch_id": target.batchID,
		"pay_type": target.payType,
		"reason":   reason,
	})
	s.notifier.PublishEvent(ctx, notify.Event{
		Type:           "transaction.rejected",
		OrganizationID: orgID,
		EntityID:       txID,
		Data:           map[string]string{"batch_id": target.batchID, "reason": reason},
	})
	slog.InfoContext(ctx, "[REVIEW] transaction rejected", "transaction_id", txID, "batch_status", result.BatchStatus)
	return result, nil
}

// List returns the organization's transactions, newest first, optionally
// filtered by payment status.
func (s *ReviewService) List(ctx context.Context, orgID, status string) ([]models.PaymentGatewayTransaction, error) {
	query := "SELECT " + transactionColumns + " FROM payment_gateway_transactions WHERE organization_id = $1"
	args := []any{orgID}
	if status != "" {
		query += " AND payment_status = $2"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []models.PaymentGatewayTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const transactionColumns = `id, batch_id, organization_id, transaction_reference, amount, payment_mode, remarks,
	transaction_date, payment_status, transaction_pay_type, reviewed_by, reviewed_at, rejection_reason,
	receipt_path, created_by, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (models.PaymentGatewayTransaction, error) {
	var t models.PaymentGatewayTransaction
	var reviewedBy, reason, receipt sql.NullString
	var reviewedAt sql.NullTime
	err := row.Scan(&t.ID, &t.BatchID, &t.OrganizationID, &t.TransactionReference, &t.Amount, &t.PaymentMode,
		&t.Remarks, &t.TransactionDate, &t.PaymentStatus, &t.TransactionPayType, &reviewedBy, &reviewedAt,
		&reason, &receipt, &t.CreatedBy, &t.CreatedAt)
	if err != nil {
		return t, fmt.Errorf("scan transaction: %w", err)
	}
	t.ReviewedBy = nullString(reviewedBy)
	t.RejectionReason = nullString(reason)
	t.ReceiptPath = nullString(receipt)
	if reviewedAt.Valid {
		ts := reviewedAt.Time
		t.ReviewedAt = &ts
	}
	return t, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
