package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/gridbill/backend/internal/audit"
	"github.com/gridbill/backend/internal/metrics"
	"github.com/gridbill/backend/internal/models"
	"github.com/gridbill/backend/internal/notify"
)

const (
	selectThresholdSQL       = "SELECT batch_threshold_amount FROM organizations WHERE id = $1"
	selectThresholdForUpdate = selectThresholdSQL + " FOR UPDATE"

	// Approved, committed value that has not been paid to the biller yet.
	sumApprovedUnpaidSQL = `SELECT COALESCE(SUM(cp.approved_amount), 0)
		FROM client_payments cp
		JOIN batches b ON b.id = cp.batch_id
		WHERE b.organization_id = $1 AND b.batch_status = 'processing' AND cp.status = 'pending'`
)

// ThresholdService guards the move of a batch into processing on threshold credit.
type ThresholdService struct {
	db       *sql.DB
	audit    *audit.Logger
	notifier *notify.Notifier
}

func NewThresholdService(db *sql.DB, auditLogger *audit.Logger, notifier *notify.Notifier) *ThresholdService {
	return &ThresholdService{db: db, audit: auditLogger, notifier: notifier}
}

// SubmitResult describes a successful threshold submission.
type SubmitResult struct {
	BatchID     string                 `json:"batchId"`
	BatchStatus string                 `json:"batchStatus"`
	BatchType   string                 `json:"batchType"`
	Candidate   decimal.Decimal        `json:"candidate"`
	Status      models.ThresholdStatus `json:"threshold"`
}

// CheckThreshold returns a *ThresholdExceededError when adding candidate to
// the approved total would pass the threshold. Reaching it exactly is allowed.
func CheckThreshold(status models.ThresholdStatus, candidate decimal.Decimal) error {
	projected := status.TotalApproved.Add(candidate)
	if projected.GreaterThan(status.Threshold) {
		return &ThresholdExceededError{
			TotalApproved: status.TotalApproved,
			Candidate:     candidate,
			Threshold:     status.Threshold,
			Excess:        projected.Sub(status.Threshold),
		}
	}
	return nil
}

func fetchThresholdStatus(ctx context.Context, q dbtx, orgID string, lock bool) (models.ThresholdStatus, error) {
	var status models.ThresholdStatus

	query := selectThresholdSQL
	if lock {
		query = selectThresholdForUpdate
	}
	if err := q.QueryRowContext(ctx, query, orgID).Scan(&status.Threshold); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return status, notFound("organization")
		}
		return status, fmt.Errorf("load threshold: %w", err)
	}

	if err := q.QueryRowContext(ctx, sumApprovedUnpaidSQL, orgID).Scan(&status.TotalApproved); err != nil {
		return status, fmt.Errorf("sum approved amount: %w", err)
	}
	return status, nil
}

// Status returns the organization's current utilization without locking.
func (s *ThresholdService) Status(ctx context.Context, orgID string) (models.ThresholdStatus, error) {
	return fetchThresholdStatus(ctx, s.db, orgID, false)
}

// SubmitBatch moves a client_paid batch to processing on threshold credit.
// The organization row stays locked from the check to the status write, so
// concurrent submissions for one organization are serialized. A rejected
// submission leaves the batch untouched.
func (s *ThresholdService) SubmitBatch(ctx context.Context, orgID, batchID, userID string) (*SubmitResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	status, err := fetchThresholdStatus(ctx, tx, orgID, true)
	if err != nil {
		metrics.ThresholdChecks.WithLabelValues("error").Inc()
		return nil, err
	}

	var batchStatus string
	var candidate decimal.Decimal
	err = tx.QueryRowContext(ctx,
		"SELECT batch_status, total_amount FROM batches WHERE id = $1 AND organization_id = $2 FOR UPDATE",
		batchID, orgID).Scan(&batchStatus, &candidate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("batch")
	}
	if err != nil {
		metrics.ThresholdChecks.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("lock batch: %w", err)
	}
	if batchStatus != models.BatchStatusClientPaid {
		return nil, stateErr("batch is %s, only client_paid batches can be submitted", batchStatus)
	}

	live, err := countLiveTransactions(ctx, tx, batchID)
	if err != nil {
		metrics.ThresholdChecks.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("count transactions: %w", err)
	}
	if live > 0 {
		return nil, stateErr("batch already has a payment awaiting review")
	}

	if err := CheckThreshold(status, candidate); err != nil {
		var exceeded *ThresholdExceededError
		if errors.As(err, &exceeded) {
			metrics.ThresholdChecks.WithLabelValues("rejected").Inc()
			s.audit.LogThresholdCheck(orgID, batchID, userID, candidate, false, map[string]string{
				"total_approved": status.TotalApproved.String(),
				"threshold":      status.Threshold.String(),
				"excess":         exceeded.Excess.String(),
			})
			slog.InfoContext(ctx, "[THRESHOLD] submission rejected",
				"org_id", orgID, "batch_id", batchID, "excess", exceeded.Excess.String())
		}
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE batches SET batch_status = $1, batch_type = $2, updated_by = $3, updated_at = NOW() WHERE id = $4",
		models.BatchStatusProcessing, models.BatchTypeThreshold, userID, batchID)
	if err != nil {
		metrics.ThresholdChecks.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("update batch status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		metrics.ThresholdChecks.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("commit: %w", err)
	}

	metrics.ThresholdChecks.WithLabelValues("accepted").Inc()
	s.audit.LogThresholdCheck(orgID, batchID, userID, candidate, true, map[string]string{
		"total_approved": status.TotalApproved.String(),
		"threshold":      status.Threshold.String(),
	})
	s.notifier.PublishEvent(ctx, notify.Event{
		Type:           "batch.processing",
		OrganizationID: orgID,
		EntityID:       batchID,
		Data:           map[string]string{"batch_type": models.BatchTypeThreshold, "amount": candidate.String()},
	})
	slog.InfoContext(ctx, "[THRESHOLD] batch moved to processing", "org_id", orgID, "batch_id", batchID)

	status.TotalApproved = status.TotalApproved.Add(candidate)
	return &SubmitResult{
		BatchID:     batchID,
		BatchStatus: models.BatchStatusProcessing,
		BatchType:   models.BatchTypeThreshold,
		Candidate:   candidate,
		Status:      status,
	}, nil
}
