package services

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridbill/backend/internal/models"
)

func TestCheckThreshold(t *testing.T) {
	status := models.ThresholdStatus{
		TotalApproved: decimal.NewFromInt(95000),
		Threshold:     decimal.NewFromInt(100000),
	}

	t.Run("exceeding candidate is rejected", func(t *testing.T) {
		err := CheckThreshold(status, decimal.NewFromInt(10000))

		var exceeded *ThresholdExceededError
		require.True(t, errors.As(err, &exceeded))
		assert.Equal(t, "5000", exceeded.Excess.String())
		assert.Equal(t, "100000", exceeded.Threshold.String())
		assert.Equal(t, "Batch amount exceeds threshold by 5000. Threshold: 100000", err.Error())
	})

	t.Run("reaching the threshold exactly is allowed", func(t *testing.T) {
		assert.NoError(t, CheckThreshold(status, decimal.NewFromInt(5000)))
	})

	t.Run("fractional excess", func(t *testing.T) {
		err := CheckThreshold(status, decimal.RequireFromString("5000.50"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "by 0.5.")
	})
}

func expectThresholdLock(mock sqlmock.Sqlmock, orgID, threshold, total string) {
	mock.ExpectQuery(q(selectThresholdForUpdate)).
		WithArgs(orgID).
		WillReturnRows(sqlmock.NewRows([]string{"batch_threshold_amount"}).AddRow(threshold))
	mock.ExpectQuery(q(sumApprovedUnpaidSQL)).
		WithArgs(orgID).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(total))
}

func TestThresholdService_SubmitBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewThresholdService(db, testAudit(), testNotifier())
	ctx := context.Background()

	lockBatch := q("SELECT batch_status, total_amount FROM batches WHERE id = $1 AND organization_id = $2 FOR UPDATE")
	countLive := q("SELECT COUNT(*) FROM payment_gateway_transactions WHERE batch_id = $1 AND payment_status <> 'rejected'")

	t.Run("rejects batch over threshold without touching it", func(t *testing.T) {
		mock.ExpectBegin()
		expectThresholdLock(mock, "org-1", "100000.00", "95000.00")
		mock.ExpectQuery(lockBatch).
			WithArgs("batch-1", "org-1").
			WillReturnRows(sqlmock.NewRows([]string{"batch_status", "total_amount"}).AddRow("client_paid", "10000.00"))
		mock.ExpectQuery(countLive).
			WithArgs("batch-1").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectRollback()

		result, err := service.SubmitBatch(ctx, "org-1", "batch-1", "user-1")
		assert.Nil(t, result)

		var exceeded *ThresholdExceededError
		require.True(t, errors.As(err, &exceeded))
		assert.Contains(t, err.Error(), "5000")
		assert.Contains(t, err.Error(), "100000")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("moves batch to processing within threshold", func(t *testing.T) {
		mock.ExpectBegin()
		expectThresholdLock(mock, "org-1", "100000.00", "50000.00")
		mock.ExpectQuery(lockBatch).
			WithArgs("batch-2", "org-1").
			WillReturnRows(sqlmock.NewRows([]string{"batch_status", "total_amount"}).AddRow("client_paid", "10000.00"))
		mock.ExpectQuery(countLive).
			WithArgs("batch-2").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectExec(q("UPDATE batches SET batch_status = $1, batch_type = $2, updated_by = $3, updated_at = NOW() WHERE id = $4")).
			WithArgs("processing", "threshold", "user-1", "batch-2").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		result, err := service.SubmitBatch(ctx, "org-1", "batch-2", "user-1")
		require.NoError(t, err)
		assert.Equal(t, models.BatchStatusProcessing, result.BatchStatus)
		assert.Equal(t, models.BatchTypeThreshold, result.BatchType)
		assert.Equal(t, "60000", result.Status.TotalApproved.String())
		assert.Equal(t, "40000", result.Status.Headroom().String())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("batch not client_paid", func(t *testing.T) {
		mock.ExpectBegin()
		expectThresholdLock(mock, "org-1", "100000.00", "0")
		mock.ExpectQuery(lockBatch).
			WithArgs("batch-3", "org-1").
			WillReturnRows(sqlmock.NewRows([]string{"batch_status", "total_amount"}).AddRow("processing", "10.00"))
		mock.ExpectRollback()

		_, err := service.SubmitBatch(ctx, "org-1", "batch-3", "user-1")
		assert.ErrorIs(t, err, ErrInvalidState)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("batch with pending payment", func(t *testing.T) {
		mock.ExpectBegin()
		expectThresholdLock(mock, "org-1", "100000.00", "0")
		mock.ExpectQuery(lockBatch).
			WithArgs("batch-4", "org-1").
			WillReturnRows(sqlmock.NewRows([]string{"batch_status", "total_amount"}).AddRow("client_paid", "10.00"))
		mock.ExpectQuery(countLive).
			WithArgs("batch-4").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		mock.ExpectRollback()

		_, err := service.SubmitBatch(ctx, "org-1", "batch-4", "user-1")
		assert.ErrorIs(t, err, ErrInvalidState)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown batch", func(t *testing.T) {
		mock.ExpectBegin()
		expectThresholdLock(mock, "org-1", "100000.00", "0")
		mock.ExpectQuery(lockBatch).
			WithArgs("missing", "org-1").
			WillReturnRows(sqlmock.NewRows([]string{"batch_status", "total_amount"}))
		mock.ExpectRollback()

		_, err := service.SubmitBatch(ctx, "org-1", "missing", "user-1")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("backend failure commits nothing", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(q(selectThresholdForUpdate)).
			WithArgs("org-1").
			WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()

		_, err := service.SubmitBatch(ctx, "org-1", "batch-5", "user-1")
		assert.ErrorContains(t, err, "load threshold")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestThresholdService_Status(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewThresholdService(db, testAudit(), testNotifier())

	mock.ExpectQuery(q(selectThresholdSQL)).
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{"batch_threshold_amount"}).AddRow("100000.00"))
	mock.ExpectQuery(q(sumApprovedUnpaidSQL)).
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow("95000.00"))

	status, err := service.Status(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, "100000", status.Threshold.String())
	assert.Equal(t, "5000", status.Headroom().String())
	assert.NoError(t, mock.ExpectationsWereMet())
}
