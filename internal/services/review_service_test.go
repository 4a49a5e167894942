package services

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reviewColumns = []string{"batch_id", "amount", "payment_status", "transaction_pay_type", "batch_status", "batch_type"}

func expectReviewTarget(mock sqlmock.Sqlmock, txID string, values ...driver.Value) {
	rows := sqlmock.NewRows(reviewColumns)
	if len(values) > 0 {
		rows.AddRow(values...)
	}
	mock.ExpectQuery(q(lockReviewSQL)).WithArgs(txID, "org-1").WillReturnRows(rows)
}

func TestReviewService_Approve(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewReviewService(db, testAudit(), testNotifier())
	ctx := context.Background()

	approveTx := q("UPDATE payment_gateway_transactions SET payment_status = $1, reviewed_by = $2, reviewed_at = NOW() WHERE id = $3")
	creditOrg := q("UPDATE organizations SET batch_threshold_amount = batch_threshold_amount + $1, updated_at = NOW() WHERE id = $2")

	t.Run("threshold payment credits the organization", func(t *testing.T) {
		mock.ExpectBegin()
		expectReviewTarget(mock, "tx-1", "batch-1", "5000.00", "pending", "threshold", "processing", "threshold")
		mock.ExpectExec(approveTx).
			WithArgs("approved", "rev-1", "tx-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(creditOrg).
			WithArgs("5000", "org-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		res, err := service.Approve(ctx, "org-1", "tx-1", "rev-1")
		require.NoError(t, err)
		assert.True(t, res.Changed)
		assert.Equal(t, "approved", res.PaymentStatus)
		assert.Equal(t, "5000", res.ThresholdCredit.String())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("approving again does not credit twice", func(t *testing.T) {
		mock.ExpectBegin()
		expectReviewTarget(mock, "tx-1", "batch-1", "5000.00", "approved", "threshold", "processing", "threshold")
		mock.ExpectRollback()

		res, err := service.Approve(ctx, "org-1", "tx-1", "rev-1")
		require.NoError(t, err)
		assert.False(t, res.Changed)
		assert.True(t, res.ThresholdCredit.IsZero())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("direct payment moves batch to processing", func(t *testing.T) {
		mock.ExpectBegin()
		expectReviewTarget(mock, "tx-2", "batch-2", "800.00", "pending", "direct", "client_paid", "direct")
		mock.ExpectExec(approveTx).
			WithArgs("approved", "rev-1", "tx-2").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(q("UPDATE batches SET batch_status = $1, updated_by = $2, updated_at = NOW() WHERE id = $3")).
			WithArgs("processing", "rev-1", "batch-2").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		res, err := service.Approve(ctx, "org-1", "tx-2", "rev-1")
		require.NoError(t, err)
		assert.Equal(t, "processing", res.BatchStatus)
		assert.True(t, res.ThresholdCredit.IsZero())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejected transaction cannot be approved", func(t *testing.T) {
		mock.ExpectBegin()
		expectReviewTarget(mock, "tx-3", "batch-3", "100.00", "rejected", "direct", "client_paid", "direct")
		mock.ExpectRollback()

		_, err := service.Approve(ctx, "org-1", "tx-3", "rev-1")
		assert.ErrorIs(t, err, ErrInvalidState)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("credit failure rolls back the approval", func(t *testing.T) {
		mock.ExpectBegin()
		expectReviewTarget(mock, "tx-4", "batch-4", "100.00", "pending", "threshold", "processing", "threshold")
		mock.ExpectExec(approveTx).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(creditOrg).WillReturnError(errors.New("deadlock detected"))
		mock.ExpectRollback()

		_, err := service.Approve(ctx, "org-1", "tx-4", "rev-1")
		assert.ErrorContains(t, err, "restore threshold")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown transaction", func(t *testing.T) {
		mock.ExpectBegin()
		expectReviewTarget(mock, "missing")
		mock.ExpectRollback()

		_, err := service.Approve(ctx, "org-1", "missing", "rev-1")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestReviewService_Reject(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewReviewService(db, testAudit(), testNotifier())
	ctx := context.Background()

	rejectTx := q("UPDATE payment_gateway_transactions SET payment_status = $1, reviewed_by = $2, reviewed_at = NOW(), rejection_reason = $3 WHERE id = $4")
	resetBatch := q("UPDATE batches SET batch_status = $1, batch_type = $2, updated_by = $3, updated_at = NOW() WHERE id = $4")

	t.Run("threshold batch returns to client_paid", func(t *testing.T) {
		mock.ExpectBegin()
		expectReviewTarget(mock, "tx-1", "batch-1", "10000.00", "pending", "threshold", "processing", "threshold")
		mock.ExpectExec(rejectTx).
			WithArgs("rejected", "rev-1", "reference not found", "tx-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(resetBatch).
			WithArgs("client_paid", "direct", "rev-1", "batch-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		res, err := service.Reject(ctx, "org-1", "tx-1", "rev-1", "reference not found")
		require.NoError(t, err)
		assert.True(t, res.Changed)
		assert.Equal(t, "rejected", res.PaymentStatus)
		assert.Equal(t, "client_paid", res.BatchStatus)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("direct batch is left alone", func(t *testing.T) {
		mock.ExpectBegin()
		expectReviewTarget(mock, "tx-2", "batch-2", "100.00", "pending", "direct", "client_paid", "direct")
		mock.ExpectExec(rejectTx).
			WithArgs("rejected", "rev-1", nil, "tx-2").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		res, err := service.Reject(ctx, "org-1", "tx-2", "rev-1", "  ")
		require.NoError(t, err)
		assert.Equal(t, "client_paid", res.BatchStatus)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejecting twice is a no-op", func(t *testing.T) {
		mock.ExpectBegin()
		expectReviewTarget(mock, "tx-1", "batch-1", "10000.00", "rejected", "threshold", "client_paid", "direct")
		mock.ExpectRollback()

		res, err := service.Reject(ctx, "org-1", "tx-1", "rev-1", "")
		require.NoError(t, err)
		assert.False(t, res.Changed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("approved transaction cannot be rejected", func(t *testing.T) {
		mock.ExpectBegin()
		expectReviewTarget(mock, "tx-5", "batch-5", "10.00", "approved", "direct", "processing", "direct")
		mock.ExpectRollback()

		_, err := service.Reject(ctx, "org-1", "tx-5", "rev-1", "")
		assert.ErrorIs(t, err, ErrInvalidState)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestReviewService_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewReviewService(db, testAudit(), testNotifier())
	now := time.Now()

	mock.ExpectQuery("SELECT id, batch_id, organization_id, transaction_reference.* FROM payment_gateway_transactions WHERE organization_id = \\$1 AND payment_status = \\$2 ORDER BY created_at DESC").
		WithArgs("org-1", "pending").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "batch_id", "organization_id", "transaction_reference", "amount", "payment_mode", "remarks",
			"transaction_date", "payment_status", "transaction_pay_type", "reviewed_by", "reviewed_at",
			"rejection_reason", "receipt_path", "created_by", "created_at",
		}).AddRow("tx-1", "batch-1", "org-1", "UTR1", "10000.00", "neft", "", now, "pending", "threshold",
			nil, nil, nil, "org-1/tx-1.pdf", "user-1", now))

	txs, err := service.List(context.Background(), "org-1", "pending")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "10000", txs[0].Amount.String())
	assert.Nil(t, txs[0].ReviewedBy)
	require.NotNil(t, txs[0].ReceiptPath)
	assert.Equal(t, "org-1/tx-1.pdf", *txs[0].ReceiptPath)
	assert.NoError(t, mock.ExpectationsWereMet())
}
