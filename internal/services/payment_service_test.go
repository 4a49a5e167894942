package services

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	lockPayableBatch = q("SELECT batch_status, batch_type, total_amount FROM batches WHERE id = $1 AND organization_id = $2 FOR UPDATE")
	countLiveTx      = q("SELECT COUNT(*) FROM payment_gateway_transactions WHERE batch_id = $1 AND payment_status <> 'rejected'")
)

func expectPayableBatch(mock sqlmock.Sqlmock, batchID, status, batchType, total string, live int) {
	mock.ExpectQuery(lockPayableBatch).
		WithArgs(batchID, "org-1").
		WillReturnRows(sqlmock.NewRows([]string{"batch_status", "batch_type", "total_amount"}).AddRow(status, batchType, total))
	mock.ExpectQuery(countLiveTx).
		WithArgs(batchID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(live))
}

func paymentRequest(batchID string) PaymentRequest {
	return PaymentRequest{
		BatchID:              batchID,
		TransactionReference: "UTR-" + batchID,
		PaymentMode:          "neft",
		Remarks:              "march",
		TransactionDate:      "2026-03-01",
	}
}

func TestPaymentService_Record(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewPaymentService(db, testAudit(), testNotifier(), 1, 50)
	service.newID = sequentialIDs("tx-1", "tx-2")
	ctx := context.Background()

	t.Run("direct batch records a direct payment", func(t *testing.T) {
		mock.ExpectBegin()
		expectPayableBatch(mock, "batch-1", "client_paid", "direct", "12500.00", 0)
		mock.ExpectExec("INSERT INTO payment_gateway_transactions").
			WithArgs("tx-1", "batch-1", "org-1", "UTR-batch-1", "12500", "neft", "march", sqlmock.AnyArg(), "pending", "direct", "user-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(q("UPDATE batches SET updated_by = $1, updated_at = NOW() WHERE id = $2")).
			WithArgs("user-1", "batch-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		res, err := service.Record(ctx, "org-1", "user-1", paymentRequest("batch-1"))
		require.NoError(t, err)
		assert.True(t, res.Recorded)
		assert.Equal(t, "tx-1", res.TransactionID)
		assert.Equal(t, "direct", res.PayType)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("threshold batch in processing records a threshold payment", func(t *testing.T) {
		mock.ExpectBegin()
		expectPayableBatch(mock, "batch-2", "processing", "threshold", "10000.00", 0)
		mock.ExpectExec("INSERT INTO payment_gateway_transactions").
			WithArgs("tx-2", "batch-2", "org-1", "UTR-batch-2", "10000", "neft", "march", sqlmock.AnyArg(), "pending", "threshold", "user-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(q("UPDATE batches SET updated_by = $1")).
			WithArgs("user-1", "batch-2").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		res, err := service.Record(ctx, "org-1", "user-1", paymentRequest("batch-2"))
		require.NoError(t, err)
		assert.True(t, res.Recorded)
		assert.Equal(t, "threshold", res.PayType)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("batch with a live transaction is a silent no-op", func(t *testing.T) {
		mock.ExpectBegin()
		expectPayableBatch(mock, "batch-3", "client_paid", "direct", "500.00", 1)
		mock.ExpectRollback()

		res, err := service.Record(ctx, "org-1", "user-1", paymentRequest("batch-3"))
		require.NoError(t, err)
		assert.False(t, res.Recorded)
		assert.Empty(t, res.TransactionID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("direct batch already processing is a silent no-op", func(t *testing.T) {
		mock.ExpectBegin()
		expectPayableBatch(mock, "batch-4", "processing", "direct", "500.00", 0)
		mock.ExpectRollback()

		res, err := service.Record(ctx, "org-1", "user-1", paymentRequest("batch-4"))
		require.NoError(t, err)
		assert.False(t, res.Recorded)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown batch", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(lockPayableBatch).
			WithArgs("nope", "org-1").
			WillReturnRows(sqlmock.NewRows([]string{"batch_status", "batch_type", "total_amount"}))
		mock.ExpectRollback()

		_, err := service.Record(ctx, "org-1", "user-1", paymentRequest("nope"))
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("bad date never reaches the database", func(t *testing.T) {
		req := paymentRequest("batch-5")
		req.TransactionDate = "01-03-2026"

		_, err := service.Record(ctx, "org-1", "user-1", req)
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPaymentService_RecordBulk(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewPaymentService(db, testAudit(), testNotifier(), 1, 3)
	service.newID = sequentialIDs("tx-10")
	ctx := context.Background()

	t.Run("reports each item independently", func(t *testing.T) {
		mock.ExpectBegin()
		expectPayableBatch(mock, "batch-a", "client_paid", "direct", "100.00", 0)
		mock.ExpectExec("INSERT INTO payment_gateway_transactions").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE batches SET updated_by").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		mock.ExpectBegin()
		expectPayableBatch(mock, "batch-b", "client_paid", "direct", "100.00", 1)
		mock.ExpectRollback()

		invalid := paymentRequest("batch-c")
		invalid.TransactionReference = ""

		res, err := service.RecordBulk(ctx, "org-1", "user-1", []PaymentRequest{
			paymentRequest("batch-a"),
			paymentRequest("batch-b"),
			invalid,
		})
		require.NoError(t, err)
		require.Len(t, res.Results, 3)

		assert.True(t, res.Results[0].Recorded)
		assert.Equal(t, "tx-10", res.Results[0].TransactionID)
		assert.False(t, res.Results[1].Recorded)
		assert.Empty(t, res.Results[1].Error)
		assert.Contains(t, res.Results[2].Error, "transactionReference")

		assert.Equal(t, BulkSummary{Total: 3, Succeeded: 1, Skipped: 1, Failed: 1}, res.Summary)
		assert.Contains(t, res.Error, "batch-c")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("too many items", func(t *testing.T) {
		items := []PaymentRequest{paymentRequest("1"), paymentRequest("2"), paymentRequest("3"), paymentRequest("4")}
		_, err := service.RecordBulk(ctx, "org-1", "user-1", items)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("empty request", func(t *testing.T) {
		_, err := service.RecordBulk(ctx, "org-1", "user-1", nil)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}
