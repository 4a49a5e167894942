package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRechargeService_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewRechargeService(db, testAudit())
	service.newID = sequentialIDs("rch-1")
	ctx := context.Background()

	connType := q("SELECT connection_type FROM connections WHERE id = $1 AND organization_id = $2")

	t.Run("prepaid connection", func(t *testing.T) {
		now := time.Now()
		mock.ExpectQuery(connType).
			WithArgs("conn-1", "org-1").
			WillReturnRows(sqlmock.NewRows([]string{"connection_type"}).AddRow("prepaid"))
		mock.ExpectQuery(q("INSERT INTO recharges")).
			WithArgs("rch-1", "conn-1", "2000", "new").
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

		r, err := service.Create(ctx, "org-1", CreateRechargeRequest{ConnectionID: "conn-1", RechargeAmount: decimal.NewFromInt(2000)})
		require.NoError(t, err)
		assert.Equal(t, "rch-1", r.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("postpaid connection is refused", func(t *testing.T) {
		mock.ExpectQuery(connType).
			WithArgs("conn-2", "org-1").
			WillReturnRows(sqlmock.NewRows([]string{"connection_type"}).AddRow("postpaid"))

		_, err := service.Create(ctx, "org-1", CreateRechargeRequest{ConnectionID: "conn-2", RechargeAmount: decimal.NewFromInt(2000)})
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRechargeService_Approve(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewRechargeService(db, testAudit())
	ctx := context.Background()

	lock := q("SELECT r.recharge_status FROM recharges r")

	t.Run("new recharge is approved", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(lock).
			WithArgs("rch-1", "org-1").
			WillReturnRows(sqlmock.NewRows([]string{"recharge_status"}).AddRow("new"))
		mock.ExpectExec(q("UPDATE recharges SET recharge_status = $1, updated_at = NOW() WHERE id = $2")).
			WithArgs("approved", "rch-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, service.Approve(ctx, "org-1", "rch-1", "user-1"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("batched recharge", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(lock).
			WithArgs("rch-2", "org-1").
			WillReturnRows(sqlmock.NewRows([]string{"recharge_status"}).AddRow("batched"))
		mock.ExpectRollback()

		assert.ErrorIs(t, service.Approve(ctx, "org-1", "rch-2", "user-1"), ErrInvalidState)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
