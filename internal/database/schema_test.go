package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func TestMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	t.Run("applies schema", func(t *testing.T) {
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS organizations").
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.NoError(t, Migrate(context.Background(), db))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wraps errors", func(t *testing.T) {
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS organizations").
			WillReturnError(errors.New("permission denied"))

		err := Migrate(context.Background(), db)
		assert.ErrorContains(t, err, "apply schema")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSchema_Tables(t *testing.T) {
	for _, table := range []string{
		"organizations", "users", "connections", "bills", "recharges",
		"batches", "client_payments", "payment_gateway_transactions",
	} {
		assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS "+table+" (")
	}
}
