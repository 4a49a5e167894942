package services

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// dbtx is satisfied by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// IDGenerator returns a new primary key.
type IDGenerator func() string

func newUUID() string {
	return uuid.New().String()
}

func countLiveTransactions(ctx context.Context, q dbtx, batchID string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM payment_gateway_transactions WHERE batch_id = $1 AND payment_status <> 'rejected'",
		batchID).Scan(&n)
	return n, err
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
