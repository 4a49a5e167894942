package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/gridbill/backend/internal/audit"
	"github.com/gridbill/backend/internal/storage"
)

// MaxReceiptSize bounds uploaded receipt files.
const MaxReceiptSize = 5 << 20

var receiptExtensions = map[string]string{
	"application/pdf": ".pdf",
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
}

// ReceiptURL is a time-limited link to a stored receipt.
type ReceiptURL struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type ReceiptService struct {
	db    *sql.DB
	store storage.ReceiptStore
	audit *audit.Logger
	ttl   time.Duration
	now   func() time.Time
}

func NewReceiptService(db *sql.DB, store storage.ReceiptStore, auditLogger *audit.Logger, ttl time.Duration) *ReceiptService {
	return &ReceiptService{db: db, store: store, audit: auditLogger, ttl: ttl, now: time.Now}
}

// Upload stores the receipt for a transaction and records its path.
func (s *ReceiptService) Upload(ctx context.Context, orgID, txID, userID, contentType string, data io.Reader) (string, error) {
	ext, ok := receiptExtensions[contentType]
	if !ok {
		return "", inputErr("receipt must be a PDF, PNG or JPEG file")
	}

	var batchID string
	err := s.db.QueryRowContext(ctx,
		"SELECT batch_id FROM payment_gateway_transactions WHERE id = $1 AND organization_id = $2",
		txID, orgID).Scan(&batchID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", notFound("transaction")
	}
	if err != nil {
		return "", fmt.Errorf("load transaction: %w", err)
	}

	path := fmt.Sprintf("%s/%s/%s%s", orgID, batchID, txID, ext)
	if err := s.store.Upload(ctx, path, contentType, data); err != nil {
		if errors.Is(err, storage.ErrDisabled) {
			return "", stateErr("receipt storage is not configured")
		}
		return "", fmt.Errorf("upload receipt: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		"UPDATE payment_gateway_transactions SET receipt_path = $1 WHERE id = $2", path, txID); err != nil {
		return "", fmt.Errorf("record receipt: %w", err)
	}

	s.audit.LogOperation(audit.EventReceipt, txID, orgID, userID, "UPLOADED", map[string]string{"path": path})
	slog.InfoContext(ctx, "[RECEIPT] receipt stored", "transaction_id", txID, "path", path)
	return path, nil
}

func (s *ReceiptService) SignedURL(ctx context.Context, orgID, txID string) (*ReceiptURL, error) {
	var path sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT receipt_path FROM payment_gateway_transactions WHERE id = $1 AND organization_id = $2",
		txID, orgID).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("transaction")
	}
	if err != nil {
		return nil, fmt.Errorf("load transaction: %w", err)
	}
	if !path.Valid || path.String == "" {
		return nil, notFound("receipt")
	}

	url, err := s.store.SignedURL(ctx, path.String, s.ttl)
	if errors.Is(err, storage.ErrDisabled) {
		return nil, stateErr("receipt storage is not configured")
	}
	if err != nil {
		return nil, fmt.Errorf("sign receipt url: %w", err)
	}
	return &ReceiptURL{URL: url, ExpiresAt: s.now().Add(s.ttl)}, nil
}
