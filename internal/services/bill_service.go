package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gridbill/backend/internal/audit"
	"github.com/gridbill/backend/internal/models"
)

// CreateBillRequest represents a bill entered for a connection
// @Description Bill creation request
type CreateBillRequest struct {
	ConnectionID   string          `json:"connectionId" validate:"required"`
	BillAmount     decimal.Decimal `json:"billAmount" validate:"gt=0" swaggertype:"string" example:"1250.00"`
	DiscountAmount decimal.Decimal `json:"discountAmount" validate:"gte=0" swaggertype:"string" example:"25.00"`
	DueDate        string          `json:"dueDate" validate:"required,datetime=2006-01-02" example:"2026-04-15"`
	DiscountDate   string          `json:"discountDate" validate:"omitempty,datetime=2006-01-02" example:"2026-04-05"`
}

type BillFilter struct {
	Status       string
	ConnectionID string
}

// ItemResult is the outcome of one entry in a bulk bill operation.
type ItemResult struct {
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

const lockBillSQL = `SELECT b.bill_amount, b.discount_amount, b.discount_date, b.bill_status
	FROM bills b
	JOIN connections c ON c.id = b.connection_id
	WHERE b.id = $1 AND c.organization_id = $2
	FOR UPDATE OF b`

type BillService struct {
	db    *sql.DB
	cart  *CartService
	audit *audit.Logger
	newID IDGenerator
	now   func() time.Time
}

func NewBillService(db *sql.DB, cart *CartService, auditLogger *audit.Logger) *BillService {
	return &BillService{db: db, cart: cart, audit: auditLogger, newID: newUUID, now: time.Now}
}

func (s *BillService) Create(ctx context.Context, orgID string, req CreateBillRequest) (*models.Bill, error) {
	dueDate, err := time.Parse("2006-01-02", req.DueDate)
	if err != nil {
		return nil, inputErr("dueDate must be YYYY-MM-DD")
	}
	var discountDate *time.Time
	if req.DiscountDate != "" {
		d, err := time.Parse("2006-01-02", req.DiscountDate)
		if err != nil {
			return nil, inputErr("discountDate must be YYYY-MM-DD")
		}
		discountDate = &d
	}
	if req.DiscountAmount.GreaterThanOrEqual(req.BillAmount) {
		return nil, inputErr("discount must be less than the bill amount")
	}

	if _, err := connectionType(ctx, s.db, orgID, req.ConnectionID); err != nil {
		return nil, err
	}

	bill := &models.Bill{
		ID:             s.newID(),
		ConnectionID:   req.ConnectionID,
		BillAmount:     req.BillAmount,
		DiscountAmount: req.DiscountAmount,
		DueDate:        dueDate,
		DiscountDate:   discountDate,
		BillStatus:     models.BillStatusNew,
	}

	err = s.db.QueryRowContext(ctx,
		`INSERT INTO bills (id, connection_id, bill_amount, discount_amount, due_date, discount_date, bill_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at, updated_at`,
		bill.ID, bill.ConnectionID, bill.BillAmount, bill.DiscountAmount, bill.DueDate, discountDate, bill.BillStatus,
	).Scan(&bill.CreatedAt, &bill.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert bill: %w", err)
	}

	slog.InfoContext(ctx, "[BILL] bill created", "bill_id", bill.ID, "connection_id", bill.ConnectionID)
	return bill, nil
}

func (s *BillService) List(ctx context.Context, orgID string, filter BillFilter) ([]models.Bill, error) {
	query := `SELECT b.id, b.connection_id, b.bill_amount, b.discount_amount, b.due_date, b.discount_date,
			b.approved_amount, b.bill_status, b.payment_status, b.created_at, b.updated_at
		FROM bills b
		JOIN connections c ON c.id = b.connection_id
		WHERE c.organization_id = $1`
	args := []any{orgID}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND b.bill_status = $%d", len(args))
	}
	if filter.ConnectionID != "" {
		args = append(args, filter.ConnectionID)
		query += fmt.Sprintf(" AND b.connection_id = $%d", len(args))
	}
	query += " ORDER BY b.due_date, b.id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bills: %w", err)
	}
	defer rows.Close()

	var bills []models.Bill
	for rows.Next() {
		var b models.Bill
		var discountDate sql.NullTime
		var approved decimal.NullDecimal
		if err := rows.Scan(&b.ID, &b.ConnectionID, &b.BillAmount, &b.DiscountAmount, &b.DueDate, &discountDate,
			&approved, &b.BillStatus, &b.PaymentStatus, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan bill: %w", err)
		}
		if discountDate.Valid {
			d := discountDate.Time
			b.DiscountDate = &d
		}
		if approved.Valid {
			a := approved.Decimal
			b.ApprovedAmount = &a
		}
		bills = append(bills, b)
	}
	return bills, rows.Err()
}

// Approve sets the approved amount of a new or approved bill. With no amount
// the discounted amount applies until the discount date.
func (s *BillService) Approve(ctx context.Context, orgID, billID, userID string, amount *decimal.Decimal) (decimal.Decimal, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	bill, err := lockBill(ctx, tx, orgID, billID)
	if err != nil {
		return decimal.Zero, err
	}
	if bill.BillStatus != models.BillStatusNew && bill.BillStatus != models.BillStatusApproved {
		return decimal.Zero, stateErr("bill is %s and cannot be approved", bill.BillStatus)
	}

	approved := bill.DefaultApprovedAmount(s.now())
	if amount != nil {
		approved = *amount
	}
	if !approved.IsPositive() || approved.GreaterThan(bill.BillAmount) {
		return decimal.Zero, inputErr("approved amount must be positive and at most the bill amount")
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE bills SET approved_amount = $1, bill_status = $2, updated_at = NOW() WHERE id = $3",
		approved, models.BillStatusApproved, billID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("approve bill: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return decimal.Zero, fmt.Errorf("commit: %w", err)
	}

	s.audit.LogOperation(audit.EventBillApproval, billID, orgID, userID, "APPROVED",
		map[string]string{"approved_amount": approved.String()})
	return approved, nil
}

// Unapprove clears the approved amount, returns the bill to new and drops it
// from every cart. Batched bills cannot be unapproved.
func (s *BillService) Unapprove(ctx context.Context, orgID, billID, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	bill, err := lockBill(ctx, tx, orgID, billID)
	if err != nil {
		return err
	}
	if bill.BillStatus != models.BillStatusApproved {
		return stateErr("bill is %s, only approved bills can be unapproved", bill.BillStatus)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE bills SET approved_amount = NULL, bill_status = $1, updated_at = NOW() WHERE id = $2",
		models.BillStatusNew, billID)
	if err != nil {
		return fmt.Errorf("unapprove bill: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	if s.cart != nil {
		if _, err := s.cart.RemoveEverywhere(ctx, CartItem{Kind: CartKindBill, ID: billID}); err != nil {
			slog.WarnContext(ctx, "[BILL] cart cleanup failed", "bill_id", billID, "err", err)
		}
	}

	s.audit.LogOperation(audit.EventBillApproval, billID, orgID, userID, "UNAPPROVED", nil)
	return nil
}

// SetPaymentStatus records whether the bill was paid to the biller and keeps
// its client payment line in step.
func (s *BillService) SetPaymentStatus(ctx context.Context, orgID, billID string, paid bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := lockBill(ctx, tx, orgID, billID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE bills SET payment_status = $1, updated_at = NOW() WHERE id = $2", paid, billID); err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}

	if paid {
		_, err = tx.ExecContext(ctx,
			"UPDATE client_payments SET status = $1, paid_amount = approved_amount WHERE bill_id = $2 AND status = $3",
			models.ClientPaymentPaid, billID, models.ClientPaymentPending)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE client_payments SET status = $1, paid_amount = NULL
			WHERE bill_id = $2 AND status = $3
			AND batch_id IN (SELECT id FROM batches WHERE batch_status <> 'settled')`,
			models.ClientPaymentPending, billID, models.ClientPaymentPaid)
	}
	if err != nil {
		return fmt.Errorf("update client payment: %w", err)
	}

	return tx.Commit()
}

// BulkApprove approves each bill with its default amount.
func (s *BillService) BulkApprove(ctx context.Context, orgID, userID string, billIDs []string) []ItemResult {
	return s.bulk(billIDs, func(id string) error {
		_, err := s.Approve(ctx, orgID, id, userID, nil)
		return err
	})
}

func (s *BillService) BulkUnapprove(ctx context.Context, orgID, userID string, billIDs []string) []ItemResult {
	return s.bulk(billIDs, func(id string) error {
		return s.Unapprove(ctx, orgID, id, userID)
	})
}

func (s *BillService) bulk(ids []string, fn func(id string) error) []ItemResult {
	ids = dedupe(ids)
	results := make([]ItemResult, 0, len(ids))
	for _, id := range ids {
		r := ItemResult{ID: id, OK: true}
		if err := fn(id); err != nil {
			slog.Warn("[BILL] bulk item failed", "bill_id", id, "err", err)
			r.OK = false
			r.Error = PublicMessage(err)
		}
		results = append(results, r)
	}
	return results
}

func lockBill(ctx context.Context, tx *sql.Tx, orgID, billID string) (models.Bill, error) {
	b := models.Bill{ID: billID}
	var discountDate sql.NullTime
	err := tx.QueryRowContext(ctx, lockBillSQL, billID, orgID).
		Scan(&b.BillAmount, &b.DiscountAmount, &discountDate, &b.BillStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return b, notFound("bill")
	}
	if err != nil {
		return b, fmt.Errorf("lock bill: %w", err)
	}
	if discountDate.Valid {
		d := discountDate.Time
		b.DiscountDate = &d
	}
	return b, nil
}

func connectionType(ctx context.Context, q dbtx, orgID, connectionID string) (string, error) {
	var kind string
	err := q.QueryRowContext(ctx,
		"SELECT connection_type FROM connections WHERE id = $1 AND organization_id = $2",
		connectionID, orgID).Scan(&kind)
	if errors.Is(err, sql.ErrNoRows) {
		return "", notFound("connection")
	}
	if err != nil {
		return "", fmt.Errorf("load connection: %w", err)
	}
	return kind, nil
}
