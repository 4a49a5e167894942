package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/gridbill/backend/internal/audit"
	"github.com/gridbill/backend/internal/models"
	"github.com/gridbill/backend/internal/notify"
)

// CreateBatchRequest selects the approved bills and recharges to batch,
// either by id or from the caller's cart
// @Description Batch creation request
type CreateBatchRequest struct {
	BillIDs      []string `json:"billIds"`
	RechargeIDs  []string `json:"rechargeIds"`
	FromCart     bool     `json:"fromCart"`
	ValidityDate string   `json:"validityDate" validate:"omitempty,datetime=2006-01-02" example:"2026-04-30"`
}

// BatchSummary is a batch with its Pay Now state.
type BatchSummary struct {
	models.Batch
	LiveTransactions int  `json:"liveTransactions"`
	CanPayNow        bool `json:"canPayNow"`
}

type BatchDetail struct {
	BatchSummary
	Lines        []models.ClientPayment             `json:"lines"`
	Transactions []models.PaymentGatewayTransaction `json:"transactions"`
}

// PayNowInfo tells the client whether a payment may be recorded and, when
// it may, how to pay.
type PayNowInfo struct {
	BatchID   string          `json:"batchId"`
	CanPayNow bool            `json:"canPayNow"`
	Amount    decimal.Decimal `json:"amount"`
	PayType   string          `json:"payType"`
	QR        *PaymentQR      `json:"qr,omitempty"`
}

type batchLine struct {
	billID       *string
	rechargeID   *string
	connectionID string
	amount       decimal.Decimal
}

const (
	lockBillsForBatchSQL = `SELECT b.id, b.connection_id, b.approved_amount, b.bill_status
		FROM bills b
		JOIN connections c ON c.id = b.connection_id
		WHERE b.id = ANY($1) AND c.organization_id = $2
		ORDER BY b.id
		FOR UPDATE OF b`

	lockRechargesForBatchSQL = `SELECT r.id, r.connection_id, r.recharge_amount, r.recharge_status
		FROM recharges r
		JOIN connections c ON c.id = r.connection_id
		WHERE r.id = ANY($1) AND c.organization_id = $2
		ORDER BY r.id
		FOR UPDATE OF r`

	batchColumns = `b.id, b.organization_id, b.batch_status, b.batch_type, b.total_amount, b.validity_date,
		b.created_by, b.updated_by, b.created_at, b.updated_at,
		(SELECT COUNT(*) FROM payment_gateway_transactions t WHERE t.batch_id = b.id AND t.payment_status <> 'rejected')`
)

type BatchService struct {
	db           *sql.DB
	cart         *CartService
	qr           *QRService
	audit        *audit.Logger
	notifier     *notify.Notifier
	validityDays int
	newID        IDGenerator
	now          func() time.Time
}

func NewBatchService(db *sql.DB, cart *CartService, qr *QRService, auditLogger *audit.Logger, notifier *notify.Notifier, validityDays int) *BatchService {
	return &BatchService{
		db:           db,
		cart:         cart,
		qr:           qr,
		audit:        auditLogger,
		notifier:     notifier,
		validityDays: validityDays,
		newID:        newUUID,
		now:          time.Now,
	}
}

// Create batches approved bills and recharges of the organization. Every
// selected item must exist and be approved, otherwise nothing is written.
func (s *BatchService) Create(ctx context.Context, orgID, userID string, req CreateBatchRequest) (*BatchDetail, error) {
	billIDs, rechargeIDs := dedupe(req.BillIDs), dedupe(req.RechargeIDs)
	if req.FromCart {
		items, err := s.cart.Items(ctx, userID)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			if item.Kind == CartKindBill {
				billIDs = append(billIDs, item.ID)
			} else {
				rechargeIDs = append(rechargeIDs, item.ID)
			}
		}
		billIDs, rechargeIDs = dedupe(billIDs), dedupe(rechargeIDs)
	}
	if len(billIDs)+len(rechargeIDs) == 0 {
		return nil, inputErr("select at least one approved bill or recharge")
	}

	validity := s.now().AddDate(0, 0, s.validityDays)
	if req.ValidityDate != "" {
		v, err := time.Parse("2006-01-02", req.ValidityDate)
		if err != nil {
			return nil, inputErr("validityDate must be YYYY-MM-DD")
		}
		if v.Before(s.now().Truncate(24 * time.Hour)) {
			return nil, inputErr("validityDate is in the past")
		}
		validity = v
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var lines []batchLine
	if len(billIDs) > 0 {
		found, err := lockBatchItems(ctx, tx, lockBillsForBatchSQL, orgID, billIDs, models.BillStatusApproved, CartKindBill)
		if err != nil {
			return nil, err
		}
		lines = append(lines, found...)
	}
	if len(rechargeIDs) > 0 {
		found, err := lockBatchItems(ctx, tx, lockRechargesForBatchSQL, orgID, rechargeIDs, models.RechargeStatusApproved, CartKindRecharge)
		if err != nil {
			return nil, err
		}
		lines = append(lines, found...)
	}

	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.amount)
	}

	batch := models.Batch{
		ID:             s.newID(),
		OrganizationID: orgID,
		BatchStatus:    models.BatchStatusClientPaid,
		BatchType:      models.BatchTypeDirect,
		TotalAmount:    total,
		ValidityDate:   validity,
		CreatedBy:      userID,
	}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO batches (id, organization_id, batch_status, batch_type, total_amount, validity_date, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at, updated_at`,
		batch.ID, orgID, batch.BatchStatus, batch.BatchType, total, validity, userID,
	).Scan(&batch.CreatedAt, &batch.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert batch: %w", err)
	}

	payments := make([]models.ClientPayment, 0, len(lines))
	for _, l := range lines {
		cp := models.ClientPayment{
			ID:             s.newID(),
			BatchID:        batch.ID,
			BillID:         l.billID,
			RechargeID:     l.rechargeID,
			ConnectionID:   l.connectionID,
			ApprovedAmount: l.amount,
			Status:         models.ClientPaymentPending,
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO client_payments (id, batch_id, bill_id, recharge_id, connection_id, approved_amount, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			cp.ID, cp.BatchID, cp.BillID, cp.RechargeID, cp.ConnectionID, cp.ApprovedAmount, cp.Status)
		if err != nil {
			return nil, fmt.Errorf("insert client payment: %w", err)
		}
		payments = append(payments, cp)
	}

	if len(billIDs) > 0 {
		if _, err := tx.ExecContext(ctx,
			"UPDATE bills SET bill_status = $1, updated_at = NOW() WHERE id = ANY($2)",
			models.BillStatusBatched, pq.Array(billIDs)); err != nil {
			return nil, fmt.Errorf("mark bills batched: %w", err)
		}
	}
	if len(rechargeIDs) > 0 {
		if _, err := tx.ExecContext(ctx,
			"UPDATE recharges SET recharge_status = $1, updated_at = NOW() WHERE id = ANY($2)",
			models.RechargeStatusBatched, pq.Array(rechargeIDs)); err != nil {
			return nil, fmt.Errorf("mark recharges batched: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	// Batched items are no longer selectable anywhere.
	for _, id := range billIDs {
		s.dropFromCarts(ctx, CartItem{Kind: CartKindBill, ID: id})
	}
	for _, id := range rechargeIDs {
		s.dropFromCarts(ctx, CartItem{Kind: CartKindRecharge, ID: id})
	}

	s.audit.LogOperation(audit.EventBatchCreated, batch.ID, orgID, userID, "CREATED", map[string]string{
		"total_amount": total.String(),
		"lines":        fmt.Sprint(len(payments)),
	})
	s.notifier.PublishEvent(ctx, notify.Event{
		Type:           "batch.created",
		OrganizationID: orgID,
		EntityID:       batch.ID,
		Data:           map[string]string{"amount": total.String()},
	})
	slog.InfoContext(ctx, "[BATCH] batch created", "org_id", orgID, "batch_id", batch.ID, "lines", len(payments))

	return &BatchDetail{
		BatchSummary: BatchSummary{Batch: batch, CanPayNow: batch.CanPayNow(0)},
		Lines:        payments,
		Transactions: []models.PaymentGatewayTransaction{},
	}, nil
}

func (s *BatchService) dropFromCarts(ctx context.Context, item CartItem) {
	if s.cart == nil {
		return
	}
	if _, err := s.cart.RemoveEverywhere(ctx, item); err != nil {
		slog.WarnContext(ctx, "[BATCH] cart cleanup failed", "item", item.member(), "err", err)
	}
}

func lockBatchItems(ctx context.Context, tx *sql.Tx, query, orgID string, ids []string, wantStatus, kind string) ([]batchLine, error) {
	rows, err := tx.QueryContext(ctx, query, pq.Array(ids), orgID)
	if err != nil {
		return nil, fmt.Errorf("lock %ss: %w", kind, err)
	}
	defer rows.Close()

	seen := make(map[string]bool, len(ids))
	var lines []batchLine
	for rows.Next() {
		var id, connectionID, status string
		var amount decimal.NullDecimal
		if err := rows.Scan(&id, &connectionID, &amount, &status); err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind, err)
		}
		if status != wantStatus || !amount.Valid {
			return nil, stateErr("%s %s is %s, only approved items can be batched", kind, id, status)
		}
		seen[id] = true
		l := batchLine{connectionID: connectionID, amount: amount.Decimal}
		itemID := id
		if kind == CartKindBill {
			l.billID = &itemID
		} else {
			l.rechargeID = &itemID
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, id := range ids {
		if !seen[id] {
			return nil, notFound(kind + " " + id)
		}
	}
	return lines, nil
}

func scanBatchSummary(row rowScanner) (BatchSummary, error) {
	var b BatchSummary
	var updatedBy sql.NullString
	err := row.Scan(&b.ID, &b.OrganizationID, &b.BatchStatus, &b.BatchType, &b.TotalAmount, &b.ValidityDate,
		&b.CreatedBy, &updatedBy, &b.CreatedAt, &b.UpdatedAt, &b.LiveTransactions)
	if err != nil {
		return b, err
	}
	b.UpdatedBy = nullString(updatedBy)
	b.CanPayNow = b.Batch.CanPayNow(b.LiveTransactions)
	return b, nil
}

func (s *BatchService) List(ctx context.Context, orgID, status string) ([]BatchSummary, error) {
	query := "SELECT " + batchColumns + " FROM batches b WHERE b.organization_id = $1"
	args := []any{orgID}
	if status != "" {
		query += " AND b.batch_status = $2"
		args = append(args, status)
	}
	query += " ORDER BY b.created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var out []BatchSummary
	for rows.Next() {
		b, err := scanBatchSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *BatchService) summary(ctx context.Context, orgID, batchID string) (BatchSummary, error) {
	b, err := scanBatchSummary(s.db.QueryRowContext(ctx,
		"SELECT "+batchColumns+" FROM batches b WHERE b.id = $1 AND b.organization_id = $2", batchID, orgID))
	if errors.Is(err, sql.ErrNoRows) {
		return b, notFound("batch")
	}
	if err != nil {
		return b, fmt.Errorf("load batch: %w", err)
	}
	return b, nil
}

// Get returns the batch with its client payment lines and transactions.
func (s *BatchService) Get(ctx context.Context, orgID, batchID string) (*BatchDetail, error) {
	summary, err := s.summary(ctx, orgID, batchID)
	if err != nil {
		return nil, err
	}
	detail := &BatchDetail{BatchSummary: summary}

	lines, err := s.Lines(ctx, batchID)
	if err != nil {
		return nil, err
	}
	detail.Lines = lines

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+transactionColumns+" FROM payment_gateway_transactions WHERE batch_id = $1 ORDER BY created_at",
		batchID)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	defer rows.Close()
	detail.Transactions = []models.PaymentGatewayTransaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		detail.Transactions = append(detail.Transactions, t)
	}
	return detail, rows.Err()
}

// Lines returns the client payment lines of a batch ordered by connection.
func (s *BatchService) Lines(ctx context.Context, batchID string) ([]models.ClientPayment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, batch_id, bill_id, recharge_id, connection_id, approved_amount, paid_amount, status
		FROM client_payments WHERE batch_id = $1 ORDER BY connection_id, id`, batchID)
	if err != nil {
		return nil, fmt.Errorf("load lines: %w", err)
	}
	defer rows.Close()

	lines := []models.ClientPayment{}
	for rows.Next() {
		var cp models.ClientPayment
		var billID, rechargeID sql.NullString
		var paid decimal.NullDecimal
		if err := rows.Scan(&cp.ID, &cp.BatchID, &billID, &rechargeID, &cp.ConnectionID, &cp.ApprovedAmount, &paid, &cp.Status); err != nil {
			return nil, fmt.Errorf("scan line: %w", err)
		}
		cp.BillID = nullString(billID)
		cp.RechargeID = nullString(rechargeID)
		if paid.Valid {
			p := paid.Decimal
			cp.PaidAmount = &p
		}
		lines = append(lines, cp)
	}
	return lines, rows.Err()
}

// PayNow reports whether the batch is payable and attaches a payment QR when
// it is.
func (s *BatchService) PayNow(ctx context.Context, orgID, batchID string) (*PayNowInfo, error) {
	summary, err := s.summary(ctx, orgID, batchID)
	if err != nil {
		return nil, err
	}
	info := &PayNowInfo{
		BatchID:   batchID,
		CanPayNow: summary.CanPayNow,
		Amount:    summary.TotalAmount,
		PayType:   summary.PayType(),
	}
	if !info.CanPayNow || s.qr == nil {
		return info, nil
	}

	qr, err := s.qr.Generate(ctx, orgID, batchID, summary.TotalAmount)
	if errors.Is(err, ErrInvalidInput) {
		return info, nil
	}
	if err != nil {
		return nil, err
	}
	info.QR = qr
	return info, nil
}

// LineDetail is a client payment line with its connection.
type LineDetail struct {
	ID               string
	BillID           *string
	RechargeID       *string
	ConnectionNumber string
	SiteName         string
	BillerCode       string
	ApprovedAmount   decimal.Decimal
	PaidAmount       *decimal.Decimal
	Status           string
}

const lineDetailsSQL = `SELECT cp.id, cp.bill_id, cp.recharge_id, c.connection_number, c.site_name, c.biller_code,
		cp.approved_amount, cp.paid_amount, cp.status
	FROM client_payments cp
	JOIN connections c ON c.id = cp.connection_id
	JOIN batches b ON b.id = cp.batch_id
	WHERE cp.batch_id = $1 AND b.organization_id = $2
	ORDER BY c.connection_number, cp.id`

func (s *BatchService) lineDetails(ctx context.Context, orgID, batchID string) ([]LineDetail, error) {
	rows, err := s.db.QueryContext(ctx, lineDetailsSQL, batchID, orgID)
	if err != nil {
		return nil, fmt.Errorf("load lines: %w", err)
	}
	defer rows.Close()

	var out []LineDetail
	for rows.Next() {
		var l LineDetail
		var billID, rechargeID sql.NullString
		var paid decimal.NullDecimal
		if err := rows.Scan(&l.ID, &billID, &rechargeID, &l.ConnectionNumber, &l.SiteName, &l.BillerCode,
			&l.ApprovedAmount, &paid, &l.Status); err != nil {
			return nil, fmt.Errorf("scan line: %w", err)
		}
		l.BillID = nullString(billID)
		l.RechargeID = nullString(rechargeID)
		if paid.Valid {
			p := paid.Decimal
			l.PaidAmount = &p
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, notFound("batch")
	}
	return out, nil
}
