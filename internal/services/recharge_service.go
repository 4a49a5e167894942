package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/gridbill/backend/internal/audit"
	"github.com/gridbill/backend/internal/models"
)

// CreateRechargeRequest represents a prepaid top-up
// @Description Recharge creation request
type CreateRechargeRequest struct {
	ConnectionID   string          `json:"connectionId" validate:"required"`
	RechargeAmount decimal.Decimal `json:"rechargeAmount" validate:"gt=0" swaggertype:"string" example:"2000.00"`
}

type RechargeService struct {
	db    *sql.DB
	audit *audit.Logger
	newID IDGenerator
}

func NewRechargeService(db *sql.DB, auditLogger *audit.Logger) *RechargeService {
	return &RechargeService{db: db, audit: auditLogger, newID: newUUID}
}

// Create adds a recharge. Only prepaid connections take recharges.
func (s *RechargeService) Create(ctx context.Context, orgID string, req CreateRechargeRequest) (*models.Recharge, error) {
	kind, err := connectionType(ctx, s.db, orgID, req.ConnectionID)
	if err != nil {
		return nil, err
	}
	if kind != models.ConnectionPrepaid {
		return nil, inputErr("recharges are only allowed on prepaid connections")
	}

	r := &models.Recharge{
		ID:             s.newID(),
		ConnectionID:   req.ConnectionID,
		RechargeAmount: req.RechargeAmount,
		RechargeStatus: models.RechargeStatusNew,
	}
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO recharges (id, connection_id, recharge_amount, recharge_status)
		VALUES ($1, $2, $3, $4) RETURNING created_at, updated_at`,
		r.ID, r.ConnectionID, r.RechargeAmount, r.RechargeStatus,
	).Scan(&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert recharge: %w", err)
	}

	slog.InfoContext(ctx, "[RECHARGE] recharge created", "recharge_id", r.ID, "connection_id", r.ConnectionID)
	return r, nil
}

func (s *RechargeService) List(ctx context.Context, orgID, status string) ([]models.Recharge, error) {
	query := `SELECT r.id, r.connection_id, r.recharge_amount, r.recharge_status, r.created_at, r.updated_at
		FROM recharges r
		JOIN connections c ON c.id = r.connection_id
		WHERE c.organization_id = $1`
	args := []any{orgID}
	if status != "" {
		query += " AND r.recharge_status = $2"
		args = append(args, status)
	}
	query += " ORDER BY r.created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list recharges: %w", err)
	}
	defer rows.Close()

	var out []models.Recharge
	for rows.Next() {
		var r models.Recharge
		if err := rows.Scan(&r.ID, &r.ConnectionID, &r.RechargeAmount, &r.RechargeStatus, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan recharge: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Approve moves a new recharge to approved. Approving twice is a no-op.
func (s *RechargeService) Approve(ctx context.Context, orgID, rechargeID, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx,
		`SELECT r.recharge_status FROM recharges r
		JOIN connections c ON c.id = r.connection_id
		WHERE r.id = $1 AND c.organization_id = $2
		FOR UPDATE OF r`,
		rechargeID, orgID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("recharge")
	}
	if err != nil {
		return fmt.Errorf("lock recharge: %w", err)
	}

	switch status {
	case models.RechargeStatusApproved:
		return nil
	case models.RechargeStatusNew:
	default:
		return stateErr("recharge is %s and cannot be approved", status)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE recharges SET recharge_status = $1, updated_at = NOW() WHERE id = $2",
		models.RechargeStatusApproved, rechargeID); err != nil {
		return fmt.Errorf("approve recharge: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.audit.LogOperation(audit.EventBillApproval, rechargeID, orgID, userID, "RECHARGE_APPROVED", nil)
	return nil
}
