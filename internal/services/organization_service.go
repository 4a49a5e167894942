package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/gridbill/backend/internal/audit"
	"github.com/gridbill/backend/internal/models"
)

// CreateUserRequest represents a staff account
// @Description Staff account creation request
type CreateUserRequest struct {
	FullName    string `json:"fullName" validate:"required,min=2,max=120" example:"Asha Rao"`
	Email       string `json:"email" validate:"required,email" example:"asha@example.com"`
	PhoneNumber string `json:"phoneNumber" validate:"required,phone" example:"+919812345678"`
	Password    string `json:"password" validate:"required,min=8" example:"password123"`
	Role        string `json:"role" validate:"omitempty,oneof=operator reviewer admin" example:"operator"`
}

// CreateOrganizationRequest onboards a tenant with its first admin
// @Description Organization onboarding request
type CreateOrganizationRequest struct {
	Name                 string            `json:"name" validate:"required,min=2,max=200" example:"Acme Facilities"`
	BatchThresholdAmount decimal.Decimal   `json:"batchThresholdAmount" validate:"gte=0" swaggertype:"string" example:"100000.00"`
	ContactEmail         string            `json:"contactEmail" validate:"omitempty,email" example:"accounts@acme.example"`
	ContactPhone         string            `json:"contactPhone" validate:"omitempty,phone" example:"+919800000000"`
	Admin                CreateUserRequest `json:"admin" validate:"required"`
}

// UpdateThresholdRequest sets the organization's batch threshold
// @Description Threshold update request
type UpdateThresholdRequest struct {
	BatchThresholdAmount decimal.Decimal `json:"batchThresholdAmount" validate:"gte=0" swaggertype:"string" example:"150000.00"`
}

// CreateConnectionRequest registers a metered site
// @Description Connection creation request
type CreateConnectionRequest struct {
	ConnectionNumber string   `json:"connectionNumber" validate:"required,max=64" example:"MH-0042-7781"`
	SiteName         string   `json:"siteName" validate:"required,max=200" example:"Pune Warehouse"`
	ConnectionType   string   `json:"connectionType" validate:"required,oneof=prepaid postpaid submeter" example:"postpaid"`
	BillerCode       string   `json:"billerCode" validate:"max=32" example:"MSEDCL"`
	Latitude         *float64 `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude        *float64 `json:"longitude,omitempty" validate:"omitempty,longitude"`
}

// OrganizationCreated is the onboarding result.
type OrganizationCreated struct {
	Organization models.Organization `json:"organization"`
	Admin        models.User         `json:"admin"`
}

// ThresholdView is the organization's threshold utilization
// @Description Threshold utilization
type ThresholdView struct {
	TotalApproved decimal.Decimal `json:"totalApproved" swaggertype:"string"`
	Threshold     decimal.Decimal `json:"threshold" swaggertype:"string"`
	Headroom      decimal.Decimal `json:"headroom" swaggertype:"string"`
}

func NewThresholdView(s models.ThresholdStatus) ThresholdView {
	return ThresholdView{TotalApproved: s.TotalApproved, Threshold: s.Threshold, Headroom: s.Headroom()}
}

type OrganizationService struct {
	db     *sql.DB
	hasher *PasswordHasher
	audit  *audit.Logger
	newID  IDGenerator
}

func NewOrganizationService(db *sql.DB, hasher *PasswordHasher, auditLogger *audit.Logger) *OrganizationService {
	return &OrganizationService{db: db, hasher: hasher, audit: auditLogger, newID: newUUID}
}

// isUniqueViolation reports a Postgres unique_violation.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func (s *OrganizationService) Create(ctx context.Context, actorID string, req CreateOrganizationRequest) (*OrganizationCreated, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	org := models.Organization{
		ID:                   s.newID(),
		Name:                 req.Name,
		BatchThresholdAmount: req.BatchThresholdAmount,
		ContactEmail:         strings.ToLower(req.ContactEmail),
		ContactPhone:         req.ContactPhone,
	}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO organizations (id, name, batch_threshold_amount, contact_email, contact_phone)
		VALUES ($1, $2, $3, $4, $5) RETURNING created_at, updated_at`,
		org.ID, org.Name, org.BatchThresholdAmount, org.ContactEmail, org.ContactPhone,
	).Scan(&org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert organization: %w", err)
	}

	req.Admin.Role = models.RoleAdmin
	admin, err := s.insertUser(ctx, tx, org.ID, req.Admin)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.audit.LogOperation(audit.EventOrganization, org.ID, org.ID, actorID, "CREATED",
		map[string]string{"threshold": org.BatchThresholdAmount.String()})
	slog.InfoContext(ctx, "[ORG] organization created", "org_id", org.ID, "admin_id", admin.ID)
	return &OrganizationCreated{Organization: org, Admin: admin}, nil
}

// AddUser creates a staff account in the organization. Role defaults to
// operator.
func (s *OrganizationService) AddUser(ctx context.Context, orgID, actorID string, req CreateUserRequest) (models.User, error) {
	if req.Role == "" {
		req.Role = models.RoleOperator
	}
	u, err := s.insertUser(ctx, s.db, orgID, req)
	if err != nil {
		return u, err
	}
	s.audit.LogOperation(audit.EventUser, u.ID, orgID, actorID, "CREATED", map[string]string{"role": u.Role})
	return u, nil
}

func (s *OrganizationService) insertUser(ctx context.Context, q dbtx, orgID string, req CreateUserRequest) (models.User, error) {
	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}
	u := models.User{
		ID:             s.newID(),
		OrganizationID: orgID,
		FullName:       req.FullName,
		PhoneNumber:    req.PhoneNumber,
		Email:          strings.ToLower(req.Email),
		Role:           req.Role,
	}
	err = q.QueryRowContext(ctx,
		`INSERT INTO users (id, organization_id, full_name, phone_number, email, role, password_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at, updated_at`,
		u.ID, orgID, u.FullName, u.PhoneNumber, u.Email, u.Role, hash,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if isUniqueViolation(err) {
		return u, stateErr("a user with this email or phone number already exists")
	}
	if err != nil {
		return u, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (s *OrganizationService) Get(ctx context.Context, orgID string) (*models.Organization, error) {
	var org models.Organization
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, batch_threshold_amount, contact_email, contact_phone, created_at, updated_at
		FROM organizations WHERE id = $1`, orgID,
	).Scan(&org.ID, &org.Name, &org.BatchThresholdAmount, &org.ContactEmail, &org.ContactPhone, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("organization")
	}
	if err != nil {
		return nil, fmt.Errorf("load organization: %w", err)
	}
	return &org, nil
}

// UpdateThreshold replaces the threshold. Credits from approved threshold
// payments accumulate on top of whatever is set here.
func (s *OrganizationService) UpdateThreshold(ctx context.Context, orgID, actorID string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return inputErr("threshold cannot be negative")
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE organizations SET batch_threshold_amount = $1, updated_at = NOW() WHERE id = $2", amount, orgID)
	if err != nil {
		return fmt.Errorf("update threshold: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("organization")
	}
	s.audit.LogOperation(audit.EventThresholdUpdate, orgID, orgID, actorID, "UPDATED",
		map[string]string{"threshold": amount.String()})
	return nil
}

func (s *OrganizationService) CreateConnection(ctx context.Context, orgID string, req CreateConnectionRequest) (*models.Connection, error) {
	c := &models.Connection{
		ID:               s.newID(),
		OrganizationID:   orgID,
		ConnectionNumber: req.ConnectionNumber,
		SiteName:         req.SiteName,
		ConnectionType:   req.ConnectionType,
		BillerCode:       req.BillerCode,
		Latitude:         req.Latitude,
		Longitude:        req.Longitude,
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO connections (id, organization_id, connection_number, site_name, connection_type, biller_code, latitude, longitude)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING created_at`,
		c.ID, orgID, c.ConnectionNumber, c.SiteName, c.ConnectionType, c.BillerCode, c.Latitude, c.Longitude,
	).Scan(&c.CreatedAt)
	if isUniqueViolation(err) {
		return nil, stateErr("connection %s already exists", req.ConnectionNumber)
	}
	if err != nil {
		return nil, fmt.Errorf("insert connection: %w", err)
	}
	return c, nil
}

func (s *OrganizationService) ListConnections(ctx context.Context, orgID, connectionType string) ([]models.Connection, error) {
	query := `SELECT id, organization_id, connection_number, site_name, connection_type, biller_code, latitude, longitude, created_at
		FROM connections WHERE organization_id = $1`
	args := []any{orgID}
	if connectionType != "" {
		query += " AND connection_type = $2"
		args = append(args, connectionType)
	}
	query += " ORDER BY site_name, connection_number"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close()

	var out []models.Connection
	for rows.Next() {
		var c models.Connection
		var lat, lng sql.NullFloat64
		if err := rows.Scan(&c.ID, &c.OrganizationID, &c.ConnectionNumber, &c.SiteName, &c.ConnectionType,
			&c.BillerCode, &lat, &lng, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		if lat.Valid {
			c.Latitude = &lat.Float64
		}
		if lng.Valid {
			c.Longitude = &lng.Float64
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
