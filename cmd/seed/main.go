// Command seed loads a demo organization with staff, connections and bills.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gridbill/backend/internal/audit"
	"github.com/gridbill/backend/internal/config"
	"github.com/gridbill/backend/internal/database"
	"github.com/gridbill/backend/internal/logging"
	"github.com/gridbill/backend/internal/models"
	"github.com/gridbill/backend/internal/services"
)

const seedActor = "seed"

var demoConnections = []services.CreateConnectionRequest{
	{ConnectionNumber: "MH-0042-7781", SiteName: "Pune Warehouse", ConnectionType: models.ConnectionPostpaid, BillerCode: "MSEDCL"},
	{ConnectionNumber: "MH-0042-7782", SiteName: "Pune Office", ConnectionType: models.ConnectionPostpaid, BillerCode: "MSEDCL"},
	{ConnectionNumber: "KA-1190-0031", SiteName: "Bengaluru Store", ConnectionType: models.ConnectionPrepaid, BillerCode: "BESCOM"},
}

func main() {
	logging.Setup()

	cfg, err := config.Load(".env")
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := database.InitDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to initialize database", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	auditLogger := audit.NewLogger(slog.Default())
	hasher := services.NewPasswordHasher(cfg.Argon2)
	orgs := services.NewOrganizationService(db, hasher, auditLogger)
	bills := services.NewBillService(db, nil, auditLogger)
	recharges := services.NewRechargeService(db, auditLogger)

	created, err := orgs.Create(ctx, seedActor, services.CreateOrganizationRequest{
		Name:                 "Acme Facilities",
		BatchThresholdAmount: decimal.NewFromInt(100000),
		ContactEmail:         "accounts@acme.example",
		Admin: services.CreateUserRequest{
			FullName:    "Asha Rao",
			Email:       "admin@acme.example",
			PhoneNumber: "+919812345678",
			Password:    "password123",
		},
	})
	if errors.Is(err, services.ErrInvalidState) {
		slog.Info("demo data already present, nothing to do")
		return
	}
	if err != nil {
		slog.Error("failed to create organization", "err", err)
		os.Exit(1)
	}
	orgID := created.Organization.ID

	staff := []services.CreateUserRequest{
		{FullName: "Ravi Kumar", Email: "ops@acme.example", PhoneNumber: "+919812345679", Password: "password123", Role: models.RoleOperator},
		{FullName: "Meera Iyer", Email: "review@acme.example", PhoneNumber: "+919812345680", Password: "password123", Role: models.RoleReviewer},
	}
	for _, u := range staff {
		if _, err := orgs.AddUser(ctx, orgID, seedActor, u); err != nil {
			slog.Error("failed to create user", "email", u.Email, "err", err)
			os.Exit(1)
		}
	}

	due := time.Now().AddDate(0, 0, 20).Format(time.DateOnly)
	discount := time.Now().AddDate(0, 0, 10).Format(time.DateOnly)
	for i, req := range demoConnections {
		conn, err := orgs.CreateConnection(ctx, orgID, req)
		if err != nil {
			slog.Error("failed to create connection", "number", req.ConnectionNumber, "err", err)
			os.Exit(1)
		}

		if conn.ConnectionType == models.ConnectionPrepaid {
			_, err = recharges.Create(ctx, orgID, services.CreateRechargeRequest{
				ConnectionID:   conn.ID,
				RechargeAmount: decimal.NewFromInt(2000),
			})
		} else {
			_, err = bills.Create(ctx, orgID, services.CreateBillRequest{
				ConnectionID:   conn.ID,
				BillAmount:     decimal.NewFromInt(int64(12500 * (i + 1))),
				DiscountAmount: decimal.NewFromInt(250),
				DueDate:        due,
				DiscountDate:   discount,
			})
		}
		if err != nil {
			slog.Error("failed to create demo charge", "connection", conn.ConnectionNumber, "err", err)
			os.Exit(1)
		}
	}

	slog.Info("demo data seeded", "org_id", orgID, "admin", created.Admin.Email)
}
