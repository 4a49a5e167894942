package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied on startup. Every statement is idempotent.
// Tables are ordered so foreign keys resolve.
const schema = `
CREATE TABLE IF NOT EXISTS organizations (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    batch_threshold_amount NUMERIC(14,2) NOT NULL DEFAULT 0 CHECK (batch_threshold_amount >= 0),
    contact_email TEXT NOT NULL DEFAULT '',
    contact_phone TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    organization_id TEXT NOT NULL REFERENCES organizations(id),
    full_name TEXT NOT NULL,
    phone_number TEXT UNIQUE,
    email TEXT UNIQUE,
    role TEXT NOT NULL CHECK (role IN ('operator', 'reviewer', 'admin')),
    password_hash TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS connections (
    id TEXT PRIMARY KEY,
    organization_id TEXT NOT NULL REFERENCES organizations(id),
    connection_number TEXT NOT NULL,
    site_name TEXT NOT NULL,
    connection_type TEXT NOT NULL CHECK (connection_type IN ('prepaid', 'postpaid', 'submeter')),
    biller_code TEXT NOT NULL DEFAULT '',
    latitude DOUBLE PRECISION,
    longitude DOUBLE PRECISION,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (organization_id, connection_number)
);

CREATE TABLE IF NOT EXISTS bills (
    id TEXT PRIMARY KEY,
    connection_id TEXT NOT NULL REFERENCES connections(id),
    bill_amount NUMERIC(14,2) NOT NULL CHECK (bill_amount > 0),
    discount_amount NUMERIC(14,2) NOT NULL DEFAULT 0,
    due_date DATE NOT NULL,
    discount_date DATE,
    approved_amount NUMERIC(14,2),
    bill_status TEXT NOT NULL DEFAULT 'new' CHECK (bill_status IN ('new', 'approved', 'batched', 'rejected')),
    payment_status BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS recharges (
    id TEXT PRIMARY KEY,
    connection_id TEXT NOT NULL REFERENCES connections(id),
    recharge_amount NUMERIC(14,2) NOT NULL CHECK (recharge_amount > 0),
    recharge_status TEXT NOT NULL DEFAULT 'new' CHECK (recharge_status IN ('new', 'approved', 'batched')),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS batches (
    id TEXT PRIMARY KEY,
    organization_id TEXT NOT NULL REFERENCES organizations(id),
    batch_status TEXT NOT NULL DEFAULT 'client_paid' CHECK (batch_status IN ('client_paid', 'processing', 'settled')),
    batch_type TEXT NOT NULL DEFAULT 'direct' CHECK (batch_type IN ('direct', 'threshold')),
    total_amount NUMERIC(14,2) NOT NULL,
    validity_date DATE NOT NULL,
    created_by TEXT NOT NULL REFERENCES users(id),
    updated_by TEXT REFERENCES users(id),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS client_payments (
    id TEXT PRIMARY KEY,
    batch_id TEXT NOT NULL REFERENCES batches(id),
    bill_id TEXT REFERENCES bills(id),
    recharge_id TEXT REFERENCES recharges(id),
    connection_id TEXT NOT NULL REFERENCES connections(id),
    approved_amount NUMERIC(14,2) NOT NULL,
    paid_amount NUMERIC(14,2),
    status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'paid')),
    CHECK ((bill_id IS NULL) <> (recharge_id IS NULL))
);

CREATE TABLE IF NOT EXISTS payment_gateway_transactions (
    id TEXT PRIMARY KEY,
    batch_id TEXT NOT NULL REFERENCES batches(id),
    organization_id TEXT NOT NULL REFERENCES organizations(id),
    transaction_reference TEXT NOT NULL,
    amount NUMERIC(14,2) NOT NULL,
    payment_mode TEXT NOT NULL,
    remarks TEXT NOT NULL DEFAULT '',
    transaction_date DATE NOT NULL,
    payment_status TEXT NOT NULL DEFAULT 'pending' CHECK (payment_status IN ('pending', 'approved', 'rejected')),
    transaction_pay_type TEXT NOT NULL CHECK (transaction_pay_type IN ('threshold', 'direct')),
    reviewed_by TEXT REFERENCES users(id),
    reviewed_at TIMESTAMPTZ,
    rejection_reason TEXT,
    receipt_path TEXT,
    created_by TEXT NOT NULL REFERENCES users(id),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_users_organization_id ON users(organization_id);
CREATE INDEX IF NOT EXISTS idx_connections_organization_id ON connections(organization_id);
CREATE INDEX IF NOT EXISTS idx_bills_connection_id ON bills(connection_id);
CREATE INDEX IF NOT EXISTS idx_bills_status ON bills(bill_status);
CREATE INDEX IF NOT EXISTS idx_recharges_connection_id ON recharges(connection_id);
CREATE INDEX IF NOT EXISTS idx_batches_org_status ON batches(organization_id, batch_status);
CREATE INDEX IF NOT EXISTS idx_client_payments_batch_id ON client_payments(batch_id);
CREATE INDEX IF NOT EXISTS idx_client_payments_bill_id ON client_payments(bill_id);
CREATE INDEX IF NOT EXISTS idx_pgt_batch_id ON payment_gateway_transactions(batch_id);
CREATE INDEX IF NOT EXISTS idx_pgt_org_status ON payment_gateway_transactions(organization_id, payment_status);
`

// Migrate applies the schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
