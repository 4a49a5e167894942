package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bill statuses
const (
	BillStatusNew      = "new"
	BillStatusApproved = "approved"
	BillStatusBatched  = "batched"
	BillStatusRejected = "rejected"
)

// Recharge statuses
const (
	RechargeStatusNew      = "new"
	RechargeStatusApproved = "approved"
	RechargeStatusBatched  = "batched"
)

type Bill struct {
	ID             string           `json:"id" db:"id"`
	ConnectionID   string           `json:"connectionId" db:"connection_id"`
	BillAmount     decimal.Decimal  `json:"billAmount" db:"bill_amount"`
	DiscountAmount decimal.Decimal  `json:"discountAmount" db:"discount_amount"`
	DueDate        time.Time        `json:"dueDate" db:"due_date"`
	DiscountDate   *time.Time       `json:"discountDate,omitempty" db:"discount_date"`
	ApprovedAmount *decimal.Decimal `json:"approvedAmount,omitempty" db:"approved_amount"`
	BillStatus     string           `json:"billStatus" db:"bill_status"`
	PaymentStatus  bool             `json:"paymentStatus" db:"payment_status"`
	CreatedAt      time.Time        `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time        `json:"updatedAt" db:"updated_at"`
}

// DefaultApprovedAmount is the bill amount less the discount while the
// discount date has not passed, otherwise the full bill amount.
func (b Bill) DefaultApprovedAmount(now time.Time) decimal.Decimal {
	if b.DiscountDate == nil || b.DiscountAmount.IsZero() {
		return b.BillAmount
	}
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	dy, dm, dd := b.DiscountDate.Date()
	cutoff := time.Date(dy, dm, dd, 0, 0, 0, 0, time.UTC)
	if today.After(cutoff) {
		return b.BillAmount
	}
	return b.BillAmount.Sub(b.DiscountAmount)
}

// Recharge is a prepaid top-up request for a connection.
type Recharge struct {
	ID             string          `json:"id" db:"id"`
	ConnectionID   string          `json:"connectionId" db:"connection_id"`
	RechargeAmount decimal.Decimal `json:"rechargeAmount" db:"recharge_amount"`
	RechargeStatus string          `json:"rechargeStatus" db:"recharge_status"`
	CreatedAt      time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time       `json:"updatedAt" db:"updated_at"`
}
