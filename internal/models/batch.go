package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Batch statuses
const (
	BatchStatusClientPaid = "client_paid"
	BatchStatusProcessing = "processing"
	BatchStatusSettled    = "settled"
)

// Batch types
const (
	BatchTypeDirect    = "direct"
	BatchTypeThreshold = "threshold"
)

// Client payment statuses
const (
	ClientPaymentPending = "pending"
	ClientPaymentPaid    = "paid"
)

type Batch struct {
	ID             string          `json:"id" db:"id"`
	OrganizationID string          `json:"organizationId" db:"organization_id"`
	BatchStatus    string          `json:"batchStatus" db:"batch_status"`
	BatchType      string          `json:"batchType" db:"batch_type"`
	TotalAmount    decimal.Decimal `json:"totalAmount" db:"total_amount"`
	ValidityDate   time.Time       `json:"validityDate" db:"validity_date"`
	CreatedBy      string          `json:"createdBy" db:"created_by"`
	UpdatedBy      *string         `json:"updatedBy,omitempty" db:"updated_by"`
	CreatedAt      time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time       `json:"updatedAt" db:"updated_at"`
}

// CanPayNow reports whether a payment may be recorded against the batch given
// the number of its transactions that are not rejected.
func (b Batch) CanPayNow(liveTransactions int) bool {
	if liveTransactions > 0 {
		return false
	}
	switch b.BatchType {
	case BatchTypeThreshold:
		return b.BatchStatus == BatchStatusProcessing
	default:
		return b.BatchStatus == BatchStatusClientPaid
	}
}

// PayType is the transaction_pay_type a payment against this batch carries.
func (b Batch) PayType() string {
	if b.BatchType == BatchTypeThreshold {
		return PayTypeThreshold
	}
	return PayTypeDirect
}

// ClientPayment links a batch to exactly one bill or recharge.
type ClientPayment struct {
	ID             string           `json:"id" db:"id"`
	BatchID        string           `json:"batchId" db:"batch_id"`
	BillID         *string          `json:"billId,omitempty" db:"bill_id"`
	RechargeID     *string          `json:"rechargeId,omitempty" db:"recharge_id"`
	ConnectionID   string           `json:"connectionId" db:"connection_id"`
	ApprovedAmount decimal.Decimal  `json:"approvedAmount" db:"approved_amount"`
	PaidAmount     *decimal.Decimal `json:"paidAmount,omitempty" db:"paid_amount"`
	Status         string           `json:"status" db:"status"`
}
