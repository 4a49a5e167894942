package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment gateway transaction statuses
const (
	TransactionPending  = "pending"
	TransactionApproved = "approved"
	TransactionRejected = "rejected"
)

// Transaction pay types
const (
	PayTypeThreshold = "threshold"
	PayTypeDirect    = "direct"
)

// PaymentGatewayTransaction records a reconciliation attempt for a batch.
type PaymentGatewayTransaction struct {
	ID                   string          `json:"id" db:"id"`
	BatchID              string          `json:"batchId" db:"batch_id"`
	OrganizationID       string          `json:"organizationId" db:"organization_id"`
	TransactionReference string          `json:"transactionReference" db:"transaction_reference"`
	Amount               decimal.Decimal `json:"amount" db:"amount"`
	PaymentMode          string          `json:"paymentMode" db:"payment_mode"`
	Remarks              string          `json:"remarks" db:"remarks"`
	TransactionDate      time.Time       `json:"transactionDate" db:"transaction_date"`
	PaymentStatus        string          `json:"paymentStatus" db:"payment_status"`
	TransactionPayType   string          `json:"transactionPayType" db:"transaction_pay_type"`
	ReviewedBy           *string         `json:"reviewedBy,omitempty" db:"reviewed_by"`
	ReviewedAt           *time.Time      `json:"reviewedAt,omitempty" db:"reviewed_at"`
	RejectionReason      *string         `json:"rejectionReason,omitempty" db:"rejection_reason"`
	ReceiptPath          *string         `json:"receiptPath,omitempty" db:"receipt_path"`
	CreatedBy            string          `json:"createdBy" db:"created_by"`
	CreatedAt            time.Time       `json:"createdAt" db:"created_at"`
}

// IsLive reports whether the transaction still blocks another payment.
func (t PaymentGatewayTransaction) IsLive() bool {
	return t.PaymentStatus != TransactionRejected
}
