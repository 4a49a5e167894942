package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Organization is a tenant. BatchThresholdAmount is the ceiling on approved,
// unpaid value that may sit in processing batches at once.
type Organization struct {
	ID                   string          `json:"id" db:"id"`
	Name                 string          `json:"name" db:"name"`
	BatchThresholdAmount decimal.Decimal `json:"batchThresholdAmount" db:"batch_threshold_amount"`
	ContactEmail         string          `json:"contactEmail" db:"contact_email"`
	ContactPhone         string          `json:"contactPhone" db:"contact_phone"`
	CreatedAt            time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt            time.Time       `json:"updatedAt" db:"updated_at"`
}

// ThresholdStatus is the organization's current utilization.
type ThresholdStatus struct {
	TotalApproved decimal.Decimal `json:"totalApproved"`
	Threshold     decimal.Decimal `json:"threshold"`
}

// Headroom returns how much more can be submitted before the threshold is hit.
// It is never negative.
func (s ThresholdStatus) Headroom() decimal.Decimal {
	h := s.Threshold.Sub(s.TotalApproved)
	if h.IsNegative() {
		return decimal.Zero
	}
	return h
}
