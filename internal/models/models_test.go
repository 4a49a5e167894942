package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestBatch_CanPayNow(t *testing.T) {
	tests := []struct {
		name  string
		batch Batch
		live  int
		want  bool
	}{
		{"client paid direct, no transactions", Batch{BatchStatus: BatchStatusClientPaid, BatchType: BatchTypeDirect}, 0, true},
		{"client paid direct, pending transaction", Batch{BatchStatus: BatchStatusClientPaid, BatchType: BatchTypeDirect}, 1, false},
		{"processing direct", Batch{BatchStatus: BatchStatusProcessing, BatchType: BatchTypeDirect}, 0, false},
		{"processing threshold, no transactions", Batch{BatchStatus: BatchStatusProcessing, BatchType: BatchTypeThreshold}, 0, true},
		{"processing threshold, pending transaction", Batch{BatchStatus: BatchStatusProcessing, BatchType: BatchTypeThreshold}, 1, false},
		{"settled", Batch{BatchStatus: BatchStatusSettled, BatchType: BatchTypeDirect}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.batch.CanPayNow(tt.live))
		})
	}
}

func TestBatch_PayType(t *testing.T) {
	assert.Equal(t, PayTypeThreshold, Batch{BatchType: BatchTypeThreshold}.PayType())
	assert.Equal(t, PayTypeDirect, Batch{BatchType: BatchTypeDirect}.PayType())
}

func TestBill_DefaultApprovedAmount(t *testing.T) {
	discountDate := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	bill := Bill{
		BillAmount:     decimal.NewFromInt(1200),
		DiscountAmount: decimal.NewFromInt(24),
		DiscountDate:   &discountDate,
	}

	t.Run("before discount date", func(t *testing.T) {
		got := bill.DefaultApprovedAmount(time.Date(2026, 3, 9, 18, 0, 0, 0, time.UTC))
		assert.True(t, got.Equal(decimal.NewFromInt(1176)), got.String())
	})

	t.Run("on discount date", func(t *testing.T) {
		got := bill.DefaultApprovedAmount(time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC))
		assert.True(t, got.Equal(decimal.NewFromInt(1176)), got.String())
	})

	t.Run("after discount date", func(t *testing.T) {
		got := bill.DefaultApprovedAmount(time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC))
		assert.True(t, got.Equal(decimal.NewFromInt(1200)), got.String())
	})

	t.Run("no discount date", func(t *testing.T) {
		b := bill
		b.DiscountDate = nil
		assert.True(t, b.DefaultApprovedAmount(time.Now()).Equal(decimal.NewFromInt(1200)))
	})
}

func TestThresholdStatus_Headroom(t *testing.T) {
	s := ThresholdStatus{TotalApproved: decimal.NewFromInt(95000), Threshold: decimal.NewFromInt(100000)}
	assert.Equal(t, "5000", s.Headroom().String())

	over := ThresholdStatus{TotalApproved: decimal.NewFromInt(120), Threshold: decimal.NewFromInt(100)}
	assert.True(t, over.Headroom().IsZero())
}

func TestPaymentGatewayTransaction_IsLive(t *testing.T) {
	assert.True(t, PaymentGatewayTransaction{PaymentStatus: TransactionPending}.IsLive())
	assert.True(t, PaymentGatewayTransaction{PaymentStatus: TransactionApproved}.IsLive())
	assert.False(t, PaymentGatewayTransaction{PaymentStatus: TransactionRejected}.IsLive())
}
