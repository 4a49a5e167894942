package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

var (
	ThresholdChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridbill_threshold_checks_total",
			Help: "Threshold checks by result (accepted, rejected, error).",
		},
		[]string{"result"},
	)

	BatchPayments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridbill_batch_payments_total",
			Help: "Batch payment recordings by result (recorded, skipped, failed).",
		},
		[]string{"result", "pay_type"},
	)

	TransactionReviews = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridbill_transaction_reviews_total",
			Help: "Payment gateway transaction reviews by outcome.",
		},
		[]string{"outcome", "pay_type"},
	)

	ThresholdCredited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gridbill_threshold_credited_amount_total",
			Help: "Threshold credit restored by approved threshold payments.",
		},
	)

	BatchesSettled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gridbill_batches_settled_total",
			Help: "Batches moved to settled by the settlement sweep.",
		},
	)

	OTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridbill_otp_requests_total",
			Help: "OTP send requests by result (sent, cooldown, captcha_failed).",
		},
		[]string{"result"},
	)
)

// AddAmount adds a money amount to a counter.
func AddAmount(c prometheus.Counter, amount decimal.Decimal) {
	f, _ := amount.Float64()
	if f > 0 {
		c.Add(f)
	}
}
