package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestAddAmount(t *testing.T) {
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_amount_total", Help: "test"})

	AddAmount(c, decimal.RequireFromString("1250.50"))
	AddAmount(c, decimal.NewFromInt(-10))
	AddAmount(c, decimal.Zero)

	assert.InDelta(t, 1250.50, testutil.ToFloat64(c), 0.001)
}

func TestThresholdChecks(t *testing.T) {
	before := testutil.ToFloat64(ThresholdChecks.WithLabelValues("rejected"))
	ThresholdChecks.WithLabelValues("rejected").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(ThresholdChecks.WithLabelValues("rejected")))
}
