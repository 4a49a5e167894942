package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gridbill/backend/internal/config"
	"github.com/gridbill/backend/internal/services"
)

type MockSweeper struct {
	mock.Mock
}

func (m *MockSweeper) Sweep(ctx context.Context) ([]services.SettledBatch, error) {
	args := m.Called(ctx)
	settled, _ := args.Get(0).([]services.SettledBatch)
	return settled, args.Error(1)
}

func TestStartSettlementScheduler(t *testing.T) {
	t.Run("default schedule", func(t *testing.T) {
		c, err := StartSettlementScheduler(config.SettlementConfig{Timezone: "Asia/Kolkata"}, &MockSweeper{})
		require.NoError(t, err)
		defer c.Stop()

		entries := c.Entries()
		require.Len(t, entries, 1)
		assert.False(t, entries[0].Next.IsZero())
	})

	t.Run("invalid schedule", func(t *testing.T) {
		_, err := StartSettlementScheduler(config.SettlementConfig{Schedule: "every now and then"}, &MockSweeper{})
		assert.Error(t, err)
	})
}

func TestRunSweep(t *testing.T) {
	t.Run("passes a deadline", func(t *testing.T) {
		sweeper := &MockSweeper{}
		sweeper.On("Sweep", mock.MatchedBy(func(ctx context.Context) bool {
			_, ok := ctx.Deadline()
			return ok
		})).Return([]services.SettledBatch{{BatchID: "batch-1"}}, nil).Once()

		runSweep(sweeper)
		sweeper.AssertExpectations(t)
	})

	t.Run("errors are logged, not raised", func(t *testing.T) {
		sweeper := &MockSweeper{}
		sweeper.On("Sweep", mock.Anything).Return(nil, errors.New("db down")).Once()

		assert.NotPanics(t, func() { runSweep(sweeper) })
		sweeper.AssertExpectations(t)
	})
}
