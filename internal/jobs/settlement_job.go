package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gridbill/backend/internal/config"
	"github.com/gridbill/backend/internal/services"
)

const (
	defaultSettlementSchedule = "*/15 * * * *"
	sweepTimeout              = 2 * time.Minute
)

// Sweeper settles fully paid batches.
type Sweeper interface {
	Sweep(ctx context.Context) ([]services.SettledBatch, error)
}

// StartSettlementScheduler runs the settlement sweep on cfg.Schedule. The
// caller owns the returned scheduler and must Stop it on shutdown.
func StartSettlementScheduler(cfg config.SettlementConfig, sweeper Sweeper) (*cron.Cron, error) {
	schedule := cfg.Schedule
	if schedule == "" {
		schedule = defaultSettlementSchedule
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil || cfg.Timezone == "" {
		loc = time.UTC
	}

	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddFunc(schedule, func() { runSweep(sweeper) }); err != nil {
		return nil, fmt.Errorf("unable to schedule settlement sweep: %w", err)
	}

	c.Start()
	slog.Info("[SETTLEMENT] scheduler started", "schedule", schedule, "timezone", loc.String())
	return c, nil
}

func runSweep(sweeper Sweeper) {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	settled, err := sweeper.Sweep(ctx)
	if err != nil {
		slog.Error("[SETTLEMENT] sweep failed", "err", err)
		return
	}
	if len(settled) > 0 {
		slog.Info("[SETTLEMENT] sweep complete", "settled", len(settled))
	}
}
