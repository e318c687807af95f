package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/pulsewatch/pulsewatch/pkg/database"
)

// Cleaner runs a daily (by default) retention sweep over the status
// history table, grounded on the pack's cron-based monitor schedulers
// (peekaping's MonitorScheduler, ysicing-tiga's ServiceProbeScheduler) —
// cron fits this fixed wall-clock cadence far better than the per-monitor
// sleep-from-end-of-attempt loop in monitorTask.
type Cleaner struct {
	history       *database.HistoryRepository
	retentionDays int
	logger        *zap.SugaredLogger

	cronRunner *cron.Cron
}

// NewCleaner builds a Cleaner. retentionDays is how far back history is
// kept (90 when not positive); the schedule is passed to Start.
func NewCleaner(history *database.HistoryRepository, retentionDays int, logger *zap.SugaredLogger) *Cleaner {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &Cleaner{
		history:       history,
		retentionDays: retentionDays,
		logger:        logger.With("component", "cleaner"),
		cronRunner:    cron.New(),
	}
}

// Start schedules the sweep under the given cron expression (e.g. "@daily",
// the default when spec is empty, or "0 3 * * *") and starts the cron
// runner's own goroutine.
func (c *Cleaner) Start(spec string) error {
	if spec == "" {
		spec = "@daily"
	}
	_, err := c.cronRunner.AddFunc(spec, c.sweep)
	if err != nil {
		return err
	}
	c.cronRunner.Start()
	return nil
}

// Stop waits for any in-flight sweep to finish and stops the cron runner.
func (c *Cleaner) Stop() {
	ctx := c.cronRunner.Stop()
	<-ctx.Done()
}

// RunOnce performs a single sweep immediately, independent of the cron
// schedule; used by tests and by an operator-triggered manual cleanup.
func (c *Cleaner) RunOnce() {
	c.sweep()
}

func (c *Cleaner) sweep() {
	cutoff := time.Now().AddDate(0, 0, -c.retentionDays)
	removed, err := c.history.DeleteOlderThan(cutoff)
	if err != nil {
		c.logger.Errorw("retention sweep failed", "error", err)
		return
	}
	c.logger.Infow("retention sweep complete", "removed", removed, "cutoff", cutoff)
}
