package service

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/models"
)

const autoAssignActor = "system:auto-assign"

type autoAssigner interface {
	AutoAssign(ctx context.Context, opts models.AutoAssignOptions) (*models.AutoAssignResult, error)
}

// AutoAssignJob runs auto-assign on a cron schedule. Runs never overlap.
type AutoAssignJob struct {
	runner   autoAssigner
	schedule string
	opts     models.AutoAssignOptions
	metrics  *MetricsService
	logger   *zap.Logger
	cron     *cron.Cron
	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewAutoAssignJob builds a job for a standard five-field cron schedule.
func NewAutoAssignJob(runner autoAssigner, schedule string, opts models.AutoAssignOptions, metrics *MetricsService, logger *zap.Logger) *AutoAssignJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Actor == "" {
		opts.Actor = autoAssignActor
	}
	return &AutoAssignJob{runner: runner, schedule: schedule, opts: opts, metrics: metrics, logger: logger}
}

// Start registers the schedule and starts the scheduler.
func (j *AutoAssignJob) Start(ctx context.Context) error {
	j.ctx, j.cancel = context.WithCancel(ctx)
	j.cron = cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	if _, err := j.cron.AddFunc(j.schedule, func() { j.Run(j.ctx) }); err != nil {
		j.cancel()
		return err
	}
	j.cron.Start()
	j.logger.Info("auto assign job scheduled", zap.String("schedule", j.schedule))
	return nil
}

// Stop halts the scheduler and waits for a running pass to finish.
func (j *AutoAssignJob) Stop() {
	if j.cron == nil {
		return
	}
	done := j.cron.Stop()
	<-done.Done()
	j.cancel()
	j.logger.Info("auto assign job stopped")
}

// Run executes one pass. A pass already in progress makes it a no-op.
func (j *AutoAssignJob) Run(ctx context.Context) {
	if !j.mu.TryLock() {
		j.logger.Warn("auto assign pass skipped, previous pass still running")
		return
	}
	defer j.mu.Unlock()

	start := time.Now()
	result, err := j.runner.AutoAssign(ctx, j.opts)
	j.metrics.ObserveAutoAssignRun(time.Since(start))
	if err != nil {
		j.logger.Error("auto assign pass failed", zap.Error(err))
		return
	}
	j.logger.Info("auto assign pass finished",
		zap.Int("assigned", len(result.Assigned)),
		zap.Int("unassigned", len(result.Unassigned)),
		zap.Duration("duration", time.Since(start)))
}
