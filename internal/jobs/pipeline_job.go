package job

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron"

	"github.com/maheshrc27/brandcast/internal/service"
)

// guard drops a tick while the previous one of the same job is running.
type guard struct{ busy atomic.Bool }

func (g *guard) enter() bool { return g.busy.CompareAndSwap(false, true) }
func (g *guard) leave()      { g.busy.Store(false) }

type PipelineJob struct {
	dispatcher service.Dispatcher
	reconcile  service.ReconcileService
	clock      service.Clock
	logger     *slog.Logger
	timeout    time.Duration

	dispatchGuard  guard
	reconcileGuard guard
}

// NewPipelineJob builds the in-process triggers. timeout bounds one
// invocation and should cover the run deadline plus in-flight attempts.
func NewPipelineJob(
	dispatcher service.Dispatcher,
	reconcile service.ReconcileService,
	clock service.Clock,
	logger *slog.Logger,
	timeout time.Duration) *PipelineJob {
	return &PipelineJob{
		dispatcher: dispatcher,
		reconcile:  reconcile,
		clock:      clock,
		logger:     logger,
		timeout:    timeout,
	}
}

func (j *PipelineJob) Dispatch() {
	if !j.dispatchGuard.enter() {
		j.logger.Warn("dispatch run still in progress, skipping tick")
		return
	}
	defer j.dispatchGuard.leave()

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if _, err := j.dispatcher.RunOnce(ctx, j.clock.Now()); err != nil {
		j.logger.Error("scheduled dispatch failed", "error", err)
	}
}

// Reconcile re-drives overdue posts and then repairs orphaned calendar items.
func (j *PipelineJob) Reconcile() {
	if !j.reconcileGuard.enter() {
		j.logger.Warn("reconciliation still in progress, skipping tick")
		return
	}
	defer j.reconcileGuard.leave()

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	now := j.clock.Now()
	if _, err := j.reconcile.PublishOverdue(ctx, now); err != nil {
		j.logger.Error("publish overdue failed", "error", err)
	}
	report, err := j.reconcile.RepairOrphans(ctx, now)
	if err != nil {
		j.logger.Error("orphan repair failed", "error", err)
		return
	}
	if len(report.Repaired) > 0 {
		j.logger.Info("orphan repair done", "repaired", len(report.Repaired), "deleted_groups", len(report.DeletedGroups))
	}
}

// Specs are cron specs; an empty spec leaves that job unscheduled.
type Specs struct {
	Dispatch  string
	Reconcile string
	Refresh   string
}

// Schedule registers the jobs on c. The caller starts and stops c.
func Schedule(c *cron.Cron, specs Specs, pipeline *PipelineJob, refresh *TokenRefreshJob) error {
	entries := []struct {
		spec string
		fn   func()
	}{
		{specs.Dispatch, pipeline.Dispatch},
		{specs.Reconcile, pipeline.Reconcile},
		{specs.Refresh, refresh.RefreshTokens},
	}
	for _, e := range entries {
		if e.spec == "" {
			continue
		}
		if err := c.AddFunc(e.spec, e.fn); err != nil {
			return err
		}
	}
	return nil
}
