package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

func (q *Queue) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeDispatch, q.HandleDispatchTask)
	mux.HandleFunc(TaskTypeReconcileOverdue, q.HandleOverdueTask)
	mux.HandleFunc(TaskTypeReconcileOrphans, q.HandleOrphansTask)
	mux.HandleFunc(TaskTypeCredentialsRefresh, q.HandleRefreshTask)
	return mux
}

// runAt reads the pinned instant of a task, falling back to the clock.
func (q *Queue) runAt(task *asynq.Task) (time.Time, error) {
	if len(task.Payload()) == 0 {
		return q.clock.Now(), nil
	}
	var payload RunPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if payload.Now == "" {
		return q.clock.Now(), nil
	}
	now, err := time.Parse(time.RFC3339, payload.Now)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	return now, nil
}

// A failed run is never retried by the queue; the next period re-drives
// everything that is still due.
func skipRetry(err error) error {
	return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
}

func (q *Queue) HandleDispatchTask(ctx context.Context, task *asynq.Task) error {
	now, err := q.runAt(task)
	if err != nil {
		return err
	}
	summary, err := q.dispatcher.RunOnce(ctx, now)
	if err != nil {
		return skipRetry(err)
	}
	q.logger.Info("dispatch task done", "run_id", summary.RunID,
		"processed", summary.Processed, "failed", summary.FailedCount)
	return nil
}

func (q *Queue) HandleOverdueTask(ctx context.Context, task *asynq.Task) error {
	now, err := q.runAt(task)
	if err != nil {
		return err
	}
	report, err := q.reconcile.PublishOverdue(ctx, now)
	if err != nil {
		return skipRetry(err)
	}
	q.logger.Info("overdue task done", "overdue", len(report.Overdue))
	return nil
}

func (q *Queue) HandleOrphansTask(ctx context.Context, task *asynq.Task) error {
	now, err := q.runAt(task)
	if err != nil {
		return err
	}
	report, err := q.reconcile.RepairOrphans(ctx, now)
	if err != nil {
		return skipRetry(err)
	}
	q.logger.Info("orphan task done", "scanned", report.Scanned, "repaired", len(report.Repaired))
	return nil
}

func (q *Queue) HandleRefreshTask(ctx context.Context, task *asynq.Task) error {
	report, err := q.credentials.RefreshExpiring(ctx)
	if err != nil {
		return skipRetry(err)
	}
	q.logger.Info("credential refresh task done", "scanned", report.Scanned,
		"refreshed", report.Refreshed, "disconnected", report.Disconnected, "failed", report.Failed)
	return nil
}
