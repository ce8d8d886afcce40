package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Specs are the cron specs of the periodic pipeline tasks.
type Specs struct {
	Dispatch  string
	Reconcile string
	Refresh   string
}

func newTask(typename string, payload []byte, unique time.Duration) *asynq.Task {
	return asynq.NewTask(typename, payload, asynq.MaxRetry(0), asynq.Unique(unique))
}

func NewDispatchTask(now *time.Time, unique time.Duration) (*asynq.Task, error) {
	var payload []byte
	if now != nil {
		b, err := json.Marshal(RunPayload{Now: now.UTC().Format(time.RFC3339)})
		if err != nil {
			return nil, err
		}
		payload = b
	}
	return newTask(TaskTypeDispatch, payload, unique), nil
}

// RegisterPeriodic registers the pipeline tasks with the scheduler. Unique
// keeps a task from piling up while a previous one is still queued, so
// several scheduler instances may run side by side.
func RegisterPeriodic(s *asynq.Scheduler, specs Specs, unique time.Duration) error {
	dispatch, err := NewDispatchTask(nil, unique)
	if err != nil {
		return err
	}
	entries := []struct {
		spec string
		task *asynq.Task
	}{
		{specs.Dispatch, dispatch},
		{specs.Reconcile, newTask(TaskTypeReconcileOverdue, nil, unique)},
		{specs.Reconcile, newTask(TaskTypeReconcileOrphans, nil, unique)},
		{specs.Refresh, newTask(TaskTypeCredentialsRefresh, nil, unique)},
	}
	for _, e := range entries {
		if e.spec == "" {
			continue
		}
		if _, err := s.Register(e.spec, e.task); err != nil {
			return fmt.Errorf("register %s: %w", e.task.Type(), err)
		}
	}
	return nil
}

// EnqueueDispatch asks a worker for a run after delay.
func EnqueueDispatch(client *asynq.Client, delay, unique time.Duration) error {
	task, err := NewDispatchTask(nil, unique)
	if err != nil {
		return err
	}
	_, err = client.Enqueue(task, asynq.ProcessIn(delay))
	return err
}
