package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/brandcast/internal/platform"
	"github.com/maheshrc27/brandcast/internal/service"
	"github.com/maheshrc27/brandcast/internal/transfer"
)

var fixedNow = time.Date(2026, 2, 17, 1, 40, 0, 0, time.UTC)

type clock struct{}

func (clock) Now() time.Time { return fixedNow }

type fakeDispatcher struct {
	runs []time.Time
	err  error
}

func (f *fakeDispatcher) RunOnce(ctx context.Context, now time.Time) (*transfer.RunSummary, error) {
	f.runs = append(f.runs, now)
	if f.err != nil {
		return nil, f.err
	}
	return &transfer.RunSummary{RunID: "run-1"}, nil
}

type fakeReconcile struct {
	overdue, orphans int
}

func (f *fakeReconcile) PublishOverdue(ctx context.Context, now time.Time) (*transfer.OverdueReport, error) {
	f.overdue++
	return &transfer.OverdueReport{Run: &transfer.RunSummary{}}, nil
}

func (f *fakeReconcile) RepairOrphans(ctx context.Context, now time.Time) (*transfer.OrphanReport, error) {
	f.orphans++
	return &transfer.OrphanReport{}, nil
}

type fakeCredentials struct {
	sweeps int
}

func (f *fakeCredentials) Resolve(ctx context.Context, accountID, pageID string, shape platform.CredentialShape) (*platform.Credential, error) {
	return nil, errors.New("not used")
}

func (f *fakeCredentials) MarkReauthRequired(ctx context.Context, accountID string, cause error) error {
	return nil
}

func (f *fakeCredentials) RefreshExpiring(ctx context.Context) (*service.RefreshReport, error) {
	f.sweeps++
	return &service.RefreshReport{}, nil
}

func newTestQueue() (*Queue, *fakeDispatcher, *fakeReconcile, *fakeCredentials) {
	d, r, c := &fakeDispatcher{}, &fakeReconcile{}, &fakeCredentials{}
	return NewQueue(d, r, c, clock{}, slog.New(slog.NewTextHandler(io.Discard, nil))), d, r, c
}

func TestHandleDispatchTask(t *testing.T) {
	q, d, _, _ := newTestQueue()
	ctx := context.Background()

	task, err := NewDispatchTask(nil, time.Minute)
	require.NoError(t, err)
	require.NoError(t, q.HandleDispatchTask(ctx, task))

	pinned := time.Date(2026, 2, 17, 1, 35, 0, 0, time.UTC)
	task, err = NewDispatchTask(&pinned, time.Minute)
	require.NoError(t, err)
	require.NoError(t, q.HandleDispatchTask(ctx, task))

	require.Len(t, d.runs, 2)
	assert.True(t, fixedNow.Equal(d.runs[0]))
	assert.True(t, pinned.Equal(d.runs[1]))
}

func TestHandleDispatchTaskDoesNotRetry(t *testing.T) {
	q, d, _, _ := newTestQueue()
	d.err = errors.New("database is locked")

	task, err := NewDispatchTask(nil, time.Minute)
	require.NoError(t, err)
	err = q.HandleDispatchTask(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = q.HandleDispatchTask(context.Background(), asynq.NewTask(TaskTypeDispatch, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Len(t, d.runs, 1)
}

func TestHandleMaintenanceTasks(t *testing.T) {
	q, _, r, c := newTestQueue()
	ctx := context.Background()

	require.NoError(t, q.HandleOverdueTask(ctx, asynq.NewTask(TaskTypeReconcileOverdue, nil)))
	require.NoError(t, q.HandleOrphansTask(ctx, asynq.NewTask(TaskTypeReconcileOrphans, nil)))
	require.NoError(t, q.HandleRefreshTask(ctx, asynq.NewTask(TaskTypeCredentialsRefresh, nil)))

	assert.Equal(t, 1, r.overdue)
	assert.Equal(t, 1, r.orphans)
	assert.Equal(t, 1, c.sweeps)
}

func TestRegisterPeriodic(t *testing.T) {
	mr := miniredis.RunT(t)
	s := asynq.NewScheduler(asynq.RedisClientOpt{Addr: mr.Addr()}, &asynq.SchedulerOpts{Location: time.UTC})

	err := RegisterPeriodic(s, Specs{Dispatch: "@every 1m", Reconcile: "@every 15m"}, time.Minute)
	require.NoError(t, err)

	err = RegisterPeriodic(s, Specs{Dispatch: "every minute"}, time.Minute)
	assert.ErrorContains(t, err, TaskTypeDispatch)
}

func TestMuxRoutesPipelineTasks(t *testing.T) {
	q, d, r, c := newTestQueue()
	mux := q.Mux()
	ctx := context.Background()

	for _, typ := range []string{TaskTypeDispatch, TaskTypeReconcileOverdue, TaskTypeReconcileOrphans, TaskTypeCredentialsRefresh} {
		require.NoError(t, mux.ProcessTask(ctx, asynq.NewTask(typ, nil)), typ)
	}
	assert.Len(t, d.runs, 1)
	assert.Equal(t, 1, r.overdue)
	assert.Equal(t, 1, r.orphans)
	assert.Equal(t, 1, c.sweeps)
}
