package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/brandcast/internal/models"
	"github.com/maheshrc27/brandcast/internal/platform"
)

func setupGroup(t *testing.T, e *testEnv) {
	t.Helper()
	e.seedAccount(t, "li-1", models.PlatformLinkedIn, launchAt.Add(24*time.Hour))
	e.seedAccount(t, "tw-1", models.PlatformTwitter, launchAt.Add(24*time.Hour))
	e.seedGroup(t, "g1")
	e.seedItem(t, "item-3", models.CalendarItemScheduled, "g1")
	e.seedScheduled(t, "p-li", models.PlatformLinkedIn, "li-1", "g1", launchAt)
	e.seedScheduled(t, "p-tw", models.PlatformTwitter, "tw-1", "g1", launchAt)
}

func TestRollupWaitsForEveryPost(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t, testDispatchConfig())
	setupGroup(t, e)

	require.NoError(t, e.posts.MarkPublished(ctx, "p-li", launchAt, &platform.RemoteRef{ID: "li"}))
	res, err := e.rollup.Rollup(ctx, "g1")
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, models.CalendarItemScheduled, res.Status)

	require.NoError(t, e.posts.MarkFailed(ctx, "p-tw", models.FailureRejected, "too long"))
	res, err = e.rollup.Rollup(ctx, "g1")
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, models.CalendarItemScheduled, e.item(t, "item-3").Status)
}

func TestRollupIsMonotonic(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t, testDispatchConfig())
	setupGroup(t, e)
	_, err := e.db.ExecContext(ctx, `UPDATE content_calendars SET status = 'SCHEDULED'`)
	require.NoError(t, err)

	require.NoError(t, e.posts.MarkPublished(ctx, "p-li", launchAt, &platform.RemoteRef{ID: "li"}))
	require.NoError(t, e.posts.MarkPublished(ctx, "p-tw", launchAt, &platform.RemoteRef{ID: "tw"}))

	res, err := e.rollup.Rollup(ctx, "g1")
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.True(t, res.CalendarCompleted)
	assert.Equal(t, models.CalendarItemPublished, e.item(t, "item-3").Status)

	// a post forced back out of PUBLISHED never pulls the item back
	_, err = e.db.ExecContext(ctx, `UPDATE posts SET status = 'FAILED', published_at = NULL WHERE id = 'p-tw'`)
	require.NoError(t, err)
	res, err = e.rollup.Rollup(ctx, "g1")
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, models.CalendarItemPublished, e.item(t, "item-3").Status)

	// repeated rollups of a finished group are no-ops
	_, err = e.db.ExecContext(ctx, `UPDATE posts SET status = 'PUBLISHED', published_at = updated_at WHERE id = 'p-tw'`)
	require.NoError(t, err)
	res, err = e.rollup.Rollup(ctx, "g1")
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.False(t, res.CalendarCompleted)
}

func TestRollupLeavesCalendarOpenWhileItemsRemain(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t, testDispatchConfig())
	setupGroup(t, e)
	e.seedItem(t, "item-4", models.CalendarItemEdited, "")
	_, err := e.db.ExecContext(ctx, `UPDATE content_calendars SET status = 'SCHEDULED'`)
	require.NoError(t, err)

	require.NoError(t, e.posts.MarkPublished(ctx, "p-li", launchAt, nil))
	require.NoError(t, e.posts.MarkPublished(ctx, "p-tw", launchAt, nil))
	res, err := e.rollup.Rollup(ctx, "g1")
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.False(t, res.CalendarCompleted)

	cal, err := e.calendarRepo.GetCalendar(ctx, nil, "cal-1")
	require.NoError(t, err)
	assert.Equal(t, models.CalendarStatusScheduled, cal.Status)
}

func TestRollupEmptyGroupChangesNothing(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t, testDispatchConfig())
	e.seedGroup(t, "g-empty")
	e.seedItem(t, "item-3", models.CalendarItemScheduled, "g-empty")

	res, err := e.rollup.Rollup(ctx, "g-empty")
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, models.CalendarItemScheduled, e.item(t, "item-3").Status)
}

func TestRollupStandaloneGroup(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t, testDispatchConfig())
	e.seedGroup(t, "g-solo")

	res, err := e.rollup.Rollup(ctx, "g-solo")
	require.NoError(t, err)
	assert.Nil(t, res)

	res, err = e.rollup.Rollup(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, res)
}
