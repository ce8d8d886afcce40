package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/brandcast/internal/models"
)

func TestRepairOrphans(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t, testDispatchConfig())
	e.seedAccount(t, "li-1", models.PlatformLinkedIn, launchAt.Add(24*time.Hour))

	e.seedGroup(t, "g-empty")
	e.seedItem(t, "item-empty", models.CalendarItemScheduled, "g-empty")
	e.seedItem(t, "item-nogroup", models.CalendarItemScheduled, "")
	e.seedGroup(t, "g-live")
	e.seedItem(t, "item-live", models.CalendarItemScheduled, "g-live")
	e.seedScheduled(t, "p1", models.PlatformLinkedIn, "li-1", "g-live", launchAt)
	e.seedItem(t, "item-edited", models.CalendarItemEdited, "")

	report, err := e.reconcile.RepairOrphans(ctx, launchAt)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Scanned)
	assert.ElementsMatch(t, []string{"item-empty", "item-nogroup"}, report.Repaired)
	assert.Equal(t, []string{"g-empty"}, report.DeletedGroups)

	for _, id := range []string{"item-empty", "item-nogroup"} {
		item := e.item(t, id)
		assert.Equal(t, models.CalendarItemEdited, item.Status)
		assert.Empty(t, item.PostGroupID)
	}
	group, err := e.groupRepo.GetByID(ctx, nil, "g-empty")
	require.NoError(t, err)
	assert.Nil(t, group)

	live := e.item(t, "item-live")
	assert.Equal(t, models.CalendarItemScheduled, live.Status)
	assert.Equal(t, "g-live", live.PostGroupID)

	report, err = e.reconcile.RepairOrphans(ctx, launchAt)
	require.NoError(t, err)
	assert.Zero(t, report.Scanned)
	assert.Empty(t, report.Repaired)
	assert.Empty(t, report.DeletedGroups)
}

func TestPublishOverdue(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t, testDispatchConfig(), succeeding(models.PlatformLinkedIn))
	e.seedAccount(t, "li-1", models.PlatformLinkedIn, launchAt.Add(24*time.Hour))
	e.seedScheduled(t, "p-late", models.PlatformLinkedIn, "li-1", "", launchAt.Add(-time.Hour))
	e.seedScheduled(t, "p-recent", models.PlatformLinkedIn, "li-1", "", launchAt.Add(-5*time.Minute))
	e.seedScheduled(t, "p-future", models.PlatformLinkedIn, "li-1", "", launchAt.Add(time.Hour))

	e.clock.Set(launchAt)
	report, err := e.reconcile.PublishOverdue(ctx, launchAt)
	require.NoError(t, err)
	require.Len(t, report.Overdue, 1)
	assert.Equal(t, "p-late", report.Overdue[0].PostID)
	assert.Equal(t, "1h0m0s", report.Overdue[0].LateBy)

	require.NotNil(t, report.Run)
	assert.Equal(t, 2, report.Run.SuccessCount)
	assert.Equal(t, models.PostStatusPublished, e.post(t, "p-late").Status)
	assert.Equal(t, models.PostStatusPublished, e.post(t, "p-recent").Status)
	assert.Equal(t, models.PostStatusScheduled, e.post(t, "p-future").Status)

	report, err = e.reconcile.PublishOverdue(ctx, launchAt)
	require.NoError(t, err)
	assert.Empty(t, report.Overdue)
	assert.Zero(t, report.Run.Processed)
}
