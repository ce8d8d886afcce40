package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/brandcast/internal/models"
	"github.com/maheshrc27/brandcast/internal/platform"
	"github.com/maheshrc27/brandcast/internal/transfer"
)

func rejected(p models.Platform, msg string) error {
	return &platform.PublishError{Kind: platform.Rejected, Platform: p, Message: msg}
}

func unavailable(p models.Platform) error {
	return &platform.PublishError{Kind: platform.Transient, Platform: p, StatusCode: 503, Message: "service unavailable"}
}

func TestRunOnceProductLaunch(t *testing.T) {
	ctx := context.Background()

	var twitterUp atomic.Bool
	twitter := &fakeAdapter{platform: models.PlatformTwitter,
		publish: func(ctx context.Context, req *platform.PublishRequest) (*platform.RemoteRef, error) {
			if !twitterUp.Load() {
				<-ctx.Done()
				return nil, ctx.Err()
			}
			return &platform.RemoteRef{ID: "1900", URL: "https://x.com/i/web/status/1900"}, nil
		}}
	linkedin := succeeding(models.PlatformLinkedIn)

	cfg := testDispatchConfig()
	cfg.AdapterTimeout = 20 * time.Millisecond
	e := newTestEnv(t, cfg, linkedin, twitter)
	e.seedAccount(t, "li-1", models.PlatformLinkedIn, launchAt.Add(24*time.Hour))
	e.seedAccount(t, "tw-1", models.PlatformTwitter, launchAt.Add(24*time.Hour))
	e.seedItem(t, "item-3", models.CalendarItemEdited, "")

	_, posts, err := e.posts.ExpandCalendarItem(ctx, "item-3", launchRequest(
		transfer.Target{Platform: "LINKEDIN", SocialAccountID: "li-1"},
		transfer.Target{Platform: "TWITTER", SocialAccountID: "tw-1"},
	))
	require.NoError(t, err)
	liPost, twPost := posts[0].ID, posts[1].ID

	runAt := time.Date(2026, 2, 17, 1, 40, 0, 0, time.UTC)
	e.clock.Set(runAt)
	summary, err := e.dispatcher.RunOnce(ctx, runAt)
	require.NoError(t, err)

	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.SuccessCount)
	assert.Equal(t, 1, summary.FailedCount)
	require.Len(t, summary.Results.Failed, 1)
	assert.Equal(t, twPost, summary.Results.Failed[0].PostID)
	assert.Equal(t, string(models.FailureTransient), summary.Results.Failed[0].Kind)
	assert.False(t, summary.Results.Failed[0].Rescheduled)

	li := e.post(t, liPost)
	assert.Equal(t, models.PostStatusPublished, li.Status)
	require.NotNil(t, li.PublishedAt)
	assert.True(t, runAt.Equal(*li.PublishedAt))
	assert.Equal(t, "LINKEDIN-"+liPost, li.RemoteID)

	tw := e.post(t, twPost)
	assert.Equal(t, models.PostStatusFailed, tw.Status)
	assert.Equal(t, models.FailureTransient, tw.FailureKind)
	assert.Nil(t, tw.PublishedAt)

	assert.Equal(t, models.CalendarItemScheduled, e.item(t, "item-3").Status)
	failed := e.notificationsOf(t, models.NotificationPostFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, twPost, failed[0].Metadata.PostID)
	assert.Equal(t, models.PlatformTwitter, failed[0].Metadata.Platform)
	assert.Len(t, e.notificationsOf(t, models.NotificationPostPublished), 1)

	// the owner retries the failed post once the platform recovers
	twitterUp.Store(true)
	e.clock.Set(runAt.Add(time.Minute))
	retryAt := runAt.Add(5 * time.Minute)
	_, err = e.posts.SchedulePost(ctx, twPost, retryAt)
	require.NoError(t, err)

	e.clock.Set(retryAt)
	summary, err = e.dispatcher.RunOnce(ctx, retryAt)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.SuccessCount)

	tw = e.post(t, twPost)
	assert.Equal(t, models.PostStatusPublished, tw.Status)
	assert.Equal(t, "https://x.com/i/web/status/1900", tw.RemoteURL)
	assert.Equal(t, int32(1), linkedin.calls.Load())

	assert.Equal(t, models.CalendarItemPublished, e.item(t, "item-3").Status)
	cal, err := e.calendarRepo.GetCalendar(ctx, nil, "cal-1")
	require.NoError(t, err)
	assert.Equal(t, models.CalendarStatusCompleted, cal.Status)

	history, err := e.historyRepo.ListByPostID(ctx, twPost)
	require.NoError(t, err)
	require.Len(t, history, 2)
	outcomes := []models.AttemptOutcome{history[0].Outcome, history[1].Outcome}
	assert.ElementsMatch(t, []models.AttemptOutcome{models.AttemptFailed, models.AttemptPublished}, outcomes)
}

func TestRunOnceIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t, testDispatchConfig(),
		succeeding(models.PlatformLinkedIn),
		failing(models.PlatformTwitter, rejected(models.PlatformTwitter, "duplicate content")),
		failing(models.PlatformFacebook, errors.New("unexpected payload")),
	)
	e.seedAccount(t, "li-1", models.PlatformLinkedIn, launchAt.Add(24*time.Hour))
	e.seedAccount(t, "tw-1", models.PlatformTwitter, launchAt.Add(24*time.Hour))
	e.seedAccount(t, "fb-1", models.PlatformFacebook, launchAt.Add(24*time.Hour))
	e.seedScheduled(t, "p-li", models.PlatformLinkedIn, "li-1", "", launchAt)
	e.seedScheduled(t, "p-tw", models.PlatformTwitter, "tw-1", "", launchAt)
	e.seedScheduled(t, "p-fb", models.PlatformFacebook, "fb-1", "", launchAt)
	e.seedScheduled(t, "p-later", models.PlatformLinkedIn, "li-1", "", launchAt.Add(time.Hour))

	e.clock.Set(launchAt)
	summary, err := e.dispatcher.RunOnce(ctx, launchAt)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 1, summary.SuccessCount)
	assert.Equal(t, 2, summary.FailedCount)

	assert.Equal(t, models.PostStatusPublished, e.post(t, "p-li").Status)
	assert.Equal(t, models.FailureRejected, e.post(t, "p-tw").FailureKind)
	assert.Equal(t, models.FailureRejected, e.post(t, "p-fb").FailureKind)
	assert.Equal(t, models.PostStatusScheduled, e.post(t, "p-later").Status)
	assert.Len(t, e.notificationsOf(t, models.NotificationPostFailed), 2)

	// nothing left to do
	summary, err = e.dispatcher.RunOnce(ctx, launchAt)
	require.NoError(t, err)
	assert.Zero(t, summary.Processed)
	assert.Empty(t, summary.Results.Published)
	assert.Empty(t, summary.Results.Failed)
}

func TestOverlappingRunsPublishOnce(t *testing.T) {
	ctx := context.Background()
	gate := make(chan struct{})
	adapter := &fakeAdapter{platform: models.PlatformLinkedIn,
		publish: func(ctx context.Context, req *platform.PublishRequest) (*platform.RemoteRef, error) {
			<-gate
			return &platform.RemoteRef{ID: "urn:li:share:1"}, nil
		}}
	cfg := testDispatchConfig()
	cfg.AdapterTimeout = 5 * time.Second
	cfg.ClaimLease = time.Minute
	e := newTestEnv(t, cfg, adapter)
	e.seedAccount(t, "li-1", models.PlatformLinkedIn, launchAt.Add(24*time.Hour))
	e.seedScheduled(t, "p1", models.PlatformLinkedIn, "li-1", "", launchAt)
	e.clock.Set(launchAt)

	type result struct {
		summary *transfer.RunSummary
		err     error
	}
	first := make(chan result, 1)
	go func() {
		s, err := e.dispatcher.RunOnce(ctx, launchAt)
		first <- result{s, err}
	}()
	require.Eventually(t, func() bool { return adapter.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	second, err := e.dispatcher.RunOnce(ctx, launchAt)
	require.NoError(t, err)
	assert.Equal(t, 1, second.SkippedCount)
	assert.Zero(t, second.SuccessCount)

	close(gate)
	r := <-first
	require.NoError(t, r.err)
	assert.Equal(t, 1, r.summary.SuccessCount)
	assert.NotEqual(t, r.summary.RunID, second.RunID)

	assert.Equal(t, int32(1), adapter.calls.Load())
	assert.Equal(t, models.PostStatusPublished, e.post(t, "p1").Status)
	assert.Len(t, e.notificationsOf(t, models.NotificationPostPublished), 1)
}

func TestRunOnceRetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	cfg := testDispatchConfig()
	cfg.RetryMaxAttempts = 3
	cfg.RetryBackoff = time.Minute
	adapter := failing(models.PlatformTwitter, unavailable(models.PlatformTwitter))
	e := newTestEnv(t, cfg, adapter)
	e.seedAccount(t, "tw-1", models.PlatformTwitter, launchAt.Add(24*time.Hour))
	e.seedScheduled(t, "p1", models.PlatformTwitter, "tw-1", "", launchAt)

	runs := []struct {
		at          time.Time
		rescheduled bool
		next        time.Time
	}{
		{at: launchAt, rescheduled: true, next: launchAt.Add(time.Minute)},
		{at: launchAt.Add(time.Minute), rescheduled: true, next: launchAt.Add(3 * time.Minute)},
		{at: launchAt.Add(3 * time.Minute), rescheduled: false},
	}
	for i, r := range runs {
		e.clock.Set(r.at)
		summary, err := e.dispatcher.RunOnce(ctx, r.at)
		require.NoError(t, err)
		require.Len(t, summary.Results.Failed, 1, "run %d", i)
		assert.Equal(t, r.rescheduled, summary.Results.Failed[0].Rescheduled, "run %d", i)

		p := e.post(t, "p1")
		assert.Equal(t, i+1, p.Attempts)
		if r.rescheduled {
			assert.Equal(t, models.PostStatusScheduled, p.Status)
			assert.True(t, r.next.Equal(*p.ScheduledAt), "run %d scheduled at %s", i, p.ScheduledAt)
			assert.Empty(t, e.notificationsOf(t, models.NotificationPostFailed))
		} else {
			assert.Equal(t, models.PostStatusFailed, p.Status)
			assert.Len(t, e.notificationsOf(t, models.NotificationPostFailed), 1)
		}
	}
	assert.Equal(t, int32(3), adapter.calls.Load())
}

func TestRunOnceDoesNotRetryRejections(t *testing.T) {
	ctx := context.Background()
	cfg := testDispatchConfig()
	cfg.RetryMaxAttempts = 3
	cfg.RetryBackoff = time.Minute
	e := newTestEnv(t, cfg, failing(models.PlatformTwitter, rejected(models.PlatformTwitter, "too long")))
	e.seedAccount(t, "tw-1", models.PlatformTwitter, launchAt.Add(24*time.Hour))
	e.seedScheduled(t, "p1", models.PlatformTwitter, "tw-1", "", launchAt)

	e.clock.Set(launchAt)
	_, err := e.dispatcher.RunOnce(ctx, launchAt)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusFailed, e.post(t, "p1").Status)
	assert.Len(t, e.notificationsOf(t, models.NotificationPostFailed), 1)
}

func TestUnauthorizedDisconnectsAccount(t *testing.T) {
	ctx := context.Background()
	adapter := failing(models.PlatformLinkedIn,
		&platform.PublishError{Kind: platform.Unauthorized, Platform: models.PlatformLinkedIn, StatusCode: 401, Message: "revoked"})
	e := newTestEnv(t, testDispatchConfig(), adapter)
	e.seedAccount(t, "li-1", models.PlatformLinkedIn, launchAt.Add(24*time.Hour))
	e.seedScheduled(t, "p1", models.PlatformLinkedIn, "li-1", "", launchAt)

	e.clock.Set(launchAt)
	_, err := e.dispatcher.RunOnce(ctx, launchAt)
	require.NoError(t, err)

	p := e.post(t, "p1")
	assert.Equal(t, models.PostStatusFailed, p.Status)
	assert.Equal(t, models.FailureReauthRequired, p.FailureKind)

	account, err := e.accountRepo.GetByID(ctx, "li-1")
	require.NoError(t, err)
	assert.False(t, account.IsConnected)
	disconnected := e.notificationsOf(t, models.NotificationAccountDisconnected)
	require.Len(t, disconnected, 1)
	assert.Equal(t, "li-1", disconnected[0].Metadata.AccountID)

	// later posts on the account fail without reaching the platform
	e.seedScheduled(t, "p2", models.PlatformLinkedIn, "li-1", "", launchAt.Add(time.Minute))
	e.clock.Set(launchAt.Add(time.Minute))
	_, err = e.dispatcher.RunOnce(ctx, launchAt.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, models.FailureReauthRequired, e.post(t, "p2").FailureKind)
	assert.Equal(t, int32(1), adapter.calls.Load())
	assert.Len(t, e.notificationsOf(t, models.NotificationAccountDisconnected), 1)
}

func TestValidationRunsBeforeCredentialRefresh(t *testing.T) {
	ctx := context.Background()
	adapter := &fakeAdapter{platform: models.PlatformInstagram,
		validate: func(req *platform.PublishRequest) error {
			return rejected(models.PlatformInstagram, "instagram posts need media")
		}}
	e := newTestEnv(t, testDispatchConfig(), adapter)
	refresher := &fakeRefresher{expires: launchAt.Add(time.Hour)}
	e.refreshers[models.PlatformInstagram] = refresher
	e.seedAccount(t, "ig-1", models.PlatformInstagram, launchAt.Add(-time.Hour))
	e.seedScheduled(t, "p1", models.PlatformInstagram, "ig-1", "", launchAt)

	e.clock.Set(launchAt)
	summary, err := e.dispatcher.RunOnce(ctx, launchAt)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FailedCount)
	assert.Equal(t, models.FailureRejected, e.post(t, "p1").FailureKind)
	assert.Zero(t, refresher.calls.Load())
	assert.Zero(t, adapter.calls.Load())
}

func TestRunOnceMissingAdapterRejects(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t, testDispatchConfig())
	e.seedAccount(t, "yt-1", models.PlatformYouTube, launchAt.Add(24*time.Hour))
	e.seedScheduled(t, "p1", models.PlatformYouTube, "yt-1", "", launchAt)

	e.clock.Set(launchAt)
	_, err := e.dispatcher.RunOnce(ctx, launchAt)
	require.NoError(t, err)
	assert.Equal(t, models.FailureRejected, e.post(t, "p1").FailureKind)
}

func TestRunDeadlineLeavesUnstartedPosts(t *testing.T) {
	ctx := context.Background()
	adapter := &fakeAdapter{platform: models.PlatformLinkedIn,
		publish: func(ctx context.Context, req *platform.PublishRequest) (*platform.RemoteRef, error) {
			time.Sleep(100 * time.Millisecond)
			return &platform.RemoteRef{ID: req.PostID}, nil
		}}
	cfg := testDispatchConfig()
	cfg.Workers = 1
	cfg.RunDeadline = 30 * time.Millisecond
	cfg.AdapterTimeout = time.Second
	e := newTestEnv(t, cfg, adapter)
	e.seedAccount(t, "li-1", models.PlatformLinkedIn, launchAt.Add(24*time.Hour))
	for _, id := range []string{"p1", "p2", "p3"} {
		e.seedScheduled(t, id, models.PlatformLinkedIn, "li-1", "", launchAt)
	}

	e.clock.Set(launchAt)
	summary, err := e.dispatcher.RunOnce(ctx, launchAt)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 2, summary.SuccessCount)

	left := e.post(t, "p3")
	assert.Equal(t, models.PostStatusScheduled, left.Status)
	assert.Zero(t, left.Attempts)
}

func TestRunOnceStoreFailure(t *testing.T) {
	e := newTestEnv(t, testDispatchConfig(), succeeding(models.PlatformLinkedIn))
	require.NoError(t, e.db.Close())

	summary, err := e.dispatcher.RunOnce(context.Background(), launchAt)
	assert.Error(t, err)
	assert.Nil(t, summary)
}

// markFailedDown fails the store write that records one post's failure.
type markFailedDown struct {
	PostService
	postID string
}

func (p *markFailedDown) MarkFailed(ctx context.Context, id string, kind models.FailureKind, reason string) error {
	if id == p.postID {
		return errors.New("database is locked")
	}
	return p.PostService.MarkFailed(ctx, id, kind, reason)
}

func TestRunOnceStoreFailureLetsStartedPostsFinish(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{})
	twitter := &fakeAdapter{platform: models.PlatformTwitter,
		publish: func(ctx context.Context, req *platform.PublishRequest) (*platform.RemoteRef, error) {
			close(started)
			select {
			case <-time.After(100 * time.Millisecond):
				return &platform.RemoteRef{ID: "1901"}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}}
	linkedin := &fakeAdapter{platform: models.PlatformLinkedIn,
		publish: func(ctx context.Context, req *platform.PublishRequest) (*platform.RemoteRef, error) {
			select {
			case <-started:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return nil, rejected(models.PlatformLinkedIn, "duplicate content")
		}}

	cfg := testDispatchConfig()
	cfg.AdapterTimeout = time.Second
	e := newTestEnv(t, cfg, linkedin, twitter)
	e.seedAccount(t, "li-1", models.PlatformLinkedIn, launchAt.Add(24*time.Hour))
	e.seedAccount(t, "tw-1", models.PlatformTwitter, launchAt.Add(24*time.Hour))
	e.seedScheduled(t, "p-li", models.PlatformLinkedIn, "li-1", "", launchAt)
	e.seedScheduled(t, "p-tw", models.PlatformTwitter, "tw-1", "", launchAt)

	dispatcher := NewDispatchService(&markFailedDown{PostService: e.posts, postID: "p-li"}, e.postRepo, e.mediaRepo,
		e.historyRepo, e.registry, e.credentials, e.rollup, e.notifier, e.clock, e.logger, cfg)

	runAt := launchAt.Add(time.Minute)
	e.clock.Set(runAt)
	summary, err := dispatcher.RunOnce(ctx, runAt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "p-li")
	require.NotNil(t, summary)
	assert.Equal(t, 2, summary.Processed)

	tw := e.post(t, "p-tw")
	assert.Equal(t, models.PostStatusPublished, tw.Status)
	assert.Equal(t, "1901", tw.RemoteID)
	assert.Empty(t, e.notificationsOf(t, models.NotificationPostFailed))

	// the claim lease hands the unrecorded post to a later run
	assert.Equal(t, models.PostStatusScheduled, e.post(t, "p-li").Status)
}

func TestRunOnceStoresValidFailureReason(t *testing.T) {
	ctx := context.Background()
	broken := "plateforme indisponible \xc3"
	e := newTestEnv(t, testDispatchConfig(), failing(models.PlatformLinkedIn, rejected(models.PlatformLinkedIn, broken)))
	e.seedAccount(t, "li-1", models.PlatformLinkedIn, launchAt.Add(24*time.Hour))
	e.seedScheduled(t, "p-li", models.PlatformLinkedIn, "li-1", "", launchAt)

	e.clock.Set(launchAt)
	summary, err := e.dispatcher.RunOnce(ctx, launchAt)
	require.NoError(t, err)
	require.Len(t, summary.Results.Failed, 1)

	p := e.post(t, "p-li")
	assert.Equal(t, models.PostStatusFailed, p.Status)
	assert.True(t, utf8.ValidString(p.FailureReason))
	assert.Contains(t, p.FailureReason, "plateforme indisponible")
	assert.True(t, utf8.ValidString(summary.Results.Failed[0].Error))
}
