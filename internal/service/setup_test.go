package service

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/brandcast/internal/lock"
	"github.com/maheshrc27/brandcast/internal/models"
	"github.com/maheshrc27/brandcast/internal/platform"
	"github.com/maheshrc27/brandcast/internal/repository"
	"github.com/maheshrc27/brandcast/pkg/utils"
)

const (
	testBrand = "brand-1"
	testUser  = "user-1"
)

// launchAt is the slot of calendar item "Day 3 – Product Launch".
var launchAt = time.Date(2026, 2, 17, 1, 35, 0, 0, time.UTC)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}

type fakeAdapter struct {
	platform models.Platform
	shape    platform.CredentialShape
	validate func(req *platform.PublishRequest) error
	publish  func(ctx context.Context, req *platform.PublishRequest) (*platform.RemoteRef, error)

	calls atomic.Int32
	mu    sync.Mutex
	token string
}

func (f *fakeAdapter) Platform() models.Platform { return f.platform }

func (f *fakeAdapter) CredentialShape() platform.CredentialShape {
	if f.shape == "" {
		return platform.AccountCredential
	}
	return f.shape
}

func (f *fakeAdapter) Validate(req *platform.PublishRequest) error {
	if f.validate != nil {
		return f.validate(req)
	}
	return nil
}

func (f *fakeAdapter) Publish(ctx context.Context, req *platform.PublishRequest) (*platform.RemoteRef, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.token = req.Credential.AccessToken
	f.mu.Unlock()
	if f.publish != nil {
		return f.publish(ctx, req)
	}
	id := string(f.platform) + "-" + req.PostID
	return &platform.RemoteRef{ID: id, URL: "https://example.com/" + id}, nil
}

func (f *fakeAdapter) lastToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func succeeding(p models.Platform) *fakeAdapter {
	return &fakeAdapter{platform: p}
}

func failing(p models.Platform, err error) *fakeAdapter {
	return &fakeAdapter{platform: p, publish: func(ctx context.Context, req *platform.PublishRequest) (*platform.RemoteRef, error) {
		return nil, err
	}}
}

// hanging adapters block until the adapter timeout fires.
func hanging(p models.Platform) *fakeAdapter {
	return &fakeAdapter{platform: p, publish: func(ctx context.Context, req *platform.PublishRequest) (*platform.RemoteRef, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
}

type fakeRefresher struct {
	calls   atomic.Int32
	delay   time.Duration
	err     error
	expires time.Time
}

func (f *fakeRefresher) Refresh(ctx context.Context, g platform.Grant) (*platform.Token, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	exp := f.expires
	return &platform.Token{AccessToken: "refreshed-" + g.RefreshToken, RefreshToken: "rotated-" + g.RefreshToken, ExpiresAt: &exp}, nil
}

type fakePageRefresher struct {
	fakeRefresher
	pageCalls atomic.Int32
}

func (f *fakePageRefresher) RefreshPage(ctx context.Context, accountToken, pageExternalID string) (*platform.Token, error) {
	f.pageCalls.Add(1)
	return &platform.Token{AccessToken: "page-from-" + accountToken}, nil
}

type testEnv struct {
	db     *sql.DB
	clock  *fixedClock
	cipher *utils.TokenCipher
	logger *slog.Logger

	postRepo      repository.PostRepository
	mediaRepo     repository.PostMediaRepository
	groupRepo     repository.PostGroupRepository
	calendarRepo  repository.CalendarRepository
	accountRepo   repository.SocialAccountRepository
	brandRepo     repository.BrandAccountRepository
	historyRepo   repository.PostingHistoryRepository
	notifications repository.NotificationRepository

	refreshers platform.Refreshers
	registry   *platform.Registry

	posts       PostService
	rollup      RollupService
	notifier    NotificationService
	credentials CredentialService
	dispatcher  Dispatcher
	reconcile   ReconcileService
}

func testDispatchConfig() DispatchConfig {
	return DispatchConfig{
		Workers:        4,
		RunDeadline:    5 * time.Second,
		AdapterTimeout: 50 * time.Millisecond,
		ClaimLease:     time.Minute,
	}
}

func newTestEnv(t *testing.T, cfg DispatchConfig, adapters ...platform.Adapter) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := repository.Open(ctx, repository.DriverSQLite, filepath.Join(t.TempDir(), "brandcast.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cipher, err := utils.NewTokenCipher([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	e := &testEnv{
		db:            db,
		clock:         &fixedClock{now: launchAt.Add(-time.Hour)},
		cipher:        cipher,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		postRepo:      repository.NewPostRepository(db),
		mediaRepo:     repository.NewPostMediaRepository(db),
		groupRepo:     repository.NewPostGroupRepository(db),
		calendarRepo:  repository.NewCalendarRepository(db),
		accountRepo:   repository.NewSocialAccountRepository(db),
		brandRepo:     repository.NewBrandAccountRepository(db),
		historyRepo:   repository.NewPostingHistoryRepository(db),
		notifications: repository.NewNotificationRepository(db),
		refreshers:    platform.Refreshers{},
		registry:      platform.NewRegistry(adapters...),
	}

	e.posts = NewPostService(db, e.postRepo, e.mediaRepo, e.groupRepo, e.calendarRepo, e.accountRepo, e.brandRepo, e.clock)
	e.rollup = NewRollupService(db, e.postRepo, e.calendarRepo, e.clock, e.logger)
	e.notifier = NewNotificationService(e.notifications, e.clock)
	e.credentials = NewCredentialService(e.accountRepo, cipher, e.refreshers, lock.NewLocal(), e.notifier, e.clock, e.logger,
		CredentialConfig{Buffer: 5 * time.Minute, RefreshWindow: 30 * time.Minute, RefreshConcurrency: 10})
	e.dispatcher = NewDispatchService(e.posts, e.postRepo, e.mediaRepo, e.historyRepo, e.registry, e.credentials,
		e.rollup, e.notifier, e.clock, e.logger, cfg)
	e.reconcile = NewReconcileService(db, e.posts, e.calendarRepo, e.groupRepo, e.dispatcher, 10*time.Minute, e.logger)
	return e
}

func (e *testEnv) encrypt(t *testing.T, s string) string {
	t.Helper()
	enc, err := e.cipher.Encrypt(s)
	require.NoError(t, err)
	return enc
}

// seedAccount creates a connected account linked to testBrand whose token
// expires at expiresAt.
func (e *testEnv) seedAccount(t *testing.T, id string, p models.Platform, expiresAt time.Time) *models.SocialAccount {
	t.Helper()
	ctx := context.Background()
	now := e.clock.Now()
	sa := &models.SocialAccount{
		ID: id, UserID: testUser, Platform: p, ExternalID: "ext-" + id, AccountName: id,
		AccessToken: e.encrypt(t, "access-"+id), RefreshToken: e.encrypt(t, "refresh-"+id),
		TokenExpiresAt: &expiresAt, IsConnected: true, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, e.accountRepo.Create(ctx, nil, sa))
	require.NoError(t, e.brandRepo.Link(ctx, nil, &models.BrandSocialAccount{BrandID: testBrand, SocialAccountID: id, CreatedAt: now}))
	return sa
}

func (e *testEnv) seedPage(t *testing.T, id, accountID string, expiresAt *time.Time) *models.SocialAccountPage {
	t.Helper()
	now := e.clock.Now()
	page := &models.SocialAccountPage{
		ID: id, SocialAccountID: accountID, ExternalID: "ext-" + id, Name: id,
		AccessToken: e.encrypt(t, "page-"+id), TokenExpiresAt: expiresAt, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, e.accountRepo.CreatePage(context.Background(), nil, page))
	return page
}

func (e *testEnv) seedItem(t *testing.T, id string, status models.CalendarItemStatus, groupID string) *models.ContentCalendarItem {
	t.Helper()
	ctx := context.Background()
	now := e.clock.Now()

	cal, err := e.calendarRepo.GetCalendar(ctx, nil, "cal-1")
	require.NoError(t, err)
	if cal == nil {
		require.NoError(t, e.calendarRepo.CreateCalendar(ctx, nil, &models.ContentCalendar{
			ID: "cal-1", BrandID: testBrand, Name: "February launch", Status: models.CalendarStatusDraft,
			CreatedAt: now, UpdatedAt: now,
		}))
	}

	item := &models.ContentCalendarItem{
		ID: id, CalendarID: "cal-1", BrandID: testBrand, Day: 3, Topic: "Day 3 – Product Launch",
		SuggestedTime: "01:35", Status: status, PostGroupID: groupID, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, e.calendarRepo.CreateItem(ctx, nil, item))
	return item
}

func (e *testEnv) seedGroup(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, e.groupRepo.Create(context.Background(), nil, &models.PostGroup{
		ID: id, BrandID: testBrand, CreatedAt: e.clock.Now(),
	}))
}

// seedScheduled inserts a SCHEDULED post directly.
func (e *testEnv) seedScheduled(t *testing.T, id string, p models.Platform, accountID, groupID string, at time.Time) *models.Post {
	t.Helper()
	now := e.clock.Now()
	post := &models.Post{
		ID: id, BrandID: testBrand, UserID: testUser, PostGroupID: groupID, Platform: p,
		SocialAccountID: accountID, Content: "launch day", Status: models.PostStatusScheduled,
		ScheduledAt: &at, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, e.postRepo.Create(context.Background(), nil, post))
	return post
}

func (e *testEnv) post(t *testing.T, id string) *models.Post {
	t.Helper()
	p, err := e.postRepo.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p
}

func (e *testEnv) item(t *testing.T, id string) *models.ContentCalendarItem {
	t.Helper()
	item, err := e.calendarRepo.GetItem(context.Background(), nil, id)
	require.NoError(t, err)
	require.NotNil(t, item)
	return item
}

func (e *testEnv) notificationsOf(t *testing.T, typ models.NotificationType) []*models.Notification {
	t.Helper()
	all, err := e.notifications.ListByUserID(context.Background(), testUser, false, 100)
	require.NoError(t, err)
	var out []*models.Notification
	for _, n := range all {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}
