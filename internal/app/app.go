package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	config "github.com/maheshrc27/brandcast/configs"
	"github.com/maheshrc27/brandcast/internal/lock"
	"github.com/maheshrc27/brandcast/internal/models"
	"github.com/maheshrc27/brandcast/internal/platform"
	"github.com/maheshrc27/brandcast/internal/repository"
	"github.com/maheshrc27/brandcast/internal/service"
	"github.com/maheshrc27/brandcast/internal/storage"
	"github.com/maheshrc27/brandcast/pkg/utils"
)

// App holds the wired pipeline. Close releases the database and redis.
type App struct {
	DB    *sql.DB
	Redis *redis.Client
	Clock service.Clock

	Posts         service.PostService
	Notifications service.NotificationService
	Credentials   service.CredentialService
	Rollup        service.RollupService
	Dispatcher    service.Dispatcher
	Reconcile     service.ReconcileService
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	a := &App{DB: db, Clock: service.SystemClock{}}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	key, err := cfg.Credentials.Key()
	if err != nil {
		return nil, err
	}
	cipher, err := utils.NewTokenCipher(key)
	if err != nil {
		return nil, err
	}

	var locker lock.Locker = lock.NewLocal()
	if cfg.Redis.Enabled {
		a.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis is unreachable: %w", err)
		}
		locker = lock.NewRedis(a.Redis)
	}

	media, err := mediaSource(ctx, cfg.R2)
	if err != nil {
		return nil, err
	}

	postRepo := repository.NewPostRepository(db)
	mediaRepo := repository.NewPostMediaRepository(db)
	groupRepo := repository.NewPostGroupRepository(db)
	calendarRepo := repository.NewCalendarRepository(db)
	accountRepo := repository.NewSocialAccountRepository(db)
	brandRepo := repository.NewBrandAccountRepository(db)
	historyRepo := repository.NewPostingHistoryRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	s := cfg.Scheduler
	a.Notifications = service.NewNotificationService(notificationRepo, a.Clock)
	a.Credentials = service.NewCredentialService(accountRepo, cipher, Refreshers(cfg.Platforms), locker,
		a.Notifications, a.Clock, logger, service.CredentialConfig{
			Buffer:             cfg.Credentials.RefreshBuffer,
			RefreshWindow:      cfg.Credentials.RefreshWindow,
			RefreshConcurrency: cfg.Credentials.RefreshConcurrency,
		})
	a.Posts = service.NewPostService(db, postRepo, mediaRepo, groupRepo, calendarRepo, accountRepo, brandRepo, a.Clock)
	a.Rollup = service.NewRollupService(db, postRepo, calendarRepo, a.Clock, logger)
	a.Dispatcher = service.NewDispatchService(a.Posts, postRepo, mediaRepo, historyRepo,
		Adapters(cfg.Platforms, media), a.Credentials, a.Rollup, a.Notifications, a.Clock, logger,
		service.DispatchConfig{
			Workers:          s.Workers,
			RunDeadline:      s.RunDeadline,
			AdapterTimeout:   s.AdapterTimeout,
			ClaimLease:       s.ClaimLease,
			RetryMaxAttempts: s.RetryTransientMaxAttempts,
			RetryBackoff:     s.RetryTransientBackoff,
		})
	a.Reconcile = service.NewReconcileService(db, a.Posts, calendarRepo, groupRepo, a.Dispatcher, s.OverdueGrace, logger)

	ok = true
	return a, nil
}

// RunTimeout bounds one triggered run: the launch deadline plus the last
// adapter call it may have started.
func RunTimeout(s config.Scheduler) time.Duration {
	return s.RunDeadline + s.AdapterTimeout + 10*time.Second
}

func (a *App) Close() error {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	return a.DB.Close()
}

func mediaSource(ctx context.Context, r2 config.R2) (*storage.MediaSource, error) {
	if !r2.Enabled() {
		return storage.NewMediaSource(nil, "", nil, r2.MaxMediaBytes), nil
	}
	client, err := storage.NewR2Client(ctx, r2)
	if err != nil {
		return nil, err
	}
	return storage.NewMediaSource(client, r2.BucketName, nil, r2.MaxMediaBytes), nil
}

func oauthClient(a config.OAuthApp) platform.OAuthClient {
	return platform.OAuthClient{ClientID: a.ClientID, ClientSecret: a.ClientSecret}
}

func Refreshers(p config.Platforms) platform.Refreshers {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	return platform.Refreshers{
		models.PlatformLinkedIn:  platform.NewLinkedInRefresher(oauthClient(p.LinkedIn()), "", httpClient),
		models.PlatformTwitter:   platform.NewTwitterRefresher(oauthClient(p.Twitter()), "", httpClient),
		models.PlatformYouTube:   platform.NewGoogleRefresher(oauthClient(p.Google()), "", httpClient),
		models.PlatformTikTok:    platform.NewTikTokRefresher(oauthClient(p.TikTok()), "", httpClient),
		models.PlatformInstagram: platform.NewInstagramRefresher("", httpClient),
		models.PlatformFacebook:  platform.NewFacebookRefresher(oauthClient(p.Facebook()), "", httpClient),
	}
}

func Adapters(p config.Platforms, media platform.MediaFetcher) *platform.Registry {
	opts := []platform.Option{
		platform.WithRateLimit(p.RatePerSecond, p.RateBurst),
		platform.WithPolling(p.PollInterval, p.PollAttempts),
	}
	return platform.NewRegistry(
		platform.NewLinkedIn(media, opts...),
		platform.NewTwitter(media, opts...),
		platform.NewFacebook(opts...),
		platform.NewInstagram(opts...),
		platform.NewYouTube(media, opts...),
		platform.NewTikTok(opts...),
	)
}
