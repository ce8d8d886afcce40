package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/robfig/cron"

	config "github.com/maheshrc27/brandcast/configs"
	"github.com/maheshrc27/brandcast/internal/api"
	"github.com/maheshrc27/brandcast/internal/api/handlers"
	"github.com/maheshrc27/brandcast/internal/api/middleware"
	"github.com/maheshrc27/brandcast/internal/app"
	job "github.com/maheshrc27/brandcast/internal/jobs"
	"github.com/maheshrc27/brandcast/internal/queue"
)

func main() {
	cfg := config.MustLoad()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}

	auth := middleware.NewAuthMiddleware(cfg.Server.JWTSecret, cfg.Server.CronSecret, logger)
	server := api.NewApp(auth, api.Handlers{
		Cron:          handlers.NewCronHandler(a.Dispatcher, a.Reconcile, a.Clock, logger),
		Posts:         handlers.NewPostHandler(a.Posts, logger),
		Notifications: handlers.NewNotificationHandler(a.Notifications),
	}, logger)

	var stops []func()
	s := cfg.Scheduler
	specs := job.Specs{Dispatch: s.DispatchSpec, Reconcile: s.ReconcileSpec, Refresh: s.RefreshSpec}

	switch s.Trigger {
	case config.TriggerCron:
		c := cron.New()
		pipeline := job.NewPipelineJob(a.Dispatcher, a.Reconcile, a.Clock, logger, app.RunTimeout(s))
		refresh := job.NewTokenRefreshJob(a.Credentials, logger)
		if err := job.Schedule(c, specs, pipeline, refresh); err != nil {
			fatal(logger, a, "failed to schedule jobs", err)
		}
		c.Start()
		stops = append(stops, c.Stop)
		logger.Info("cron trigger started", "dispatch", s.DispatchSpec)

	case config.TriggerAsynq:
		stop, err := startAsynq(cfg, a, logger, queue.Specs(specs))
		if err != nil {
			fatal(logger, a, "failed to start asynq", err)
		}
		stops = append(stops, stop)

	default:
		logger.Info("http trigger only, waiting for /api/cron/dispatch")
	}

	go func() {
		if err := server.Listen(":" + cfg.Server.Port); err != nil {
			fatal(logger, a, "failed to start server", err)
		}
	}()
	logger.Info("server is running", "port", cfg.Server.Port, "trigger", s.Trigger)

	gracefulShutdown(server, a, stops, cfg.Server.ShutdownTimeout, logger)
}

func startAsynq(cfg config.Config, a *app.App, logger *slog.Logger, specs queue.Specs) (func(), error) {
	redisConn := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	unique := app.RunTimeout(cfg.Scheduler)

	scheduler := asynq.NewScheduler(redisConn, &asynq.SchedulerOpts{Location: time.UTC})
	if err := queue.RegisterPeriodic(scheduler, specs, unique); err != nil {
		return nil, err
	}

	q := queue.NewQueue(a.Dispatcher, a.Reconcile, a.Credentials, a.Clock, logger)
	worker := asynq.NewServer(redisConn, asynq.Config{
		Concurrency:     4,
		ShutdownTimeout: unique,
	})

	if err := scheduler.Start(); err != nil {
		return nil, err
	}
	if err := worker.Start(q.Mux()); err != nil {
		scheduler.Shutdown()
		return nil, err
	}

	// pick up anything that came due while no worker was running
	client := asynq.NewClient(redisConn)
	if err := queue.EnqueueDispatch(client, 0, unique); err != nil {
		logger.Warn("startup dispatch not enqueued", "error", err)
	}
	_ = client.Close()

	logger.Info("asynq trigger started", "dispatch", specs.Dispatch)
	return func() {
		scheduler.Shutdown()
		worker.Shutdown()
	}, nil
}

func fatal(logger *slog.Logger, a *app.App, msg string, err error) {
	logger.Error(msg, "error", err)
	closeApp(a)
	os.Exit(1)
}

func closeApp(a *app.App) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := a.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v\n", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(server *fiber.App, a *app.App, stops []func(), timeout time.Duration, logger *slog.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	logger.Info("shutting down server")

	if err := server.ShutdownWithTimeout(timeout); err != nil {
		logger.Error("failed to shut down server", "error", err)
	}
	for _, stop := range stops {
		stop()
	}

	closeApp(a)
	logger.Info("server shutdown complete")
}
