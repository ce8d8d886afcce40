// Command dispatch runs the dispatcher once and prints the run summary, for
// hosts that trigger publishing from an external scheduler.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"

	config "github.com/maheshrc27/brandcast/configs"
	"github.com/maheshrc27/brandcast/internal/app"
)

func main() {
	reconcile := flag.Bool("reconcile", false, "also publish overdue posts and repair orphaned calendar items")
	flag.Parse()

	cfg := config.MustLoad()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	ctx, cancel := context.WithTimeout(context.Background(), app.RunTimeout(cfg.Scheduler))
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	code := run(ctx, a, *reconcile, logger)
	a.Close()
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, a *app.App, reconcile bool, logger *slog.Logger) int {
	now := a.Clock.Now()
	out := json.NewEncoder(os.Stdout)
	code := 0

	summary, err := a.Dispatcher.RunOnce(ctx, now)
	if err != nil {
		logger.Error("dispatch run failed", "error", err)
		code = 1
	}
	if summary != nil {
		_ = out.Encode(summary)
	}
	if !reconcile {
		return code
	}

	if _, err := a.Reconcile.PublishOverdue(ctx, a.Clock.Now()); err != nil {
		logger.Error("publish overdue failed", "error", err)
		code = 1
	}
	report, err := a.Reconcile.RepairOrphans(ctx, a.Clock.Now())
	if err != nil {
		logger.Error("orphan repair failed", "error", err)
		return 1
	}
	_ = out.Encode(report)
	return code
}
