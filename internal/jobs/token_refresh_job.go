package job

import (
	"context"
	"log/slog"
	"time"

	"github.com/maheshrc27/brandcast/internal/service"
)

const refreshJobTimeout = 5 * time.Minute

type TokenRefreshJob struct {
	credentials service.CredentialService
	logger      *slog.Logger
	guard       guard
}

func NewTokenRefreshJob(credentials service.CredentialService, logger *slog.Logger) *TokenRefreshJob {
	return &TokenRefreshJob{credentials: credentials, logger: logger}
}

// RefreshTokens refreshes every connected account whose token runs out
// within the refresh window.
func (c *TokenRefreshJob) RefreshTokens() {
	if !c.guard.enter() {
		c.logger.Warn("token refresh still running, skipping tick")
		return
	}
	defer c.guard.leave()

	ctx, cancel := context.WithTimeout(context.Background(), refreshJobTimeout)
	defer cancel()

	report, err := c.credentials.RefreshExpiring(ctx)
	if err != nil {
		c.logger.Error("token refresh failed", "error", err)
		return
	}
	c.logger.Info("token refresh done",
		"scanned", report.Scanned,
		"refreshed", report.Refreshed,
		"disconnected", report.Disconnected,
		"failed", report.Failed)
}
