package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/maheshrc27/brandcast/internal/service"
)

type CronHandler struct {
	dispatcher service.Dispatcher
	reconcile  service.ReconcileService
	clock      service.Clock
	logger     *slog.Logger
}

func NewCronHandler(dispatcher service.Dispatcher, reconcile service.ReconcileService, clock service.Clock, logger *slog.Logger) *CronHandler {
	return &CronHandler{dispatcher: dispatcher, reconcile: reconcile, clock: clock, logger: logger}
}

// Dispatch runs the dispatcher once. A store failure answers 500 with the
// partial summary so the caller's alerting sees it.
func (h *CronHandler) Dispatch(c *fiber.Ctx) error {
	summary, err := h.dispatcher.RunOnce(c.Context(), h.clock.Now())
	if err != nil {
		h.logger.Error("triggered dispatch failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Dispatch run failed",
			"summary": summary,
		})
	}
	return c.JSON(summary)
}

func (h *CronHandler) PublishOverdue(c *fiber.Ctx) error {
	report, err := h.reconcile.PublishOverdue(c.Context(), h.clock.Now())
	if err != nil {
		h.logger.Error("publish overdue failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":  "Publish overdue failed",
			"report": report,
		})
	}
	return c.JSON(report)
}

func (h *CronHandler) RepairOrphans(c *fiber.Ctx) error {
	report, err := h.reconcile.RepairOrphans(c.Context(), h.clock.Now())
	if err != nil {
		h.logger.Error("orphan repair failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":  "Orphan repair failed",
			"report": report,
		})
	}
	return c.JSON(report)
}
