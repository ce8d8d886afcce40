package api

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/maheshrc27/brandcast/internal/api/handlers"
	"github.com/maheshrc27/brandcast/internal/api/middleware"
)

type Handlers struct {
	Cron          *handlers.CronHandler
	Posts         *handlers.PostHandler
	Notifications *handlers.NotificationHandler
}

func NewApp(auth *middleware.AuthMiddleware, h Handlers, logger *slog.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2 * time.Minute,
		BodyLimit:    1 * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if fe, ok := err.(*fiber.Error); ok {
				code = fe.Code
			}
			if code >= fiber.StatusInternalServerError {
				logger.Error("request failed", "path", c.Path(), "error", err)
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		MaxAge:       3600,
	}))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	cron := api.Group("/cron", auth.CronAuth())
	cron.Get("/dispatch", h.Cron.Dispatch)
	cron.Post("/dispatch", h.Cron.Dispatch)

	ops := api.Group("/ops", auth.OperatorAuth())
	ops.Post("/publish-overdue", h.Cron.PublishOverdue)
	ops.Post("/repair-orphans", h.Cron.RepairOrphans)

	user := auth.UserAuth()
	api.Get("/posts/:id", user, h.Posts.GetPost)
	api.Post("/posts/:id/schedule", user, h.Posts.SchedulePost)
	api.Post("/calendar-items/:id/schedule", user, h.Posts.ScheduleCalendarItem)
	api.Get("/notifications", user, h.Notifications.List)
	api.Post("/notifications/:id/read", user, h.Notifications.MarkRead)

	return app
}
