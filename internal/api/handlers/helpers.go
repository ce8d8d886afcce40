package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/maheshrc27/brandcast/internal/api/middleware"
	"github.com/maheshrc27/brandcast/internal/service"
)

func GetUserID(c *fiber.Ctx) string {
	userID, _ := c.Locals(middleware.LocalUserID).(string)
	return userID
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrPostNotFound),
		errors.Is(err, service.ErrCalendarItemNotFound),
		errors.Is(err, service.ErrNotificationNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrCalendarItemState):
		return fiber.StatusConflict
	case errors.Is(err, service.ErrInvalidSchedule),
		errors.Is(err, service.ErrInvalidPost),
		errors.Is(err, service.ErrDuplicateTarget),
		errors.Is(err, service.ErrCrossBrand),
		errors.Is(err, service.ErrAccountNotFound),
		errors.Is(err, service.ErrPageNotFound):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

func errorJSON(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	msg := err.Error()
	if status == fiber.StatusInternalServerError {
		msg = "Internal server error"
	}
	return c.Status(status).JSON(fiber.Map{
		"error": msg,
	})
}
