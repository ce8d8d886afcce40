package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/maheshrc27/brandcast/internal/service"
)

type NotificationHandler struct {
	s service.NotificationService
}

func NewNotificationHandler(service service.NotificationService) *NotificationHandler {
	return &NotificationHandler{s: service}
}

func (h *NotificationHandler) List(c *fiber.Ctx) error {
	unread := c.QueryBool("unread", false)
	limit := c.QueryInt("limit", 0)

	list, err := h.s.List(c.Context(), GetUserID(c), unread, limit)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(list)
}

func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	if err := h.s.MarkRead(c.Context(), c.Params("id"), GetUserID(c)); err != nil {
		return errorJSON(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
