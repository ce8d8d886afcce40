package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/maheshrc27/brandcast/internal/models"
	"github.com/maheshrc27/brandcast/internal/service"
	"github.com/maheshrc27/brandcast/internal/transfer"
)

type PostHandler struct {
	s      service.PostService
	logger *slog.Logger
}

func NewPostHandler(service service.PostService, logger *slog.Logger) *PostHandler {
	return &PostHandler{s: service, logger: logger}
}

// ownPost loads a post of the caller; posts of other users look missing.
func (h *PostHandler) ownPost(c *fiber.Ctx) (*models.Post, error) {
	post, err := h.s.GetPost(c.Context(), c.Params("id"))
	if err != nil {
		return nil, err
	}
	if post.UserID != GetUserID(c) {
		return nil, service.ErrPostNotFound
	}
	return post, nil
}

func (h *PostHandler) GetPost(c *fiber.Ctx) error {
	post, err := h.ownPost(c)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(post)
}

func (h *PostHandler) SchedulePost(c *fiber.Ctx) error {
	var req transfer.ScheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse body",
		})
	}
	if _, err := h.ownPost(c); err != nil {
		return errorJSON(c, err)
	}

	post, err := h.s.SchedulePost(c.Context(), c.Params("id"), req.ScheduledAt.UTC())
	if err != nil {
		return errorJSON(c, err)
	}
	h.logger.Info("post scheduled", "post_id", post.ID, "scheduled_at", post.ScheduledAt)
	return c.JSON(post)
}

func (h *PostHandler) ScheduleCalendarItem(c *fiber.Ctx) error {
	var req transfer.ExpandRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse body",
		})
	}
	req.UserID = GetUserID(c)

	group, posts, err := h.s.ExpandCalendarItem(c.Context(), c.Params("id"), &req)
	if err != nil {
		return errorJSON(c, err)
	}
	h.logger.Info("calendar item scheduled", "calendar_item_id", c.Params("id"),
		"post_group_id", group.ID, "posts", len(posts))
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"group": group,
		"posts": posts,
	})
}
