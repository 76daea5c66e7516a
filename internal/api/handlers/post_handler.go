package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime/multipart"

	"github.com/gofiber/fiber/v2"

	"github.com/crossposthq/crosspost-api/internal/publish"
	"github.com/crossposthq/crosspost-api/internal/service"
	"github.com/crossposthq/crosspost-api/internal/transfer"
)

type PostHandler struct {
	s service.PostService
}

func NewPostHandler(service service.PostService) *PostHandler {
	return &PostHandler{s: service}
}

func (h *PostHandler) CreatePost(c *fiber.Ctx) error {
	userID := GetUserID(c)

	content := c.FormValue("content")
	scheduledTime := c.FormValue("scheduled_time")
	platformsStr := c.FormValue("platforms")

	var platforms []string
	if platformsStr != "" {
		if err := json.Unmarshal([]byte(platformsStr), &platforms); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid platforms format",
			})
		}
	}

	var file *multipart.FileHeader
	if form, err := c.MultipartForm(); err == nil && form != nil {
		if files := form.File["media"]; len(files) > 0 {
			file = files[0]
		}
	}

	postID, err := h.s.SchedulePost(c.Context(), userID, &transfer.PostCreation{
		Content:       content,
		Platforms:     platforms,
		ScheduledTime: scheduledTime,
	}, file)
	if err != nil {
		var validationErr *publish.ValidationError
		if errors.As(err, &validationErr) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": validationErr.Reason,
			})
		}
		slog.Error(err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to schedule post",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"post_id": postID,
		"message": "Post scheduled successfully",
	})
}

func (h *PostHandler) ListPosts(c *fiber.Ctx) error {
	userID := GetUserID(c)
	postID := c.Query("id")

	if postID != "" {
		status, err := h.s.PostStatus(c.Context(), userID, postID)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Unable to get post status",
			})
		}

		return c.Status(fiber.StatusOK).JSON(status)
	}

	search := c.Query("search")
	limit := c.QueryInt("limit", 0)
	offset := c.QueryInt("offset", 0)

	posts, err := h.s.List(c.Context(), userID, search, limit, offset)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to list posts",
		})
	}

	return c.Status(fiber.StatusOK).JSON(posts)
}

func (h *PostHandler) CancelPost(c *fiber.Ctx) error {
	userID := GetUserID(c)
	postID := c.Query("id")

	err := h.s.CancelScheduled(c.Context(), userID, postID)
	if err != nil {
		var validationErr *publish.ValidationError
		if errors.As(err, &validationErr) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": validationErr.Reason,
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to cancel post",
		})
	}

	return c.SendStatus(fiber.StatusOK)
}
