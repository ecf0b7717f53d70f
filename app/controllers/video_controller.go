package controllers

import (
	"errors"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/Izza86/automated-video-platform-sub000/app/models"
	"github.com/Izza86/automated-video-platform-sub000/app/repository"
	"github.com/Izza86/automated-video-platform-sub000/internal/pkg/database"
	"github.com/Izza86/automated-video-platform-sub000/internal/pkg/entitlements"
	"github.com/Izza86/automated-video-platform-sub000/internal/pkg/metrics/counter"
	"github.com/Izza86/automated-video-platform-sub000/internal/pkg/usercontext"
)

const defaultVideoPageSize = 20

// HandleCreateVideo creates a video render record. This is the metered action:
// the entitlement check runs first and on denial nothing is written, the usage
// counter only moves after the record exists.
func HandleCreateVideo(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "login required"})
	}

	var req struct {
		Title        string  `json:"title"`
		TemplateSlug string  `json:"template"`
		OutputFormat string  `json:"outputFormat"`
		Resolution   string  `json:"resolution"`
		DurationSecs float64 `json:"durationSecs"`
	}
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Title) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "title is required"})
	}

	db := database.GetDB()
	decision, err := entitlements.Check(db, userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Entitlement check failed"})
	}
	if !decision.Allowed {
		return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
			"error":   "limit_reached",
			"message": "Monthly video limit reached. Upgrade your plan to continue.",
			"used":    decision.Used,
			"limit":   decision.Limit,
			"plan":    decision.PlanSlug,
		})
	}

	video := &models.Video{
		UserID:       userCtx.UserID,
		Title:        strings.TrimSpace(req.Title),
		TemplateSlug: strings.TrimSpace(req.TemplateSlug),
		OutputFormat: strings.TrimSpace(req.OutputFormat),
		Resolution:   strings.TrimSpace(req.Resolution),
		DurationSecs: req.DurationSecs,
		Status:       models.VideoStatusDraft,
	}
	if err := repository.GetGlobalRepositories().Video.Create(video); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to create video"})
	}

	if err := entitlements.Increment(db, userCtx.UserID); err != nil {
		// The record exists; a missed tick undercounts rather than blocking the user.
		log.Printf("[Video] usage increment failed for user %d: %v", userCtx.UserID, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"video": video})
}

// HandleListVideos returns the caller's videos, newest first.
func HandleListVideos(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "login required"})
	}

	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	limit := c.QueryInt("limit", defaultVideoPageSize)
	if limit < 1 || limit > 100 {
		limit = defaultVideoPageSize
	}
	offset := (page - 1) * limit

	videoRepo := repository.GetGlobalRepositories().Video
	videos, err := videoRepo.GetByUserID(userCtx.UserID, offset, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load videos"})
	}
	total, err := videoRepo.CountByUserID(userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load videos"})
	}

	return c.JSON(fiber.Map{
		"videos": videos,
		"page":   page,
		"limit":  limit,
		"total":  total,
	})
}

// HandleGetVideo returns a single video by its public UUID.
func HandleGetVideo(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "login required"})
	}

	video, err := repository.GetGlobalRepositories().Video.GetByUUID(c.Params("uuid"))
	if err != nil || video.UserID != userCtx.UserID {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Video not found"})
	}

	// view counts are batched through Redis and flushed periodically
	if err := counter.AddVideoView(video.ID); err != nil {
		log.Printf("[Video] view counter for video %d failed: %v", video.ID, err)
	}

	return c.JSON(fiber.Map{"video": video})
}

// HandleUpdateVideoStatus records render progress reported by the client.
// Status transitions are one-way: draft -> rendering -> ready|failed.
func HandleUpdateVideoStatus(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "login required"})
	}

	var req struct {
		Status   string `json:"status"`
		FileSize int64  `json:"fileSize"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid request body"})
	}

	next := strings.ToLower(strings.TrimSpace(req.Status))
	switch next {
	case models.VideoStatusRendering, models.VideoStatusReady, models.VideoStatusFailed:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid status"})
	}

	videoRepo := repository.GetGlobalRepositories().Video
	video, err := videoRepo.GetByUUID(c.Params("uuid"))
	if err != nil || video.UserID != userCtx.UserID {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Video not found"})
	}

	if !validVideoTransition(video.Status, next) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "message": "invalid status transition", "current": video.Status})
	}

	video.Status = next
	if next == models.VideoStatusReady && req.FileSize > 0 {
		video.FileSize = req.FileSize
	}
	if err := videoRepo.Update(video); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to update video"})
	}

	return c.JSON(fiber.Map{"video": video})
}

func validVideoTransition(current, next string) bool {
	switch current {
	case models.VideoStatusDraft:
		return next == models.VideoStatusRendering
	case models.VideoStatusRendering:
		return next == models.VideoStatusReady || next == models.VideoStatusFailed
	default:
		return false
	}
}

// HandleDeleteVideo soft-deletes one of the caller's videos. Usage is not
// refunded: the counter meters creations, not live records.
func HandleDeleteVideo(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "login required"})
	}

	videoRepo := repository.GetGlobalRepositories().Video
	video, err := videoRepo.GetByUUID(c.Params("uuid"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Video not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load video"})
	}
	if video.UserID != userCtx.UserID && !userCtx.IsAdmin {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Video not found"})
	}

	if err := videoRepo.Delete(video.ID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to delete video"})
	}

	return c.JSON(fiber.Map{"message": "Video deleted"})
}
