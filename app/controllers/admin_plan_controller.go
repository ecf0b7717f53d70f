package controllers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/Izza86/automated-video-platform-sub000/app/models"
	"github.com/Izza86/automated-video-platform-sub000/app/repository"
	"github.com/Izza86/automated-video-platform-sub000/internal/pkg/statistics"
)

// HandleAdminStats returns the cached platform counters.
func HandleAdminStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"stats": statistics.GetStatisticsData()})
}

// HandleListPlans returns the purchasable catalog. Public: the pricing page
// reads it without a session.
func HandleListPlans(c *fiber.Ctx) error {
	plans, err := repository.GetGlobalRepositories().Plan.GetActive()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load plans"})
	}
	return c.JSON(fiber.Map{"plans": plans})
}

// HandleAdminListPlans returns every plan including deactivated ones.
func HandleAdminListPlans(c *fiber.Ctx) error {
	plans, err := repository.GetGlobalRepositories().Plan.GetAll()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load plans"})
	}
	return c.JSON(fiber.Map{"plans": plans})
}

type planRequest struct {
	Name          string  `json:"name"`
	Slug          string  `json:"slug"`
	StripePriceID string  `json:"stripePriceId"`
	PriceCents    int64   `json:"priceCents"`
	Currency      string  `json:"currency"`
	Interval      string  `json:"interval"`
	VideoLimit    *int    `json:"videoLimit"`
	Features      *string `json:"features"`
}

// HandleAdminCreatePlan adds a plan to the catalog.
func HandleAdminCreatePlan(c *fiber.Ctx) error {
	var req planRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid request body"})
	}

	plan := &models.Plan{
		Name:          strings.TrimSpace(req.Name),
		Slug:          strings.TrimSpace(req.Slug),
		StripePriceID: strings.TrimSpace(req.StripePriceID),
		PriceCents:    req.PriceCents,
		Currency:      strings.ToLower(strings.TrimSpace(req.Currency)),
		Interval:      strings.TrimSpace(req.Interval),
		VideoLimit:    req.VideoLimit,
		IsActive:      true,
	}
	if plan.Currency == "" {
		plan.Currency = "usd"
	}
	if plan.Interval == "" {
		plan.Interval = models.PlanIntervalMonth
	}
	if req.Features != nil {
		plan.Features = models.JSON(*req.Features)
	}
	if err := plan.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}

	if err := repository.GetGlobalRepositories().Plan.Create(plan); err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "message": "Plan could not be created"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"plan": plan})
}

// HandleAdminUpdatePlan edits catalog fields. The slug is immutable because
// entitlement fallbacks key on it.
func HandleAdminUpdatePlan(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid plan id"})
	}

	planRepo := repository.GetGlobalRepositories().Plan
	plan, err := planRepo.GetByID(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Plan not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load plan"})
	}

	var req planRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid request body"})
	}

	if name := strings.TrimSpace(req.Name); name != "" {
		plan.Name = name
	}
	if priceID := strings.TrimSpace(req.StripePriceID); priceID != "" {
		plan.StripePriceID = priceID
	}
	if req.PriceCents > 0 {
		plan.PriceCents = req.PriceCents
	}
	if currency := strings.ToLower(strings.TrimSpace(req.Currency)); currency != "" {
		plan.Currency = currency
	}
	if interval := strings.TrimSpace(req.Interval); interval != "" {
		plan.Interval = interval
	}
	if req.VideoLimit != nil {
		plan.VideoLimit = req.VideoLimit
	}
	if req.Features != nil {
		plan.Features = models.JSON(*req.Features)
	}
	if err := plan.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}

	if err := planRepo.Update(plan); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Plan update failed"})
	}

	return c.JSON(fiber.Map{"plan": plan})
}

// HandleAdminDeactivatePlan retires the plan from sale. Existing subscriptions
// keep their entitlements until they lapse.
func HandleAdminDeactivatePlan(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid plan id"})
	}

	planRepo := repository.GetGlobalRepositories().Plan
	plan, err := planRepo.GetByID(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Plan not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load plan"})
	}

	if plan.Slug == models.PlanSlugFree {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "The free plan cannot be deactivated"})
	}

	if err := planRepo.Deactivate(plan.ID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Plan deactivation failed"})
	}

	return c.JSON(fiber.Map{"message": "Plan deactivated"})
}
