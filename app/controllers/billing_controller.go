package controllers

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/Izza86/automated-video-platform-sub000/app/models"
	"github.com/Izza86/automated-video-platform-sub000/internal/pkg/billing"
	"github.com/Izza86/automated-video-platform-sub000/internal/pkg/database"
	"github.com/Izza86/automated-video-platform-sub000/internal/pkg/env"
	"github.com/Izza86/automated-video-platform-sub000/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
	"github.com/stripe/stripe-go/v82/webhook"
	"gorm.io/gorm"
)

// newStripeClient is swapped in tests to avoid network calls.
var newStripeClient = billing.NewClientFromEnv

// HandleStripeWebhook is the single entry point through which provider events
// mutate the ledger. The signature is verified against the exact raw bytes
// before anything is parsed; without a valid signature nothing is trusted and
// nothing is written.
func HandleStripeWebhook(c *fiber.Ctx) error {
	payload := append([]byte(nil), c.BodyRaw()...)

	secret := strings.TrimSpace(env.GetEnv("STRIPE_WEBHOOK_SECRET", ""))
	if secret == "" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "webhook secret not configured"})
	}

	sigHeader := strings.TrimSpace(c.Get("Stripe-Signature"))
	if sigHeader == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing Stripe signature"})
	}

	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid Stripe signature"})
	}

	svc := billing.NewServiceFromDB(database.GetDB())
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	evt := billing.ProviderEvent{
		ID:      event.ID,
		Type:    string(event.Type),
		Created: time.Unix(event.Created, 0).UTC(),
		Payload: event.Data.Raw,
	}

	fresh, settled, stored, err := svc.RecordWebhookEvent(ctx, evt)
	if err != nil {
		log.Printf("[Billing] event=%s id=%s: journal write failed: %v", evt.Type, evt.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if !fresh && settled {
		// Redelivery of an event that already processed cleanly.
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "duplicate": true})
	}

	procErr := svc.ProcessEvent(ctx, evt)
	_ = svc.MarkWebhookProcessed(ctx, stored.ID, procErr)
	if procErr != nil {
		// Surface the failure so the provider redelivers; that retry loop is
		// the only recovery mechanism there is.
		log.Printf("[Billing] event=%s id=%s: processing failed: %v", evt.Type, evt.ID, procErr)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "processing failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true})
}

// HandleCreateCheckout creates an upstream checkout session for the selected
// plan and returns the hosted checkout URL. The only local write is the
// one-time provider-customer linkage; the subscription itself lands later via
// the webhook.
func HandleCreateCheckout(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "login required"})
	}

	var req struct {
		PriceID string `json:"priceId"`
		PlanID  uint   `json:"planId"`
	}
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.PriceID) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "priceId is required"})
	}

	repo := billing.NewRepository(database.GetDB())
	plan, err := repo.GetPlanByStripePriceID(strings.TrimSpace(req.PriceID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "unknown priceId"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to resolve plan"})
	}

	user, err := repo.GetUserByID(userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load user"})
	}

	client := newStripeClient()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	customerID, err := client.EnsureCustomer(ctx, repo, user)
	if err != nil {
		log.Printf("[Billing] checkout user=%d: customer setup failed: %v", user.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Checkout could not be started"})
	}

	url, err := client.NewCheckoutSession(ctx, customerID, plan.StripePriceID, user.ID, plan.ID)
	if err != nil {
		log.Printf("[Billing] checkout user=%d plan=%s: session creation failed: %v", user.ID, plan.Slug, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Checkout could not be started"})
	}

	return c.JSON(fiber.Map{"url": url})
}

// HandleSubscriptionStatus returns the caller's current ledger state: null
// when no subscription exists, otherwise the subscription, its plan and the
// current period's usage. The read may lag true provider state until the next
// webhook lands.
func HandleSubscriptionStatus(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "login required"})
	}

	repo := billing.NewRepository(database.GetDB())
	sub, err := repo.GetLatestSubscriptionByUser(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(nil)
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load subscription"})
	}

	year, month := models.UsagePeriod(time.Now())
	used := 0
	if usage, err := repo.GetUsage(userCtx.UserID, year, month); err == nil {
		used = usage.Count
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load usage"})
	}

	return c.JSON(fiber.Map{
		"subscription": sub,
		"plan":         sub.Plan,
		"usage": fiber.Map{
			"used":  used,
			"limit": sub.Plan.VideoLimit,
			"year":  year,
			"month": month,
		},
	})
}

// HandleCancelSubscription flags the upstream subscription for cancellation
// at the period boundary. Fire-and-forget from the ledger's perspective: the
// durable record updates once the follow-up webhook is processed.
func HandleCancelSubscription(c *fiber.Ctx) error {
	return handleLifecycleAction(c, true)
}

// HandleResumeSubscription clears the cancel-at-period-end flag upstream.
func HandleResumeSubscription(c *fiber.Ctx) error {
	return handleLifecycleAction(c, false)
}

func handleLifecycleAction(c *fiber.Ctx, cancel bool) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "login required"})
	}

	var req struct {
		SubscriptionID string `json:"subscriptionId"`
	}
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.SubscriptionID) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "subscriptionId is required"})
	}

	repo := billing.NewRepository(database.GetDB())
	sub, err := repo.GetSubscriptionByStripeID(strings.TrimSpace(req.SubscriptionID))
	if err != nil || sub.UserID != userCtx.UserID {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Subscription not found"})
	}

	client := newStripeClient()
	ctx, timeoutCancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer timeoutCancel()

	updated, err := client.SetCancelAtPeriodEnd(ctx, sub.StripeSubscriptionID, cancel)
	if err != nil {
		log.Printf("[Billing] lifecycle user=%d sub=%s cancel=%t failed: %v", userCtx.UserID, sub.StripeSubscriptionID, cancel, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Subscription update failed"})
	}

	// Echo the provider's immediate response; the ledger catches up when the
	// subscription-updated event arrives.
	return c.JSON(fiber.Map{
		"success": true,
		"subscription": fiber.Map{
			"id":                updated.ID,
			"status":            string(updated.Status),
			"cancelAtPeriodEnd": updated.CancelAtPeriodEnd,
		},
	})
}
