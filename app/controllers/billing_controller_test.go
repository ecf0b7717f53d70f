package controllers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
	"gorm.io/gorm"

	"github.com/Izza86/automated-video-platform-sub000/app/models"
	"github.com/Izza86/automated-video-platform-sub000/internal/pkg/constants"
	"github.com/Izza86/automated-video-platform-sub000/internal/pkg/database"
)

const testWebhookSecret = "whsec_test_secret"

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	return db
}

func newWebhookTestApp(t *testing.T, db *gorm.DB) *fiber.App {
	t.Helper()
	database.SetDB(db)
	app := fiber.New()
	app.Post(constants.StripeWebhookRoute, HandleStripeWebhook)
	return app
}

func seedBillingFixtures(t *testing.T, db *gorm.DB) (*models.User, *models.Plan) {
	t.Helper()
	user := &models.User{
		Name:     "webhookuser",
		Email:    fmt.Sprintf("%s@example.com", t.Name()),
		Password: "irrelevant-hash",
		Role:     models.ROLE_USER,
		Status:   models.STATUS_ACTIVE,
	}
	require.NoError(t, db.Create(user).Error)

	limit := 100
	plan := &models.Plan{
		Name:          "Pro Monthly",
		Slug:          "pro-monthly",
		StripePriceID: "price_pro_monthly",
		PriceCents:    1900,
		Currency:      "usd",
		Interval:      models.PlanIntervalMonth,
		VideoLimit:    &limit,
		IsActive:      true,
	}
	require.NoError(t, db.Create(plan).Error)
	return user, plan
}

// stripeEventEnvelope wraps an event object the way the provider delivers it.
func stripeEventEnvelope(t *testing.T, eventID, eventType string, object map[string]interface{}) []byte {
	t.Helper()
	envelope := map[string]interface{}{
		"id":      eventID,
		"object":  "event",
		"type":    eventType,
		"created": time.Now().Unix(),
		"data":    map[string]interface{}{"object": object},
	}
	raw, err := json.Marshal(envelope)
	require.NoError(t, err)
	return raw
}

func subscriptionObject(userID uint, subID, priceID, status string) map[string]interface{} {
	now := time.Now()
	return map[string]interface{}{
		"id":                   subID,
		"customer":             "cus_test",
		"status":               status,
		"current_period_start": now.Unix(),
		"current_period_end":   now.Add(30 * 24 * time.Hour).Unix(),
		"items": map[string]interface{}{
			"data": []map[string]interface{}{
				{"price": map[string]interface{}{"id": priceID}},
			},
		},
		"metadata": map[string]string{"user_id": fmt.Sprintf("%d", userID)},
	}
}

func postWebhook(t *testing.T, app *fiber.App, payload []byte, signature string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, constants.StripeWebhookRoute, strings.NewReader(string(payload)))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := map[string]interface{}{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &body))
	}
	return resp, body
}

func signPayload(t *testing.T, payload []byte, secret string) string {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	return signed.Header
}

func TestHandleStripeWebhook_SecretNotConfigured(t *testing.T) {
	t.Setenv("STRIPE_WEBHOOK_SECRET", "")
	app := newWebhookTestApp(t, newTestDB(t))

	resp, body := postWebhook(t, app, []byte(`{}`), "t=1,v1=deadbeef")
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, body["error"], "not configured")
}

func TestHandleStripeWebhook_MissingSignature(t *testing.T) {
	t.Setenv("STRIPE_WEBHOOK_SECRET", testWebhookSecret)
	db := newTestDB(t)
	user, plan := seedBillingFixtures(t, db)
	app := newWebhookTestApp(t, db)

	payload := stripeEventEnvelope(t, "evt_nosig", "customer.subscription.created",
		subscriptionObject(user.ID, "sub_nosig", plan.StripePriceID, "active"))

	resp, _ := postWebhook(t, app, payload, "")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	// rejected before anything reached the DB
	var count int64
	require.NoError(t, db.Model(&models.WebhookEvent{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
	require.NoError(t, db.Model(&models.Subscription{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestHandleStripeWebhook_InvalidSignature(t *testing.T) {
	t.Setenv("STRIPE_WEBHOOK_SECRET", testWebhookSecret)
	db := newTestDB(t)
	user, plan := seedBillingFixtures(t, db)
	app := newWebhookTestApp(t, db)

	payload := stripeEventEnvelope(t, "evt_badsig", "customer.subscription.created",
		subscriptionObject(user.ID, "sub_badsig", plan.StripePriceID, "active"))

	resp, _ := postWebhook(t, app, payload, signPayload(t, payload, "whsec_wrong_secret"))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var count int64
	require.NoError(t, db.Model(&models.WebhookEvent{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestHandleStripeWebhook_TamperedPayload(t *testing.T) {
	t.Setenv("STRIPE_WEBHOOK_SECRET", testWebhookSecret)
	db := newTestDB(t)
	user, plan := seedBillingFixtures(t, db)
	app := newWebhookTestApp(t, db)

	payload := stripeEventEnvelope(t, "evt_tamper", "customer.subscription.created",
		subscriptionObject(user.ID, "sub_tamper", plan.StripePriceID, "active"))
	signature := signPayload(t, payload, testWebhookSecret)

	// signature was minted over different bytes
	tampered := []byte(strings.Replace(string(payload), "active", "paused", 1))
	resp, _ := postWebhook(t, app, tampered, signature)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var count int64
	require.NoError(t, db.Model(&models.Subscription{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestHandleStripeWebhook_ProcessesEvent(t *testing.T) {
	t.Setenv("STRIPE_WEBHOOK_SECRET", testWebhookSecret)
	db := newTestDB(t)
	user, plan := seedBillingFixtures(t, db)
	app := newWebhookTestApp(t, db)

	payload := stripeEventEnvelope(t, "evt_ok", "customer.subscription.created",
		subscriptionObject(user.ID, "sub_ok", plan.StripePriceID, "active"))

	resp, body := postWebhook(t, app, payload, signPayload(t, payload, testWebhookSecret))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["received"])
	assert.Nil(t, body["duplicate"])

	var sub models.Subscription
	require.NoError(t, db.Where("stripe_subscription_id = ?", "sub_ok").First(&sub).Error)
	assert.Equal(t, user.ID, sub.UserID)
	assert.Equal(t, plan.ID, sub.PlanID)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)

	var journal models.WebhookEvent
	require.NoError(t, db.Where("stripe_event_id = ?", "evt_ok").First(&journal).Error)
	require.NotNil(t, journal.ProcessedAt)
	assert.Empty(t, journal.ProcessingError)
}

func TestHandleStripeWebhook_RedeliveryAcksAsDuplicate(t *testing.T) {
	t.Setenv("STRIPE_WEBHOOK_SECRET", testWebhookSecret)
	db := newTestDB(t)
	user, plan := seedBillingFixtures(t, db)
	app := newWebhookTestApp(t, db)

	payload := stripeEventEnvelope(t, "evt_redelivered", "customer.subscription.created",
		subscriptionObject(user.ID, "sub_redelivered", plan.StripePriceID, "active"))

	resp, body := postWebhook(t, app, payload, signPayload(t, payload, testWebhookSecret))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Nil(t, body["duplicate"])

	// each delivery is signed anew by the provider
	resp, body = postWebhook(t, app, payload, signPayload(t, payload, testWebhookSecret))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["received"])
	assert.Equal(t, true, body["duplicate"])

	var count int64
	require.NoError(t, db.Model(&models.Subscription{}).Where("stripe_subscription_id = ?", "sub_redelivered").Count(&count).Error)
	assert.Equal(t, int64(1), count)
	require.NoError(t, db.Model(&models.WebhookEvent{}).Where("stripe_event_id = ?", "evt_redelivered").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestHandleStripeWebhook_UnknownEventTypeAcked(t *testing.T) {
	t.Setenv("STRIPE_WEBHOOK_SECRET", testWebhookSecret)
	db := newTestDB(t)
	app := newWebhookTestApp(t, db)

	payload := stripeEventEnvelope(t, "evt_unknown", "customer.created", map[string]interface{}{"id": "cus_1"})

	resp, body := postWebhook(t, app, payload, signPayload(t, payload, testWebhookSecret))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["received"])
}
