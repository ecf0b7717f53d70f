package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Izza86/automated-video-platform-sub000/app/models"
	"github.com/Izza86/automated-video-platform-sub000/internal/pkg/database"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// shared in-memory DB lives as long as one connection stays open
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	return db
}

func seedUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	user := &models.User{
		Name:     "testuser",
		Email:    fmt.Sprintf("%s@example.com", t.Name()),
		Password: "irrelevant-hash",
		Role:     models.ROLE_USER,
		Status:   models.STATUS_ACTIVE,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func seedPlans(t *testing.T, db *gorm.DB) (free, pro, business *models.Plan) {
	t.Helper()
	freeLimit := 3
	proLimit := 100
	free = &models.Plan{Name: "Free", Slug: models.PlanSlugFree, Interval: models.PlanIntervalMonth, Currency: "usd", VideoLimit: &freeLimit, IsActive: true}
	pro = &models.Plan{Name: "Pro Monthly", Slug: "pro-monthly", StripePriceID: "price_pro_monthly", PriceCents: 1900, Currency: "usd", Interval: models.PlanIntervalMonth, VideoLimit: &proLimit, IsActive: true}
	business = &models.Plan{Name: "Business", Slug: "business", StripePriceID: "price_business", PriceCents: 4900, Currency: "usd", Interval: models.PlanIntervalMonth, IsActive: true}
	require.NoError(t, db.Create(free).Error)
	require.NoError(t, db.Create(pro).Error)
	require.NoError(t, db.Create(business).Error)
	return free, pro, business
}

type subEventOpts struct {
	subID      string
	userID     uint
	priceID    string
	status     string
	cancelAtPE bool
	canceledAt int64
	trialStart int64
	trialEnd   int64
}

func subscriptionPayload(t *testing.T, opts subEventOpts) []byte {
	t.Helper()
	now := time.Now()
	payload := map[string]interface{}{
		"id":                   opts.subID,
		"customer":             "cus_test",
		"status":               opts.status,
		"cancel_at_period_end": opts.cancelAtPE,
		"canceled_at":          opts.canceledAt,
		"current_period_start": now.Unix(),
		"current_period_end":   now.Add(30 * 24 * time.Hour).Unix(),
		"trial_start":          opts.trialStart,
		"trial_end":            opts.trialEnd,
		"items": map[string]interface{}{
			"data": []map[string]interface{}{
				{"price": map[string]interface{}{"id": opts.priceID}},
			},
		},
		"metadata": map[string]string{},
	}
	if opts.userID > 0 {
		payload["metadata"] = map[string]string{"user_id": fmt.Sprintf("%d", opts.userID)}
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return raw
}

func invoicePayload(t *testing.T, invoiceID, subID, paymentIntent string, amount int64, metadata map[string]string) []byte {
	t.Helper()
	payload := map[string]interface{}{
		"id":             invoiceID,
		"customer":       "cus_test",
		"subscription":   subID,
		"payment_intent": paymentIntent,
		"amount_paid":    amount,
		"amount_due":     amount,
		"currency":       "usd",
	}
	if metadata != nil {
		payload["subscription_details"] = map[string]interface{}{"metadata": metadata}
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return raw
}

func event(id, eventType string, created time.Time, payload []byte) ProviderEvent {
	return ProviderEvent{ID: id, Type: eventType, Created: created, Payload: payload}
}

func TestProcessSubscriptionCreated_NewSubscriber(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db)
	_, pro, _ := seedPlans(t, db)
	svc := NewServiceFromDB(db)

	trialEnd := time.Now().Add(14 * 24 * time.Hour).Unix()
	payload := subscriptionPayload(t, subEventOpts{
		subID:      "sub_new",
		userID:     user.ID,
		priceID:    pro.StripePriceID,
		status:     "trialing",
		trialStart: time.Now().Unix(),
		trialEnd:   trialEnd,
	})

	err := svc.ProcessEvent(context.Background(), event("evt_1", EventSubscriptionCreated, time.Now(), payload))
	require.NoError(t, err)

	sub, err := svc.Repo().GetSubscriptionByStripeID("sub_new")
	require.NoError(t, err)
	assert.Equal(t, user.ID, sub.UserID)
	assert.Equal(t, pro.ID, sub.PlanID)
	assert.Equal(t, models.SubscriptionStatusTrialing, sub.Status)
	require.NotNil(t, sub.CurrentPeriodEnd)
	require.NotNil(t, sub.TrialEnd)
	assert.Equal(t, trialEnd, sub.TrialEnd.Unix())
	assert.False(t, sub.CancelAtPeriodEnd)
}

func TestProcessSubscriptionEvent_ReplayKeepsSingleRow(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db)
	_, pro, _ := seedPlans(t, db)
	svc := NewServiceFromDB(db)

	payload := subscriptionPayload(t, subEventOpts{subID: "sub_replay", userID: user.ID, priceID: pro.StripePriceID, status: "active"})
	evt := event("evt_replay", EventSubscriptionCreated, time.Now(), payload)

	require.NoError(t, svc.ProcessEvent(context.Background(), evt))
	require.NoError(t, svc.ProcessEvent(context.Background(), evt))

	var count int64
	require.NoError(t, db.Model(&models.Subscription{}).Where("stripe_subscription_id = ?", "sub_replay").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestProcessSubscriptionEvent_StaleEventSkipped(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db)
	_, pro, _ := seedPlans(t, db)
	svc := NewServiceFromDB(db)

	fresh := subscriptionPayload(t, subEventOpts{subID: "sub_order", userID: user.ID, priceID: pro.StripePriceID, status: "active"})
	require.NoError(t, svc.ProcessEvent(context.Background(), event("evt_fresh", EventSubscriptionCreated, time.Now(), fresh)))

	// an hour-old update must not regress the newer state
	stale := subscriptionPayload(t, subEventOpts{subID: "sub_order", userID: user.ID, priceID: pro.StripePriceID, status: "past_due"})
	require.NoError(t, svc.ProcessEvent(context.Background(), event("evt_stale", EventSubscriptionUpdated, time.Now().Add(-time.Hour), stale)))

	sub, err := svc.Repo().GetSubscriptionByStripeID("sub_order")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
}

func TestProcessSubscriptionUpdated_CancelAtPeriodEnd(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db)
	_, pro, _ := seedPlans(t, db)
	svc := NewServiceFromDB(db)

	created := subscriptionPayload(t, subEventOpts{subID: "sub_cape", userID: user.ID, priceID: pro.StripePriceID, status: "active"})
	require.NoError(t, svc.ProcessEvent(context.Background(), event("evt_c1", EventSubscriptionCreated, time.Now(), created)))

	updated := subscriptionPayload(t, subEventOpts{subID: "sub_cape", userID: user.ID, priceID: pro.StripePriceID, status: "active", cancelAtPE: true})
	require.NoError(t, svc.ProcessEvent(context.Background(), event("evt_c2", EventSubscriptionUpdated, time.Now().Add(time.Hour), updated)))

	sub, err := svc.Repo().GetSubscriptionByStripeID("sub_cape")
	require.NoError(t, err)
	assert.True(t, sub.CancelAtPeriodEnd)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
}

func TestProcessSubscriptionDeleted_Converges(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db)
	_, pro, _ := seedPlans(t, db)
	svc := NewServiceFromDB(db)

	created := subscriptionPayload(t, subEventOpts{subID: "sub_del", userID: user.ID, priceID: pro.StripePriceID, status: "active"})
	require.NoError(t, svc.ProcessEvent(context.Background(), event("evt_d1", EventSubscriptionCreated, time.Now(), created)))

	canceledAt := time.Now().Unix()
	deleted := subscriptionPayload(t, subEventOpts{subID: "sub_del", userID: user.ID, priceID: pro.StripePriceID, status: "canceled", canceledAt: canceledAt})

	require.NoError(t, svc.ProcessEvent(context.Background(), event("evt_d2", EventSubscriptionDeleted, time.Now().Add(time.Hour), deleted)))

	sub, err := svc.Repo().GetSubscriptionByStripeID("sub_del")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusCanceled, sub.Status)
	require.NotNil(t, sub.CanceledAt)

	// replaying the deletion is a no-op, not an error
	require.NoError(t, svc.ProcessEvent(context.Background(), event("evt_d3", EventSubscriptionDeleted, time.Now().Add(2*time.Hour), deleted)))

	sub2, err := svc.Repo().GetSubscriptionByStripeID("sub_del")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusCanceled, sub2.Status)
}

func TestProcessSubscriptionDeleted_UnknownSubscription(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db)
	seedPlans(t, db)
	svc := NewServiceFromDB(db)

	deleted := subscriptionPayload(t, subEventOpts{subID: "sub_ghost", userID: 1, priceID: "price_pro_monthly", status: "canceled"})
	require.NoError(t, svc.ProcessEvent(context.Background(), event("evt_ghost", EventSubscriptionDeleted, time.Now(), deleted)))

	var count int64
	require.NoError(t, db.Model(&models.Subscription{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestProcessSubscriptionEvent_MissingUserMetadataDropped(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db)
	seedPlans(t, db)
	svc := NewServiceFromDB(db)

	payload := subscriptionPayload(t, subEventOpts{subID: "sub_anon", priceID: "price_pro_monthly", status: "active"})
	require.NoError(t, svc.ProcessEvent(context.Background(), event("evt_anon", EventSubscriptionCreated, time.Now(), payload)))

	var count int64
	require.NoError(t, db.Model(&models.Subscription{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestProcessSubscriptionEvent_UnknownPriceDropped(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db)
	seedPlans(t, db)
	svc := NewServiceFromDB(db)

	payload := subscriptionPayload(t, subEventOpts{subID: "sub_badprice", userID: user.ID, priceID: "price_unmapped", status: "active"})
	require.NoError(t, svc.ProcessEvent(context.Background(), event("evt_badprice", EventSubscriptionCreated, time.Now(), payload)))

	var count int64
	require.NoError(t, db.Model(&models.Subscription{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestProcessSubscriptionEvent_UnknownStatusDropped(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db)
	seedPlans(t, db)
	svc := NewServiceFromDB(db)

	payload := subscriptionPayload(t, subEventOpts{subID: "sub_badstatus", userID: user.ID, priceID: "price_pro_monthly", status: "hyperdrive"})
	require.NoError(t, svc.ProcessEvent(context.Background(), event("evt_badstatus", EventSubscriptionCreated, time.Now(), payload)))

	var count int64
	require.NoError(t, db.Model(&models.Subscription{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestProcessInvoicePaymentSucceeded_Idempotent(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db)
	_, pro, _ := seedPlans(t, db)
	svc := NewServiceFromDB(db)

	created := subscriptionPayload(t, subEventOpts{subID: "sub_pay", userID: user.ID, priceID: pro.StripePriceID, status: "active"})
	require.NoError(t, svc.ProcessEvent(context.Background(), event("evt_p0", EventSubscriptionCreated, time.Now(), created)))

	inv := invoicePayload(t, "in_1", "sub_pay", "pi_1", 1900, map[string]string{"user_id": fmt.Sprintf("%d", user.ID)})
	evt := event("evt_p1", EventInvoicePaymentSucceeded, time.Now(), inv)

	require.NoError(t, svc.ProcessEvent(context.Background(), evt))
	require.NoError(t, svc.ProcessEvent(context.Background(), evt))

	var payments []models.Payment
	require.NoError(t, db.Where("stripe_payment_intent_id = ?", "pi_1").Find(&payments).Error)
	require.Len(t, payments, 1)
	assert.Equal(t, user.ID, payments[0].UserID)
	assert.Equal(t, int64(1900), payments[0].AmountCents)
	assert.Equal(t, models.PaymentStatusSucceeded, payments[0].Status)
}

func TestProcessInvoicePaymentFailed_MarksPastDueAtomically(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db)
	_, pro, _ := seedPlans(t, db)
	svc := NewServiceFromDB(db)

	created := subscriptionPayload(t, subEventOpts{subID: "sub_fail", userID: user.ID, priceID: pro.StripePriceID, status: "active"})
	require.NoError(t, svc.ProcessEvent(context.Background(), event("evt_f0", EventSubscriptionCreated, time.Now(), created)))

	inv := invoicePayload(t, "in_fail", "sub_fail", "pi_fail", 1900, map[string]string{"user_id": fmt.Sprintf("%d", user.ID)})
	evt := event("evt_f1", EventInvoicePaymentFailed, time.Now(), inv)

	require.NoError(t, svc.ProcessEvent(context.Background(), evt))

	sub, err := svc.Repo().GetSubscriptionByStripeID("sub_fail")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusPastDue, sub.Status)

	var payments []models.Payment
	require.NoError(t, db.Where("stripe_payment_intent_id = ?", "pi_fail").Find(&payments).Error)
	require.Len(t, payments, 1)
	assert.Equal(t, models.PaymentStatusFailed, payments[0].Status)

	// replay records nothing new
	require.NoError(t, svc.ProcessEvent(context.Background(), evt))
	var count int64
	require.NoError(t, db.Model(&models.Payment{}).Where("stripe_payment_intent_id = ?", "pi_fail").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestProcessInvoice_MetadataFallbackToLocalAttribution(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db)
	_, pro, _ := seedPlans(t, db)
	svc := NewServiceFromDB(db)

	created := subscriptionPayload(t, subEventOpts{subID: "sub_fallback", userID: user.ID, priceID: pro.StripePriceID, status: "active"})
	require.NoError(t, svc.ProcessEvent(context.Background(), event("evt_m0", EventSubscriptionCreated, time.Now(), created)))

	// invoice without any metadata still attributes to the stored owner
	inv := invoicePayload(t, "in_nometa", "sub_fallback", "pi_nometa", 1900, nil)
	require.NoError(t, svc.ProcessEvent(context.Background(), event("evt_m1", EventInvoicePaymentSucceeded, time.Now(), inv)))

	var payment models.Payment
	require.NoError(t, db.Where("stripe_payment_intent_id = ?", "pi_nometa").First(&payment).Error)
	assert.Equal(t, user.ID, payment.UserID)
}

func TestProcessInvoice_UnknownSubscriptionDropped(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db)
	seedPlans(t, db)
	svc := NewServiceFromDB(db)

	inv := invoicePayload(t, "in_orphan", "sub_missing", "pi_orphan", 1900, nil)
	require.NoError(t, svc.ProcessEvent(context.Background(), event("evt_o1", EventInvoicePaymentSucceeded, time.Now(), inv)))

	var count int64
	require.NoError(t, db.Model(&models.Payment{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestProcessInvoice_MissingPaymentIntentUsesInvoiceRef(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db)
	_, pro, _ := seedPlans(t, db)
	svc := NewServiceFromDB(db)

	created := subscriptionPayload(t, subEventOpts{subID: "sub_nopi", userID: user.ID, priceID: pro.StripePriceID, status: "active"})
	require.NoError(t, svc.ProcessEvent(context.Background(), event("evt_n0", EventSubscriptionCreated, time.Now(), created)))

	inv := invoicePayload(t, "in_nopi", "sub_nopi", "", 1900, nil)
	require.NoError(t, svc.ProcessEvent(context.Background(), event("evt_n1", EventInvoicePaymentSucceeded, time.Now(), inv)))

	var payment models.Payment
	require.NoError(t, db.Where("stripe_payment_intent_id = ?", "invoice:in_nopi").First(&payment).Error)
	assert.Equal(t, models.PaymentStatusSucceeded, payment.Status)
}

func TestProcessEvent_UnhandledTypeIsNoOp(t *testing.T) {
	db := newTestDB(t)
	svc := NewServiceFromDB(db)

	err := svc.ProcessEvent(context.Background(), event("evt_x", "customer.created", time.Now(), []byte(`{}`)))
	require.NoError(t, err)
}

func TestRecordWebhookEvent_ReplaySemantics(t *testing.T) {
	db := newTestDB(t)
	svc := NewServiceFromDB(db)
	ctx := context.Background()

	evt := event("evt_journal", EventSubscriptionCreated, time.Now(), []byte(`{}`))

	fresh, settled, stored, err := svc.RecordWebhookEvent(ctx, evt)
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.False(t, settled)
	require.NotNil(t, stored)

	// replay before processing finished: not settled, gets reprocessed
	fresh, settled, _, err = svc.RecordWebhookEvent(ctx, evt)
	require.NoError(t, err)
	assert.False(t, fresh)
	assert.False(t, settled)

	// replay after a failed attempt: still not settled
	require.NoError(t, svc.MarkWebhookProcessed(ctx, stored.ID, fmt.Errorf("boom")))
	fresh, settled, _, err = svc.RecordWebhookEvent(ctx, evt)
	require.NoError(t, err)
	assert.False(t, fresh)
	assert.False(t, settled)

	// replay after a clean run: settled, ack as duplicate
	require.NoError(t, svc.MarkWebhookProcessed(ctx, stored.ID, nil))
	fresh, settled, _, err = svc.RecordWebhookEvent(ctx, evt)
	require.NoError(t, err)
	assert.False(t, fresh)
	assert.True(t, settled)
}

func TestFailedRenewalScenario(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db)
	_, pro, _ := seedPlans(t, db)
	svc := NewServiceFromDB(db)

	// subscriber in good standing
	created := subscriptionPayload(t, subEventOpts{subID: "sub_renew", userID: user.ID, priceID: pro.StripePriceID, status: "active"})
	require.NoError(t, svc.ProcessEvent(context.Background(), event("evt_r0", EventSubscriptionCreated, time.Now(), created)))

	// renewal charge fails
	inv := invoicePayload(t, "in_renew", "sub_renew", "pi_renew", 1900, map[string]string{"user_id": fmt.Sprintf("%d", user.ID)})
	require.NoError(t, svc.ProcessEvent(context.Background(), event("evt_r1", EventInvoicePaymentFailed, time.Now(), inv)))

	sub, err := svc.Repo().GetSubscriptionByStripeID("sub_renew")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusPastDue, sub.Status)

	// provider gives up and cancels
	deleted := subscriptionPayload(t, subEventOpts{subID: "sub_renew", userID: user.ID, priceID: pro.StripePriceID, status: "canceled", canceledAt: time.Now().Unix()})
	require.NoError(t, svc.ProcessEvent(context.Background(), event("evt_r2", EventSubscriptionDeleted, time.Now().Add(time.Hour), deleted)))

	sub, err = svc.Repo().GetSubscriptionByStripeID("sub_renew")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusCanceled, sub.Status)
}
