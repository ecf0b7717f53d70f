package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/Izza86/automated-video-platform-sub000/app/models"
	"gorm.io/gorm"
)

// Service converges the local ledger with provider truth. All durable
// subscription and payment mutations flow through ProcessEvent; user-facing
// actions (checkout, cancel, resume) never write subscription state directly.
type Service struct {
	repo Repository
}

// NewService creates a billing service from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// Repo exposes the underlying repository for read paths that share it.
func (s *Service) Repo() Repository {
	return s.repo
}

// ProcessEvent dispatches one signature-verified provider event. Handlers are
// individually idempotent; delivery is at-least-once, possibly duplicated and
// out of order. A nil return means the event is settled (processed or safely
// ignored); an error means processing genuinely failed and the provider
// should redeliver.
func (s *Service) ProcessEvent(ctx context.Context, evt ProviderEvent) error {
	switch evt.Type {
	case EventCheckoutCompleted:
		return s.handleCheckoutCompleted(ctx, evt)
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		return s.handleSubscriptionEvent(ctx, evt)
	case EventSubscriptionDeleted:
		return s.handleSubscriptionDeleted(ctx, evt)
	case EventInvoicePaymentSucceeded:
		return s.handleInvoiceEvent(ctx, evt, true)
	case EventInvoicePaymentFailed:
		return s.handleInvoiceEvent(ctx, evt, false)
	default:
		log.Printf("[Billing] ignoring unhandled event type=%s id=%s", evt.Type, evt.ID)
		return nil
	}
}

// handleCheckoutCompleted is a signal/log point only. The authoritative
// subscription state arrives via the subscription-created event; writing the
// ledger here would race against it.
func (s *Service) handleCheckoutCompleted(_ context.Context, evt ProviderEvent) error {
	var session CheckoutSession
	if err := json.Unmarshal(evt.Payload, &session); err != nil {
		log.Printf("[Billing] event=%s id=%s: undecodable checkout session: %v", evt.Type, evt.ID, err)
		return nil
	}
	log.Printf("[Billing] checkout completed session=%s customer=%s subscription=%s user=%s plan=%s",
		session.ID, session.Customer, session.Subscription,
		session.Metadata[MetadataUserIDKey], session.Metadata[MetadataPlanIDKey])
	return nil
}

func (s *Service) handleSubscriptionEvent(_ context.Context, evt ProviderEvent) error {
	var sub SubscriptionEvent
	if err := json.Unmarshal(evt.Payload, &sub); err != nil {
		log.Printf("[Billing] event=%s id=%s: undecodable subscription payload: %v", evt.Type, evt.ID, err)
		return nil
	}
	if strings.TrimSpace(sub.ID) == "" {
		log.Printf("[Billing] event=%s id=%s: subscription payload missing id", evt.Type, evt.ID)
		return nil
	}

	// Attribution: without the user reference the event cannot be applied.
	userID, ok := parseUserID(sub.Metadata)
	if !ok {
		log.Printf("[Billing] event=%s sub=%s: missing %s metadata, dropping", evt.Type, sub.ID, MetadataUserIDKey)
		return nil
	}

	priceID := sub.FirstPriceID()
	if priceID == "" {
		log.Printf("[Billing] event=%s sub=%s: no price on subscription items, dropping", evt.Type, sub.ID)
		return nil
	}
	plan, err := s.repo.GetPlanByStripePriceID(priceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Operational/configuration error: the price is not mapped locally.
			log.Printf("[Billing] event=%s sub=%s: no plan for price %q, dropping", evt.Type, sub.ID, priceID)
			return nil
		}
		return fmt.Errorf("resolve plan for price %q: %w", priceID, err)
	}

	status := NormalizeStatus(sub.Status)
	if !ValidSubscriptionStatus(status) {
		log.Printf("[Billing] event=%s sub=%s: unknown status %q, dropping", evt.Type, sub.ID, sub.Status)
		return nil
	}

	existing, err := s.repo.GetSubscriptionByStripeID(sub.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("lookup subscription %s: %w", sub.ID, err)
	}
	if existing != nil && !evt.Created.IsZero() && evt.Created.Before(existing.UpdatedAt) {
		// Delivery order is not guaranteed; a stale duplicate must not
		// regress state already written from a newer event.
		log.Printf("[Billing] event=%s sub=%s: stale event (%s < %s), skipping",
			evt.Type, sub.ID, evt.Created.Format(time.RFC3339), existing.UpdatedAt.Format(time.RFC3339))
		return nil
	}

	row := &models.Subscription{
		UserID:               userID,
		PlanID:               plan.ID,
		StripeSubscriptionID: strings.TrimSpace(sub.ID),
		Status:               status,
		CurrentPeriodStart:   sub.PeriodStart(),
		CurrentPeriodEnd:     sub.PeriodEnd(),
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
	}
	if sub.CanceledAt > 0 {
		row.CanceledAt = unixPtr(sub.CanceledAt)
	}
	if sub.TrialStart > 0 {
		row.TrialStart = unixPtr(sub.TrialStart)
	}
	if sub.TrialEnd > 0 {
		row.TrialEnd = unixPtr(sub.TrialEnd)
	}
	if err := s.repo.UpsertSubscription(row); err != nil {
		return fmt.Errorf("upsert subscription %s: %w", sub.ID, err)
	}
	log.Printf("[Billing] event=%s sub=%s user=%d plan=%s status=%s synced", evt.Type, sub.ID, userID, plan.Slug, status)
	return nil
}

func (s *Service) handleSubscriptionDeleted(_ context.Context, evt ProviderEvent) error {
	var sub SubscriptionEvent
	if err := json.Unmarshal(evt.Payload, &sub); err != nil {
		log.Printf("[Billing] event=%s id=%s: undecodable subscription payload: %v", evt.Type, evt.ID, err)
		return nil
	}
	if strings.TrimSpace(sub.ID) == "" {
		log.Printf("[Billing] event=%s id=%s: subscription payload missing id", evt.Type, evt.ID)
		return nil
	}

	canceledAt := time.Now().UTC()
	if sub.CanceledAt > 0 {
		canceledAt = *unixPtr(sub.CanceledAt)
	}
	changed, err := s.repo.MarkSubscriptionCanceled(sub.ID, canceledAt)
	if err != nil {
		return fmt.Errorf("cancel subscription %s: %w", sub.ID, err)
	}
	if !changed {
		// Unknown locally or already canceled; deletion events for unknown
		// subscriptions must not fail the webhook.
		log.Printf("[Billing] event=%s sub=%s: nothing to cancel", evt.Type, sub.ID)
		return nil
	}
	log.Printf("[Billing] event=%s sub=%s canceled", evt.Type, sub.ID)
	return nil
}

func (s *Service) handleInvoiceEvent(_ context.Context, evt ProviderEvent, succeeded bool) error {
	var inv Invoice
	if err := json.Unmarshal(evt.Payload, &inv); err != nil {
		log.Printf("[Billing] event=%s id=%s: undecodable invoice payload: %v", evt.Type, evt.ID, err)
		return nil
	}

	subID := inv.SubscriptionID()
	if subID == "" {
		log.Printf("[Billing] event=%s invoice=%s: no subscription reference, dropping", evt.Type, inv.ID)
		return nil
	}

	local, err := s.repo.GetSubscriptionByStripeID(subID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Invoice events can arrive before subscription-created in rare
			// races; an orphaned payment row is low-value, so drop it.
			log.Printf("[Billing] event=%s invoice=%s: subscription %s not found locally, dropping", evt.Type, inv.ID, subID)
			return nil
		}
		return fmt.Errorf("lookup subscription %s: %w", subID, err)
	}

	// Prefer the invoice metadata; fall back to the user the ledger already
	// attributes this subscription to, so legitimate payments are not lost
	// when the provider omits the metadata.
	userID, ok := parseUserID(inv.SubscriptionMetadata())
	if !ok {
		userID = local.UserID
	}

	intentRef := strings.TrimSpace(inv.PaymentIntent)
	if intentRef == "" {
		intentRef = "invoice:" + strings.TrimSpace(inv.ID)
	}

	payment := &models.Payment{
		UserID:                userID,
		SubscriptionID:        &local.ID,
		StripePaymentIntentID: intentRef,
		Currency:              strings.ToLower(strings.TrimSpace(inv.Currency)),
	}
	if payment.Currency == "" {
		payment.Currency = "usd"
	}

	if succeeded {
		payment.Status = models.PaymentStatusSucceeded
		payment.AmountCents = inv.AmountPaid
		created, err := s.repo.CreatePaymentIfNotExists(payment)
		if err != nil {
			return fmt.Errorf("record payment for invoice %s: %w", inv.ID, err)
		}
		if !created {
			log.Printf("[Billing] event=%s invoice=%s: payment %s already recorded", evt.Type, inv.ID, intentRef)
		}
		return nil
	}

	payment.Status = models.PaymentStatusFailed
	payment.AmountCents = inv.AmountDue
	if err := s.repo.CreateFailedPaymentAndMarkPastDue(payment, subID); err != nil {
		return fmt.Errorf("record failed payment for invoice %s: %w", inv.ID, err)
	}
	log.Printf("[Billing] event=%s invoice=%s sub=%s: payment failed, subscription past_due", evt.Type, inv.ID, subID)
	return nil
}

// RecordWebhookEvent journals a verified event for idempotent processing.
// Returns whether the event is new, or, for a replay, whether the previous
// attempt already finished without error.
func (s *Service) RecordWebhookEvent(_ context.Context, evt ProviderEvent) (fresh bool, settled bool, stored *models.WebhookEvent, err error) {
	row := &models.WebhookEvent{
		StripeEventID: strings.TrimSpace(evt.ID),
		EventType:     strings.TrimSpace(evt.Type),
		PayloadJSON:   string(evt.Payload),
	}
	created, stored, err := s.repo.CreateWebhookEventIfNotExists(row)
	if err != nil {
		return false, false, nil, err
	}
	settled = !created && stored.ProcessedAt != nil && stored.ProcessingError == ""
	return created, settled, stored, nil
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(_ context.Context, webhookEventID uint, processingErr error) error {
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(webhookEventID, errMsg)
}

func parseUserID(metadata map[string]string) (uint, bool) {
	raw := strings.TrimSpace(metadata[MetadataUserIDKey])
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
