package billing

import (
	"strings"
	"time"
)

// Provider event types the reconciler recognizes. Anything else is logged and
// acknowledged as a forward-compatible no-op.
const (
	EventCheckoutCompleted       = "checkout.session.completed"
	EventSubscriptionCreated     = "customer.subscription.created"
	EventSubscriptionUpdated     = "customer.subscription.updated"
	EventSubscriptionDeleted     = "customer.subscription.deleted"
	EventInvoicePaymentSucceeded = "invoice.payment_succeeded"
	EventInvoicePaymentFailed    = "invoice.payment_failed"
)

// Metadata keys carrying local references on checkout sessions and
// subscriptions. The checkout initiator writes them; the reconciler reads
// them back.
const (
	MetadataUserIDKey = "user_id"
	MetadataPlanIDKey = "plan_id"
)

// ProviderEvent is a signature-verified event as handed to the reconciler.
type ProviderEvent struct {
	ID      string
	Type    string
	Created time.Time
	Payload []byte
}

// CheckoutSession is a minimal representation of a checkout.session event
// object. Checkout completion carries no authoritative subscription state;
// the reconciler only logs it.
type CheckoutSession struct {
	ID           string            `json:"id"`
	Mode         string            `json:"mode"`
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

// SubscriptionEvent is a minimal representation of a customer.subscription
// event object.
type SubscriptionEvent struct {
	ID                 string `json:"id"`
	Customer           string `json:"customer"`
	Status             string `json:"status"`
	CancelAtPeriodEnd  bool   `json:"cancel_at_period_end"`
	CanceledAt         int64  `json:"canceled_at"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
	TrialStart         int64  `json:"trial_start"`
	TrialEnd           int64  `json:"trial_end"`
	Items              struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
			CurrentPeriodStart int64 `json:"current_period_start"`
			CurrentPeriodEnd   int64 `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
	Metadata map[string]string `json:"metadata"`
}

// FirstPriceID returns the price ID from the first subscription item.
func (s *SubscriptionEvent) FirstPriceID() string {
	for _, item := range s.Items.Data {
		if priceID := strings.TrimSpace(item.Price.ID); priceID != "" {
			return priceID
		}
	}
	return ""
}

// PeriodStart returns the billing-period start, preferring the top-level
// field and falling back to the first item (newer API versions moved the
// period onto subscription items).
func (s *SubscriptionEvent) PeriodStart() *time.Time {
	if s.CurrentPeriodStart > 0 {
		return unixPtr(s.CurrentPeriodStart)
	}
	for _, item := range s.Items.Data {
		if item.CurrentPeriodStart > 0 {
			return unixPtr(item.CurrentPeriodStart)
		}
	}
	return nil
}

// PeriodEnd is the counterpart of PeriodStart.
func (s *SubscriptionEvent) PeriodEnd() *time.Time {
	if s.CurrentPeriodEnd > 0 {
		return unixPtr(s.CurrentPeriodEnd)
	}
	for _, item := range s.Items.Data {
		if item.CurrentPeriodEnd > 0 {
			return unixPtr(item.CurrentPeriodEnd)
		}
	}
	return nil
}

// Invoice is a minimal representation of an invoice event object.
type Invoice struct {
	ID                  string `json:"id"`
	Customer            string `json:"customer"`
	Subscription        string `json:"subscription"`
	PaymentIntent       string `json:"payment_intent"`
	AmountPaid          int64  `json:"amount_paid"`
	AmountDue           int64  `json:"amount_due"`
	Currency            string `json:"currency"`
	SubscriptionDetails struct {
		Metadata map[string]string `json:"metadata"`
	} `json:"subscription_details"`
	Parent struct {
		SubscriptionDetails struct {
			Subscription string            `json:"subscription"`
			Metadata     map[string]string `json:"metadata"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

// SubscriptionID returns the external subscription reference, preferring the
// top-level field and falling back to the parent details (newer API versions
// moved it there).
func (i *Invoice) SubscriptionID() string {
	if ref := strings.TrimSpace(i.Subscription); ref != "" {
		return ref
	}
	return strings.TrimSpace(i.Parent.SubscriptionDetails.Subscription)
}

// SubscriptionMetadata returns the subscription metadata attached to the
// invoice, wherever the payload variant carries it.
func (i *Invoice) SubscriptionMetadata() map[string]string {
	if len(i.SubscriptionDetails.Metadata) > 0 {
		return i.SubscriptionDetails.Metadata
	}
	return i.Parent.SubscriptionDetails.Metadata
}

func unixPtr(v int64) *time.Time {
	t := time.Unix(v, 0).UTC()
	return &t
}
