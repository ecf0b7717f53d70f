package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Izza86/automated-video-platform-sub000/app/models"
	"github.com/Izza86/automated-video-platform-sub000/internal/pkg/env"
	stripelib "github.com/stripe/stripe-go/v82"
	stripesession "github.com/stripe/stripe-go/v82/checkout/session"
	stripecustomer "github.com/stripe/stripe-go/v82/customer"
	stripesub "github.com/stripe/stripe-go/v82/subscription"
)

// TrialPeriodDays is the fixed trial length attached to every checkout.
const TrialPeriodDays = 14

// Client wraps the provider API calls the platform makes. The call sites are
// function fields so tests can stub the upstream without network access.
type Client struct {
	SuccessURL string
	CancelURL  string

	createCustomer        func(params *stripelib.CustomerParams) (*stripelib.Customer, error)
	createCheckoutSession func(params *stripelib.CheckoutSessionParams) (*stripelib.CheckoutSession, error)
	updateSubscription    func(id string, params *stripelib.SubscriptionParams) (*stripelib.Subscription, error)
}

// NewClientFromEnv configures the provider API key and return URLs from the
// environment.
func NewClientFromEnv() *Client {
	stripelib.Key = strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", ""))
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", "http://localhost:4000"), "/")

	return &Client{
		SuccessURL:            base + "/dashboard/billing?checkout=success",
		CancelURL:             base + "/dashboard/billing?checkout=cancelled",
		createCustomer:        stripecustomer.New,
		createCheckoutSession: stripesession.New,
		updateSubscription:    stripesub.Update,
	}
}

// EnsureCustomer returns the user's provider customer reference, creating the
// upstream customer on first use. The linkage is written exactly once;
// concurrent calls converge on whichever reference the DB kept.
func (c *Client) EnsureCustomer(ctx context.Context, repo Repository, user *models.User) (string, error) {
	if user.HasStripeCustomer() {
		return *user.StripeCustomerID, nil
	}

	params := &stripelib.CustomerParams{
		Email: stripelib.String(user.Email),
		Name:  stripelib.String(user.Name),
	}
	params.Context = ctx
	params.AddMetadata(MetadataUserIDKey, strconv.FormatUint(uint64(user.ID), 10))

	cust, err := c.createCustomer(params)
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}

	if err := repo.SetStripeCustomerID(user.ID, cust.ID); err != nil {
		return "", fmt.Errorf("persist customer linkage: %w", err)
	}
	stored, err := repo.GetUserByID(user.ID)
	if err != nil {
		return "", fmt.Errorf("reload user: %w", err)
	}
	if !stored.HasStripeCustomer() {
		return "", errors.New("customer linkage missing after write")
	}
	*user = *stored
	return *stored.StripeCustomerID, nil
}

// NewCheckoutSession creates an upstream subscription checkout for the given
// price and returns the hosted checkout URL. The user and plan references are
// attached as metadata on both the session and the subscription it creates,
// which is what the webhook reconciler later reads back.
func (c *Client) NewCheckoutSession(ctx context.Context, customerID, priceID string, userID, planID uint) (string, error) {
	meta := map[string]string{
		MetadataUserIDKey: strconv.FormatUint(uint64(userID), 10),
		MetadataPlanIDKey: strconv.FormatUint(uint64(planID), 10),
	}

	params := &stripelib.CheckoutSessionParams{
		Mode:       stripelib.String(string(stripelib.CheckoutSessionModeSubscription)),
		Customer:   stripelib.String(customerID),
		SuccessURL: stripelib.String(c.SuccessURL),
		CancelURL:  stripelib.String(c.CancelURL),
		LineItems: []*stripelib.CheckoutSessionLineItemParams{
			{
				Price:    stripelib.String(priceID),
				Quantity: stripelib.Int64(1),
			},
		},
		SubscriptionData: &stripelib.CheckoutSessionSubscriptionDataParams{
			TrialPeriodDays: stripelib.Int64(TrialPeriodDays),
			Metadata:        meta,
		},
	}
	params.Context = ctx
	for k, v := range meta {
		params.AddMetadata(k, v)
	}

	session, err := c.createCheckoutSession(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	if strings.TrimSpace(session.URL) == "" {
		return "", errors.New("checkout session has no hosted URL")
	}
	return session.URL, nil
}

// SetCancelAtPeriodEnd flags or unflags the upstream subscription for
// cancellation at the period boundary. The local ledger is not touched here;
// the follow-up subscription-updated webhook is authoritative.
func (c *Client) SetCancelAtPeriodEnd(ctx context.Context, stripeSubscriptionID string, cancel bool) (*stripelib.Subscription, error) {
	params := &stripelib.SubscriptionParams{
		CancelAtPeriodEnd: stripelib.Bool(cancel),
	}
	params.Context = ctx

	sub, err := c.updateSubscription(stripeSubscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("update subscription %s: %w", stripeSubscriptionID, err)
	}
	return sub, nil
}
