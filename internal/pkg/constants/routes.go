package constants

// Static route constants
const (
	PublicRoute = "/"
	APIV1Prefix = "/api/v1"
	// Webhook route is registered outside the rate-limited API group
	StripeWebhookRoute = "/webhooks/stripe"
)
