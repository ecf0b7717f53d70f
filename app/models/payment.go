package models

import "time"

const (
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusFailed    = "failed"
	PaymentStatusPending   = "pending"
)

// Payment is an immutable record of one settlement attempt, written only by
// the webhook reconciler. Rows are never updated or deleted; the table is an
// append-only audit trail. The payment-intent reference is unique so replayed
// invoice events cannot record the same settlement twice.
type Payment struct {
	ID                    uint          `gorm:"primaryKey" json:"id"`
	UserID                uint          `gorm:"not null;index" json:"user_id"`
	User                  User          `gorm:"foreignKey:UserID" json:"-"`
	SubscriptionID        *uint         `gorm:"index;default:null" json:"subscription_id,omitempty"`
	Subscription          *Subscription `gorm:"foreignKey:SubscriptionID" json:"-"`
	StripePaymentIntentID string        `gorm:"type:varchar(191);not null;uniqueIndex" json:"stripe_payment_intent_id"`
	AmountCents           int64         `gorm:"not null" json:"amount_cents"`
	Currency              string        `gorm:"type:varchar(3);not null;default:'usd'" json:"currency"`
	Status                string        `gorm:"type:varchar(16);not null" json:"status"`
	CreatedAt             time.Time     `gorm:"autoCreateTime;index" json:"created_at"`
}
