package models

import "time"

// Subscription status vocabulary. Stored verbatim from the provider's
// subscription status; the set is closed and incoming values are validated
// against it before any write.
const (
	SubscriptionStatusActive            = "active"
	SubscriptionStatusTrialing          = "trialing"
	SubscriptionStatusPastDue           = "past_due"
	SubscriptionStatusCanceled          = "canceled"
	SubscriptionStatusIncomplete        = "incomplete"
	SubscriptionStatusIncompleteExpired = "incomplete_expired"
	SubscriptionStatusPaused            = "paused"
)

// Subscription binds one user to one plan over time. Rows are created and
// mutated only by the webhook reconciler; cancellation is a status transition,
// never a delete. The most recently created row per user is the one that
// counts for entitlements.
type Subscription struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	UserID               uint       `gorm:"not null;index" json:"user_id"`
	User                 User       `gorm:"foreignKey:UserID" json:"-"`
	PlanID               uint       `gorm:"not null;index" json:"plan_id"`
	Plan                 Plan       `gorm:"foreignKey:PlanID" json:"plan,omitempty"`
	StripeSubscriptionID string     `gorm:"type:varchar(191);not null;uniqueIndex" json:"stripe_subscription_id"`
	Status               string     `gorm:"type:varchar(32);not null;default:'incomplete';index" json:"status"`
	CurrentPeriodStart   *time.Time `gorm:"type:timestamp;default:null" json:"current_period_start,omitempty"`
	CurrentPeriodEnd     *time.Time `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	CancelAtPeriodEnd    bool       `gorm:"default:false" json:"cancel_at_period_end"`
	CanceledAt           *time.Time `gorm:"type:timestamp;default:null" json:"canceled_at,omitempty"`
	TrialStart           *time.Time `gorm:"type:timestamp;default:null" json:"trial_start,omitempty"`
	TrialEnd             *time.Time `gorm:"type:timestamp;default:null" json:"trial_end,omitempty"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
