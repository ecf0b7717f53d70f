package models

import "time"

// WebhookEvent journals signature-verified provider events for idempotent
// processing. An event that was processed without error is acknowledged on
// redelivery without running its handler again; an event whose processing
// failed is retried on the next delivery.
type WebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	StripeEventID   string     `gorm:"type:varchar(191);not null;uniqueIndex" json:"stripe_event_id"`
	EventType       string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	PayloadJSON     string     `gorm:"type:longtext;not null" json:"payload_json"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
