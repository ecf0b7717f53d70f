package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	PlanIntervalMonth = "month"
	PlanIntervalYear  = "year"
)

// PlanSlugFree is the always-present fallback tier. Users without any
// subscription row are entitled through this plan.
const PlanSlugFree = "free"

// JSON stores raw JSON documents in a text column.
type JSON json.RawMessage

// Value implements driver.Valuer.
func (j JSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

// Scan implements sql.Scanner.
func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = JSON("[]")
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("invalid scan source")
	}
	*j = JSON(bytes)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (j JSON) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (j *JSON) UnmarshalJSON(data []byte) error {
	*j = JSON(data)
	return nil
}

// Plan is a purchasable tier. Plans referenced by live subscriptions are never
// deleted, only deactivated.
type Plan struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Slug          string    `gorm:"type:varchar(50);not null;uniqueIndex" json:"slug" validate:"required,min=2,max=50"`
	Name          string    `gorm:"type:varchar(100);not null" json:"name" validate:"required,max=100"`
	StripePriceID string    `gorm:"type:varchar(191);uniqueIndex" json:"stripe_price_id"`
	PriceCents    int64     `gorm:"not null;default:0" json:"price_cents" validate:"gte=0"`
	Currency      string    `gorm:"type:varchar(3);not null;default:'usd'" json:"currency"`
	Interval      string    `gorm:"type:varchar(16);not null;default:'month'" json:"interval" validate:"oneof=month year"`
	VideoLimit    *int      `gorm:"default:null" json:"video_limit"` // nil = unlimited
	Features      JSON      `gorm:"type:text" json:"features"`
	IsActive      bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *Plan) Validate() error {
	v := validator.New()

	return v.Struct(p)
}

// IsUnlimited reports whether the plan has no metered-action cap.
func (p *Plan) IsUnlimited() bool {
	return p.VideoLimit == nil
}
