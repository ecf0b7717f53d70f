package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	VideoStatusDraft     = "draft"
	VideoStatusRendering = "rendering"
	VideoStatusReady     = "ready"
	VideoStatusFailed    = "failed"
)

// Video is the metered entity: creating one consumes the user's monthly
// allowance. The actual transcoding runs client-side; the server only tracks
// the project metadata and the rendered output the client reports back.
type Video struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	UUID         string         `gorm:"type:char(36);uniqueIndex;not null" json:"uuid"`
	UserID       uint           `gorm:"not null;index" json:"user_id"`
	User         User           `gorm:"foreignKey:UserID" json:"-"`
	Title        string         `gorm:"type:varchar(255);not null" json:"title"`
	TemplateSlug string         `gorm:"type:varchar(100);default:''" json:"template_slug"`
	OutputFormat string         `gorm:"type:varchar(10);not null;default:'mp4'" json:"output_format"`
	Resolution   string         `gorm:"type:varchar(12);not null;default:'1080p'" json:"resolution"`
	DurationSecs float64        `gorm:"default:0" json:"duration_secs"`
	FileSize     int64          `gorm:"type:bigint;default:0" json:"file_size"`
	ViewCount    int64          `gorm:"type:bigint;default:0" json:"view_count"`
	Status       string         `gorm:"type:varchar(20);not null;default:'draft';index" json:"status"`
	CreatedAt    time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate assigns the public identifier.
func (v *Video) BeforeCreate(tx *gorm.DB) error {
	if v.UUID == "" {
		v.UUID = uuid.New().String()
	}
	return nil
}
