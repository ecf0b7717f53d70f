package models

import "time"

// Usage counts metered actions per user and calendar month. At most one row
// exists per (user, year, month); the row is created lazily on the first
// action of a period and only ever incremented.
type Usage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index:ux_usages_user_period,unique,priority:1" json:"user_id"`
	User      User      `gorm:"foreignKey:UserID" json:"-"`
	Year      int       `gorm:"not null;index:ux_usages_user_period,unique,priority:2" json:"year"`
	Month     int       `gorm:"not null;index:ux_usages_user_period,unique,priority:3" json:"month"`
	Count     int       `gorm:"not null;default:0" json:"count"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// UsagePeriod returns the calendar period a point in time falls into.
func UsagePeriod(t time.Time) (year int, month int) {
	return t.Year(), int(t.Month())
}
