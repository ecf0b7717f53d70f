package models

import (
	"time"

	"github.com/Izza86/automated-video-platform-sub000/internal/pkg/shortener"
)

// PasswordResetTokenTTL is how long a reset token stays redeemable.
const PasswordResetTokenTTL = 30 * time.Minute

// PasswordResetToken is a short-lived, single-use credential persisted in the
// ledger so it survives process restarts and works across multiple server
// instances.
type PasswordResetToken struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	UserID    uint       `gorm:"not null;index" json:"user_id"`
	User      User       `gorm:"foreignKey:UserID" json:"-"`
	Token     string     `gorm:"type:varchar(100);not null;uniqueIndex" json:"-"`
	ExpiresAt time.Time  `gorm:"not null;index" json:"expires_at"`
	UsedAt    *time.Time `gorm:"type:timestamp;default:null" json:"used_at,omitempty"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// NewPasswordResetToken mints a token for the user with the default TTL.
func NewPasswordResetToken(userID uint) (*PasswordResetToken, error) {
	token, err := shortener.GenerateSecureSlug(48)
	if err != nil {
		return nil, err
	}
	return &PasswordResetToken{
		UserID:    userID,
		Token:     token,
		ExpiresAt: time.Now().Add(PasswordResetTokenTTL),
	}, nil
}

// IsRedeemable reports whether the token is unused and unexpired.
func (t *PasswordResetToken) IsRedeemable() bool {
	return t.UsedAt == nil && time.Now().Before(t.ExpiresAt)
}
