package repository

import (
	"time"

	"github.com/Izza86/automated-video-platform-sub000/app/models"
	"gorm.io/gorm"
)

// passwordResetRepository implements the PasswordResetRepository interface
type passwordResetRepository struct {
	db *gorm.DB
}

// NewPasswordResetRepository creates a new password reset repository instance
func NewPasswordResetRepository(db *gorm.DB) PasswordResetRepository {
	return &passwordResetRepository{db: db}
}

// Create stores a new reset token
func (r *passwordResetRepository) Create(token *models.PasswordResetToken) error {
	return r.db.Create(token).Error
}

// GetByToken retrieves a reset token by its value
func (r *passwordResetRepository) GetByToken(token string) (*models.PasswordResetToken, error) {
	var prt models.PasswordResetToken
	err := r.db.Where("token = ?", token).First(&prt).Error
	if err != nil {
		return nil, err
	}
	return &prt, nil
}

// MarkUsed consumes a token so it cannot be redeemed twice
func (r *passwordResetRepository) MarkUsed(id uint) error {
	now := time.Now()
	return r.db.Model(&models.PasswordResetToken{}).Where("id = ?", id).Update("used_at", now).Error
}

// DeleteExpired removes tokens past their expiry
func (r *passwordResetRepository) DeleteExpired() error {
	return r.db.Where("expires_at < ?", time.Now()).Delete(&models.PasswordResetToken{}).Error
}
