package repository

import (
	"github.com/Izza86/automated-video-platform-sub000/app/models"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByActivationToken(token string) (*models.User, error)
	Update(user *models.User) error
	Delete(id uint) error
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
	Search(query string) ([]models.User, error)
}

// VideoRepository defines the interface for video-related database operations
type VideoRepository interface {
	Create(video *models.Video) error
	GetByID(id uint) (*models.Video, error)
	GetByUUID(uuid string) (*models.Video, error)
	GetByUserID(userID uint, offset, limit int) ([]models.Video, error)
	Update(video *models.Video) error
	Delete(id uint) error
	CountByUserID(userID uint) (int64, error)
}

// PlanRepository defines the interface for plan catalog operations
type PlanRepository interface {
	Create(plan *models.Plan) error
	GetByID(id uint) (*models.Plan, error)
	GetBySlug(slug string) (*models.Plan, error)
	GetActive() ([]models.Plan, error)
	GetAll() ([]models.Plan, error)
	Update(plan *models.Plan) error
	Deactivate(id uint) error
}

// PasswordResetRepository defines the interface for reset-token persistence
type PasswordResetRepository interface {
	Create(token *models.PasswordResetToken) error
	GetByToken(token string) (*models.PasswordResetToken, error)
	MarkUsed(id uint) error
	DeleteExpired() error
}
