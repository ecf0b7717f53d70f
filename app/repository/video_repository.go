package repository

import (
	"github.com/Izza86/automated-video-platform-sub000/app/models"
	"gorm.io/gorm"
)

// videoRepository implements the VideoRepository interface
type videoRepository struct {
	db *gorm.DB
}

// NewVideoRepository creates a new video repository instance
func NewVideoRepository(db *gorm.DB) VideoRepository {
	return &videoRepository{db: db}
}

// Create creates a new video project in the database
func (r *videoRepository) Create(video *models.Video) error {
	return r.db.Create(video).Error
}

// GetByID retrieves a video by its ID
func (r *videoRepository) GetByID(id uint) (*models.Video, error) {
	var video models.Video
	err := r.db.First(&video, id).Error
	if err != nil {
		return nil, err
	}
	return &video, nil
}

// GetByUUID retrieves a video by its public identifier
func (r *videoRepository) GetByUUID(uuid string) (*models.Video, error) {
	var video models.Video
	err := r.db.Where("uuid = ?", uuid).First(&video).Error
	if err != nil {
		return nil, err
	}
	return &video, nil
}

// GetByUserID retrieves a page of videos belonging to a specific user
func (r *videoRepository) GetByUserID(userID uint, offset, limit int) ([]models.Video, error) {
	var videos []models.Video
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").Offset(offset).Limit(limit).Find(&videos).Error
	return videos, err
}

// Update updates an existing video in the database
func (r *videoRepository) Update(video *models.Video) error {
	return r.db.Save(video).Error
}

// Delete soft deletes a video by its ID
func (r *videoRepository) Delete(id uint) error {
	return r.db.Delete(&models.Video{}, id).Error
}

// CountByUserID returns the number of videos a user owns
func (r *videoRepository) CountByUserID(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Video{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}
