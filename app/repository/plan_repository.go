package repository

import (
	"github.com/Izza86/automated-video-platform-sub000/app/models"
	"gorm.io/gorm"
)

// planRepository implements the PlanRepository interface
type planRepository struct {
	db *gorm.DB
}

// NewPlanRepository creates a new plan repository instance
func NewPlanRepository(db *gorm.DB) PlanRepository {
	return &planRepository{db: db}
}

// Create creates a new plan in the catalog
func (r *planRepository) Create(plan *models.Plan) error {
	return r.db.Create(plan).Error
}

// GetByID retrieves a plan by its ID
func (r *planRepository) GetByID(id uint) (*models.Plan, error) {
	var plan models.Plan
	err := r.db.First(&plan, id).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// GetBySlug retrieves a plan by its slug
func (r *planRepository) GetBySlug(slug string) (*models.Plan, error) {
	var plan models.Plan
	err := r.db.Where("slug = ?", slug).First(&plan).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// GetActive retrieves all purchasable plans
func (r *planRepository) GetActive() ([]models.Plan, error) {
	var plans []models.Plan
	err := r.db.Where("is_active = ?", true).Order("price_cents ASC").Find(&plans).Error
	return plans, err
}

// GetAll retrieves every plan including deactivated ones
func (r *planRepository) GetAll() ([]models.Plan, error) {
	var plans []models.Plan
	err := r.db.Order("price_cents ASC").Find(&plans).Error
	return plans, err
}

// Update updates an existing plan
func (r *planRepository) Update(plan *models.Plan) error {
	return r.db.Save(plan).Error
}

// Deactivate retires a plan from sale. Plans are never deleted because live
// subscriptions may still reference them.
func (r *planRepository) Deactivate(id uint) error {
	return r.db.Model(&models.Plan{}).Where("id = ?", id).Update("is_active", false).Error
}
