package billing

import (
	"time"

	"github.com/Izza86/automated-video-platform-sub000/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the billing service.
type Repository interface {
	GetPlanByStripePriceID(priceID string) (*models.Plan, error)
	GetPlanBySlug(slug string) (*models.Plan, error)
	GetSubscriptionByStripeID(stripeSubscriptionID string) (*models.Subscription, error)
	GetLatestSubscriptionByUser(userID uint) (*models.Subscription, error)
	UpsertSubscription(sub *models.Subscription) error
	MarkSubscriptionCanceled(stripeSubscriptionID string, canceledAt time.Time) (bool, error)
	CreatePaymentIfNotExists(p *models.Payment) (bool, error)
	CreateFailedPaymentAndMarkPastDue(p *models.Payment, stripeSubscriptionID string) error
	GetUserByID(userID uint) (*models.User, error)
	SetStripeCustomerID(userID uint, customerID string) error
	GetUsage(userID uint, year, month int) (*models.Usage, error)
	CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetPlanByStripePriceID(priceID string) (*models.Plan, error) {
	var p models.Plan
	err := r.db.Where("stripe_price_id = ? AND is_active = ?", priceID, true).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) GetPlanBySlug(slug string) (*models.Plan, error) {
	var p models.Plan
	err := r.db.Where("slug = ? AND is_active = ?", slug, true).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) GetSubscriptionByStripeID(stripeSubscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("stripe_subscription_id = ?", stripeSubscriptionID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) GetLatestSubscriptionByUser(userID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Preload("Plan").
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// UpsertSubscription inserts or overwrites the row keyed by the unique
// stripe_subscription_id. Two near-simultaneous deliveries for a brand-new
// subscription cannot race into duplicate rows: the second insert resolves
// into an update.
func (r *gormRepository) UpsertSubscription(sub *models.Subscription) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "stripe_subscription_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id",
			"plan_id",
			"status",
			"current_period_start",
			"current_period_end",
			"cancel_at_period_end",
			"canceled_at",
			"trial_start",
			"trial_end",
			"updated_at",
		}),
	}).Create(sub).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return r.db.Where("stripe_subscription_id = ?", sub.StripeSubscriptionID).
		First(sub).Error
}

// MarkSubscriptionCanceled flips the row to canceled in a single UPDATE.
// Returns false when no row matched, either because the subscription is
// unknown locally or because it is already canceled; both are benign.
func (r *gormRepository) MarkSubscriptionCanceled(stripeSubscriptionID string, canceledAt time.Time) (bool, error) {
	tx := r.db.Model(&models.Subscription{}).
		Where("stripe_subscription_id = ? AND status <> ?", stripeSubscriptionID, models.SubscriptionStatusCanceled).
		Updates(map[string]interface{}{
			"status":      models.SubscriptionStatusCanceled,
			"canceled_at": canceledAt,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// CreatePaymentIfNotExists appends a payment row unless one already exists
// for the same payment-intent reference. Replayed invoice events therefore
// record at most one settlement.
func (r *gormRepository) CreatePaymentIfNotExists(p *models.Payment) (bool, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "stripe_payment_intent_id"},
		},
		DoNothing: true,
	}).Create(p)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// CreateFailedPaymentAndMarkPastDue records the failed settlement and flips
// the subscription to past_due in one transaction, so neither change is ever
// visible without the other.
func (r *gormRepository) CreateFailedPaymentAndMarkPastDue(p *models.Payment, stripeSubscriptionID string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "stripe_payment_intent_id"},
			},
			DoNothing: true,
		}).Create(p)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Replay: the failure was already recorded, leave the ledger as is.
			return nil
		}
		return tx.Model(&models.Subscription{}).
			Where("stripe_subscription_id = ?", stripeSubscriptionID).
			Update("status", models.SubscriptionStatusPastDue).Error
	})
}

func (r *gormRepository) GetUserByID(userID uint) (*models.User, error) {
	var u models.User
	if err := r.db.First(&u, userID).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// SetStripeCustomerID persists the provider-customer linkage exactly once.
// A user that already carries a customer reference is left untouched.
func (r *gormRepository) SetStripeCustomerID(userID uint, customerID string) error {
	return r.db.Model(&models.User{}).
		Where("id = ? AND stripe_customer_id IS NULL", userID).
		Update("stripe_customer_id", customerID).Error
}

func (r *gormRepository) GetUsage(userID uint, year, month int) (*models.Usage, error) {
	var u models.Usage
	err := r.db.Where("user_id = ? AND year = ? AND month = ?", userID, year, month).First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "stripe_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := r.db.Where("stripe_event_id = ?", event.StripeEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
