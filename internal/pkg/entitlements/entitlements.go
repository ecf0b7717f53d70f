package entitlements

import (
	"errors"
	"strings"
	"time"

	"github.com/Izza86/automated-video-platform-sub000/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultFreeVideoLimit is the last-resort cap applied when the seeded free
// plan row is missing from the ledger.
const DefaultFreeVideoLimit = 3

// Decision is the outcome of an entitlement check. On denial, Used and Limit
// let the caller render an upgrade prompt.
type Decision struct {
	Allowed  bool   `json:"allowed"`
	Used     int    `json:"used"`
	Limit    *int   `json:"limit"` // nil = unlimited
	PlanSlug string `json:"plan"`
}

// Check determines whether the user may perform one more metered action this
// calendar month. It is read-only; call Increment separately once the action
// actually succeeded, never speculatively.
func Check(db *gorm.DB, userID uint) (Decision, error) {
	plan, err := effectivePlan(db, userID)
	if err != nil {
		return Decision{}, err
	}

	if plan.IsUnlimited() {
		return Decision{Allowed: true, Limit: nil, PlanSlug: plan.Slug}, nil
	}

	year, month := models.UsagePeriod(nowFunc())
	var usage models.Usage
	used := 0
	err = db.Where("user_id = ? AND year = ? AND month = ?", userID, year, month).First(&usage).Error
	switch {
	case err == nil:
		used = usage.Count
	case errors.Is(err, gorm.ErrRecordNotFound):
		// No row yet this period: zero usage.
	default:
		return Decision{}, err
	}

	limit := *plan.VideoLimit
	return Decision{
		Allowed:  used < limit,
		Used:     used,
		Limit:    plan.VideoLimit,
		PlanSlug: plan.Slug,
	}, nil
}

// Increment atomically bumps the user's counter for the current period,
// creating the row on first use.
func Increment(db *gorm.DB, userID uint) error {
	year, month := models.UsagePeriod(nowFunc())
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"},
			{Name: "year"},
			{Name: "month"},
		},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"count": gorm.Expr("count + 1"),
		}),
	}).Create(&models.Usage{
		UserID: userID,
		Year:   year,
		Month:  month,
		Count:  1,
	}).Error
}

// PlanSlug resolves the slug of the plan currently governing the user. Errors
// degrade to the free tier so request middleware never fails on it.
func PlanSlug(db *gorm.DB, userID uint) string {
	plan, err := effectivePlan(db, userID)
	if err != nil {
		return models.PlanSlugFree
	}
	return plan.Slug
}

// effectivePlan resolves the plan that governs the user right now: the most
// recently created subscription if its status still entitles, otherwise the
// seeded free plan.
func effectivePlan(db *gorm.DB, userID uint) (*models.Plan, error) {
	var sub models.Subscription
	err := db.Preload("Plan").
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		First(&sub).Error
	if err == nil && isEntitlingStatus(sub.Status) {
		return &sub.Plan, nil
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var free models.Plan
	err = db.Where("slug = ? AND is_active = ?", models.PlanSlugFree, true).First(&free).Error
	if err == nil {
		return &free, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// The free plan should always be seeded; keep a hardcoded fallback so a
	// missing seed row degrades instead of breaking every metered action.
	limit := DefaultFreeVideoLimit
	return &models.Plan{Slug: models.PlanSlugFree, Name: "Free", VideoLimit: &limit}, nil
}

func isEntitlingStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case models.SubscriptionStatusActive, models.SubscriptionStatusTrialing, models.SubscriptionStatusPastDue:
		return true
	default:
		return false
	}
}

// nowFunc is swapped in tests to pin the usage period.
var nowFunc = time.Now
