package entitlements

import (
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Izza86/automated-video-platform-sub000/app/models"
	"github.com/Izza86/automated-video-platform-sub000/internal/pkg/database"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	return db
}

func seedUserAndPlans(t *testing.T, db *gorm.DB) (*models.User, *models.Plan, *models.Plan) {
	t.Helper()
	user := &models.User{
		Name:     "metered",
		Email:    fmt.Sprintf("%s@example.com", t.Name()),
		Password: "irrelevant-hash",
		Role:     models.ROLE_USER,
		Status:   models.STATUS_ACTIVE,
	}
	require.NoError(t, db.Create(user).Error)

	freeLimit := 3
	free := &models.Plan{Name: "Free", Slug: models.PlanSlugFree, Interval: models.PlanIntervalMonth, Currency: "usd", VideoLimit: &freeLimit, IsActive: true}
	require.NoError(t, db.Create(free).Error)

	// nil limit = unlimited
	business := &models.Plan{Name: "Business", Slug: "business", StripePriceID: "price_business", PriceCents: 4900, Currency: "usd", Interval: models.PlanIntervalMonth, IsActive: true}
	require.NoError(t, db.Create(business).Error)

	return user, free, business
}

func pinNow(t *testing.T, at time.Time) {
	t.Helper()
	prev := nowFunc
	nowFunc = func() time.Time { return at }
	t.Cleanup(func() { nowFunc = prev })
}

func subscribe(t *testing.T, db *gorm.DB, userID, planID uint, status string) {
	t.Helper()
	sub := &models.Subscription{
		UserID:               userID,
		PlanID:               planID,
		StripeSubscriptionID: fmt.Sprintf("sub_%s_%d", t.Name(), planID),
		Status:               status,
	}
	require.NoError(t, db.Create(sub).Error)
}

func TestCheck_FreeFallbackWithoutSubscription(t *testing.T) {
	db := newTestDB(t)
	user, _, _ := seedUserAndPlans(t, db)
	pinNow(t, time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC))

	decision, err := Check(db, user.ID)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, 0, decision.Used)
	require.NotNil(t, decision.Limit)
	assert.Equal(t, 3, *decision.Limit)
	assert.Equal(t, models.PlanSlugFree, decision.PlanSlug)
}

func TestCheck_DeniesAtLimit(t *testing.T) {
	db := newTestDB(t)
	user, _, _ := seedUserAndPlans(t, db)
	pinNow(t, time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC))

	// two of three used: still allowed
	require.NoError(t, Increment(db, user.ID))
	require.NoError(t, Increment(db, user.ID))

	decision, err := Check(db, user.ID)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, 2, decision.Used)

	// third use exhausts the cap
	require.NoError(t, Increment(db, user.ID))

	decision, err = Check(db, user.ID)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, 3, decision.Used)
}

func TestCheck_UnlimitedPlan(t *testing.T) {
	db := newTestDB(t)
	user, _, business := seedUserAndPlans(t, db)
	subscribe(t, db, user.ID, business.ID, models.SubscriptionStatusActive)
	pinNow(t, time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC))

	for i := 0; i < 50; i++ {
		require.NoError(t, Increment(db, user.ID))
	}

	decision, err := Check(db, user.ID)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Nil(t, decision.Limit)
	assert.Equal(t, "business", decision.PlanSlug)
}

func TestCheck_CanceledSubscriptionFallsBackToFree(t *testing.T) {
	db := newTestDB(t)
	user, _, business := seedUserAndPlans(t, db)
	subscribe(t, db, user.ID, business.ID, models.SubscriptionStatusCanceled)
	pinNow(t, time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC))

	decision, err := Check(db, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PlanSlugFree, decision.PlanSlug)
	require.NotNil(t, decision.Limit)
	assert.Equal(t, 3, *decision.Limit)
}

func TestCheck_PastDueStillEntitles(t *testing.T) {
	db := newTestDB(t)
	user, _, business := seedUserAndPlans(t, db)
	subscribe(t, db, user.ID, business.ID, models.SubscriptionStatusPastDue)
	pinNow(t, time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC))

	decision, err := Check(db, user.ID)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, "business", decision.PlanSlug)
}

func TestCheck_NewPeriodResetsUsage(t *testing.T) {
	db := newTestDB(t)
	user, _, _ := seedUserAndPlans(t, db)

	pinNow(t, time.Date(2025, 6, 30, 23, 0, 0, 0, time.UTC))
	require.NoError(t, Increment(db, user.ID))
	require.NoError(t, Increment(db, user.ID))
	require.NoError(t, Increment(db, user.ID))

	decision, err := Check(db, user.ID)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	// the calendar flips, the counter does not carry over
	pinNow(t, time.Date(2025, 7, 1, 0, 30, 0, 0, time.UTC))
	decision, err = Check(db, user.ID)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, 0, decision.Used)
}

func TestCheck_MissingFreeSeedDegrades(t *testing.T) {
	db := newTestDB(t)
	user := &models.User{
		Name:     "noseed",
		Email:    "noseed@example.com",
		Password: "irrelevant-hash",
		Role:     models.ROLE_USER,
		Status:   models.STATUS_ACTIVE,
	}
	require.NoError(t, db.Create(user).Error)
	pinNow(t, time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC))

	decision, err := Check(db, user.ID)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	require.NotNil(t, decision.Limit)
	assert.Equal(t, DefaultFreeVideoLimit, *decision.Limit)
}

func TestIncrement_UpsertsSingleRowPerPeriod(t *testing.T) {
	db := newTestDB(t)
	user, _, _ := seedUserAndPlans(t, db)
	pinNow(t, time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC))

	require.NoError(t, Increment(db, user.ID))
	require.NoError(t, Increment(db, user.ID))

	var usages []models.Usage
	require.NoError(t, db.Where("user_id = ?", user.ID).Find(&usages).Error)
	require.Len(t, usages, 1)
	assert.Equal(t, 2, usages[0].Count)
	assert.Equal(t, 2025, usages[0].Year)
	assert.Equal(t, 6, usages[0].Month)
}

func TestPlanSlug_LatestSubscriptionWins(t *testing.T) {
	db := newTestDB(t)
	user, _, business := seedUserAndPlans(t, db)

	assert.Equal(t, models.PlanSlugFree, PlanSlug(db, user.ID))

	subscribe(t, db, user.ID, business.ID, models.SubscriptionStatusActive)
	assert.Equal(t, "business", PlanSlug(db, user.ID))
}
