package database

import (
	"fmt"
	"log"
	"time"

	"github.com/Izza86/automated-video-platform-sub000/app/models"
	"github.com/Izza86/automated-video-platform-sub000/internal/pkg/env"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

// DB is the global database handle. It is set once by SetupDatabase during
// startup; tests swap it via SetDB.
var DB *gorm.DB

// GetDB returns the global database handle.
func GetDB() *gorm.DB {
	return DB
}

// SetDB replaces the global database handle.
func SetDB(db *gorm.DB) {
	DB = db
}

func SetupDatabase() {
	var err error
	// "user:pass@tcp(127.0.0.1:3306)/dbname?charset=utf8mb4&parseTime=True&loc=Local"
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		env.GetEnv("DB_USER", ""),
		env.GetEnv("DB_PASSWORD", ""),
		env.GetEnv("DB_HOST", "127.0.0.1"),
		env.GetEnv("DB_PORT", "3306"),
		env.GetEnv("DB_NAME", ""),
	)

	for i := 0; i < maxRetries; i++ {
		DB, err = gorm.Open(mysql.New(mysql.Config{
			DSN:                       dsn,   // data source name
			DefaultStringSize:         256,   // default size for string fields
			DisableDatetimePrecision:  true,  // disable datetime precision, which not supported before MySQL 5.6
			DontSupportRenameIndex:    true,  // drop & create when rename index, rename index not supported before MySQL 5.7, MariaDB
			DontSupportRenameColumn:   true,  // `change` when rename column, rename column not supported before MySQL 8, MariaDB
			SkipInitializeWithVersion: false, // auto configure based on currently MySQL version
		}), &gorm.Config{})
		if err == nil {
			if merr := Migrate(DB); merr != nil {
				panic(merr)
			}
			if serr := SeedDefaultPlans(DB); serr != nil {
				panic(serr)
			}
			return
		}

		log.Printf("Failed to connect to database (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			log.Printf("Retry number %v...", retryDelay)
			time.Sleep(retryDelay)
		}
	}

	if err != nil {
		panic(err)
	}
}

// Migrate applies the schema for every model.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Plan{},
		&models.Subscription{},
		&models.Payment{},
		&models.Usage{},
		&models.Video{},
		&models.WebhookEvent{},
		&models.PasswordResetToken{},
	)
}

// SeedDefaultPlans inserts the plan catalog if it is empty. The free plan row
// is required: the entitlement evaluator resolves users without a subscription
// against it.
func SeedDefaultPlans(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.Plan{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	freeLimit := 3
	proLimit := 100
	plans := []models.Plan{
		{
			Name:       "Free",
			Slug:       models.PlanSlugFree,
			PriceCents: 0,
			Currency:   "usd",
			Interval:   models.PlanIntervalMonth,
			VideoLimit: &freeLimit,
			Features:   models.JSON(`["watermarked exports","720p output"]`),
			IsActive:   true,
		},
		{
			Name:          "Pro Monthly",
			Slug:          "pro-monthly",
			StripePriceID: env.GetEnv("STRIPE_PRICE_PRO_MONTHLY", ""),
			PriceCents:    1900,
			Currency:      "usd",
			Interval:      models.PlanIntervalMonth,
			VideoLimit:    &proLimit,
			Features:      models.JSON(`["no watermark","1080p output","priority rendering"]`),
			IsActive:      true,
		},
		{
			Name:          "Pro Yearly",
			Slug:          "pro-yearly",
			StripePriceID: env.GetEnv("STRIPE_PRICE_PRO_YEARLY", ""),
			PriceCents:    19000,
			Currency:      "usd",
			Interval:      models.PlanIntervalYear,
			VideoLimit:    &proLimit,
			Features:      models.JSON(`["no watermark","1080p output","priority rendering"]`),
			IsActive:      true,
		},
		{
			Name:          "Business",
			Slug:          "business",
			StripePriceID: env.GetEnv("STRIPE_PRICE_BUSINESS", ""),
			PriceCents:    4900,
			Currency:      "usd",
			Interval:      models.PlanIntervalMonth,
			VideoLimit:    nil,
			Features:      models.JSON(`["no watermark","4k output","priority rendering","team seats"]`),
			IsActive:      true,
		},
	}

	for i := range plans {
		// stripe_price_id carries a unique index, so paid plans without a
		// configured price would collide on the empty string
		if plans[i].PriceCents > 0 && plans[i].StripePriceID == "" {
			log.Printf("[Database] skipping seed of plan %s: no Stripe price configured", plans[i].Slug)
			continue
		}
		if err := db.Create(&plans[i]).Error; err != nil {
			return err
		}
	}
	return nil
}
