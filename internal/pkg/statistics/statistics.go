package statistics

import (
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/Izza86/automated-video-platform-sub000/app/models"
	"github.com/Izza86/automated-video-platform-sub000/internal/pkg/cache"
	"github.com/Izza86/automated-video-platform-sub000/internal/pkg/database"
	"gorm.io/gorm"
)

const (
	CacheKeyVideosTotal   = "statistics:videos:total"
	CacheKeyVideosDaily   = "statistics:videos:daily:%s" // Format with date YYYY-MM-DD
	CacheKeyUsers         = "statistics:users:total"
	CacheKeySubscriptions = "statistics:subscriptions:active"
	CacheExpiration       = 30 * time.Minute
)

// StatisticsData holds the aggregate counters for the admin dashboard
type StatisticsData struct {
	TodayVideos         int `json:"today_videos"`
	TotalVideos         int `json:"total_videos"`
	TotalUsers          int `json:"total_users"`
	ActiveSubscriptions int `json:"active_subscriptions"`
}

var (
	lastCacheUpdate     time.Time
	cacheUpdateMutex    sync.Mutex
	cacheUpdateInterval = 5 * time.Minute
)

// ShouldUpdateCache reports whether the cached counters are stale
func ShouldUpdateCache() bool {
	cacheUpdateMutex.Lock()
	defer cacheUpdateMutex.Unlock()

	return time.Since(lastCacheUpdate) > cacheUpdateInterval
}

// UpdateCacheIfNeeded refreshes the cache when the update interval has passed
func UpdateCacheIfNeeded() {
	if ShouldUpdateCache() {
		cacheUpdateMutex.Lock()
		defer cacheUpdateMutex.Unlock()

		if err := UpdateStatisticsCache(); err != nil {
			log.Printf("Failed to update statistics cache: %v", err)
		} else {
			lastCacheUpdate = time.Now()
		}
	}
}

// ResetCacheUpdateTimer forces a refresh on the next read
func ResetCacheUpdateTimer() {
	cacheUpdateMutex.Lock()
	defer cacheUpdateMutex.Unlock()

	lastCacheUpdate = time.Time{}
}

// UpdateStatisticsCache recomputes all counters and stores them in the cache
func UpdateStatisticsCache() error {
	db := database.GetDB()

	var totalVideos int64
	if err := db.Model(&models.Video{}).Count(&totalVideos).Error; err != nil {
		log.Printf("Error counting total videos: %v", err)
		return err
	}

	var todayVideos int64
	today := time.Now().Format("2006-01-02")
	todayStart, _ := time.Parse("2006-01-02", today)
	todayEnd := todayStart.Add(24 * time.Hour)

	if err := db.Model(&models.Video{}).Where("created_at BETWEEN ? AND ?", todayStart, todayEnd).Count(&todayVideos).Error; err != nil {
		log.Printf("Error counting today's videos: %v", err)
		return err
	}

	var totalUsers int64
	if err := db.Model(&models.User{}).Count(&totalUsers).Error; err != nil {
		log.Printf("Error counting total users: %v", err)
		return err
	}

	var activeSubscriptions int64
	entitling := []string{
		models.SubscriptionStatusActive,
		models.SubscriptionStatusTrialing,
		models.SubscriptionStatusPastDue,
	}
	if err := db.Model(&models.Subscription{}).Where("status IN ?", entitling).Count(&activeSubscriptions).Error; err != nil {
		log.Printf("Error counting active subscriptions: %v", err)
		return err
	}

	if err := cache.Set(CacheKeyVideosTotal, strconv.FormatInt(totalVideos, 10), CacheExpiration); err != nil {
		log.Printf("Error caching total videos: %v", err)
		return err
	}

	dailyKey := fmt.Sprintf(CacheKeyVideosDaily, today)
	if err := cache.Set(dailyKey, strconv.FormatInt(todayVideos, 10), CacheExpiration); err != nil {
		log.Printf("Error caching today's videos: %v", err)
		return err
	}

	if err := cache.Set(CacheKeyUsers, strconv.FormatInt(totalUsers, 10), CacheExpiration); err != nil {
		log.Printf("Error caching total users: %v", err)
		return err
	}

	if err := cache.Set(CacheKeySubscriptions, strconv.FormatInt(activeSubscriptions, 10), CacheExpiration); err != nil {
		log.Printf("Error caching active subscriptions: %v", err)
		return err
	}

	log.Printf("Statistics updated in cache: Total Videos: %d, Today's Videos: %d, Total Users: %d, Active Subscriptions: %d",
		totalVideos, todayVideos, totalUsers, activeSubscriptions)

	return nil
}

// GetTotalVideos returns the total number of videos from cache or database
func GetTotalVideos() int {
	return cachedCount(CacheKeyVideosTotal, func(db *gorm.DB) (int64, error) {
		var count int64
		err := db.Model(&models.Video{}).Count(&count).Error
		return count, err
	})
}

// GetTodayVideos returns the number of videos created today from cache or database
func GetTodayVideos() int {
	today := time.Now().Format("2006-01-02")
	dailyKey := fmt.Sprintf(CacheKeyVideosDaily, today)

	return cachedCount(dailyKey, func(db *gorm.DB) (int64, error) {
		todayStart, _ := time.Parse("2006-01-02", today)
		todayEnd := todayStart.Add(24 * time.Hour)
		var count int64
		err := db.Model(&models.Video{}).Where("created_at BETWEEN ? AND ?", todayStart, todayEnd).Count(&count).Error
		return count, err
	})
}

// GetTotalUsers returns the total number of users from cache or database
func GetTotalUsers() int {
	return cachedCount(CacheKeyUsers, func(db *gorm.DB) (int64, error) {
		var count int64
		err := db.Model(&models.User{}).Count(&count).Error
		return count, err
	})
}

// GetActiveSubscriptions returns the number of entitling subscriptions
func GetActiveSubscriptions() int {
	return cachedCount(CacheKeySubscriptions, func(db *gorm.DB) (int64, error) {
		var count int64
		entitling := []string{
			models.SubscriptionStatusActive,
			models.SubscriptionStatusTrialing,
			models.SubscriptionStatusPastDue,
		}
		err := db.Model(&models.Subscription{}).Where("status IN ?", entitling).Count(&count).Error
		return count, err
	})
}

// GetStatisticsData returns all counters, refreshing the cache when stale
func GetStatisticsData() StatisticsData {
	UpdateCacheIfNeeded()

	return StatisticsData{
		TodayVideos:         GetTodayVideos(),
		TotalVideos:         GetTotalVideos(),
		TotalUsers:          GetTotalUsers(),
		ActiveSubscriptions: GetActiveSubscriptions(),
	}
}

// cachedCount reads a counter from the cache, falling back to the database
// and repopulating the cache on a miss
func cachedCount(key string, countFn func(db *gorm.DB) (int64, error)) int {
	val, err := cache.Get(key)
	if err != nil {
		count, dbErr := countFn(database.GetDB())
		if dbErr != nil {
			log.Printf("Error counting for %s: %v", key, dbErr)
			return 0
		}
		if err := cache.Set(key, strconv.FormatInt(count, 10), CacheExpiration); err != nil {
			log.Printf("Error caching %s: %v", key, err)
		}
		return int(count)
	}

	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0
	}

	return int(count)
}
