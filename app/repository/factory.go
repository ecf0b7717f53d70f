package repository

import (
	"sync"

	"gorm.io/gorm"
)

// Factory manages repository instances and ensures they are singletons
type Factory struct {
	db    *gorm.DB
	repos *Repositories
	once  sync.Once
}

// Repositories bundles all repository instances
type Repositories struct {
	User          UserRepository
	Video         VideoRepository
	Plan          PlanRepository
	PasswordReset PasswordResetRepository
}

// NewRepositories creates all repository instances for the given DB handle
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:          NewUserRepository(db),
		Video:         NewVideoRepository(db),
		Plan:          NewPlanRepository(db),
		PasswordReset: NewPasswordResetRepository(db),
	}
}

// NewFactory creates a new repository factory
func NewFactory(db *gorm.DB) *Factory {
	return &Factory{
		db: db,
	}
}

// GetRepositories returns a singleton instance of all repositories
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		f.repos = NewRepositories(f.db)
	})
	return f.repos
}

// GetUserRepository returns the user repository instance
func (f *Factory) GetUserRepository() UserRepository {
	return f.GetRepositories().User
}

// GetVideoRepository returns the video repository instance
func (f *Factory) GetVideoRepository() VideoRepository {
	return f.GetRepositories().Video
}

// GetPlanRepository returns the plan repository instance
func (f *Factory) GetPlanRepository() PlanRepository {
	return f.GetRepositories().Plan
}

// GetPasswordResetRepository returns the password reset repository instance
func (f *Factory) GetPasswordResetRepository() PasswordResetRepository {
	return f.GetRepositories().PasswordReset
}

// Global factory instance
var globalFactory *Factory
var factoryOnce sync.Once

// InitializeFactory initializes the global repository factory
func InitializeFactory(db *gorm.DB) {
	factoryOnce.Do(func() {
		globalFactory = NewFactory(db)
	})
}

// ResetFactory clears the global factory so tests can rebind it to a fresh DB.
func ResetFactory() {
	globalFactory = nil
	factoryOnce = sync.Once{}
}

// GetGlobalFactory returns the global repository factory instance
func GetGlobalFactory() *Factory {
	if globalFactory == nil {
		panic("Repository factory not initialized. Call InitializeFactory first.")
	}
	return globalFactory
}

// GetGlobalRepositories returns the global repositories instance
func GetGlobalRepositories() *Repositories {
	return GetGlobalFactory().GetRepositories()
}
