package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to existing controllers to keep behavior consistent
	"github.com/Izza86/automated-video-platform-sub000/app/controllers"
	"github.com/Izza86/automated-video-platform-sub000/internal/pkg/middleware"
)

// APIServer bundles the versioned JSON API handlers
type APIServer struct{}

// NewAPIServer creates a new API server instance
func NewAPIServer() *APIServer {
	return &APIServer{}
}

// RegisterHandlers wires every v1 route onto the given router group
func RegisterHandlers(r fiber.Router, s *APIServer) {
	r.Get("/ping", s.GetPing)

	// Public plan catalog for the pricing page
	r.Get("/plans", controllers.HandleListPlans)

	// Auth
	r.Post("/auth/register", controllers.HandleRegister)
	r.Post("/auth/activate", controllers.HandleActivate)
	r.Post("/auth/login", controllers.HandleLogin)
	r.Post("/auth/logout", middleware.RequireAuth, controllers.HandleLogout)
	r.Post("/auth/password/forgot", controllers.HandleForgotPassword)
	r.Post("/auth/password/reset", controllers.HandleResetPassword)

	// User profile
	r.Get("/user/profile", middleware.RequireAuth, controllers.HandleGetProfile)
	r.Put("/user/profile", middleware.RequireAuth, controllers.HandleUpdateProfile)
	r.Post("/user/password", middleware.RequireAuth, controllers.HandleChangePassword)

	// Videos (metered)
	r.Post("/videos", middleware.RequireAuth, controllers.HandleCreateVideo)
	r.Get("/videos", middleware.RequireAuth, controllers.HandleListVideos)
	r.Get("/videos/:uuid", middleware.RequireAuth, controllers.HandleGetVideo)
	r.Patch("/videos/:uuid/status", middleware.RequireAuth, controllers.HandleUpdateVideoStatus)
	r.Delete("/videos/:uuid", middleware.RequireAuth, controllers.HandleDeleteVideo)

	// Billing
	r.Post("/billing/checkout", middleware.RequireAuth, controllers.HandleCreateCheckout)
	r.Get("/billing/subscription", middleware.RequireAuth, controllers.HandleSubscriptionStatus)
	r.Post("/billing/subscription/cancel", middleware.RequireAuth, controllers.HandleCancelSubscription)
	r.Post("/billing/subscription/resume", middleware.RequireAuth, controllers.HandleResumeSubscription)

	// Admin surface
	r.Get("/admin/stats", middleware.RequireAdmin, controllers.HandleAdminStats)
	r.Get("/admin/plans", middleware.RequireAdmin, controllers.HandleAdminListPlans)
	r.Post("/admin/plans", middleware.RequireAdmin, controllers.HandleAdminCreatePlan)
	r.Put("/admin/plans/:id", middleware.RequireAdmin, controllers.HandleAdminUpdatePlan)
	r.Post("/admin/plans/:id/deactivate", middleware.RequireAdmin, controllers.HandleAdminDeactivatePlan)
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"ping": "pong",
	})
}
