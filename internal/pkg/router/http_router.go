package router

import (
	"github.com/Izza86/automated-video-platform-sub000/app/controllers"
	"github.com/Izza86/automated-video-platform-sub000/internal/pkg/constants"
	"github.com/Izza86/automated-video-platform-sub000/internal/pkg/middleware"
	"github.com/Izza86/automated-video-platform-sub000/internal/pkg/session"

	"github.com/gofiber/fiber/v2"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// init session
	session.NewSessionStore()

	// Apply UserContext middleware globally as first middleware
	app.Use(middleware.UserContextMiddleware)

	h.registerPublicRoutes(app)
}

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	app.Get(constants.PublicRoute, controllers.RenderHello)

	// Billing provider webhooks stay outside the API group: no rate limiter
	// and no session, the signature check in the controller is the gate
	app.Post(constants.StripeWebhookRoute, controllers.HandleStripeWebhook)

	// Activation link target from the signup mail
	app.Get("/activate", controllers.HandleActivate)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
