package controllers

import (
	"github.com/Izza86/automated-video-platform-sub000/internal/pkg/env"
	"github.com/gofiber/fiber/v2"
)

// RenderHello is the root status endpoint.
func RenderHello(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": "video-platform",
		"status":  "ok",
		"env":     env.GetEnv("APP_ENV", "prod"),
	})
}
