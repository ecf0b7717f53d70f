package main

import (
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/Izza86/automated-video-platform-sub000/app/repository"
	"github.com/Izza86/automated-video-platform-sub000/internal/pkg/cache"
	"github.com/Izza86/automated-video-platform-sub000/internal/pkg/database"
	"github.com/Izza86/automated-video-platform-sub000/internal/pkg/env"
	"github.com/Izza86/automated-video-platform-sub000/internal/pkg/metrics/counter"
	"github.com/Izza86/automated-video-platform-sub000/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	repository.InitializeFactory(database.GetDB())

	// periodic flush of Redis-batched view counters
	go func() {
		ticker := time.NewTicker(1 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			if err := counter.FlushAll(); err != nil {
				log.Printf("view counter flush failed: %v", err)
			}
		}
	}()

	// init fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: 1048576, // 1 MiB, JSON API only
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "test"),
		},
	}), monitor.New())

	// ROUTER
	router.InstallRouter(app)

	return app
}
