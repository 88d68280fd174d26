package main

import (
	"fmt"
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/FitSnapApp/FitSnap/internal/pkg/env"
	"github.com/FitSnapApp/FitSnap/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()

	// Find the project root when started from cmd/fitsnap.
	basePaths := []string{
		"./",
		"../../",
	}
	basePath := "./"
	for _, path := range basePaths {
		if _, err := os.Stat(path + "public"); !os.IsNotExist(err) {
			basePath = path
			break
		}
	}

	app := fiber.New(fiber.Config{
		// Generation requests carry up to three base64 data URLs.
		BodyLimit: 50 * 1024 * 1024,
	})
	app.Use(recover.New(), logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: env.GetEnv("CORS_ALLOW_ORIGINS", "*"),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Admin-Key",
	}))
	app.Get("/metrics", monitor.New())
	app.Static("/", basePath+"public")

	// ROUTER
	router.InstallRouter(app)

	return app
}
