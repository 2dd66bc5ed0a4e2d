package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/eyeai-api/internal/config"
	"github.com/noah-isme/eyeai-api/internal/handler"
	"github.com/noah-isme/eyeai-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	SessionHandler  *handler.SessionHandler
	StudentHandler  *handler.StudentHandler
	RealtimeHandler *handler.RealtimeHandler
	FileHandler     *handler.FileHandler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	// Common v1 group for health & headers
	v1 := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	v1.Get("/health", handler.HealthCheck(cfg))

	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api")

	if deps.SessionHandler != nil {
		deps.SessionHandler.Register(api)
	}

	if deps.StudentHandler != nil {
		deps.StudentHandler.Register(api)
	}

	if deps.FileHandler != nil {
		files := api.Group("/files")
		deps.FileHandler.Register(files)
	}

	if deps.RealtimeHandler != nil {
		deps.RealtimeHandler.Register(app)
	}
}
