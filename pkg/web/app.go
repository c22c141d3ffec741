package web

import (
	"errors"
	"net/http"

	"github.com/dukex/sequences/pkg/intake"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"
)

// NewApp builds the fiber application. metrics may be nil.
func NewApp(handlers *APIHandlers, metrics http.Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:   "sequences",
		BodyLimit: intake.MaxBodySize,
		ErrorHandler: func(c fiber.Ctx, err error) error {
			var fiberErr *fiber.Error
			if errors.As(err, &fiberErr) {
				return c.Status(fiberErr.Code).JSON(fiber.Map{"error": fiberErr.Message})
			}

			handlers.logger.ErrorContext(c.Context(), "unhandled request error", "path", c.Path(), "error", err)

			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": internalServerError})
		},
	})

	app.Use(recoverer.New())
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Sequences API")
	})

	app.Get("/health", handlers.HealthCheck)

	if metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(metrics))
	}

	app.Post("/webhooks/:token", handlers.HandleWebhook)
	app.Post("/integrations/:integrationId/events/:triggerKey", handlers.HandleIntegrationEvent)

	s := app.Group("/sequences")
	s.Post("/", handlers.CreateSequence)
	s.Get("/:id", handlers.GetSequence)
	s.Post("/:id/actions", handlers.CreateAction)
	s.Post("/:id/triggers", handlers.CreateTrigger)

	app.Get("/triggers/:id/events", handlers.ListTriggerEvents)
	app.Get("/trigger-events/:id", handlers.GetTriggerEvent)
	app.Get("/runs/:id", handlers.GetRun)

	return app
}
