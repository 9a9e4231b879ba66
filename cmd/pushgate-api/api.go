// Package main provides the Pushgate API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/pushgate/pushgate/pkg/eventbus"
	"github.com/pushgate/pushgate/pkg/persistence"
	"github.com/pushgate/pushgate/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	store persistence.Persistence,
	eventBus eventbus.EventBus,
) *API {
	return &API{
		logger:      logger,
		persistence: store,
		eventBus:    eventBus,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.logger, a.persistence, a.eventBus, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Pushgate API")
	})

	app.Post("/events", handlers.TriggerEvent)

	r := app.Group("/runs")
	r.Get("/", handlers.GetRuns)
	r.Get("/:id", handlers.GetRun)
	r.Post("/:id/cancel", handlers.CancelRun)

	p := app.Group("/pipelines")
	p.Get("/", handlers.GetPipelines)
	p.Post("/", handlers.CreatePipeline)
	p.Get("/:id", handlers.GetPipeline)
	p.Delete("/:id", handlers.DeletePipeline)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
