// Package main provides the portalflow operator API server.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/dukex/portalflow/pkg/persistence"
	"github.com/dukex/portalflow/pkg/services"
	"github.com/dukex/portalflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	events      web.EventHandler
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	events web.EventHandler,
) *API {
	return &API{
		persistence: persistence,
		logger:      logger,
		events:      events,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	workflowService := services.NewWorkflow(a.persistence)
	batchService := services.NewBatch(a.persistence)

	handlers := web.NewAPIHandlers(workflowService, batchService, a.events, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Portalflow API")
	})

	v1 := app.Group("/api/v1")

	b := v1.Group("/batch-runs")
	b.Get("/", handlers.GetBatchRuns)
	b.Get("/:id", handlers.GetBatchRun)
	b.Post("/:id/reset", handlers.ResetBatchRun)

	v1.Get("/workflows/:runId/:versionId", handlers.GetWorkflow)
	v1.Post("/events", handlers.PostEvents)

	app.Get("/health", handlers.HealthCheck)

	return app
}

// Start serves until ctx is done, then shuts the server down.
func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	go func() {
		<-ctx.Done()

		err := app.ShutdownWithContext(context.WithoutCancel(ctx))
		if err != nil {
			a.logger.ErrorContext(ctx, "Failed to shut down API", "error", err)
		}
	}()

	return app.Listen(":" + strconv.Itoa(port))
}
