// Package main provides the Arkham engine server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/arkhamlabs/arkham/pkg/execution"
	"github.com/arkhamlabs/arkham/pkg/persistence"
	"github.com/arkhamlabs/arkham/pkg/schedule"
	"github.com/arkhamlabs/arkham/pkg/services"
	"github.com/arkhamlabs/arkham/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger       *slog.Logger
	persistence  persistence.Persistence
	orchestrator *execution.Orchestrator
	engine       *schedule.Engine
	validate     *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	store persistence.Persistence,
	orchestrator *execution.Orchestrator,
	engine *schedule.Engine,
) *API {
	return &API{
		logger:       logger,
		persistence:  store,
		orchestrator: orchestrator,
		engine:       engine,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	workspaceService := services.NewWorkspace(a.persistence)

	handlers := web.NewAPIHandlers(workspaceService, a.orchestrator, a.engine, a.validate, a.logger)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Arkham engine")
	})

	w := app.Group("/workspaces")
	w.Get("/", handlers.GetWorkspaces)
	w.Post("/", handlers.CreateWorkspace)
	w.Get("/:id", handlers.GetWorkspace)
	w.Put("/:id", handlers.UpdateWorkspace)
	w.Delete("/:id", handlers.DeleteWorkspace)

	// Run orchestration:
	w.Get("/:id/status", handlers.GetStatus)
	w.Post("/:id/nodes/:nodeId/run", handlers.RunNode)
	w.Post("/:id/nodes/:nodeId/stop", handlers.StopNode)
	w.Post("/:id/groups/:groupId/run", handlers.RunGroup)
	w.Post("/:id/groups/:groupId/stop", handlers.StopGroup)
	w.Post("/:id/run-all", handlers.RunAll)
	w.Post("/:id/stop-all", handlers.StopAll)

	// Schedules:
	w.Put("/:id/nodes/:nodeId/schedule", handlers.UpdateSchedule)
	w.Delete("/:id/nodes/:nodeId/schedule", handlers.DeleteSchedule)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	return a.App().Listen(":" + strconv.Itoa(port))
}
