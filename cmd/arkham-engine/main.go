package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/arkhamlabs/arkham/pkg/cmd"
	"github.com/arkhamlabs/arkham/pkg/execution"
	"github.com/arkhamlabs/arkham/pkg/log"
	"github.com/arkhamlabs/arkham/pkg/otelhelper"
	"github.com/arkhamlabs/arkham/pkg/persistence"
	"github.com/arkhamlabs/arkham/pkg/schedule"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9090

func main() {
	logger := log.WithModule("engine")

	command := &cli.Command{
		Name:                  "arkham-engine",
		Usage:                 "Run the pipeline canvas execution engine",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the engine API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (file://... or redis://...)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Arkham engine")

			if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
				if _, err := otelhelper.NewTracer(ctx, "arkham-engine"); err != nil {
					logger.WarnContext(ctx, "Failed to initialize tracer", "error", err)
				}
			}

			store, err := cmd.NewPersistence(command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := store.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			registry := execution.NewRegistry()
			walker := execution.NewWalker(registry, eventBus, logger)
			orchestrator := execution.NewOrchestrator(registry, walker, eventBus, store, logger)

			// Schedule fires run the target node, which for group nodes
			// walks the whole group.
			engine := schedule.NewEngine(func(fireCtx context.Context, workspaceID, nodeID string) {
				workspace, err := store.WorkspaceByID(fireCtx, workspaceID)
				if err != nil {
					logger.Error("Scheduled run lost its workspace",
						"workspace_id", workspaceID, "node_id", nodeID, "error", err)

					return
				}

				err = orchestrator.RunNode(fireCtx, workspace, nodeID)
				if err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("Scheduled run failed",
						"workspace_id", workspaceID, "node_id", nodeID, "error", err)
				}
			}, eventBus, logger)

			armStoredSchedules(ctx, logger, store, engine)

			api := NewAPI(logger, store, orchestrator, engine)

			return api.Start(command.Int("port"))
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}

// armStoredSchedules re-arms every enabled schedule found in the store
// so timers survive an engine restart.
func armStoredSchedules(
	ctx context.Context,
	logger *slog.Logger,
	store persistence.Persistence,
	engine *schedule.Engine,
) {
	workspaces, err := store.Workspaces(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load workspaces for schedule arming", "error", err)

		return
	}

	for _, workspace := range workspaces {
		engine.ArmAll(ctx, workspace)
	}
}
