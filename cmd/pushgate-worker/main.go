package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	"github.com/pushgate/pushgate/pkg/cmd"
	"github.com/pushgate/pushgate/pkg/log"
	"github.com/pushgate/pushgate/pkg/otelhelper"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "pushgate-worker",
		EnableShellCompletion: true,
		Usage:                 "Start a worker to execute queued pipeline runs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (kafka, gochannel)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "workdir",
				Usage:   "Directory where run workspaces are created",
				Value:   "./workspaces",
				Sources: cli.EnvVars("PUSHGATE_WORKDIR"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OTLP trace export for runs",
				Sources: cli.EnvVars("TRACING_ENABLED"),
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

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("pushgate-worker").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing Pushgate Worker")

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), "pushgate-worker", logger)
			if err != nil {
				return err
			}

			defer func() {
				err := eventBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				err := store.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			worker := NewWorkerManager(
				workerID,
				store,
				eventBus,
				logger,
				command.String("workdir"),
			)

			if command.Bool("tracing") {
				tracer, err := otelhelper.NewTracer(ctx, "pushgate-worker")
				if err != nil {
					return err
				}

				worker = worker.WithTracer(tracer)
			}

			err = worker.Start(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start worker", "error", err)
			}

			return err
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
