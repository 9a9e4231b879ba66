package main

import (
	"context"
	"os"

	"github.com/pushgate/pushgate/pkg/cmd"
	"github.com/pushgate/pushgate/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	logger := log.WithModule("pushgate-trigger")

	command := &cli.Command{
		Name:                  "pushgate-trigger",
		Usage:                 "Start schedule and queue triggers for stored pipelines",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
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
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Pushgate trigger daemon")

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

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), "pushgate-trigger", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			manager := NewTriggerManager(logger, store, eventBus)

			err = manager.Start(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start trigger daemon", "error", err)
			}

			return err
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
