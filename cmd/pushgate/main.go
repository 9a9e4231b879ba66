// Package main provides the pushgate CLI for local, one-shot pipeline runs.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pushgate/pushgate/pkg/cmd"
	"github.com/pushgate/pushgate/pkg/log"
	"github.com/pushgate/pushgate/pkg/models"
	"github.com/pushgate/pushgate/pkg/pipeline"
	"github.com/pushgate/pushgate/pkg/runner"
	cli "github.com/urfave/cli/v3"
)

const (
	exitFailed    = 1
	exitCancelled = 130
)

func main() {
	command := &cli.Command{
		Name:                  "pushgate",
		Usage:                 "Run and validate build verification pipelines",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			{
				Name:    "run",
				Aliases: []string{"r"},
				Usage:   "Execute a pipeline once for a ref and commit",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "pipeline",
						Aliases: []string{"f"},
						Usage:   "Pipeline definition file (built-in Rust nightly gate if omitted)",
					},
					&cli.StringFlag{
						Name:     "ref",
						Usage:    "Ref the run is for",
						Required: true,
						Sources:  cli.EnvVars("PUSHGATE_REF"),
					},
					&cli.StringFlag{
						Name:    "commit",
						Usage:   "Commit to check out (defaults to the ref head)",
						Sources: cli.EnvVars("PUSHGATE_COMMIT"),
					},
					&cli.StringFlag{
						Name:    "workdir",
						Usage:   "Directory the steps run in",
						Value:   ".",
						Sources: cli.EnvVars("PUSHGATE_WORKDIR"),
					},
					&cli.StringFlag{
						Name:    "database-url",
						Usage:   "Database connection URL for persistence",
						Value:   "file://.pushgate",
						Sources: cli.EnvVars("DATABASE_URL"),
					},
					&cli.StringFlag{
						Name:    "log-level",
						Usage:   "Log level (debug, info, warn, error)",
						Value:   "info",
						Sources: cli.EnvVars("LOG_LEVEL"),
					},
				},
				Action: runAction,
			},
			{
				Name:    "validate",
				Aliases: []string{"v"},
				Usage:   "Validate a pipeline definition file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "pipeline",
						Aliases:  []string{"f"},
						Usage:    "Pipeline definition file",
						Required: true,
					},
				},
				Action: validateAction,
			},
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitFailed)
	}
}

func runAction(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))
	logger := log.WithModule("pushgate")

	p, err := loadPipeline(command.String("pipeline"))
	if err != nil {
		return err
	}

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

	err = store.SavePipeline(ctx, p)
	if err != nil {
		return err
	}

	// Ctrl-C terminates the in-flight step and records the run as cancelled.
	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	trigger := models.NewTriggerEvent(command.String("ref"), command.String("commit"), "cli")
	run := models.NewRun(p.ID, trigger)

	shell := runner.NewShellRunner(logger, command.String("workdir"))
	r := runner.NewRunner(logger, store, nil, shell, "cli")

	err = r.Execute(runCtx, p, run)
	if err != nil {
		return err
	}

	switch run.Status {
	case models.RunStatusSucceeded:
		return nil
	case models.RunStatusCancelled:
		return cli.Exit(fmt.Sprintf("run %s cancelled after %d steps", run.ID, len(run.Steps)), exitCancelled)
	default:
		failed := run.Steps[len(run.Steps)-1]

		return cli.Exit(fmt.Sprintf("run %s failed at step %d (%s): exit code %d\n%s",
			run.ID, run.FailedStep, failed.Name, failed.ExitCode, failed.Output), exitFailed)
	}
}

func validateAction(_ context.Context, command *cli.Command) error {
	path := command.String("pipeline")

	p, err := pipeline.Load(path)
	if err != nil {
		return cli.Exit(err.Error(), exitFailed)
	}

	fmt.Printf("%s: pipeline %q is valid (%d steps)\n", path, p.ID, len(p.Steps))

	return nil
}

func loadPipeline(path string) (*models.Pipeline, error) {
	if path == "" {
		return pipeline.Default(), nil
	}

	return pipeline.Load(path)
}
