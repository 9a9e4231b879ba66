package runner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pushgate/pushgate/pkg/eventbus"
	"github.com/pushgate/pushgate/pkg/events"
	"github.com/pushgate/pushgate/pkg/models"
	"github.com/pushgate/pushgate/pkg/otelhelper"
	"github.com/pushgate/pushgate/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Environment variables injected into every step command.
const (
	EnvRef    = "PUSHGATE_REF"
	EnvCommit = "PUSHGATE_COMMIT"
	EnvRunID  = "PUSHGATE_RUN_ID"
)

// Runner drives a run through its full step sequence: strictly in order, one
// step at a time, stopping at the first non-zero exit. Each state change is
// persisted and published before the next step starts.
type Runner struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventPublisher
	commands    CommandRunner
	tracer      trace.Tracer
	workerID    string
}

// NewRunner creates a runner. The event publisher may be nil for local
// one-shot execution.
func NewRunner(
	logger *slog.Logger,
	store persistence.Persistence,
	eventBus eventbus.EventPublisher,
	commands CommandRunner,
	workerID string,
) *Runner {
	return &Runner{
		logger:      logger.With("module", "runner", "worker_id", workerID),
		persistence: store,
		eventBus:    eventBus,
		commands:    commands,
		tracer:      noop.NewTracerProvider().Tracer("pushgate.runner"),
		workerID:    workerID,
	}
}

// WithTracer enables span emission for runs and steps.
func (r *Runner) WithTracer(tracer trace.Tracer) *Runner {
	r.tracer = tracer

	return r
}

// Execute runs the pipeline's steps for the given pending run. The run's
// terminal status reports the outcome; the returned error covers only
// persistence and publishing failures, never step failures.
func (r *Runner) Execute(ctx context.Context, pipeline *models.Pipeline, run *models.Run) error {
	ctx, span := otelhelper.StartSpan(ctx, r.tracer, "run.execute",
		attribute.String(otelhelper.PipelineIDKey, pipeline.ID),
		attribute.String(otelhelper.RunIDKey, run.ID),
		attribute.String(otelhelper.TriggerRefKey, run.Trigger.Ref),
	)
	defer span.End()

	err := run.Start()
	if err != nil {
		return fmt.Errorf("failed to start run %s: %w", run.ID, err)
	}

	err = r.saveRun(ctx, run)
	if err != nil {
		return err
	}

	startedEvent := events.RunStarted{
		BaseEvent: r.newBaseEvent(events.RunStartedEvent, run),
		Trigger:   run.Trigger,
		StepCount: len(pipeline.Steps),
	}

	err = r.publish(ctx, run.ID, startedEvent)
	if err != nil {
		return err
	}

	r.logger.InfoContext(ctx, "Run started",
		"run_id", run.ID,
		"pipeline_id", pipeline.ID,
		"ref", run.Trigger.Ref,
		"commit", run.Trigger.Commit,
		"steps", len(pipeline.Steps),
	)

	runEnv := map[string]string{
		EnvRef:    run.Trigger.Ref,
		EnvCommit: run.Trigger.Commit,
		EnvRunID:  run.ID,
	}

	for i, step := range pipeline.Steps {
		stepIndex := i + 1

		result, err := r.executeStep(ctx, run, step, stepIndex, runEnv)
		if err != nil {
			return err
		}

		if result.Cancelled {
			return r.finishCancelled(ctx, run, span)
		}

		if result.ExitCode != 0 {
			return r.finishFailed(ctx, run, step, stepIndex, result.ExitCode, span)
		}
	}

	err = run.Succeed()
	if err != nil {
		return fmt.Errorf("failed to mark run %s succeeded: %w", run.ID, err)
	}

	err = r.saveRun(ctx, run)
	if err != nil {
		return err
	}

	succeededEvent := events.RunSucceeded{
		BaseEvent:     r.newBaseEvent(events.RunSucceededEvent, run),
		StepsExecuted: len(run.Steps),
		Duration:      run.Duration(),
	}

	err = r.publish(ctx, run.ID, succeededEvent)
	if err != nil {
		return err
	}

	r.logger.InfoContext(ctx, "Run succeeded", "run_id", run.ID, "duration", run.Duration())

	return nil
}

func (r *Runner) executeStep(
	ctx context.Context,
	run *models.Run,
	step models.Step,
	stepIndex int,
	runEnv map[string]string,
) (models.StepResult, error) {
	stepCtx, stepSpan := otelhelper.StartSpan(ctx, r.tracer, "run.step",
		attribute.String(otelhelper.RunIDKey, run.ID),
		attribute.Int(otelhelper.StepIndexKey, stepIndex),
		attribute.String(otelhelper.StepNameKey, step.Name),
	)
	defer stepSpan.End()

	startedEvent := events.StepStarted{
		BaseEvent: r.newBaseEvent(events.StepStartedEvent, run),
		StepIndex: stepIndex,
		StepName:  step.Name,
		Command:   step.Run,
	}

	err := r.publish(ctx, run.ID, startedEvent)
	if err != nil {
		return models.StepResult{}, err
	}

	r.logger.InfoContext(ctx, "Step started",
		"run_id", run.ID,
		"step_index", stepIndex,
		"step", step.Name,
	)

	result := r.commands.Run(stepCtx, step, runEnv)
	stepSpan.SetAttributes(attribute.Int(otelhelper.StepExitCodeKey, result.ExitCode))

	run.RecordStep(result)

	if result.Cancelled {
		// Keep recording state even though the context is gone.
		ctx = context.WithoutCancel(ctx)
	}

	err = r.saveRun(ctx, run)
	if err != nil {
		return models.StepResult{}, err
	}

	finishedEvent := events.StepFinished{
		BaseEvent: r.newBaseEvent(events.StepFinishedEvent, run),
		StepIndex: stepIndex,
		StepName:  step.Name,
		ExitCode:  result.ExitCode,
		Duration:  result.FinishedAt.Sub(result.StartedAt),
	}

	err = r.publish(ctx, run.ID, finishedEvent)
	if err != nil {
		return models.StepResult{}, err
	}

	r.logger.InfoContext(ctx, "Step finished",
		"run_id", run.ID,
		"step_index", stepIndex,
		"step", step.Name,
		"exit_code", result.ExitCode,
	)

	return result, nil
}

func (r *Runner) finishFailed(
	ctx context.Context,
	run *models.Run,
	step models.Step,
	stepIndex int,
	exitCode int,
	span trace.Span,
) error {
	stepErr := fmt.Errorf("step %d (%s) exited with code %d", stepIndex, step.Name, exitCode)

	err := run.Fail(stepIndex, stepErr)
	if err != nil {
		return fmt.Errorf("failed to mark run %s failed: %w", run.ID, err)
	}

	otelhelper.SetError(span, stepErr,
		attribute.Int(otelhelper.StepIndexKey, stepIndex),
		attribute.String(otelhelper.StepNameKey, step.Name),
	)

	err = r.saveRun(ctx, run)
	if err != nil {
		return err
	}

	failedEvent := events.RunFailed{
		BaseEvent:  r.newBaseEvent(events.RunFailedEvent, run),
		FailedStep: stepIndex,
		StepName:   step.Name,
		ExitCode:   exitCode,
		Error:      run.Error,
		Duration:   run.Duration(),
	}

	err = r.publish(ctx, run.ID, failedEvent)
	if err != nil {
		return err
	}

	r.logger.WarnContext(ctx, "Run failed",
		"run_id", run.ID,
		"failed_step", stepIndex,
		"step", step.Name,
		"exit_code", exitCode,
	)

	return nil
}

func (r *Runner) finishCancelled(ctx context.Context, run *models.Run, span trace.Span) error {
	// The incoming context is already cancelled; state still has to be
	// persisted and published.
	ctx = context.WithoutCancel(ctx)

	err := run.Cancel()
	if err != nil {
		return fmt.Errorf("failed to mark run %s cancelled: %w", run.ID, err)
	}

	span.AddEvent("run_cancelled")

	err = r.saveRun(ctx, run)
	if err != nil {
		return err
	}

	cancelledEvent := events.RunCancelled{
		BaseEvent:     r.newBaseEvent(events.RunCancelledEvent, run),
		StepsExecuted: len(run.Steps),
		Duration:      run.Duration(),
	}

	err = r.publish(ctx, run.ID, cancelledEvent)
	if err != nil {
		return err
	}

	r.logger.InfoContext(ctx, "Run cancelled",
		"run_id", run.ID,
		"steps_executed", len(run.Steps),
	)

	return nil
}

func (r *Runner) newBaseEvent(eventType events.EventType, run *models.Run) events.BaseEvent {
	base := events.NewBaseEvent(eventType, run.ID, run.PipelineID)
	base.WorkerID = r.workerID

	return base
}

func (r *Runner) saveRun(ctx context.Context, run *models.Run) error {
	err := r.persistence.SaveRun(ctx, run)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}

	return nil
}

func (r *Runner) publish(ctx context.Context, key string, event eventbus.Event) error {
	if r.eventBus == nil {
		return nil
	}

	err := r.eventBus.Publish(ctx, key, event)
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.GetType(), err)
	}

	return nil
}
