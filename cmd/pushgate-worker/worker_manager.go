package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/pushgate/pushgate/pkg/eventbus"
	"github.com/pushgate/pushgate/pkg/events"
	"github.com/pushgate/pushgate/pkg/persistence"
	"github.com/pushgate/pushgate/pkg/runner"
	"go.opentelemetry.io/otel/trace"
)

// WorkerManager consumes queued runs from the bus and executes them. Each run
// gets its own cancellable context so a cancel request can terminate the
// in-flight step.
type WorkerManager struct {
	id          string
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	workDir     string
	tracer      trace.Tracer

	mu       sync.Mutex
	inflight map[string]context.CancelFunc
	wg       sync.WaitGroup
}

func NewWorkerManager(
	id string,
	store persistence.Persistence,
	eventBus eventbus.EventBus,
	logger *slog.Logger,
	workDir string,
) *WorkerManager {
	return &WorkerManager{
		id:          id,
		logger:      logger.With("module", "pushgate-worker", "worker_id", id),
		persistence: store,
		eventBus:    eventBus,
		workDir:     workDir,
		inflight:    make(map[string]context.CancelFunc),
	}
}

// WithTracer enables span emission for executed runs.
func (w *WorkerManager) WithTracer(tracer trace.Tracer) *WorkerManager {
	w.tracer = tracer

	return w
}

func (w *WorkerManager) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker manager")

	err := w.eventBus.Handle(events.RunQueuedEvent, w.handleRunQueued)
	if err != nil {
		return err
	}

	err = w.eventBus.Handle(events.RunCancelRequestedEvent, w.handleCancelRequested)
	if err != nil {
		return err
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
	case <-ctx.Done():
	}

	w.logger.InfoContext(ctx, "Shutting down worker...")
	w.cancelAll()
	w.wg.Wait()

	return nil
}

func (w *WorkerManager) handleRunQueued(ctx context.Context, event any) error {
	queuedEvent, ok := event.(*events.RunQueued)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for RunQueued")

		return nil
	}

	logger := w.logger.With(
		"run_id", queuedEvent.RunID,
		"pipeline_id", queuedEvent.PipelineID,
		"event_id", queuedEvent.ID,
	)
	logger.InfoContext(ctx, "Processing queued run")

	run, err := w.persistence.RunByID(ctx, queuedEvent.RunID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to fetch run", "error", err)

		return err
	}

	if run.Status.Terminal() {
		// Cancelled before any worker picked it up.
		logger.InfoContext(ctx, "Skipping finished run", "status", run.Status)

		return nil
	}

	pipeline, err := w.persistence.PipelineByID(ctx, run.PipelineID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to fetch pipeline", "error", err)

		return err
	}

	runDir := filepath.Join(w.workDir, run.ID)

	err = os.MkdirAll(runDir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.register(run.ID, cancel)

	shell := runner.NewShellRunner(logger, runDir)

	r := runner.NewRunner(logger, w.persistence, w.eventBus, shell, w.id)
	if w.tracer != nil {
		r = r.WithTracer(w.tracer)
	}

	// Execution leaves the subscribe loop so a cancel request arriving on the
	// same topic is still consumed while the run is going. The queued message
	// is acked on dispatch; run state lives in the store.
	w.wg.Add(1)

	go func() {
		defer w.wg.Done()
		defer w.unregister(run.ID)
		defer cancel()

		err := r.Execute(runCtx, pipeline, run)
		if err != nil {
			logger.Error("Failed to execute run", "error", err)
		}
	}()

	return nil
}

func (w *WorkerManager) handleCancelRequested(ctx context.Context, event any) error {
	cancelEvent, ok := event.(*events.RunCancelRequested)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for RunCancelRequested")

		return nil
	}

	logger := w.logger.With("run_id", cancelEvent.RunID)

	if cancel, found := w.lookup(cancelEvent.RunID); found {
		logger.InfoContext(ctx, "Cancelling in-flight run")
		cancel()

		return nil
	}

	// Not running here. If it is still pending in the store, finish it now so
	// no worker picks it up later.
	run, err := w.persistence.RunByID(ctx, cancelEvent.RunID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to fetch run for cancellation", "error", err)

		return err
	}

	if run.Status.Terminal() {
		return nil
	}

	err = run.Cancel()
	if err != nil {
		return err
	}

	err = w.persistence.SaveRun(ctx, run)
	if err != nil {
		return err
	}

	cancelledEvent := events.RunCancelled{
		BaseEvent:     events.NewBaseEvent(events.RunCancelledEvent, run.ID, run.PipelineID),
		StepsExecuted: len(run.Steps),
		Reason:        "cancelled before execution",
		Duration:      run.Duration(),
	}
	cancelledEvent.WorkerID = w.id

	err = w.eventBus.Publish(ctx, run.ID, cancelledEvent)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to publish run cancelled event", "error", err)

		return err
	}

	logger.InfoContext(ctx, "Cancelled pending run")

	return nil
}

func (w *WorkerManager) register(runID string, cancel context.CancelFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.inflight[runID] = cancel
}

func (w *WorkerManager) unregister(runID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	delete(w.inflight, runID)
}

func (w *WorkerManager) lookup(runID string) (context.CancelFunc, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	cancel, found := w.inflight[runID]

	return cancel, found
}

func (w *WorkerManager) cancelAll() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for runID, cancel := range w.inflight {
		w.logger.Info("Cancelling run for shutdown", "run_id", runID)
		cancel()
	}
}
