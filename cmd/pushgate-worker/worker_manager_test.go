package main

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/pushgate/pushgate/pkg/channels/gochannel"
	"github.com/pushgate/pushgate/pkg/eventbus"
	"github.com/pushgate/pushgate/pkg/events"
	"github.com/pushgate/pushgate/pkg/log"
	"github.com/pushgate/pushgate/pkg/models"
	"github.com/pushgate/pushgate/pkg/persistence"
	"github.com/pushgate/pushgate/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupWorker(t *testing.T) (*WorkerManager, persistence.Persistence, eventbus.EventBus) {
	t.Helper()

	log.Setup("error")

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	store := file.NewPersistence(t.TempDir())

	worker := NewWorkerManager("worker-test", store, bus, log.WithModule("test"), t.TempDir())

	return worker, store, bus
}

func queueRun(t *testing.T, store persistence.Persistence, steps []models.Step) (*models.Run, *models.Pipeline) {
	t.Helper()

	pipeline := &models.Pipeline{ID: "rust-nightly", Name: "Rust nightly gate", Steps: steps}
	require.NoError(t, store.SavePipeline(context.Background(), pipeline))

	run := models.NewRun(pipeline.ID, models.NewTriggerEvent("refs/heads/main", "abc123", "webhook"))
	require.NoError(t, store.SaveRun(context.Background(), run))

	return run, pipeline
}

func queuedEvent(run *models.Run) *events.RunQueued {
	return &events.RunQueued{
		BaseEvent: events.NewBaseEvent(events.RunQueuedEvent, run.ID, run.PipelineID),
		Trigger:   run.Trigger,
	}
}

func TestWorkerManager_ExecutesQueuedRun(t *testing.T) {
	worker, store, _ := setupWorker(t)
	ctx := context.Background()

	run, _ := queueRun(t, store, []models.Step{
		{Name: "Build", Run: "true"},
		{Name: "Test", Run: "true"},
	})

	require.NoError(t, worker.handleRunQueued(ctx, queuedEvent(run)))
	worker.wg.Wait()

	loaded, err := store.RunByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSucceeded, loaded.Status)
	assert.Len(t, loaded.Steps, 2)
}

func TestWorkerManager_RecordsFailure(t *testing.T) {
	worker, store, _ := setupWorker(t)
	ctx := context.Background()

	run, _ := queueRun(t, store, []models.Step{
		{Name: "Build", Run: "exit 1"},
		{Name: "Test", Run: "true"},
	})

	require.NoError(t, worker.handleRunQueued(ctx, queuedEvent(run)))
	worker.wg.Wait()

	loaded, err := store.RunByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, loaded.Status)
	assert.Equal(t, 1, loaded.FailedStep)
	assert.Len(t, loaded.Steps, 1)
}

func TestWorkerManager_SkipsFinishedRun(t *testing.T) {
	worker, store, _ := setupWorker(t)
	ctx := context.Background()

	run, _ := queueRun(t, store, []models.Step{{Name: "Build", Run: "true"}})
	require.NoError(t, run.Cancel())
	require.NoError(t, store.SaveRun(ctx, run))

	require.NoError(t, worker.handleRunQueued(ctx, queuedEvent(run)))

	loaded, err := store.RunByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCancelled, loaded.Status)
	assert.Empty(t, loaded.Steps)
}

func TestWorkerManager_CancelRequestTerminatesRun(t *testing.T) {
	worker, store, _ := setupWorker(t)
	ctx := context.Background()

	run, _ := queueRun(t, store, []models.Step{
		{Name: "Fast", Run: "true"},
		{Name: "Slow", Run: "sleep 30"},
	})

	require.NoError(t, worker.handleRunQueued(ctx, queuedEvent(run)))

	// Wait for the run to register as in-flight, then request cancellation.
	require.Eventually(t, func() bool {
		_, found := worker.lookup(run.ID)

		return found
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, worker.handleCancelRequested(ctx, &events.RunCancelRequested{
		BaseEvent: events.NewBaseEvent(events.RunCancelRequestedEvent, run.ID, run.PipelineID),
	}))

	worker.wg.Wait()

	loaded, err := store.RunByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCancelled, loaded.Status)
}

func TestWorkerManager_CancelRequestOverBus(t *testing.T) {
	worker, store, bus := setupWorker(t)
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	run, _ := queueRun(t, store, []models.Step{{Name: "Slow", Run: "sleep 30"}})

	require.NoError(t, bus.Handle(events.RunQueuedEvent, worker.handleRunQueued))
	require.NoError(t, bus.Handle(events.RunCancelRequestedEvent, worker.handleCancelRequested))
	require.NoError(t, bus.Subscribe(ctx))

	require.NoError(t, bus.Publish(ctx, run.ID, *queuedEvent(run)))

	require.Eventually(t, func() bool {
		_, found := worker.lookup(run.ID)

		return found
	}, 5*time.Second, 10*time.Millisecond)

	// The cancel request shares the topic with the queued event; it must be
	// consumed while the run is still executing, not after it finishes.
	require.NoError(t, bus.Publish(ctx, run.ID, events.RunCancelRequested{
		BaseEvent: events.NewBaseEvent(events.RunCancelRequestedEvent, run.ID, run.PipelineID),
	}))

	require.Eventually(t, func() bool {
		loaded, err := store.RunByID(ctx, run.ID)

		return err == nil && loaded.Status == models.RunStatusCancelled
	}, 5*time.Second, 25*time.Millisecond)
}

func TestWorkerManager_CancelRequestForPendingRun(t *testing.T) {
	worker, store, _ := setupWorker(t)
	ctx := context.Background()

	run, _ := queueRun(t, store, []models.Step{{Name: "Build", Run: "true"}})

	require.NoError(t, worker.handleCancelRequested(ctx, &events.RunCancelRequested{
		BaseEvent: events.NewBaseEvent(events.RunCancelRequestedEvent, run.ID, run.PipelineID),
	}))

	loaded, err := store.RunByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCancelled, loaded.Status)
}
