package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/pushgate/pushgate/pkg/channels/gochannel"
	"github.com/pushgate/pushgate/pkg/events"
	"github.com/pushgate/pushgate/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := NewWatermillEventBus(pub, sub)
	t.Cleanup(func() {
		_ = bus.Close()
	})

	return bus
}

func TestWatermillEventBus_PublishAndHandle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newTestBus(t)

	received := make(chan *events.RunQueued, 1)

	err := bus.Handle(events.RunQueuedEvent, func(_ context.Context, event any) error {
		queued, ok := event.(*events.RunQueued)
		if ok {
			received <- queued
		}

		return nil
	})
	require.NoError(t, err)
	require.NoError(t, bus.Subscribe(ctx))

	queued := events.RunQueued{
		BaseEvent: events.NewBaseEvent(events.RunQueuedEvent, "run-42", "rust-nightly"),
		Trigger:   models.NewTriggerEvent("refs/heads/main", "abc123", "webhook"),
	}
	require.NoError(t, bus.Publish(ctx, "run-42", queued))

	select {
	case got := <-received:
		assert.Equal(t, "run-42", got.RunID)
		assert.Equal(t, "rust-nightly", got.PipelineID)
		assert.Equal(t, "abc123", got.Trigger.Commit)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for run.queued event")
	}
}

func TestWatermillEventBus_UnhandledTypesAreAcked(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newTestBus(t)

	received := make(chan any, 2)

	// only run.failed is handled; the run.started published first must not
	// block delivery of the later event
	err := bus.Handle(events.RunFailedEvent, func(_ context.Context, event any) error {
		received <- event

		return nil
	})
	require.NoError(t, err)
	require.NoError(t, bus.Subscribe(ctx))

	started := events.RunStarted{BaseEvent: events.NewBaseEvent(events.RunStartedEvent, "run-1", "p")}
	require.NoError(t, bus.Publish(ctx, "run-1", started))

	failed := events.RunFailed{
		BaseEvent:  events.NewBaseEvent(events.RunFailedEvent, "run-1", "p"),
		FailedStep: 5,
		ExitCode:   1,
	}
	require.NoError(t, bus.Publish(ctx, "run-1", failed))

	select {
	case got := <-received:
		failedEvent, ok := got.(*events.RunFailed)
		require.True(t, ok)
		assert.Equal(t, 5, failedEvent.FailedStep)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for run.failed event")
	}
}

func TestWatermillEventBus_GenerateID(t *testing.T) {
	bus := newTestBus(t)

	first := bus.GenerateID()
	second := bus.GenerateID()

	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}
