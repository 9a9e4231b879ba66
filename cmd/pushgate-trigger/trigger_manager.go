package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pushgate/pushgate/pkg/eventbus"
	"github.com/pushgate/pushgate/pkg/events"
	"github.com/pushgate/pushgate/pkg/models"
	"github.com/pushgate/pushgate/pkg/persistence"
	"github.com/pushgate/pushgate/pkg/triggers"
	"github.com/pushgate/pushgate/pkg/triggers/queue"
	"github.com/pushgate/pushgate/pkg/triggers/schedule"
)

// TriggerManager starts the schedule and queue trigger bindings of every
// stored pipeline and queues a run for each event they emit. Webhook bindings
// are served by the API and ignored here.
type TriggerManager struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	running     []triggers.Trigger
}

func NewTriggerManager(
	logger *slog.Logger,
	store persistence.Persistence,
	eventBus eventbus.EventBus,
) *TriggerManager {
	return &TriggerManager{
		logger:      logger.With("module", "pushgate-trigger"),
		persistence: store,
		eventBus:    eventBus,
	}
}

func (m *TriggerManager) Start(ctx context.Context) error {
	pipelines, err := m.persistence.Pipelines(ctx)
	if err != nil {
		return fmt.Errorf("failed to load pipelines: %w", err)
	}

	for _, pipeline := range pipelines {
		err = m.startPipelineTriggers(ctx, pipeline)
		if err != nil {
			m.stopAll(ctx)

			return err
		}
	}

	if len(m.running) == 0 {
		m.logger.WarnContext(ctx, "No schedule or queue trigger bindings found")
	}

	m.logger.InfoContext(ctx, "Trigger daemon started", "triggers", len(m.running))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
	case <-ctx.Done():
	}

	m.logger.InfoContext(ctx, "Shutting down trigger daemon...")
	m.stopAll(ctx)

	return nil
}

func (m *TriggerManager) startPipelineTriggers(ctx context.Context, pipeline *models.Pipeline) error {
	for _, binding := range pipeline.Triggers {
		var trigger triggers.Trigger

		switch binding.Type {
		case "schedule":
			trigger = schedule.NewTrigger(m.logger, pipeline.ID, binding.Configuration)
		case "queue":
			trigger = queue.NewTrigger(m.logger, pipeline.ID, binding.Configuration)
		default:
			continue
		}

		err := trigger.Start(ctx, m.queueRun)
		if err != nil {
			return fmt.Errorf("failed to start %s trigger for pipeline %s: %w", binding.Type, pipeline.ID, err)
		}

		m.logger.InfoContext(ctx, "Trigger started", "pipeline_id", pipeline.ID, "type", binding.Type)
		m.running = append(m.running, trigger)
	}

	return nil
}

// queueRun creates a pending run for a trigger event and announces it on the
// bus.
func (m *TriggerManager) queueRun(ctx context.Context, pipelineID string, event models.TriggerEvent) error {
	run := models.NewRun(pipelineID, event)

	err := m.persistence.SaveRun(ctx, run)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}

	queuedEvent := events.RunQueued{
		BaseEvent: events.NewBaseEvent(events.RunQueuedEvent, run.ID, pipelineID),
		Trigger:   event,
	}

	err = m.eventBus.Publish(ctx, run.ID, queuedEvent)
	if err != nil {
		return fmt.Errorf("failed to publish run queued event: %w", err)
	}

	m.logger.InfoContext(ctx, "Run queued",
		"run_id", run.ID,
		"pipeline_id", pipelineID,
		"ref", event.Ref,
		"source", event.Source,
	)

	return nil
}

func (m *TriggerManager) stopAll(ctx context.Context) {
	for _, trigger := range m.running {
		err := trigger.Stop(ctx)
		if err != nil {
			m.logger.ErrorContext(ctx, "Failed to stop trigger", "error", err)
		}
	}

	m.running = nil
}
