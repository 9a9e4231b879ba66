// Package schedule provides a cron-based trigger source.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pushgate/pushgate/pkg/models"
	"github.com/pushgate/pushgate/pkg/triggers"
	"github.com/robfig/cron/v3"
)

// Trigger fires a trigger event for a pipeline on a cron schedule. Scheduled
// events always target the head of the configured ref.
type Trigger struct {
	logger     *slog.Logger
	pipelineID string
	cronExpr   string
	ref        string
	cron       *cron.Cron
	callback   triggers.Callback
	mu         sync.Mutex
	started    bool
}

// NewTrigger creates a schedule trigger from a binding configuration. The
// configuration requires "cron" (standard five-field expression, @every and
// descriptors accepted) and "ref".
func NewTrigger(logger *slog.Logger, pipelineID string, config map[string]any) *Trigger {
	cronExpr, _ := config["cron"].(string)
	ref, _ := config["ref"].(string)

	return &Trigger{
		logger:     logger.With("module", "trigger:schedule", "pipeline_id", pipelineID),
		pipelineID: pipelineID,
		cronExpr:   cronExpr,
		ref:        ref,
	}
}

// Validate checks the cron expression and ref.
func (t *Trigger) Validate() error {
	if t.cronExpr == "" {
		return triggers.ErrMissingCron
	}

	if t.ref == "" {
		return triggers.ErrMissingRef
	}

	_, err := cron.ParseStandard(t.cronExpr)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", t.cronExpr, err)
	}

	return nil
}

// Start begins firing on the schedule. It does not block.
func (t *Trigger) Start(ctx context.Context, callback triggers.Callback) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return nil
	}

	err := t.Validate()
	if err != nil {
		return err
	}

	t.callback = callback
	t.cron = cron.New()

	_, err = t.cron.AddFunc(t.cronExpr, func() {
		t.fire(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to register cron schedule: %w", err)
	}

	t.cron.Start()
	t.started = true

	t.logger.InfoContext(ctx, "Schedule trigger started", "cron", t.cronExpr, "ref", t.ref)

	return nil
}

// Stop halts the schedule and waits for a running fire to complete.
func (t *Trigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.started {
		return nil
	}

	stopCtx := t.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}

	t.started = false

	t.logger.InfoContext(ctx, "Schedule trigger stopped")

	return nil
}

func (t *Trigger) fire(ctx context.Context) {
	// Scheduled runs build whatever the ref currently points at.
	event := models.NewTriggerEvent(t.ref, "", "schedule")

	err := t.callback(ctx, t.pipelineID, event)
	if err != nil {
		t.logger.ErrorContext(ctx, "Schedule trigger callback failed", "error", err)
	}
}
