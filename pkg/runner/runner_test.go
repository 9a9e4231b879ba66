package runner_test

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pushgate/pushgate/pkg/eventbus"
	"github.com/pushgate/pushgate/pkg/events"
	"github.com/pushgate/pushgate/pkg/models"
	"github.com/pushgate/pushgate/pkg/persistence"
	"github.com/pushgate/pushgate/pkg/persistence/file"
	"github.com/pushgate/pushgate/pkg/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingPublisher captures published events in order.
type recordingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

func (p *recordingPublisher) types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()

	types := make([]events.EventType, 0, len(p.events))
	for _, event := range p.events {
		types = append(types, event.GetType())
	}

	return types
}

func newTestRunner(t *testing.T) (*runner.Runner, persistence.Persistence, *recordingPublisher, string) {
	t.Helper()

	workDir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	store := file.NewPersistence(t.TempDir())
	publisher := &recordingPublisher{}
	shell := runner.NewShellRunner(logger, workDir)

	return runner.NewRunner(logger, store, publisher, shell, "worker-test"), store, publisher, workDir
}

func sevenSteps(failAt int) []models.Step {
	steps := make([]models.Step, 0, 7)

	for i := 1; i <= 7; i++ {
		command := "true"
		if i == failAt {
			command = "exit 1"
		}

		steps = append(steps, models.Step{
			Name: fmt.Sprintf("Step %d", i),
			Run:  command,
		})
	}

	return steps
}

func newTestRun(pipelineID string) *models.Run {
	return models.NewRun(pipelineID, models.NewTriggerEvent("refs/heads/main", "abc123", "webhook"))
}

func TestRunner_AllStepsSucceed(t *testing.T) {
	r, store, publisher, _ := newTestRunner(t)
	ctx := context.Background()

	pipeline := &models.Pipeline{ID: "rust-nightly", Name: "Rust nightly gate", Steps: sevenSteps(0)}
	run := newTestRun(pipeline.ID)

	require.NoError(t, r.Execute(ctx, pipeline, run))

	assert.Equal(t, models.RunStatusSucceeded, run.Status)
	assert.Equal(t, 0, run.FailedStep)
	assert.Len(t, run.Steps, 7)

	loaded, err := store.RunByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSucceeded, loaded.Status)

	types := publisher.types()
	assert.Equal(t, events.RunStartedEvent, types[0])
	assert.Equal(t, events.RunSucceededEvent, types[len(types)-1])
	// RunStarted + 7 step started/finished pairs + RunSucceeded
	assert.Len(t, types, 16)
}

func TestRunner_FailStopsAtFirstFailure(t *testing.T) {
	r, store, publisher, _ := newTestRunner(t)
	ctx := context.Background()

	pipeline := &models.Pipeline{ID: "rust-nightly", Name: "Rust nightly gate", Steps: sevenSteps(5)}
	run := newTestRun(pipeline.ID)

	require.NoError(t, r.Execute(ctx, pipeline, run))

	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Equal(t, 5, run.FailedStep)
	// Exactly five steps executed, none after the failing one.
	assert.Len(t, run.Steps, 5)
	assert.Equal(t, 1, run.Steps[4].ExitCode)

	loaded, err := store.RunByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, loaded.FailedStep)

	types := publisher.types()
	assert.Equal(t, events.RunFailedEvent, types[len(types)-1])
}

func TestRunner_FailOnEarlyProvisioningStep(t *testing.T) {
	r, _, _, _ := newTestRunner(t)
	ctx := context.Background()

	pipeline := &models.Pipeline{ID: "rust-nightly", Name: "Rust nightly gate", Steps: sevenSteps(3)}
	run := newTestRun(pipeline.ID)

	require.NoError(t, r.Execute(ctx, pipeline, run))

	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Equal(t, 3, run.FailedStep)
	assert.Len(t, run.Steps, 3)
}

func TestRunner_LintShortCircuit(t *testing.T) {
	r, _, _, workDir := newTestRunner(t)
	ctx := context.Background()

	marker := filepath.Join(workDir, "fmt-check-ran")

	steps := sevenSteps(0)
	steps[6] = models.Step{Name: "Lint", Run: "exit 1 && touch " + marker}

	pipeline := &models.Pipeline{ID: "rust-nightly", Name: "Rust nightly gate", Steps: steps}
	run := newTestRun(pipeline.ID)

	require.NoError(t, r.Execute(ctx, pipeline, run))

	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Equal(t, 7, run.FailedStep)
	// The format check after the failing lint never ran.
	assert.NoFileExists(t, marker)
}

func TestRunner_EnvReachesSteps(t *testing.T) {
	r, _, _, workDir := newTestRunner(t)
	ctx := context.Background()

	pipeline := &models.Pipeline{
		ID:   "rust-nightly",
		Name: "Rust nightly gate",
		Steps: []models.Step{
			{Name: "Record", Run: `printf '%s %s %s' "$PUSHGATE_REF" "$PUSHGATE_COMMIT" "$PUSHGATE_RUN_ID" > env.txt`},
		},
	}
	run := newTestRun(pipeline.ID)

	require.NoError(t, r.Execute(ctx, pipeline, run))
	require.Equal(t, models.RunStatusSucceeded, run.Status)

	recorded, err := os.ReadFile(filepath.Join(workDir, "env.txt"))
	require.NoError(t, err)
	assert.Equal(t, "refs/heads/main abc123 "+run.ID, string(recorded))
}

func TestRunner_Cancellation(t *testing.T) {
	r, store, publisher, _ := newTestRunner(t)

	ctx, cancel := context.WithCancel(context.Background())

	pipeline := &models.Pipeline{
		ID:   "rust-nightly",
		Name: "Rust nightly gate",
		Steps: []models.Step{
			{Name: "Fast", Run: "true"},
			{Name: "Slow", Run: "sleep 30"},
			{Name: "Never", Run: "touch never-ran"},
		},
	}
	run := newTestRun(pipeline.ID)

	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	require.NoError(t, r.Execute(ctx, pipeline, run))

	assert.Equal(t, models.RunStatusCancelled, run.Status)
	assert.Equal(t, 0, run.FailedStep)
	assert.Len(t, run.Steps, 2)
	assert.True(t, run.Steps[1].Cancelled)

	loaded, err := store.RunByID(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCancelled, loaded.Status)

	types := publisher.types()
	assert.Equal(t, events.RunCancelledEvent, types[len(types)-1])
}

func TestRunner_Idempotence(t *testing.T) {
	ctx := context.Background()

	pipeline := &models.Pipeline{ID: "rust-nightly", Name: "Rust nightly gate", Steps: sevenSteps(6)}

	for range 3 {
		r, _, _, _ := newTestRunner(t)
		run := newTestRun(pipeline.ID)

		require.NoError(t, r.Execute(ctx, pipeline, run))
		assert.Equal(t, models.RunStatusFailed, run.Status)
		assert.Equal(t, 6, run.FailedStep)
	}
}

func TestRunner_StartingTwiceFails(t *testing.T) {
	r, _, _, _ := newTestRunner(t)
	ctx := context.Background()

	pipeline := &models.Pipeline{ID: "rust-nightly", Name: "Rust nightly gate", Steps: sevenSteps(0)}
	run := newTestRun(pipeline.ID)

	require.NoError(t, r.Execute(ctx, pipeline, run))

	err := r.Execute(ctx, pipeline, run)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}
