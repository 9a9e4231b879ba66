package file

import (
	"context"
	"errors"
	"testing"

	"github.com/pushgate/pushgate/pkg/models"
	"github.com/pushgate/pushgate/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersistence_PipelineRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewPersistence(t.TempDir())

	pipeline := &models.Pipeline{
		ID:   "rust-nightly",
		Name: "Rust nightly gate",
		Steps: []models.Step{
			{Name: "Build", Run: "cargo build --verbose"},
			{Name: "Test", Run: "cargo test --verbose"},
		},
	}

	require.NoError(t, store.SavePipeline(ctx, pipeline))
	assert.False(t, pipeline.CreatedAt.IsZero())

	loaded, err := store.PipelineByID(ctx, "rust-nightly")
	require.NoError(t, err)
	assert.Equal(t, pipeline.ID, loaded.ID)
	require.Len(t, loaded.Steps, 2)
	assert.Equal(t, "cargo build --verbose", loaded.Steps[0].Run)

	all, err := store.Pipelines(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestPersistence_PipelineNotFound(t *testing.T) {
	ctx := context.Background()
	store := NewPersistence(t.TempDir())

	_, err := store.PipelineByID(ctx, "missing")
	require.Error(t, err)
	assert.True(t, persistence.IsPipelineNotFound(err))
	assert.True(t, errors.Is(err, persistence.ErrPipelineNotFound))
}

func TestPersistence_DeletePipeline(t *testing.T) {
	ctx := context.Background()
	store := NewPersistence(t.TempDir())

	pipeline := &models.Pipeline{
		ID:    "short-lived",
		Name:  "Short lived",
		Steps: []models.Step{{Name: "Noop", Run: "true"}},
	}
	require.NoError(t, store.SavePipeline(ctx, pipeline))
	require.NoError(t, store.DeletePipeline(ctx, "short-lived"))

	_, err := store.PipelineByID(ctx, "short-lived")
	assert.True(t, persistence.IsPipelineNotFound(err))

	// deleting again is not an error
	assert.NoError(t, store.DeletePipeline(ctx, "short-lived"))
}

func TestPersistence_RunRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewPersistence(t.TempDir())

	run := models.NewRun("rust-nightly", models.NewTriggerEvent("refs/heads/main", "abc123", "webhook"))
	require.NoError(t, run.Start())
	run.RecordStep(models.StepResult{Name: "Build", Command: "cargo build --verbose", ExitCode: 1, Output: "error[E0308]"})
	require.NoError(t, run.Fail(1, errors.New("exit status 1")))

	require.NoError(t, store.SaveRun(ctx, run))

	loaded, err := store.RunByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, loaded.Status)
	assert.Equal(t, 1, loaded.FailedStep)
	require.Len(t, loaded.Steps, 1)
	assert.Equal(t, 1, loaded.Steps[0].ExitCode)
	assert.Equal(t, "abc123", loaded.Trigger.Commit)
}

func TestPersistence_RunNotFound(t *testing.T) {
	ctx := context.Background()
	store := NewPersistence(t.TempDir())

	_, err := store.RunByID(ctx, "run-missing")
	require.Error(t, err)
	assert.True(t, persistence.IsRunNotFound(err))
}

func TestPersistence_HealthCheck(t *testing.T) {
	ctx := context.Background()

	store := NewPersistence(t.TempDir())
	assert.NoError(t, store.HealthCheck(ctx))

	missing := NewPersistence("/nonexistent/pushgate-data")
	assert.Error(t, missing.HealthCheck(ctx))
}
