package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRun(t *testing.T) {
	trigger := NewTriggerEvent("refs/heads/main", "abc123", "webhook")
	run := NewRun("rust-nightly", trigger)

	assert.NotEmpty(t, run.ID)
	assert.Equal(t, "rust-nightly", run.PipelineID)
	assert.Equal(t, RunStatusPending, run.Status)
	assert.Equal(t, "abc123", run.Trigger.Commit)
	assert.Zero(t, run.FailedStep)
	assert.Nil(t, run.StartedAt)
	assert.Nil(t, run.FinishedAt)
}

func TestRun_Start(t *testing.T) {
	run := NewRun("p1", NewTriggerEvent("refs/heads/main", "abc", ""))

	require.NoError(t, run.Start())
	assert.Equal(t, RunStatusRunning, run.Status)
	require.NotNil(t, run.StartedAt)

	// running is entered once per run
	err := run.Start()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestRun_Succeed(t *testing.T) {
	run := NewRun("p1", NewTriggerEvent("refs/heads/main", "abc", ""))
	require.NoError(t, run.Start())
	require.NoError(t, run.Succeed())

	assert.Equal(t, RunStatusSucceeded, run.Status)
	assert.Zero(t, run.FailedStep)
	require.NotNil(t, run.FinishedAt)
}

func TestRun_Fail(t *testing.T) {
	run := NewRun("p1", NewTriggerEvent("refs/heads/main", "abc", ""))
	require.NoError(t, run.Start())
	require.NoError(t, run.Fail(5, errors.New("exit status 1")))

	assert.Equal(t, RunStatusFailed, run.Status)
	assert.Equal(t, 5, run.FailedStep)
	assert.Equal(t, "exit status 1", run.Error)
}

func TestRun_Cancel(t *testing.T) {
	t.Run("while running", func(t *testing.T) {
		run := NewRun("p1", NewTriggerEvent("refs/heads/main", "abc", ""))
		require.NoError(t, run.Start())
		require.NoError(t, run.Cancel())
		assert.Equal(t, RunStatusCancelled, run.Status)
	})

	t.Run("before start", func(t *testing.T) {
		run := NewRun("p1", NewTriggerEvent("refs/heads/main", "abc", ""))
		require.NoError(t, run.Cancel())
		assert.Equal(t, RunStatusCancelled, run.Status)
	})
}

func TestRun_TerminalStatesAreFrozen(t *testing.T) {
	terminalRuns := map[string]func(r *Run){
		"succeeded": func(r *Run) { _ = r.Start(); _ = r.Succeed() },
		"failed":    func(r *Run) { _ = r.Start(); _ = r.Fail(1, errors.New("boom")) },
		"cancelled": func(r *Run) { _ = r.Start(); _ = r.Cancel() },
	}

	for name, reach := range terminalRuns {
		t.Run(name, func(t *testing.T) {
			run := NewRun("p1", NewTriggerEvent("refs/heads/main", "abc", ""))
			reach(run)
			require.True(t, run.Status.Terminal())

			assert.ErrorIs(t, run.Start(), ErrInvalidTransition)
			assert.ErrorIs(t, run.Succeed(), ErrInvalidTransition)
			assert.ErrorIs(t, run.Fail(1, nil), ErrInvalidTransition)
			assert.ErrorIs(t, run.Cancel(), ErrInvalidTransition)
		})
	}
}

func TestRun_Duration(t *testing.T) {
	run := NewRun("p1", NewTriggerEvent("refs/heads/main", "abc", ""))
	assert.Zero(t, run.Duration())

	started := time.Now().UTC().Add(-3 * time.Second)
	finished := time.Now().UTC()
	run.StartedAt = &started
	run.FinishedAt = &finished

	assert.InDelta(t, 3.0, run.Duration().Seconds(), 0.5)
}

func TestRunStatus_Terminal(t *testing.T) {
	assert.False(t, RunStatusPending.Terminal())
	assert.False(t, RunStatusRunning.Terminal())
	assert.True(t, RunStatusSucceeded.Terminal())
	assert.True(t, RunStatusFailed.Terminal())
	assert.True(t, RunStatusCancelled.Terminal())
}
