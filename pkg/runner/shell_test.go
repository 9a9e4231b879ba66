package runner

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pushgate/pushgate/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestShellRunner(t *testing.T) (*ShellRunner, string) {
	t.Helper()

	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	return NewShellRunner(logger, dir), dir
}

func TestShellRunner_Success(t *testing.T) {
	shell, _ := newTestShellRunner(t)

	result := shell.Run(context.Background(), models.Step{Name: "Noop", Run: "true"}, nil)

	assert.Equal(t, 0, result.ExitCode)
	assert.False(t, result.Cancelled)
	assert.False(t, result.StartedAt.IsZero())
	assert.False(t, result.FinishedAt.Before(result.StartedAt))
}

func TestShellRunner_NonZeroExit(t *testing.T) {
	shell, _ := newTestShellRunner(t)

	result := shell.Run(context.Background(), models.Step{Name: "Fail", Run: "exit 3"}, nil)

	assert.Equal(t, 3, result.ExitCode)
	assert.False(t, result.Cancelled)
}

func TestShellRunner_CapturesOutput(t *testing.T) {
	shell, _ := newTestShellRunner(t)

	result := shell.Run(context.Background(), models.Step{
		Name: "Echo",
		Run:  "echo building; echo warning >&2",
	}, nil)

	assert.Equal(t, 0, result.ExitCode)
	assert.Contains(t, result.Output, "building")
	assert.Contains(t, result.Output, "warning")
}

func TestShellRunner_EnvInjection(t *testing.T) {
	shell, _ := newTestShellRunner(t)

	result := shell.Run(context.Background(), models.Step{
		Name: "Env",
		Run:  `echo "$PUSHGATE_REF@$PUSHGATE_COMMIT"`,
	}, map[string]string{
		EnvRef:    "refs/heads/main",
		EnvCommit: "abc123",
	})

	assert.Equal(t, 0, result.ExitCode)
	assert.Contains(t, result.Output, "refs/heads/main@abc123")
}

func TestShellRunner_StepEnvOverridesRunEnv(t *testing.T) {
	shell, _ := newTestShellRunner(t)

	result := shell.Run(context.Background(), models.Step{
		Name: "Env",
		Run:  `echo "$VERBOSITY"`,
		Env:  map[string]string{"VERBOSITY": "debug"},
	}, map[string]string{"VERBOSITY": "info"})

	assert.Equal(t, 0, result.ExitCode)
	assert.Contains(t, result.Output, "debug")
}

func TestShellRunner_ShortCircuitAnd(t *testing.T) {
	shell, dir := newTestShellRunner(t)
	marker := filepath.Join(dir, "fmt-check-ran")

	result := shell.Run(context.Background(), models.Step{
		Name: "Lint",
		Run:  "false && touch " + marker,
	}, nil)

	assert.NotEqual(t, 0, result.ExitCode)
	assert.NoFileExists(t, marker)

	result = shell.Run(context.Background(), models.Step{
		Name: "Lint",
		Run:  "true && touch " + marker,
	}, nil)

	assert.Equal(t, 0, result.ExitCode)
	assert.FileExists(t, marker)
}

func TestShellRunner_Cancellation(t *testing.T) {
	shell, _ := newTestShellRunner(t)

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	result := shell.Run(ctx, models.Step{Name: "Slow", Run: "sleep 30"}, nil)

	assert.True(t, result.Cancelled)
	assert.Equal(t, -1, result.ExitCode)
	require.Less(t, time.Since(start), 10*time.Second)
}

func TestShellRunner_CancellationKillsBackgroundChildren(t *testing.T) {
	shell, _ := newTestShellRunner(t)

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	// The backgrounded sleep inherits the output pipe; killing the process
	// group must not leave Run blocked until it exits on its own.
	start := time.Now()
	result := shell.Run(ctx, models.Step{Name: "Slow", Run: "sleep 30 & sleep 30"}, nil)

	assert.True(t, result.Cancelled)
	assert.Equal(t, -1, result.ExitCode)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestShellRunner_RunsInWorkDir(t *testing.T) {
	shell, dir := newTestShellRunner(t)

	result := shell.Run(context.Background(), models.Step{Name: "Pwd", Run: "pwd"}, nil)

	assert.Equal(t, 0, result.ExitCode)

	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	assert.Contains(t, result.Output, resolved)
}
