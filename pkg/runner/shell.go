// Package runner executes pipeline step sequences for trigger events.
package runner

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/pushgate/pushgate/pkg/models"
)

// killWaitDelay is how long a cancelled step may linger after its process
// group was signalled before its pipes are forcibly closed.
const killWaitDelay = 10 * time.Second

// CommandRunner executes a single step command and reports its observed
// outcome. Implementations never interpret the command; composition such as
// `a && b` keeps the shell's short-circuit semantics.
type CommandRunner interface {
	Run(ctx context.Context, step models.Step, env map[string]string) models.StepResult
}

// ShellRunner runs step commands through the system shell, blocking until the
// command exits or the context is cancelled.
type ShellRunner struct {
	logger  *slog.Logger
	shell   string
	workDir string
}

// NewShellRunner creates a shell-backed command runner. Commands run in
// workDir; an empty workDir means the current directory.
func NewShellRunner(logger *slog.Logger, workDir string) *ShellRunner {
	return &ShellRunner{
		logger:  logger,
		shell:   "sh",
		workDir: workDir,
	}
}

// Run executes one step command via `sh -c`. The step environment is layered
// over the process environment. Cancellation terminates the command; the
// result is then marked cancelled rather than failed.
func (s *ShellRunner) Run(ctx context.Context, step models.Step, env map[string]string) models.StepResult {
	startedAt := time.Now().UTC()

	cmd := exec.CommandContext(ctx, s.shell, "-c", step.Run)
	cmd.Dir = s.workDir
	cmd.Env = mergeEnv(os.Environ(), env, step.Env)

	// Each step gets its own process group and cancellation signals the whole
	// group, not just the shell. WaitDelay bounds the wait for any child that
	// survives the kill while still holding the output pipe.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = killWaitDelay

	output, err := cmd.CombinedOutput()

	result := models.StepResult{
		Name:       step.Name,
		Command:    step.Run,
		Output:     string(output),
		StartedAt:  startedAt,
		FinishedAt: time.Now().UTC(),
	}

	switch {
	case ctx.Err() != nil:
		result.Cancelled = true
		result.ExitCode = -1
	case err == nil:
		result.ExitCode = 0
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			// The command never started (e.g. shell missing).
			result.ExitCode = -1
			result.Output = err.Error()
		}
	}

	s.logger.DebugContext(ctx, "Step command finished",
		"step", step.Name,
		"exit_code", result.ExitCode,
		"cancelled", result.Cancelled,
	)

	return result
}

// mergeEnv layers the run environment and the step environment over the base
// environment. Later layers win.
func mergeEnv(base []string, layers ...map[string]string) []string {
	merged := make([]string, len(base))
	copy(merged, base)

	for _, layer := range layers {
		for key, value := range layer {
			merged = append(merged, key+"="+value)
		}
	}

	return merged
}
