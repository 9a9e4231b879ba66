package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status permits no further transitions.
func (s RunStatus) Terminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed || s == RunStatusCancelled
}

// StepResult records the observed outcome of one executed step. Only steps
// that actually started have a result; steps after the first failure never do.
type StepResult struct {
	Name       string    `json:"name"`
	Command    string    `json:"command"`
	ExitCode   int       `json:"exit_code"`
	Output     string    `json:"output,omitempty"`
	Cancelled  bool      `json:"cancelled,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Run is one execution of a pipeline's full step sequence for a single
// trigger event.
//
// The state machine is pending -> running -> {succeeded | failed | cancelled}.
// FailedStep holds the 1-based index of the first failing step and is zero
// for any other outcome.
type Run struct {
	ID         string       `json:"id"          validate:"required"`
	PipelineID string       `json:"pipeline_id" validate:"required"`
	Trigger    TriggerEvent `json:"trigger"`
	Status     RunStatus    `json:"status"`
	FailedStep int          `json:"failed_step,omitempty"`
	Error      string       `json:"error,omitempty"`
	Steps      []StepResult `json:"steps,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	StartedAt  *time.Time   `json:"started_at,omitempty"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
}

// NewRun creates a pending run for the given pipeline and trigger event.
func NewRun(pipelineID string, trigger TriggerEvent) *Run {
	return &Run{
		ID:         "run-" + uuid.New().String()[:8],
		PipelineID: pipelineID,
		Trigger:    trigger,
		Status:     RunStatusPending,
		CreatedAt:  time.Now().UTC(),
	}
}

// Start moves the run from pending to running. Running is entered at most
// once per run.
func (r *Run) Start() error {
	if r.Status != RunStatusPending {
		return fmt.Errorf("cannot start run %s: %w (status %s)", r.ID, ErrInvalidTransition, r.Status)
	}

	now := time.Now().UTC()
	r.StartedAt = &now
	r.Status = RunStatusRunning

	return nil
}

// RecordStep appends the result of the step that just finished.
func (r *Run) RecordStep(result StepResult) {
	r.Steps = append(r.Steps, result)
}

// Succeed marks the run succeeded. Valid only while running.
func (r *Run) Succeed() error {
	return r.finish(RunStatusSucceeded)
}

// Fail marks the run failed at the given 1-based step index.
func (r *Run) Fail(stepIndex int, err error) error {
	if ferr := r.finish(RunStatusFailed); ferr != nil {
		return ferr
	}

	r.FailedStep = stepIndex
	if err != nil {
		r.Error = err.Error()
	}

	return nil
}

// Cancel marks the run cancelled. A pending run may be cancelled before it
// ever starts; terminal runs may not.
func (r *Run) Cancel() error {
	if r.Status == RunStatusPending {
		r.Status = RunStatusRunning // pass through running so finish applies
	}

	return r.finish(RunStatusCancelled)
}

func (r *Run) finish(status RunStatus) error {
	if r.Status != RunStatusRunning {
		return fmt.Errorf("cannot finish run %s as %s: %w (status %s)", r.ID, status, ErrInvalidTransition, r.Status)
	}

	now := time.Now().UTC()
	r.FinishedAt = &now
	r.Status = status

	return nil
}

// Duration returns the wall-clock time between start and finish, zero until
// the run is terminal.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}

	return r.FinishedAt.Sub(*r.StartedAt)
}
