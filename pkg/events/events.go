// Package events defines event types for run lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/pushgate/pushgate/pkg/models"
)

type EventType string

// Topic is the bus topic all run lifecycle events are published on.
const Topic = "pushgate.runs"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	RunQueuedEvent          EventType = "run.queued"
	RunStartedEvent         EventType = "run.started"
	StepStartedEvent        EventType = "run.step.started"
	StepFinishedEvent       EventType = "run.step.finished"
	RunSucceededEvent       EventType = "run.succeeded"
	RunFailedEvent          EventType = "run.failed"
	RunCancelledEvent       EventType = "run.cancelled"
	RunCancelRequestedEvent EventType = "run.cancel.requested"
)

type BaseEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	RunID      string    `json:"run_id"`
	PipelineID string    `json:"pipeline_id,omitempty"`
	WorkerID   string    `json:"worker_id,omitempty"`
}

func NewBaseEvent(eventType EventType, runID, pipelineID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		RunID:      runID,
		PipelineID: pipelineID,
	}
}

// RunQueued announces a freshly created pending run awaiting a worker.
type RunQueued struct {
	BaseEvent

	Trigger models.TriggerEvent `json:"trigger"`
}

func (e RunQueued) GetType() EventType {
	return RunQueuedEvent
}

type RunStarted struct {
	BaseEvent

	Trigger   models.TriggerEvent `json:"trigger"`
	StepCount int                 `json:"step_count"`
}

func (e RunStarted) GetType() EventType {
	return RunStartedEvent
}

type StepStarted struct {
	BaseEvent

	StepIndex int    `json:"step_index"` // 1-based
	StepName  string `json:"step_name"`
	Command   string `json:"command"`
}

func (e StepStarted) GetType() EventType {
	return StepStartedEvent
}

type StepFinished struct {
	BaseEvent

	StepIndex int           `json:"step_index"` // 1-based
	StepName  string        `json:"step_name"`
	ExitCode  int           `json:"exit_code"`
	Duration  time.Duration `json:"duration"`
}

func (e StepFinished) GetType() EventType {
	return StepFinishedEvent
}

type RunSucceeded struct {
	BaseEvent

	StepsExecuted int           `json:"steps_executed"`
	Duration      time.Duration `json:"duration"`
}

func (e RunSucceeded) GetType() EventType {
	return RunSucceededEvent
}

// RunFailed carries the identity of the first failing step; no step after it
// was executed.
type RunFailed struct {
	BaseEvent

	FailedStep int           `json:"failed_step"` // 1-based
	StepName   string        `json:"step_name"`
	ExitCode   int           `json:"exit_code"`
	Error      string        `json:"error"`
	Duration   time.Duration `json:"duration"`
}

func (e RunFailed) GetType() EventType {
	return RunFailedEvent
}

type RunCancelled struct {
	BaseEvent

	StepsExecuted int           `json:"steps_executed"`
	Reason        string        `json:"reason,omitempty"`
	Duration      time.Duration `json:"duration"`
}

func (e RunCancelled) GetType() EventType {
	return RunCancelledEvent
}

// RunCancelRequested asks whichever worker holds the run to terminate the
// in-flight step and mark the run cancelled.
type RunCancelRequested struct {
	BaseEvent

	RequestedBy string `json:"requested_by,omitempty"`
}

func (e RunCancelRequested) GetType() EventType {
	return RunCancelRequestedEvent
}
