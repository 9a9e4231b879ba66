// Package triggers defines the contract for pipeline trigger sources.
package triggers

import (
	"context"
	"errors"

	"github.com/pushgate/pushgate/pkg/models"
)

// Callback is invoked by a trigger source for every event it emits. The
// callback owns run creation; trigger sources only describe what happened.
type Callback func(ctx context.Context, pipelineID string, event models.TriggerEvent) error

// Trigger is a long-lived source of trigger events bound to one pipeline.
type Trigger interface {
	// Start begins emitting events to the callback. It does not block.
	Start(ctx context.Context, callback Callback) error
	// Stop shuts the source down and waits for in-flight emissions.
	Stop(ctx context.Context) error
	// Validate checks the binding configuration before Start.
	Validate() error
}

var (
	ErrMissingCron = errors.New("schedule trigger requires a cron expression")
	ErrMissingRef  = errors.New("trigger requires a ref")
	ErrMissingList = errors.New("queue trigger requires a list name")
)
