// Package persistence provides standardized error types for storage operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all drivers should use.
var (
	// ErrPipelineNotFound indicates a pipeline was not found by the given identifier.
	ErrPipelineNotFound = errors.New("pipeline not found")

	// ErrRunNotFound indicates a run was not found by the given identifier.
	ErrRunNotFound = errors.New("run not found")

	// ErrPipelineAlreadyExists indicates a pipeline with the same identifier already exists.
	ErrPipelineAlreadyExists = errors.New("pipeline already exists")
)

// StoreError wraps storage errors with the operation and target identifier.
type StoreError struct {
	Op  string // Operation being performed (e.g., "RunByID", "SavePipeline")
	ID  string // Pipeline or run ID if applicable
	Err error  // Underlying error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s operation failed for %s: %v", e.Op, e.ID, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStoreError creates a new storage error with context.
func NewStoreError(op, id string, err error) *StoreError {
	return &StoreError{Op: op, ID: id, Err: err}
}

// IsPipelineNotFound checks if an error indicates a pipeline was not found.
func IsPipelineNotFound(err error) bool {
	return errors.Is(err, ErrPipelineNotFound)
}

// IsRunNotFound checks if an error indicates a run was not found.
func IsRunNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}
