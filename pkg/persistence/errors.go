package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	ErrBatchNotFound    = errors.New("batch not found")
	ErrBatchRunNotFound = errors.New("batch run not found")
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrInvalidWorkflow indicates a workflow is missing part of its identity triple.
	ErrInvalidWorkflow = errors.New("invalid workflow")

	// ErrConflict indicates a uniqueness rule rejected a write that could not be resolved by re-reading.
	ErrConflict = errors.New("conflicting write")
)

// EntityError wraps storage errors with the operation and the entity involved.
type EntityError struct {
	Op     string // Operation being performed (e.g., "GetOrCreate", "ResetRun")
	Entity string // Entity kind, "batch", "batch_run", "workflow", ...
	Key    string // Identifier of the entity if known
	Err    error
}

func (e *EntityError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s operation failed for %s: %v", e.Op, e.Entity, e.Err)
	}

	return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Entity, e.Key, e.Err)
}

func (e *EntityError) Unwrap() error {
	return e.Err
}

func (e *EntityError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewEntityError(op, entity, key string, err error) *EntityError {
	return &EntityError{Op: op, Entity: entity, Key: key, Err: err}
}

func IsBatchRunNotFound(err error) bool {
	return errors.Is(err, ErrBatchRunNotFound)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrBatchNotFound) ||
		errors.Is(err, ErrBatchRunNotFound) ||
		errors.Is(err, ErrWorkflowNotFound)
}
