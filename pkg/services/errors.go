// Package services provides the registry and lifecycle operations on top of persistence.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/portalflow/pkg/persistence"
)

// Client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest  = errors.New("invalid request")
	ErrInvalidWorkflow = errors.New("invalid workflow")
	ErrInvalidStep     = errors.New("invalid step")
	ErrEmptyBatchName  = errors.New("batch name cannot be empty")

	// Not Found Errors (404 Not Found).
	ErrWorkflowNotFound = persistence.ErrWorkflowNotFound
	ErrBatchNotFound    = persistence.ErrBatchNotFound
	ErrBatchRunNotFound = persistence.ErrBatchRunNotFound
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidWorkflow) ||
		errors.Is(err, ErrInvalidStep) ||
		errors.Is(err, ErrEmptyBatchName) ||
		errors.Is(err, persistence.ErrInvalidWorkflow)
}

// IsNotFoundError checks if an error should return HTTP 404.
func IsNotFoundError(err error) bool {
	return persistence.IsNotFound(err)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
