// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrExecutionNotFound indicates an execution was not found by the given identifier.
	ErrExecutionNotFound = errors.New("execution not found")
)

// StoreError wraps persistence failures with operation context.
type StoreError struct {
	Op       string // Operation being performed (e.g. "GetByID", "Save", "RecordExecution")
	EntityID string // Workflow or execution ID if applicable
	Err      error  // Underlying error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s operation failed for %s: %v", e.Op, e.EntityID, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStoreError creates a new store error with context.
func NewStoreError(op, entityID string, err error) *StoreError {
	return &StoreError{Op: op, EntityID: entityID, Err: err}
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsExecutionNotFound checks if an error indicates an execution was not found.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}
