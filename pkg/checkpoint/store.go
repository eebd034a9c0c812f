// Package checkpoint provides durable, append-only storage of per-execution
// step progress, used to resume crashed executions.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/beaconcrm/automation/pkg/models"
)

// Standard checkpoint error types that all implementations must use.
var (
	// ErrOutOfOrderCheckpoint indicates a write whose step index does not
	// extend the execution's current maximum by exactly one. Always fatal
	// to the write.
	ErrOutOfOrderCheckpoint = errors.New("checkpoint step index out of order")

	// ErrCheckpointNotFound indicates no checkpoint exists for an execution.
	// Callers treat it as "resume from step 0", not as a failure.
	ErrCheckpointNotFound = errors.New("checkpoint not found")
)

// Store persists execution progress snapshots. Step indices for a given
// execution form a strictly increasing, gapless sequence starting at 0.
type Store interface {
	// Put records a checkpoint for stepIndex and returns the checkpoint ID.
	// Fails with ErrOutOfOrderCheckpoint unless stepIndex is exactly one
	// greater than the stored maximum (or 0 for the first write).
	Put(ctx context.Context, executionID string, stepIndex int, state, metadata map[string]any) (string, error)

	// Latest returns the checkpoint with the highest step index, or
	// ErrCheckpointNotFound when the execution has none.
	Latest(ctx context.Context, executionID string) (*models.Checkpoint, error)

	// List returns all checkpoints of an execution ordered by step index.
	List(ctx context.Context, executionID string) ([]*models.Checkpoint, error)

	// Cleanup removes checkpoints created before olderThan and returns how
	// many were removed. Invoked by the external retention job, never by
	// the engine itself.
	Cleanup(ctx context.Context, olderThan time.Time) (int, error)
}

// CheckpointError wraps checkpoint store failures with operation context.
type CheckpointError struct {
	Op          string
	ExecutionID string
	StepIndex   int
	Err         error
}

func (e *CheckpointError) Error() string {
	return fmt.Sprintf("%s failed for execution %s step %d: %v", e.Op, e.ExecutionID, e.StepIndex, e.Err)
}

func (e *CheckpointError) Unwrap() error {
	return e.Err
}

func (e *CheckpointError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsOutOfOrder checks if an error indicates an out-of-order checkpoint write.
func IsOutOfOrder(err error) bool {
	return errors.Is(err, ErrOutOfOrderCheckpoint)
}

// IsNotFound checks if an error indicates a missing checkpoint.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCheckpointNotFound)
}
