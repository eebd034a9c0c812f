package models

import "time"

// Checkpoint is a durable snapshot of an execution's progress at a step
// boundary. Step indices for a given execution form a strictly increasing,
// gapless sequence starting at 0; the store enforces this on write.
//
// A checkpoint is written after the corresponding action completed, so a
// crash between the action and the write re-executes that one action on
// resume. Delivery is at-least-once for the most recently completed step.
type Checkpoint struct {
	ID          string         `json:"id"`
	ExecutionID string         `json:"execution_id" validate:"required"`
	StepIndex   int            `json:"step_index"   validate:"min=0"`
	State       map[string]any `json:"state,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}
