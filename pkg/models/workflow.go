// Package models defines the core domain models for organization-scoped workflow automation.
package models

import (
	"errors"
	"time"
)

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusDraft    WorkflowStatus = "draft"    // Editable, never routed
	WorkflowStatusActive   WorkflowStatus = "active"   // Matched and executed by the router
	WorkflowStatusPaused   WorkflowStatus = "paused"   // Temporarily excluded from routing
	WorkflowStatusArchived WorkflowStatus = "archived" // Historical, never routed
)

// ErrActiveWorkflowWithoutActions indicates an attempt to activate a workflow
// that has an empty action list.
var ErrActiveWorkflowWithoutActions = errors.New("active workflow must have at least one action")

// RateLimits bounds how often a single workflow may execute.
// A zero value means the corresponding window is unlimited.
type RateLimits struct {
	MaxPerHour int `json:"max_executions_per_hour" validate:"min=0"`
	MaxPerDay  int `json:"max_executions_per_day"  validate:"min=0"`
}

// WorkflowStats holds aggregate execution statistics. They are mutated
// exclusively by the executor at execution termination, through the
// repository's serialized RecordExecution operation.
type WorkflowStats struct {
	ExecutionCount int64 `json:"execution_count"`
	SuccessCount   int64 `json:"success_count"`
	FailureCount   int64 `json:"failure_count"`
	// AvgDurationMs is a two-sample running average of the previous value
	// and the latest execution duration, not a true mean.
	AvgDurationMs int64 `json:"avg_duration_ms"`
}

// Workflow is a named, organization-scoped automation rule: a trigger type,
// a condition tree and an ordered action list.
type Workflow struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id" validate:"required"`
	Name           string         `json:"name"            validate:"required,min=3"`
	Description    string         `json:"description"`
	TriggerType    TriggerType    `json:"trigger_type"    validate:"required"`
	TriggerConfig  map[string]any `json:"trigger_config,omitempty"`
	Conditions     *Condition     `json:"conditions,omitempty"`
	Actions        []Action       `json:"actions"`
	Status         WorkflowStatus `json:"status"          validate:"required"`
	Priority       int            `json:"priority"`
	RateLimits     RateLimits     `json:"rate_limits"`
	Stats          WorkflowStats  `json:"stats"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Validate enforces the structural invariants that struct tags cannot express.
func (w *Workflow) Validate() error {
	if w.Status == WorkflowStatusActive && len(w.Actions) == 0 {
		return ErrActiveWorkflowWithoutActions
	}

	if !KnownTriggerType(w.TriggerType) {
		return ErrUnknownTriggerType
	}

	for _, action := range w.Actions {
		if !KnownActionType(action.Type) {
			return ErrUnknownActionType
		}
	}

	return nil
}

// Routable reports whether the router may consider this workflow for execution.
func (w *Workflow) Routable() bool {
	return w.Status == WorkflowStatusActive && len(w.Actions) > 0
}
