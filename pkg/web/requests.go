package web

import "github.com/beaconcrm/automation/pkg/models"

// CreateWorkflowRequest is the payload for creating a workflow.
type CreateWorkflowRequest struct {
	OrganizationID string                `json:"organization_id" validate:"required"`
	Name           string                `json:"name"            validate:"required,min=3"`
	Description    string                `json:"description"`
	TriggerType    models.TriggerType    `json:"trigger_type"    validate:"required"`
	TriggerConfig  map[string]any        `json:"trigger_config,omitempty"`
	Conditions     *models.Condition     `json:"conditions,omitempty"`
	Actions        []models.Action       `json:"actions,omitempty"`
	Status         models.WorkflowStatus `json:"status,omitempty"`
	Priority       int                   `json:"priority"`
	RateLimits     models.RateLimits     `json:"rate_limits"`
}

// UpdateWorkflowRequest carries partial workflow updates. Nil fields keep
// their current value.
type UpdateWorkflowRequest struct {
	Name        *string                `json:"name,omitempty"`
	Description *string                `json:"description,omitempty"`
	Conditions  *models.Condition      `json:"conditions,omitempty"`
	Actions     *[]models.Action       `json:"actions,omitempty"`
	Status      *models.WorkflowStatus `json:"status,omitempty"`
	Priority    *int                   `json:"priority,omitempty"`
	RateLimits  *models.RateLimits     `json:"rate_limits,omitempty"`
}

// TriggerRequest is an incoming trigger event for the router.
type TriggerRequest struct {
	OrganizationID string             `json:"organization_id" validate:"required"`
	TriggerType    models.TriggerType `json:"trigger_type"    validate:"required"`
	Payload        map[string]any     `json:"payload,omitempty"`
}

// CleanupCheckpointsRequest selects the retention window for checkpoint
// cleanup.
type CleanupCheckpointsRequest struct {
	RetentionHours int `json:"retention_hours" validate:"required,min=1"`
}
