// Package persistence provides the data storage abstraction for workflows and executions.
package persistence

import (
	"context"
	"time"

	"github.com/beaconcrm/automation/pkg/models"
)

type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ExecutionRepository() ExecutionRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores workflow definitions. Creation and editing happen
// through the platform API, outside this module; the engine reads workflows
// and records execution outcomes.
type WorkflowRepository interface {
	Save(ctx context.Context, workflow *models.Workflow) error
	GetByID(ctx context.Context, id string) (*models.Workflow, error)

	// ListActiveByTrigger returns the active workflows of an organization
	// matching a trigger type, ordered by priority descending.
	ListActiveByTrigger(ctx context.Context, orgID string, triggerType models.TriggerType) ([]*models.Workflow, error)

	// ListActiveByTriggerType returns all active workflows with the given
	// trigger type across organizations. The scheduler uses it to register
	// cron entries for schedule triggers.
	ListActiveByTriggerType(ctx context.Context, triggerType models.TriggerType) ([]*models.Workflow, error)

	// RecordExecution atomically folds one terminated execution into the
	// workflow's aggregate stats. This is the only stats writer, so
	// concurrent executions of the same workflow never lose updates.
	RecordExecution(ctx context.Context, workflowID string, success bool, duration time.Duration) error

	Delete(ctx context.Context, id string) error
}

// ExecutionRepository stores execution records. An execution is mutated only
// by its owning executor and is immutable once terminal.
type ExecutionRepository interface {
	Save(ctx context.Context, execution *models.Execution) error
	GetByID(ctx context.Context, id string) (*models.Execution, error)
	ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error)
}
