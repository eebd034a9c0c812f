package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/beaconcrm/automation/pkg/models"
	"github.com/beaconcrm/automation/pkg/persistence"
)

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

const workflowColumns = `
	id, organization_id, name, description, trigger_type, trigger_config,
	conditions, actions, status, priority, max_per_hour, max_per_day,
	execution_count, success_count, failure_count, avg_duration_ms,
	created_at, updated_at
`

func (wr *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	triggerConfigJSON, err := json.Marshal(workflow.TriggerConfig)
	if err != nil {
		return persistence.NewStoreError("Save", workflow.ID,
			fmt.Errorf("failed to marshal trigger config: %w", err))
	}

	conditionsJSON, err := json.Marshal(workflow.Conditions)
	if err != nil {
		return persistence.NewStoreError("Save", workflow.ID,
			fmt.Errorf("failed to marshal conditions: %w", err))
	}

	actionsJSON, err := json.Marshal(workflow.Actions)
	if err != nil {
		return persistence.NewStoreError("Save", workflow.ID,
			fmt.Errorf("failed to marshal actions: %w", err))
	}

	query := `
		INSERT INTO workflows (
			id, organization_id, name, description, trigger_type, trigger_config,
			conditions, actions, status, priority, max_per_hour, max_per_day,
			execution_count, success_count, failure_count, avg_duration_ms,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (id) DO UPDATE SET
			organization_id = EXCLUDED.organization_id,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			trigger_type = EXCLUDED.trigger_type,
			trigger_config = EXCLUDED.trigger_config,
			conditions = EXCLUDED.conditions,
			actions = EXCLUDED.actions,
			status = EXCLUDED.status,
			priority = EXCLUDED.priority,
			max_per_hour = EXCLUDED.max_per_hour,
			max_per_day = EXCLUDED.max_per_day,
			updated_at = EXCLUDED.updated_at
	`

	_, err = wr.db.ExecContext(ctx, query,
		workflow.ID,
		workflow.OrganizationID,
		workflow.Name,
		workflow.Description,
		workflow.TriggerType,
		triggerConfigJSON,
		conditionsJSON,
		actionsJSON,
		workflow.Status,
		workflow.Priority,
		workflow.RateLimits.MaxPerHour,
		workflow.RateLimits.MaxPerDay,
		workflow.Stats.ExecutionCount,
		workflow.Stats.SuccessCount,
		workflow.Stats.FailureCount,
		workflow.Stats.AvgDurationMs,
		workflow.CreatedAt,
		workflow.UpdatedAt,
	)
	if err != nil {
		return persistence.NewStoreError("Save", workflow.ID,
			fmt.Errorf("failed to save workflow: %w", err))
	}

	return nil
}

func (wr *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE id = $1`

	workflow, err := scanWorkflow(wr.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("GetByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, persistence.NewStoreError("GetByID", id, err)
	}

	return workflow, nil
}

func (wr *WorkflowRepository) ListActiveByTrigger(ctx context.Context, orgID string, triggerType models.TriggerType) ([]*models.Workflow, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM workflows
		WHERE organization_id = $1 AND trigger_type = $2 AND status = $3
		ORDER BY priority DESC, created_at ASC
	`

	rows, err := wr.db.QueryContext(ctx, query, orgID, triggerType, models.WorkflowStatusActive)
	if err != nil {
		return nil, persistence.NewStoreError("ListActiveByTrigger", orgID,
			fmt.Errorf("failed to query workflows: %w", err))
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			wr.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var workflows []*models.Workflow

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, persistence.NewStoreError("ListActiveByTrigger", orgID, err)
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError("ListActiveByTrigger", orgID, err)
	}

	return workflows, nil
}

func (wr *WorkflowRepository) ListActiveByTriggerType(ctx context.Context, triggerType models.TriggerType) ([]*models.Workflow, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM workflows
		WHERE trigger_type = $1 AND status = $2
		ORDER BY created_at ASC
	`

	rows, err := wr.db.QueryContext(ctx, query, triggerType, models.WorkflowStatusActive)
	if err != nil {
		return nil, persistence.NewStoreError("ListActiveByTriggerType", string(triggerType),
			fmt.Errorf("failed to query workflows: %w", err))
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			wr.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var workflows []*models.Workflow

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, persistence.NewStoreError("ListActiveByTriggerType", string(triggerType), err)
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError("ListActiveByTriggerType", string(triggerType), err)
	}

	return workflows, nil
}

// RecordExecution folds one terminated execution into the aggregate stats in
// a single UPDATE, so concurrent executions of the same workflow serialize on
// the row instead of racing a read-modify-write.
func (wr *WorkflowRepository) RecordExecution(ctx context.Context, workflowID string, success bool, duration time.Duration) error {
	successIncrement := 0
	failureIncrement := 0

	if success {
		successIncrement = 1
	} else {
		failureIncrement = 1
	}

	// avg_duration_ms keeps the historical two-sample running average.
	query := `
		UPDATE workflows SET
			execution_count = execution_count + 1,
			success_count = success_count + $2,
			failure_count = failure_count + $3,
			avg_duration_ms = CASE
				WHEN avg_duration_ms = 0 THEN $4
				ELSE (avg_duration_ms + $4) / 2
			END,
			updated_at = NOW()
		WHERE id = $1
	`

	result, err := wr.db.ExecContext(ctx, query, workflowID, successIncrement, failureIncrement, duration.Milliseconds())
	if err != nil {
		return persistence.NewStoreError("RecordExecution", workflowID,
			fmt.Errorf("failed to update workflow stats: %w", err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewStoreError("RecordExecution", workflowID, err)
	}

	if affected == 0 {
		return persistence.NewStoreError("RecordExecution", workflowID, persistence.ErrWorkflowNotFound)
	}

	return nil
}

func (wr *WorkflowRepository) Delete(ctx context.Context, id string) error {
	result, err := wr.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return persistence.NewStoreError("Delete", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewStoreError("Delete", id, err)
	}

	if affected == 0 {
		return persistence.NewStoreError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*models.Workflow, error) {
	var (
		workflow          models.Workflow
		triggerConfigJSON []byte
		conditionsJSON    []byte
		actionsJSON       []byte
	)

	err := row.Scan(
		&workflow.ID,
		&workflow.OrganizationID,
		&workflow.Name,
		&workflow.Description,
		&workflow.TriggerType,
		&triggerConfigJSON,
		&conditionsJSON,
		&actionsJSON,
		&workflow.Status,
		&workflow.Priority,
		&workflow.RateLimits.MaxPerHour,
		&workflow.RateLimits.MaxPerDay,
		&workflow.Stats.ExecutionCount,
		&workflow.Stats.SuccessCount,
		&workflow.Stats.FailureCount,
		&workflow.Stats.AvgDurationMs,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(triggerConfigJSON) > 0 {
		if err := json.Unmarshal(triggerConfigJSON, &workflow.TriggerConfig); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trigger config: %w", err)
		}
	}

	if len(conditionsJSON) > 0 {
		if err := json.Unmarshal(conditionsJSON, &workflow.Conditions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal conditions: %w", err)
		}
	}

	if len(actionsJSON) > 0 {
		if err := json.Unmarshal(actionsJSON, &workflow.Actions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal actions: %w", err)
		}
	}

	return &workflow, nil
}
