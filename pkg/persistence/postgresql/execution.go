package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/beaconcrm/automation/pkg/models"
	"github.com/beaconcrm/automation/pkg/persistence"
)

// ExecutionRepository handles execution-related database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

const executionColumns = `
	id, workflow_id, organization_id, status, trigger_payload,
	steps_completed, steps_total, current_step, log, success, error_message,
	actions_executed, notifications_sent, api_calls_made, started_at, completed_at
`

func (er *ExecutionRepository) Save(ctx context.Context, execution *models.Execution) error {
	payloadJSON, err := json.Marshal(execution.TriggerPayload)
	if err != nil {
		return persistence.NewStoreError("Save", execution.ID,
			fmt.Errorf("failed to marshal trigger payload: %w", err))
	}

	logJSON, err := json.Marshal(execution.Log)
	if err != nil {
		return persistence.NewStoreError("Save", execution.ID,
			fmt.Errorf("failed to marshal execution log: %w", err))
	}

	var completedAt sql.NullTime
	if execution.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *execution.CompletedAt, Valid: true}
	}

	query := `
		INSERT INTO executions (
			id, workflow_id, organization_id, status, trigger_payload,
			steps_completed, steps_total, current_step, log, success, error_message,
			actions_executed, notifications_sent, api_calls_made, started_at, completed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			steps_completed = EXCLUDED.steps_completed,
			steps_total = EXCLUDED.steps_total,
			current_step = EXCLUDED.current_step,
			log = EXCLUDED.log,
			success = EXCLUDED.success,
			error_message = EXCLUDED.error_message,
			actions_executed = EXCLUDED.actions_executed,
			notifications_sent = EXCLUDED.notifications_sent,
			api_calls_made = EXCLUDED.api_calls_made,
			completed_at = EXCLUDED.completed_at
	`

	_, err = er.db.ExecContext(ctx, query,
		execution.ID,
		execution.WorkflowID,
		execution.OrganizationID,
		execution.Status,
		payloadJSON,
		execution.StepsCompleted,
		execution.StepsTotal,
		execution.CurrentStep,
		logJSON,
		execution.Success,
		execution.ErrorMessage,
		execution.Counters.ActionsExecuted,
		execution.Counters.NotificationsSent,
		execution.Counters.APICallsMade,
		execution.StartedAt,
		completedAt,
	)
	if err != nil {
		return persistence.NewStoreError("Save", execution.ID,
			fmt.Errorf("failed to save execution: %w", err))
	}

	return nil
}

func (er *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE id = $1`

	execution, err := scanExecution(er.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("GetByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewStoreError("GetByID", id, err)
	}

	return execution, nil
}

func (er *ExecutionRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM executions
		WHERE workflow_id = $1
		ORDER BY started_at ASC
	`

	rows, err := er.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, persistence.NewStoreError("ListByWorkflow", workflowID,
			fmt.Errorf("failed to query executions: %w", err))
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			er.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var executions []*models.Execution

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, persistence.NewStoreError("ListByWorkflow", workflowID, err)
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError("ListByWorkflow", workflowID, err)
	}

	return executions, nil
}

func scanExecution(row rowScanner) (*models.Execution, error) {
	var (
		execution   models.Execution
		payloadJSON []byte
		logJSON     []byte
		completedAt sql.NullTime
	)

	err := row.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&execution.OrganizationID,
		&execution.Status,
		&payloadJSON,
		&execution.StepsCompleted,
		&execution.StepsTotal,
		&execution.CurrentStep,
		&logJSON,
		&execution.Success,
		&execution.ErrorMessage,
		&execution.Counters.ActionsExecuted,
		&execution.Counters.NotificationsSent,
		&execution.Counters.APICallsMade,
		&execution.StartedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(payloadJSON) > 0 {
		if err := json.Unmarshal(payloadJSON, &execution.TriggerPayload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trigger payload: %w", err)
		}
	}

	if len(logJSON) > 0 {
		if err := json.Unmarshal(logJSON, &execution.Log); err != nil {
			return nil, fmt.Errorf("failed to unmarshal execution log: %w", err)
		}
	}

	if completedAt.Valid {
		execution.CompletedAt = &completedAt.Time
	}

	return &execution, nil
}
