// Package postgresql provides PostgreSQL persistence for workflows and executions.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/beaconcrm/automation/pkg/persistence"
	"github.com/beaconcrm/automation/pkg/persistence/sqlbase"

	_ "github.com/lib/pq"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db            *sql.DB
	logger        *slog.Logger
	workflowRepo  *WorkflowRepository
	executionRepo *ExecutionRepository
}

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS workflows (
				id VARCHAR(255) PRIMARY KEY,
				organization_id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				trigger_type VARCHAR(64) NOT NULL,
				trigger_config JSONB,
				conditions JSONB,
				actions JSONB NOT NULL DEFAULT '[]',
				status VARCHAR(32) NOT NULL,
				priority INTEGER NOT NULL DEFAULT 0,
				max_per_hour INTEGER NOT NULL DEFAULT 0,
				max_per_day INTEGER NOT NULL DEFAULT 0,
				execution_count BIGINT NOT NULL DEFAULT 0,
				success_count BIGINT NOT NULL DEFAULT 0,
				failure_count BIGINT NOT NULL DEFAULT 0,
				avg_duration_ms BIGINT NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_workflows_routing
				ON workflows (organization_id, trigger_type, status);

			CREATE TABLE IF NOT EXISTS executions (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				organization_id VARCHAR(255) NOT NULL,
				status VARCHAR(32) NOT NULL,
				trigger_payload JSONB,
				steps_completed INTEGER NOT NULL DEFAULT 0,
				steps_total INTEGER NOT NULL DEFAULT 0,
				current_step VARCHAR(255) NOT NULL DEFAULT '',
				log JSONB,
				success BOOLEAN NOT NULL DEFAULT FALSE,
				error_message TEXT NOT NULL DEFAULT '',
				actions_executed INTEGER NOT NULL DEFAULT 0,
				notifications_sent INTEGER NOT NULL DEFAULT 0,
				api_calls_made INTEGER NOT NULL DEFAULT 0,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);
			CREATE INDEX IF NOT EXISTS idx_executions_workflow
				ON executions (workflow_id, started_at);
		`,
	}
}

// NewPersistence connects, runs migrations and returns the persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, "schema_migrations", migrations())

	postgres := &Persistence{
		db:            database,
		logger:        logger,
		workflowRepo:  NewWorkflowRepository(database, logger),
		executionRepo: NewExecutionRepository(database, logger),
	}

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return postgres, nil
}

// DB exposes the underlying connection so sibling stores (checkpoints) can
// share it.
func (p *Persistence) DB() *sql.DB {
	return p.db
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflowRepo
}

func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return p.executionRepo
}
