package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/beaconcrm/automation/pkg/models"
	"github.com/beaconcrm/automation/pkg/persistence/sqlbase"
	"github.com/google/uuid"

	_ "github.com/lib/pq"
)

// PostgresStore persists checkpoints in PostgreSQL. The unique constraint on
// (execution_id, step_index) backs up the in-transaction max check, so the
// gapless sequence holds even under concurrent writers.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func postgresMigrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS execution_checkpoints (
				id VARCHAR(255) PRIMARY KEY,
				execution_id VARCHAR(255) NOT NULL,
				step_index INTEGER NOT NULL,
				state JSONB,
				metadata JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				UNIQUE (execution_id, step_index)
			);
			CREATE INDEX IF NOT EXISTS idx_execution_checkpoints_execution
				ON execution_checkpoints (execution_id, step_index);
			CREATE INDEX IF NOT EXISTS idx_execution_checkpoints_created_at
				ON execution_checkpoints (created_at);
		`,
	}
}

// NewPostgresStore creates a checkpoint store on an existing database
// connection and runs its migrations.
func NewPostgresStore(ctx context.Context, logger *slog.Logger, db *sql.DB) (*PostgresStore, error) {
	store := &PostgresStore{
		db:     db,
		logger: logger.With("module", "checkpoint_postgres_store"),
	}

	migrationManager := sqlbase.NewMigrationManager(logger, db, "checkpoint_schema_migrations", postgresMigrations())

	err := migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run checkpoint migrations: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) Put(ctx context.Context, executionID string, stepIndex int, state, metadata map[string]any) (string, error) {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return "", &CheckpointError{Op: "Put", ExecutionID: executionID, StepIndex: stepIndex,
			Err: fmt.Errorf("failed to marshal state: %w", err)}
	}

	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return "", &CheckpointError{Op: "Put", ExecutionID: executionID, StepIndex: stepIndex,
			Err: fmt.Errorf("failed to marshal metadata: %w", err)}
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return "", &CheckpointError{Op: "Put", ExecutionID: executionID, StepIndex: stepIndex,
			Err: fmt.Errorf("failed to begin transaction: %w", err)}
	}

	defer func() {
		_ = tx.Rollback()
	}()

	var maxIndex sql.NullInt64

	err = tx.QueryRowContext(ctx,
		`SELECT MAX(step_index) FROM execution_checkpoints WHERE execution_id = $1`,
		executionID,
	).Scan(&maxIndex)
	if err != nil {
		return "", &CheckpointError{Op: "Put", ExecutionID: executionID, StepIndex: stepIndex,
			Err: fmt.Errorf("failed to query max step index: %w", err)}
	}

	expected := 0
	if maxIndex.Valid {
		expected = int(maxIndex.Int64) + 1
	}

	if stepIndex != expected {
		return "", &CheckpointError{
			Op:          "Put",
			ExecutionID: executionID,
			StepIndex:   stepIndex,
			Err:         ErrOutOfOrderCheckpoint,
		}
	}

	id := "cp-" + uuid.New().String()[:8]

	_, err = tx.ExecContext(ctx, `
		INSERT INTO execution_checkpoints (id, execution_id, step_index, state, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, executionID, stepIndex, stateJSON, metadataJSON, time.Now().UTC())
	if err != nil {
		return "", &CheckpointError{Op: "Put", ExecutionID: executionID, StepIndex: stepIndex,
			Err: fmt.Errorf("failed to insert checkpoint: %w", err)}
	}

	err = tx.Commit()
	if err != nil {
		return "", &CheckpointError{Op: "Put", ExecutionID: executionID, StepIndex: stepIndex,
			Err: fmt.Errorf("failed to commit checkpoint: %w", err)}
	}

	return id, nil
}

func (s *PostgresStore) Latest(ctx context.Context, executionID string) (*models.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, execution_id, step_index, state, metadata, created_at
		FROM execution_checkpoints
		WHERE execution_id = $1
		ORDER BY step_index DESC
		LIMIT 1
	`, executionID)

	cp, err := scanCheckpoint(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &CheckpointError{Op: "Latest", ExecutionID: executionID, Err: ErrCheckpointNotFound}
		}

		return nil, &CheckpointError{Op: "Latest", ExecutionID: executionID, Err: err}
	}

	return cp, nil
}

func (s *PostgresStore) List(ctx context.Context, executionID string) ([]*models.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, execution_id, step_index, state, metadata, created_at
		FROM execution_checkpoints
		WHERE execution_id = $1
		ORDER BY step_index ASC
	`, executionID)
	if err != nil {
		return nil, &CheckpointError{Op: "List", ExecutionID: executionID,
			Err: fmt.Errorf("failed to query checkpoints: %w", err)}
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var checkpoints []*models.Checkpoint

	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, &CheckpointError{Op: "List", ExecutionID: executionID, Err: err}
		}

		checkpoints = append(checkpoints, cp)
	}

	if err := rows.Err(); err != nil {
		return nil, &CheckpointError{Op: "List", ExecutionID: executionID, Err: err}
	}

	return checkpoints, nil
}

func (s *PostgresStore) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM execution_checkpoints WHERE created_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired checkpoints: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count removed checkpoints: %w", err)
	}

	return int(removed), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row rowScanner) (*models.Checkpoint, error) {
	var (
		cp           models.Checkpoint
		stateJSON    []byte
		metadataJSON []byte
	)

	err := row.Scan(&cp.ID, &cp.ExecutionID, &cp.StepIndex, &stateJSON, &metadataJSON, &cp.CreatedAt)
	if err != nil {
		return nil, err
	}

	if len(stateJSON) > 0 {
		if err := json.Unmarshal(stateJSON, &cp.State); err != nil {
			return nil, fmt.Errorf("failed to unmarshal state: %w", err)
		}
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &cp.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &cp, nil
}
