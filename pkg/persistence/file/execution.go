package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/beaconcrm/automation/pkg/models"
	"github.com/beaconcrm/automation/pkg/persistence"
)

// ExecutionRepository stores one JSON file per execution under <root>/executions.
type ExecutionRepository struct {
	root string
	mu   sync.RWMutex
}

func NewExecutionRepository(root string) *ExecutionRepository {
	return &ExecutionRepository{root: root}
}

func (er *ExecutionRepository) dir() string {
	return filepath.Join(er.root, "executions")
}

func (er *ExecutionRepository) path(id string) string {
	return filepath.Join(er.dir(), id+".json")
}

func (er *ExecutionRepository) Save(_ context.Context, execution *models.Execution) error {
	if err := validateID(execution.ID); err != nil {
		return persistence.NewStoreError("Save", execution.ID, err)
	}

	er.mu.Lock()
	defer er.mu.Unlock()

	if err := os.MkdirAll(er.dir(), 0750); err != nil {
		return persistence.NewStoreError("Save", execution.ID,
			fmt.Errorf("failed to create executions directory: %w", err))
	}

	data, err := json.Marshal(execution)
	if err != nil {
		return persistence.NewStoreError("Save", execution.ID,
			fmt.Errorf("failed to marshal execution: %w", err))
	}

	if err := os.WriteFile(er.path(execution.ID), data, 0600); err != nil {
		return persistence.NewStoreError("Save", execution.ID,
			fmt.Errorf("failed to write execution: %w", err))
	}

	return nil
}

func (er *ExecutionRepository) GetByID(_ context.Context, id string) (*models.Execution, error) {
	if err := validateID(id); err != nil {
		return nil, persistence.NewStoreError("GetByID", id, err)
	}

	er.mu.RLock()
	defer er.mu.RUnlock()

	return er.read(id)
}

func (er *ExecutionRepository) read(id string) (*models.Execution, error) {
	data, err := os.ReadFile(er.path(id)) // #nosec G304 -- path is validated and constructed safely
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewStoreError("GetByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewStoreError("GetByID", id,
			fmt.Errorf("failed to read execution: %w", err))
	}

	var execution models.Execution
	if err := json.Unmarshal(data, &execution); err != nil {
		return nil, persistence.NewStoreError("GetByID", id,
			fmt.Errorf("failed to unmarshal execution: %w", err))
	}

	return &execution, nil
}

func (er *ExecutionRepository) ListByWorkflow(_ context.Context, workflowID string) ([]*models.Execution, error) {
	er.mu.RLock()
	defer er.mu.RUnlock()

	entries, err := os.ReadDir(er.dir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, persistence.NewStoreError("ListByWorkflow", workflowID,
			fmt.Errorf("failed to read executions directory: %w", err))
	}

	var executions []*models.Execution

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		execution, err := er.read(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			return nil, err
		}

		if execution.WorkflowID == workflowID {
			executions = append(executions, execution)
		}
	}

	sort.SliceStable(executions, func(i, j int) bool {
		return executions[i].StartedAt.Before(executions[j].StartedAt)
	})

	return executions, nil
}
