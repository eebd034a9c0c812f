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
	"time"

	"github.com/beaconcrm/automation/pkg/models"
	"github.com/beaconcrm/automation/pkg/persistence"
)

// WorkflowRepository stores one JSON file per workflow under <root>/workflows.
// The mutex serializes RecordExecution so aggregate stats never lose updates
// under concurrent executions of the same workflow.
type WorkflowRepository struct {
	root string
	mu   sync.Mutex
}

func NewWorkflowRepository(root string) *WorkflowRepository {
	return &WorkflowRepository{root: root}
}

func (wr *WorkflowRepository) dir() string {
	return filepath.Join(wr.root, "workflows")
}

func (wr *WorkflowRepository) path(id string) string {
	return filepath.Join(wr.dir(), id+".json")
}

func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("id cannot be empty")
	}

	if strings.Contains(id, "..") || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("id contains invalid characters")
	}

	return nil
}

func (wr *WorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	if err := validateID(workflow.ID); err != nil {
		return persistence.NewStoreError("Save", workflow.ID, err)
	}

	wr.mu.Lock()
	defer wr.mu.Unlock()

	return wr.write(workflow)
}

// write persists a workflow. The caller must hold the mutex.
func (wr *WorkflowRepository) write(workflow *models.Workflow) error {
	if err := os.MkdirAll(wr.dir(), 0750); err != nil {
		return persistence.NewStoreError("Save", workflow.ID,
			fmt.Errorf("failed to create workflows directory: %w", err))
	}

	data, err := json.Marshal(workflow)
	if err != nil {
		return persistence.NewStoreError("Save", workflow.ID,
			fmt.Errorf("failed to marshal workflow: %w", err))
	}

	if err := os.WriteFile(wr.path(workflow.ID), data, 0600); err != nil {
		return persistence.NewStoreError("Save", workflow.ID,
			fmt.Errorf("failed to write workflow: %w", err))
	}

	return nil
}

func (wr *WorkflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	if err := validateID(id); err != nil {
		return nil, persistence.NewStoreError("GetByID", id, err)
	}

	wr.mu.Lock()
	defer wr.mu.Unlock()

	return wr.read(id)
}

// read loads a workflow. The caller must hold the mutex.
func (wr *WorkflowRepository) read(id string) (*models.Workflow, error) {
	data, err := os.ReadFile(wr.path(id)) // #nosec G304 -- path is validated and constructed safely
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewStoreError("GetByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, persistence.NewStoreError("GetByID", id,
			fmt.Errorf("failed to read workflow: %w", err))
	}

	var workflow models.Workflow
	if err := json.Unmarshal(data, &workflow); err != nil {
		return nil, persistence.NewStoreError("GetByID", id,
			fmt.Errorf("failed to unmarshal workflow: %w", err))
	}

	return &workflow, nil
}

func (wr *WorkflowRepository) ListActiveByTrigger(_ context.Context, orgID string, triggerType models.TriggerType) ([]*models.Workflow, error) {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	entries, err := os.ReadDir(wr.dir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, persistence.NewStoreError("ListActiveByTrigger", orgID,
			fmt.Errorf("failed to read workflows directory: %w", err))
	}

	var matched []*models.Workflow

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		workflow, err := wr.read(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			return nil, err
		}

		if workflow.OrganizationID != orgID || workflow.TriggerType != triggerType {
			continue
		}

		if workflow.Status != models.WorkflowStatusActive {
			continue
		}

		matched = append(matched, workflow)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Priority > matched[j].Priority
	})

	return matched, nil
}

func (wr *WorkflowRepository) ListActiveByTriggerType(_ context.Context, triggerType models.TriggerType) ([]*models.Workflow, error) {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	entries, err := os.ReadDir(wr.dir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, persistence.NewStoreError("ListActiveByTriggerType", string(triggerType),
			fmt.Errorf("failed to read workflows directory: %w", err))
	}

	var matched []*models.Workflow

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		workflow, err := wr.read(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			return nil, err
		}

		if workflow.TriggerType != triggerType || workflow.Status != models.WorkflowStatusActive {
			continue
		}

		matched = append(matched, workflow)
	}

	return matched, nil
}

func (wr *WorkflowRepository) RecordExecution(_ context.Context, workflowID string, success bool, duration time.Duration) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	workflow, err := wr.read(workflowID)
	if err != nil {
		return persistence.NewStoreError("RecordExecution", workflowID, err)
	}

	workflow.Stats.ExecutionCount++

	if success {
		workflow.Stats.SuccessCount++
	} else {
		workflow.Stats.FailureCount++
	}

	// Two-sample running average of the previous value and the latest
	// duration. Biased toward recent runs; kept for continuity with the
	// historical stats the platform reports.
	durationMs := duration.Milliseconds()
	if workflow.Stats.AvgDurationMs == 0 {
		workflow.Stats.AvgDurationMs = durationMs
	} else {
		workflow.Stats.AvgDurationMs = (workflow.Stats.AvgDurationMs + durationMs) / 2
	}

	workflow.UpdatedAt = time.Now().UTC()

	return wr.write(workflow)
}

func (wr *WorkflowRepository) Delete(_ context.Context, id string) error {
	if err := validateID(id); err != nil {
		return persistence.NewStoreError("Delete", id, err)
	}

	wr.mu.Lock()
	defer wr.mu.Unlock()

	err := os.Remove(wr.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return persistence.NewStoreError("Delete", id, persistence.ErrWorkflowNotFound)
		}

		return persistence.NewStoreError("Delete", id, err)
	}

	return nil
}
