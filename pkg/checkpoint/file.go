package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/beaconcrm/automation/pkg/models"
	"github.com/google/uuid"
)

// FileStore persists checkpoints as one JSON file per checkpoint under
// <root>/checkpoints/<execution-id>/<step-index>.json.
type FileStore struct {
	root string
	mu   sync.Mutex
}

func NewFileStore(root string) (*FileStore, error) {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	if err := os.MkdirAll(filepath.Join(cleanRoot, "checkpoints"), 0750); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}

	return &FileStore{root: cleanRoot}, nil
}

// validateExecutionID guards the filesystem paths built from caller input.
func validateExecutionID(executionID string) error {
	if executionID == "" {
		return errors.New("execution ID cannot be empty")
	}

	if strings.Contains(executionID, "..") || strings.ContainsAny(executionID, `/\`) {
		return errors.New("execution ID contains invalid characters")
	}

	return nil
}

func (s *FileStore) executionDir(executionID string) string {
	return filepath.Join(s.root, "checkpoints", executionID)
}

func (s *FileStore) Put(_ context.Context, executionID string, stepIndex int, state, metadata map[string]any) (string, error) {
	if err := validateExecutionID(executionID); err != nil {
		return "", &CheckpointError{Op: "Put", ExecutionID: executionID, StepIndex: stepIndex, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.load(executionID)
	if err != nil {
		return "", &CheckpointError{Op: "Put", ExecutionID: executionID, StepIndex: stepIndex, Err: err}
	}

	expected := 0
	if len(existing) > 0 {
		expected = existing[len(existing)-1].StepIndex + 1
	}

	if stepIndex != expected {
		return "", &CheckpointError{
			Op:          "Put",
			ExecutionID: executionID,
			StepIndex:   stepIndex,
			Err:         ErrOutOfOrderCheckpoint,
		}
	}

	cp := &models.Checkpoint{
		ID:          "cp-" + uuid.New().String()[:8],
		ExecutionID: executionID,
		StepIndex:   stepIndex,
		State:       state,
		Metadata:    metadata,
		CreatedAt:   time.Now().UTC(),
	}

	dir := s.executionDir(executionID)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", &CheckpointError{Op: "Put", ExecutionID: executionID, StepIndex: stepIndex,
			Err: fmt.Errorf("failed to create execution directory: %w", err)}
	}

	data, err := json.Marshal(cp)
	if err != nil {
		return "", &CheckpointError{Op: "Put", ExecutionID: executionID, StepIndex: stepIndex,
			Err: fmt.Errorf("failed to marshal checkpoint: %w", err)}
	}

	path := filepath.Join(dir, fmt.Sprintf("%06d.json", stepIndex))
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", &CheckpointError{Op: "Put", ExecutionID: executionID, StepIndex: stepIndex,
			Err: fmt.Errorf("failed to write checkpoint: %w", err)}
	}

	return cp.ID, nil
}

func (s *FileStore) Latest(_ context.Context, executionID string) (*models.Checkpoint, error) {
	if err := validateExecutionID(executionID); err != nil {
		return nil, &CheckpointError{Op: "Latest", ExecutionID: executionID, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.load(executionID)
	if err != nil {
		return nil, &CheckpointError{Op: "Latest", ExecutionID: executionID, Err: err}
	}

	if len(existing) == 0 {
		return nil, &CheckpointError{Op: "Latest", ExecutionID: executionID, Err: ErrCheckpointNotFound}
	}

	return existing[len(existing)-1], nil
}

func (s *FileStore) List(_ context.Context, executionID string) ([]*models.Checkpoint, error) {
	if err := validateExecutionID(executionID); err != nil {
		return nil, &CheckpointError{Op: "List", ExecutionID: executionID, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.load(executionID)
	if err != nil {
		return nil, &CheckpointError{Op: "List", ExecutionID: executionID, Err: err}
	}

	return existing, nil
}

func (s *FileStore) Cleanup(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := filepath.Join(s.root, "checkpoints")

	executions, err := os.ReadDir(base)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}

		return 0, fmt.Errorf("failed to read checkpoints directory: %w", err)
	}

	removed := 0

	for _, entry := range executions {
		if !entry.IsDir() {
			continue
		}

		checkpoints, err := s.load(entry.Name())
		if err != nil {
			return removed, err
		}

		remaining := len(checkpoints)

		for _, cp := range checkpoints {
			if !cp.CreatedAt.Before(olderThan) {
				continue
			}

			path := filepath.Join(base, entry.Name(), fmt.Sprintf("%06d.json", cp.StepIndex))
			if err := os.Remove(path); err != nil {
				return removed, fmt.Errorf("failed to remove checkpoint %s: %w", path, err)
			}

			removed++
			remaining--
		}

		if remaining == 0 {
			_ = os.Remove(filepath.Join(base, entry.Name()))
		}
	}

	return removed, nil
}

// load reads all checkpoints of an execution ordered by step index.
// The caller must hold the mutex.
func (s *FileStore) load(executionID string) ([]*models.Checkpoint, error) {
	dir := s.executionDir(executionID)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read execution directory: %w", err)
	}

	checkpoints := make([]*models.Checkpoint, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name())) // #nosec G304 -- path is validated and constructed safely
		if err != nil {
			return nil, fmt.Errorf("failed to read checkpoint %s: %w", entry.Name(), err)
		}

		var cp models.Checkpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			return nil, fmt.Errorf("failed to unmarshal checkpoint %s: %w", entry.Name(), err)
		}

		checkpoints = append(checkpoints, &cp)
	}

	sort.Slice(checkpoints, func(i, j int) bool {
		return checkpoints[i].StepIndex < checkpoints[j].StepIndex
	})

	return checkpoints, nil
}
