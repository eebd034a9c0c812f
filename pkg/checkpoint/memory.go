package checkpoint

import (
	"context"
	"sync"
	"time"

	"github.com/beaconcrm/automation/pkg/models"
	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used by tests and single-node setups.
type MemoryStore struct {
	mu          sync.RWMutex
	checkpoints map[string][]*models.Checkpoint // execution ID -> ordered by step index
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		checkpoints: make(map[string][]*models.Checkpoint),
	}
}

func (s *MemoryStore) Put(_ context.Context, executionID string, stepIndex int, state, metadata map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.checkpoints[executionID]

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
		State:       cloneMap(state),
		Metadata:    cloneMap(metadata),
		CreatedAt:   time.Now().UTC(),
	}

	s.checkpoints[executionID] = append(existing, cp)

	return cp.ID, nil
}

func (s *MemoryStore) Latest(_ context.Context, executionID string) (*models.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	existing := s.checkpoints[executionID]
	if len(existing) == 0 {
		return nil, &CheckpointError{Op: "Latest", ExecutionID: executionID, Err: ErrCheckpointNotFound}
	}

	cp := *existing[len(existing)-1]

	return &cp, nil
}

func (s *MemoryStore) List(_ context.Context, executionID string) ([]*models.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	existing := s.checkpoints[executionID]

	result := make([]*models.Checkpoint, 0, len(existing))
	for _, cp := range existing {
		copied := *cp
		result = append(result, &copied)
	}

	return result, nil
}

func (s *MemoryStore) Cleanup(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0

	for executionID, existing := range s.checkpoints {
		kept := existing[:0]

		for _, cp := range existing {
			if cp.CreatedAt.Before(olderThan) {
				removed++
			} else {
				kept = append(kept, cp)
			}
		}

		if len(kept) == 0 {
			delete(s.checkpoints, executionID)
		} else {
			s.checkpoints[executionID] = kept
		}
	}

	return removed, nil
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}

	copied := make(map[string]any, len(m))
	for k, v := range m {
		copied[k] = v
	}

	return copied
}
