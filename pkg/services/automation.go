// Package services exposes the engine's operations as a single facade shared
// by the HTTP API and the event bus runner.
package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/beaconcrm/automation/pkg/checkpoint"
	"github.com/beaconcrm/automation/pkg/engine"
	"github.com/beaconcrm/automation/pkg/models"
)

type AutomationService struct {
	logger      *slog.Logger
	router      *engine.TriggerRouter
	executor    *engine.Executor
	checkpoints checkpoint.Store
}

func NewAutomationService(
	logger *slog.Logger,
	router *engine.TriggerRouter,
	executor *engine.Executor,
	checkpoints checkpoint.Store,
) *AutomationService {
	return &AutomationService{
		logger:      logger.With("module", "automation_service"),
		router:      router,
		executor:    executor,
		checkpoints: checkpoints,
	}
}

// ProcessTrigger routes one trigger event and returns the pending executions
// it started. Each execution runs on its own worker; callers follow progress
// through ExecutionStatus.
func (s *AutomationService) ProcessTrigger(ctx context.Context, orgID string, triggerType models.TriggerType, payload map[string]any) ([]*models.Execution, error) {
	return s.router.Route(ctx, orgID, triggerType, payload)
}

// ExecutionStatus returns the persisted state of an execution.
func (s *AutomationService) ExecutionStatus(ctx context.Context, executionID string) (*models.Execution, error) {
	return s.executor.Status(ctx, executionID)
}

// CancelExecution requests cooperative cancellation of a running execution.
func (s *AutomationService) CancelExecution(ctx context.Context, executionID string) error {
	return s.executor.Cancel(ctx, executionID)
}

// ResumeExecution restarts a non-terminal execution from its latest
// checkpoint.
func (s *AutomationService) ResumeExecution(ctx context.Context, executionID string) (*models.Execution, error) {
	return s.executor.Resume(ctx, executionID)
}

// ListCheckpoints returns an execution's checkpoints ordered by step index.
func (s *AutomationService) ListCheckpoints(ctx context.Context, executionID string) ([]*models.Checkpoint, error) {
	return s.checkpoints.List(ctx, executionID)
}

// CleanupCheckpoints removes checkpoints older than the retention window and
// returns how many were removed.
func (s *AutomationService) CleanupCheckpoints(ctx context.Context, retention time.Duration) (int, error) {
	olderThan := time.Now().UTC().Add(-retention)

	removed, err := s.checkpoints.Cleanup(ctx, olderThan)
	if err != nil {
		return 0, err
	}

	s.logger.InfoContext(ctx, "Checkpoint cleanup finished", "removed", removed, "older_than", olderThan)

	return removed, nil
}
