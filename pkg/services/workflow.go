package services

import (
	"context"
	"fmt"
	"time"

	"github.com/beaconcrm/automation/pkg/models"
	"github.com/beaconcrm/automation/pkg/persistence"
	"github.com/google/uuid"
)

// WorkflowService owns workflow lifecycle operations for the HTTP API.
type WorkflowService struct {
	persistence persistence.Persistence
}

func NewWorkflowService(p persistence.Persistence) *WorkflowService {
	return &WorkflowService{persistence: p}
}

// Create validates and persists a new workflow. New workflows without an
// explicit status start as drafts.
func (s *WorkflowService) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow.ID == "" {
		workflow.ID = fmt.Sprintf("wf-%s", uuid.New().String()[:8])
	}

	if workflow.Status == "" {
		workflow.Status = models.WorkflowStatusDraft
	}

	now := time.Now().UTC()
	workflow.CreatedAt = now
	workflow.UpdatedAt = now

	if err := workflow.Validate(); err != nil {
		return nil, NewValidationError(err)
	}

	if err := s.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, err
	}

	return workflow, nil
}

// Update validates and persists changes to an existing workflow.
func (s *WorkflowService) Update(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	workflow.UpdatedAt = time.Now().UTC()

	if err := workflow.Validate(); err != nil {
		return nil, NewValidationError(err)
	}

	if err := s.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, err
	}

	return workflow, nil
}

func (s *WorkflowService) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	return s.persistence.WorkflowRepository().GetByID(ctx, id)
}

func (s *WorkflowService) Delete(ctx context.Context, id string) error {
	return s.persistence.WorkflowRepository().Delete(ctx, id)
}

// ListExecutions returns a workflow's executions ordered by start time.
func (s *WorkflowService) ListExecutions(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	return s.persistence.ExecutionRepository().ListByWorkflow(ctx, workflowID)
}

// HealthCheck verifies the persistence backend is reachable.
func (s *WorkflowService) HealthCheck(ctx context.Context) (string, bool) {
	if err := s.persistence.HealthCheck(ctx); err != nil {
		return err.Error(), false
	}

	return "ok", true
}
