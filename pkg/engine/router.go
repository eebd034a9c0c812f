package engine

import (
	"context"
	"log/slog"

	"github.com/beaconcrm/automation/pkg/conditions"
	"github.com/beaconcrm/automation/pkg/models"
	"github.com/beaconcrm/automation/pkg/ratelimit"
)

// TriggerRouter matches incoming trigger events to the active workflows of an
// organization and starts an execution for every workflow whose conditions
// hold and whose rate limits admit it.
type TriggerRouter struct {
	logger    *slog.Logger
	workflows routerWorkflows
	evaluator *conditions.Evaluator
	governor  ratelimit.Governor
	executor  *Executor
}

type routerWorkflows interface {
	ListActiveByTrigger(ctx context.Context, orgID string, triggerType models.TriggerType) ([]*models.Workflow, error)
}

func NewTriggerRouter(
	logger *slog.Logger,
	workflows routerWorkflows,
	evaluator *conditions.Evaluator,
	governor ratelimit.Governor,
	executor *Executor,
) *TriggerRouter {
	return &TriggerRouter{
		logger:    logger.With("module", "trigger_router"),
		workflows: workflows,
		evaluator: evaluator,
		governor:  governor,
		executor:  executor,
	}
}

// Route fans one trigger event out to the organization's matching workflows,
// in priority order, and returns the pending execution records it started.
// Each execution runs on its own worker; Route does not wait for any of them.
// Workflows skipped by conditions or rate limits are logged, never errors.
// An unknown trigger type routes to nothing.
func (r *TriggerRouter) Route(ctx context.Context, orgID string, triggerType models.TriggerType, payload map[string]any) ([]*models.Execution, error) {
	logger := r.logger.With("organization_id", orgID, "trigger_type", triggerType)

	if !models.KnownTriggerType(triggerType) {
		logger.WarnContext(ctx, "Ignoring unknown trigger type")

		return nil, nil
	}

	workflows, err := r.workflows.ListActiveByTrigger(ctx, orgID, triggerType)
	if err != nil {
		return nil, err
	}

	var started []*models.Execution

	// A payload may pin the event to one workflow. The scheduler uses this
	// so a cron firing starts only the workflow whose schedule fired.
	pinned, _ := payload["workflow_id"].(string)

	for _, workflow := range workflows {
		if !workflow.Routable() {
			continue
		}

		if pinned != "" && pinned != workflow.ID {
			continue
		}

		if !r.evaluator.Evaluate(workflow.Conditions, payload) {
			logger.DebugContext(ctx, "Conditions not met, skipping workflow", "workflow_id", workflow.ID)

			continue
		}

		admitted, err := r.governor.Admit(ctx, workflow.ID, workflow.RateLimits)
		if err != nil {
			// Fail closed: an unreachable governor must not let a workflow
			// blow through its limits.
			logger.ErrorContext(ctx, "Rate governor unavailable, skipping workflow",
				"workflow_id", workflow.ID, "error", err)

			continue
		}

		if !admitted {
			logger.InfoContext(ctx, "Rate limit reached, skipping workflow", "workflow_id", workflow.ID)

			continue
		}

		execution, err := r.executor.Start(ctx, workflow, payload)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to start execution",
				"workflow_id", workflow.ID, "error", err)

			continue
		}

		started = append(started, execution)
	}

	return started, nil
}
