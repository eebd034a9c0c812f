// Package engine implements trigger routing and checkpointed workflow
// execution, the core of the automation platform.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/beaconcrm/automation/pkg/actions"
	"github.com/beaconcrm/automation/pkg/checkpoint"
	"github.com/beaconcrm/automation/pkg/eventbus"
	"github.com/beaconcrm/automation/pkg/events"
	"github.com/beaconcrm/automation/pkg/models"
	"github.com/beaconcrm/automation/pkg/otelhelper"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultActionTimeout bounds a single action dispatch.
	DefaultActionTimeout = 30 * time.Second

	// DefaultWorkflowTimeout bounds a whole execution, resumed or not.
	DefaultWorkflowTimeout = 15 * time.Minute
)

// Executor runs workflow executions step by step, writing a checkpoint after
// every completed step so a crashed execution can be resumed. Each execution
// is owned by exactly one Executor goroutine; cancellation and timeouts take
// effect at step boundaries.
type Executor struct {
	logger      *slog.Logger
	workflows   persistenceWorkflows
	executions  persistenceExecutions
	checkpoints checkpoint.Store
	dispatcher  *actions.Dispatcher
	publisher   eventbus.EventPublisher
	tracer      trace.Tracer

	actionTimeout   time.Duration
	workflowTimeout time.Duration

	mu      sync.Mutex
	running map[string]context.CancelCauseFunc
	wg      sync.WaitGroup
}

// Narrow views of the persistence repositories, so tests can stub exactly
// what the executor touches.
type persistenceWorkflows interface {
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	RecordExecution(ctx context.Context, workflowID string, success bool, duration time.Duration) error
}

type persistenceExecutions interface {
	Save(ctx context.Context, execution *models.Execution) error
	GetByID(ctx context.Context, id string) (*models.Execution, error)
}

type ExecutorOption func(*Executor)

func WithActionTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.actionTimeout = d }
}

func WithWorkflowTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.workflowTimeout = d }
}

func WithTracer(tracer trace.Tracer) ExecutorOption {
	return func(e *Executor) { e.tracer = tracer }
}

func NewExecutor(
	logger *slog.Logger,
	workflows persistenceWorkflows,
	executions persistenceExecutions,
	checkpoints checkpoint.Store,
	dispatcher *actions.Dispatcher,
	publisher eventbus.EventPublisher,
	opts ...ExecutorOption,
) *Executor {
	executor := &Executor{
		logger:          logger.With("module", "workflow_executor"),
		workflows:       workflows,
		executions:      executions,
		checkpoints:     checkpoints,
		dispatcher:      dispatcher,
		publisher:       publisher,
		actionTimeout:   DefaultActionTimeout,
		workflowTimeout: DefaultWorkflowTimeout,
		running:         make(map[string]context.CancelCauseFunc),
	}

	for _, opt := range opts {
		opt(executor)
	}

	return executor
}

// Start creates a fresh execution of the workflow and launches its step loop
// on a dedicated worker goroutine, one worker per in-flight execution. It
// returns the pending execution record immediately; callers follow progress
// through Status and stop the worker through Cancel.
func (e *Executor) Start(ctx context.Context, workflow *models.Workflow, triggerPayload map[string]any) (*models.Execution, error) {
	if !workflow.Routable() {
		return nil, fmt.Errorf("%w: workflow %s has status %s", ErrWorkflowNotExecutable, workflow.ID, workflow.Status)
	}

	execution := &models.Execution{
		ID:             generateExecutionID(),
		WorkflowID:     workflow.ID,
		OrganizationID: workflow.OrganizationID,
		Status:         models.ExecutionStatusPending,
		TriggerPayload: triggerPayload,
		StepsTotal:     len(workflow.Actions),
		StartedAt:      time.Now().UTC(),
	}

	if err := e.executions.Save(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to persist pending execution: %w", err)
	}

	snapshot := *execution
	e.launch(workflow, execution, 0)

	return &snapshot, nil
}

// Resume continues a non-terminal execution from its latest checkpoint. The
// step that was in flight when the process died has no checkpoint and runs
// again, so every action is delivered at least once.
func (e *Executor) Resume(ctx context.Context, executionID string) (*models.Execution, error) {
	execution, err := e.executions.GetByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if execution.Status.Terminal() {
		return nil, fmt.Errorf("%w: execution %s is %s", ErrExecutionNotResumable, executionID, execution.Status)
	}

	workflow, err := e.workflows.GetByID(ctx, execution.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch workflow %s: %w", execution.WorkflowID, err)
	}

	resumeStep := 0

	latest, err := e.checkpoints.Latest(ctx, executionID)

	switch {
	case err == nil:
		resumeStep = latest.StepIndex + 1
	case checkpoint.IsNotFound(err):
		// No checkpoint yet, restart from the first step.
	default:
		return nil, fmt.Errorf("failed to load latest checkpoint: %w", err)
	}

	e.logger.InfoContext(ctx, "Resuming execution",
		"execution_id", executionID,
		"workflow_id", workflow.ID,
		"resume_step", resumeStep,
	)

	snapshot := *execution
	e.launch(workflow, execution, resumeStep)

	return &snapshot, nil
}

// launch registers the execution as running and hands it to its worker
// goroutine. Registration happens before the worker starts so Cancel works as
// soon as Start or Resume returns. Workers run detached from the caller's
// context; a dropped HTTP request does not kill its execution.
func (e *Executor) launch(workflow *models.Workflow, execution *models.Execution, startStep int) {
	runCtx, cancel := context.WithCancelCause(context.Background())

	e.mu.Lock()
	e.running[execution.ID] = cancel
	e.mu.Unlock()

	e.wg.Add(1)

	go func() {
		defer e.wg.Done()
		defer cancel(nil)

		defer func() {
			e.mu.Lock()
			delete(e.running, execution.ID)
			e.mu.Unlock()
		}()

		if err := e.run(runCtx, workflow, execution, startStep); err != nil {
			e.logger.Error("Execution worker failed",
				"execution_id", execution.ID, "workflow_id", workflow.ID, "error", err)
		}
	}()
}

// Wait blocks until every in-flight execution has terminated.
func (e *Executor) Wait() {
	e.wg.Wait()
}

// Shutdown cancels all in-flight executions and waits for their workers to
// stop at the next step boundary.
func (e *Executor) Shutdown() {
	e.mu.Lock()
	for _, cancel := range e.running {
		cancel(ErrExecutionCancelled)
	}
	e.mu.Unlock()

	e.wg.Wait()
}

// Cancel requests cooperative cancellation of a running execution. The
// execution terminates as failed at the next step boundary; the step in
// flight is never interrupted mid-action.
func (e *Executor) Cancel(_ context.Context, executionID string) error {
	e.mu.Lock()
	cancel, ok := e.running[executionID]
	e.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrExecutionNotRunning, executionID)
	}

	cancel(ErrExecutionCancelled)

	return nil
}

// Status returns the persisted state of an execution.
func (e *Executor) Status(ctx context.Context, executionID string) (*models.Execution, error) {
	return e.executions.GetByID(ctx, executionID)
}

func (e *Executor) run(ctx context.Context, workflow *models.Workflow, execution *models.Execution, startStep int) error {
	runCtx, timeoutCancel := context.WithTimeout(ctx, e.workflowTimeout)
	defer timeoutCancel()

	// Terminal writes and lifecycle events must survive cancellation and the
	// workflow timeout.
	persistCtx := context.WithoutCancel(ctx)

	logger := e.logger.With(
		"execution_id", execution.ID,
		"workflow_id", workflow.ID,
		"organization_id", workflow.OrganizationID,
	)

	if e.tracer != nil {
		var span trace.Span

		runCtx, span = otelhelper.StartSpan(runCtx, e.tracer, "workflow.execute",
			attribute.String(otelhelper.ExecutionIDKey, execution.ID),
			attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
			attribute.String(otelhelper.OrganizationIDKey, workflow.OrganizationID),
		)
		defer span.End()
	}

	execution.Status = models.ExecutionStatusRunning
	if err := e.executions.Save(runCtx, execution); err != nil {
		return fmt.Errorf("failed to mark execution running: %w", err)
	}

	e.publish(runCtx, execution.ID, &events.ExecutionStarted{
		BaseEvent:   events.NewBaseEvent(events.ExecutionStartedEvent, workflow.ID),
		ExecutionID: execution.ID,
		ResumeStep:  startStep,
		StepsTotal:  execution.StepsTotal,
	})

	logger.InfoContext(runCtx, "Starting execution", "start_step", startStep, "steps_total", execution.StepsTotal)

	for index := startStep; index < len(workflow.Actions); index++ {
		if err := runCtx.Err(); err != nil {
			return e.terminate(persistCtx, workflow, execution, boundaryError(runCtx))
		}

		action := workflow.Actions[index]
		execution.CurrentStep = stepName(action, index)

		stepErr := e.runStep(runCtx, workflow, execution, action, index)
		if stepErr != nil {
			if action.Critical {
				logger.ErrorContext(runCtx, "Critical action failed, aborting execution",
					"step", execution.CurrentStep, "error", stepErr)

				execution.AppendLog("error", fmt.Sprintf("critical action %s failed: %v", execution.CurrentStep, stepErr))

				return e.terminate(persistCtx, workflow, execution, stepErr)
			}

			logger.WarnContext(runCtx, "Non-critical action failed, continuing",
				"step", execution.CurrentStep, "error", stepErr)

			execution.AppendLog("warn", fmt.Sprintf("action %s failed: %v", execution.CurrentStep, stepErr))
		} else {
			execution.AppendLog("info", fmt.Sprintf("action %s completed", execution.CurrentStep))
		}

		// A failed non-critical step is checkpointed so a resume skips it,
		// but it does not count as completed.
		if stepErr == nil {
			execution.StepsCompleted++
		}

		if err := e.writeCheckpoint(runCtx, execution, action, index, stepErr); err != nil {
			logger.ErrorContext(runCtx, "Checkpoint write failed, aborting execution",
				"step_index", index, "error", err)

			return e.terminate(persistCtx, workflow, execution, err)
		}

		if err := e.executions.Save(runCtx, execution); err != nil {
			return e.terminate(persistCtx, workflow, execution, fmt.Errorf("failed to persist execution progress: %w", err))
		}
	}

	return e.terminate(persistCtx, workflow, execution, nil)
}

// runStep dispatches one action under the per-action timeout.
func (e *Executor) runStep(ctx context.Context, workflow *models.Workflow, execution *models.Execution, action models.Action, index int) error {
	stepCtx, cancel := context.WithTimeout(ctx, e.actionTimeout)
	defer cancel()

	if e.tracer != nil {
		var span trace.Span

		stepCtx, span = otelhelper.StartSpan(stepCtx, e.tracer, "workflow.step",
			attribute.String(otelhelper.ActionTypeKey, string(action.Type)),
			attribute.Int(otelhelper.StepIndexKey, index),
		)
		defer span.End()

		defer func() {
			if err := stepCtx.Err(); err != nil {
				otelhelper.SetExecutionError(span, err, execution.ID, workflow.ID)
			}
		}()
	}

	execCtx := actions.ExecutionContext{
		ExecutionID:    execution.ID,
		WorkflowID:     workflow.ID,
		OrganizationID: workflow.OrganizationID,
		TriggerPayload: execution.TriggerPayload,
	}

	return e.dispatcher.Dispatch(stepCtx, action, execCtx, func(kind models.ActionKind) {
		execution.Counters.ActionsExecuted++

		switch kind {
		case models.ActionKindNotification:
			execution.Counters.NotificationsSent++
		case models.ActionKindAPICall:
			execution.Counters.APICallsMade++
		case models.ActionKindInternal:
		}
	})
}

func (e *Executor) writeCheckpoint(ctx context.Context, execution *models.Execution, action models.Action, index int, stepErr error) error {
	state := map[string]any{
		"steps_completed":    execution.StepsCompleted,
		"actions_executed":   execution.Counters.ActionsExecuted,
		"notifications_sent": execution.Counters.NotificationsSent,
		"api_calls_made":     execution.Counters.APICallsMade,
	}

	stepStatus := "completed"
	if stepErr != nil {
		stepStatus = "failed_noncritical"
	}

	metadata := map[string]any{
		"action_type": string(action.Type),
		"step_name":   stepName(action, index),
		"step_status": stepStatus,
	}

	_, err := e.checkpoints.Put(ctx, execution.ID, index, state, metadata)

	return err
}

// terminate moves the execution to its terminal state, folds the result into
// the workflow's aggregate stats and publishes the matching lifecycle event.
// The caller passes a context that survives cancellation so a cancelled or
// timed-out run can still persist its outcome.
func (e *Executor) terminate(ctx context.Context, workflow *models.Workflow, execution *models.Execution, cause error) error {
	now := time.Now().UTC()
	execution.CompletedAt = &now

	if cause == nil {
		execution.Status = models.ExecutionStatusCompleted
		execution.Success = true
		execution.CurrentStep = ""
		execution.AppendLog("info", "execution completed")
	} else {
		execution.Status = models.ExecutionStatusFailed
		execution.Success = false
		execution.ErrorMessage = cause.Error()
		execution.AppendLog("error", cause.Error())
	}

	if err := e.executions.Save(ctx, execution); err != nil {
		return fmt.Errorf("failed to persist terminal execution: %w", err)
	}

	if err := e.workflows.RecordExecution(ctx, workflow.ID, execution.Success, execution.Duration()); err != nil {
		e.logger.ErrorContext(ctx, "Failed to record execution stats",
			"workflow_id", workflow.ID, "execution_id", execution.ID, "error", err)
	}

	switch {
	case cause == nil:
		e.publish(ctx, execution.ID, &events.ExecutionCompleted{
			BaseEvent:   events.NewBaseEvent(events.ExecutionCompletedEvent, workflow.ID),
			ExecutionID: execution.ID,
			Duration:    execution.Duration(),
			Counters:    execution.Counters,
		})
	case errors.Is(cause, ErrExecutionCancelled):
		e.publish(ctx, execution.ID, &events.ExecutionCancelled{
			BaseEvent:   events.NewBaseEvent(events.ExecutionCancelledEvent, workflow.ID),
			ExecutionID: execution.ID,
		})
	default:
		e.publish(ctx, execution.ID, &events.ExecutionFailed{
			BaseEvent:   events.NewBaseEvent(events.ExecutionFailedEvent, workflow.ID),
			ExecutionID: execution.ID,
			Error:       cause.Error(),
			Duration:    execution.Duration(),
		})
	}

	return nil
}

func (e *Executor) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(ctx, key, event); err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish event",
			"event_type", event.GetType(), "key", key, "error", err)
	}
}

// boundaryError translates a cancelled run context into the failure cause
// reported for the execution.
func boundaryError(ctx context.Context) error {
	cause := context.Cause(ctx)

	if errors.Is(cause, ErrExecutionCancelled) {
		return ErrExecutionCancelled
	}

	if errors.Is(cause, context.DeadlineExceeded) {
		return fmt.Errorf("workflow timeout exceeded: %w", cause)
	}

	return cause
}

func stepName(action models.Action, index int) string {
	if action.Name != "" {
		return action.Name
	}

	return fmt.Sprintf("%s[%d]", action.Type, index)
}

func generateExecutionID() string {
	return fmt.Sprintf("exec-%s", uuid.New().String()[:8])
}
