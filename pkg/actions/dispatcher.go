package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/beaconcrm/automation/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// ErrUnsupportedAction indicates an action type with no registered handler
// (or one outside the closed set). The executor treats it as a step failure,
// fatal only when the action is critical.
var ErrUnsupportedAction = errors.New("unsupported action type")

// CounterSink receives one call per successfully dispatched action so the
// owning executor can update execution-level counters.
type CounterSink func(kind models.ActionKind)

// DispatchError wraps an action failure with routing context.
type DispatchError struct {
	ActionType  models.ActionType
	ExecutionID string
	Err         error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("action %s failed for execution %s: %v", e.ActionType, e.ExecutionID, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

func (e *DispatchError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// Dispatcher routes actions to handlers registered per action type and
// validates handler configuration against the handler's JSON schema before
// executing. Registration is compile-time checked in the sense that only
// members of the closed models.ActionType set are accepted.
type Dispatcher struct {
	logger   *slog.Logger
	mu       sync.RWMutex
	handlers map[models.ActionType]Handler
	schemas  map[models.ActionType]*gojsonschema.Schema
}

func NewDispatcher(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		logger:   logger.With("module", "action_dispatcher"),
		handlers: make(map[models.ActionType]Handler),
		schemas:  make(map[models.ActionType]*gojsonschema.Schema),
	}
}

// Register binds a handler to an action type. The handler's schema is
// compiled once here, not on every dispatch.
func (d *Dispatcher) Register(actionType models.ActionType, handler Handler) error {
	if !models.KnownActionType(actionType) {
		return fmt.Errorf("%w: %s", models.ErrUnknownActionType, actionType)
	}

	var compiled *gojsonschema.Schema

	if raw := handler.Schema(); raw != nil {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(raw))
		if err != nil {
			return fmt.Errorf("invalid config schema for action %s: %w", actionType, err)
		}

		compiled = schema
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.handlers[actionType] = handler

	if compiled != nil {
		d.schemas[actionType] = compiled
	}

	return nil
}

// Dispatch routes one action to its handler. On success the counter sink is
// called once with the action's kind; the dispatcher itself never mutates
// the execution.
func (d *Dispatcher) Dispatch(ctx context.Context, action models.Action, execCtx ExecutionContext, counters CounterSink) error {
	if !models.KnownActionType(action.Type) {
		return &DispatchError{ActionType: action.Type, ExecutionID: execCtx.ExecutionID, Err: ErrUnsupportedAction}
	}

	d.mu.RLock()
	handler, registered := d.handlers[action.Type]
	schema := d.schemas[action.Type]
	d.mu.RUnlock()

	if !registered {
		return &DispatchError{ActionType: action.Type, ExecutionID: execCtx.ExecutionID, Err: ErrUnsupportedAction}
	}

	if schema != nil {
		result, err := schema.Validate(gojsonschema.NewGoLoader(action.Configuration))
		if err != nil {
			return &DispatchError{ActionType: action.Type, ExecutionID: execCtx.ExecutionID,
				Err: fmt.Errorf("failed to validate configuration: %w", err)}
		}

		if !result.Valid() {
			return &DispatchError{ActionType: action.Type, ExecutionID: execCtx.ExecutionID,
				Err: fmt.Errorf("invalid configuration: %s", result.Errors()[0].String())}
		}
	}

	logger := d.logger.With(
		"action_type", action.Type,
		"execution_id", execCtx.ExecutionID,
		"workflow_id", execCtx.WorkflowID,
	)

	err := handler.Execute(ctx, action.Configuration, execCtx, logger)
	if err != nil {
		return &DispatchError{ActionType: action.Type, ExecutionID: execCtx.ExecutionID, Err: err}
	}

	if counters != nil {
		counters(action.Type.Kind())
	}

	return nil
}

// Registered reports whether a handler is bound to the action type.
func (d *Dispatcher) Registered(actionType models.ActionType) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, ok := d.handlers[actionType]

	return ok
}
