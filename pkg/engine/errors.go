package engine

import "errors"

var (
	// ErrWorkflowNotExecutable indicates an attempt to start a workflow that
	// is not active or has no actions.
	ErrWorkflowNotExecutable = errors.New("workflow is not executable")

	// ErrExecutionNotRunning indicates a cancel request for an execution this
	// process is not currently running.
	ErrExecutionNotRunning = errors.New("execution is not running")

	// ErrExecutionNotResumable indicates a resume request for an execution
	// that already reached a terminal state.
	ErrExecutionNotResumable = errors.New("execution is not resumable")

	// ErrExecutionCancelled is the cancellation cause installed by Cancel,
	// distinguishing operator cancellation from the workflow timeout.
	ErrExecutionCancelled = errors.New("execution cancelled")
)
