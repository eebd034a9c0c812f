package models

import "time"

// ExecutionStatus represents the state machine of a single workflow run.
// Transitions are pending -> running -> {completed, failed}; terminal states
// are never left.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed
}

// ExecutionLogEntry is one line of an execution's structured log.
type ExecutionLogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// ExecutionCounters tracks side effects attributed to an execution. They are
// incremented by the dispatcher through the executor's counter sink.
type ExecutionCounters struct {
	ActionsExecuted   int `json:"actions_executed"`
	NotificationsSent int `json:"notifications_sent"`
	APICallsMade      int `json:"api_calls_made"`
}

// Execution is one concrete run of a workflow triggered by an admitted event.
// It is created by the router's admission, mutated only by the owning executor
// and immutable once terminal.
type Execution struct {
	ID             string              `json:"id"`
	WorkflowID     string              `json:"workflow_id"     validate:"required"`
	OrganizationID string              `json:"organization_id" validate:"required"`
	Status         ExecutionStatus     `json:"status"`
	TriggerPayload map[string]any      `json:"trigger_payload,omitempty"`
	StepsCompleted int                 `json:"steps_completed"`
	StepsTotal     int                 `json:"steps_total"`
	CurrentStep    string              `json:"current_step,omitempty"`
	Log            []ExecutionLogEntry `json:"log,omitempty"`
	Success        bool                `json:"success"`
	ErrorMessage   string              `json:"error_message,omitempty"`
	Counters       ExecutionCounters   `json:"counters"`
	StartedAt      time.Time           `json:"started_at"`
	CompletedAt    *time.Time          `json:"completed_at,omitempty"`
}

// AppendLog adds a structured log entry stamped with the current time.
func (e *Execution) AppendLog(level, message string) {
	e.Log = append(e.Log, ExecutionLogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
	})
}

// Duration returns the wall-clock runtime, zero until the execution terminates.
func (e *Execution) Duration() time.Duration {
	if e.CompletedAt == nil {
		return 0
	}

	return e.CompletedAt.Sub(e.StartedAt)
}
