// Package events defines event types and structures for engine lifecycle notifications.
package events

import (
	"time"

	"github.com/beaconcrm/automation/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Bus topics.
const Topic = "automation.events"                  // Engine lifecycle events
const DeliveryTopic = "automation.deliveries"      // Outboxed action deliveries
const EventMetadataKey = "key"                     // Message partition key
const EventTypeMetadataKey = "event_type"          // Concrete event type for unmarshalling

const (
	// Ingress.
	TriggerReceivedEvent EventType = "trigger.received"

	// Execution lifecycle.
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionCancelledEvent EventType = "execution.cancelled"

	// Outbox.
	ActionDeliveryEvent EventType = "action.delivery"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		Metadata:   make(map[string]any),
	}
}

// TriggerReceived is published by trigger sources (scheduler, webhooks,
// platform events, crisis detector) and consumed by the engine runner, which
// feeds it into the trigger router.
type TriggerReceived struct {
	BaseEvent

	TriggerType    models.TriggerType `json:"trigger_type"`
	OrganizationID string             `json:"organization_id"`
	Payload        map[string]any     `json:"payload,omitempty"`
}

func (e TriggerReceived) GetType() EventType {
	return TriggerReceivedEvent
}

type ExecutionStarted struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	ResumeStep  int    `json:"resume_step"`
	StepsTotal  int    `json:"steps_total"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID string                   `json:"execution_id"`
	Duration    time.Duration            `json:"duration"`
	Counters    models.ExecutionCounters `json:"counters"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	ExecutionID string        `json:"execution_id"`
	Error       string        `json:"error"`
	Duration    time.Duration `json:"duration"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

type ExecutionCancelled struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
}

func (e ExecutionCancelled) GetType() EventType {
	return ExecutionCancelledEvent
}

// ActionDelivery carries a notification or CRM action out of the engine for
// an external delivery service to perform. The engine considers the action
// done once the event is published.
type ActionDelivery struct {
	BaseEvent

	ExecutionID    string            `json:"execution_id"`
	OrganizationID string            `json:"organization_id"`
	ActionType     models.ActionType `json:"action_type"`
	Configuration  map[string]any    `json:"configuration,omitempty"`
}

func (e ActionDelivery) GetType() EventType {
	return ActionDeliveryEvent
}
