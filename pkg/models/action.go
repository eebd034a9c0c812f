package models

import "errors"

// ActionType identifies one unit of work within a workflow. The set is
// closed; the dispatcher rejects anything outside it with ErrUnknownActionType
// before looking for a handler.
type ActionType string

const (
	ActionSendEmail           ActionType = "send_email"
	ActionSendSMS             ActionType = "send_sms"
	ActionSendWhatsApp        ActionType = "send_whatsapp"
	ActionBrowserNotification ActionType = "browser_notification"
	ActionSlackMessage        ActionType = "slack_message"
	ActionCreateTask          ActionType = "create_task"
	ActionUpdateContact       ActionType = "update_contact"
	ActionAddTag              ActionType = "add_tag"
	ActionWebhook             ActionType = "webhook"
	ActionCrisisAlert         ActionType = "crisis_alert"
)

// ErrUnknownActionType indicates an action type outside the closed set.
var ErrUnknownActionType = errors.New("unknown action type")

// KnownActionType reports whether t is part of the closed action set.
func KnownActionType(t ActionType) bool {
	switch t {
	case ActionSendEmail,
		ActionSendSMS,
		ActionSendWhatsApp,
		ActionBrowserNotification,
		ActionSlackMessage,
		ActionCreateTask,
		ActionUpdateContact,
		ActionAddTag,
		ActionWebhook,
		ActionCrisisAlert:
		return true
	default:
		return false
	}
}

// ActionKind classifies an action type for execution-level counters.
type ActionKind int

const (
	ActionKindInternal ActionKind = iota // CRM-internal mutations (tasks, contacts, tags)
	ActionKindNotification
	ActionKindAPICall
)

// Kind returns the counter classification for an action type.
func (t ActionType) Kind() ActionKind {
	switch t {
	case ActionSendEmail, ActionSendSMS, ActionSendWhatsApp,
		ActionBrowserNotification, ActionSlackMessage, ActionCrisisAlert:
		return ActionKindNotification
	case ActionWebhook:
		return ActionKindAPICall
	default:
		return ActionKindInternal
	}
}

// Action is one step of a workflow. Critical actions abort the execution on
// failure; non-critical failures are logged and skipped.
type Action struct {
	Type          ActionType     `json:"type"           validate:"required"`
	Name          string         `json:"name,omitempty"`
	Configuration map[string]any `json:"configuration,omitempty"`
	Critical      bool           `json:"critical"`
}
