package models

import "errors"

// TriggerType identifies the source of an inbound event. The set is closed:
// the router only matches workflows against a known type, so adding a trigger
// means adding a constant here and a case in KnownTriggerType.
type TriggerType string

const (
	TriggerSchedule        TriggerType = "schedule"         // Scheduler ticks
	TriggerPlatformEvent   TriggerType = "platform_event"   // Domain events (donation created, volunteer joined, ...)
	TriggerWebhook         TriggerType = "webhook"          // Inbound webhooks
	TriggerMetricThreshold TriggerType = "metric_threshold" // Metric threshold evaluators
	TriggerUserAction      TriggerType = "user_action"      // Manual user actions
	TriggerCrisisAlert     TriggerType = "crisis_alert"     // Crisis detector alerts
)

// ErrUnknownTriggerType indicates a trigger type outside the closed set.
var ErrUnknownTriggerType = errors.New("unknown trigger type")

// KnownTriggerType reports whether t is part of the closed trigger set.
func KnownTriggerType(t TriggerType) bool {
	switch t {
	case TriggerSchedule,
		TriggerPlatformEvent,
		TriggerWebhook,
		TriggerMetricThreshold,
		TriggerUserAction,
		TriggerCrisisAlert:
		return true
	default:
		return false
	}
}
