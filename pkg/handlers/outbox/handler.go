// Package outbox hands notification and CRM actions to external delivery
// services over the event bus. Concrete channel delivery (email, SMS,
// WhatsApp, Slack, task and contact writes) happens outside the engine.
package outbox

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/beaconcrm/automation/pkg/actions"
	"github.com/beaconcrm/automation/pkg/eventbus"
	"github.com/beaconcrm/automation/pkg/events"
	"github.com/beaconcrm/automation/pkg/models"
)

// Handler publishes one ActionDelivery event per dispatched action. The
// engine considers the action done once the event is on the bus; delivery
// failures are the consumer's responsibility.
type Handler struct {
	actionType models.ActionType
	publisher  eventbus.EventPublisher
}

func NewHandler(actionType models.ActionType, publisher eventbus.EventPublisher) *Handler {
	return &Handler{
		actionType: actionType,
		publisher:  publisher,
	}
}

func (h *Handler) Schema() map[string]any {
	// Delivery configs are validated by the consuming service, which owns
	// the per-channel schemas.
	return nil
}

func (h *Handler) Execute(ctx context.Context, config map[string]any, execCtx actions.ExecutionContext, logger *slog.Logger) error {
	event := events.ActionDelivery{
		BaseEvent:      events.NewBaseEvent(events.ActionDeliveryEvent, execCtx.WorkflowID),
		ExecutionID:    execCtx.ExecutionID,
		OrganizationID: execCtx.OrganizationID,
		ActionType:     h.actionType,
		Configuration:  config,
	}

	err := h.publisher.Publish(ctx, execCtx.WorkflowID, event)
	if err != nil {
		return fmt.Errorf("failed to publish %s delivery: %w", h.actionType, err)
	}

	logger.InfoContext(ctx, "Action delivery published", "delivery_type", h.actionType)

	return nil
}

// DeliveryTypes lists the action types routed through the outbox.
func DeliveryTypes() []models.ActionType {
	return []models.ActionType{
		models.ActionSendEmail,
		models.ActionSendSMS,
		models.ActionSendWhatsApp,
		models.ActionBrowserNotification,
		models.ActionSlackMessage,
		models.ActionCreateTask,
		models.ActionUpdateContact,
		models.ActionAddTag,
		models.ActionCrisisAlert,
	}
}

// RegisterAll binds an outbox handler for every delivery type on the dispatcher.
func RegisterAll(dispatcher *actions.Dispatcher, publisher eventbus.EventPublisher) error {
	for _, actionType := range DeliveryTypes() {
		if err := dispatcher.Register(actionType, NewHandler(actionType, publisher)); err != nil {
			return err
		}
	}

	return nil
}
