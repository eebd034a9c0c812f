package cmd

import (
	"log/slog"

	"github.com/beaconcrm/automation/pkg/actions"
	"github.com/beaconcrm/automation/pkg/eventbus"
	"github.com/beaconcrm/automation/pkg/handlers/outbox"
	"github.com/beaconcrm/automation/pkg/handlers/webhook"
	"github.com/beaconcrm/automation/pkg/models"
)

// NewDispatcher builds the action dispatcher with the full closed action set
// registered: webhooks execute in-process, every other action type is
// outboxed to the delivery bus.
func NewDispatcher(logger *slog.Logger, deliveryPublisher eventbus.EventPublisher) (*actions.Dispatcher, error) {
	dispatcher := actions.NewDispatcher(logger)

	if err := dispatcher.Register(models.ActionWebhook, webhook.NewHandler()); err != nil {
		return nil, err
	}

	if err := outbox.RegisterAll(dispatcher, deliveryPublisher); err != nil {
		return nil, err
	}

	return dispatcher, nil
}
