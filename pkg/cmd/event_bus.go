package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/beaconcrm/automation/pkg/channels/gochannel"
	"github.com/beaconcrm/automation/pkg/channels/kafka"
	"github.com/beaconcrm/automation/pkg/eventbus"
	"github.com/beaconcrm/automation/pkg/events"
)

// NewEventBus creates the engine event bus for the given provider. The
// gochannel provider is in-process only and suited to single-binary
// deployments and development.
func NewEventBus(provider, brokers, serviceName string, logger *slog.Logger) (eventbus.EventBus, error) {
	watermillLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(watermillLogger, brokers, serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	case "gochannel", "memory":
		pub, sub, err := gochannel.CreateChannel(watermillLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create gochannel pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}

// NewDeliveryBus creates the bus carrying outboxed action deliveries. It
// shares the provider configuration with the engine bus but publishes to the
// delivery topic.
func NewDeliveryBus(provider, brokers, serviceName string, logger *slog.Logger) (eventbus.EventBus, error) {
	watermillLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(watermillLogger, brokers, serviceName+"-deliveries")
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBusForTopic(pub, sub, events.DeliveryTopic), nil
	case "gochannel", "memory":
		pub, sub, err := gochannel.CreateChannel(watermillLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create gochannel pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBusForTopic(pub, sub, events.DeliveryTopic), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}
