package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/flowlocal/flowlocal/pkg/channels/gochannel"
	"github.com/flowlocal/flowlocal/pkg/channels/kafka"
	"github.com/flowlocal/flowlocal/pkg/eventbus"
)

// NewEventBus builds the event bus for the given provider. The default
// "gochannel" provider keeps everything in-process, which is what a local
// emulator usually wants. "kafka" reads brokers from KAFKA_BROKERS.
func NewEventBus(provider string, logger *slog.Logger) (eventbus.EventBus, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "", "gochannel":
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create gochannel event bus: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, "flowlocal")
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka event bus: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}
