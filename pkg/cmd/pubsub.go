package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/portalflow/pkg/channels/gochannel"
	"github.com/dukex/portalflow/pkg/channels/kafka"
)

// NewPubSub creates the publisher and subscriber for provider, gochannel or kafka.
func NewPubSub(provider string, brokers []string, consumerGroup string, logger *slog.Logger) (message.Publisher, message.Subscriber, error) {
	wlogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "gochannel":
		return gochannel.CreateChannel(wlogger)
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wlogger, brokers, consumerGroup)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return pub, sub, nil
	default:
		return nil, nil, fmt.Errorf("unsupported pub/sub provider %q", provider)
	}
}
