package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/portalflow/pkg/dispatcher"
)

const (
	JobBackendPubSub = "pubsub"
	JobBackendRedis  = "redis"
)

// NewJobBackend returns where the dispatcher enqueues jobs. The redis queue is returned as
// well so the caller can close it.
func NewJobBackend(ctx context.Context, kind string, publisher message.Publisher, redisURL string, logger *slog.Logger) (dispatcher.Backend, *dispatcher.RedisQueue, error) {
	switch kind {
	case JobBackendPubSub:
		return dispatcher.NewWatermillBackend(publisher), nil, nil
	case JobBackendRedis:
		queue, err := NewRedisQueue(ctx, redisURL, logger)
		if err != nil {
			return nil, nil, err
		}

		return queue, queue, nil
	default:
		return nil, nil, fmt.Errorf("unsupported job backend %q", kind)
	}
}
