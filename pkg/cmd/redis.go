package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/portalflow/pkg/dispatcher"
	"github.com/redis/go-redis/v9"
)

// NewRedisQueue connects to redisURL and returns the stream queue on top of it.
func NewRedisQueue(ctx context.Context, redisURL string, logger *slog.Logger) (*dispatcher.RedisQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	err = client.Ping(ctx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return dispatcher.NewRedisQueue(client, logger), nil
}
