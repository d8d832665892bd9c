package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const payloadField = "payload"

// Delivery is one job read back from a Redis stream.
type Delivery struct {
	ID      string
	GroupID string
	Payload []byte
}

// DeliveryHandler processes one delivery. A nil error acknowledges it.
type DeliveryHandler func(ctx context.Context, delivery Delivery) error

// RedisQueue is a Redis streams backend. Each chunk is added in one MULTI/EXEC transaction.
type RedisQueue struct {
	client redis.UniversalClient
	logger *slog.Logger
	block  time.Duration

	// claimIdle is how long a failed delivery stays pending before it is handled again.
	claimIdle time.Duration
}

func NewRedisQueue(client redis.UniversalClient, logger *slog.Logger) *RedisQueue {
	return &RedisQueue{
		client:    client,
		logger:    logger.With("module", "redis_queue"),
		block:     time.Second,
		claimIdle: 30 * time.Second,
	}
}

func (q *RedisQueue) Enqueue(ctx context.Context, destination, groupID string, payloads [][]byte) ([]string, error) {
	cmds := make([]*redis.StringCmd, 0, len(payloads))

	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, payload := range payloads {
			cmds = append(cmds, pipe.XAdd(ctx, &redis.XAddArgs{
				Stream: destination,
				Values: map[string]any{
					GroupIDKey:   groupID,
					payloadField: string(payload),
				},
			}))
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(cmds))
	for _, cmd := range cmds {
		ids = append(ids, cmd.Val())
	}

	return ids, nil
}

// Consume reads the stream as a member of a consumer group until ctx is done. Deliveries whose
// handler fails stay pending in the group and are claimed again once idle for claimIdle, by
// this consumer or any other member of the group.
func (q *RedisQueue) Consume(ctx context.Context, stream, group, consumer string, handler DeliveryHandler) error {
	err := q.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	q.logger.InfoContext(ctx, "Starting stream consumer", "stream", stream, "group", group, "consumer", consumer)

	for {
		select {
		case <-ctx.Done():
			q.logger.InfoContext(ctx, "Context cancelled, stopping stream consumer")

			return nil
		default:
		}

		q.reclaim(ctx, stream, group, consumer, handler)

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: consumer,
			Streams:  []string{stream, ">"},
			Count:    MaxBatchSize,
			Block:    q.block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}

			q.logger.ErrorContext(ctx, "Error reading stream", "error", err)
			time.Sleep(time.Second)

			continue
		}

		for _, s := range streams {
			for _, msg := range s.Messages {
				q.deliver(ctx, stream, group, msg, handler)
			}
		}
	}
}

// reclaim hands pending deliveries idle for longer than claimIdle back to handler.
func (q *RedisQueue) reclaim(ctx context.Context, stream, group, consumer string, handler DeliveryHandler) {
	messages, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  q.claimIdle,
		Start:    "0-0",
		Count:    MaxBatchSize,
	}).Result()
	if err != nil {
		if ctx.Err() == nil && !errors.Is(err, redis.Nil) {
			q.logger.ErrorContext(ctx, "Error claiming pending deliveries", "error", err)
		}

		return
	}

	for _, msg := range messages {
		q.logger.InfoContext(ctx, "Retrying pending delivery", "id", msg.ID)
		q.deliver(ctx, stream, group, msg, handler)
	}
}

func (q *RedisQueue) deliver(ctx context.Context, stream, group string, msg redis.XMessage, handler DeliveryHandler) {
	groupID, _ := msg.Values[GroupIDKey].(string)
	payload, _ := msg.Values[payloadField].(string)

	err := handler(ctx, Delivery{ID: msg.ID, GroupID: groupID, Payload: []byte(payload)})
	if err != nil {
		q.logger.ErrorContext(ctx, "Error handling delivery", "id", msg.ID, "group_id", groupID, "error", err)

		return
	}

	err = q.client.XAck(ctx, stream, group, msg.ID).Err()
	if err != nil {
		q.logger.ErrorContext(ctx, "Error acknowledging delivery", "id", msg.ID, "error", err)
	}
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
