package launcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/portalflow/pkg/dispatcher"
	"github.com/dukex/portalflow/pkg/models"
)

// decodeJob reads one dispatched job. Decoding failures wrap ErrInvalidJob.
func decodeJob(payload []byte) (*models.Job, error) {
	var job models.Job

	err := json.Unmarshal(payload, &job)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidJob, err)
	}

	return &job, nil
}

// Handle decodes and launches one job payload.
func (l *Launcher) Handle(ctx context.Context, wfType models.WorkflowType, payload []byte) (*models.LaunchResult, error) {
	job, err := decodeJob(payload)
	if err != nil {
		return nil, err
	}

	return l.HandleJob(ctx, wfType, job)
}

// Subscribe consumes the job topic of wfType until ctx is done. Invalid jobs are acked and
// dropped, launch failures are nacked for redelivery.
func (l *Launcher) Subscribe(ctx context.Context, subscriber message.Subscriber, wfType models.WorkflowType) error {
	topic := l.cfg.Topic(wfType)

	messages, err := subscriber.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	logger := l.logger.With("topic", topic, "type", wfType)
	logger.InfoContext(ctx, "Consuming jobs")

	for msg := range messages {
		groupID := msg.Metadata.Get(dispatcher.GroupIDKey)

		result, err := l.Handle(ctx, wfType, msg.Payload)

		switch {
		case errors.Is(err, ErrInvalidJob):
			logger.ErrorContext(ctx, "Dropping invalid job", "message_id", msg.UUID, "group_id", groupID, "error", err)
			msg.Ack()
		case err != nil:
			logger.ErrorContext(ctx, "Failed to launch job", "message_id", msg.UUID, "group_id", groupID, "error", err)
			msg.Nack()
		default:
			logger.InfoContext(ctx, "Handled job", "message_id", msg.UUID, "group_id", groupID, "status", result.Status)
			msg.Ack()
		}
	}

	return nil
}

// Consume reads the job stream of wfType as a member of group until ctx is done.
func (l *Launcher) Consume(ctx context.Context, queue *dispatcher.RedisQueue, wfType models.WorkflowType, group, consumer string) error {
	stream := l.cfg.Topic(wfType)

	return queue.Consume(ctx, stream, group, consumer, func(ctx context.Context, delivery dispatcher.Delivery) error {
		result, err := l.Handle(ctx, wfType, delivery.Payload)
		if errors.Is(err, ErrInvalidJob) {
			l.logger.ErrorContext(ctx, "Dropping invalid job", "id", delivery.ID, "group_id", delivery.GroupID, "error", err)

			return nil
		}

		if err != nil {
			return err
		}

		l.logger.InfoContext(ctx, "Handled job", "id", delivery.ID, "group_id", delivery.GroupID, "status", result.Status)

		return nil
	})
}
