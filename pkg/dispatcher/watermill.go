package dispatcher

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// WatermillBackend publishes each chunk as one Publish call on the destination topic.
// Messages carry the group id in their metadata; the Kafka publisher uses it as partition key.
type WatermillBackend struct {
	publisher message.Publisher
}

func NewWatermillBackend(publisher message.Publisher) *WatermillBackend {
	return &WatermillBackend{publisher: publisher}
}

func (b *WatermillBackend) Enqueue(ctx context.Context, destination, groupID string, payloads [][]byte) ([]string, error) {
	messages := make([]*message.Message, 0, len(payloads))
	ids := make([]string, 0, len(payloads))

	for _, payload := range payloads {
		msg := message.NewMessage(watermill.NewUUID(), payload)
		msg.Metadata.Set(GroupIDKey, groupID)
		msg.SetContext(ctx)

		messages = append(messages, msg)
		ids = append(ids, msg.UUID)
	}

	err := b.publisher.Publish(destination, messages...)
	if err != nil {
		return nil, err
	}

	return ids, nil
}
