package gochannel

import (
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateChannel_KeepsMessagesUntilSubscribed(t *testing.T) {
	pub, sub, err := CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pub.Close()
	})

	require.NoError(t, pub.Publish("portalflow.germline", message.NewMessage("m-1", []byte(`{"sample_name":"PRJ240001"}`))))

	messages, err := sub.Subscribe(t.Context(), "portalflow.germline")
	require.NoError(t, err)

	select {
	case msg := <-messages:
		assert.Equal(t, "m-1", msg.UUID)
		msg.Ack()
	case <-time.After(5 * time.Second):
		t.Fatal("message was not delivered")
	}
}
