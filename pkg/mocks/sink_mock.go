package mocks

import (
	"context"

	"github.com/dukex/portalflow/pkg/notification"
	"github.com/stretchr/testify/mock"
)

// MockSink is a mock implementation of notification.Sink interface.
type MockSink struct {
	mock.Mock
}

func (m *MockSink) Send(ctx context.Context, msg notification.Message) error {
	args := m.Called(ctx, msg)

	return args.Error(0)
}
