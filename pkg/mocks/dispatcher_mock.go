package mocks

import (
	"context"

	"github.com/dukex/portalflow/pkg/dispatcher"
	"github.com/stretchr/testify/mock"
)

// MockDispatcher is a mock implementation of orchestration.Dispatcher interface.
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, destination string, jobs []any) []dispatcher.ChunkResult {
	args := m.Called(ctx, destination, jobs)
	if args.Get(0) == nil {
		return nil
	}

	return args.Get(0).([]dispatcher.ChunkResult)
}
