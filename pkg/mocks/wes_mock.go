package mocks

import (
	"context"

	"github.com/dukex/portalflow/pkg/models"
	"github.com/dukex/portalflow/pkg/wes"
	"github.com/stretchr/testify/mock"
)

// MockWESClient is a mock implementation of wes.Client interface.
type MockWESClient struct {
	mock.Mock
}

func (m *MockWESClient) GetRun(ctx context.Context, runID string) (*wes.Run, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*wes.Run), args.Error(1)
}

func (m *MockWESClient) RunStatus(ctx context.Context, runID string, event *models.LifecycleEvent) (*wes.RunStatus, error) {
	args := m.Called(ctx, runID, event)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*wes.RunStatus), args.Error(1)
}

func (m *MockWESClient) Launch(ctx context.Context, workflowID, version string, req wes.LaunchRequest) (*wes.Run, error) {
	args := m.Called(ctx, workflowID, version, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*wes.Run), args.Error(1)
}
