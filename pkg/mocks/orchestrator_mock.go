package mocks

import (
	"context"

	"github.com/dukex/portalflow/pkg/models"
	"github.com/dukex/portalflow/pkg/orchestration"
	"github.com/stretchr/testify/mock"
)

// MockOrchestrator is a mock implementation of ingress.Orchestrator interface.
type MockOrchestrator struct {
	mock.Mock
}

func (m *MockOrchestrator) Handle(ctx context.Context, runID, versionID string, event *models.LifecycleEvent) ([]*orchestration.StepResult, error) {
	args := m.Called(ctx, runID, versionID, event)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*orchestration.StepResult), args.Error(1)
}
