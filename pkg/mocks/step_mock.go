package mocks

import (
	"context"

	"github.com/dukex/portalflow/pkg/models"
	"github.com/dukex/portalflow/pkg/orchestration"
	"github.com/stretchr/testify/mock"
)

// MockStep is a mock implementation of orchestration.Step interface.
type MockStep struct {
	mock.Mock

	StepName string
}

func (m *MockStep) Name() string {
	return m.StepName
}

func (m *MockStep) Perform(ctx context.Context, wf *models.Workflow) (*orchestration.StepResult, error) {
	args := m.Called(ctx, wf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*orchestration.StepResult), args.Error(1)
}
