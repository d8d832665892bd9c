package mocks

import (
	"context"

	"github.com/dukex/portalflow/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockNotifier is a mock implementation of the workflow and batch run status notifier.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) WorkflowStatus(ctx context.Context, wf *models.Workflow) (bool, error) {
	args := m.Called(ctx, wf)

	return args.Bool(0), args.Error(1)
}

func (m *MockNotifier) BatchRunStatus(ctx context.Context, batchRunID int64) (bool, error) {
	args := m.Called(ctx, batchRunID)

	return args.Bool(0), args.Error(1)
}

func (m *MockNotifier) SequenceRunStatus(ctx context.Context, sqr *models.SequenceRun) (bool, error) {
	args := m.Called(ctx, sqr)

	return args.Bool(0), args.Error(1)
}

func (m *MockNotifier) Outlier(ctx context.Context, topic, reason, status string, event map[string]any) error {
	args := m.Called(ctx, topic, reason, status, event)

	return args.Error(0)
}
