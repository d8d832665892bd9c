package mocks

import (
	"context"

	"github.com/dukex/portalflow/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockLauncher is a mock implementation of ingress.Launcher interface.
type MockLauncher struct {
	mock.Mock
}

func (m *MockLauncher) LaunchBCLConvert(ctx context.Context, sqr *models.SequenceRun) (*models.LaunchResult, error) {
	args := m.Called(ctx, sqr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.LaunchResult), args.Error(1)
}
