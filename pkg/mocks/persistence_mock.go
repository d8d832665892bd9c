package mocks

import (
	"context"

	"github.com/dukex/portalflow/pkg/models"
	"github.com/dukex/portalflow/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockLabMetadataRepository is a mock implementation of persistence.LabMetadataRepository interface.
type MockLabMetadataRepository struct {
	mock.Mock
}

func (m *MockLabMetadataRepository) GetByLibraryID(ctx context.Context, libraryID string) (*models.LabMetadata, error) {
	args := m.Called(ctx, libraryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.LabMetadata), args.Error(1)
}

func (m *MockLabMetadataRepository) ListBySubjectID(ctx context.Context, subjectID string) ([]*models.LabMetadata, error) {
	args := m.Called(ctx, subjectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.LabMetadata), args.Error(1)
}

func (m *MockLabMetadataRepository) Upsert(ctx context.Context, metadata *models.LabMetadata) error {
	args := m.Called(ctx, metadata)

	return args.Error(0)
}

// MockPersistence wraps a real store and mocks its health, to exercise failing checks.
type MockPersistence struct {
	mock.Mock
	persistence.Persistence
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
