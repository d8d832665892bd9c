package services

import (
	"context"
	"fmt"

	"github.com/dukex/portalflow/pkg/models"
	"github.com/dukex/portalflow/pkg/persistence"
)

// SequenceRun records sequencing run status observations and the fastq list rows they produce.
type SequenceRun struct {
	persistence persistence.Persistence
}

// NewSequenceRun creates a new sequence run service.
func NewSequenceRun(persistence persistence.Persistence) *SequenceRun {
	return &SequenceRun{persistence: persistence}
}

// CreateIfNew stores the observation and returns nil when the same status was already seen.
func (s *SequenceRun) CreateIfNew(ctx context.Context, sqr *models.SequenceRun) (*models.SequenceRun, error) {
	if sqr == nil || sqr.RunID == "" || sqr.Name == "" {
		return nil, NewValidationError("CreateIfNew", "INVALID_SEQUENCE_RUN", "sequence run requires run id and name", ErrInvalidRequest)
	}

	created, err := s.persistence.SequenceRunRepository().CreateIfNew(ctx, sqr)
	if err != nil {
		return nil, fmt.Errorf("failed to create sequence run: %w", err)
	}

	return created, nil
}

func (s *SequenceRun) GetByID(ctx context.Context, id int64) (*models.SequenceRun, error) {
	sqr, err := s.persistence.SequenceRunRepository().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get sequence run: %w", err)
	}

	return sqr, nil
}

// GetByRunID returns the PendingAnalysis observation of a sequencing run, or nil when there is none.
func (s *SequenceRun) GetByRunID(ctx context.Context, runID string) (*models.SequenceRun, error) {
	sqr, err := s.persistence.SequenceRunRepository().GetLatestByRunID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get sequence run %s: %w", runID, err)
	}

	return sqr, nil
}

// UpsertFastqListRows stores rows keyed by rgid and attaches them to the sequence run when given.
func (s *SequenceRun) UpsertFastqListRows(ctx context.Context, sqr *models.SequenceRun, rows []models.FastqListRow) ([]*models.FastqListRow, error) {
	stored := make([]*models.FastqListRow, 0, len(rows))

	for _, row := range rows {
		if sqr != nil {
			row.SequenceRunID = &sqr.ID
		}

		saved, err := s.persistence.FastqListRowRepository().Upsert(ctx, &row)
		if err != nil {
			return stored, fmt.Errorf("failed to upsert fastq list row %s: %w", row.RGID, err)
		}

		stored = append(stored, saved)
	}

	return stored, nil
}

func (s *SequenceRun) ListFastqListRows(ctx context.Context, sqr *models.SequenceRun) ([]*models.FastqListRow, error) {
	rows, err := s.persistence.FastqListRowRepository().ListBySequenceRun(ctx, sqr.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list fastq list rows: %w", err)
	}

	return rows, nil
}

// ListLibraryFastqListRows returns the rows of a canonical library across sequencing runs.
func (s *SequenceRun) ListLibraryFastqListRows(ctx context.Context, libraryID string) ([]*models.FastqListRow, error) {
	rows, err := s.persistence.FastqListRowRepository().ListByLibraryID(ctx, libraryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list fastq list rows of library %s: %w", libraryID, err)
	}

	return rows, nil
}
