package file

import (
	"context"

	"github.com/dukex/portalflow/pkg/models"
)

// SequenceRunRepository handles sequencing run observations in the state file.
type SequenceRunRepository struct {
	fp *Persistence
}

func (sr *SequenceRunRepository) CreateIfNew(_ context.Context, sqr *models.SequenceRun) (*models.SequenceRun, error) {
	var created *models.SequenceRun

	err := sr.fp.write(func(s *state) error {
		for _, existing := range s.SequenceRuns {
			if existing.RunID == sqr.RunID && existing.Status == sqr.Status && existing.DateModified.Equal(sqr.DateModified) {
				return nil
			}
		}

		stored := clone(sqr)
		stored.ID = s.nextID()
		stored.CreatedAt = now()
		s.SequenceRuns = append(s.SequenceRuns, stored)
		created = clone(stored)

		return nil
	})

	return created, err
}

func (sr *SequenceRunRepository) GetByID(_ context.Context, id int64) (*models.SequenceRun, error) {
	var found *models.SequenceRun

	err := sr.fp.read(func(s *state) error {
		for _, existing := range s.SequenceRuns {
			if existing.ID == id {
				found = clone(existing)

				break
			}
		}

		return nil
	})

	return found, err
}

func (sr *SequenceRunRepository) GetLatestByRunID(_ context.Context, runID string) (*models.SequenceRun, error) {
	var latest *models.SequenceRun

	err := sr.fp.read(func(s *state) error {
		for _, existing := range s.SequenceRuns {
			if existing.RunID != runID || existing.Status != models.SequenceRunStatusPendingAnalysis {
				continue
			}

			if latest == nil || existing.DateModified.After(latest.DateModified) {
				latest = existing
			}
		}

		latest = clone(latest)

		return nil
	})

	return latest, err
}
