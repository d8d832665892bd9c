package file

import (
	"context"

	"github.com/dukex/portalflow/pkg/models"
)

// FastqListRowRepository handles fastq list rows in the state file, keyed by rgid.
type FastqListRowRepository struct {
	fp *Persistence
}

func (fr *FastqListRowRepository) Upsert(_ context.Context, row *models.FastqListRow) (*models.FastqListRow, error) {
	var stored *models.FastqListRow

	err := fr.fp.write(func(s *state) error {
		for _, existing := range s.FastqRows {
			if existing.RGID != row.RGID {
				continue
			}

			id := existing.StoredID
			existing.FastqListRow = *row
			existing.StoredID = id
			existing.SequenceRunID = row.SequenceRunID
			stored = existing.toModel()

			return nil
		}

		created := &storedFastqListRow{FastqListRow: *row, StoredID: s.nextID(), SequenceRunID: row.SequenceRunID}
		s.FastqRows = append(s.FastqRows, created)
		stored = created.toModel()

		return nil
	})

	return stored, err
}

func (fr *FastqListRowRepository) ListBySequenceRun(_ context.Context, sequenceRunID int64) ([]*models.FastqListRow, error) {
	rows := make([]*models.FastqListRow, 0)

	err := fr.fp.read(func(s *state) error {
		for _, existing := range s.FastqRows {
			if existing.SequenceRunID != nil && *existing.SequenceRunID == sequenceRunID {
				rows = append(rows, existing.toModel())
			}
		}

		return nil
	})

	return rows, err
}

func (fr *FastqListRowRepository) ListByLibraryID(_ context.Context, libraryID string) ([]*models.FastqListRow, error) {
	rows := make([]*models.FastqListRow, 0)

	err := fr.fp.read(func(s *state) error {
		for _, existing := range s.FastqRows {
			if existing.RGLB == libraryID {
				rows = append(rows, existing.toModel())
			}
		}

		return nil
	})

	return rows, err
}

func (r *storedFastqListRow) toModel() *models.FastqListRow {
	row := r.FastqListRow
	row.ID = r.StoredID
	row.SequenceRunID = r.SequenceRunID

	return &row
}
