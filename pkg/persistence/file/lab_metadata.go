package file

import (
	"context"
	"slices"
	"strings"

	"github.com/dukex/portalflow/pkg/models"
)

// LabMetadataRepository handles lab metadata in the state file, keyed by library id.
type LabMetadataRepository struct {
	fp *Persistence
}

func (lr *LabMetadataRepository) GetByLibraryID(_ context.Context, libraryID string) (*models.LabMetadata, error) {
	var found *models.LabMetadata

	err := lr.fp.read(func(s *state) error {
		found = clone(s.LabMetadata[libraryID])

		return nil
	})

	return found, err
}

// ListBySubjectID returns the subject's libraries ordered by library id.
func (lr *LabMetadataRepository) ListBySubjectID(_ context.Context, subjectID string) ([]*models.LabMetadata, error) {
	found := make([]*models.LabMetadata, 0)

	err := lr.fp.read(func(s *state) error {
		for _, m := range s.LabMetadata {
			if m.SubjectID == subjectID {
				found = append(found, clone(m))
			}
		}

		return nil
	})

	slices.SortFunc(found, func(a, b *models.LabMetadata) int {
		return strings.Compare(a.LibraryID, b.LibraryID)
	})

	return found, err
}

func (lr *LabMetadataRepository) Upsert(_ context.Context, metadata *models.LabMetadata) error {
	libraryID := strings.TrimSpace(metadata.LibraryID)

	return lr.fp.write(func(s *state) error {
		stored := clone(metadata)
		if existing, ok := s.LabMetadata[libraryID]; ok {
			stored.ID = existing.ID
		} else {
			stored.ID = s.nextID()
		}

		s.LabMetadata[libraryID] = stored

		return nil
	})
}
