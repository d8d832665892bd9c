package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/portalflow/pkg/models"
	"github.com/jmoiron/sqlx"
)

// LabMetadataRepository handles lab metadata database operations.
type LabMetadataRepository struct {
	db     *sqlx.DB
	logger *slog.Logger
}

func NewLabMetadataRepository(db *sqlx.DB, logger *slog.Logger) *LabMetadataRepository {
	return &LabMetadataRepository{db: db, logger: logger}
}

func (r *LabMetadataRepository) GetByLibraryID(ctx context.Context, libraryID string) (*models.LabMetadata, error) {
	query := `
		SELECT
			id
		  , library_id
		  , sample_id
		  , sample_name
		  , subject_id
		  , external_sample_id
		  , phenotype
		  , quality
		  , source
		  , project_name
		  , project_owner
		  , type
		  , assay
		  , workflow
		  , coverage
		FROM lab_metadata
		WHERE library_id = $1
	`

	var metadata models.LabMetadata

	err := r.db.GetContext(ctx, &metadata, query, libraryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to get lab metadata: %w", err)
	}

	return &metadata, nil
}

func (r *LabMetadataRepository) ListBySubjectID(ctx context.Context, subjectID string) ([]*models.LabMetadata, error) {
	query := `
		SELECT
			id
		  , library_id
		  , sample_id
		  , sample_name
		  , subject_id
		  , external_sample_id
		  , phenotype
		  , quality
		  , source
		  , project_name
		  , project_owner
		  , type
		  , assay
		  , workflow
		  , coverage
		FROM lab_metadata
		WHERE subject_id = $1
		ORDER BY library_id
	`

	found := make([]*models.LabMetadata, 0)

	err := r.db.SelectContext(ctx, &found, query, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lab metadata of subject %s: %w", subjectID, err)
	}

	return found, nil
}

func (r *LabMetadataRepository) Upsert(ctx context.Context, metadata *models.LabMetadata) error {
	query := `
		INSERT INTO lab_metadata (
			library_id
		  , sample_id
		  , sample_name
		  , subject_id
		  , external_sample_id
		  , phenotype
		  , quality
		  , source
		  , project_name
		  , project_owner
		  , type
		  , assay
		  , workflow
		  , coverage
		)
		VALUES (
			:library_id, :sample_id, :sample_name, :subject_id, :external_sample_id, :phenotype, :quality,
			:source, :project_name, :project_owner, :type, :assay, :workflow, :coverage
		)
		ON CONFLICT (library_id) DO UPDATE SET
			sample_id = EXCLUDED.sample_id
		  , sample_name = EXCLUDED.sample_name
		  , subject_id = EXCLUDED.subject_id
		  , external_sample_id = EXCLUDED.external_sample_id
		  , phenotype = EXCLUDED.phenotype
		  , quality = EXCLUDED.quality
		  , source = EXCLUDED.source
		  , project_name = EXCLUDED.project_name
		  , project_owner = EXCLUDED.project_owner
		  , type = EXCLUDED.type
		  , assay = EXCLUDED.assay
		  , workflow = EXCLUDED.workflow
		  , coverage = EXCLUDED.coverage
	`

	_, err := r.db.NamedExecContext(ctx, query, metadata)
	if err != nil {
		return fmt.Errorf("failed to upsert lab metadata %s: %w", metadata.LibraryID, err)
	}

	return nil
}
