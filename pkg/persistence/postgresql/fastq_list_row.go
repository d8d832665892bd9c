package postgresql

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/portalflow/pkg/models"
	"github.com/jmoiron/sqlx"
)

// FastqListRowRepository handles fastq list row database operations.
type FastqListRowRepository struct {
	db     *sqlx.DB
	logger *slog.Logger
}

func NewFastqListRowRepository(db *sqlx.DB, logger *slog.Logger) *FastqListRowRepository {
	return &FastqListRowRepository{db: db, logger: logger}
}

// Upsert creates or refreshes the row with the same rgid.
func (r *FastqListRowRepository) Upsert(ctx context.Context, row *models.FastqListRow) (*models.FastqListRow, error) {
	query := `
		INSERT INTO fastq_list_rows (
			rgid
		  , rgsm
		  , rglb
		  , lane
		  , read_1
		  , read_2
		  , sequence_run_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (rgid) DO UPDATE SET
			rgsm = EXCLUDED.rgsm
		  , rglb = EXCLUDED.rglb
		  , lane = EXCLUDED.lane
		  , read_1 = EXCLUDED.read_1
		  , read_2 = EXCLUDED.read_2
		  , sequence_run_id = COALESCE(EXCLUDED.sequence_run_id, fastq_list_rows.sequence_run_id)
		RETURNING
			id
		  , rgid
		  , rgsm
		  , rglb
		  , lane
		  , read_1
		  , read_2
		  , sequence_run_id
	`

	var stored models.FastqListRow

	err := r.db.GetContext(ctx, &stored, query,
		row.RGID, row.RGSM, row.RGLB, row.Lane, row.Read1, row.Read2, row.SequenceRunID)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert fastq list row %s: %w", row.RGID, err)
	}

	return &stored, nil
}

func (r *FastqListRowRepository) ListBySequenceRun(ctx context.Context, sequenceRunID int64) ([]*models.FastqListRow, error) {
	query := `
		SELECT
			id
		  , rgid
		  , rgsm
		  , rglb
		  , lane
		  , read_1
		  , read_2
		  , sequence_run_id
		FROM fastq_list_rows
		WHERE sequence_run_id = $1
		ORDER BY id
	`

	rows := make([]*models.FastqListRow, 0)

	err := r.db.SelectContext(ctx, &rows, query, sequenceRunID)
	if err != nil {
		return nil, fmt.Errorf("failed to list fastq list rows: %w", err)
	}

	return rows, nil
}

func (r *FastqListRowRepository) ListByLibraryID(ctx context.Context, libraryID string) ([]*models.FastqListRow, error) {
	query := `
		SELECT
			id
		  , rgid
		  , rgsm
		  , rglb
		  , lane
		  , read_1
		  , read_2
		  , sequence_run_id
		FROM fastq_list_rows
		WHERE rglb = $1
		ORDER BY id
	`

	rows := make([]*models.FastqListRow, 0)

	err := r.db.SelectContext(ctx, &rows, query, libraryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list fastq list rows of library %s: %w", libraryID, err)
	}

	return rows, nil
}
