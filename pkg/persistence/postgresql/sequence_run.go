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

const sequenceRunSelect = `
	SELECT
		id
	  , run_id
	  , instrument_run_id
	  , name
	  , date_modified
	  , status
	  , gds_folder_path
	  , gds_volume_name
	  , reagent_barcode
	  , flowcell_barcode
	  , sample_sheet_name
	  , api_url
	  , acl
	  , msg_attr_action
	  , msg_attr_action_type
	  , msg_attr_action_date
	  , msg_attr_produced_by
	  , created_at
	FROM sequence_runs
`

// SequenceRunRepository handles sequence run database operations.
type SequenceRunRepository struct {
	db     *sqlx.DB
	logger *slog.Logger
}

func NewSequenceRunRepository(db *sqlx.DB, logger *slog.Logger) *SequenceRunRepository {
	return &SequenceRunRepository{db: db, logger: logger}
}

// CreateIfNew stores the observation unless (run_id, date_modified, status) is already known.
func (r *SequenceRunRepository) CreateIfNew(ctx context.Context, sqr *models.SequenceRun) (*models.SequenceRun, error) {
	query := `
		INSERT INTO sequence_runs (
			run_id
		  , instrument_run_id
		  , name
		  , date_modified
		  , status
		  , gds_folder_path
		  , gds_volume_name
		  , reagent_barcode
		  , flowcell_barcode
		  , sample_sheet_name
		  , api_url
		  , acl
		  , msg_attr_action
		  , msg_attr_action_type
		  , msg_attr_action_date
		  , msg_attr_produced_by
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT ON CONSTRAINT uq_sequence_runs_observation DO NOTHING
		RETURNING id, created_at
	`

	stored := *sqr

	err := r.db.QueryRowxContext(ctx, query,
		sqr.RunID,
		sqr.InstrumentRunID,
		sqr.Name,
		sqr.DateModified,
		sqr.Status,
		sqr.GDSFolderPath,
		sqr.GDSVolumeName,
		sqr.ReagentBarcode,
		sqr.FlowcellBarcode,
		sqr.SampleSheetName,
		sqr.APIURL,
		sqr.ACL,
		sqr.MsgAttrAction,
		sqr.MsgAttrActionType,
		sqr.MsgAttrActionDate,
		sqr.MsgAttrProducedBy,
	).Scan(&stored.ID, &stored.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to create sequence run: %w", err)
	}

	return &stored, nil
}

func (r *SequenceRunRepository) GetByID(ctx context.Context, id int64) (*models.SequenceRun, error) {
	return r.getOne(ctx, sequenceRunSelect+" WHERE id = $1", id)
}

func (r *SequenceRunRepository) GetLatestByRunID(ctx context.Context, runID string) (*models.SequenceRun, error) {
	return r.getOne(ctx, sequenceRunSelect+" WHERE run_id = $1 AND LOWER(status) = LOWER($2) ORDER BY id DESC LIMIT 1",
		runID, models.SequenceRunStatusPendingAnalysis)
}

func (r *SequenceRunRepository) getOne(ctx context.Context, query string, args ...any) (*models.SequenceRun, error) {
	var sqr models.SequenceRun

	err := r.db.GetContext(ctx, &sqr, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to get sequence run: %w", err)
	}

	return &sqr, nil
}
