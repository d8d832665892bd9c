package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/dukex/portalflow/pkg/models"
	"github.com/dukex/portalflow/pkg/persistence"
	"github.com/jmoiron/sqlx"
)

var workflowColumns = []string{
	"id",
	"wfl_id",
	"wfr_id",
	"wfv_id",
	"wfr_name",
	"type_name",
	"version",
	"sample_name",
	"input",
	"output",
	"start_time",
	"end_time",
	"end_status",
	"sequence_run_id",
	"batch_run_id",
	"notified",
	"created_at",
	"updated_at",
}

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sqlx.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

// GetByIDs returns the workflow for a run and version id, or nil when unknown.
func (r *WorkflowRepository) GetByIDs(ctx context.Context, runID, versionID string) (*models.Workflow, error) {
	query := `
		SELECT
			id
		  , wfl_id
		  , wfr_id
		  , wfv_id
		  , wfr_name
		  , type_name
		  , version
		  , sample_name
		  , input
		  , output
		  , start_time
		  , end_time
		  , end_status
		  , sequence_run_id
		  , batch_run_id
		  , notified
		  , created_at
		  , updated_at
		FROM workflows
		WHERE wfr_id = $1 AND wfv_id = $2
		ORDER BY id DESC
		LIMIT 1
	`

	var workflow models.Workflow

	err := r.db.GetContext(ctx, &workflow, query, runID, versionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	return &workflow, nil
}

// Upsert creates the workflow or updates the mutable fields of the row with the same identity triple.
func (r *WorkflowRepository) Upsert(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow.WorkflowID == "" || workflow.RunID == "" || workflow.VersionID == "" {
		return nil, persistence.NewEntityError("Upsert", "workflow", workflow.RunID, persistence.ErrInvalidWorkflow)
	}

	start := workflow.Start
	if start.IsZero() {
		start = time.Now().UTC()
	}

	query := `
		INSERT INTO workflows (
			wfl_id
		  , wfr_id
		  , wfv_id
		  , wfr_name
		  , type_name
		  , version
		  , sample_name
		  , input
		  , output
		  , start_time
		  , end_time
		  , end_status
		  , sequence_run_id
		  , batch_run_id
		  , notified
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (wfl_id, wfr_id, wfv_id) DO UPDATE SET
			output = COALESCE(EXCLUDED.output, workflows.output)
		  , end_time = COALESCE(EXCLUDED.end_time, workflows.end_time)
		  , end_status = COALESCE(EXCLUDED.end_status, workflows.end_status)
		  , notified = EXCLUDED.notified
		  , wfr_name = CASE WHEN workflows.wfr_name = '' THEN EXCLUDED.wfr_name ELSE workflows.wfr_name END
		  , sample_name = COALESCE(workflows.sample_name, EXCLUDED.sample_name)
		  , sequence_run_id = COALESCE(workflows.sequence_run_id, EXCLUDED.sequence_run_id)
		  , batch_run_id = COALESCE(workflows.batch_run_id, EXCLUDED.batch_run_id)
		  , updated_at = NOW()
		RETURNING
			id
		  , wfl_id
		  , wfr_id
		  , wfv_id
		  , wfr_name
		  , type_name
		  , version
		  , sample_name
		  , input
		  , output
		  , start_time
		  , end_time
		  , end_status
		  , sequence_run_id
		  , batch_run_id
		  , notified
		  , created_at
		  , updated_at
	`

	var stored models.Workflow

	err := r.db.GetContext(ctx, &stored, query,
		workflow.WorkflowID,
		workflow.RunID,
		workflow.VersionID,
		workflow.RunName,
		workflow.Type,
		workflow.Version,
		workflow.SampleName,
		workflow.Input,
		workflow.Output,
		start,
		workflow.End,
		workflow.EndStatus,
		workflow.SequenceRunID,
		workflow.BatchRunID,
		workflow.Notified,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert workflow: %w", err)
	}

	return &stored, nil
}

// SearchMatching filters on type, definition and version, plus every optional dimension supplied.
func (r *WorkflowRepository) SearchMatching(ctx context.Context, query models.WorkflowQuery) ([]*models.Workflow, error) {
	builder := psql.Select(workflowColumns...).
		From("workflows").
		Where(sq.Eq{
			"type_name": query.Type,
			"wfl_id":    query.WorkflowID,
			"version":   query.Version,
		})

	if query.SampleName != nil {
		builder = builder.Where(sq.Eq{"sample_name": *query.SampleName})
	}

	if query.SequenceRunID != nil {
		builder = builder.Where(sq.Eq{"sequence_run_id": *query.SequenceRunID})
	}

	if query.BatchRunID != nil {
		builder = builder.Where(sq.Eq{"batch_run_id": *query.BatchRunID})
	}

	statement, args, err := builder.OrderBy("id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build matching query: %w", err)
	}

	workflows := make([]*models.Workflow, 0)

	err = r.db.SelectContext(ctx, &workflows, statement, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search matching workflows: %w", err)
	}

	return workflows, nil
}

// ListByBatchRun returns every workflow produced by a batch run.
func (r *WorkflowRepository) ListByBatchRun(ctx context.Context, batchRunID int64) ([]*models.Workflow, error) {
	statement, args, err := psql.Select(workflowColumns...).
		From("workflows").
		Where(sq.Eq{"batch_run_id": batchRunID}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build batch run query: %w", err)
	}

	workflows := make([]*models.Workflow, 0)

	err = r.db.SelectContext(ctx, &workflows, statement, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows by batch run: %w", err)
	}

	return workflows, nil
}

func (r *WorkflowRepository) ListBySequenceRun(ctx context.Context, sequenceRunID int64, wfType models.WorkflowType) ([]*models.Workflow, error) {
	statement, args, err := psql.Select(workflowColumns...).
		From("workflows").
		Where(sq.Eq{"sequence_run_id": sequenceRunID}).
		Where("LOWER(type_name) = LOWER(?)", string(wfType)).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build sequence run query: %w", err)
	}

	workflows := make([]*models.Workflow, 0)

	err = r.db.SelectContext(ctx, &workflows, statement, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows by sequence run: %w", err)
	}

	return workflows, nil
}

func (r *WorkflowRepository) SetNotified(ctx context.Context, ids []int64, notified bool) error {
	if len(ids) == 0 {
		return nil
	}

	statement, args, err := psql.Update("workflows").
		Set("notified", notified).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": ids}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build notified update: %w", err)
	}

	_, err = r.db.ExecContext(ctx, statement, args...)
	if err != nil {
		return fmt.Errorf("failed to update workflow notified flag: %w", err)
	}

	return nil
}
