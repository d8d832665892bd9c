package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/dukex/portalflow/pkg/models"
	"github.com/dukex/portalflow/pkg/persistence"
	"github.com/jmoiron/sqlx"
)

var batchRunColumns = []string{
	"id",
	"batch_id",
	"step",
	"running",
	"notified",
	"created_at",
	"updated_at",
}

// BatchRepository handles batch and batch run database operations.
type BatchRepository struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewBatchRepository creates a new batch repository.
func NewBatchRepository(db *sqlx.DB, logger *slog.Logger) *BatchRepository {
	return &BatchRepository{db: db, logger: logger}
}

// GetOrCreate inserts the batch unless (name, created_by) exists, then reads it back.
// A concurrent insert of the same key blocks on the unique constraint until the other
// transaction commits, so the read always sees exactly one row.
func (r *BatchRepository) GetOrCreate(ctx context.Context, name, createdBy string) (*models.Batch, error) {
	insert := `
		INSERT INTO batches (name, created_by)
		VALUES ($1, $2)
		ON CONFLICT (name, created_by) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, insert, name, createdBy)
	if err != nil {
		return nil, fmt.Errorf("failed to insert batch: %w", err)
	}

	query := `
		SELECT
			id
		  , name
		  , created_by
		  , context_data
		  , created_at
		  , updated_at
		FROM batches
		WHERE name = $1 AND created_by = $2
	`

	var batch models.Batch

	err = r.db.GetContext(ctx, &batch, query, name, createdBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError("GetOrCreate", "batch", name, persistence.ErrConflict)
		}

		return nil, fmt.Errorf("failed to get batch: %w", err)
	}

	return &batch, nil
}

func (r *BatchRepository) GetByID(ctx context.Context, id int64) (*models.Batch, error) {
	query := `
		SELECT
			id
		  , name
		  , created_by
		  , context_data
		  , created_at
		  , updated_at
		FROM batches
		WHERE id = $1
	`

	var batch models.Batch

	err := r.db.GetContext(ctx, &batch, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to get batch: %w", err)
	}

	return &batch, nil
}

// SetContextData stores the context only if the batch has none, and returns whatever is stored.
func (r *BatchRepository) SetContextData(ctx context.Context, id int64, contextData string) (*models.Batch, error) {
	update := `
		UPDATE batches
		SET context_data = $1, updated_at = NOW()
		WHERE id = $2 AND context_data IS NULL
	`

	_, err := r.db.ExecContext(ctx, update, contextData, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update batch context: %w", err)
	}

	batch, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if batch == nil {
		return nil, persistence.NewEntityError("SetContextData", "batch", strconv.FormatInt(id, 10), persistence.ErrBatchNotFound)
	}

	return batch, nil
}

// CreateRunIfNoneRunning relies on the partial unique index over running rows: when another
// running row exists the insert does nothing and no row is returned.
func (r *BatchRepository) CreateRunIfNoneRunning(ctx context.Context, batchID int64, step string) (*models.BatchRun, error) {
	query := `
		INSERT INTO batch_runs (batch_id, step, running, notified)
		VALUES ($1, $2, true, false)
		ON CONFLICT (batch_id, step) WHERE running DO NOTHING
		RETURNING
			id
		  , batch_id
		  , step
		  , running
		  , notified
		  , created_at
		  , updated_at
	`

	var run models.BatchRun

	err := r.db.GetContext(ctx, &run, query, batchID, step)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to create batch run: %w", err)
	}

	return &run, nil
}

func (r *BatchRepository) GetRun(ctx context.Context, id int64) (*models.BatchRun, error) {
	return getRun(ctx, r.db, id, false)
}

// ResetRun clears the running flag. It returns nil when the run does not exist.
func (r *BatchRepository) ResetRun(ctx context.Context, id int64) (*models.BatchRun, error) {
	query := `
		UPDATE batch_runs
		SET running = false, updated_at = NOW()
		WHERE id = $1
		RETURNING
			id
		  , batch_id
		  , step
		  , running
		  , notified
		  , created_at
		  , updated_at
	`

	var run models.BatchRun

	err := r.db.GetContext(ctx, &run, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to reset batch run: %w", err)
	}

	return &run, nil
}

func (r *BatchRepository) SetRunNotified(ctx context.Context, id int64, notified bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE batch_runs SET notified = $1, updated_at = NOW() WHERE id = $2`, notified, id)
	if err != nil {
		return fmt.Errorf("failed to update batch run notified flag: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.NewEntityError("SetRunNotified", "batch_run", strconv.FormatInt(id, 10), persistence.ErrBatchRunNotFound)
	}

	return nil
}

func (r *BatchRepository) ListRuns(ctx context.Context, filter models.BatchRunFilter) ([]*models.BatchRun, error) {
	builder := psql.Select(batchRunColumns...).From("batch_runs")

	if filter.Running != nil {
		builder = builder.Where(sq.Eq{"running": *filter.Running})
	}

	if filter.Step != "" {
		builder = builder.Where(sq.Eq{"step": filter.Step})
	}

	if filter.BatchID != 0 {
		builder = builder.Where(sq.Eq{"batch_id": filter.BatchID})
	}

	if !filter.OlderThan.IsZero() {
		builder = builder.Where(sq.Lt{"updated_at": filter.OlderThan})
	}

	builder = builder.OrderBy("id DESC")

	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}

	statement, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build batch run query: %w", err)
	}

	runs := make([]*models.BatchRun, 0)

	err = r.db.SelectContext(ctx, &runs, statement, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list batch runs: %w", err)
	}

	return runs, nil
}

type childCounts struct {
	Total     int `db:"total"`
	Completed int `db:"completed"`
	Running   int `db:"running"`
}

const childCountsQuery = `
	SELECT
		COUNT(*) AS total
	  , COUNT(*) FILTER (
			WHERE start_time IS NOT NULL
			AND LOWER(end_status) IN ('succeeded', 'failed', 'aborted')
		) AS completed
	  , COUNT(*) FILTER (
			WHERE start_time IS NOT NULL
			AND end_time IS NULL
			AND LOWER(end_status) = 'running'
		) AS running
	FROM workflows
	WHERE batch_run_id = $1
`

// CompleteRunIfDone locks the batch run, compares child workflow counts, and flips the run to
// not running and not notified when every child is terminal.
func (r *BatchRepository) CompleteRunIfDone(ctx context.Context, id int64) (*models.BatchRun, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		err := tx.Rollback()
		if err != nil && !errors.Is(err, sql.ErrTxDone) {
			r.logger.ErrorContext(ctx, "failed to rollback transaction", "error", err)
		}
	}()

	run, err := getRun(ctx, tx, id, true)
	if err != nil || run == nil {
		return nil, err
	}

	var counts childCounts

	err = tx.GetContext(ctx, &counts, childCountsQuery, id)
	if err != nil {
		return nil, fmt.Errorf("failed to count batch run workflows: %w", err)
	}

	if counts.Total != counts.Completed || !run.Running || !run.Notified {
		return nil, nil
	}

	update := `
		UPDATE batch_runs
		SET running = false, notified = false, updated_at = NOW()
		WHERE id = $1
		RETURNING
			id
		  , batch_id
		  , step
		  , running
		  , notified
		  , created_at
		  , updated_at
	`

	var completed models.BatchRun

	err = tx.GetContext(ctx, &completed, update, id)
	if err != nil {
		return nil, fmt.Errorf("failed to complete batch run: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &completed, nil
}

func (r *BatchRepository) RunIfAllRunning(ctx context.Context, id int64) (*models.BatchRun, error) {
	run, err := r.GetRun(ctx, id)
	if err != nil || run == nil {
		return nil, err
	}

	var counts childCounts

	err = r.db.GetContext(ctx, &counts, childCountsQuery, id)
	if err != nil {
		return nil, fmt.Errorf("failed to count batch run workflows: %w", err)
	}

	if counts.Total == 0 || counts.Total != counts.Running {
		return nil, nil
	}

	return run, nil
}

func (r *BatchRepository) ListIdleRunningRuns(ctx context.Context, before time.Time) ([]*models.BatchRun, error) {
	query := `
		SELECT
			br.id
		  , br.batch_id
		  , br.step
		  , br.running
		  , br.notified
		  , br.created_at
		  , br.updated_at
		FROM batch_runs br
		WHERE br.running
		AND br.updated_at < $1
		AND NOT EXISTS (SELECT 1 FROM workflows w WHERE w.batch_run_id = br.id)
		ORDER BY br.id
	`

	runs := make([]*models.BatchRun, 0)

	err := r.db.SelectContext(ctx, &runs, query, before)
	if err != nil {
		return nil, fmt.Errorf("failed to list idle running batch runs: %w", err)
	}

	return runs, nil
}

func getRun(ctx context.Context, q sqlx.QueryerContext, id int64, forUpdate bool) (*models.BatchRun, error) {
	query := `
		SELECT
			id
		  , batch_id
		  , step
		  , running
		  , notified
		  , created_at
		  , updated_at
		FROM batch_runs
		WHERE id = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var run models.BatchRun

	err := sqlx.GetContext(ctx, q, &run, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to get batch run: %w", err)
	}

	return &run, nil
}
