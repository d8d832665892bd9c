package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/portalflow/pkg/models"
	"github.com/dukex/portalflow/pkg/persistence"
)

// Batch manages the Batch and BatchRun lifecycle.
//
// A BatchRun is the lock for one step of one batch: SkipOrCreateBatchRun either creates the
// single running row or reports that one exists. Callers that created a run must end it with
// ResetBatchRun when they fail or have nothing to dispatch, otherwise the run stays running.
type Batch struct {
	persistence persistence.Persistence
}

// NewBatch creates a new batch service.
func NewBatch(persistence persistence.Persistence) *Batch {
	return &Batch{persistence: persistence}
}

func (b *Batch) GetOrCreateBatch(ctx context.Context, name, createdBy string) (*models.Batch, error) {
	if strings.TrimSpace(name) == "" {
		return nil, NewValidationError("GetOrCreateBatch", "EMPTY_BATCH_NAME", "batch name cannot be empty", ErrEmptyBatchName)
	}

	batch, err := b.persistence.BatchRepository().GetOrCreate(ctx, name, createdBy)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create batch: %w", err)
	}

	return batch, nil
}

// UpdateBatchContext stores contextData unless the batch already has context, and returns the
// batch as stored.
func (b *Batch) UpdateBatchContext(ctx context.Context, batchID int64, contextData string) (*models.Batch, error) {
	batch, err := b.persistence.BatchRepository().SetContextData(ctx, batchID, contextData)
	if err != nil {
		return nil, fmt.Errorf("failed to update batch context: %w", err)
	}

	return batch, nil
}

// SkipOrCreateBatchRun returns nil, nil when a run of step is already running for the batch.
func (b *Batch) SkipOrCreateBatchRun(ctx context.Context, batch *models.Batch, step string) (*models.BatchRun, error) {
	if step == "" {
		return nil, NewValidationError("SkipOrCreateBatchRun", "INVALID_STEP", "step cannot be empty", ErrInvalidStep)
	}

	run, err := b.persistence.BatchRepository().CreateRunIfNoneRunning(ctx, batch.ID, step)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch run: %w", err)
	}

	return run, nil
}

// ResetBatchRun sets running to false. It returns nil when the run does not exist.
func (b *Batch) ResetBatchRun(ctx context.Context, batchRunID int64) (*models.BatchRun, error) {
	run, err := b.persistence.BatchRepository().ResetRun(ctx, batchRunID)
	if err != nil {
		return nil, fmt.Errorf("failed to reset batch run: %w", err)
	}

	return run, nil
}

// GetBatchRunNoneOrAllCompleted returns the run, now flipped to not running and not notified,
// when every child workflow has completed and the running state was already announced.
func (b *Batch) GetBatchRunNoneOrAllCompleted(ctx context.Context, batchRunID int64) (*models.BatchRun, error) {
	run, err := b.persistence.BatchRepository().CompleteRunIfDone(ctx, batchRunID)
	if err != nil {
		return nil, fmt.Errorf("failed to check batch run completion: %w", err)
	}

	return run, nil
}

// GetBatchRunNoneOrAllRunning returns the run when it has children and all of them are running.
func (b *Batch) GetBatchRunNoneOrAllRunning(ctx context.Context, batchRunID int64) (*models.BatchRun, error) {
	run, err := b.persistence.BatchRepository().RunIfAllRunning(ctx, batchRunID)
	if err != nil {
		return nil, fmt.Errorf("failed to check batch run progress: %w", err)
	}

	return run, nil
}

func (b *Batch) GetBatch(ctx context.Context, batchID int64) (*models.Batch, error) {
	batch, err := b.persistence.BatchRepository().GetByID(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}

	if batch == nil {
		return nil, persistence.NewEntityError("GetBatch", "batch", strconv.FormatInt(batchID, 10), ErrBatchNotFound)
	}

	return batch, nil
}

func (b *Batch) GetBatchRun(ctx context.Context, batchRunID int64) (*models.BatchRun, error) {
	run, err := b.persistence.BatchRepository().GetRun(ctx, batchRunID)
	if err != nil {
		return nil, fmt.Errorf("failed to get batch run: %w", err)
	}

	if run == nil {
		return nil, persistence.NewEntityError("GetBatchRun", "batch_run", strconv.FormatInt(batchRunID, 10), ErrBatchRunNotFound)
	}

	return run, nil
}

// SetBatchRunNotified records whether the current state of the run was announced.
func (b *Batch) SetBatchRunNotified(ctx context.Context, run *models.BatchRun, notified bool) error {
	err := b.persistence.BatchRepository().SetRunNotified(ctx, run.ID, notified)
	if err != nil {
		return fmt.Errorf("failed to set batch run notified flag: %w", err)
	}

	run.Notified = notified

	return nil
}

// ListBatchRunsRequest contains the filters for listing batch runs.
type ListBatchRunsRequest struct {
	Running   *bool
	Step      string `validate:"omitempty,oneof=GERMLINE DRAGEN_TSO_CTDNA DRAGEN_WTS"`
	BatchID   int64  `validate:"min=0"`
	OlderThan time.Duration
	Limit     int `validate:"min=0,max=500"`
}

func (b *Batch) ListBatchRuns(ctx context.Context, req ListBatchRunsRequest) ([]*models.BatchRun, error) {
	filter := models.BatchRunFilter{
		Running: req.Running,
		Step:    req.Step,
		BatchID: req.BatchID,
		Limit:   req.Limit,
	}

	if req.Limit == 0 {
		filter.Limit = 100
	}

	if req.OlderThan > 0 {
		filter.OlderThan = time.Now().UTC().Add(-req.OlderThan)
	}

	runs, err := b.persistence.BatchRepository().ListRuns(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list batch runs: %w", err)
	}

	return runs, nil
}

// ListStuckBatchRuns returns running batch runs that produced no workflow and have not changed
// for at least idleFor. Those runs never reach completion on their own.
func (b *Batch) ListStuckBatchRuns(ctx context.Context, idleFor time.Duration) ([]*models.BatchRun, error) {
	runs, err := b.persistence.BatchRepository().ListIdleRunningRuns(ctx, time.Now().UTC().Add(-idleFor))
	if err != nil {
		return nil, fmt.Errorf("failed to list stuck batch runs: %w", err)
	}

	return runs, nil
}
