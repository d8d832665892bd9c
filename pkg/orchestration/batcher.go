package orchestration

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dukex/portalflow/pkg/models"
	"github.com/dukex/portalflow/pkg/services"
)

// BatchState is the state handed to a step once it holds the running BatchRun.
type BatchState struct {
	Batch       *models.Batch
	Run         *models.BatchRun
	SequenceRun *models.SequenceRun
	Step        string
}

func (b *BatchState) result(outcome Outcome) *StepResult {
	return newStepResult(outcome, b.Batch, b.Run, b.Step)
}

// Batcher acquires the per-step BatchRun of a producer workflow and prepares the batch context.
type Batcher struct {
	batches      *services.Batch
	sequenceRuns *services.SequenceRun
	logger       *slog.Logger
}

func NewBatcher(batches *services.Batch, sequenceRuns *services.SequenceRun, logger *slog.Logger) *Batcher {
	return &Batcher{
		batches:      batches,
		sequenceRuns: sequenceRuns,
		logger:       logger.With("module", "batcher"),
	}
}

// Begin creates the batch of wf and a running BatchRun for step. When another run of step is
// still running it returns a skipped result and a nil BatchState.
func (b *Batcher) Begin(ctx context.Context, wf *models.Workflow, step string) (*BatchState, *StepResult, error) {
	sqr, err := b.sequenceRun(ctx, wf)
	if err != nil {
		return nil, nil, err
	}

	name := wf.Type.Lower() + "__" + wf.RunID
	if sqr != nil {
		name = sqr.Name
	}

	batch, err := b.batches.GetOrCreateBatch(ctx, name, wf.RunID)
	if err != nil {
		return nil, nil, err
	}

	run, err := b.batches.SkipOrCreateBatchRun(ctx, batch, step)
	if err != nil {
		return nil, nil, err
	}

	if run == nil {
		skipped := newStepResult(OutcomeSkipped, batch, nil, step)
		skipped.BatchRunStatus = models.BatchRunStatusRunning
		skipped.Message = fmt.Sprintf("SKIP. THERE IS EXISTING ON GOING RUN FOR BATCH ID: %d, NAME: %s, CREATED_BY: %s",
			batch.ID, batch.Name, batch.CreatedBy)

		b.logger.InfoContext(ctx, skipped.Message, "step", step)

		return nil, skipped, nil
	}

	b.logger.InfoContext(ctx, "Created batch run", "batch_id", batch.ID, "batch_run_id", run.ID, "step", step)

	return &BatchState{Batch: batch, Run: run, SequenceRun: sqr, Step: step}, nil, nil
}

// PrepareContext returns the canonical fastq list rows of the batch. The first caller derives
// them from the workflow output, caches them on the batch and stores the rows. Later callers
// read the cache.
func (b *Batcher) PrepareContext(ctx context.Context, batch *BatchState, wf *models.Workflow) ([]models.FastqListRow, error) {
	if batch.Batch.ContextData == nil {
		raw, err := ParseFastqListRows(wf.Output)
		if err != nil {
			return nil, err
		}

		rows := CanonicalizeFastqListRows(raw, batch.Batch.Name, b.logger)

		data, err := json.Marshal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to encode batch context: %w", err)
		}

		stored, err := b.batches.UpdateBatchContext(ctx, batch.Batch.ID, string(data))
		if err != nil {
			return nil, err
		}

		batch.Batch = stored

		_, err = b.sequenceRuns.UpsertFastqListRows(ctx, batch.SequenceRun, rows)
		if err != nil {
			return nil, err
		}
	}

	var rows []models.FastqListRow

	if batch.Batch.ContextData != nil {
		err := json.Unmarshal([]byte(*batch.Batch.ContextData), &rows)
		if err != nil {
			return nil, fmt.Errorf("failed to decode batch context: %w", err)
		}
	}

	return rows, nil
}

// Reset releases the BatchRun so the step can run again.
func (b *Batcher) Reset(ctx context.Context, batch *BatchState) error {
	run, err := b.batches.ResetBatchRun(ctx, batch.Run.ID)
	if err != nil {
		return err
	}

	if run != nil {
		batch.Run = run
	}

	return nil
}

func (b *Batcher) sequenceRun(ctx context.Context, wf *models.Workflow) (*models.SequenceRun, error) {
	if wf.SequenceRunID == nil {
		return nil, nil
	}

	return b.sequenceRuns.GetByID(ctx, *wf.SequenceRunID)
}
