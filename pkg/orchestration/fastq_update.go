package orchestration

import (
	"context"
	"log/slog"

	"github.com/dukex/portalflow/pkg/models"
	"github.com/dukex/portalflow/pkg/services"
)

type fastqUpdateStep struct {
	sequenceRuns *services.SequenceRun
	logger       *slog.Logger
}

// NewFastqUpdateStep stores the canonical fastq list rows of a BCL conversion. It is not batched.
func NewFastqUpdateStep(sequenceRuns *services.SequenceRun, logger *slog.Logger) Step {
	return &fastqUpdateStep{
		sequenceRuns: sequenceRuns,
		logger:       logger.With("module", "step", "step", StepFastqUpdate),
	}
}

func (s *fastqUpdateStep) Name() string {
	return StepFastqUpdate
}

func (s *fastqUpdateStep) Perform(ctx context.Context, wf *models.Workflow) (*StepResult, error) {
	raw, err := ParseFastqListRows(wf.Output)
	if err != nil {
		return nil, err
	}

	var sqr *models.SequenceRun

	seqName := wf.Type.Lower() + "__" + wf.RunID

	if wf.SequenceRunID != nil {
		sqr, err = s.sequenceRuns.GetByID(ctx, *wf.SequenceRunID)
		if err != nil {
			return nil, err
		}

		if sqr != nil {
			seqName = sqr.Name
		}
	}

	rows, err := s.sequenceRuns.UpsertFastqListRows(ctx, sqr, CanonicalizeFastqListRows(raw, seqName, s.logger))
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Updated fastq list rows", "workflow_run_id", wf.RunID, "rows", len(rows))

	return nil, nil
}
