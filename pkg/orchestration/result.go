package orchestration

import (
	"github.com/dukex/portalflow/pkg/dispatcher"
	"github.com/dukex/portalflow/pkg/models"
)

// Outcome tags what a batched step did.
type Outcome string

const (
	OutcomeDispatched Outcome = "dispatched"
	OutcomeSkipped    Outcome = "skipped"
	OutcomeNoJobs     Outcome = "no_jobs"
	OutcomeFailed     Outcome = "failed"

	// OutcomeWaiting means other runs feeding the step have to finish first.
	OutcomeWaiting Outcome = "waiting"
)

// StepResult describes the batch state a step left behind. A skip is a result, not an error.
type StepResult struct {
	Outcome        Outcome                  `json:"outcome"`
	BatchID        int64                    `json:"batch_id"`
	BatchName      string                   `json:"batch_name"`
	BatchCreatedBy string                   `json:"batch_created_by"`
	BatchRunID     int64                    `json:"batch_run_id,omitempty"`
	BatchRunStep   string                   `json:"batch_run_step"`
	BatchRunStatus string                   `json:"batch_run_status,omitempty"`
	Message        string                   `json:"message,omitempty"`
	Jobs           int                      `json:"jobs"`
	Chunks         []dispatcher.ChunkResult `json:"chunks,omitempty"`
}

func newStepResult(outcome Outcome, batch *models.Batch, run *models.BatchRun, step string) *StepResult {
	result := &StepResult{
		Outcome:        outcome,
		BatchID:        batch.ID,
		BatchName:      batch.Name,
		BatchCreatedBy: batch.CreatedBy,
		BatchRunStep:   step,
	}

	if run != nil {
		result.BatchRunID = run.ID
		result.BatchRunStatus = run.Status()
	}

	return result
}

// FailedChunks returns the chunks that were not accepted by the queue.
func (r *StepResult) FailedChunks() []dispatcher.ChunkResult {
	return dispatcher.Failed(r.Chunks)
}
