// Package orchestration turns a succeeded producer workflow into batched downstream jobs.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/portalflow/pkg/dispatcher"
	"github.com/dukex/portalflow/pkg/metadata"
	"github.com/dukex/portalflow/pkg/models"
	"github.com/dukex/portalflow/pkg/persistence"
)

// Step tags of the batched steps. The tag is the type of workflow the step launches.
const (
	StepGermline       = string(models.WorkflowTypeGermline)
	StepDragenTSOCtDNA = string(models.WorkflowTypeDragenTSOCtDNA)
	StepDragenWTS      = string(models.WorkflowTypeDragenWTS)
	StepFastqUpdate    = "FASTQ_UPDATE"
)

// ErrNoJobsDispatched means every chunk of a non-empty job list was rejected by the queue.
var ErrNoJobsDispatched = errors.New("no job was accepted by the queue")

// Step is one unit of follow-on work for a succeeded producer workflow.
type Step interface {
	Name() string
	// Perform returns a nil result for steps that are not batched.
	Perform(ctx context.Context, wf *models.Workflow) (*StepResult, error)
}

// Dispatcher sends jobs to a destination queue.
type Dispatcher interface {
	Dispatch(ctx context.Context, destination string, jobs []any) []dispatcher.ChunkResult
}

// Dependencies are shared by all steps of one process.
type Dependencies struct {
	Batcher    *Batcher
	Metadata   persistence.LabMetadataRepository
	Dispatcher Dispatcher
	Logger     *slog.Logger
}

// jobDecorator adds step specific fields to the job of one library group.
type jobDecorator func(job *models.Job, group *LibraryGroup) error

// batchedStep holds what GERMLINE, DRAGEN_TSO_CTDNA and DRAGEN_WTS share: batching, grouping by
// library, metadata exclusion and dispatch.
type batchedStep struct {
	name        string
	destination string
	accepts     func(m *models.LabMetadata) bool
	decorator   func(wf *models.Workflow) jobDecorator

	deps   Dependencies
	logger *slog.Logger
}

func (s *batchedStep) Name() string {
	return s.name
}

// Perform holds the BatchRun for the whole call. Any failure after the run was created resets it
// before the error is returned, and so does an empty job list.
func (s *batchedStep) Perform(ctx context.Context, wf *models.Workflow) (result *StepResult, err error) {
	batch, skipped, err := s.deps.Batcher.Begin(ctx, wf, s.name)
	if err != nil {
		return nil, err
	}

	if skipped != nil {
		return skipped, nil
	}

	defer func() {
		if err == nil {
			return
		}

		resetErr := s.deps.Batcher.Reset(ctx, batch)
		if resetErr != nil {
			s.logger.ErrorContext(ctx, "Failed to reset batch run", "batch_run_id", batch.Run.ID, "error", resetErr)
		}

		err = errors.Join(err, resetErr)
		result = batch.result(OutcomeFailed)
		result.Message = err.Error()
	}()

	rows, err := s.deps.Batcher.PrepareContext(ctx, batch, wf)
	if err != nil {
		return nil, err
	}

	jobs, err := s.prepareJobs(ctx, wf, batch, rows)
	if err != nil {
		return nil, err
	}

	if len(jobs) == 0 {
		err = s.deps.Batcher.Reset(ctx, batch)
		if err != nil {
			return nil, err
		}

		s.logger.InfoContext(ctx, "No jobs to dispatch", "batch_id", batch.Batch.ID, "batch_run_id", batch.Run.ID)

		return batch.result(OutcomeNoJobs), nil
	}

	chunks := s.deps.Dispatcher.Dispatch(ctx, s.destination, jobs)

	failed := dispatcher.Failed(chunks)
	for _, chunk := range failed {
		s.logger.ErrorContext(ctx, "Failed to dispatch chunk",
			"group_id", chunk.GroupID, "size", chunk.Size, "batch_run_id", batch.Run.ID, "error", chunk.Err)
	}

	if len(failed) == len(chunks) {
		return nil, fmt.Errorf("%w: %d jobs to %s", ErrNoJobsDispatched, len(jobs), s.destination)
	}

	s.logger.InfoContext(ctx, "Dispatched jobs",
		"batch_run_id", batch.Run.ID, "destination", s.destination, "jobs", len(jobs), "chunks", len(chunks))

	result = batch.result(OutcomeDispatched)
	result.Jobs = len(jobs)
	result.Chunks = chunks

	return result, nil
}

func (s *batchedStep) prepareJobs(ctx context.Context, wf *models.Workflow, batch *BatchState, rows []models.FastqListRow) ([]any, error) {
	lookup := metadata.NewLookup(s.deps.Metadata)

	var decorate jobDecorator
	if s.decorator != nil {
		decorate = s.decorator(wf)
	}

	var jobs []any

	for _, group := range GroupByLibrary(rows) {
		meta, err := lookup.ByLibraryID(ctx, group.LibraryID)
		if err != nil {
			return nil, err
		}

		if reason := s.exclusion(meta); reason != "" {
			s.logger.InfoContext(ctx, "Skipping library", "library_id", group.LibraryID, "reason", reason)

			continue
		}

		sampleName, err := group.SampleName()
		if err != nil {
			return nil, err
		}

		job := &models.Job{
			SampleName:    sampleName,
			LibraryID:     group.LibraryID,
			FastqListRows: group.JobRows(),
			BatchRunID:    batch.Run.ID,
		}

		if sqr := batch.SequenceRun; sqr != nil {
			job.SeqRunID = &sqr.RunID
			job.SeqName = &sqr.Name
		}

		if decorate != nil {
			err = decorate(job, group)
			if err != nil {
				return nil, err
			}
		}

		jobs = append(jobs, job)
	}

	return jobs, nil
}

// exclusion returns why a library is not processed by the step, or "" when it is.
func (s *batchedStep) exclusion(meta *models.LabMetadata) string {
	switch {
	case meta == nil:
		return "no lab metadata"
	case meta.IsPhenotype(models.PhenotypeNegativeControl):
		return "negative control"
	case meta.IsWorkflow(models.MetadataWorkflowManual):
		return "manual workflow"
	case !s.accepts(meta):
		return fmt.Sprintf("type %s and assay %s not handled by %s", meta.Type, meta.Assay, s.name)
	default:
		return ""
	}
}

func newBatchedStep(name, destination string, deps Dependencies) *batchedStep {
	return &batchedStep{
		name:        name,
		destination: destination,
		deps:        deps,
		logger:      deps.Logger.With("module", "step", "step", name),
	}
}
