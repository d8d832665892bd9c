package orchestration

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/dukex/portalflow/pkg/dispatcher"
	"github.com/dukex/portalflow/pkg/metadata"
	"github.com/dukex/portalflow/pkg/models"
	"github.com/dukex/portalflow/pkg/services"
)

const StepTumorNormal = string(models.WorkflowTypeTumorNormal)

// tumorNormalStep pairs the WGS tumor and normal libraries of the subjects of a sequencing run
// once none of its germline runs is running. It holds no BatchRun: the launcher skips a pair
// already launched for the tumor sample.
type tumorNormalStep struct {
	destination  string
	workflows    *services.Workflow
	sequenceRuns *services.SequenceRun
	deps         Dependencies
	logger       *slog.Logger
}

// NewTumorNormalStep dispatches one job per subject tumor sample, paired with the subject's
// single normal sample.
func NewTumorNormalStep(destination string, workflows *services.Workflow, sequenceRuns *services.SequenceRun, deps Dependencies) Step {
	return &tumorNormalStep{
		destination:  destination,
		workflows:    workflows,
		sequenceRuns: sequenceRuns,
		deps:         deps,
		logger:       deps.Logger.With("module", "step", "step", StepTumorNormal),
	}
}

func (s *tumorNormalStep) Name() string {
	return StepTumorNormal
}

func (s *tumorNormalStep) Perform(ctx context.Context, wf *models.Workflow) (*StepResult, error) {
	if wf.SequenceRunID == nil {
		return nil, fmt.Errorf("%w: workflow %s", ErrMissingSequenceRun, wf.RunID)
	}

	sqr, err := s.sequenceRuns.GetByID(ctx, *wf.SequenceRunID)
	if err != nil {
		return nil, err
	}

	if sqr == nil {
		return nil, fmt.Errorf("%w: sequence run %d of workflow %s not found", ErrMissingSequenceRun, *wf.SequenceRunID, wf.RunID)
	}

	germline, err := s.workflows.ListBySequenceRun(ctx, sqr.ID, models.WorkflowTypeGermline)
	if err != nil {
		return nil, err
	}

	result := &StepResult{BatchName: sqr.Name, BatchRunStep: s.Name()}

	running := 0

	for _, g := range germline {
		if g.IsRunning() {
			running++
		}
	}

	if running > 0 {
		s.logger.InfoContext(ctx, "Germline runs still running, waiting", "sequence_run", sqr.Name, "running", running)

		result.Outcome = OutcomeWaiting
		result.Message = fmt.Sprintf("%d germline runs of %s still running", running, sqr.Name)

		return result, nil
	}

	subjects, err := s.subjects(ctx, sqr, germline)
	if err != nil {
		return nil, err
	}

	var jobs []any

	for _, subject := range subjects {
		subjectJobs, err := s.subjectJobs(ctx, subject)
		if err != nil {
			return nil, err
		}

		jobs = append(jobs, subjectJobs...)
	}

	if len(jobs) == 0 {
		s.logger.InfoContext(ctx, "No tumor/normal pair to dispatch", "sequence_run", sqr.Name, "subjects", len(subjects))

		result.Outcome = OutcomeNoJobs

		return result, nil
	}

	chunks := s.deps.Dispatcher.Dispatch(ctx, s.destination, jobs)

	failed := dispatcher.Failed(chunks)
	for _, chunk := range failed {
		s.logger.ErrorContext(ctx, "Failed to dispatch chunk", "group_id", chunk.GroupID, "size", chunk.Size, "error", chunk.Err)
	}

	if len(failed) == len(chunks) {
		return nil, fmt.Errorf("%w: %d jobs to %s", ErrNoJobsDispatched, len(jobs), s.destination)
	}

	s.logger.InfoContext(ctx, "Dispatched jobs", "destination", s.destination, "jobs", len(jobs), "subjects", len(subjects))

	result.Outcome = OutcomeDispatched
	result.Jobs = len(jobs)
	result.Chunks = chunks

	return result, nil
}

// subjects returns, in first appearance order, the subjects of the succeeded germline runs.
func (s *tumorNormalStep) subjects(ctx context.Context, sqr *models.SequenceRun, germline []*models.Workflow) ([]string, error) {
	rows, err := s.sequenceRuns.ListFastqListRows(ctx, sqr)
	if err != nil {
		return nil, err
	}

	libraries := map[string][]string{}
	for _, row := range rows {
		if !slices.Contains(libraries[row.RGSM], row.RGLB) {
			libraries[row.RGSM] = append(libraries[row.RGSM], row.RGLB)
		}
	}

	lookup := metadata.NewLookup(s.deps.Metadata)

	var subjects []string

	for _, g := range germline {
		if g.End == nil || !g.HasStatus(models.WorkflowStatusSucceeded) || g.SampleName == nil {
			continue
		}

		for _, libraryID := range libraries[*g.SampleName] {
			meta, err := lookup.ByLibraryID(ctx, libraryID)
			if err != nil {
				return nil, err
			}

			if meta == nil || meta.SubjectID == "" || slices.Contains(subjects, meta.SubjectID) {
				continue
			}

			subjects = append(subjects, meta.SubjectID)
		}
	}

	return subjects, nil
}

// sampleRows holds the fastq list rows of one sample, in first appearance order of samples.
type sampleRows struct {
	order []string
	rows  map[string][]models.FastqListRow
}

func (s *tumorNormalStep) collect(ctx context.Context, records []*models.LabMetadata) (*sampleRows, error) {
	collected := &sampleRows{rows: map[string][]models.FastqListRow{}}

	for _, record := range records {
		rows, err := s.sequenceRuns.ListLibraryFastqListRows(ctx, record.LibraryID)
		if err != nil {
			return nil, err
		}

		if len(rows) == 0 {
			continue
		}

		if _, ok := collected.rows[record.SampleID]; !ok {
			collected.order = append(collected.order, record.SampleID)
		}

		for _, row := range rows {
			collected.rows[record.SampleID] = append(collected.rows[record.SampleID], *row)
		}
	}

	return collected, nil
}

// subjectJobs builds one job per tumor sample of subject. Subjects without both a WGS tumor and
// a WGS normal library with fastq list rows, or with more than one normal sample, yield none.
func (s *tumorNormalStep) subjectJobs(ctx context.Context, subject string) ([]any, error) {
	logger := s.logger.With("subject_id", subject)

	records, err := s.deps.Metadata.ListBySubjectID(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("failed to list metadata of subject %s: %w", subject, err)
	}

	var tumors, normals []*models.LabMetadata

	for _, record := range records {
		if !record.IsType(models.MetadataTypeWGS) {
			continue
		}

		switch {
		case record.IsPhenotype(models.PhenotypeTumor):
			tumors = append(tumors, record)
		case record.IsPhenotype(models.PhenotypeNormal):
			normals = append(normals, record)
		}
	}

	if len(tumors) == 0 || len(normals) == 0 {
		logger.WarnContext(ctx, "Skipping subject, tumor or normal library still missing", "tumors", len(tumors), "normals", len(normals))

		return nil, nil
	}

	tumorRows, err := s.collect(ctx, tumors)
	if err != nil {
		return nil, err
	}

	normalRows, err := s.collect(ctx, normals)
	if err != nil {
		return nil, err
	}

	switch {
	case len(tumorRows.order) == 0:
		logger.InfoContext(ctx, "Skipping subject, tumor fastq list rows still missing")

		return nil, nil
	case len(normalRows.order) == 0:
		logger.InfoContext(ctx, "Skipping subject, normal fastq list rows still missing")

		return nil, nil
	case len(normalRows.order) > 1:
		logger.WarnContext(ctx, "Skipping subject, too many normal samples", "normals", normalRows.order)

		return nil, nil
	}

	normalSample := normalRows.order[0]
	normal := &LibraryGroup{LibraryID: normalSample, Rows: normalRows.rows[normalSample]}

	_, err = singleSample(normal)
	if err != nil {
		logger.WarnContext(ctx, "Skipping subject, unexpected normal rows", "error", err)

		return nil, nil
	}

	var jobs []any

	for _, sampleID := range tumorRows.order {
		tumor := &LibraryGroup{LibraryID: sampleID, Rows: tumorRows.rows[sampleID]}

		tumorSample, err := singleSample(tumor)
		if err != nil {
			logger.WarnContext(ctx, "Skipping tumor sample, unexpected rows", "sample_id", sampleID, "error", err)

			continue
		}

		jobs = append(jobs, &models.Job{
			SampleName:         tumorSample,
			SubjectID:          subject,
			FastqListRows:      normal.JobRows(),
			TumorFastqListRows: tumor.JobRows(),
			OutputFilePrefix:   tumorSample,
			OutputDirectory:    subject,
		})
	}

	return jobs, nil
}

// singleSample returns the rgsm of rows that hold exactly one library of one sample.
func singleSample(g *LibraryGroup) (string, error) {
	_, err := exactlyOne(g, "rglb", func(row models.FastqListRow) string { return row.RGLB })
	if err != nil {
		return "", err
	}

	return g.SampleName()
}
