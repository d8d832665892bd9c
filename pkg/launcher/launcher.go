// Package launcher starts workflow runs on the execution service: the BCL conversion of a new
// sequencing run and the downstream runs described by dispatched jobs.
package launcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/portalflow/pkg/config"
	"github.com/dukex/portalflow/pkg/models"
	"github.com/dukex/portalflow/pkg/otelhelper"
	"github.com/dukex/portalflow/pkg/services"
	"github.com/dukex/portalflow/pkg/wes"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	runNamePrefix  = "portalflow__automated"
	sampleSheet    = "SampleSheet.csv"
	matchingReason = "Matching workflow runs found"
)

var (
	ErrInvalidJob     = errors.New("invalid job")
	ErrMissingVersion = errors.New("launched run has no workflow version")
)

// Notifier is the part of notification.Notifier used after a launch.
type Notifier interface {
	BatchRunStatus(ctx context.Context, batchRunID int64) (bool, error)
}

type Launcher struct {
	cfg          *config.Orchestration
	wes          wes.Client
	workflows    *services.Workflow
	sequenceRuns *services.SequenceRun
	batches      *services.Batch
	notifier     Notifier
	tracer       trace.Tracer
	logger       *slog.Logger
	now          func() time.Time
}

func New(
	cfg *config.Orchestration,
	wesClient wes.Client,
	workflows *services.Workflow,
	sequenceRuns *services.SequenceRun,
	batches *services.Batch,
	notifier Notifier,
	tracer trace.Tracer,
	logger *slog.Logger,
) *Launcher {
	return &Launcher{
		cfg:          cfg,
		wes:          wesClient,
		workflows:    workflows,
		sequenceRuns: sequenceRuns,
		batches:      batches,
		notifier:     notifier,
		tracer:       tracer,
		logger:       logger.With("module", "launcher"),
		now:          time.Now,
	}
}

// RunName is the name given to an automated run.
func (l *Launcher) RunName(wfType models.WorkflowType, seqName, sampleName string) string {
	return fmt.Sprintf("%s__%s__%s__%s__%d", runNamePrefix, wfType.Lower(), seqName, sampleName, l.now().UTC().Unix())
}

// LaunchBCLConvert starts the conversion of a sequencing run whose data is ready. A conversion
// already registered for the run name is not launched again.
func (l *Launcher) LaunchBCLConvert(ctx context.Context, sqr *models.SequenceRun) (*models.LaunchResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, l.tracer, "launcher.bcl_convert",
		attribute.String(otelhelper.WorkflowTypeKey, string(models.WorkflowTypeBCLConvert)),
		attribute.Int64(otelhelper.SequenceRunIDKey, sqr.ID),
	)
	defer span.End()

	result, err := l.launchBCLConvert(ctx, sqr)
	if err != nil {
		otelhelper.SetError(span, err)
	}

	return result, err
}

func (l *Launcher) launchBCLConvert(ctx context.Context, sqr *models.SequenceRun) (*models.LaunchResult, error) {
	wfType := models.WorkflowTypeBCLConvert

	wfCfg, err := l.cfg.Workflow(wfType)
	if err != nil {
		return nil, err
	}

	logger := l.logger.With("type", wfType, "sequence_run", sqr.Name)

	matched, err := l.workflows.SearchMatching(ctx, models.WorkflowQuery{
		Type:       wfType,
		WorkflowID: wfCfg.ID,
		Version:    wfCfg.Version,
		SampleName: &sqr.Name,
	})
	if err != nil {
		return nil, err
	}

	if len(matched) > 0 {
		logger.InfoContext(ctx, "Skipping launch", "reason", matchingReason, "matched", len(matched))

		return &models.LaunchResult{
			Status:      models.LaunchStatusSkipped,
			Reason:      matchingReason,
			Type:        wfType,
			SampleName:  sqr.Name,
			MatchedRuns: matched,
		}, nil
	}

	runFolder := sqr.RunFolder()

	input, err := inputTemplate(wfCfg)
	if err != nil {
		return nil, err
	}

	input["bcl_input_directory"] = map[string]any{"class": "Directory", "location": runFolder}
	input["samplesheet"] = map[string]any{"class": "File", "location": runFolder + "/" + sampleSheet}

	wf, err := l.launch(ctx, wfType, wfCfg, l.RunName(wfType, sqr.Name, sqr.RunID), input, &models.Workflow{
		SampleName:    &sqr.Name,
		SequenceRunID: &sqr.ID,
	})
	if err != nil {
		return nil, err
	}

	return &models.LaunchResult{
		Status:     models.LaunchStatusLaunched,
		Type:       wfType,
		SampleName: sqr.Name,
		Workflow:   wf,
	}, nil
}

// HandleJob launches the workflow of one dispatched job unless a run with the same type,
// definition, version, sample, sequencing run and batch run is already registered.
func (l *Launcher) HandleJob(ctx context.Context, wfType models.WorkflowType, job *models.Job) (*models.LaunchResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, l.tracer, "launcher.job",
		attribute.String(otelhelper.WorkflowTypeKey, string(wfType)),
		attribute.Int64(otelhelper.BatchRunIDKey, job.BatchRunID),
	)
	defer span.End()

	result, err := l.handleJob(ctx, wfType, job)
	if err != nil {
		otelhelper.SetError(span, err)
	}

	return result, err
}

func (l *Launcher) handleJob(ctx context.Context, wfType models.WorkflowType, job *models.Job) (*models.LaunchResult, error) {
	if job.SampleName == "" {
		return nil, fmt.Errorf("%w: sample_name is required", ErrInvalidJob)
	}

	wfCfg, err := l.cfg.Workflow(wfType)
	if err != nil {
		return nil, err
	}

	logger := l.logger.With("type", wfType, "sample_name", job.SampleName, "batch_run_id", job.BatchRunID)

	var sqr *models.SequenceRun

	if job.SeqRunID != nil && *job.SeqRunID != "" {
		sqr, err = l.sequenceRuns.GetByRunID(ctx, *job.SeqRunID)
		if err != nil {
			return nil, err
		}
	}

	var batchRunID *int64

	if job.BatchRunID != 0 {
		run, err := l.batches.GetBatchRun(ctx, job.BatchRunID)
		if err != nil {
			return nil, err
		}

		batchRunID = &run.ID
	}

	query := models.WorkflowQuery{
		Type:       wfType,
		WorkflowID: wfCfg.ID,
		Version:    wfCfg.Version,
		SampleName: &job.SampleName,
		BatchRunID: batchRunID,
	}
	if sqr != nil {
		query.SequenceRunID = &sqr.ID
	}

	matched, err := l.workflows.SearchMatching(ctx, query)
	if err != nil {
		return nil, err
	}

	if len(matched) > 0 {
		logger.InfoContext(ctx, "Skipping launch", "reason", matchingReason, "matched", len(matched))

		return &models.LaunchResult{
			Status:      models.LaunchStatusSkipped,
			Reason:      matchingReason,
			Type:        wfType,
			SampleName:  job.SampleName,
			MatchedRuns: matched,
		}, nil
	}

	input, err := inputTemplate(wfCfg)
	if err != nil {
		return nil, err
	}

	err = mergeJob(input, job)
	if err != nil {
		return nil, err
	}

	// tumor/normal pairs span sequencing runs and are named after the subject
	seqName := job.SubjectID
	if job.SeqName != nil {
		seqName = *job.SeqName
	}

	wf, err := l.launch(ctx, wfType, wfCfg, l.RunName(wfType, seqName, job.SampleName), input, &models.Workflow{
		SampleName:    &job.SampleName,
		SequenceRunID: query.SequenceRunID,
		BatchRunID:    batchRunID,
	})
	if err != nil {
		return nil, err
	}

	if batchRunID != nil {
		_, err = l.notifier.BatchRunStatus(ctx, *batchRunID)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to notify batch run status", "error", err)
		}
	}

	return &models.LaunchResult{
		Status:     models.LaunchStatusLaunched,
		Type:       wfType,
		SampleName: job.SampleName,
		Workflow:   wf,
	}, nil
}

// launch starts the run and registers it. refs carries the sample, sequencing run and batch run
// of the new workflow.
func (l *Launcher) launch(ctx context.Context, wfType models.WorkflowType, wfCfg config.Workflow, runName string, input map[string]any, refs *models.Workflow) (*models.Workflow, error) {
	run, err := l.wes.Launch(ctx, wfCfg.ID, wfCfg.Version, wes.LaunchRequest{
		Name:             runName,
		Input:            input,
		EngineParameters: wfCfg.EngineParameters,
	})
	if err != nil {
		return nil, err
	}

	if run.WorkflowVersion == nil || run.WorkflowVersion.ID == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingVersion, run.ID)
	}

	inputJSON, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to encode workflow input: %w", err)
	}

	start := l.now().UTC()
	if run.TimeStarted != nil {
		start = *run.TimeStarted
	}

	// A freshly launched run counts as running until the execution service says otherwise.
	status := models.WorkflowStatusRunning
	if parsed, err := models.ParseWorkflowStatus(run.Status); err == nil {
		status = parsed
	}

	wf, err := l.workflows.Upsert(ctx, &models.Workflow{
		WorkflowID:    wfCfg.ID,
		RunID:         run.ID,
		VersionID:     run.WorkflowVersion.ID,
		RunName:       runName,
		Type:          wfType,
		Version:       wfCfg.Version,
		SampleName:    refs.SampleName,
		Input:         string(inputJSON),
		Start:         start,
		EndStatus:     &status,
		SequenceRunID: refs.SequenceRunID,
		BatchRunID:    refs.BatchRunID,
	})
	if err != nil {
		return nil, err
	}

	l.logger.InfoContext(ctx, "Launched workflow", "type", wfType, "wfr_id", wf.RunID, "wfr_name", runName)

	return wf, nil
}

// inputTemplate returns a deep copy of the configured input.
func inputTemplate(wfCfg config.Workflow) (map[string]any, error) {
	input := map[string]any{}

	if len(wfCfg.Input) == 0 {
		return input, nil
	}

	data, err := json.Marshal(wfCfg.Input)
	if err != nil {
		return nil, fmt.Errorf("failed to copy input template: %w", err)
	}

	err = json.Unmarshal(data, &input)
	if err != nil {
		return nil, fmt.Errorf("failed to copy input template: %w", err)
	}

	return input, nil
}

// bookkeeping fields travel with the job but are not workflow inputs.
var bookkeeping = []string{"library_id", "seq_run_id", "seq_name", "batch_run_id", "tso500_sample", "subject_id"}

func mergeJob(input map[string]any, job *models.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}

	var fields map[string]any

	err = json.Unmarshal(data, &fields)
	if err != nil {
		return fmt.Errorf("failed to decode job: %w", err)
	}

	for _, key := range bookkeeping {
		delete(fields, key)
	}

	for key, value := range fields {
		input[key] = value
	}

	if job.TSO500Sample != nil {
		input["tso500_samples"] = []any{job.TSO500Sample}
	}

	return nil
}
