// Package orchestrator reacts to workflow run state changes: it syncs the stored workflow with the
// execution service and runs the follow-on steps of a succeeded producer workflow.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/dukex/portalflow/pkg/config"
	"github.com/dukex/portalflow/pkg/models"
	"github.com/dukex/portalflow/pkg/orchestration"
	"github.com/dukex/portalflow/pkg/otelhelper"
	"github.com/dukex/portalflow/pkg/services"
	"github.com/dukex/portalflow/pkg/wes"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var ErrWorkflowMissingOutput = errors.New("workflow has no output")

// Notifier is the part of notification.Notifier used after a workflow update.
type Notifier interface {
	WorkflowStatus(ctx context.Context, wf *models.Workflow) (bool, error)
	BatchRunStatus(ctx context.Context, batchRunID int64) (bool, error)
}

// Request is one orchestration call. Event is optional.
type Request struct {
	RunID     string                 `json:"wfr_id"              validate:"required"`
	VersionID string                 `json:"wfv_id"              validate:"required"`
	Event     *models.LifecycleEvent `json:"wfr_event,omitempty"`
	Skip      config.SkipList        `json:"skip"`
}

type Orchestrator struct {
	workflows    *services.Workflow
	sequenceRuns *services.SequenceRun
	wes          wes.Client
	notifier     Notifier
	skip         config.SkipList
	routes       map[models.WorkflowType][]orchestration.Step
	tracer       trace.Tracer
	logger       *slog.Logger
}

func New(
	workflows *services.Workflow,
	sequenceRuns *services.SequenceRun,
	wesClient wes.Client,
	notifier Notifier,
	skip config.SkipList,
	tracer trace.Tracer,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		workflows:    workflows,
		sequenceRuns: sequenceRuns,
		wes:          wesClient,
		notifier:     notifier,
		skip:         skip,
		routes:       map[models.WorkflowType][]orchestration.Step{},
		tracer:       tracer,
		logger:       logger.With("module", "orchestrator"),
	}
}

// Route registers the steps run, in order, when a workflow of wfType succeeds.
func (o *Orchestrator) Route(wfType models.WorkflowType, steps ...orchestration.Step) {
	o.routes[wfType] = append(o.routes[wfType], steps...)
}

// BCLConvertSteps are the follow-on steps of a succeeded BCL conversion.
func BCLConvertSteps(cfg *config.Orchestration, deps orchestration.Dependencies, sequenceRuns *services.SequenceRun) []orchestration.Step {
	return []orchestration.Step{
		orchestration.NewFastqUpdateStep(sequenceRuns, deps.Logger),
		orchestration.NewGermlineStep(cfg.Topic(models.WorkflowTypeGermline), deps),
		orchestration.NewDragenTSOCtDNAStep(cfg.Topic(models.WorkflowTypeDragenTSOCtDNA), deps),
		orchestration.NewDragenWTSStep(cfg.Topic(models.WorkflowTypeDragenWTS), deps),
	}
}

// GermlineSteps follow a succeeded germline run.
func GermlineSteps(cfg *config.Orchestration, deps orchestration.Dependencies, workflows *services.Workflow, sequenceRuns *services.SequenceRun) []orchestration.Step {
	return []orchestration.Step{
		orchestration.NewTumorNormalStep(cfg.Topic(models.WorkflowTypeTumorNormal), workflows, sequenceRuns, deps),
	}
}

// SkipName is the skip list entry of a step.
func SkipName(step orchestration.Step) string {
	return step.Name() + "_STEP"
}

func (o *Orchestrator) HandleRequest(ctx context.Context, req Request) ([]*orchestration.StepResult, error) {
	return o.handle(ctx, req.RunID, req.VersionID, req.Event, o.skip.Merge(req.Skip))
}

// Handle syncs the workflow (runID, versionID) and performs its follow-on steps. An unknown
// workflow is logged and yields no results.
func (o *Orchestrator) Handle(ctx context.Context, runID, versionID string, event *models.LifecycleEvent) ([]*orchestration.StepResult, error) {
	return o.handle(ctx, runID, versionID, event, o.skip)
}

func (o *Orchestrator) handle(ctx context.Context, runID, versionID string, event *models.LifecycleEvent, skip config.SkipList) ([]*orchestration.StepResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "orchestrator.handle",
		attribute.String(otelhelper.WorkflowRunIDKey, runID),
		attribute.String(otelhelper.WorkflowVersionIDKey, versionID),
	)
	defer span.End()

	logger := o.logger.With("wfr_id", runID, "wfv_id", versionID)

	var (
		wf  *models.Workflow
		err error
	)

	if skip.Skips(config.UpdateStep) {
		logger.InfoContext(ctx, "Skipping update step, using stored workflow")

		wf, err = o.workflows.FindOrNone(ctx, runID, versionID)
	} else {
		wf, err = o.update(ctx, runID, versionID, event)
	}

	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	if wf == nil {
		logger.WarnContext(ctx, "Skipping next step, workflow not found")

		return nil, nil
	}

	results, err := o.next(ctx, wf, skip)
	if err != nil {
		otelhelper.SetError(span, err)
	}

	return results, err
}

// update syncs the stored workflow with the live run and announces the new state.
func (o *Orchestrator) update(ctx context.Context, runID, versionID string, event *models.LifecycleEvent) (*models.Workflow, error) {
	logger := o.logger.With("wfr_id", runID, "wfv_id", versionID)

	wf, err := o.workflows.FindOrNone(ctx, runID, versionID)
	if err != nil {
		return nil, err
	}

	if wf == nil {
		logger.InfoContext(ctx, "Run is not managed by the pipeline")

		return nil, nil
	}

	status, err := o.wes.RunStatus(ctx, runID, event)
	if err != nil {
		return nil, err
	}

	if wf.Notified && (wf.EndStatus == nil || !wf.EndStatus.Equal(status.Status)) {
		wf.Notified = false
	}

	endStatus := status.Status
	wf.EndStatus = &endStatus
	wf.End = status.End

	if status.Output != nil {
		wf.Output = status.Output
	}

	wf, err = o.workflows.Upsert(ctx, wf)
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "Updated workflow", "status", endStatus)

	_, err = o.notifier.WorkflowStatus(ctx, wf)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to notify workflow status", "error", err)
	}

	if wf.BatchRunID != nil {
		_, err = o.notifier.BatchRunStatus(ctx, *wf.BatchRunID)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to notify batch run status", "batch_run_id", *wf.BatchRunID, "error", err)
		}
	}

	return wf, nil
}

func (o *Orchestrator) next(ctx context.Context, wf *models.Workflow, skip config.SkipList) ([]*orchestration.StepResult, error) {
	logger := o.logger.With("wfr_id", wf.RunID, "type", wf.Type)

	if !wf.HasStatus(models.WorkflowStatusSucceeded) {
		logger.InfoContext(ctx, "Workflow has not succeeded, no next step")

		return nil, nil
	}

	steps, ok := o.routes[wf.Type]
	if !ok {
		logger.InfoContext(ctx, "No next step for workflow type")

		return nil, nil
	}

	if wf.Output == nil || *wf.Output == "" {
		return nil, fmt.Errorf("workflow %s: %w", wf.RunID, ErrWorkflowMissingOutput)
	}

	skipped, err := o.skipList(ctx, wf, skip)
	if err != nil {
		return nil, err
	}

	var results []*orchestration.StepResult

	for _, step := range steps {
		name := SkipName(step)

		if slices.Contains(skipped, name) {
			logger.InfoContext(ctx, "Skip performing step", "step", name)

			continue
		}

		logger.InfoContext(ctx, "Performing step", "step", name)

		result, err := o.perform(ctx, step, wf)
		if result != nil {
			results = append(results, result)
		}

		if err != nil {
			return results, fmt.Errorf("%s: %w", name, err)
		}
	}

	return results, nil
}

func (o *Orchestrator) perform(ctx context.Context, step orchestration.Step, wf *models.Workflow) (*orchestration.StepResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "orchestrator.step",
		attribute.String(otelhelper.StepNameKey, step.Name()),
		attribute.String(otelhelper.WorkflowRunIDKey, wf.RunID),
	)
	defer span.End()

	result, err := step.Perform(ctx, wf)
	if err != nil {
		otelhelper.SetError(span, err)
	}

	if result != nil {
		span.SetAttributes(
			attribute.String(otelhelper.StepOutcomeKey, string(result.Outcome)),
			attribute.Int64(otelhelper.BatchRunIDKey, result.BatchRunID),
		)
	}

	return result, err
}

// skipList is the global list plus the list of the workflow's instrument run.
func (o *Orchestrator) skipList(ctx context.Context, wf *models.Workflow, skip config.SkipList) ([]string, error) {
	if wf.SequenceRunID == nil {
		return skip.For(""), nil
	}

	sqr, err := o.sequenceRuns.GetByID(ctx, *wf.SequenceRunID)
	if err != nil {
		return nil, err
	}

	if sqr == nil {
		return skip.For(""), nil
	}

	return skip.For(sqr.InstrumentRunID), nil
}
