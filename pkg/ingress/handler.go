package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/portalflow/pkg/models"
	"github.com/dukex/portalflow/pkg/orchestration"
	"github.com/dukex/portalflow/pkg/otelhelper"
	"github.com/dukex/portalflow/pkg/services"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Orchestrator interface {
	Handle(ctx context.Context, runID, versionID string, event *models.LifecycleEvent) ([]*orchestration.StepResult, error)
}

type Launcher interface {
	LaunchBCLConvert(ctx context.Context, sqr *models.SequenceRun) (*models.LaunchResult, error)
}

type Notifier interface {
	SequenceRunStatus(ctx context.Context, sqr *models.SequenceRun) (bool, error)
	Outlier(ctx context.Context, topic, reason, status string, event map[string]any) error
}

type Handler struct {
	sequenceRuns *services.SequenceRun
	orchestrator Orchestrator
	launcher     Launcher
	notifier     Notifier
	tracer       trace.Tracer
	logger       *slog.Logger
}

func NewHandler(
	sequenceRuns *services.SequenceRun,
	orchestrator Orchestrator,
	launcher Launcher,
	notifier Notifier,
	tracer trace.Tracer,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		sequenceRuns: sequenceRuns,
		orchestrator: orchestrator,
		launcher:     launcher,
		notifier:     notifier,
		tracer:       tracer,
		logger:       logger.With("module", "ingress"),
	}
}

// HandleBatch handles every record of batch. A failing record is reported in the result and
// does not stop the others.
func (h *Handler) HandleBatch(ctx context.Context, batch RecordBatch) BatchResult {
	ctx, span := otelhelper.StartSpan(ctx, h.tracer, "ingress.batch",
		attribute.Int(otelhelper.RecordCountKey, len(batch.Records)),
	)
	defer span.End()

	result := BatchResult{Failures: []Failure{}}

	for _, rec := range batch.Records {
		err := h.HandleRecord(ctx, rec)
		if err != nil {
			h.logger.ErrorContext(ctx, "Failed to handle record", "message_id", rec.MessageID, "type", rec.Type, "error", err)

			result.Failures = append(result.Failures, Failure{ItemIdentifier: rec.MessageID, Reason: err.Error()})
		}
	}

	h.logger.InfoContext(ctx, "Event batch processed", "records", len(batch.Records), "failures", len(result.Failures))

	return result
}

// HandleRecord routes one record by type. Unsupported types are skipped.
func (h *Handler) HandleRecord(ctx context.Context, rec Record) error {
	ctx, span := otelhelper.StartSpan(ctx, h.tracer, "ingress.record",
		attribute.String(otelhelper.MessageIDKey, rec.MessageID),
		attribute.String(otelhelper.RecordTypeKey, rec.Type),
	)
	defer span.End()

	var err error

	switch rec.Type {
	case TypeSequenceRun:
		err = h.handleSequenceRun(ctx, rec)
	case TypeWorkflowRun:
		err = h.handleWorkflowRun(ctx, rec)
	default:
		h.logger.WarnContext(ctx, "Skipping unsupported record type", "message_id", rec.MessageID, "type", rec.Type)

		return nil
	}

	if err != nil {
		otelhelper.SetError(span, err)
	}

	return err
}

func (h *Handler) handleSequenceRun(ctx context.Context, rec Record) error {
	data, err := rec.body()
	if err != nil {
		return err
	}

	err = validate(sequenceRunSchemaLoader, data)
	if err != nil {
		return err
	}

	var body sequenceRunBody

	err = json.Unmarshal(data, &body)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}

	sqr, err := h.sequenceRuns.CreateIfNew(ctx, body.toModel(rec))
	if err != nil {
		return err
	}

	if sqr == nil {
		h.logger.InfoContext(ctx, "Ignoring known sequence run status", "run_id", body.ID, "status", body.Status)

		return nil
	}

	_, err = h.notifier.SequenceRunStatus(ctx, sqr)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to notify sequence run status", "run_id", sqr.RunID, "error", err)
	}

	if !strings.EqualFold(sqr.Status, models.SequenceRunStatusPendingAnalysis) {
		return nil
	}

	result, err := h.launcher.LaunchBCLConvert(ctx, sqr)
	if err != nil {
		return err
	}

	h.logger.InfoContext(ctx, "BCL conversion handled", "sequence_run", sqr.Name, "status", result.Status)

	return nil
}

func (h *Handler) handleWorkflowRun(ctx context.Context, rec Record) error {
	data, err := rec.body()
	if err != nil {
		return err
	}

	err = validate(workflowRunSchemaLoader, data)
	if err != nil {
		return err
	}

	var body workflowRunBody

	err = json.Unmarshal(data, &body)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}

	runID := body.WorkflowRun.ID
	versionID := body.WorkflowRun.WorkflowVersion.ID

	results, err := h.orchestrator.Handle(ctx, runID, versionID, body.event())
	if err != nil {
		notifyErr := h.notifier.Outlier(ctx, TypeWorkflowRun, err.Error(), "FAILED", map[string]any{
			"message_id": rec.MessageID,
			"wfr_id":     runID,
			"wfv_id":     versionID,
			"event_type": body.EventType,
		})
		if notifyErr != nil {
			h.logger.ErrorContext(ctx, "Failed to notify orchestration failure", "error", notifyErr)
		}

		return err
	}

	for _, result := range results {
		h.logger.InfoContext(ctx, "Step result",
			"wfr_id", runID,
			"step", result.BatchRunStep,
			"outcome", result.Outcome,
			"batch_run_id", result.BatchRunID,
			"jobs", result.Jobs,
		)
	}

	return nil
}

// Subscribe handles the record batches published on topic until ctx is done. Every message is
// acked: failing records are reported, not redelivered.
func (h *Handler) Subscribe(ctx context.Context, subscriber message.Subscriber, topic string) error {
	messages, err := subscriber.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	h.logger.InfoContext(ctx, "Consuming event batches", "topic", topic)

	for msg := range messages {
		var batch RecordBatch

		err := json.Unmarshal(msg.Payload, &batch)
		if err != nil {
			h.logger.ErrorContext(ctx, "Dropping malformed event batch", "message_id", msg.UUID, "error", errors.Join(ErrInvalidRecord, err))
			msg.Ack()

			continue
		}

		result := h.HandleBatch(ctx, batch)
		if len(result.Failures) > 0 {
			h.logger.WarnContext(ctx, "Event batch had failures", "message_id", msg.UUID, "failures", len(result.Failures))
		}

		msg.Ack()
	}

	return nil
}
