package notification

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dukex/portalflow/pkg/models"
	"github.com/dukex/portalflow/pkg/services"
)

const (
	senderAutomation = "Portal Workflow Automation"
	footerAutomation = "Pipeline: Automated Workflow Event"
	senderSequencer  = "BSSH Run"
	footerSequencer  = "Pipeline: BSSH.RUNS Event"

	notApplicable = "Not Applicable"
)

// Notifier builds status messages and records what was announced.
type Notifier struct {
	sink         Sink
	workflows    *services.Workflow
	batches      *services.Batch
	sequenceRuns *services.SequenceRun
	logger       *slog.Logger
	now          func() time.Time
}

func NewNotifier(sink Sink, workflows *services.Workflow, batches *services.Batch, sequenceRuns *services.SequenceRun, logger *slog.Logger) *Notifier {
	return &Notifier{
		sink:         sink,
		workflows:    workflows,
		batches:      batches,
		sequenceRuns: sequenceRuns,
		logger:       logger.With("module", "notifier"),
		now:          time.Now,
	}
}

func workflowColor(status models.WorkflowStatus) (string, bool) {
	switch {
	case status.Equal(models.WorkflowStatusRunning):
		return ColorBlue, true
	case status.Equal(models.WorkflowStatusSucceeded):
		return ColorGreen, true
	case status.Equal(models.WorkflowStatusFailed):
		return ColorRed, true
	case status.Equal(models.WorkflowStatusAborted):
		return ColorGray, true
	default:
		return "", false
	}
}

// WorkflowStatus announces the end status of wf once and marks it notified. It reports whether a
// message was sent.
func (n *Notifier) WorkflowStatus(ctx context.Context, wf *models.Workflow) (bool, error) {
	logger := n.logger.With("type", wf.Type, "wfr_id", wf.RunID)

	if wf.EndStatus == nil {
		logger.InfoContext(ctx, "Workflow has no end status. Not reporting")

		return false, nil
	}

	if wf.Notified {
		logger.InfoContext(ctx, "Workflow status already notified", "status", *wf.EndStatus)

		return false, nil
	}

	color, ok := workflowColor(*wf.EndStatus)
	if !ok {
		logger.InfoContext(ctx, "Unsupported workflow status. Not reporting", "status", *wf.EndStatus)

		return false, nil
	}

	sequenceRun := notApplicable

	if wf.SequenceRunID != nil {
		sqr, err := n.sequenceRuns.GetByID(ctx, *wf.SequenceRunID)
		if err != nil {
			return false, err
		}

		if sqr != nil {
			sequenceRun = sqr.Name
		}
	}

	status := strings.ToUpper(string(*wf.EndStatus))
	end := notApplicable

	if wf.End != nil {
		end = wf.End.UTC().Format(time.RFC3339)
	}

	sampleName := notApplicable
	if wf.SampleName != nil && *wf.SampleName != "" {
		sampleName = *wf.SampleName
	}

	msg := Message{
		Sender: senderAutomation,
		Topic:  "Run Name: " + wf.RunName,
		Attachments: []Attachment{{
			Fallback: fmt.Sprintf("RunID: %s, Status: %s", wf.RunID, status),
			Color:    color,
			Pretext:  "Status: " + status,
			Title:    "RunID: " + wf.RunID,
			Text:     "Workflow Attributes:",
			Fields: []Field{
				{Title: "Workflow Type", Value: string(wf.Type), Short: true},
				{Title: "Workflow ID", Value: wf.WorkflowID, Short: true},
				{Title: "Workflow Version", Value: wf.Version, Short: true},
				{Title: "Workflow Version ID", Value: wf.VersionID, Short: true},
				{Title: "Start Time", Value: wf.Start.UTC().Format(time.RFC3339), Short: true},
				{Title: "End Time", Value: end, Short: true},
				{Title: "Sequence Run", Value: sequenceRun, Short: true},
				{Title: "Sample Name", Value: sampleName, Short: true},
			},
			Footer: footerAutomation,
			TS:     n.now().Unix(),
		}},
	}

	err := n.sink.Send(ctx, msg)
	if err != nil {
		return false, err
	}

	err = n.workflows.SetNotified(ctx, true, wf)
	if err != nil {
		return true, err
	}

	return true, nil
}

// SequenceRunStatus announces a sequencing run status. Statuses without a colour are ignored.
func (n *Notifier) SequenceRunStatus(ctx context.Context, sqr *models.SequenceRun) (bool, error) {
	var color string

	switch sqr.Status {
	case "Uploading", "Running":
		color = ColorBlue
	case models.SequenceRunStatusPendingAnalysis, "Complete":
		color = ColorGreen
	case "FailedUpload", "Failed", "TimedOut":
		color = ColorRed
	default:
		n.logger.InfoContext(ctx, "Unsupported sequence run status. Not reporting", "status", sqr.Status)

		return false, nil
	}

	owner := "undetermined"

	var workgroups []string

	for _, id := range sqr.ACL {
		if strings.HasPrefix(id, "wid") {
			workgroups = append(workgroups, id)
		}
	}

	if len(workgroups) == 1 {
		owner = workgroups[0]
	}

	msg := Message{
		Sender: senderSequencer,
		Topic:  "Notification from " + sqr.MsgAttrActionType,
		Attachments: []Attachment{{
			Fallback: fmt.Sprintf("Run %s: %s", sqr.InstrumentRunID, sqr.Status),
			Color:    color,
			Pretext:  sqr.Name,
			Title:    "Run: " + sqr.InstrumentRunID,
			Text:     sqr.GDSFolderPath,
			Fields: []Field{
				{Title: "Action", Value: sqr.MsgAttrAction, Short: true},
				{Title: "Action Type", Value: sqr.MsgAttrActionType, Short: true},
				{Title: "Status", Value: sqr.Status, Short: true},
				{Title: "Volume Name", Value: sqr.GDSVolumeName, Short: true},
				{Title: "Action Date", Value: sqr.MsgAttrActionDate, Short: true},
				{Title: "Modified Date", Value: sqr.DateModified.UTC().Format(time.RFC3339), Short: true},
				{Title: "Produced By", Value: sqr.MsgAttrProducedBy, Short: true},
				{Title: "BSSH Run ID", Value: sqr.RunID, Short: true},
				{Title: "Run Owner", Value: owner, Short: true},
			},
			Footer: footerSequencer,
			TS:     n.now().Unix(),
		}},
	}

	err := n.sink.Send(ctx, msg)
	if err != nil {
		return false, err
	}

	return true, nil
}

// BatchRunStatus announces a batch run once when all of its workflows are running and once more
// when all of them completed.
func (n *Notifier) BatchRunStatus(ctx context.Context, batchRunID int64) (bool, error) {
	logger := n.logger.With("batch_run_id", batchRunID)

	run, err := n.batches.GetBatchRunNoneOrAllRunning(ctx, batchRunID)
	if err != nil {
		return false, err
	}

	if run == nil {
		run, err = n.batches.GetBatchRunNoneOrAllCompleted(ctx, batchRunID)
		if err != nil {
			return false, err
		}
	}

	if run == nil {
		logger.InfoContext(ctx, "[SKIP] Batch run is neither all running nor all completed")

		return false, nil
	}

	if run.Notified {
		logger.InfoContext(ctx, "[SKIP] Batch run is already notified")

		return false, nil
	}

	batch, err := n.batches.GetBatch(ctx, run.BatchID)
	if err != nil {
		return false, err
	}

	workflows, err := n.workflows.ListByBatchRun(ctx, run.ID)
	if err != nil {
		return false, err
	}

	if len(workflows) == 0 {
		logger.InfoContext(ctx, "[SKIP] Batch run has no workflows")

		return false, nil
	}

	summary := summarize(workflows)
	topic := fmt.Sprintf("Batch: %s, Step: %s, Label: %d:%d", batch.Name, strings.ToUpper(run.Step), batch.ID, run.ID)

	state := "COMPLETED"
	if run.Running {
		state = "RUNNING"
	}

	msg := Message{
		Sender: senderAutomation,
		Topic:  topic,
		Attachments: []Attachment{{
			Fallback: topic,
			Color:    summary.color(),
			Pretext:  fmt.Sprintf("Status: %s, Workflow: %s@%s", state, strings.ToUpper(string(workflows[0].Type)), workflows[0].Version),
			Title:    summary.title(),
			Text:     summary.metrics,
			Footer:   footerAutomation,
			TS:       n.now().Unix(),
		}},
	}

	err = n.sink.Send(ctx, msg)
	if err != nil {
		return false, err
	}

	err = n.workflows.SetNotified(ctx, true, workflows...)
	if err != nil {
		return true, err
	}

	err = n.batches.SetBatchRunNotified(ctx, run, true)
	if err != nil {
		return true, err
	}

	return true, nil
}

type batchSummary struct {
	total   int
	counts  map[models.WorkflowStatus]int
	metrics string
}

func summarize(workflows []*models.Workflow) batchSummary {
	summary := batchSummary{total: len(workflows), counts: map[models.WorkflowStatus]int{}}

	var lines []string

	for _, wf := range workflows {
		status := "NONE"

		if wf.EndStatus != nil {
			status = strings.ToUpper(string(*wf.EndStatus))

			if parsed, err := models.ParseWorkflowStatus(string(*wf.EndStatus)); err == nil {
				summary.counts[parsed]++
			}
		}

		sampleName := ""
		if wf.SampleName != nil {
			sampleName = *wf.SampleName
		}

		lines = append(lines, fmt.Sprintf("%s: %s, %s", sampleName, status, wf.RunID))
	}

	sort.Strings(lines)
	summary.metrics = strings.Join(lines, "\n")

	return summary
}

func (s batchSummary) title() string {
	return fmt.Sprintf("Total: %d | Running: %d | Succeeded: %d | Failed: %d | Aborted: %d",
		s.total,
		s.counts[models.WorkflowStatusRunning],
		s.counts[models.WorkflowStatusSucceeded],
		s.counts[models.WorkflowStatusFailed],
		s.counts[models.WorkflowStatusAborted],
	)
}

func (s batchSummary) color() string {
	switch s.total {
	case s.counts[models.WorkflowStatusRunning]:
		return ColorBlue
	case s.counts[models.WorkflowStatusSucceeded]:
		return ColorGreen
	case s.counts[models.WorkflowStatusFailed]:
		return ColorRed
	default:
		return ColorOrange
	}
}

// Outlier reports an unexpected pipeline condition, e.g. a failed step.
func (n *Notifier) Outlier(ctx context.Context, topic, reason, status string, event map[string]any) error {
	keys := make([]string, 0, len(event))
	for k := range event {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	fields := make([]Field, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, Field{Title: strings.ToUpper(k), Value: fmt.Sprint(event[k]), Short: true})
	}

	text := "Event Attributes:"
	if len(fields) == 0 {
		text = "No attributes found. Please check the logs."
	}

	full := fmt.Sprintf("Pipeline %s: %s", status, topic)

	return n.sink.Send(ctx, Message{
		Sender: senderAutomation,
		Topic:  full,
		Attachments: []Attachment{{
			Fallback: full,
			Color:    ColorGray,
			Pretext:  "Status: " + status,
			Title:    "Reason: " + reason,
			Text:     text,
			Fields:   fields,
			Footer:   footerAutomation,
			TS:       n.now().Unix(),
		}},
	})
}
