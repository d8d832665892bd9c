package notification_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukex/portalflow/pkg/mocks"
	"github.com/dukex/portalflow/pkg/models"
	"github.com/dukex/portalflow/pkg/notification"
	"github.com/dukex/portalflow/pkg/persistence/file"
	"github.com/dukex/portalflow/pkg/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	sink      *mocks.MockSink
	workflows *services.Workflow
	batches   *services.Batch
	notifier  *notification.Notifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	p, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	f := &fixture{
		sink:      &mocks.MockSink{},
		workflows: services.NewWorkflow(p),
		batches:   services.NewBatch(p),
	}
	f.notifier = notification.NewNotifier(f.sink, f.workflows, f.batches, services.NewSequenceRun(p), discardLogger())

	return f
}

func status(s models.WorkflowStatus) *models.WorkflowStatus {
	return &s
}

func (f *fixture) workflow(t *testing.T, runID string, batchRunID int64, st *models.WorkflowStatus) *models.Workflow {
	t.Helper()

	sample := "PRJ24" + runID

	wf := &models.Workflow{
		WorkflowID: "wfl.germline",
		RunID:      runID,
		VersionID:  "wfv." + runID,
		RunName:    "portalflow__automated__germline__" + runID,
		Type:       models.WorkflowTypeGermline,
		Version:    "4.2.4",
		SampleName: &sample,
		Input:      "{}",
		Start:      time.Now().UTC(),
		EndStatus:  st,
	}
	if batchRunID != 0 {
		wf.BatchRunID = &batchRunID
	}

	wf, err := f.workflows.Upsert(t.Context(), wf)
	require.NoError(t, err)

	return wf
}

func TestNotifier_WorkflowStatus(t *testing.T) {
	f := newFixture(t)

	var sent notification.Message

	f.sink.On("Send", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		sent = args.Get(1).(notification.Message)
	}).Return(nil)

	wf := f.workflow(t, "wfr.1", 0, status(models.WorkflowStatusSucceeded))

	ok, err := f.notifier.WorkflowStatus(t.Context(), wf)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, wf.Notified)

	assert.Equal(t, "Run Name: portalflow__automated__germline__wfr.1", sent.Topic)
	require.Len(t, sent.Attachments, 1)
	assert.Equal(t, notification.ColorGreen, sent.Attachments[0].Color)
	assert.Equal(t, "Status: SUCCEEDED", sent.Attachments[0].Pretext)

	ok, err = f.notifier.WorkflowStatus(t.Context(), wf)
	require.NoError(t, err)
	assert.False(t, ok, "a notified status is not sent twice")

	ok, err = f.notifier.WorkflowStatus(t.Context(), f.workflow(t, "wfr.2", 0, nil))
	require.NoError(t, err)
	assert.False(t, ok)

	f.sink.AssertNumberOfCalls(t, "Send", 1)
}

func TestNotifier_WorkflowStatus_SinkFailure(t *testing.T) {
	f := newFixture(t)
	f.sink.On("Send", mock.Anything, mock.Anything).Return(errors.New("webhook down"))

	wf := f.workflow(t, "wfr.1", 0, status(models.WorkflowStatusFailed))

	ok, err := f.notifier.WorkflowStatus(t.Context(), wf)
	require.Error(t, err)
	assert.False(t, ok)
	assert.False(t, wf.Notified)
}

func TestNotifier_BatchRunStatus_Lifecycle(t *testing.T) {
	f := newFixture(t)

	var messages []notification.Message

	f.sink.On("Send", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		messages = append(messages, args.Get(1).(notification.Message))
	}).Return(nil)

	batch, err := f.batches.GetOrCreateBatch(t.Context(), "240501_A01052_0200_AH7KXYDSXC", "wfr.bcl")
	require.NoError(t, err)

	run, err := f.batches.SkipOrCreateBatchRun(t.Context(), batch, "GERMLINE")
	require.NoError(t, err)

	first := f.workflow(t, "wfr.1", run.ID, status(models.WorkflowStatusRunning))
	second := f.workflow(t, "wfr.2", run.ID, status(models.WorkflowStatusRunning))

	ok, err := f.notifier.BatchRunStatus(t.Context(), run.ID)
	require.NoError(t, err)
	require.True(t, ok)

	require.Len(t, messages, 1)
	assert.Equal(t, fmt.Sprintf("Batch: 240501_A01052_0200_AH7KXYDSXC, Step: GERMLINE, Label: %d:%d", batch.ID, run.ID), messages[0].Topic)
	assert.Equal(t, "Total: 2 | Running: 2 | Succeeded: 0 | Failed: 0 | Aborted: 0", messages[0].Attachments[0].Title)
	assert.Equal(t, notification.ColorBlue, messages[0].Attachments[0].Color)

	ok, err = f.notifier.BatchRunStatus(t.Context(), run.ID)
	require.NoError(t, err)
	assert.False(t, ok, "running state is announced once")

	first.EndStatus = status(models.WorkflowStatusSucceeded)
	_, err = f.workflows.Upsert(t.Context(), first)
	require.NoError(t, err)

	ok, err = f.notifier.BatchRunStatus(t.Context(), run.ID)
	require.NoError(t, err)
	assert.False(t, ok, "one workflow still running")

	second.EndStatus = status(models.WorkflowStatusFailed)
	_, err = f.workflows.Upsert(t.Context(), second)
	require.NoError(t, err)

	ok, err = f.notifier.BatchRunStatus(t.Context(), run.ID)
	require.NoError(t, err)
	require.True(t, ok)

	require.Len(t, messages, 2)
	assert.Equal(t, "Total: 2 | Running: 0 | Succeeded: 1 | Failed: 1 | Aborted: 0", messages[1].Attachments[0].Title)
	assert.Equal(t, notification.ColorOrange, messages[1].Attachments[0].Color)
	assert.Contains(t, messages[1].Attachments[0].Pretext, "Status: COMPLETED")

	stored, err := f.batches.GetBatchRun(t.Context(), run.ID)
	require.NoError(t, err)
	assert.False(t, stored.Running)
	assert.True(t, stored.Notified)

	ok, err = f.notifier.BatchRunStatus(t.Context(), run.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNotifier_SequenceRunStatus(t *testing.T) {
	f := newFixture(t)
	f.sink.On("Send", mock.Anything, mock.Anything).Return(nil)

	tests := []struct {
		status string
		sent   bool
	}{
		{status: "Uploading", sent: true},
		{status: "PendingAnalysis", sent: true},
		{status: "Failed", sent: true},
		{status: "New", sent: false},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			ok, err := f.notifier.SequenceRunStatus(t.Context(), &models.SequenceRun{
				RunID:  "r.1",
				Name:   "240501_A01052_0200_AH7KXYDSXC",
				Status: tt.status,
				ACL:    models.StringList{"wid:abc", "tid:def"},
			})
			require.NoError(t, err)
			assert.Equal(t, tt.sent, ok)
		})
	}
}

func TestNotifier_Outlier(t *testing.T) {
	f := newFixture(t)

	var sent notification.Message

	f.sink.On("Send", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		sent = args.Get(1).(notification.Message)
	}).Return(nil)

	require.NoError(t, f.notifier.Outlier(t.Context(), "GERMLINE_STEP", "unexpected output", "FAILED", map[string]any{"wfr_id": "wfr.1", "batch": 3}))

	assert.Equal(t, "Pipeline FAILED: GERMLINE_STEP", sent.Topic)
	assert.Equal(t, notification.ColorGray, sent.Attachments[0].Color)
	assert.Equal(t, []notification.Field{
		{Title: "BATCH", Value: "3", Short: true},
		{Title: "WFR_ID", Value: "wfr.1", Short: true},
	}, sent.Attachments[0].Fields)
}

func TestSlackSink_Send(t *testing.T) {
	var payload map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink := notification.NewSlackSink(server.URL, "#pipeline", discardLogger())

	require.NoError(t, sink.Send(t.Context(), notification.Message{
		Sender:      "Portal Workflow Automation",
		Topic:       "Run Name: x",
		Attachments: []notification.Attachment{{Title: "RunID: wfr.1", Color: notification.ColorBlue}},
	}))

	assert.Equal(t, "#pipeline", payload["channel"])
	assert.Equal(t, "*Run Name: x*", payload["text"])
	assert.Len(t, payload["attachments"], 1)
}
