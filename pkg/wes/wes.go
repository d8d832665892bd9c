// Package wes talks to the workflow execution service that runs the pipelines.
package wes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/portalflow/pkg/httpclient"
	"github.com/dukex/portalflow/pkg/models"
)

const historyPageSize = 1000

// Run is a workflow run as reported by the service.
type Run struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Status          string           `json:"status"`
	TimeStarted     *time.Time       `json:"timeStarted"`
	TimeStopped     *time.Time       `json:"timeStopped"`
	Input           json.RawMessage  `json:"input"`
	Output          json.RawMessage  `json:"output"`
	WorkflowVersion *WorkflowVersion `json:"workflowVersion"`
}

type WorkflowVersion struct {
	ID         string `json:"id"`
	WorkflowID string `json:"workflowId"`
	Version    string `json:"version"`
}

// HistoryEvent is one entry of a run history.
type HistoryEvent struct {
	EventID      int64           `json:"eventId"`
	EventType    string          `json:"eventType"`
	EventDetails json.RawMessage `json:"eventDetails"`
	Timestamp    time.Time       `json:"timestamp"`
}

type historyPage struct {
	Items         []HistoryEvent `json:"items"`
	NextPageToken string         `json:"nextPageToken"`
}

// LaunchRequest starts a workflow version.
type LaunchRequest struct {
	Name             string         `json:"name"`
	Input            map[string]any `json:"input"`
	EngineParameters map[string]any `json:"engineParameters,omitempty"`
}

// RunStatus is the reconciled state of a run.
type RunStatus struct {
	Status models.WorkflowStatus
	End    *time.Time
	Output *string
}

// Client is the subset of the execution service API the orchestrator uses.
type Client interface {
	GetRun(ctx context.Context, runID string) (*Run, error)
	// RunStatus reads the live state of a run. When event disagrees with the live status the
	// run history decides, and the event itself is the last resort.
	RunStatus(ctx context.Context, runID string, event *models.LifecycleEvent) (*RunStatus, error)
	Launch(ctx context.Context, workflowID, version string, req LaunchRequest) (*Run, error)
}

// HTTPClient is the REST implementation of Client.
type HTTPClient struct {
	client  *httpclient.Client
	baseURL string
	logger  *slog.Logger
}

func NewHTTPClient(baseURL, token string, timeout time.Duration, logger *slog.Logger) *HTTPClient {
	headers := map[string]string{}
	if token != "" {
		headers["Authorization"] = "Bearer " + token
	}

	return &HTTPClient{
		client:  httpclient.New(timeout, httpclient.Retry{Attempts: 3, Delay: time.Second}, headers, logger),
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger.With("module", "wes"),
	}
}

func (c *HTTPClient) GetRun(ctx context.Context, runID string) (*Run, error) {
	var run Run

	err := c.client.Do(ctx, http.MethodGet, c.baseURL+"/v1/workflows/runs/"+url.PathEscape(runID), nil, &run)
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow run %s: %w", runID, err)
	}

	return &run, nil
}

func (c *HTTPClient) Launch(ctx context.Context, workflowID, version string, req LaunchRequest) (*Run, error) {
	var run Run

	endpoint := fmt.Sprintf("%s/v1/workflows/%s/versions/%s:launch", c.baseURL, url.PathEscape(workflowID), url.PathEscape(version))

	c.logger.InfoContext(ctx, "Launching workflow", "workflow_id", workflowID, "version", version, "run_name", req.Name)

	err := c.client.Do(ctx, http.MethodPost, endpoint, req, &run)
	if err != nil {
		return nil, fmt.Errorf("failed to launch workflow %s version %s: %w", workflowID, version, err)
	}

	return &run, nil
}

func (c *HTTPClient) history(ctx context.Context, runID string) ([]HistoryEvent, error) {
	var (
		events []HistoryEvent
		token  string
	)

	for {
		query := url.Values{"pageSize": {strconv.Itoa(historyPageSize)}}
		if token != "" {
			query.Set("pageToken", token)
		}

		var page historyPage

		err := c.client.Do(ctx, http.MethodGet, c.baseURL+"/v1/workflows/runs/"+url.PathEscape(runID)+"/history?"+query.Encode(), nil, &page)
		if err != nil {
			return nil, fmt.Errorf("failed to list workflow run history %s: %w", runID, err)
		}

		events = append(events, page.Items...)

		if page.NextPageToken == "" {
			return events, nil
		}

		token = page.NextPageToken
	}
}

func (c *HTTPClient) RunStatus(ctx context.Context, runID string, event *models.LifecycleEvent) (*RunStatus, error) {
	run, err := c.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	if event == nil || agrees(run.Status, event.EventType) {
		return &RunStatus{
			Status: parseStatus(run.Status),
			End:    run.TimeStopped,
			Output: rawString(run.Output),
		}, nil
	}

	events, err := c.history(ctx, runID)
	if err != nil {
		return nil, err
	}

	var last *HistoryEvent

	for i := range events {
		if strings.HasPrefix(events[i].EventType, "Run") {
			last = &events[i]
		}
	}

	if last != nil && strings.Contains(event.EventType, last.EventType) {
		c.logger.InfoContext(ctx, "Using run history status", "run_id", runID, "event_type", last.EventType)

		end := last.Timestamp

		return &RunStatus{
			Status: parseStatus(models.EventStatus(last.EventType)),
			End:    &end,
			Output: detailsOutput(last.EventDetails),
		}, nil
	}

	c.logger.WarnContext(ctx, "Using status from the lifecycle event", "run_id", runID, "event_type", event.EventType, "live_status", run.Status)

	end := event.Timestamp

	return &RunStatus{
		Status: parseStatus(models.EventStatus(event.EventType)),
		End:    &end,
		Output: detailsOutput(event.EventDetails),
	}, nil
}

// agrees reports whether the live status matches the event, e.g. Succeeded and RunSucceeded.
// A Running run announced by RunStarted also agrees.
func agrees(status, eventType string) bool {
	if status == "" {
		return false
	}

	if strings.EqualFold(status, string(models.WorkflowStatusRunning)) && eventType == "RunStarted" {
		return true
	}

	return strings.Contains(eventType, status)
}

func parseStatus(s string) models.WorkflowStatus {
	status, err := models.ParseWorkflowStatus(s)
	if err != nil {
		return models.WorkflowStatus(s)
	}

	return status
}

func rawString(raw json.RawMessage) *string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	s := string(raw)

	return &s
}

// detailsOutput returns details.output when present, otherwise the details themselves.
func detailsOutput(details json.RawMessage) *string {
	var fields map[string]json.RawMessage

	if json.Unmarshal(details, &fields) == nil {
		if output, ok := fields["output"]; ok {
			return rawString(output)
		}
	}

	return rawString(details)
}
