// Package ingress accepts batches of external event records and routes them to the sequencing
// run and workflow run handlers.
package ingress

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/portalflow/pkg/models"
)

// Record types.
const (
	TypeSequenceRun = "bssh.runs"
	TypeWorkflowRun = "wes.runs"
	TypeFile        = "gds.files"
)

var ErrInvalidRecord = errors.New("invalid record")

// RecordBatch is the envelope delivered by the event source.
type RecordBatch struct {
	Records []Record `json:"Records"`
}

// Record is one event. Body is a JSON object, or a string holding one.
type Record struct {
	MessageID  string          `json:"messageId"`
	Type       string          `json:"type"`
	Action     string          `json:"action"`
	ActionDate string          `json:"actionDate,omitempty"`
	ProducedBy string          `json:"producedBy,omitempty"`
	Body       json.RawMessage `json:"body"`
}

// BatchResult lists the records that could not be handled.
type BatchResult struct {
	Failures []Failure `json:"batchItemFailures"`
}

type Failure struct {
	ItemIdentifier string `json:"itemIdentifier"`
	Reason         string `json:"reason,omitempty"`
}

// body returns the record body as a JSON document.
func (r Record) body() ([]byte, error) {
	raw := bytes.TrimSpace(r.Body)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidRecord)
	}

	if raw[0] != '"' {
		return raw, nil
	}

	var s string

	err := json.Unmarshal(raw, &s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}

	return []byte(s), nil
}

type sequenceRunBody struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	InstrumentRunID string    `json:"instrumentRunId"`
	DateModified    time.Time `json:"dateModified"`
	Status          string    `json:"status"`
	GDSFolderPath   string    `json:"gdsFolderPath"`
	GDSVolumeName   string    `json:"gdsVolumeName"`
	ReagentBarcode  string    `json:"reagentBarcode"`
	FlowcellBarcode string    `json:"flowcellBarcode"`
	SampleSheetName string    `json:"sampleSheetName"`
	APIURL          string    `json:"apiUrl"`
	ACL             []string  `json:"acl"`
}

func (b sequenceRunBody) toModel(rec Record) *models.SequenceRun {
	return &models.SequenceRun{
		RunID:             b.ID,
		InstrumentRunID:   b.InstrumentRunID,
		Name:              b.Name,
		DateModified:      b.DateModified,
		Status:            b.Status,
		GDSFolderPath:     b.GDSFolderPath,
		GDSVolumeName:     b.GDSVolumeName,
		ReagentBarcode:    b.ReagentBarcode,
		FlowcellBarcode:   b.FlowcellBarcode,
		SampleSheetName:   b.SampleSheetName,
		APIURL:            b.APIURL,
		ACL:               models.StringList(b.ACL),
		MsgAttrAction:     rec.Action,
		MsgAttrActionType: rec.Type,
		MsgAttrActionDate: rec.ActionDate,
		MsgAttrProducedBy: rec.ProducedBy,
	}
}

type workflowRunBody struct {
	WorkflowRun struct {
		ID              string `json:"Id"`
		WorkflowVersion struct {
			ID string `json:"Id"`
		} `json:"WorkflowVersion"`
	} `json:"WorkflowRun"`
	EventType    string          `json:"EventType"`
	EventDetails json.RawMessage `json:"EventDetails"`
	Timestamp    time.Time       `json:"Timestamp"`
}

func (b workflowRunBody) event() *models.LifecycleEvent {
	return &models.LifecycleEvent{
		EventType:    b.EventType,
		EventDetails: b.EventDetails,
		Timestamp:    b.Timestamp,
	}
}
