// Package models defines the domain entities tracked by the orchestrator.
package models

import (
	"fmt"
	"strings"
	"time"
)

// WorkflowType tags the pipeline a workflow run belongs to. The value doubles as the step tag.
type WorkflowType string

const (
	WorkflowTypeBCLConvert     WorkflowType = "BCL_CONVERT"
	WorkflowTypeGermline       WorkflowType = "GERMLINE"
	WorkflowTypeCTTSO          WorkflowType = "CTTSO"
	WorkflowTypeDragenTSOCtDNA WorkflowType = "DRAGEN_TSO_CTDNA"
	WorkflowTypeDragenWTS      WorkflowType = "DRAGEN_WTS"
	WorkflowTypeTumorNormal    WorkflowType = "TUMOR_NORMAL"
)

var workflowTypes = []WorkflowType{
	WorkflowTypeBCLConvert,
	WorkflowTypeGermline,
	WorkflowTypeCTTSO,
	WorkflowTypeDragenTSOCtDNA,
	WorkflowTypeDragenWTS,
	WorkflowTypeTumorNormal,
}

// ParseWorkflowType resolves a type name case-insensitively.
func ParseWorkflowType(s string) (WorkflowType, error) {
	for _, t := range workflowTypes {
		if strings.EqualFold(string(t), s) {
			return t, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownWorkflowType, s)
}

// Lower returns the type name as used in run names and queue names.
func (t WorkflowType) Lower() string {
	return strings.ToLower(string(t))
}

// WorkflowStatus is the end status reported by the workflow execution service.
type WorkflowStatus string

const (
	WorkflowStatusRunning   WorkflowStatus = "Running"
	WorkflowStatusSucceeded WorkflowStatus = "Succeeded"
	WorkflowStatusFailed    WorkflowStatus = "Failed"
	WorkflowStatusAborted   WorkflowStatus = "Aborted"
)

var workflowStatuses = []WorkflowStatus{
	WorkflowStatusRunning,
	WorkflowStatusSucceeded,
	WorkflowStatusFailed,
	WorkflowStatusAborted,
}

// ParseWorkflowStatus normalises "running", "RUNNING", ... to the canonical value.
func ParseWorkflowStatus(s string) (WorkflowStatus, error) {
	for _, st := range workflowStatuses {
		if strings.EqualFold(string(st), s) {
			return st, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownWorkflowStatus, s)
}

func (s WorkflowStatus) IsTerminal() bool {
	switch s {
	case WorkflowStatusSucceeded, WorkflowStatusFailed, WorkflowStatusAborted:
		return true
	default:
		return false
	}
}

// Equal compares two statuses case-insensitively.
func (s WorkflowStatus) Equal(other WorkflowStatus) bool {
	return strings.EqualFold(string(s), string(other))
}

// Workflow is one external pipeline execution, identified by (WorkflowID, RunID, VersionID).
type Workflow struct {
	ID            int64           `db:"id"              json:"id"`
	WorkflowID    string          `db:"wfl_id"          json:"wfl_id"                    validate:"required"`
	RunID         string          `db:"wfr_id"          json:"wfr_id"                    validate:"required"`
	VersionID     string          `db:"wfv_id"          json:"wfv_id"                    validate:"required"`
	RunName       string          `db:"wfr_name"        json:"wfr_name"`
	Type          WorkflowType    `db:"type_name"       json:"type_name"                 validate:"required"`
	Version       string          `db:"version"         json:"version"`
	SampleName    *string         `db:"sample_name"     json:"sample_name,omitempty"`
	Input         string          `db:"input"           json:"input"`
	Output        *string         `db:"output"          json:"output,omitempty"`
	Start         time.Time       `db:"start_time"      json:"start"`
	End           *time.Time      `db:"end_time"        json:"end,omitempty"`
	EndStatus     *WorkflowStatus `db:"end_status"      json:"end_status,omitempty"`
	SequenceRunID *int64          `db:"sequence_run_id" json:"sequence_run_id,omitempty"`
	BatchRunID    *int64          `db:"batch_run_id"    json:"batch_run_id,omitempty"`
	Notified      bool            `db:"notified"        json:"notified"`
	CreatedAt     time.Time       `db:"created_at"      json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"      json:"updated_at"`
}

// HasStatus reports whether the end status equals st, ignoring case.
func (w *Workflow) HasStatus(st WorkflowStatus) bool {
	return w.EndStatus != nil && w.EndStatus.Equal(st)
}

// IsRunning mirrors the "running" notion used for batch notifications.
func (w *Workflow) IsRunning() bool {
	return !w.Start.IsZero() && w.End == nil && w.HasStatus(WorkflowStatusRunning)
}

// IsCompleted reports a started workflow with a terminal end status.
func (w *Workflow) IsCompleted() bool {
	return !w.Start.IsZero() && w.EndStatus != nil && w.EndStatus.IsTerminal()
}

// WorkflowQuery holds the idempotency matrix dimensions. Nil pointers are left out of the filter.
type WorkflowQuery struct {
	Type          WorkflowType
	WorkflowID    string
	Version       string
	SampleName    *string
	SequenceRunID *int64
	BatchRunID    *int64
}
