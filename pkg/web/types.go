// Package web provides the operator HTTP API of the orchestrator.
package web

import (
	"github.com/dukex/portalflow/pkg/models"
)

// BatchRunResponse is a batch run with its batch and child workflows.
type BatchRunResponse struct {
	*models.BatchRun

	Status    string             `json:"status"`
	Batch     *models.Batch      `json:"batch"`
	Workflows []*models.Workflow `json:"workflows"`
}

// ResetBatchRunResponse reports the run state after a manual reset.
type ResetBatchRunResponse struct {
	*models.BatchRun

	Status   string `json:"status"`
	Children int    `json:"children"`
}
