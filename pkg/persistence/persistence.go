// Package persistence defines the storage contracts of the orchestrator.
//
// The relational store is the single source of truth for batches, batch runs and workflows.
// Implementations must enforce the uniqueness rules documented on each repository: those
// constraints, not in-process locking, are what keep concurrent event handlers correct.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/portalflow/pkg/models"
)

type Persistence interface {
	WorkflowRepository() WorkflowRepository
	BatchRepository() BatchRepository
	SequenceRunRepository() SequenceRunRepository
	FastqListRowRepository() FastqListRowRepository
	LabMetadataRepository() LabMetadataRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores workflow runs. (wfl_id, wfr_id, wfv_id) is unique.
type WorkflowRepository interface {
	// GetByIDs returns nil, nil when no workflow has the run and version ids.
	GetByIDs(ctx context.Context, runID, versionID string) (*models.Workflow, error)
	// Upsert inserts the workflow, or updates output, end, end_status and notified of the
	// existing row with the same identity triple. Empty references are filled in, never replaced.
	Upsert(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error)
	SearchMatching(ctx context.Context, query models.WorkflowQuery) ([]*models.Workflow, error)
	ListByBatchRun(ctx context.Context, batchRunID int64) ([]*models.Workflow, error)
	ListBySequenceRun(ctx context.Context, sequenceRunID int64, wfType models.WorkflowType) ([]*models.Workflow, error)
	SetNotified(ctx context.Context, ids []int64, notified bool) error
}

// BatchRepository stores batches and batch runs.
type BatchRepository interface {
	// GetOrCreate is race free on (name, created_by).
	GetOrCreate(ctx context.Context, name, createdBy string) (*models.Batch, error)
	GetByID(ctx context.Context, id int64) (*models.Batch, error)
	// SetContextData writes context data only when none is stored yet and returns the stored batch.
	SetContextData(ctx context.Context, id int64, contextData string) (*models.Batch, error)

	// CreateRunIfNoneRunning returns nil, nil when a running batch run exists for (batch, step).
	CreateRunIfNoneRunning(ctx context.Context, batchID int64, step string) (*models.BatchRun, error)
	GetRun(ctx context.Context, id int64) (*models.BatchRun, error)
	ResetRun(ctx context.Context, id int64) (*models.BatchRun, error)
	SetRunNotified(ctx context.Context, id int64, notified bool) error
	ListRuns(ctx context.Context, filter models.BatchRunFilter) ([]*models.BatchRun, error)
	// CompleteRunIfDone flips running and notified to false when every child workflow has a
	// terminal status and the run is running and notified. It returns nil otherwise.
	CompleteRunIfDone(ctx context.Context, id int64) (*models.BatchRun, error)
	// RunIfAllRunning returns the run when it has children and all of them are running.
	RunIfAllRunning(ctx context.Context, id int64) (*models.BatchRun, error)
	// ListIdleRunningRuns returns running batch runs without child workflows not updated since before.
	ListIdleRunningRuns(ctx context.Context, before time.Time) ([]*models.BatchRun, error)
}

// SequenceRunRepository stores sequencing run status observations.
type SequenceRunRepository interface {
	// CreateIfNew returns nil, nil when (run_id, date_modified, status) was already stored.
	CreateIfNew(ctx context.Context, sqr *models.SequenceRun) (*models.SequenceRun, error)
	GetByID(ctx context.Context, id int64) (*models.SequenceRun, error)
	// GetLatestByRunID returns the most recent PendingAnalysis observation of the run.
	GetLatestByRunID(ctx context.Context, runID string) (*models.SequenceRun, error)
}

// FastqListRowRepository stores fastq list rows keyed by rgid.
type FastqListRowRepository interface {
	Upsert(ctx context.Context, row *models.FastqListRow) (*models.FastqListRow, error)
	ListBySequenceRun(ctx context.Context, sequenceRunID int64) ([]*models.FastqListRow, error)
	// ListByLibraryID returns the rows of every sequencing run with the canonical rglb.
	ListByLibraryID(ctx context.Context, libraryID string) ([]*models.FastqListRow, error)
}

// LabMetadataRepository stores lab metadata keyed by library id.
type LabMetadataRepository interface {
	GetByLibraryID(ctx context.Context, libraryID string) (*models.LabMetadata, error)
	ListBySubjectID(ctx context.Context, subjectID string) ([]*models.LabMetadata, error)
	Upsert(ctx context.Context, metadata *models.LabMetadata) error
}
