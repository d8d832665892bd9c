package services

import (
	"context"
	"fmt"

	"github.com/dukex/portalflow/pkg/models"
	"github.com/dukex/portalflow/pkg/persistence"
	"github.com/go-playground/validator/v10"
)

// Workflow is the registry of workflow runs.
type Workflow struct {
	persistence persistence.Persistence
	validate    *validator.Validate
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(persistence persistence.Persistence) *Workflow {
	return &Workflow{
		persistence: persistence,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// FindOrNone returns the workflow for a run and version id, or nil when it is not registered.
func (w *Workflow) FindOrNone(ctx context.Context, runID, versionID string) (*models.Workflow, error) {
	workflow, err := w.persistence.WorkflowRepository().GetByIDs(ctx, runID, versionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find workflow: %w", err)
	}

	return workflow, nil
}

// Upsert registers the workflow or updates the mutable fields of an existing one.
func (w *Workflow) Upsert(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, NewValidationError("Upsert", "WORKFLOW_NIL", "workflow cannot be nil", ErrInvalidWorkflow)
	}

	err := w.validate.Struct(workflow)
	if err != nil {
		return nil, NewValidationError("Upsert", "INVALID_WORKFLOW", err.Error(), ErrInvalidWorkflow)
	}

	stored, err := w.persistence.WorkflowRepository().Upsert(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert workflow: %w", err)
	}

	return stored, nil
}

// SearchMatching returns the workflows matching the idempotency dimensions of query.
func (w *Workflow) SearchMatching(ctx context.Context, query models.WorkflowQuery) ([]*models.Workflow, error) {
	workflows, err := w.persistence.WorkflowRepository().SearchMatching(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to search matching workflows: %w", err)
	}

	return workflows, nil
}

func (w *Workflow) ListByBatchRun(ctx context.Context, batchRunID int64) ([]*models.Workflow, error) {
	workflows, err := w.persistence.WorkflowRepository().ListByBatchRun(ctx, batchRunID)
	if err != nil {
		return nil, fmt.Errorf("failed to list batch run workflows: %w", err)
	}

	return workflows, nil
}

// ListBySequenceRun returns the workflows of wfType launched for the sequencing run.
func (w *Workflow) ListBySequenceRun(ctx context.Context, sequenceRunID int64, wfType models.WorkflowType) ([]*models.Workflow, error) {
	workflows, err := w.persistence.WorkflowRepository().ListBySequenceRun(ctx, sequenceRunID, wfType)
	if err != nil {
		return nil, fmt.Errorf("failed to list sequence run workflows: %w", err)
	}

	return workflows, nil
}

// SetNotified flips the notified flag of every given workflow.
func (w *Workflow) SetNotified(ctx context.Context, notified bool, workflows ...*models.Workflow) error {
	ids := make([]int64, 0, len(workflows))
	for _, workflow := range workflows {
		ids = append(ids, workflow.ID)
	}

	err := w.persistence.WorkflowRepository().SetNotified(ctx, ids, notified)
	if err != nil {
		return fmt.Errorf("failed to set workflow notified flag: %w", err)
	}

	for _, workflow := range workflows {
		workflow.Notified = notified
	}

	return nil
}
