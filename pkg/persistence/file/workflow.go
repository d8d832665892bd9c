package file

import (
	"context"

	"github.com/dukex/portalflow/pkg/models"
	"github.com/dukex/portalflow/pkg/persistence"
)

// WorkflowRepository handles workflow records in the state file.
type WorkflowRepository struct {
	fp *Persistence
}

func (wr *WorkflowRepository) GetByIDs(_ context.Context, runID, versionID string) (*models.Workflow, error) {
	var found *models.Workflow

	err := wr.fp.read(func(s *state) error {
		for i := len(s.Workflows) - 1; i >= 0; i-- {
			w := s.Workflows[i]
			if w.RunID == runID && w.VersionID == versionID {
				found = clone(w)

				break
			}
		}

		return nil
	})

	return found, err
}

func (wr *WorkflowRepository) Upsert(_ context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow.WorkflowID == "" || workflow.RunID == "" || workflow.VersionID == "" {
		return nil, persistence.NewEntityError("Upsert", "workflow", workflow.RunID, persistence.ErrInvalidWorkflow)
	}

	var stored *models.Workflow

	err := wr.fp.write(func(s *state) error {
		for _, existing := range s.Workflows {
			if existing.WorkflowID != workflow.WorkflowID || existing.RunID != workflow.RunID || existing.VersionID != workflow.VersionID {
				continue
			}

			mergeWorkflow(existing, workflow)
			stored = clone(existing)

			return nil
		}

		created := clone(workflow)
		created.ID = s.nextID()
		created.CreatedAt = now()
		created.UpdatedAt = created.CreatedAt

		if created.Start.IsZero() {
			created.Start = created.CreatedAt
		}

		s.Workflows = append(s.Workflows, created)
		stored = clone(created)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return stored, nil
}

// mergeWorkflow applies the same column rules as the relational upsert.
func mergeWorkflow(existing, update *models.Workflow) {
	if update.Output != nil {
		existing.Output = update.Output
	}

	if update.End != nil {
		existing.End = update.End
	}

	if update.EndStatus != nil {
		existing.EndStatus = update.EndStatus
	}

	existing.Notified = update.Notified

	if existing.RunName == "" {
		existing.RunName = update.RunName
	}

	if existing.SampleName == nil {
		existing.SampleName = update.SampleName
	}

	if existing.SequenceRunID == nil {
		existing.SequenceRunID = update.SequenceRunID
	}

	if existing.BatchRunID == nil {
		existing.BatchRunID = update.BatchRunID
	}

	existing.UpdatedAt = now()
}

func (wr *WorkflowRepository) SearchMatching(_ context.Context, query models.WorkflowQuery) ([]*models.Workflow, error) {
	matches := make([]*models.Workflow, 0)

	err := wr.fp.read(func(s *state) error {
		for _, w := range s.Workflows {
			if w.Type != query.Type || w.WorkflowID != query.WorkflowID || w.Version != query.Version {
				continue
			}

			if query.SampleName != nil && (w.SampleName == nil || *w.SampleName != *query.SampleName) {
				continue
			}

			if query.SequenceRunID != nil && (w.SequenceRunID == nil || *w.SequenceRunID != *query.SequenceRunID) {
				continue
			}

			if query.BatchRunID != nil && (w.BatchRunID == nil || *w.BatchRunID != *query.BatchRunID) {
				continue
			}

			matches = append(matches, clone(w))
		}

		return nil
	})

	return matches, err
}

func (wr *WorkflowRepository) ListByBatchRun(_ context.Context, batchRunID int64) ([]*models.Workflow, error) {
	workflows := make([]*models.Workflow, 0)

	err := wr.fp.read(func(s *state) error {
		workflows = childWorkflows(s, batchRunID, workflows)

		return nil
	})

	return workflows, err
}

func (wr *WorkflowRepository) ListBySequenceRun(_ context.Context, sequenceRunID int64, wfType models.WorkflowType) ([]*models.Workflow, error) {
	workflows := make([]*models.Workflow, 0)

	err := wr.fp.read(func(s *state) error {
		for _, w := range s.Workflows {
			if w.Type == wfType && w.SequenceRunID != nil && *w.SequenceRunID == sequenceRunID {
				workflows = append(workflows, clone(w))
			}
		}

		return nil
	})

	return workflows, err
}

func (wr *WorkflowRepository) SetNotified(_ context.Context, ids []int64, notified bool) error {
	if len(ids) == 0 {
		return nil
	}

	wanted := make(map[int64]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	return wr.fp.write(func(s *state) error {
		for _, w := range s.Workflows {
			if wanted[w.ID] {
				w.Notified = notified
				w.UpdatedAt = now()
			}
		}

		return nil
	})
}

func childWorkflows(s *state, batchRunID int64, out []*models.Workflow) []*models.Workflow {
	for _, w := range s.Workflows {
		if w.BatchRunID != nil && *w.BatchRunID == batchRunID {
			out = append(out, clone(w))
		}
	}

	return out
}
