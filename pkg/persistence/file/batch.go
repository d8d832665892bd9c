package file

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/dukex/portalflow/pkg/models"
	"github.com/dukex/portalflow/pkg/persistence"
)

// BatchRepository handles batches and batch runs in the state file.
type BatchRepository struct {
	fp *Persistence
}

func (br *BatchRepository) GetOrCreate(_ context.Context, name, createdBy string) (*models.Batch, error) {
	var batch *models.Batch

	err := br.fp.write(func(s *state) error {
		for _, b := range s.Batches {
			if b.Name == name && b.CreatedBy == createdBy {
				batch = clone(b)

				return nil
			}
		}

		created := &models.Batch{ID: s.nextID(), Name: name, CreatedBy: createdBy, CreatedAt: now()}
		created.UpdatedAt = created.CreatedAt
		s.Batches = append(s.Batches, created)
		batch = clone(created)

		return nil
	})

	return batch, err
}

func (br *BatchRepository) GetByID(_ context.Context, id int64) (*models.Batch, error) {
	var batch *models.Batch

	err := br.fp.read(func(s *state) error {
		if b := findBatch(s, id); b != nil {
			batch = clone(b)
		}

		return nil
	})

	return batch, err
}

func (br *BatchRepository) SetContextData(_ context.Context, id int64, contextData string) (*models.Batch, error) {
	var batch *models.Batch

	err := br.fp.write(func(s *state) error {
		b := findBatch(s, id)
		if b == nil {
			return persistence.NewEntityError("SetContextData", "batch", strconv.FormatInt(id, 10), persistence.ErrBatchNotFound)
		}

		if b.ContextData == nil {
			b.ContextData = &contextData
			b.UpdatedAt = now()
		}

		batch = clone(b)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return batch, nil
}

func (br *BatchRepository) CreateRunIfNoneRunning(_ context.Context, batchID int64, step string) (*models.BatchRun, error) {
	var run *models.BatchRun

	err := br.fp.write(func(s *state) error {
		for _, r := range s.BatchRuns {
			if r.BatchID == batchID && r.Step == step && r.Running {
				return nil
			}
		}

		created := &models.BatchRun{ID: s.nextID(), BatchID: batchID, Step: step, Running: true, CreatedAt: now()}
		created.UpdatedAt = created.CreatedAt
		s.BatchRuns = append(s.BatchRuns, created)
		run = clone(created)

		return nil
	})

	return run, err
}

func (br *BatchRepository) GetRun(_ context.Context, id int64) (*models.BatchRun, error) {
	var run *models.BatchRun

	err := br.fp.read(func(s *state) error {
		run = clone(findRun(s, id))

		return nil
	})

	return run, err
}

func (br *BatchRepository) ResetRun(_ context.Context, id int64) (*models.BatchRun, error) {
	var run *models.BatchRun

	err := br.fp.write(func(s *state) error {
		r := findRun(s, id)
		if r == nil {
			return nil
		}

		r.Running = false
		r.UpdatedAt = now()
		run = clone(r)

		return nil
	})

	return run, err
}

func (br *BatchRepository) SetRunNotified(_ context.Context, id int64, notified bool) error {
	return br.fp.write(func(s *state) error {
		r := findRun(s, id)
		if r == nil {
			return persistence.NewEntityError("SetRunNotified", "batch_run", strconv.FormatInt(id, 10), persistence.ErrBatchRunNotFound)
		}

		r.Notified = notified
		r.UpdatedAt = now()

		return nil
	})
}

func (br *BatchRepository) ListRuns(_ context.Context, filter models.BatchRunFilter) ([]*models.BatchRun, error) {
	runs := make([]*models.BatchRun, 0)

	err := br.fp.read(func(s *state) error {
		for _, r := range s.BatchRuns {
			if filter.Running != nil && r.Running != *filter.Running {
				continue
			}

			if filter.Step != "" && r.Step != filter.Step {
				continue
			}

			if filter.BatchID != 0 && r.BatchID != filter.BatchID {
				continue
			}

			if !filter.OlderThan.IsZero() && !r.UpdatedAt.Before(filter.OlderThan) {
				continue
			}

			runs = append(runs, clone(r))
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].ID > runs[j].ID })

	if filter.Limit > 0 && len(runs) > filter.Limit {
		runs = runs[:filter.Limit]
	}

	return runs, nil
}

func (br *BatchRepository) CompleteRunIfDone(_ context.Context, id int64) (*models.BatchRun, error) {
	var run *models.BatchRun

	err := br.fp.write(func(s *state) error {
		r := findRun(s, id)
		if r == nil || !r.Running || !r.Notified {
			return nil
		}

		for _, w := range childWorkflows(s, id, nil) {
			if !w.IsCompleted() {
				return nil
			}
		}

		r.Running = false
		r.Notified = false
		r.UpdatedAt = now()
		run = clone(r)

		return nil
	})

	return run, err
}

func (br *BatchRepository) RunIfAllRunning(_ context.Context, id int64) (*models.BatchRun, error) {
	var run *models.BatchRun

	err := br.fp.read(func(s *state) error {
		r := findRun(s, id)
		if r == nil {
			return nil
		}

		children := childWorkflows(s, id, nil)
		if len(children) == 0 {
			return nil
		}

		for _, w := range children {
			if !w.IsRunning() {
				return nil
			}
		}

		run = clone(r)

		return nil
	})

	return run, err
}

func (br *BatchRepository) ListIdleRunningRuns(_ context.Context, before time.Time) ([]*models.BatchRun, error) {
	runs := make([]*models.BatchRun, 0)

	err := br.fp.read(func(s *state) error {
		for _, r := range s.BatchRuns {
			if r.Running && r.UpdatedAt.Before(before) && len(childWorkflows(s, r.ID, nil)) == 0 {
				runs = append(runs, clone(r))
			}
		}

		return nil
	})

	return runs, err
}

func findBatch(s *state, id int64) *models.Batch {
	for _, b := range s.Batches {
		if b.ID == id {
			return b
		}
	}

	return nil
}

func findRun(s *state, id int64) *models.BatchRun {
	for _, r := range s.BatchRuns {
		if r.ID == id {
			return r
		}
	}

	return nil
}
