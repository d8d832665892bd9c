package services

import (
	"sync"
	"testing"
	"time"

	"github.com/dukex/portalflow/pkg/models"
	"github.com/dukex/portalflow/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPersistence(t *testing.T) *file.Persistence {
	t.Helper()

	p, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	return p
}

func TestBatch_GetOrCreateBatch(t *testing.T) {
	service := NewBatch(newTestPersistence(t))

	batch, err := service.GetOrCreateBatch(t.Context(), "240501_A01052_0200_AH7KXYDSXC", "wfr.bcl")
	require.NoError(t, err)

	same, err := service.GetOrCreateBatch(t.Context(), "240501_A01052_0200_AH7KXYDSXC", "wfr.bcl")
	require.NoError(t, err)
	assert.Equal(t, batch.ID, same.ID)

	_, err = service.GetOrCreateBatch(t.Context(), " ", "wfr.bcl")
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestBatch_SkipOrCreateBatchRun_Concurrent(t *testing.T) {
	service := NewBatch(newTestPersistence(t))

	batch, err := service.GetOrCreateBatch(t.Context(), "RUN1", "wfr.bcl")
	require.NoError(t, err)

	const callers = 10

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		runs []*models.BatchRun
	)

	for range callers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			run, err := service.SkipOrCreateBatchRun(t.Context(), batch, "GERMLINE")
			assert.NoError(t, err)

			if run != nil {
				mu.Lock()
				runs = append(runs, run)
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	require.Len(t, runs, 1)
	assert.Equal(t, models.BatchRunStatusRunning, runs[0].Status())

	_, err = service.SkipOrCreateBatchRun(t.Context(), batch, "")
	assert.ErrorIs(t, err, ErrInvalidStep)
}

func TestBatch_GetBatchRun_NotFound(t *testing.T) {
	service := NewBatch(newTestPersistence(t))

	_, err := service.GetBatchRun(t.Context(), 42)
	require.Error(t, err)
	assert.True(t, IsNotFoundError(err))

	_, err = service.GetBatch(t.Context(), 42)
	assert.ErrorIs(t, err, ErrBatchNotFound)
}

func TestBatch_ListBatchRuns(t *testing.T) {
	service := NewBatch(newTestPersistence(t))

	batch, err := service.GetOrCreateBatch(t.Context(), "RUN1", "wfr.bcl")
	require.NoError(t, err)

	germline, err := service.SkipOrCreateBatchRun(t.Context(), batch, "GERMLINE")
	require.NoError(t, err)

	wts, err := service.SkipOrCreateBatchRun(t.Context(), batch, "DRAGEN_WTS")
	require.NoError(t, err)

	reset, err := service.ResetBatchRun(t.Context(), wts.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchRunStatusNotRunning, reset.Status())

	running := true
	runs, err := service.ListBatchRuns(t.Context(), ListBatchRunsRequest{Running: &running})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, germline.ID, runs[0].ID)

	runs, err = service.ListBatchRuns(t.Context(), ListBatchRunsRequest{Running: &running, OlderThan: time.Hour})
	require.NoError(t, err)
	assert.Empty(t, runs)

	stuck, err := service.ListStuckBatchRuns(t.Context(), -time.Minute)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, germline.ID, stuck[0].ID)
}

func TestBatch_NotifiedLifecycle(t *testing.T) {
	p := newTestPersistence(t)
	service := NewBatch(p)
	workflows := NewWorkflow(p)

	batch, err := service.GetOrCreateBatch(t.Context(), "RUN1", "wfr.bcl")
	require.NoError(t, err)

	run, err := service.SkipOrCreateBatchRun(t.Context(), batch, "DRAGEN_WTS")
	require.NoError(t, err)

	running := models.WorkflowStatusRunning
	child, err := workflows.Upsert(t.Context(), &models.Workflow{
		WorkflowID: "wfl.wts", RunID: "wfr.1", VersionID: "wfv.1",
		Type: models.WorkflowTypeDragenWTS, EndStatus: &running, BatchRunID: &run.ID,
	})
	require.NoError(t, err)

	allRunning, err := service.GetBatchRunNoneOrAllRunning(t.Context(), run.ID)
	require.NoError(t, err)
	require.NotNil(t, allRunning)

	require.NoError(t, service.SetBatchRunNotified(t.Context(), allRunning, true))
	assert.True(t, allRunning.Notified)

	succeeded := models.WorkflowStatusSucceeded
	end := time.Now().UTC()
	child.EndStatus = &succeeded
	child.End = &end

	_, err = workflows.Upsert(t.Context(), child)
	require.NoError(t, err)

	completed, err := service.GetBatchRunNoneOrAllCompleted(t.Context(), run.ID)
	require.NoError(t, err)
	require.NotNil(t, completed)
	assert.False(t, completed.Running)
	assert.False(t, completed.Notified)
}
