package postgresql_test

import (
	"sync"
	"testing"
	"time"

	"github.com/dukex/portalflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchRepository_GetOrCreate(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.BatchRepository()

	first, err := repo.GetOrCreate(ctx, "RUN123", "wfr.1")
	require.NoError(t, err)

	second, err := repo.GetOrCreate(ctx, "RUN123", "wfr.1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	other, err := repo.GetOrCreate(ctx, "RUN123", "wfr.2")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestBatchRepository_GetOrCreate_Concurrent(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.BatchRepository()

	const callers = 16

	ids := make(chan int64, callers)

	var wg sync.WaitGroup

	for range callers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			batch, err := repo.GetOrCreate(ctx, "RUN_RACE", "wfr.race")
			assert.NoError(t, err)

			if batch != nil {
				ids <- batch.ID
			}
		}()
	}

	wg.Wait()
	close(ids)

	seen := map[int64]bool{}
	for id := range ids {
		seen[id] = true
	}

	assert.Len(t, seen, 1)
}

func TestBatchRepository_SetContextData_WriteOnce(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.BatchRepository()

	batch, err := repo.GetOrCreate(ctx, "RUN123", "wfr.1")
	require.NoError(t, err)
	assert.Nil(t, batch.ContextData)

	stored, err := repo.SetContextData(ctx, batch.ID, `[{"rgid":"a"}]`)
	require.NoError(t, err)
	require.NotNil(t, stored.ContextData)
	assert.Equal(t, `[{"rgid":"a"}]`, *stored.ContextData)

	again, err := repo.SetContextData(ctx, batch.ID, `[{"rgid":"b"}]`)
	require.NoError(t, err)
	assert.Equal(t, `[{"rgid":"a"}]`, *again.ContextData)
}

func TestBatchRepository_CreateRunIfNoneRunning(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.BatchRepository()

	batch, err := repo.GetOrCreate(ctx, "RUN123", "wfr.1")
	require.NoError(t, err)

	run, err := repo.CreateRunIfNoneRunning(ctx, batch.ID, "GERMLINE")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.True(t, run.Running)
	assert.False(t, run.Notified)

	skipped, err := repo.CreateRunIfNoneRunning(ctx, batch.ID, "GERMLINE")
	require.NoError(t, err)
	assert.Nil(t, skipped)

	untouched, err := repo.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.True(t, untouched.Running)

	// A different step is independent
	tso, err := repo.CreateRunIfNoneRunning(ctx, batch.ID, "DRAGEN_TSO_CTDNA")
	require.NoError(t, err)
	assert.NotNil(t, tso)

	// After a reset a new attempt is allowed
	reset, err := repo.ResetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.False(t, reset.Running)

	retry, err := repo.CreateRunIfNoneRunning(ctx, batch.ID, "GERMLINE")
	require.NoError(t, err)
	require.NotNil(t, retry)
	assert.NotEqual(t, run.ID, retry.ID)
}

func TestBatchRepository_CreateRunIfNoneRunning_Concurrent(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.BatchRepository()

	batch, err := repo.GetOrCreate(ctx, "RUN123", "wfr.1")
	require.NoError(t, err)

	const callers = 20

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		skipped int
	)

	for range callers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			run, err := repo.CreateRunIfNoneRunning(ctx, batch.ID, "GERMLINE")
			assert.NoError(t, err)

			mu.Lock()
			defer mu.Unlock()

			if run != nil {
				created++
			} else {
				skipped++
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, callers-1, skipped)

	running := true
	runs, err := repo.ListRuns(ctx, models.BatchRunFilter{Running: &running, BatchID: batch.ID})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestBatchRepository_ResetRun_Missing(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	run, err := p.BatchRepository().ResetRun(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, run)
}

func TestBatchRepository_CompleteRunIfDone(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.BatchRepository()
	workflows := p.WorkflowRepository()

	batch, err := repo.GetOrCreate(ctx, "RUN123", "wfr.1")
	require.NoError(t, err)

	run, err := repo.CreateRunIfNoneRunning(ctx, batch.ID, "GERMLINE")
	require.NoError(t, err)

	running := models.WorkflowStatusRunning
	for _, id := range []string{"wfr.a", "wfr.b"} {
		_, err := workflows.Upsert(ctx, &models.Workflow{
			WorkflowID: "wfl.germline",
			RunID:      id,
			VersionID:  "wfv.1",
			Type:       models.WorkflowTypeGermline,
			Version:    "4.2.4",
			Start:      time.Now().UTC(),
			EndStatus:  &running,
			BatchRunID: &run.ID,
		})
		require.NoError(t, err)
	}

	// Not notified yet
	done, err := repo.CompleteRunIfDone(ctx, run.ID)
	require.NoError(t, err)
	assert.Nil(t, done)

	allRunning, err := repo.RunIfAllRunning(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, allRunning)

	require.NoError(t, repo.SetRunNotified(ctx, run.ID, true))

	succeeded := models.WorkflowStatusSucceeded
	end := time.Now().UTC()

	_, err = workflows.Upsert(ctx, &models.Workflow{
		WorkflowID: "wfl.germline", RunID: "wfr.a", VersionID: "wfv.1",
		Type: models.WorkflowTypeGermline, EndStatus: &succeeded, End: &end, Notified: true,
	})
	require.NoError(t, err)

	// One child still running
	done, err = repo.CompleteRunIfDone(ctx, run.ID)
	require.NoError(t, err)
	assert.Nil(t, done)

	failed := models.WorkflowStatusFailed
	_, err = workflows.Upsert(ctx, &models.Workflow{
		WorkflowID: "wfl.germline", RunID: "wfr.b", VersionID: "wfv.1",
		Type: models.WorkflowTypeGermline, EndStatus: &failed, End: &end, Notified: true,
	})
	require.NoError(t, err)

	done, err = repo.CompleteRunIfDone(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, done)
	assert.False(t, done.Running)
	assert.False(t, done.Notified)

	// Level triggered: nothing changes on a repeated call
	again, err := repo.CompleteRunIfDone(ctx, run.ID)
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestBatchRepository_ListIdleRunningRuns(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.BatchRepository()

	batch, err := repo.GetOrCreate(ctx, "RUN123", "wfr.1")
	require.NoError(t, err)

	stuck, err := repo.CreateRunIfNoneRunning(ctx, batch.ID, "GERMLINE")
	require.NoError(t, err)

	idle, err := repo.ListIdleRunningRuns(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, idle, 1)
	assert.Equal(t, stuck.ID, idle[0].ID)

	idle, err = repo.ListIdleRunningRuns(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, idle)
}
