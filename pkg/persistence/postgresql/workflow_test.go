package postgresql_test

import (
	"testing"
	"time"

	"github.com/dukex/portalflow/pkg/models"
	"github.com/dukex/portalflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T {
	return &v
}

func TestWorkflowRepository_Upsert(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.WorkflowRepository()

	running := models.WorkflowStatusRunning
	created, err := repo.Upsert(ctx, &models.Workflow{
		WorkflowID: "wfl.bcl",
		RunID:      "wfr.1",
		VersionID:  "wfv.1",
		RunName:    "portalflow__automated__bcl_convert__RUN1__RUN1__1700000000",
		Type:       models.WorkflowTypeBCLConvert,
		Version:    "3.7.5",
		SampleName: ptr("RUN1"),
		Input:      `{"samplesheet_split_by_settings": true}`,
		EndStatus:  &running,
	})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.False(t, created.Start.IsZero())
	assert.Nil(t, created.Output)

	succeeded := models.WorkflowStatusSucceeded
	end := time.Now().UTC()

	updated, err := repo.Upsert(ctx, &models.Workflow{
		WorkflowID: "wfl.bcl",
		RunID:      "wfr.1",
		VersionID:  "wfv.1",
		Type:       models.WorkflowTypeBCLConvert,
		Output:     ptr(`{"main/fastq_list_rows": []}`),
		EndStatus:  &succeeded,
		End:        &end,
	})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.True(t, updated.HasStatus(models.WorkflowStatusSucceeded))
	require.NotNil(t, updated.Output)

	// References set at creation survive an update that omits them
	require.NotNil(t, updated.SampleName)
	assert.Equal(t, "RUN1", *updated.SampleName)
	assert.Equal(t, created.RunName, updated.RunName)

	fetched, err := repo.GetByIDs(ctx, "wfr.1", "wfv.1")
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.Equal(t, created.ID, fetched.ID)

	missing, err := repo.GetByIDs(ctx, "wfr.unknown", "wfv.1")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestWorkflowRepository_Upsert_Invalid(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	_, err := p.WorkflowRepository().Upsert(ctx, &models.Workflow{RunID: "wfr.1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, persistence.ErrInvalidWorkflow)
}

func TestWorkflowRepository_SearchMatching(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.WorkflowRepository()

	seed := []*models.Workflow{
		{WorkflowID: "wfl.germline", RunID: "wfr.a", VersionID: "wfv.1", Type: models.WorkflowTypeGermline, Version: "4.2.4", SampleName: ptr("PRJ240001")},
		{WorkflowID: "wfl.germline", RunID: "wfr.b", VersionID: "wfv.1", Type: models.WorkflowTypeGermline, Version: "4.2.4", SampleName: ptr("PRJ240002")},
		{WorkflowID: "wfl.germline", RunID: "wfr.c", VersionID: "wfv.2", Type: models.WorkflowTypeGermline, Version: "4.3.0", SampleName: ptr("PRJ240001")},
		{WorkflowID: "wfl.wts", RunID: "wfr.d", VersionID: "wfv.1", Type: models.WorkflowTypeDragenWTS, Version: "3.9.3", SampleName: ptr("PRJ240001")},
	}

	for _, workflow := range seed {
		_, err := repo.Upsert(ctx, workflow)
		require.NoError(t, err)
	}

	matches, err := repo.SearchMatching(ctx, models.WorkflowQuery{
		Type:       models.WorkflowTypeGermline,
		WorkflowID: "wfl.germline",
		Version:    "4.2.4",
	})
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	matches, err = repo.SearchMatching(ctx, models.WorkflowQuery{
		Type:       models.WorkflowTypeGermline,
		WorkflowID: "wfl.germline",
		Version:    "4.2.4",
		SampleName: ptr("PRJ240001"),
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "wfr.a", matches[0].RunID)

	matches, err = repo.SearchMatching(ctx, models.WorkflowQuery{
		Type:       models.WorkflowTypeGermline,
		WorkflowID: "wfl.germline",
		Version:    "4.2.4",
		SampleName: ptr("PRJ249999"),
	})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestWorkflowRepository_ListByBatchRunAndSetNotified(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.WorkflowRepository()

	batch, err := p.BatchRepository().GetOrCreate(ctx, "RUN1", "wfr.bcl")
	require.NoError(t, err)

	run, err := p.BatchRepository().CreateRunIfNoneRunning(ctx, batch.ID, "DRAGEN_WTS")
	require.NoError(t, err)

	ids := make([]int64, 0, 2)

	for _, runID := range []string{"wfr.x", "wfr.y"} {
		stored, err := repo.Upsert(ctx, &models.Workflow{
			WorkflowID: "wfl.wts", RunID: runID, VersionID: "wfv.1",
			Type: models.WorkflowTypeDragenWTS, Version: "3.9.3", BatchRunID: &run.ID,
		})
		require.NoError(t, err)

		ids = append(ids, stored.ID)
	}

	require.NoError(t, repo.SetNotified(ctx, ids, true))
	require.NoError(t, repo.SetNotified(ctx, nil, false))

	listed, err := repo.ListByBatchRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, listed, 2)

	for _, workflow := range listed {
		assert.True(t, workflow.Notified)
	}
}

func TestWorkflowRepository_ListBySequenceRun(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.WorkflowRepository()

	sqr, err := p.SequenceRunRepository().CreateIfNew(ctx, &models.SequenceRun{
		RunID:           "r.ACGxTAC8mGCtAcgTmITyDA",
		InstrumentRunID: "240501_A01052_0200_AH7KXYDSXC",
		Name:            "240501_A01052_0200_AH7KXYDSXC",
		DateModified:    time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Status:          models.SequenceRunStatusPendingAnalysis,
	})
	require.NoError(t, err)

	for _, w := range []*models.Workflow{
		{WorkflowID: "wfl.germline", RunID: "wfr.g1", VersionID: "wfv.1", Type: models.WorkflowTypeGermline, SequenceRunID: &sqr.ID},
		{WorkflowID: "wfl.germline", RunID: "wfr.g2", VersionID: "wfv.1", Type: models.WorkflowTypeGermline, SequenceRunID: &sqr.ID},
		{WorkflowID: "wfl.wts", RunID: "wfr.w1", VersionID: "wfv.1", Type: models.WorkflowTypeDragenWTS, SequenceRunID: &sqr.ID},
		{WorkflowID: "wfl.germline", RunID: "wfr.g3", VersionID: "wfv.1", Type: models.WorkflowTypeGermline},
	} {
		_, err := repo.Upsert(ctx, w)
		require.NoError(t, err)
	}

	germline, err := repo.ListBySequenceRun(ctx, sqr.ID, models.WorkflowTypeGermline)
	require.NoError(t, err)
	require.Len(t, germline, 2)
	assert.Equal(t, "wfr.g1", germline[0].RunID)
	assert.Equal(t, "wfr.g2", germline[1].RunID)
}
