package orchestration_test

import (
	"encoding/json"
	"testing"

	"github.com/dukex/portalflow/pkg/models"
	"github.com/dukex/portalflow/pkg/orchestration"
	"github.com/dukex/portalflow/pkg/services"
	"github.com/dukex/portalflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func fastqRow(rgid, rgsm, rglb string, lane int) models.FastqListRow {
	return models.FastqListRow{RGID: rgid, RGSM: rgsm, RGLB: rglb, Lane: lane, Read1: "gds://vol/" + rgid + "_R1.fastq.gz"}
}

func wgsLibrary(libraryID, sampleID, subjectID, phenotype string) *models.LabMetadata {
	return testutil.CreateTestLabMetadata(libraryID, func(m *models.LabMetadata) {
		m.SampleID = sampleID
		m.SampleName = sampleID + "_" + libraryID
		m.SubjectID = subjectID
		m.Phenotype = phenotype
	})
}

type tumorNormalFixture struct {
	*fixture
	workflows *services.Workflow
	step      orchestration.Step
}

func newTumorNormalFixture(t *testing.T) *tumorNormalFixture {
	t.Helper()

	f := newFixture(t)
	workflows := services.NewWorkflow(f.persistence)

	return &tumorNormalFixture{
		fixture:   f,
		workflows: workflows,
		step:      orchestration.NewTumorNormalStep("tumor_normal", workflows, f.sequenceRuns, f.deps),
	}
}

func (f *tumorNormalFixture) library(t *testing.T, m *models.LabMetadata) {
	t.Helper()

	require.NoError(t, f.persistence.LabMetadataRepository().Upsert(t.Context(), m))
}

func (f *tumorNormalFixture) germline(t *testing.T, sampleName string, status models.WorkflowStatus) *models.Workflow {
	t.Helper()

	wf, err := f.workflows.Upsert(t.Context(), testutil.CreateTestWorkflow(models.WorkflowTypeGermline,
		testutil.WithStatus(status),
		testutil.WithSampleName(sampleName),
		func(wf *models.Workflow) { wf.SequenceRunID = &f.sqr.ID },
	))
	require.NoError(t, err)

	return wf
}

func TestTumorNormalStep_Perform(t *testing.T) {
	f := newTumorNormalFixture(t)

	f.library(t, wgsLibrary("L2500001", "PRJ250001", "SBJ00100", models.PhenotypeTumor))
	f.library(t, wgsLibrary("L2500002", "PRJ250002", "SBJ00100", models.PhenotypeNormal))

	_, err := f.sequenceRuns.UpsertFastqListRows(t.Context(), f.sqr, []models.FastqListRow{
		fastqRow("GGG.1", "PRJ250001", "L2500001", 1),
		fastqRow("HHH.1", "PRJ250002", "L2500002", 1),
	})
	require.NoError(t, err)

	// topup of the tumor library from an earlier run
	_, err = f.sequenceRuns.UpsertFastqListRows(t.Context(), nil, []models.FastqListRow{
		fastqRow("GGG.3.topup", "PRJ250001", "L2500001", 3),
	})
	require.NoError(t, err)

	trigger := f.germline(t, "PRJ250001", models.WorkflowStatusSucceeded)
	f.germline(t, "PRJ250002", models.WorkflowStatusSucceeded)

	var jobs []any

	f.expectDispatch("tumor_normal", &jobs, accepted)

	result, err := f.step.Perform(t.Context(), trigger)
	require.NoError(t, err)

	assert.Equal(t, orchestration.OutcomeDispatched, result.Outcome)
	assert.Equal(t, runName, result.BatchName)
	assert.Equal(t, orchestration.StepTumorNormal, result.BatchRunStep)
	assert.Equal(t, 1, result.Jobs)
	require.Len(t, jobs, 1)

	job := jobs[0].(*models.Job)
	assert.Equal(t, "PRJ250001", job.SampleName)
	assert.Equal(t, "SBJ00100", job.SubjectID)
	assert.Zero(t, job.BatchRunID)

	require.Len(t, job.FastqListRows, 1)
	assert.Equal(t, "L2500002", job.FastqListRows[0].RGLB)

	require.Len(t, job.TumorFastqListRows, 2)
	assert.Equal(t, []int{1, 3}, []int{job.TumorFastqListRows[0].Lane, job.TumorFastqListRows[1].Lane})

	payload, err := json.Marshal(job)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, "PRJ250001", decoded["output_file_prefix"])
	assert.Equal(t, "SBJ00100", decoded["output_directory"])
	assert.Contains(t, decoded, "tumor_fastq_list_rows")
	assert.NotContains(t, decoded, "samplesheet")
}

func TestTumorNormalStep_WaitsForRunningGermline(t *testing.T) {
	f := newTumorNormalFixture(t)

	f.library(t, wgsLibrary("L2500001", "PRJ250001", "SBJ00100", models.PhenotypeTumor))
	f.library(t, wgsLibrary("L2500002", "PRJ250002", "SBJ00100", models.PhenotypeNormal))

	_, err := f.sequenceRuns.UpsertFastqListRows(t.Context(), f.sqr, []models.FastqListRow{
		fastqRow("GGG.1", "PRJ250001", "L2500001", 1),
		fastqRow("HHH.1", "PRJ250002", "L2500002", 1),
	})
	require.NoError(t, err)

	trigger := f.germline(t, "PRJ250001", models.WorkflowStatusSucceeded)
	f.germline(t, "PRJ250002", models.WorkflowStatusRunning)

	result, err := f.step.Perform(t.Context(), trigger)
	require.NoError(t, err)

	assert.Equal(t, orchestration.OutcomeWaiting, result.Outcome)
	assert.Equal(t, runName, result.BatchName)
	assert.Contains(t, result.Message, "1 germline runs")
	f.dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything, mock.Anything)
}

func TestTumorNormalStep_SkipsSubjectWithoutNormal(t *testing.T) {
	f := newTumorNormalFixture(t)

	f.library(t, wgsLibrary("L2500003", "PRJ250003", "SBJ00200", models.PhenotypeTumor))
	// a WTS normal does not pair with a WGS tumor
	f.library(t, testutil.CreateTestLabMetadata("L2500004", func(m *models.LabMetadata) {
		m.SampleID = "PRJ250004"
		m.SubjectID = "SBJ00200"
		m.Phenotype = models.PhenotypeNormal
		m.Type = models.MetadataTypeWTS
	}))

	_, err := f.sequenceRuns.UpsertFastqListRows(t.Context(), f.sqr, []models.FastqListRow{
		fastqRow("III.1", "PRJ250003", "L2500003", 1),
		fastqRow("JJJ.1", "PRJ250004", "L2500004", 1),
	})
	require.NoError(t, err)

	trigger := f.germline(t, "PRJ250003", models.WorkflowStatusSucceeded)

	result, err := f.step.Perform(t.Context(), trigger)
	require.NoError(t, err)

	assert.Equal(t, orchestration.OutcomeNoJobs, result.Outcome)
	f.dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything, mock.Anything)
}

func TestTumorNormalStep_SkipsSubjectWithTwoNormals(t *testing.T) {
	f := newTumorNormalFixture(t)

	f.library(t, wgsLibrary("L2500001", "PRJ250001", "SBJ00100", models.PhenotypeTumor))
	f.library(t, wgsLibrary("L2500002", "PRJ250002", "SBJ00100", models.PhenotypeNormal))
	f.library(t, wgsLibrary("L2500005", "PRJ250005", "SBJ00100", models.PhenotypeNormal))

	_, err := f.sequenceRuns.UpsertFastqListRows(t.Context(), f.sqr, []models.FastqListRow{
		fastqRow("GGG.1", "PRJ250001", "L2500001", 1),
		fastqRow("HHH.1", "PRJ250002", "L2500002", 1),
		fastqRow("KKK.1", "PRJ250005", "L2500005", 1),
	})
	require.NoError(t, err)

	trigger := f.germline(t, "PRJ250001", models.WorkflowStatusSucceeded)

	result, err := f.step.Perform(t.Context(), trigger)
	require.NoError(t, err)

	assert.Equal(t, orchestration.OutcomeNoJobs, result.Outcome)
	f.dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything, mock.Anything)
}

func TestTumorNormalStep_RequiresSequenceRun(t *testing.T) {
	f := newTumorNormalFixture(t)

	wf := testutil.CreateTestWorkflow(models.WorkflowTypeGermline, testutil.WithStatus(models.WorkflowStatusSucceeded))

	_, err := f.step.Perform(t.Context(), wf)
	require.ErrorIs(t, err, orchestration.ErrMissingSequenceRun)
}
