// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/dukex/portalflow/pkg/models"
	"github.com/google/uuid"
)

const InstrumentRunID = "240501_A01052_0200_AH7KXYDSXC"

// CreateTestSequenceRun creates a PendingAnalysis sequence run that can be overridden.
func CreateTestSequenceRun(overrides ...func(*models.SequenceRun)) *models.SequenceRun {
	sqr := &models.SequenceRun{
		RunID:           "r." + uuid.New().String()[:8],
		InstrumentRunID: InstrumentRunID,
		Name:            InstrumentRunID,
		DateModified:    time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Status:          models.SequenceRunStatusPendingAnalysis,
		GDSVolumeName:   "bssh.vol",
		GDSFolderPath:   "/Runs/" + InstrumentRunID,
	}

	for _, override := range overrides {
		override(sqr)
	}

	return sqr
}

// CreateTestWorkflow creates a running workflow with unique run and version ids.
func CreateTestWorkflow(wfType models.WorkflowType, overrides ...func(*models.Workflow)) *models.Workflow {
	id := uuid.New().String()[:8]

	wf := &models.Workflow{
		WorkflowID: "wfl." + wfType.Lower(),
		RunID:      "wfr." + id,
		VersionID:  "wfv." + id,
		Type:       wfType,
		Version:    "1.0.0",
		Input:      "{}",
		Start:      time.Now().UTC(),
	}

	for _, override := range overrides {
		override(wf)
	}

	return wf
}

// WithStatus sets the end status, and the end time for terminal statuses.
func WithStatus(status models.WorkflowStatus) func(*models.Workflow) {
	return func(wf *models.Workflow) {
		wf.EndStatus = &status

		if status != models.WorkflowStatusRunning {
			end := wf.Start.Add(time.Hour)
			wf.End = &end
		}
	}
}

// WithBatchRun attaches the workflow to a batch run.
func WithBatchRun(batchRunID int64) func(*models.Workflow) {
	return func(wf *models.Workflow) {
		wf.BatchRunID = &batchRunID
	}
}

// WithSampleName sets the sample name of the workflow.
func WithSampleName(name string) func(*models.Workflow) {
	return func(wf *models.Workflow) {
		wf.SampleName = &name
	}
}

// CreateTestLabMetadata creates a tumor WGS library record that can be overridden.
func CreateTestLabMetadata(libraryID string, overrides ...func(*models.LabMetadata)) *models.LabMetadata {
	m := &models.LabMetadata{
		LibraryID:   libraryID,
		SampleID:    "PRJ240001",
		SampleName:  "PRJ240001_" + libraryID,
		SubjectID:   "SBJ00001",
		Phenotype:   models.PhenotypeTumor,
		Quality:     "good",
		Source:      "tissue",
		ProjectName: "CUP",
		Type:        models.MetadataTypeWGS,
		Assay:       models.AssayPCRFree,
		Workflow:    models.MetadataWorkflowClinical,
	}

	for _, override := range overrides {
		override(m)
	}

	return m
}
