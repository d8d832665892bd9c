package orchestration

import "github.com/dukex/portalflow/pkg/models"

// NewDragenWTSStep dispatches one transcriptome job per WTS library.
func NewDragenWTSStep(destination string, deps Dependencies) Step {
	step := newBatchedStep(StepDragenWTS, destination, deps)
	step.accepts = func(m *models.LabMetadata) bool {
		return m.IsType(models.MetadataTypeWTS)
	}

	return step
}
