package orchestration

import "github.com/dukex/portalflow/pkg/models"

// NewGermlineStep dispatches one germline job per WGS library.
func NewGermlineStep(destination string, deps Dependencies) Step {
	step := newBatchedStep(StepGermline, destination, deps)
	step.accepts = func(m *models.LabMetadata) bool {
		return m.IsType(models.MetadataTypeWGS)
	}

	return step
}
