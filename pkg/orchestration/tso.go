package orchestration

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dukex/portalflow/pkg/models"
)

const tsoSampleTypeDNA = "DNA"

// NewDragenTSOCtDNAStep dispatches one ctDNA job per ctTSO library. Jobs carry the split
// samplesheet and the run descriptor files of the BCL conversion.
func NewDragenTSOCtDNAStep(destination string, deps Dependencies) Step {
	step := newBatchedStep(StepDragenTSOCtDNA, destination, deps)
	step.accepts = func(m *models.LabMetadata) bool {
		return m.IsType(models.MetadataTypeCtDNA) && m.IsAssay(models.AssayCtTSO)
	}
	step.decorator = tsoDecorator

	return step
}

type bclConvertInput struct {
	BCLInputDirectory *struct {
		Location string `json:"location"`
	} `json:"bcl_input_directory"`
}

// tsoDecorator reads the BCL conversion input and output once, on the first job that needs them.
func tsoDecorator(wf *models.Workflow) jobDecorator {
	var (
		loaded      bool
		inputDir    string
		sampleSheet string
	)

	load := func() error {
		var input bclConvertInput

		err := json.Unmarshal([]byte(wf.Input), &input)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrUnexpectedInputFormat, err)
		}

		if input.BCLInputDirectory == nil || input.BCLInputDirectory.Location == "" {
			return fmt.Errorf("%w: missing bcl_input_directory", ErrUnexpectedInputFormat)
		}

		inputDir = strings.TrimSuffix(input.BCLInputDirectory.Location, "/")

		sheets, err := ParseSplitSheets(wf.Output)
		if err != nil {
			return err
		}

		sampleSheet, _ = ctTSOSampleSheet(sheets)
		loaded = true

		return nil
	}

	return func(job *models.Job, group *LibraryGroup) error {
		if !loaded {
			err := load()
			if err != nil {
				return err
			}
		}

		sampleID, err := group.SampleSheetSampleID()
		if err != nil {
			return err
		}

		job.TSO500Sample = &models.TSO500Sample{
			SampleID:   sampleID,
			SampleName: job.SampleName,
			SampleType: tsoSampleTypeDNA,
			PairID:     job.SampleName,
		}

		if sampleSheet != "" {
			job.SampleSheet = models.NewFileRef(sampleSheet)
		}

		job.RunInfoXML = models.NewFileRef(inputDir + "/RunInfo.xml")
		job.RunParametersXML = models.NewFileRef(inputDir + "/RunParameters.xml")

		return nil
	}
}
