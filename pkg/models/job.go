package models

import "encoding/json"

// Job is the payload dispatched to a downstream launch consumer. Field names are part of the
// contract with the launch system and must not change.
type Job struct {
	SampleName       string            `json:"sample_name"`
	LibraryID        string            `json:"library_id,omitempty"`
	FastqListRows    []JobFastqListRow `json:"fastq_list_rows"`
	SeqRunID         *string           `json:"seq_run_id"`
	SeqName          *string           `json:"seq_name"`
	BatchRunID       int64             `json:"batch_run_id"`
	TSO500Sample     *TSO500Sample     `json:"tso500_sample,omitempty"`
	SampleSheet      *FileRef          `json:"samplesheet,omitempty"`
	RunInfoXML       *FileRef          `json:"run_info_xml,omitempty"`
	RunParametersXML *FileRef          `json:"run_parameters_xml,omitempty"`

	// Tumor/normal pairs carry the normal rows in FastqListRows.
	SubjectID          string            `json:"subject_id,omitempty"`
	TumorFastqListRows []JobFastqListRow `json:"tumor_fastq_list_rows,omitempty"`
	OutputFilePrefix   string            `json:"output_file_prefix,omitempty"`
	OutputDirectory    string            `json:"output_directory,omitempty"`
}

// MarshalJSON always writes samplesheet on TSO jobs, as null when no split sheet was found.
func (j Job) MarshalJSON() ([]byte, error) {
	type plain Job

	if j.TSO500Sample == nil {
		return json.Marshal(plain(j))
	}

	return json.Marshal(struct {
		plain
		SampleSheet *FileRef `json:"samplesheet"`
	}{plain: plain(j), SampleSheet: j.SampleSheet})
}

// TSO500Sample identifies the sample inside a ctDNA TSO samplesheet.
type TSO500Sample struct {
	SampleID   string `json:"sample_id"`
	SampleName string `json:"sample_name"`
	SampleType string `json:"sample_type"`
	PairID     string `json:"pair_id"`
}

// LaunchResult is returned by the launch consumer for one job.
type LaunchResult struct {
	Status      string       `json:"status"`
	Reason      string       `json:"reason,omitempty"`
	Type        WorkflowType `json:"type"`
	SampleName  string       `json:"sample_name,omitempty"`
	Workflow    *Workflow    `json:"workflow,omitempty"`
	MatchedRuns []*Workflow  `json:"matched_runs,omitempty"`
}

const (
	LaunchStatusLaunched = "LAUNCHED"
	LaunchStatusSkipped  = "SKIPPED"
)
