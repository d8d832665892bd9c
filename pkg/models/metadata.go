package models

import (
	"fmt"
	"strings"
)

const (
	PhenotypeTumor           = "tumor"
	PhenotypeNormal          = "normal"
	PhenotypeNegativeControl = "negative-control"
)

const (
	MetadataTypeWGS    = "WGS"
	MetadataTypeWTS    = "WTS"
	MetadataTypeCtDNA  = "ctDNA"
	MetadataTypeCtTSO  = "ctTSO"
	MetadataType10X    = "10X"
	MetadataTypeTSODNA = "TSO-DNA"
	MetadataTypeTSORNA = "TSO-RNA"
	MetadataTypeOther  = "other"
)

const (
	AssayTsqNano  = "TsqNano"
	AssayNebRNA   = "NebRNA"
	AssayCtTSO    = "ctTSO"
	AssayPCRFree  = "PCR-Free-Tagmentation"
	Assay10X3Expr = "10X-3prime-expression"
)

const (
	MetadataWorkflowClinical = "clinical"
	MetadataWorkflowResearch = "research"
	MetadataWorkflowQC       = "qc"
	MetadataWorkflowControl  = "control"
	MetadataWorkflowBCL      = "bcl"
	MetadataWorkflowManual   = "manual"
)

// LabMetadata describes one sequenced library.
type LabMetadata struct {
	ID               int64  `db:"id"                 json:"id"`
	LibraryID        string `db:"library_id"         json:"library_id"          validate:"required"`
	SampleID         string `db:"sample_id"          json:"sample_id"`
	SampleName       string `db:"sample_name"        json:"sample_name"`
	SubjectID        string `db:"subject_id"         json:"subject_id"`
	ExternalSampleID string `db:"external_sample_id" json:"external_sample_id"`
	Phenotype        string `db:"phenotype"          json:"phenotype"`
	Quality          string `db:"quality"            json:"quality"`
	Source           string `db:"source"             json:"source"`
	ProjectName      string `db:"project_name"       json:"project_name"`
	ProjectOwner     string `db:"project_owner"      json:"project_owner"`
	Type             string `db:"type"               json:"type"`
	Assay            string `db:"assay"              json:"assay"`
	Workflow         string `db:"workflow"           json:"workflow"`
	Coverage         string `db:"coverage"           json:"coverage"`
}

func (m *LabMetadata) IsPhenotype(p string) bool { return strings.EqualFold(m.Phenotype, p) }
func (m *LabMetadata) IsType(t string) bool      { return strings.EqualFold(m.Type, t) }
func (m *LabMetadata) IsAssay(a string) bool     { return strings.EqualFold(m.Assay, a) }
func (m *LabMetadata) IsWorkflow(w string) bool  { return strings.EqualFold(m.Workflow, w) }

// labMetadataColumns is the closed set of accepted sheet columns.
var labMetadataColumns = map[string]func(m *LabMetadata, v string){
	"library_id":         func(m *LabMetadata, v string) { m.LibraryID = v },
	"sample_id":          func(m *LabMetadata, v string) { m.SampleID = v },
	"sample_name":        func(m *LabMetadata, v string) { m.SampleName = v },
	"subject_id":         func(m *LabMetadata, v string) { m.SubjectID = v },
	"external_sample_id": func(m *LabMetadata, v string) { m.ExternalSampleID = v },
	"phenotype":          func(m *LabMetadata, v string) { m.Phenotype = v },
	"quality":            func(m *LabMetadata, v string) { m.Quality = v },
	"source":             func(m *LabMetadata, v string) { m.Source = v },
	"project_name":       func(m *LabMetadata, v string) { m.ProjectName = v },
	"project_owner":      func(m *LabMetadata, v string) { m.ProjectOwner = v },
	"type":               func(m *LabMetadata, v string) { m.Type = v },
	"assay":              func(m *LabMetadata, v string) { m.Assay = v },
	"workflow":           func(m *LabMetadata, v string) { m.Workflow = v },
	"coverage":           func(m *LabMetadata, v string) { m.Coverage = v },
}

// NormalizeColumnName turns a sheet header such as "LibraryID" or "Library ID" into "library_id".
func NormalizeColumnName(header string) string {
	header = strings.TrimSpace(header)

	var b strings.Builder

	prevLower := false

	for _, r := range header {
		switch {
		case r == ' ' || r == '-' || r == '_':
			if b.Len() > 0 && !strings.HasSuffix(b.String(), "_") {
				b.WriteByte('_')
			}

			prevLower = false
		case r >= 'A' && r <= 'Z':
			if prevLower {
				b.WriteByte('_')
			}

			b.WriteRune(r + ('a' - 'A'))

			prevLower = false
		default:
			b.WriteRune(r)

			prevLower = true
		}
	}

	return strings.TrimSuffix(b.String(), "_")
}

// IsLabMetadataColumn reports whether the normalised column is accepted.
func IsLabMetadataColumn(column string) bool {
	_, ok := labMetadataColumns[column]

	return ok
}

// SetColumn assigns a value by normalised column name. Unknown columns are rejected.
func (m *LabMetadata) SetColumn(column, value string) error {
	setter, ok := labMetadataColumns[column]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMetadataColumn, column)
	}

	setter(m, strings.TrimSpace(value))

	return nil
}
