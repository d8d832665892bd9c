package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const (
	FileClass      = "File"
	DirectoryClass = "Directory"
)

// FileRef is the CWL File/Directory reference shape expected by downstream workflows.
type FileRef struct {
	Class    string `json:"class"`
	Location string `json:"location"`
}

func NewFileRef(location string) *FileRef {
	return &FileRef{Class: FileClass, Location: location}
}

func NewDirectoryRef(location string) *FileRef {
	return &FileRef{Class: DirectoryClass, Location: location}
}

// FileLocation decodes either a plain location string or a CWL File object into its location.
type FileLocation string

func (f *FileLocation) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""

		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}

		*f = FileLocation(s)

		return nil
	}

	var ref FileRef
	if err := json.Unmarshal(data, &ref); err != nil {
		return fmt.Errorf("invalid file reference: %w", err)
	}

	*f = FileLocation(ref.Location)

	return nil
}

// RawFastqListRow is a fastq list row as produced by the BCL conversion workflow.
type RawFastqListRow struct {
	RGID  string       `json:"rgid"`
	RGSM  string       `json:"rgsm"`
	RGLB  string       `json:"rglb"`
	Lane  int          `json:"lane"`
	Read1 FileLocation `json:"read_1"`
	Read2 FileLocation `json:"read_2"`
}

// FastqListRow is a canonicalised fastq list row. RGID is unique system-wide.
// The JSON form is what gets cached in Batch.ContextData.
type FastqListRow struct {
	ID            int64   `db:"id"              json:"-"`
	RGID          string  `db:"rgid"            json:"rgid"`
	RGSM          string  `db:"rgsm"            json:"rgsm"`
	RGLB          string  `db:"rglb"            json:"rglb"`
	Lane          int     `db:"lane"            json:"lane"`
	Read1         string  `db:"read_1"          json:"read_1"`
	Read2         *string `db:"read_2"          json:"read_2"`
	SequenceRunID *int64  `db:"sequence_run_id" json:"-"`
}

// JobFastqListRow is the fastq list row shape inside a dispatched job.
type JobFastqListRow struct {
	RGID  string   `json:"rgid"`
	RGSM  string   `json:"rgsm"`
	RGLB  string   `json:"rglb"`
	Lane  int      `json:"lane"`
	Read1 *FileRef `json:"read_1"`
	Read2 *FileRef `json:"read_2"`
}

// ToJob wraps the read locations into File references. A missing read_2 stays null.
func (r FastqListRow) ToJob() JobFastqListRow {
	row := JobFastqListRow{
		RGID:  r.RGID,
		RGSM:  r.RGSM,
		RGLB:  r.RGLB,
		Lane:  r.Lane,
		Read1: NewFileRef(r.Read1),
	}

	if r.Read2 != nil && *r.Read2 != "" {
		row.Read2 = NewFileRef(*r.Read2)
	}

	return row
}
