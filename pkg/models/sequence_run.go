package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// SequenceRunStatusPendingAnalysis marks a sequencing run whose data is ready for conversion.
const SequenceRunStatusPendingAnalysis = "PendingAnalysis"

// SequenceRun is one observed status of an instrument run. (RunID, DateModified, Status) is unique.
type SequenceRun struct {
	ID                int64      `db:"id"                   json:"id"`
	RunID             string     `db:"run_id"               json:"run_id"`
	InstrumentRunID   string     `db:"instrument_run_id"    json:"instrument_run_id"`
	Name              string     `db:"name"                 json:"name"`
	DateModified      time.Time  `db:"date_modified"        json:"date_modified"`
	Status            string     `db:"status"               json:"status"`
	GDSFolderPath     string     `db:"gds_folder_path"      json:"gds_folder_path"`
	GDSVolumeName     string     `db:"gds_volume_name"      json:"gds_volume_name"`
	ReagentBarcode    string     `db:"reagent_barcode"      json:"reagent_barcode"`
	FlowcellBarcode   string     `db:"flowcell_barcode"     json:"flowcell_barcode"`
	SampleSheetName   string     `db:"sample_sheet_name"    json:"sample_sheet_name"`
	APIURL            string     `db:"api_url"              json:"api_url"`
	ACL               StringList `db:"acl"                  json:"acl"`
	MsgAttrAction     string     `db:"msg_attr_action"      json:"msg_attr_action"`
	MsgAttrActionType string     `db:"msg_attr_action_type" json:"msg_attr_action_type"`
	MsgAttrActionDate string     `db:"msg_attr_action_date" json:"msg_attr_action_date"`
	MsgAttrProducedBy string     `db:"msg_attr_produced_by" json:"msg_attr_produced_by"`
	CreatedAt         time.Time  `db:"created_at"           json:"created_at"`
}

// RunFolder is the object-store location holding the raw run data.
func (s *SequenceRun) RunFolder() string {
	return "gds://" + s.GDSVolumeName + s.GDSFolderPath
}

// StringList is stored as a JSON array in a text column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}

	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}

	return string(b), nil
}

func (l *StringList) Scan(src any) error {
	var raw []byte

	switch v := src.(type) {
	case nil:
		*l = nil

		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported type %T for StringList", src)
	}

	return json.Unmarshal(raw, (*[]string)(l))
}
