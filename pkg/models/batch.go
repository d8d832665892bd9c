package models

import "time"

const (
	BatchRunStatusRunning    = "RUNNING"
	BatchRunStatusNotRunning = "NOT_RUNNING"
)

// Batch groups the follow-on work of one pipeline invocation, usually one sequencing run.
// ContextData is written at most once.
type Batch struct {
	ID          int64     `db:"id"           json:"id"`
	Name        string    `db:"name"         json:"name"`
	CreatedBy   string    `db:"created_by"   json:"created_by"`
	ContextData *string   `db:"context_data" json:"context_data,omitempty"`
	CreatedAt   time.Time `db:"created_at"   json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"   json:"updated_at"`
}

// BatchRun is one attempt of one step against a Batch. Only one running attempt may exist per (batch, step).
type BatchRun struct {
	ID        int64     `db:"id"         json:"id"`
	BatchID   int64     `db:"batch_id"   json:"batch_id"`
	Step      string    `db:"step"       json:"step"`
	Running   bool      `db:"running"    json:"running"`
	Notified  bool      `db:"notified"   json:"notified"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (br *BatchRun) Status() string {
	if br.Running {
		return BatchRunStatusRunning
	}

	return BatchRunStatusNotRunning
}

// BatchRunFilter narrows ListBatchRuns. Zero values are ignored.
type BatchRunFilter struct {
	Running   *bool
	Step      string
	BatchID   int64
	OlderThan time.Time
	Limit     int
}
