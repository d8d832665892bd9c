// Package file provides a single-process persistence implementation backed by one JSON state file.
//
// It honours the same uniqueness rules as the relational store by serialising every
// operation behind one mutex, which is only correct while a single process owns the file.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dukex/portalflow/pkg/models"
	"github.com/dukex/portalflow/pkg/persistence"
)

const stateFile = "portalflow.json"

type state struct {
	NextID       int64                          `json:"next_id"`
	Workflows    []*models.Workflow             `json:"workflows"`
	Batches      []*models.Batch                `json:"batches"`
	BatchRuns    []*models.BatchRun             `json:"batch_runs"`
	SequenceRuns []*models.SequenceRun          `json:"sequence_runs"`
	FastqRows    []*storedFastqListRow          `json:"fastq_list_rows"`
	LabMetadata  map[string]*models.LabMetadata `json:"lab_metadata"`
}

// storedFastqListRow keeps the fields FastqListRow hides from JSON.
type storedFastqListRow struct {
	models.FastqListRow

	StoredID      int64  `json:"id"`
	SequenceRunID *int64 `json:"sequence_run_id"`
}

// Persistence implements persistence.Persistence on the local file system.
type Persistence struct {
	root  string
	mu    sync.Mutex
	state *state
}

// NewPersistence loads the state file under root, creating the directory when missing.
func NewPersistence(root string) (*Persistence, error) {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	err := os.MkdirAll(cleanRoot, 0o750)
	if err != nil {
		return nil, fmt.Errorf("failed to create persistence root: %w", err)
	}

	fp := &Persistence{root: cleanRoot, state: newState()}

	data, err := os.ReadFile(fp.path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fp, nil
		}

		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	err = json.Unmarshal(data, fp.state)
	if err != nil {
		return nil, fmt.Errorf("failed to decode state file: %w", err)
	}

	if fp.state.LabMetadata == nil {
		fp.state.LabMetadata = map[string]*models.LabMetadata{}
	}

	return fp, nil
}

func newState() *state {
	return &state{LabMetadata: map[string]*models.LabMetadata{}}
}

func (fp *Persistence) path() string {
	return filepath.Join(fp.root, stateFile)
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return &WorkflowRepository{fp: fp}
}

func (fp *Persistence) BatchRepository() persistence.BatchRepository {
	return &BatchRepository{fp: fp}
}

func (fp *Persistence) SequenceRunRepository() persistence.SequenceRunRepository {
	return &SequenceRunRepository{fp: fp}
}

func (fp *Persistence) FastqListRowRepository() persistence.FastqListRowRepository {
	return &FastqListRowRepository{fp: fp}
}

func (fp *Persistence) LabMetadataRepository() persistence.LabMetadataRepository {
	return &LabMetadataRepository{fp: fp}
}

// read runs fn while holding the lock.
func (fp *Persistence) read(fn func(s *state) error) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	return fn(fp.state)
}

// write runs fn while holding the lock and flushes the state when fn succeeds.
func (fp *Persistence) write(fn func(s *state) error) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	err := fn(fp.state)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(fp.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	tmp := fp.path() + ".tmp"

	err = os.WriteFile(tmp, data, 0o600)
	if err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}

	err = os.Rename(tmp, fp.path())
	if err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	return nil
}

func (s *state) nextID() int64 {
	s.NextID++

	return s.NextID
}

func now() time.Time {
	return time.Now().UTC()
}

func clone[T any](v *T) *T {
	if v == nil {
		return nil
	}

	c := *v

	return &c
}
