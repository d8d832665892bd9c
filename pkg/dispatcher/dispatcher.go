// Package dispatcher sends computed jobs to a downstream queue in bounded, grouped chunks.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// MaxBatchSize is the largest number of jobs sent in one enqueue call.
const MaxBatchSize = 10

// GroupIDKey is the metadata/field name carrying the chunk group id.
const GroupIDKey = "group_id"

// Backend enqueues one chunk of encoded jobs sharing a group id and returns the message ids.
type Backend interface {
	Enqueue(ctx context.Context, destination, groupID string, payloads [][]byte) ([]string, error)
}

// ChunkResult reports one enqueue call. Err is set when the chunk was not accepted.
type ChunkResult struct {
	GroupID    string   `json:"group_id"`
	Size       int      `json:"size"`
	MessageIDs []string `json:"message_ids,omitempty"`
	Err        error    `json:"-"`
}

// Dispatcher splits job lists into chunks and hands each chunk to the backend.
type Dispatcher struct {
	backend Backend
	logger  *slog.Logger
}

func New(backend Backend, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		backend: backend,
		logger:  logger.With("module", "dispatcher"),
	}
}

// Send sends jobs to destination in chunks of at most MaxBatchSize, one group id per chunk.
// A failed chunk does not stop the following ones, and accepted chunks are never withdrawn.
func Send[T any](ctx context.Context, d *Dispatcher, destination string, jobs []T) []ChunkResult {
	results := make([]ChunkResult, 0, (len(jobs)+MaxBatchSize-1)/MaxBatchSize)

	for start := 0; start < len(jobs); start += MaxBatchSize {
		end := min(start+MaxBatchSize, len(jobs))
		results = append(results, sendChunk(ctx, d, destination, jobs[start:end]))
	}

	return results
}

// Dispatch is Send for an untyped job list.
func (d *Dispatcher) Dispatch(ctx context.Context, destination string, jobs []any) []ChunkResult {
	return Send(ctx, d, destination, jobs)
}

func sendChunk[T any](ctx context.Context, d *Dispatcher, destination string, chunk []T) ChunkResult {
	result := ChunkResult{GroupID: uuid.NewString(), Size: len(chunk)}

	payloads := make([][]byte, 0, len(chunk))

	for _, job := range chunk {
		payload, err := json.Marshal(job)
		if err != nil {
			result.Err = fmt.Errorf("failed to encode job: %w", err)

			return result
		}

		payloads = append(payloads, payload)
	}

	ids, err := d.backend.Enqueue(ctx, destination, result.GroupID, payloads)
	if err != nil {
		result.Err = fmt.Errorf("failed to enqueue chunk %s to %s: %w", result.GroupID, destination, err)
		d.logger.ErrorContext(ctx, "chunk not dispatched",
			"destination", destination,
			"group_id", result.GroupID,
			"size", result.Size,
			"error", err,
		)

		return result
	}

	result.MessageIDs = ids

	d.logger.InfoContext(ctx, "chunk dispatched",
		"destination", destination,
		"group_id", result.GroupID,
		"size", result.Size,
	)

	return result
}

// Failed returns the chunks that were not accepted.
func Failed(results []ChunkResult) []ChunkResult {
	var failed []ChunkResult

	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}

	return failed
}
