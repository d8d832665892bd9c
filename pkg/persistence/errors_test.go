package persistence_test

import (
	"errors"
	"testing"

	"github.com/dukex/portalflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestEntityError(t *testing.T) {
	t.Parallel()

	t.Run("unwraps to the sentinel", func(t *testing.T) {
		err := persistence.NewEntityError("ResetRun", "batch_run", "42", persistence.ErrBatchRunNotFound)

		assert.True(t, errors.Is(err, persistence.ErrBatchRunNotFound))
		assert.True(t, persistence.IsBatchRunNotFound(err))
		assert.True(t, persistence.IsNotFound(err))
		assert.False(t, errors.Is(err, persistence.ErrConflict))
	})

	t.Run("message carries context", func(t *testing.T) {
		err := persistence.NewEntityError("GetOrCreate", "batch", "RUN123", persistence.ErrConflict)

		assert.Contains(t, err.Error(), "GetOrCreate")
		assert.Contains(t, err.Error(), "batch RUN123")
		assert.Contains(t, err.Error(), "conflicting write")
	})

	t.Run("key is optional", func(t *testing.T) {
		err := persistence.NewEntityError("ListRuns", "batch_run", "", errors.New("boom"))

		assert.Equal(t, "ListRuns operation failed for batch_run: boom", err.Error())
	})

	t.Run("wrapped twice still matches", func(t *testing.T) {
		inner := persistence.NewEntityError("GetByID", "workflow", "wfr.1", persistence.ErrWorkflowNotFound)
		outer := errors.Join(errors.New("lookup"), inner)

		assert.True(t, persistence.IsNotFound(outer))

		var entityErr *persistence.EntityError
		assert.True(t, errors.As(outer, &entityErr))
		assert.Equal(t, "workflow", entityErr.Entity)
	})
}
