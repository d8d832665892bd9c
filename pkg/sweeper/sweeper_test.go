package sweeper

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/portalflow/pkg/mocks"
	"github.com/dukex/portalflow/pkg/models"
	"github.com/dukex/portalflow/pkg/persistence/file"
	"github.com/dukex/portalflow/pkg/services"
	"github.com/dukex/portalflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		schedule    string
		idleFor     time.Duration
		expectError bool
	}{
		{name: "default", schedule: DefaultSchedule, idleFor: DefaultIdleFor},
		{name: "standard cron", schedule: "*/5 * * * *", idleFor: time.Minute},
		{name: "empty schedule", schedule: "", idleFor: time.Minute, expectError: true},
		{name: "invalid schedule", schedule: "invalid cron", idleFor: time.Minute, expectError: true},
		{name: "zero idle", schedule: DefaultSchedule, idleFor: 0, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.schedule, tt.idleFor, nil, nil, discardLogger())
			if tt.expectError {
				require.Error(t, err)
				assert.Nil(t, s)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.schedule, s.Schedule)
		})
	}
}

func TestSweeper_Sweep(t *testing.T) {
	p, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	batches := services.NewBatch(p)
	workflows := services.NewWorkflow(p)

	batch, err := batches.GetOrCreateBatch(t.Context(), testutil.InstrumentRunID, "wfr.bcl")
	require.NoError(t, err)

	stuck, err := batches.SkipOrCreateBatchRun(t.Context(), batch, "GERMLINE")
	require.NoError(t, err)

	busy, err := batches.SkipOrCreateBatchRun(t.Context(), batch, "DRAGEN_WTS")
	require.NoError(t, err)

	_, err = workflows.Upsert(t.Context(), testutil.CreateTestWorkflow(models.WorkflowTypeDragenWTS, testutil.WithBatchRun(busy.ID)))
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	notifier := &mocks.MockNotifier{}
	notifier.On("Outlier", mock.Anything, "STUCK_BATCH_RUN", mock.Anything, "STUCK", mock.MatchedBy(func(event map[string]any) bool {
		return event["batch_run_id"] == stuck.ID && event["step"] == "GERMLINE"
	})).Return(errors.New("sink down")).Once()

	s, err := New(DefaultSchedule, time.Millisecond, batches, notifier, discardLogger())
	require.NoError(t, err)

	found, err := s.Sweep(t.Context())
	require.NoError(t, err, "notification failures are logged")
	assert.Equal(t, 1, found)

	run, err := batches.GetBatchRun(t.Context(), stuck.ID)
	require.NoError(t, err)
	assert.True(t, run.Running, "stuck runs are never reset")

	notifier.AssertExpectations(t)
}

func TestSweeper_StartStop(t *testing.T) {
	p, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	s, err := New("@every 1s", time.Hour, services.NewBatch(p), &mocks.MockNotifier{}, discardLogger())
	require.NoError(t, err)

	require.NoError(t, s.Start(t.Context()))
	s.Stop(t.Context())
}
