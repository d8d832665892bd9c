// Package sweeper reports batch runs left running without any workflow, e.g. after a crash
// between creating the run and dispatching its jobs. Runs are reported, never reset.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/portalflow/pkg/models"
	"github.com/robfig/cron/v3"
)

const (
	DefaultSchedule = "@every 15m"
	DefaultIdleFor  = time.Hour
)

type BatchRuns interface {
	ListStuckBatchRuns(ctx context.Context, idleFor time.Duration) ([]*models.BatchRun, error)
}

type Notifier interface {
	Outlier(ctx context.Context, topic, reason, status string, event map[string]any) error
}

type Sweeper struct {
	Schedule string
	IdleFor  time.Duration

	batches  BatchRuns
	notifier Notifier
	cron     *cron.Cron
	logger   *slog.Logger
}

func New(schedule string, idleFor time.Duration, batches BatchRuns, notifier Notifier, logger *slog.Logger) (*Sweeper, error) {
	s := &Sweeper{
		Schedule: schedule,
		IdleFor:  idleFor,
		batches:  batches,
		notifier: notifier,
		logger:   logger.With("module", "sweeper", "schedule", schedule, "idle_for", idleFor),
	}

	err := s.Validate()
	if err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Sweeper) Validate() error {
	if s.Schedule == "" {
		return errors.New("sweeper schedule is required")
	}

	if s.IdleFor <= 0 {
		return errors.New("sweeper idle duration must be positive")
	}

	_, err := cron.ParseStandard(s.Schedule)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	return nil
}

// Start runs Sweep on the schedule until Stop is called.
func (s *Sweeper) Start(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Starting sweeper")

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err := s.cron.AddFunc(s.Schedule, func() {
		_, err := s.Sweep(ctx)
		if err != nil {
			s.logger.ErrorContext(ctx, "Sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to add sweep job: %w", err)
	}

	s.cron.Start()

	return nil
}

func (s *Sweeper) Stop(ctx context.Context) {
	s.logger.InfoContext(ctx, "Stopping sweeper")

	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep reports every stuck batch run once per call and returns how many were found.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	runs, err := s.batches.ListStuckBatchRuns(ctx, s.IdleFor)
	if err != nil {
		return 0, err
	}

	for _, run := range runs {
		s.logger.WarnContext(ctx, "Batch run is running without workflows",
			"batch_run_id", run.ID,
			"batch_id", run.BatchID,
			"step", run.Step,
			"updated_at", run.UpdatedAt,
		)

		err := s.notifier.Outlier(ctx, "STUCK_BATCH_RUN", "Batch run is running without workflows. Reset it once the cause is known.", "STUCK", map[string]any{
			"batch_run_id": run.ID,
			"batch_id":     run.BatchID,
			"step":         run.Step,
			"updated_at":   run.UpdatedAt.UTC().Format(time.RFC3339),
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to report stuck batch run", "batch_run_id", run.ID, "error", err)
		}
	}

	return len(runs), nil
}
