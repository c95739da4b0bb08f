package schedule

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Schedules holds the cron specs for each job. An empty Purge disables the
// purge job.
type Schedules struct {
	Sweep string
	Retry string
	Purge string
}

// Scheduler runs the sweep, the pending-transfer retry and housekeeping on
// cron specs.
type Scheduler struct {
	cron      *cron.Cron
	jobs      *Jobs
	logger    *slog.Logger
	schedules Schedules
}

func NewScheduler(jobs *Jobs, logger *slog.Logger, schedules Schedules) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger),
		cron.SkipIfStillRunning(cronLogger),
	))

	return &Scheduler{
		cron:      c,
		jobs:      jobs,
		logger:    logger,
		schedules: schedules,
	}
}

// Start registers the jobs and starts the cron loop. An invalid spec is
// returned rather than skipped.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedules.Sweep, s.jobs.SweepDueSchedules); err != nil {
		return fmt.Errorf("Start: sweep schedule %q: %w", s.schedules.Sweep, err)
	}
	s.logger.Info("scheduled transfer sweep job", "schedule", s.schedules.Sweep)

	if _, err := s.cron.AddFunc(s.schedules.Retry, s.jobs.RetryPendingTransfers); err != nil {
		return fmt.Errorf("Start: retry schedule %q: %w", s.schedules.Retry, err)
	}
	s.logger.Info("scheduled pending transfer retry job", "schedule", s.schedules.Retry)

	if s.schedules.Purge != "" {
		if _, err := s.cron.AddFunc(s.schedules.Purge, s.jobs.PurgeExpired); err != nil {
			return fmt.Errorf("Start: purge schedule %q: %w", s.schedules.Purge, err)
		}
		s.logger.Info("scheduled idempotency purge job", "schedule", s.schedules.Purge)
	}

	s.cron.Start()
	return nil
}

// Stop stops the cron loop. The returned context is done once running jobs
// have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
