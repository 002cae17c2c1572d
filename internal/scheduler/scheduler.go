// Package scheduler runs the ingestion producer on a fixed interval for
// unattended operation.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// Runner is one ingestion run.
type Runner interface {
	RunOnce(ctx context.Context) error
}

// Scheduler triggers ingestion runs periodically. Overlapping runs are
// skipped: the checkpoint protocol assumes a single active producer.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    Runner
	interval  time.Duration
	logger    *slog.Logger
}

// New creates a Scheduler.
func New(runner Runner, interval time.Duration, logger *slog.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		runner:    runner,
		interval:  interval,
		logger:    logger,
	}
}

// Start schedules the periodic run and starts the underlying scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.scheduler.Every(s.interval).Do(func() {
		s.logger.Info("scheduled ingestion run starting")
		if err := s.runner.RunOnce(ctx); err != nil {
			s.logger.Error("scheduled ingestion run failed", "error", err)
			return
		}
		s.logger.Info("scheduled ingestion run complete")
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
