package maintain

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the maintenance sweep on a cron schedule. It drives the
// long-running `maintain` mode: the command starts the scheduler and blocks
// until the context is cancelled.
type Scheduler struct {
	sweeper  *Sweeper
	schedule string
	cron     *cron.Cron
	mu       sync.Mutex
	logger   *slog.Logger
	running  bool
}

// NewScheduler creates a scheduler running the sweeper on the given cron
// expression (standard five-field syntax or a descriptor like "@hourly").
func NewScheduler(sweeper *Sweeper, schedule string) *Scheduler {
	return &Scheduler{
		sweeper:  sweeper,
		schedule: schedule,
		cron:     cron.New(),
		logger:   slog.Default().With("component", "vault.maintain.scheduler"),
	}
}

// Start begins scheduled sweeping. An empty schedule is a no-op, not an
// error. The scheduler stops itself when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info("maintenance schedule not configured, skipping scheduler")
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}

	if _, err := s.cron.AddFunc(s.schedule, func() {
		s.runSweep(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule maintenance sweep: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("maintenance scheduler started", "schedule", s.schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// runSweep executes one scheduled sweep.
func (s *Scheduler) runSweep(ctx context.Context) {
	s.logger.Info("starting scheduled maintenance sweep")

	sum, err := s.sweeper.RunOnce(ctx)
	if err != nil {
		s.logger.Error("scheduled maintenance sweep failed", "error", err)
		return
	}

	if sum.Clean() {
		s.logger.Debug("scheduled maintenance sweep clean",
			"entries_checked", sum.EntriesChecked)
		return
	}
	s.logger.Warn("scheduled maintenance sweep found problems",
		"chain_valid", sum.ChainValid,
		"problems", len(sum.Problems),
		"health_failed", sum.Health.Failed,
		"health_warned", sum.Health.Warned,
	)
}

// Stop stops the scheduler and waits for a running sweep to complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil && s.running {
		ctx := s.cron.Stop()
		<-ctx.Done() // Wait for a running sweep to finish
		s.running = false
		s.logger.Info("maintenance scheduler stopped")
	}
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

// NextRun returns the next scheduled sweep time.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return nil
	}

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}

	next := entries[0].Next
	return &next
}
