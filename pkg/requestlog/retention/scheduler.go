package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs a pruner on its cron schedule. A run still in progress
// when the next one fires makes the next one skip.
type Scheduler struct {
	pruner *Pruner
	logger *slog.Logger

	mu    sync.Mutex
	cron  *cron.Cron
	entry cron.EntryID
}

// NewScheduler returns a stopped scheduler for p.
func NewScheduler(p *Pruner) *Scheduler {
	return &Scheduler{
		pruner: p,
		logger: slog.Default().With("component", "requestlog.scheduler"),
	}
}

// Start schedules pruning with the pruner's PruneSchedule. An empty schedule
// leaves the scheduler stopped. Cancelling ctx stops it.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	expr := s.pruner.config.PruneSchedule
	if expr == "" {
		s.logger.Info("prune schedule not configured, skipping scheduler")
		return nil
	}
	if s.cron != nil {
		return errors.New("scheduler already running")
	}

	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", expr, err)
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	s.entry = c.Schedule(schedule, cron.FuncJob(func() { s.run(ctx) }))
	c.Start()
	s.cron = c

	s.logger.Info("retention scheduler started",
		"schedule", expr,
		"retention_days", s.pruner.config.RetentionDays,
		"max_records", s.pruner.config.MaxRecords,
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	start := time.Now()
	deleted, err := s.pruner.Prune(ctx)
	if err != nil {
		s.logger.Error("scheduled pruning failed", "error", err)
		return
	}
	s.logger.Debug("scheduled pruning completed",
		"deleted_count", deleted,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// Stop stops scheduling and waits for a running prune to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.logger.Info("retention scheduler stopped")
}

// IsRunning reports whether pruning is scheduled.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron != nil
}

// NextRun returns the next scheduled pruning time, or nil when stopped.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return nil
	}
	next := s.cron.Entry(s.entry).Next
	if next.IsZero() {
		return nil
	}
	return &next
}
