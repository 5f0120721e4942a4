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

// Scheduler runs a Pruner on its PruneSchedule. Overlapping runs are
// skipped. A stopped scheduler can be started again.
type Scheduler struct {
	pruner *Pruner
	logger *slog.Logger

	mu    sync.Mutex
	cron  *cron.Cron // nil while stopped
	sched cron.Schedule
	done  chan struct{}
}

func NewScheduler(pruner *Pruner) *Scheduler {
	return &Scheduler{
		pruner: pruner,
		logger: slog.Default().With("component", "evidence.scheduler"),
	}
}

// Start begins scheduled pruning until Stop or until ctx is done. An empty
// schedule does nothing.
func (s *Scheduler) Start(ctx context.Context) error {
	cfg := s.pruner.config
	if cfg.PruneSchedule == "" {
		s.logger.Info("no prune schedule, evidence is pruned on demand only")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errors.New("retention scheduler already running")
	}

	sched, err := cron.ParseStandard(cfg.PruneSchedule)
	if err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", cfg.PruneSchedule, err)
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(sched, cron.FuncJob(func() { s.run(ctx) }))
	c.Start()

	s.cron, s.sched = c, sched
	done := make(chan struct{})
	s.done = done

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-done:
		}
	}()

	s.logger.Info("retention scheduler started",
		"schedule", cfg.PruneSchedule,
		"retention_days", cfg.RetentionDays,
		"max_records", cfg.MaxRecords,
	)
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	n, err := s.pruner.Prune(ctx)
	if err != nil {
		s.logger.Error("scheduled prune failed", "error", err)
		return
	}
	s.logger.Debug("scheduled prune finished", "deleted_count", n)
}

// Stop halts the schedule and waits for an in-flight prune.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	close(s.done)
	s.cron, s.sched, s.done = nil, nil, nil
	s.logger.Info("retention scheduler stopped")
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron != nil
}

// NextRun returns when the next prune fires, or nil while stopped.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sched == nil {
		return nil
	}
	next := s.sched.Next(time.Now())
	return &next
}
