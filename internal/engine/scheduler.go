package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adamancini/webbundle/internal/types"
)

// DefaultCheckInterval is how often the background check runs.
const DefaultCheckInterval = 10 * time.Minute

// Checker runs one background pass.
type Checker interface {
	Check(ctx context.Context) *CheckResult
}

// Scheduler runs Check on a fixed interval, off the caller's goroutine.
// A tick that fires while the previous pass is still running is dropped.
type Scheduler struct {
	checker  Checker
	interval time.Duration
	logger   *slog.Logger

	running atomic.Bool
	dropped atomic.Int64
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler; interval <= 0 uses DefaultCheckInterval.
func NewScheduler(checker Checker, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Scheduler{checker: checker, interval: interval, logger: logger}
}

// Interval returns the tick interval.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Dropped returns how many ticks were skipped because a pass was running.
func (s *Scheduler) Dropped() int64 {
	return s.dropped.Load()
}

// Tick runs one pass on the calling goroutine. If a pass is already
// running it returns a skipped result without waiting.
func (s *Scheduler) Tick(ctx context.Context) *CheckResult {
	if !s.running.CompareAndSwap(false, true) {
		s.dropped.Add(1)
		return &CheckResult{Outcome: types.OutcomeSkipped}
	}
	defer s.running.Store(false)

	return s.checker.Check(ctx)
}

// Run ticks every interval until ctx is cancelled, then waits for an
// in-flight pass to finish. Cancelling ctx also cancels that pass's
// network calls.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.checker == nil {
		return fmt.Errorf("scheduler: checker is required")
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Debug("scheduler started", "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.logger.Debug("scheduler stopped")
			return nil
		case <-ticker.C:
			if !s.running.CompareAndSwap(false, true) {
				s.dropped.Add(1)
				s.logger.Debug("tick dropped, previous check still running")
				continue
			}

			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				defer s.running.Store(false)

				r := s.checker.Check(ctx)
				s.logger.Debug("background check finished", "outcome", r.Outcome, "version", r.Version)
			}()
		}
	}
}
