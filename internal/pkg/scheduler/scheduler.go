// Package scheduler runs a task on a fixed interval in a single goroutine.
//
// A cycle that returns an error or panics is logged and never stops the
// scheduler; Stop cancels the loop deterministically and waits for it to
// exit, so no background goroutine outlives its owner.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/shandysiswandi/otpgate/internal/pkg/stacktrace"
)

// ErrInvalidInterval is returned when New receives a non-positive interval.
var ErrInvalidInterval = errors.New("scheduler: interval must be positive")

// Task is a single cycle of periodic work.
type Task func(ctx context.Context) error

// Scheduler executes a Task every interval until stopped.
type Scheduler struct {
	name     string
	interval time.Duration
	task     Task

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a stopped scheduler for the given task.
func New(name string, interval time.Duration, task Task) (*Scheduler, error) {
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}

	return &Scheduler{
		name:     name,
		interval: interval,
		task:     task,
	}, nil
}

// Start launches the periodic loop. Starting an already-running scheduler is
// a no-op. A stopped scheduler may be started again.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go s.loop(loopCtx, done)
}

// Stop cancels the loop and blocks until the current cycle, if any, returns.
// Stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	defer func() {
		if rvr := recover(); rvr != nil {
			stack := debug.Stack()
			paths := stacktrace.InternalPaths(stack)
			if len(paths) == 0 {
				slog.ErrorContext(ctx, "panic in scheduled task", "scheduler", s.name, "because", rvr, "stack", string(stack))
			} else {
				slog.ErrorContext(ctx, "panic in scheduled task", "scheduler", s.name, "because", rvr, "stack", paths)
			}
		}
	}()

	if err := s.task(ctx); err != nil {
		slog.ErrorContext(ctx, "scheduled task failed", "scheduler", s.name, "error", err)
	}
}
