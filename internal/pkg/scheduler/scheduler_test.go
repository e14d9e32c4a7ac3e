package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func waitForCount(t *testing.T, counter *atomic.Int64, want int64) {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for counter.Load() < want {
		select {
		case <-deadline:
			t.Fatalf("task ran %d times, want at least %d", counter.Load(), want)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestScheduler(t *testing.T) {

	t.Run("InvalidInterval", func(t *testing.T) {

		// Act
		_, err := New("noop", 0, func(ctx context.Context) error { return nil })

		// Assert
		if !errors.Is(err, ErrInvalidInterval) {
			t.Fatalf("expected ErrInvalidInterval, got %v", err)
		}
	})

	t.Run("RunsTaskPeriodically", func(t *testing.T) {

		// Arrange
		var runs atomic.Int64
		s, err := New("counter", 10*time.Millisecond, func(ctx context.Context) error {
			runs.Add(1)
			return nil
		})
		if err != nil {
			t.Fatalf("New returned error: %v", err)
		}

		// Act
		s.Start(context.Background())
		defer s.Stop()

		// Assert
		waitForCount(t, &runs, 3)
	})

	t.Run("StopIsDeterministicAndIdempotent", func(t *testing.T) {

		// Arrange
		var runs atomic.Int64
		s, err := New("counter", 10*time.Millisecond, func(ctx context.Context) error {
			runs.Add(1)
			return nil
		})
		if err != nil {
			t.Fatalf("New returned error: %v", err)
		}
		s.Start(context.Background())
		waitForCount(t, &runs, 1)

		// Act
		s.Stop()
		after := runs.Load()
		time.Sleep(50 * time.Millisecond)

		// Assert
		if got := runs.Load(); got != after {
			t.Fatalf("task ran %d more times after Stop", got-after)
		}

		s.Stop() // second Stop must not block or panic
	})

	t.Run("SurvivesErrorAndPanic", func(t *testing.T) {

		// Arrange
		var runs atomic.Int64
		s, err := New("flaky", 10*time.Millisecond, func(ctx context.Context) error {
			switch runs.Add(1) {
			case 1:
				return errors.New("transient")
			case 2:
				panic("boom")
			}
			return nil
		})
		if err != nil {
			t.Fatalf("New returned error: %v", err)
		}

		// Act
		s.Start(context.Background())
		defer s.Stop()

		// Assert: the loop outlives both the error and the panic.
		waitForCount(t, &runs, 4)
	})

	t.Run("Restartable", func(t *testing.T) {

		// Arrange
		var runs atomic.Int64
		s, err := New("counter", 10*time.Millisecond, func(ctx context.Context) error {
			runs.Add(1)
			return nil
		})
		if err != nil {
			t.Fatalf("New returned error: %v", err)
		}
		s.Start(context.Background())
		waitForCount(t, &runs, 1)
		s.Stop()

		// Act
		resumed := runs.Load()
		s.Start(context.Background())
		defer s.Stop()

		// Assert
		waitForCount(t, &runs, resumed+1)
	})
}
