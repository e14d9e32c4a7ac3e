package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/otp"
)

func newTestStore(t *testing.T) (*Store, *clock.Manual) {
	t.Helper()

	clk := clock.NewManual(time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC))

	// A long sweep interval keeps the background goroutine out of the way;
	// eviction is driven directly where a test needs it.
	s, err := New(context.Background(), clk, time.Hour)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	t.Cleanup(s.Shutdown)

	return s, clk
}

func TestStoreGenerate(t *testing.T) {

	t.Run("OneRecordPerPrincipal", func(t *testing.T) {

		// Arrange
		s, _ := newTestStore(t)

		// Act
		first, err := s.Generate("alice", 6, 5*time.Minute, otp.CharsetNumeric)
		if err != nil {
			t.Fatalf("Generate returned error: %v", err)
		}
		second, err := s.Generate("alice", 6, 5*time.Minute, otp.CharsetNumeric)
		if err != nil {
			t.Fatalf("Generate returned error: %v", err)
		}

		// Assert: the second challenge replaces the first outright.
		if s.Len() != 1 {
			t.Fatalf("store holds %d records, want 1", s.Len())
		}
		if first.Code != second.Code && s.CheckAndConsume("alice", first.Code) {
			t.Fatalf("replaced code still verified")
		}
		if !s.CheckAndConsume("alice", second.Code) {
			t.Fatalf("latest code did not verify")
		}
	})

	t.Run("PropagatesGeneratorError", func(t *testing.T) {

		// Arrange
		s, _ := newTestStore(t)

		// Act
		_, err := s.Generate("alice", 0, 5*time.Minute, otp.CharsetNumeric)

		// Assert
		if err == nil {
			t.Fatalf("expected error for zero length")
		}
		if s.Len() != 0 {
			t.Fatalf("failed generation must not leave a record")
		}
	})
}

func TestStoreCheckAndConsume(t *testing.T) {

	t.Run("ConsumeOnce", func(t *testing.T) {

		// Arrange
		s, _ := newTestStore(t)
		rec, err := s.Generate("alice", 6, 5*time.Minute, otp.CharsetNumeric)
		if err != nil {
			t.Fatalf("Generate returned error: %v", err)
		}

		// Act / Assert
		if !s.CheckAndConsume("alice", rec.Code) {
			t.Fatalf("first submission of the correct code must verify")
		}
		if s.CheckAndConsume("alice", rec.Code) {
			t.Fatalf("a consumed code must never verify twice")
		}
	})

	t.Run("MismatchKeepsRecord", func(t *testing.T) {

		// Arrange
		s, _ := newTestStore(t)
		rec, err := s.Generate("alice", 6, 5*time.Minute, otp.CharsetNumeric)
		if err != nil {
			t.Fatalf("Generate returned error: %v", err)
		}

		// Act / Assert: a wrong guess does not burn the outstanding code.
		if s.CheckAndConsume("alice", "wrong!") {
			t.Fatalf("wrong code must not verify")
		}
		if !s.CheckAndConsume("alice", rec.Code) {
			t.Fatalf("correct code must still verify after a wrong guess")
		}
	})

	t.Run("ExpiredCodeRejectedAndRetained", func(t *testing.T) {

		// Arrange
		s, clk := newTestStore(t)
		rec, err := s.Generate("alice", 6, 5*time.Minute, otp.CharsetNumeric)
		if err != nil {
			t.Fatalf("Generate returned error: %v", err)
		}

		// Act
		clk.Advance(5 * time.Minute)

		// Assert: expiry is exclusive, so exactly at the deadline is too late.
		if s.CheckAndConsume("alice", rec.Code) {
			t.Fatalf("expired code must not verify")
		}
		if s.Len() != 1 {
			t.Fatalf("expired record is removed by the sweep, not by a failed check")
		}
	})

	t.Run("JustBeforeExpiryVerifies", func(t *testing.T) {

		// Arrange
		s, clk := newTestStore(t)
		rec, err := s.Generate("alice", 6, 5*time.Minute, otp.CharsetNumeric)
		if err != nil {
			t.Fatalf("Generate returned error: %v", err)
		}

		// Act
		clk.Advance(4*time.Minute + 59*time.Second)

		// Assert
		if !s.CheckAndConsume("alice", rec.Code) {
			t.Fatalf("code one second before expiry must verify")
		}
	})

	t.Run("UnknownPrincipal", func(t *testing.T) {

		s, _ := newTestStore(t)

		if s.CheckAndConsume("nobody", "123456") {
			t.Fatalf("principal without a record must not verify")
		}
	})
}

func TestStoreInvalidate(t *testing.T) {

	// Arrange
	s, _ := newTestStore(t)
	rec, err := s.Generate("alice", 6, 5*time.Minute, otp.CharsetNumeric)
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}

	// Act
	s.Invalidate("alice")
	s.Invalidate("alice") // absent principal is a no-op

	// Assert
	if s.CheckAndConsume("alice", rec.Code) {
		t.Fatalf("invalidated code must not verify")
	}
	if s.Len() != 0 {
		t.Fatalf("store holds %d records, want 0", s.Len())
	}
}

func TestStoreEvictExpired(t *testing.T) {

	// Arrange
	s, clk := newTestStore(t)
	if _, err := s.Generate("alice", 6, time.Minute, otp.CharsetNumeric); err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	live, err := s.Generate("bob", 6, time.Hour, otp.CharsetNumeric)
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}

	// Act
	clk.Advance(2 * time.Minute)
	if err := s.evictExpired(context.Background()); err != nil {
		t.Fatalf("evictExpired returned error: %v", err)
	}

	// Assert
	if s.Len() != 1 {
		t.Fatalf("store holds %d records after sweep, want 1", s.Len())
	}
	if !s.CheckAndConsume("bob", live.Code) {
		t.Fatalf("unexpired record must survive the sweep")
	}
}

func TestStoreConcurrentUse(t *testing.T) {

	// Arrange
	s, _ := newTestStore(t)

	// Act: hammer the store from many goroutines; the race detector is the
	// real assertion here.
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			principal := string(rune('a' + worker))
			for range 50 {
				rec, err := s.Generate(principal, 6, time.Minute, otp.CharsetNumeric)
				if err != nil {
					t.Errorf("Generate returned error: %v", err)
					return
				}
				s.CheckAndConsume(principal, rec.Code)
				s.Invalidate(principal)
			}
		}(i)
	}
	wg.Wait()

	// Assert
	if s.Len() != 0 {
		t.Fatalf("store holds %d records, want 0", s.Len())
	}
}

func TestStoreConcurrentGenerateSamePrincipal(t *testing.T) {

	// Arrange
	s, _ := newTestStore(t)

	// Act: racing Generates for one principal must still leave one record.
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Generate("alice", 6, time.Minute, otp.CharsetNumeric); err != nil {
				t.Errorf("Generate returned error: %v", err)
			}
		}()
	}
	wg.Wait()

	// Assert
	if s.Len() != 1 {
		t.Fatalf("store holds %d records, want exactly 1", s.Len())
	}
}

func TestStoreShutdown(t *testing.T) {

	// Arrange
	s, _ := newTestStore(t)
	if _, err := s.Generate("alice", 6, time.Minute, otp.CharsetNumeric); err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}

	// Act
	s.Shutdown()
	s.Shutdown() // idempotent

	// Assert
	if s.Len() != 0 {
		t.Fatalf("Shutdown must clear all records")
	}
}
