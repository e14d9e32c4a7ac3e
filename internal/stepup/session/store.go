// Package session holds the outstanding one-time passcode for each
// principal, in process-local memory.
//
// State is local to a single gateway instance on purpose: codes live for a
// few minutes and the host routes a login conversation to one node. There is
// no cross-node sharing.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/otp"
	"github.com/shandysiswandi/otpgate/internal/pkg/scheduler"
)

// DefaultSweepInterval is used when the configured interval is not positive.
const DefaultSweepInterval = time.Minute

// Store maps a principal to at most one live passcode record.
//
// All operations are safe for concurrent use. The mutex only ever guards map
// access; no I/O happens while it is held.
type Store struct {
	clock clock.Clocker
	sweep *scheduler.Scheduler

	mu      sync.Mutex
	records map[string]otp.Record

	shutdownOnce sync.Once
}

// New creates a store and starts its background sweep, which evicts expired
// records every interval. The caller owns the store and must call Shutdown.
func New(ctx context.Context, clk clock.Clocker, sweepInterval time.Duration) (*Store, error) {
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}

	s := &Store{
		clock:   clk,
		records: make(map[string]otp.Record),
	}

	sched, err := scheduler.New("otp-session-sweep", sweepInterval, s.evictExpired)
	if err != nil {
		return nil, err
	}

	s.sweep = sched
	s.sweep.Start(ctx)

	return s, nil
}

// Generate creates a record expiring timeout from now and stores it for the
// principal, unconditionally replacing any record already present. The
// returned record is handed to delivery by the caller, outside the store.
func (s *Store) Generate(principal string, length int, timeout time.Duration, charset otp.Charset) (otp.Record, error) {
	code, err := otp.Generate(length, charset)
	if err != nil {
		return otp.Record{}, err
	}

	rec := otp.NewRecord(code, s.clock.Now(), timeout)

	s.mu.Lock()
	s.records[principal] = rec
	s.mu.Unlock()

	return rec, nil
}

// CheckAndConsume atomically verifies candidate against the principal's
// outstanding record. On a match the record is removed, so the same code can
// never verify twice. On a mismatch the record stays intact and the user may
// retry against it until it expires.
func (s *Store) CheckAndConsume(principal, candidate string) bool {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[principal]
	if !ok {
		return false
	}

	if !rec.Matches(candidate, now) {
		return false
	}

	delete(s.records, principal)

	return true
}

// Invalidate unconditionally removes any record for the principal. The host
// calls this once a fully authenticated session is issued, so a still-valid
// leftover code cannot be replayed.
func (s *Store) Invalidate(principal string) {
	s.mu.Lock()
	delete(s.records, principal)
	s.mu.Unlock()
}

// Len returns the number of outstanding records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.records)
}

// Shutdown stops the sweep deterministically and clears all records. It is
// idempotent.
func (s *Store) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.sweep.Stop()

		s.mu.Lock()
		s.records = make(map[string]otp.Record)
		s.mu.Unlock()
	})
}

func (s *Store) evictExpired(ctx context.Context) error {
	now := s.clock.Now()
	wallStart := time.Now()

	s.mu.Lock()
	var evicted int
	for principal, rec := range s.records {
		if !rec.Valid(now) {
			delete(s.records, principal)
			evicted++
		}
	}
	remaining := len(s.records)
	s.mu.Unlock()

	if evicted > 0 {
		slog.DebugContext(ctx, "evicted expired one-time passcodes",
			"evicted", evicted, "remaining", remaining, "took", time.Since(wallStart))
	}

	return nil
}
