package entity

import (
	"errors"
	"fmt"
)

var (
	// ErrVerificationFailed means the submitted passcode did not match the
	// outstanding one. It is retryable against the same code until expiry.
	ErrVerificationFailed = errors.New("stepup: one-time passcode does not match")

	// ErrChannelNotSupported is returned for channels that are declared but
	// have no dispatcher implementation (currently SMS).
	ErrChannelNotSupported = errors.New("stepup: delivery channel not supported")
)

// ConfigurationError reports a malformed policy attribute. The resolver fails
// closed on it rather than guessing a value.
type ConfigurationError struct {
	Attribute string
	Value     string
	Source    string // "user", "group:<name>" or "default"
	Err       error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("stepup: malformed attribute %q = %q from %s: %v", e.Attribute, e.Value, e.Source, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// MissingAttributesError reports that the resolved channel's delivery data is
// absent for the principal. Whether it blocks the login is policy.
type MissingAttributesError struct {
	Principal string
	Channel   Channel
}

func (e *MissingAttributesError) Error() string {
	return fmt.Sprintf("stepup: principal %q has no delivery data for channel %s", e.Principal, e.Channel)
}

// DeliveryError reports a transport failure while sending a passcode. It
// blocks the login by default.
type DeliveryError struct {
	Channel Channel
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("stepup: delivery over %s failed: %v", e.Channel, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
