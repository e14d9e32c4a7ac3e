// Package delivery carries generated one-time passcodes to the user over the
// channel the resolved policy selected.
package delivery

import (
	"context"

	"github.com/shandysiswandi/otpgate/internal/pkg/otp"
	"github.com/shandysiswandi/otpgate/internal/stepup/entity"
)

// Sender delivers a passcode record to a single channel's targets.
type Sender interface {
	Send(ctx context.Context, principal string, target entity.DeliveryTarget, rec otp.Record) error
}

// Dispatcher routes a delivery to the Sender registered for the target's
// channel. Channels without a Sender yield DeliveryError wrapping
// ErrChannelNotSupported, so adding a transport later is a registration
// change only.
type Dispatcher struct {
	senders map[entity.Channel]Sender
}

// NewDispatcher builds a dispatcher from channel to Sender bindings.
func NewDispatcher(senders map[entity.Channel]Sender) *Dispatcher {
	m := make(map[entity.Channel]Sender, len(senders))
	for ch, s := range senders {
		m[ch] = s
	}

	return &Dispatcher{senders: m}
}

// Dispatch sends rec to the target's channel. Callers must not hold any
// session lock while dispatching; delivery does network I/O.
func (d *Dispatcher) Dispatch(ctx context.Context, principal string, target entity.DeliveryTarget, rec otp.Record) error {
	sender, ok := d.senders[target.Channel]
	if !ok {
		return &entity.DeliveryError{Channel: target.Channel, Err: entity.ErrChannelNotSupported}
	}

	if err := sender.Send(ctx, principal, target, rec); err != nil {
		return &entity.DeliveryError{Channel: target.Channel, Err: err}
	}

	return nil
}
