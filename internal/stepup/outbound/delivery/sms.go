package delivery

import (
	"context"

	"github.com/shandysiswandi/otpgate/internal/pkg/otp"
	"github.com/shandysiswandi/otpgate/internal/stepup/entity"
)

// SMS is a placeholder sender for the SMS channel. Policies may select SMS
// and directory records may carry phone numbers, but no gateway integration
// exists yet, so every send is rejected. Registering the type keeps the
// channel wiring visible in one place for when a provider lands.
type SMS struct{}

// NewSMS constructs the placeholder SMS sender.
func NewSMS() *SMS {
	return &SMS{}
}

// Send always fails with ErrChannelNotSupported.
func (s *SMS) Send(context.Context, string, entity.DeliveryTarget, otp.Record) error {
	return entity.ErrChannelNotSupported
}
