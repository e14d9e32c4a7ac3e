package usecase

import (
	"context"
	"log/slog"

	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
)

type AuthSuccessInput struct {
	Principal string `validate:"required"`
	SessionID string
}

// OnAuthenticationSuccess drops any outstanding passcode for a principal that
// just obtained a fully authenticated session, so a still-valid code cannot
// be replayed afterwards. It fires from the host gateway's success hook and
// from the auth_success bus consumer; invalidating an absent record is a
// no-op, so the two paths never conflict.
func (s *Usecase) OnAuthenticationSuccess(ctx context.Context, in AuthSuccessInput) error {
	ctx, span := s.startSpan(ctx, "OnAuthenticationSuccess")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return goerror.NewInvalidInput(err)
	}

	s.sessions.Invalidate(in.Principal)

	slog.InfoContext(ctx, "invalidated passcode after authenticated session",
		"principal", in.Principal, "session_id", in.SessionID)

	s.publishResolved(ctx, in.Principal, "invalidated")

	return nil
}
