package usecase

import (
	"context"
	"log/slog"

	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
)

type InvalidatePrincipalInput struct {
	Principal string `validate:"required"`
}

// InvalidatePrincipal is the operator escape hatch: it discards any
// outstanding passcode for the principal so the next login starts a fresh
// challenge. Requires an authenticated caller allowed to administer step-up.
func (s *Usecase) InvalidatePrincipal(ctx context.Context, in InvalidatePrincipalInput) error {
	ctx, span := s.startSpan(ctx, "InvalidatePrincipal")
	defer span.End()

	clm, err := s.authenticatedAndAuthorized(ctx, "stepup", "write")
	if err != nil {
		return err
	}

	if err := s.validator.Validate(in); err != nil {
		return goerror.NewInvalidInput(err)
	}

	s.sessions.Invalidate(in.Principal)

	slog.InfoContext(ctx, "operator invalidated passcode",
		"principal", in.Principal, "operator", clm.Subject)

	s.publishResolved(ctx, in.Principal, "invalidated")

	return nil
}
