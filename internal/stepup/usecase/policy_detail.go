package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/otp"
	"github.com/shandysiswandi/otpgate/internal/stepup/entity"
)

type PolicyDetailInput struct {
	Principal string `validate:"required"`
}

type PolicyDetailOutput struct {
	Principal string
	Disabled  bool
	Channel   entity.Channel
	Timeout   time.Duration
	Length    int
	Charset   otp.Charset
	// HasDeliveryTarget reports whether the resolved channel has somewhere to
	// send a code for this principal.
	HasDeliveryTarget bool
}

// PolicyDetail resolves and returns the effective policy for a principal, for
// operators debugging precedence between user attributes, group attributes,
// and system defaults. Requires an authenticated caller allowed to read
// step-up state.
func (s *Usecase) PolicyDetail(ctx context.Context, in PolicyDetailInput) (*PolicyDetailOutput, error) {
	ctx, span := s.startSpan(ctx, "PolicyDetail")
	defer span.End()

	if _, err := s.authenticatedAndAuthorized(ctx, "stepup", "read"); err != nil {
		return nil, err
	}

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	principal, err := s.repoDB.GetPrincipal(ctx, in.Principal)
	if errors.Is(err, goerror.ErrNotFound) {
		return nil, goerror.NewBusiness("principal not found", goerror.CodeNotFound)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get principal", "principal", in.Principal, "error", err)
		return nil, goerror.NewServer(err)
	}

	pol, err := s.resolver.Resolve(ctx, principal)
	if err != nil {
		var cfgErr *entity.ConfigurationError
		if errors.As(err, &cfgErr) {
			return nil, goerror.NewInvalidFormat(cfgErr.Error())
		}

		slog.ErrorContext(ctx, "failed to resolve passcode policy", "principal", in.Principal, "error", err)

		return nil, goerror.NewServer(err)
	}

	_, hasTarget := s.resolver.DeliveryTarget(principal, pol.Channel)

	return &PolicyDetailOutput{
		Principal:         principal.ID,
		Disabled:          pol.Disabled,
		Channel:           pol.Channel,
		Timeout:           pol.Timeout,
		Length:            pol.Length,
		Charset:           pol.Charset,
		HasDeliveryTarget: hasTarget,
	}, nil
}
