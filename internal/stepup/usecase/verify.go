package usecase

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/stepup/entity"
)

type VerifyUserInput struct {
	Principal string `validate:"required"`
	// Response is the submitted passcode; meaningful only when Submitted.
	Response string
	// Submitted distinguishes "no code entered yet" from an empty code.
	Submitted bool
}

type VerifyUserOutput struct {
	Status entity.VerifyStatus
	// FieldName names the form field to prompt with when Status is NeedsInput.
	FieldName string
	// Channel is the delivery channel used for the prompt hint.
	Channel entity.Channel
	// Reason explains a rejection in operator terms; never shown verbatim to
	// the end user.
	Reason string
}

// VerifyUser drives one turn of the step-up conversation for a principal that
// already passed primary authentication.
//
// Without a submitted code it issues a fresh challenge, delivers it, and asks
// for input. With one it checks the code atomically against the outstanding
// record, consuming it only on success. Principals whose resolved policy is
// disabled pass straight through.
func (s *Usecase) VerifyUser(ctx context.Context, in VerifyUserInput) (*VerifyUserOutput, error) {
	ctx, span := s.startSpan(ctx, "VerifyUser")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	principal, err := s.repoDB.GetPrincipal(ctx, in.Principal)
	if errors.Is(err, goerror.ErrNotFound) {
		slog.WarnContext(ctx, "principal not found in directory", "principal", in.Principal)
		return nil, goerror.NewBusiness("unknown principal", goerror.CodeUnauthorized)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get principal", "principal", in.Principal, "error", err)
		return nil, goerror.NewServer(err)
	}

	pol, err := s.resolver.Resolve(ctx, principal)
	if err != nil {
		// Malformed policy fails closed: nobody gets in past a config typo.
		slog.ErrorContext(ctx, "failed to resolve passcode policy", "principal", in.Principal, "error", err)
		return nil, goerror.NewServer(err)
	}

	if pol.Disabled {
		slog.InfoContext(ctx, "passcode challenge disabled by policy", "principal", in.Principal)
		return &VerifyUserOutput{Status: entity.VerifyStatusVerified}, nil
	}

	if !in.Submitted {
		return s.issueChallenge(ctx, principal, pol)
	}

	if !s.sessions.CheckAndConsume(in.Principal, in.Response) {
		slog.WarnContext(ctx, "passcode rejected", "principal", in.Principal)
		s.publishResolved(ctx, in.Principal, "rejected")

		return &VerifyUserOutput{
			Status: entity.VerifyStatusRejected,
			Reason: entity.ErrVerificationFailed.Error(),
		}, nil
	}

	s.publishResolved(ctx, in.Principal, "verified")

	return &VerifyUserOutput{Status: entity.VerifyStatusVerified}, nil
}

func (s *Usecase) issueChallenge(ctx context.Context, principal *entity.Principal, pol *entity.Policy) (*VerifyUserOutput, error) {
	target, ok := s.resolver.DeliveryTarget(principal, pol.Channel)
	if !ok {
		missErr := &entity.MissingAttributesError{Principal: principal.ID, Channel: pol.Channel}

		if s.resolver.MissingAction() == entity.MissingActionAllow {
			slog.WarnContext(ctx, "principal lacks delivery attributes, allowing through",
				"principal", principal.ID, "channel", pol.Channel.String())
			return &VerifyUserOutput{Status: entity.VerifyStatusVerified}, nil
		}

		slog.WarnContext(ctx, "principal lacks delivery attributes, blocking",
			"principal", principal.ID, "channel", pol.Channel.String())

		return &VerifyUserOutput{
			Status: entity.VerifyStatusRejected,
			Reason: missErr.Error(),
		}, nil
	}

	rec, err := s.sessions.Generate(principal.ID, pol.Length, pol.Timeout, pol.Charset)
	if err != nil {
		slog.ErrorContext(ctx, "failed to generate passcode", "principal", principal.ID, "error", err)
		return nil, goerror.NewServer(err)
	}

	challengeID := s.uid.Generate()

	slog.InfoContext(ctx, "passcode challenge issued",
		"challenge_id", challengeID, "principal", principal.ID,
		"channel", pol.Channel.String(), "expires_at", rec.ExpiresAt)

	// Delivery happens outside any session lock; the record is already
	// stored so a fast responder cannot race the prompt.
	if err := s.dispatcher.Dispatch(ctx, principal.ID, target, rec); err != nil {
		// A code nobody received must not stay redeemable.
		s.sessions.Invalidate(principal.ID)

		slog.ErrorContext(ctx, "failed to deliver passcode",
			"principal", principal.ID, "channel", pol.Channel.String(), "error", err)

		return nil, goerror.NewServer(err)
	}

	if s.repoMessaging != nil {
		s.goroutine.Go(ctx, func(pCtx context.Context) error {
			if err := s.repoMessaging.PublishChallengeIssued(pCtx, ChallengeIssuedEvent{
				ChallengeID: challengeID,
				Principal:   principal.ID,
				Channel:     pol.Channel.String(),
				ExpiresAt:   rec.ExpiresAt,
			}); err != nil {
				slog.ErrorContext(pCtx, "failed to publish challenge issued", "principal", principal.ID, "error", err)
			}

			return nil
		})
	}

	return &VerifyUserOutput{
		Status:    entity.VerifyStatusNeedsInput,
		FieldName: entity.ChallengeFieldName,
		Channel:   pol.Channel,
	}, nil
}
