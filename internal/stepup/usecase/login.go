package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/stepup/entity"
)

type LoginInput struct {
	Username string `validate:"required"`
	Password string `validate:"required"`
	// Passcode carries the one-time code on the second round trip.
	Passcode string
	// PasscodeSubmitted distinguishes the first round trip from a retry with
	// an empty code.
	PasscodeSubmitted bool
}

type LoginOutput struct {
	// ChallengePending is true when the caller must re-submit with a passcode.
	ChallengePending bool
	// FieldName names the form field to render for the passcode.
	FieldName string
	// Channel hints which transport carried the code.
	Channel string
	// AccessToken is the signed session token, set once verification passes.
	AccessToken string
}

// Login authenticates the primary credential, then runs the step-up
// conversation. Both round trips of a challenged login land here: the first
// returns ChallengePending, the second carries the passcode and, on success,
// yields an access token.
func (s *Usecase) Login(ctx context.Context, in LoginInput) (*LoginOutput, error) {
	ctx, span := s.startSpan(ctx, "Login")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	username := strings.TrimSpace(in.Username)

	hashed, err := s.repoDB.GetCredential(ctx, username)
	if errors.Is(err, goerror.ErrNotFound) {
		slog.WarnContext(ctx, "principal not found for login", "principal", username)
		return nil, goerror.NewBusiness("invalid username or password", goerror.CodeUnauthorized)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get credential", "principal", username, "error", err)
		return nil, goerror.NewServer(err)
	}

	if !s.bcrypt.Verify(hashed, in.Password) {
		slog.WarnContext(ctx, "password does not match", "principal", username)
		return nil, goerror.NewBusiness("invalid username or password", goerror.CodeUnauthorized)
	}

	out, err := s.VerifyUser(ctx, VerifyUserInput{
		Principal: username,
		Response:  in.Passcode,
		Submitted: in.PasscodeSubmitted,
	})
	if err != nil {
		return nil, err
	}

	switch out.Status {
	case entity.VerifyStatusNeedsInput:
		return &LoginOutput{
			ChallengePending: true,
			FieldName:        out.FieldName,
			Channel:          out.Channel.String(),
		}, nil

	case entity.VerifyStatusVerified:
		return s.issueToken(ctx, username)

	default:
		return nil, goerror.NewBusiness("one-time passcode verification failed", goerror.CodeUnauthorized)
	}
}

func (s *Usecase) issueToken(ctx context.Context, username string) (*LoginOutput, error) {
	var email string

	principal, err := s.repoDB.GetPrincipal(ctx, username)
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get principal for token", "principal", username, "error", err)
	} else if v, ok := principal.Attr(entity.AttrPrimaryEmail); ok {
		email = v
	}

	token, err := s.jwt.Generate(username, email)
	if err != nil {
		slog.ErrorContext(ctx, "failed to generate access jwt token", "principal", username, "error", err)
		return nil, goerror.NewServer(err)
	}

	return &LoginOutput{AccessToken: token}, nil
}
