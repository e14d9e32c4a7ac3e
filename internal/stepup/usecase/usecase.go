package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/casbin/casbin/v3"
	"go.opentelemetry.io/otel/trace"

	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/goroutine"
	"github.com/shandysiswandi/otpgate/internal/pkg/hash"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/jwt"
	"github.com/shandysiswandi/otpgate/internal/pkg/otp"
	"github.com/shandysiswandi/otpgate/internal/pkg/uid"
	"github.com/shandysiswandi/otpgate/internal/pkg/validator"
	"github.com/shandysiswandi/otpgate/internal/stepup/entity"
)

// ChallengeIssuedEvent announces a generated challenge to the message bus.
// ChallengeID correlates logs and events for one challenge; the code itself
// never leaves the process except through delivery.
type ChallengeIssuedEvent struct {
	ChallengeID int64
	Principal   string
	Channel     string
	ExpiresAt   time.Time
}

// ChallengeResolvedEvent announces a challenge's terminal outcome.
type ChallengeResolvedEvent struct {
	Principal string
	Outcome   string
}

type repoMessaging interface {
	PublishChallengeIssued(ctx context.Context, msg ChallengeIssuedEvent) error
	PublishChallengeResolved(ctx context.Context, msg ChallengeResolvedEvent) error
}

type repoDB interface {
	GetPrincipal(ctx context.Context, username string) (*entity.Principal, error)
	GetCredential(ctx context.Context, username string) (string, error)
}

type sessions interface {
	Generate(principal string, length int, timeout time.Duration, charset otp.Charset) (otp.Record, error)
	CheckAndConsume(principal, candidate string) bool
	Invalidate(principal string)
}

type policyResolver interface {
	Resolve(ctx context.Context, p *entity.Principal) (*entity.Policy, error)
	MissingAction() entity.MissingAction
	DeliveryTarget(p *entity.Principal, ch entity.Channel) (entity.DeliveryTarget, bool)
}

type dispatcher interface {
	Dispatch(ctx context.Context, principal string, target entity.DeliveryTarget, rec otp.Record) error
}

type Usecase struct {
	repoDB        repoDB
	repoMessaging repoMessaging
	sessions      sessions
	resolver      policyResolver
	dispatcher    dispatcher
	validator     validator.Validator
	cfg           config.Config
	uid           uid.NumberID
	bcrypt        hash.Hash
	clock         clock.Clocker
	jwt           jwt.JWT
	ins           instrument.Instrumentation
	enforcer      *casbin.Enforcer
	goroutine     *goroutine.Manager
}

type Dependency struct {
	RepoDB        repoDB
	RepoMessaging repoMessaging
	Sessions      sessions
	Resolver      policyResolver
	Dispatcher    dispatcher
	Validator     validator.Validator
	Config        config.Config
	UID           uid.NumberID
	Bcrypt        hash.Hash
	Clock         clock.Clocker
	JWT           jwt.JWT
	Instrument    instrument.Instrumentation
	Enforcer      *casbin.Enforcer
	Goroutine     *goroutine.Manager
}

func New(dep Dependency) *Usecase {
	return &Usecase{
		repoDB:        dep.RepoDB,
		repoMessaging: dep.RepoMessaging,
		sessions:      dep.Sessions,
		resolver:      dep.Resolver,
		dispatcher:    dep.Dispatcher,
		validator:     dep.Validator,
		cfg:           dep.Config,
		uid:           dep.UID,
		bcrypt:        dep.Bcrypt,
		clock:         dep.Clock,
		jwt:           dep.JWT,
		ins:           dep.Instrument,
		enforcer:      dep.Enforcer,
		goroutine:     dep.Goroutine,
	}
}

func (s *Usecase) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("stepup.usecase").Start(ctx, name)
}

func (s *Usecase) authenticatedAndAuthorized(ctx context.Context, obj, act string) (*jwt.Claims, error) {
	clm := jwt.GetAuth(ctx)
	if clm == nil {
		return nil, goerror.NewBusiness("Authentication required", goerror.CodeUnauthorized)
	}

	ok, err := s.enforcer.Enforce(clm.Subject, obj, act)
	if err != nil {
		slog.ErrorContext(ctx, "failed to check authorization", "principal", clm.Subject, "error", err)
		return nil, goerror.NewServer(err)
	}

	if !ok {
		return nil, goerror.NewBusiness("Account not allowed", goerror.CodeForbidden)
	}

	return clm, nil
}

// publishResolved reports a challenge outcome on the bus without blocking the
// login path; publish failures are logged and dropped.
func (s *Usecase) publishResolved(ctx context.Context, principal, outcome string) {
	if s.repoMessaging == nil {
		return
	}

	s.goroutine.Go(ctx, func(pCtx context.Context) error {
		if err := s.repoMessaging.PublishChallengeResolved(pCtx, ChallengeResolvedEvent{
			Principal: principal,
			Outcome:   outcome,
		}); err != nil {
			slog.ErrorContext(pCtx, "failed to publish challenge resolved", "principal", principal, "outcome", outcome, "error", err)
		}

		return nil
	})
}
