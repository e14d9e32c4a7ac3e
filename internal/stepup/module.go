package stepup

import (
	"context"

	"github.com/casbin/casbin/v3"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/goroutine"
	"github.com/shandysiswandi/otpgate/internal/pkg/hash"
	"github.com/shandysiswandi/otpgate/internal/pkg/idempotency"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/jwt"
	"github.com/shandysiswandi/otpgate/internal/pkg/mail"
	"github.com/shandysiswandi/otpgate/internal/pkg/messaging"
	"github.com/shandysiswandi/otpgate/internal/pkg/router"
	"github.com/shandysiswandi/otpgate/internal/pkg/uid"
	"github.com/shandysiswandi/otpgate/internal/pkg/validator"
	"github.com/shandysiswandi/otpgate/internal/stepup/entity"
	"github.com/shandysiswandi/otpgate/internal/stepup/inbound"
	"github.com/shandysiswandi/otpgate/internal/stepup/outbound/db"
	"github.com/shandysiswandi/otpgate/internal/stepup/outbound/delivery"
	"github.com/shandysiswandi/otpgate/internal/stepup/outbound/mq"
	"github.com/shandysiswandi/otpgate/internal/stepup/policy"
	"github.com/shandysiswandi/otpgate/internal/stepup/session"
	"github.com/shandysiswandi/otpgate/internal/stepup/usecase"
)

type Dependency struct {
	Ctx         context.Context            `validate:"required"`
	DBConn      *pgxpool.Pool              `validate:"required"`
	Goroutine   *goroutine.Manager         `validate:"required"`
	Enforcer    *casbin.Enforcer           `validate:"required"`
	Router      *router.Router             `validate:"required"`
	Idempotency idempotency.Idempotency    `validate:"required"`
	Messaging   messaging.Messaging        `validate:"required"`
	Mail        mail.Mail                  `validate:"required"`
	Config      config.Config              `validate:"required"`
	Instrument  instrument.Instrumentation `validate:"required"`
	UID         uid.NumberID               `validate:"required"`
	UUID        uid.StringID               `validate:"required"`
	Bcrypt      hash.Hash                  `validate:"required"`
	Clock       clock.Clocker              `validate:"required"`
	Validator   validator.Validator        `validate:"required"`
	JWT         jwt.JWT                    `validate:"required"`
}

// Module owns the in-memory session store; callers must Close it on shutdown
// so the sweep goroutine stops deterministically.
type Module struct {
	sessions *session.Store
}

func New(dep Dependency) (*Module, error) {
	if err := dep.Validator.Validate(dep); err != nil {
		return nil, err
	}

	sessions, err := session.New(dep.Ctx, dep.Clock, dep.Config.GetSecond("modules.stepup.sweep_interval_seconds"))
	if err != nil {
		return nil, err
	}

	directory := db.NewDB(dep.DBConn, dep.Instrument)
	resolver := policy.NewResolver(directory, dep.Config)
	repoMsg := mq.NewMessaging(dep.Messaging, dep.Instrument)

	email, err := delivery.NewEmail(dep.Mail, dep.Idempotency, dep.Instrument,
		dep.Config.GetString("modules.stepup.email_subject"))
	if err != nil {
		sessions.Shutdown()
		return nil, err
	}

	dispatcher := delivery.NewDispatcher(map[entity.Channel]delivery.Sender{
		entity.ChannelEmail: email,
		entity.ChannelSMS:   delivery.NewSMS(),
	})

	uc := usecase.New(usecase.Dependency{
		RepoDB:        directory,
		RepoMessaging: repoMsg,
		Sessions:      sessions,
		Resolver:      resolver,
		Dispatcher:    dispatcher,
		Validator:     dep.Validator,
		Config:        dep.Config,
		UID:           dep.UID,
		Bcrypt:        dep.Bcrypt,
		Clock:         dep.Clock,
		JWT:           dep.JWT,
		Instrument:    dep.Instrument,
		Enforcer:      dep.Enforcer,
		Goroutine:     dep.Goroutine,
	})

	inbound.RegisterHTTPEndpoint(dep.Router, uc)
	inbound.RegisterMQConsumer(dep.Ctx, dep.Config, dep.Goroutine, dep.Messaging, dep.UUID, uc, dep.Instrument)

	return &Module{sessions: sessions}, nil
}

// Close stops the session store.
func (m *Module) Close() error {
	m.sessions.Shutdown()

	return nil
}
