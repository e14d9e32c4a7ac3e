package app

import (
	"log/slog"
	"os"

	"github.com/shandysiswandi/otpgate/internal/stepup"
)

func (a *App) initModules() {
	if a.config.GetBool("modules.stepup.enabled") {
		mod, err := stepup.New(stepup.Dependency{
			Ctx:         a.ctx,
			DBConn:      a.dbConn,
			Goroutine:   a.goroutine,
			Enforcer:    a.casbin,
			Router:      a.router,
			Idempotency: a.idemp,
			Messaging:   a.messaging,
			Mail:        a.mail,
			Config:      a.config,
			Instrument:  a.ins,
			UID:         a.uid,
			UUID:        a.uuid,
			Bcrypt:      a.bcrypt,
			Clock:       a.clock,
			Validator:   a.validator,
			JWT:         a.jwt,
		})
		if err != nil {
			slog.Error("failed to init module stepup", "error", err)
			os.Exit(1)
		}

		a.stepup = mod
	}
}
