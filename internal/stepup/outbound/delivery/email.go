package delivery

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel/codes"

	"github.com/shandysiswandi/otpgate/internal/pkg/idempotency"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/mail"
	"github.com/shandysiswandi/otpgate/internal/pkg/otp"
	"github.com/shandysiswandi/otpgate/internal/stepup/entity"
)

const defaultEmailSubject = "Your one-time access code"

//nolint:lll
const defaultEmailBody = `<p>Hello {{.Principal}},</p>
<p>Your one-time access code is:</p>
<p style="font-size:1.5em;letter-spacing:0.2em;"><strong>{{.Code}}</strong></p>
<p>It expires in {{.ExpiresIn}}. If you did not request this code, you can ignore this message.</p>`

// Email sends passcodes over SMTP with a small retry budget for transient
// failures, and dedupes redeliveries of the same code through the shared
// idempotency tracker. Dedupe is best effort: if the tracker is unreachable
// the send proceeds anyway, since an extra email is cheaper than a login
// stuck without its code.
type Email struct {
	client  mail.Mail
	idem    idempotency.Idempotency
	ins     instrument.Instrumentation
	tpl     *template.Template
	subject string
}

// NewEmail constructs the email sender. Subject falls back to a default when
// empty.
func NewEmail(client mail.Mail, idem idempotency.Idempotency, ins instrument.Instrumentation, subject string) (*Email, error) {
	tpl, err := template.New("otp-email").Parse(defaultEmailBody)
	if err != nil {
		return nil, err
	}

	if subject == "" {
		subject = defaultEmailSubject
	}

	return &Email{
		client:  client,
		idem:    idem,
		ins:     ins,
		tpl:     tpl,
		subject: subject,
	}, nil
}

// Send mails rec's code to every resolved address for the principal.
func (e *Email) Send(ctx context.Context, principal string, target entity.DeliveryTarget, rec otp.Record) error {
	ctx, span := e.ins.Tracer("stepup.outbound.delivery").Start(ctx, "Email.Send")
	defer span.End()

	body, err := e.render(principal, rec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return err
	}

	msg := mail.Message{
		To:       target.Emails,
		Subject:  e.subject,
		HTMLBody: body,
	}

	send := func(ctx context.Context) error {
		if err := e.sendWithRetry(ctx, msg); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())

			return err
		}

		return nil
	}

	if e.idem == nil {
		return send(ctx)
	}

	// Exec also surfaces tracker storage errors; sendErr tells the send's
	// own outcome apart from them.
	var attempted bool
	var sendErr error

	tracked := func(ctx context.Context) error {
		attempted = true
		sendErr = send(ctx)

		return sendErr
	}

	err = e.idem.Exec(ctx, dispatchKey(principal, rec), tracked)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, idempotency.ErrAlreadyCompleted), errors.Is(err, idempotency.ErrAlreadyInProgress):
		// Same code already sent (or sending); duplicate suppressed.
		return nil
	case errors.Is(err, idempotency.ErrAlreadyFailed):
		return send(ctx)
	case sendErr != nil:
		return sendErr
	case attempted:
		// Mail went out; only the tracker bookkeeping failed.
		slog.WarnContext(ctx, "idempotency tracker unavailable after send", "principal", principal, "error", err)
		return nil
	default:
		// Tracker outage before the send. Dedupe is best effort; an extra
		// email is cheaper than a login stuck without its code.
		slog.WarnContext(ctx, "idempotency tracker unavailable, sending without dedupe", "principal", principal, "error", err)
		return send(ctx)
	}
}

func (e *Email) sendWithRetry(ctx context.Context, msg mail.Message) error {
	b := retry.NewFibonacci(500 * time.Millisecond)
	b = retry.WithMaxRetries(2, b)

	return retry.Do(ctx, b, func(ctx context.Context) error {
		if err := e.client.Send(ctx, msg); err != nil {
			return retry.RetryableError(err)
		}

		return nil
	})
}

func (e *Email) render(principal string, rec otp.Record) (string, error) {
	var buf bytes.Buffer

	err := e.tpl.Execute(&buf, map[string]string{
		"Principal": principal,
		"Code":      rec.Code,
		"ExpiresIn": rec.ExpiresAt.Sub(rec.IssuedAt).Round(time.Second).String(),
	})
	if err != nil {
		return "", err
	}

	return buf.String(), nil
}

// dispatchKey identifies one (principal, code) delivery without putting the
// code itself in the tracker.
func dispatchKey(principal string, rec otp.Record) string {
	sum := sha256.Sum256([]byte(principal + ":" + rec.Code))

	return fmt.Sprintf("otp:dispatch:%s", hex.EncodeToString(sum[:8]))
}
