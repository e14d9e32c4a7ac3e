package delivery

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shandysiswandi/otpgate/internal/pkg/idempotency"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/mail"
	"github.com/shandysiswandi/otpgate/internal/pkg/otp"
	"github.com/shandysiswandi/otpgate/internal/stepup/entity"
)

type fakeMail struct {
	err   error
	sent  []mail.Message
	calls int
}

func (f *fakeMail) Send(ctx context.Context, msg mail.Message) error {
	f.calls++
	if f.err != nil {
		return f.err
	}

	f.sent = append(f.sent, msg)

	return nil
}

func (f *fakeMail) Close() error { return nil }

// fakeIdempotency scripts the tracker outcome. A scripted error is returned
// without running fn unless runFn is set, which models the tracker failing
// its bookkeeping after the wrapped work already ran.
type fakeIdempotency struct {
	idempotency.Idempotency

	err   error
	runFn bool
	execs int
}

func (f *fakeIdempotency) Exec(ctx context.Context, key string, fn func(context.Context) error, opts ...idempotency.Option) error {
	f.execs++

	if f.err != nil {
		if f.runFn {
			if err := fn(ctx); err != nil {
				return err
			}
		}

		return f.err
	}

	return fn(ctx)
}

func testRecord() otp.Record {
	issued := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	return otp.NewRecord("482913", issued, 5*time.Minute)
}

func emailTarget() entity.DeliveryTarget {
	return entity.DeliveryTarget{
		Channel: entity.ChannelEmail,
		Emails:  []string{"alice@example.com", "alice@backup.example.com"},
	}
}

func TestEmailSend(t *testing.T) {

	ctx := context.Background()

	t.Run("RendersCodeAndExpiry", func(t *testing.T) {

		// Arrange
		client := &fakeMail{}
		e, err := NewEmail(client, nil, instrument.NewNoop(), "")
		if err != nil {
			t.Fatalf("NewEmail returned error: %v", err)
		}

		// Act
		if err := e.Send(ctx, "alice", emailTarget(), testRecord()); err != nil {
			t.Fatalf("Send returned error: %v", err)
		}

		// Assert
		if len(client.sent) != 1 {
			t.Fatalf("sent %d messages, want 1", len(client.sent))
		}
		msg := client.sent[0]
		if msg.Subject != defaultEmailSubject {
			t.Fatalf("subject = %q, want the default", msg.Subject)
		}
		if len(msg.To) != 2 {
			t.Fatalf("recipients = %v, want both resolved addresses", msg.To)
		}
		if !strings.Contains(msg.HTMLBody, "482913") {
			t.Fatalf("body does not contain the code: %q", msg.HTMLBody)
		}
		if !strings.Contains(msg.HTMLBody, "5m0s") {
			t.Fatalf("body does not mention the validity window: %q", msg.HTMLBody)
		}
	})

	t.Run("CustomSubject", func(t *testing.T) {

		// Arrange
		client := &fakeMail{}
		e, err := NewEmail(client, nil, instrument.NewNoop(), "Access code")
		if err != nil {
			t.Fatalf("NewEmail returned error: %v", err)
		}

		// Act
		if err := e.Send(ctx, "alice", emailTarget(), testRecord()); err != nil {
			t.Fatalf("Send returned error: %v", err)
		}

		// Assert
		if client.sent[0].Subject != "Access code" {
			t.Fatalf("subject = %q, want the configured one", client.sent[0].Subject)
		}
	})

	t.Run("DuplicateDeliverySuppressed", func(t *testing.T) {

		// Arrange
		client := &fakeMail{}
		idem := &fakeIdempotency{err: idempotency.ErrAlreadyCompleted}
		e, err := NewEmail(client, idem, instrument.NewNoop(), "")
		if err != nil {
			t.Fatalf("NewEmail returned error: %v", err)
		}

		// Act
		sendErr := e.Send(ctx, "alice", emailTarget(), testRecord())

		// Assert: an already-delivered code is not an error and not re-sent.
		if sendErr != nil {
			t.Fatalf("Send returned error: %v", sendErr)
		}
		if len(client.sent) != 0 {
			t.Fatalf("duplicate delivery was not suppressed")
		}
	})

	t.Run("PreviousFailureRetriesSend", func(t *testing.T) {

		// Arrange
		client := &fakeMail{}
		idem := &fakeIdempotency{err: idempotency.ErrAlreadyFailed}
		e, err := NewEmail(client, idem, instrument.NewNoop(), "")
		if err != nil {
			t.Fatalf("NewEmail returned error: %v", err)
		}

		// Act
		sendErr := e.Send(ctx, "alice", emailTarget(), testRecord())

		// Assert: a failed earlier attempt must not strand the user.
		if sendErr != nil {
			t.Fatalf("Send returned error: %v", sendErr)
		}
		if len(client.sent) != 1 {
			t.Fatalf("send was not retried after a recorded failure")
		}
	})

	t.Run("TrackerOutageStillDelivers", func(t *testing.T) {

		// Arrange
		client := &fakeMail{}
		idem := &fakeIdempotency{err: errors.New("redis: connection refused")}
		e, err := NewEmail(client, idem, instrument.NewNoop(), "")
		if err != nil {
			t.Fatalf("NewEmail returned error: %v", err)
		}

		// Act
		sendErr := e.Send(ctx, "alice", emailTarget(), testRecord())

		// Assert: dedupe is best effort; an unreachable tracker must not
		// block the login.
		if sendErr != nil {
			t.Fatalf("Send returned error: %v", sendErr)
		}
		if len(client.sent) != 1 {
			t.Fatalf("sent %d messages, want 1 despite the tracker outage", len(client.sent))
		}
	})

	t.Run("TrackerFailureAfterSendDoesNotDuplicate", func(t *testing.T) {

		// Arrange
		client := &fakeMail{}
		idem := &fakeIdempotency{err: errors.New("redis: connection refused"), runFn: true}
		e, err := NewEmail(client, idem, instrument.NewNoop(), "")
		if err != nil {
			t.Fatalf("NewEmail returned error: %v", err)
		}

		// Act
		sendErr := e.Send(ctx, "alice", emailTarget(), testRecord())

		// Assert: the mail went out; failed bookkeeping afterwards is not an
		// error and must not trigger a second delivery.
		if sendErr != nil {
			t.Fatalf("Send returned error: %v", sendErr)
		}
		if len(client.sent) != 1 {
			t.Fatalf("sent %d messages, want exactly 1", len(client.sent))
		}
	})

	t.Run("TransportFailureInsideTrackerPropagates", func(t *testing.T) {

		// Arrange
		client := &fakeMail{err: errors.New("smtp down")}
		idem := &fakeIdempotency{}
		e, err := NewEmail(client, idem, instrument.NewNoop(), "")
		if err != nil {
			t.Fatalf("NewEmail returned error: %v", err)
		}

		// Act
		sendErr := e.Send(ctx, "alice", emailTarget(), testRecord())

		// Assert: a real transport failure still surfaces, and the failed
		// send is not re-attempted beyond its own retry schedule.
		if sendErr == nil {
			t.Fatalf("expected transport failure to propagate")
		}
		if client.calls != 3 {
			t.Fatalf("transport attempts = %d, want 3 (one send, two retries)", client.calls)
		}
	})

	t.Run("TransportFailurePropagates", func(t *testing.T) {

		// Arrange
		client := &fakeMail{err: errors.New("smtp down")}
		e, err := NewEmail(client, nil, instrument.NewNoop(), "")
		if err != nil {
			t.Fatalf("NewEmail returned error: %v", err)
		}

		// Act
		sendErr := e.Send(ctx, "alice", emailTarget(), testRecord())

		// Assert
		if sendErr == nil {
			t.Fatalf("expected transport failure to propagate")
		}
	})
}

func TestDispatcher(t *testing.T) {

	ctx := context.Background()

	t.Run("RoutesToRegisteredSender", func(t *testing.T) {

		// Arrange
		client := &fakeMail{}
		e, err := NewEmail(client, nil, instrument.NewNoop(), "")
		if err != nil {
			t.Fatalf("NewEmail returned error: %v", err)
		}
		d := NewDispatcher(map[entity.Channel]Sender{entity.ChannelEmail: e})

		// Act
		if err := d.Dispatch(ctx, "alice", emailTarget(), testRecord()); err != nil {
			t.Fatalf("Dispatch returned error: %v", err)
		}

		// Assert
		if len(client.sent) != 1 {
			t.Fatalf("sender was not invoked")
		}
	})

	t.Run("UnregisteredChannel", func(t *testing.T) {

		// Arrange
		d := NewDispatcher(nil)

		// Act
		err := d.Dispatch(ctx, "alice", emailTarget(), testRecord())

		// Assert
		var derr *entity.DeliveryError
		if !errors.As(err, &derr) {
			t.Fatalf("expected DeliveryError, got %v", err)
		}
		if !errors.Is(err, entity.ErrChannelNotSupported) {
			t.Fatalf("expected ErrChannelNotSupported, got %v", err)
		}
	})

	t.Run("SMSNotSupported", func(t *testing.T) {

		// Arrange
		d := NewDispatcher(map[entity.Channel]Sender{entity.ChannelSMS: NewSMS()})
		target := entity.DeliveryTarget{Channel: entity.ChannelSMS, Phone: "+15551234567"}

		// Act
		err := d.Dispatch(ctx, "alice", target, testRecord())

		// Assert
		if !errors.Is(err, entity.ErrChannelNotSupported) {
			t.Fatalf("expected ErrChannelNotSupported, got %v", err)
		}
		var derr *entity.DeliveryError
		if !errors.As(err, &derr) || derr.Channel != entity.ChannelSMS {
			t.Fatalf("error = %v, want a DeliveryError for the SMS channel", err)
		}
	})

	t.Run("SenderFailureWrapped", func(t *testing.T) {

		// Arrange
		cause := errors.New("smtp down")
		client := &fakeMail{err: cause}
		e, err := NewEmail(client, nil, instrument.NewNoop(), "")
		if err != nil {
			t.Fatalf("NewEmail returned error: %v", err)
		}
		d := NewDispatcher(map[entity.Channel]Sender{entity.ChannelEmail: e})

		// Act
		dispatchErr := d.Dispatch(ctx, "alice", emailTarget(), testRecord())

		// Assert
		var derr *entity.DeliveryError
		if !errors.As(dispatchErr, &derr) || derr.Channel != entity.ChannelEmail {
			t.Fatalf("error = %v, want a DeliveryError for the email channel", dispatchErr)
		}
		if !errors.Is(dispatchErr, cause) {
			t.Fatalf("error chain does not include the transport cause")
		}
	})
}

func TestDispatchKey(t *testing.T) {

	// Same principal and code map to the same key; changing either changes it.
	rec := testRecord()
	other := rec
	other.Code = "000000"

	if dispatchKey("alice", rec) != dispatchKey("alice", rec) {
		t.Fatalf("key is not deterministic")
	}
	if dispatchKey("alice", rec) == dispatchKey("bob", rec) {
		t.Fatalf("key must depend on the principal")
	}
	if dispatchKey("alice", rec) == dispatchKey("alice", other) {
		t.Fatalf("key must depend on the code")
	}
	if strings.Contains(dispatchKey("alice", rec), rec.Code) {
		t.Fatalf("key must not leak the code")
	}
}
