package inbound

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/messaging"
	"github.com/shandysiswandi/otpgate/internal/pkg/uid"
	"github.com/shandysiswandi/otpgate/internal/shared/event"
	"github.com/shandysiswandi/otpgate/internal/stepup/usecase"
)

const keyOfCorrelationID string = "cID"

type MQHandler struct {
	uc   uc
	uuid uid.StringID
	ins  instrument.Instrumentation
}

func (h *MQHandler) ensureCorrelationID(ctx context.Context, headers []messaging.Header) context.Context {
	for i := range headers {
		if headers[i].Key == keyOfCorrelationID {
			return instrument.SetCorrelationID(ctx, string(headers[i].Value))
		}
	}
	return instrument.SetCorrelationID(ctx, h.uuid.Generate())
}

// AuthSuccessInvalidate consumes gateway auth_success events and drops the
// principal's outstanding passcode. A malformed body is dropped rather than
// redelivered; invalidation is idempotent so redelivery of a valid body is
// harmless.
func (h *MQHandler) AuthSuccessInvalidate(ctx context.Context, msg messaging.Message) error {
	ctx = h.ensureCorrelationID(ctx, msg.Headers())

	ctx, span := h.ins.Tracer("stepup.inbound.mq").Start(ctx, "AuthSuccessInvalidate")
	defer span.End()

	body := msg.Body()
	slog.InfoContext(ctx, "consume: auth success", "msg_body", string(body))

	var payload event.AuthSuccessMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		slog.ErrorContext(ctx, "failed to parse message body of auth success", "msg_body", string(body), "error", err)
		return nil
	}

	if err := h.uc.OnAuthenticationSuccess(ctx, usecase.AuthSuccessInput{
		Principal: payload.Principal,
		SessionID: payload.SessionID,
	}); err != nil {
		slog.ErrorContext(ctx, "failed to invalidate passcode on auth success", "principal", payload.Principal, "error", err)
		return err
	}

	return nil
}
