package inbound

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/shandysiswandi/yieldcycle/internal/notification/usecase"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/instrument"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/messaging"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/uid"
	"github.com/shandysiswandi/yieldcycle/internal/shared/event"
)

const keyOfCorrelationID string = "cID"

type MQHandler struct {
	uc   uc
	uuid uid.StringID
	ins  instrument.Instrumentation
}

func (h *MQHandler) ensureCorrelationID(ctx context.Context, msg messaging.Message) context.Context {
	if cID := msg.Header(keyOfCorrelationID); cID != "" {
		return instrument.SetCorrelationID(ctx, cID)
	}
	return instrument.SetCorrelationID(ctx, h.uuid.Generate())
}

// OTPIssuedNotification mails the code carried by an otp_issued event. The
// body holds the code, so it is never logged.
func (h *MQHandler) OTPIssuedNotification(ctx context.Context, msg messaging.Message) error {
	ctx = h.ensureCorrelationID(ctx, msg)

	ctx, span := h.ins.Tracer("notification.inbound.mq").Start(ctx, "OTPIssuedNotification")
	defer span.End()

	slog.InfoContext(ctx, "consume: otp issued notification", "message_id", msg.ID(), "source", msg.Source())

	var payload event.OTPIssuedMessage
	if err := json.Unmarshal(msg.Body(), &payload); err != nil {
		slog.ErrorContext(ctx, "failed to parse message body of otp issued notification", "message_id", msg.ID(), "error", err)
		return nil
	}

	if err := h.uc.ConsumeOTPIssued(ctx, usecase.ConsumeOTPIssuedInput{
		MessageID:   msg.ID(),
		OTPID:       payload.OTPID,
		SubjectID:   payload.SubjectID,
		Destination: payload.Destination,
		Purpose:     payload.Purpose,
		Code:        payload.Code,
		ExpiresAt:   payload.ExpiresAt,
	}); err != nil {
		slog.ErrorContext(ctx, "failed to consume otp issued", "message_id", msg.ID(), "otp_id", payload.OTPID, "error", err)
		return err
	}

	return nil
}
