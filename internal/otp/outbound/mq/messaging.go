package mq

import (
	"context"
	"encoding/json"
	"strconv"

	"go.opentelemetry.io/otel/codes"

	"github.com/shandysiswandi/yieldcycle/internal/otp/entity"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/instrument"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/messaging"
	"github.com/shandysiswandi/yieldcycle/internal/shared/event"
)

const keyOfCorrelationID string = "cID"

// Messaging delivers codes by publishing an otp_issued event; the
// notification module renders and mails it.
type Messaging struct {
	client messaging.Publisher
	ins    instrument.Instrumentation
}

func NewMessaging(client messaging.Publisher, ins instrument.Instrumentation) *Messaging {
	return &Messaging{client: client, ins: ins}
}

func (m *Messaging) Send(ctx context.Context, msg entity.Delivery) (*entity.DeliveryResult, error) {
	ctx, span := m.ins.Tracer("otp.outbound.mq").Start(ctx, "Send")
	defer span.End()

	body, err := json.Marshal(event.OTPIssuedMessage{
		OTPID:       msg.OTPID,
		SubjectID:   msg.SubjectID,
		Destination: msg.Destination,
		Purpose:     msg.Purpose.String(),
		Code:        msg.Code,
		ExpiresAt:   msg.ExpiresAt,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	cID := instrument.GetCorrelationID(ctx)
	res, err := m.client.Publish(ctx, event.OTPIssuedDestination, messaging.OutgoingMessage{
		Body: body,
		Key:  []byte(msg.SubjectID),
		Headers: []messaging.Header{
			{Key: keyOfCorrelationID, Value: []byte(cID)},
			{Key: messaging.HeaderMessageID, Value: []byte("otp-" + strconv.FormatInt(msg.OTPID, 10))},
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return &entity.DeliveryResult{Success: true, MessageID: res.MessageID}, nil
}
