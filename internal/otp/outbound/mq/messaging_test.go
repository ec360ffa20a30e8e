package mq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shandysiswandi/yieldcycle/internal/otp/entity"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/instrument"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/messaging"
	"github.com/shandysiswandi/yieldcycle/internal/shared/event"
)

type fakePublisher struct {
	destination string
	msg         messaging.OutgoingMessage
	err         error
}

func (f *fakePublisher) Publish(_ context.Context, destination string, msg messaging.OutgoingMessage) (messaging.PublishResult, error) {
	if f.err != nil {
		return messaging.PublishResult{}, f.err
	}
	f.destination = destination
	f.msg = msg
	return messaging.PublishResult{
		MessageID:   messaging.HeaderValue(msg.Headers, messaging.HeaderMessageID),
		Destination: destination,
	}, nil
}

func TestMessaging_Send(t *testing.T) {
	pub := &fakePublisher{}
	m := NewMessaging(pub, instrument.NewNoop())
	expires := time.Date(2026, 5, 4, 9, 5, 0, 0, time.UTC)
	ctx := instrument.SetCorrelationID(context.Background(), "corr-1")

	res, err := m.Send(ctx, entity.Delivery{
		OTPID:       42,
		SubjectID:   "user-1",
		Destination: "user@example.com",
		Code:        "123456",
		Purpose:     entity.PurposeLogin,
		ExpiresAt:   expires,
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if !res.Success || res.MessageID != "otp-42" {
		t.Fatalf("Send() = %+v", res)
	}
	if pub.destination != event.OTPIssuedDestination || string(pub.msg.Key) != "user-1" {
		t.Fatalf("published to %q with key %q", pub.destination, pub.msg.Key)
	}
	if got := messaging.HeaderValue(pub.msg.Headers, keyOfCorrelationID); got != "corr-1" {
		t.Fatalf("cID header = %q", got)
	}

	var body event.OTPIssuedMessage
	if err := json.Unmarshal(pub.msg.Body, &body); err != nil {
		t.Fatalf("body: %v", err)
	}
	if body.OTPID != 42 || body.Purpose != "LOGIN" || body.Code != "123456" || !body.ExpiresAt.Equal(expires) {
		t.Fatalf("body = %+v", body)
	}
}

func TestMessaging_SendPublishError(t *testing.T) {
	failed := errors.New("broker down")
	m := NewMessaging(&fakePublisher{err: failed}, instrument.NewNoop())

	if _, err := m.Send(context.Background(), entity.Delivery{OTPID: 1}); !errors.Is(err, failed) {
		t.Fatalf("Send() error = %v, want %v", err, failed)
	}
}
