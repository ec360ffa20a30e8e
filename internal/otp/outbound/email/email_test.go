package email

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shandysiswandi/yieldcycle/internal/otp/entity"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/instrument"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/mail"
)

type fakeMail struct {
	sent []mail.Message
	err  error
}

func (f *fakeMail) Send(_ context.Context, msg mail.Message) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, msg)
	return "<abc@mail.test>", nil
}

func (f *fakeMail) Close() error { return nil }

func TestMail_Send(t *testing.T) {
	client := &fakeMail{}
	m := New(client, instrument.NewNoop(), "Yield")

	res, err := m.Send(context.Background(), entity.Delivery{
		OTPID:       1,
		Destination: "user@example.com",
		Code:        "654321",
		Purpose:     entity.PurposePasswordReset,
		ExpiresAt:   time.Date(2026, 5, 4, 9, 5, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if !res.Success || res.MessageID != "<abc@mail.test>" {
		t.Fatalf("Send() = %+v", res)
	}

	got := client.sent[0]
	if len(got.To) != 1 || got.To[0] != "user@example.com" {
		t.Fatalf("To = %v", got.To)
	}
	for _, want := range []string{"654321", "password reset", "09:05 UTC"} {
		if !strings.Contains(got.TextBody, want) {
			t.Fatalf("body %q missing %q", got.TextBody, want)
		}
	}
}

func TestMail_SendError(t *testing.T) {
	failed := errors.New("relay refused")
	m := New(&fakeMail{err: failed}, instrument.NewNoop(), "Yield")

	if _, err := m.Send(context.Background(), entity.Delivery{Destination: "a@b.c"}); !errors.Is(err, failed) {
		t.Fatalf("Send() error = %v", err)
	}
}
