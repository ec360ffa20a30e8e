package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shandysiswandi/yieldcycle/internal/pkg/clock"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/config"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/idempotency"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/instrument"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/mail"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/validator"
)

var t0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

type fakeMail struct {
	sent  []mail.Message
	fails int
	calls int
}

func (f *fakeMail) Send(_ context.Context, msg mail.Message) (string, error) {
	f.calls++
	if f.fails > 0 {
		f.fails--
		return "", errors.New("relay busy")
	}
	f.sent = append(f.sent, msg)
	return "<id@mail.test>", nil
}

// fakeDeduper keeps completed keys in memory.
type fakeDeduper struct {
	done map[string]bool
}

func (f *fakeDeduper) Exec(ctx context.Context, key string, fn func(context.Context) error, _ ...idempotency.Option) error {
	if f.done == nil {
		f.done = make(map[string]bool)
	}
	if f.done[key] {
		return idempotency.ErrAlreadyCompleted
	}
	if err := fn(ctx); err != nil {
		return err
	}
	f.done[key] = true
	return nil
}

func newTestUsecase(t *testing.T, m *fakeMail) *Usecase {
	t.Helper()

	cfg, err := config.NewViperFromBytes("yaml", []byte(`
app:
  name: Yield
  support_email: help@yield.test
modules:
  notification:
    mail_retries: 2
`))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	v, err := validator.NewV10Validator()
	if err != nil {
		t.Fatalf("validator: %v", err)
	}

	uc, err := New(Dependency{
		RepoMail:    m,
		Idempotency: &fakeDeduper{},
		Config:      cfg,
		Clock:       clock.NewManual(t0),
		Validator:   v,
		Instrument:  instrument.NewNoop(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return uc
}

func issued() ConsumeOTPIssuedInput {
	return ConsumeOTPIssuedInput{
		MessageID:   "otp-42",
		OTPID:       42,
		SubjectID:   "user-1",
		Destination: "user@example.com",
		Purpose:     "PASSWORD_RESET",
		Code:        "048213",
		ExpiresAt:   t0.Add(5 * time.Minute),
	}
}

func TestConsumeOTPIssued_SendsOnce(t *testing.T) {
	m := &fakeMail{}
	uc := newTestUsecase(t, m)

	for range 2 {
		if err := uc.ConsumeOTPIssued(context.Background(), issued()); err != nil {
			t.Fatalf("ConsumeOTPIssued() error = %v", err)
		}
	}
	if len(m.sent) != 1 {
		t.Fatalf("sent %d mails, want 1", len(m.sent))
	}

	got := m.sent[0]
	if got.To[0] != "user@example.com" || got.Subject != "Yield verification code" {
		t.Fatalf("message = %+v", got)
	}
	for _, body := range []string{got.HTMLBody, got.TextBody} {
		for _, want := range []string{"048213", "password reset", "5 minute(s)", "09:05 UTC"} {
			if !strings.Contains(body, want) {
				t.Fatalf("body missing %q:\n%s", want, body)
			}
		}
	}
	if !strings.Contains(got.HTMLBody, "help@yield.test") {
		t.Fatalf("html body missing footer")
	}
}

func TestConsumeOTPIssued_RetriesMail(t *testing.T) {
	m := &fakeMail{fails: 2}
	uc := newTestUsecase(t, m)

	if err := uc.ConsumeOTPIssued(context.Background(), issued()); err != nil {
		t.Fatalf("ConsumeOTPIssued() error = %v", err)
	}
	if m.calls != 3 || len(m.sent) != 1 {
		t.Fatalf("calls = %d, sent = %d", m.calls, len(m.sent))
	}
}

func TestConsumeOTPIssued_GivesUp(t *testing.T) {
	m := &fakeMail{fails: 10}
	uc := newTestUsecase(t, m)

	if err := uc.ConsumeOTPIssued(context.Background(), issued()); err == nil {
		t.Fatalf("ConsumeOTPIssued() should fail once retries are spent")
	}
	if m.calls != 3 {
		t.Fatalf("calls = %d, want 3", m.calls)
	}

	// the key was released, so a redelivery tries again
	m.fails = 0
	if err := uc.ConsumeOTPIssued(context.Background(), issued()); err != nil {
		t.Fatalf("redelivery error = %v", err)
	}
	if len(m.sent) != 1 {
		t.Fatalf("sent = %d after redelivery", len(m.sent))
	}
}

func TestConsumeOTPIssued_Dropped(t *testing.T) {
	tests := []struct {
		name string
		edit func(in *ConsumeOTPIssuedInput)
	}{
		{name: "expired", edit: func(in *ConsumeOTPIssuedInput) { in.ExpiresAt = t0 }},
		{name: "bad destination", edit: func(in *ConsumeOTPIssuedInput) { in.Destination = "nope" }},
		{name: "bad code", edit: func(in *ConsumeOTPIssuedInput) { in.Code = "12ab56" }},
		{name: "no message id", edit: func(in *ConsumeOTPIssuedInput) { in.MessageID = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &fakeMail{}
			uc := newTestUsecase(t, m)
			in := issued()
			tt.edit(&in)

			if err := uc.ConsumeOTPIssued(context.Background(), in); err != nil {
				t.Fatalf("ConsumeOTPIssued() error = %v", err)
			}
			if m.calls != 0 {
				t.Fatalf("mail sent for a dropped message")
			}
		})
	}
}
