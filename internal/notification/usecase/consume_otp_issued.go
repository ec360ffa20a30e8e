package usecase

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/shandysiswandi/yieldcycle/internal/pkg/idempotency"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/mail"
)

type ConsumeOTPIssuedInput struct {
	MessageID   string    `validate:"required"`
	OTPID       int64     `validate:"required,gt=0"`
	SubjectID   string    `validate:"required"`
	Destination string    `validate:"required,email"`
	Purpose     string    `validate:"required"`
	Code        string    `validate:"required,otpcode"`
	ExpiresAt   time.Time `validate:"required"`
}

// ConsumeOTPIssued mails an issued code once per message id. Invalid and
// already expired messages are dropped; a mail failure after the retries
// is returned so the broker redelivers.
func (s *Usecase) ConsumeOTPIssued(ctx context.Context, in ConsumeOTPIssuedInput) error {
	ctx, span := s.startSpan(ctx, "ConsumeOTPIssued")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		slog.ErrorContext(ctx, "Validation failed", "otp_id", in.OTPID, "error", err)
		return nil
	}

	now := s.clock.Now()
	if !now.Before(in.ExpiresAt) {
		slog.WarnContext(ctx, "skip mailing expired otp", "otp_id", in.OTPID, "expires_at", in.ExpiresAt)
		return nil
	}

	data := s.baseEmailTemplateData()
	data["code"] = in.Code
	data["purpose_label"] = purposeLabel(in.Purpose)
	data["expires_at"] = in.ExpiresAt.UTC().Format("15:04 MST")
	data["expires_in_minutes"] = int(in.ExpiresAt.Sub(now).Round(time.Minute) / time.Minute)

	htmlBody, err := render(s.htmlOTP, data)
	if err != nil {
		slog.ErrorContext(ctx, "failed to render email body", "otp_id", in.OTPID, "error", err)
		return nil
	}
	textBody, err := render(s.textOTP, data)
	if err != nil {
		slog.ErrorContext(ctx, "failed to render email text", "otp_id", in.OTPID, "error", err)
		return nil
	}

	msg := mail.Message{
		To:       []string{in.Destination},
		Subject:  s.cfg.GetString("app.name") + " verification code",
		TextBody: textBody,
		HTMLBody: htmlBody,
	}

	err = s.idemp.Exec(ctx, "notification:otp_issued:"+in.MessageID, func(ctx context.Context) error {
		return s.sendWithRetry(ctx, msg, in.OTPID)
	}, idempotency.WithLockDuration(time.Minute))
	switch {
	case errors.Is(err, idempotency.ErrAlreadyCompleted):
		slog.InfoContext(ctx, "otp email already sent", "otp_id", in.OTPID, "message_id", in.MessageID)
		return nil
	case err != nil:
		slog.ErrorContext(ctx, "failed to send otp email", "otp_id", in.OTPID, "message_id", in.MessageID, "error", err)
		return err
	}

	return nil
}

func (s *Usecase) sendWithRetry(ctx context.Context, msg mail.Message, otpID int64) error {
	retries := cmp.Or(s.cfg.GetInt("modules.notification.mail_retries"), 3)

	b := retry.NewFibonacci(200 * time.Millisecond)
	b = retry.WithCappedDuration(5*time.Second, b)
	b = retry.WithMaxRetries(uint64(retries), b)

	attempt := 0
	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		id, err := s.repoMail.Send(ctx, msg)
		if err != nil {
			slog.WarnContext(ctx, "otp email attempt failed", "otp_id", otpID, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}

		slog.InfoContext(ctx, "otp email sent", "otp_id", otpID, "mail_message_id", id, "attempt", attempt)
		return nil
	})
}
