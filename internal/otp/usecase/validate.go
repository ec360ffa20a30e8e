package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/shandysiswandi/yieldcycle/internal/otp/entity"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/goerror"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/jwt"
)

const (
	msgVerified = "Code verified"
	// Same text for every rejection so callers learn nothing about the record state.
	msgRejected = "Invalid or expired code"
)

type ValidateInput struct {
	SubjectID string `validate:"required,subject"`
	Purpose   string `validate:"required,oneof=REGISTRATION LOGIN PASSWORD_RESET"`
	Code      string `validate:"required,otpcode"`
}

type ValidateOutput struct {
	IsValid           bool
	Message           string
	RemainingAttempts int
	// Reason is for logs and metrics only.
	Reason Reason
	// Token proves the verification; set only when IsValid.
	Token string
}

// Validate checks code against the latest record. The attempt is persisted
// whatever the outcome; rejections come back as a result, not an error.
func (s *Usecase) Validate(ctx context.Context, in ValidateInput) (*ValidateOutput, error) {
	ctx, span := s.startSpan(ctx, "Validate")
	defer span.End()

	in.SubjectID = strings.TrimSpace(in.SubjectID)
	in.Purpose = strings.ToUpper(strings.TrimSpace(in.Purpose))
	in.Code = strings.TrimSpace(in.Code)
	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	purpose := entity.ParsePurpose(in.Purpose)

	for range maxWriteRounds {
		rec, err := s.repoDB.GetLatest(ctx, in.SubjectID, purpose)
		if errors.Is(err, goerror.ErrNotFound) {
			slog.WarnContext(ctx, "no otp to validate", "subject_id", in.SubjectID, "purpose", purpose.String())
			return nil, notFound()
		}
		if err != nil {
			return nil, storageFailure(ctx, "get latest otp", err, "subject_id", in.SubjectID)
		}

		now := s.clock.Now()
		before := *rec
		ok, verr := rec.Verify(in.Code, now, s.hasher)

		_, err = s.repoDB.UpdateAttemptAndUsed(ctx, entity.UpdateFrom(&before, rec))
		if errors.Is(err, goerror.ErrConflict) {
			slog.WarnContext(ctx, "otp changed during validation, retrying", "otp_id", rec.ID)
			continue
		}
		if err != nil {
			return nil, storageFailure(ctx, "update otp attempt", err, "otp_id", rec.ID)
		}

		return s.result(ctx, span, rec, ok, verr)
	}

	return nil, storageFailure(ctx, "update otp attempt", errWriteContention, "subject_id", in.SubjectID)
}

func (s *Usecase) result(ctx context.Context, span trace.Span, rec *entity.OTP, ok bool, verr error) (*ValidateOutput, error) {
	reason := reasonOf(ok, verr)
	span.SetAttributes(attribute.String("otp.reason", string(reason)), attribute.Int("otp.attempts", rec.AttemptCount))

	if !ok {
		s.count(ctx, s.metrics.verifyFailed, 1, metric.WithAttributes(
			attribute.String("purpose", rec.Purpose.String()),
			attribute.String("reason", string(reason)),
		))
		slog.WarnContext(ctx, "otp rejected",
			"otp_id", rec.ID,
			"subject_id", rec.SubjectID,
			"reason", string(reason),
			"attempts", rec.AttemptCount,
		)
		return &ValidateOutput{
			IsValid:           false,
			Message:           msgRejected,
			RemainingAttempts: rec.RemainingAttempts(),
			Reason:            reason,
		}, nil
	}

	token, err := s.jwt.Generate(jwt.Payload{
		SubjectID: rec.SubjectID,
		Purpose:   rec.Purpose.String(),
		Reference: strconv.FormatInt(rec.ID, 10),
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to sign verification token", "otp_id", rec.ID, "error", err)
		return nil, goerror.NewServer(err)
	}

	s.count(ctx, s.metrics.verified, 1, metric.WithAttributes(attribute.String("purpose", rec.Purpose.String())))
	slog.InfoContext(ctx, "otp verified", "otp_id", rec.ID, "subject_id", rec.SubjectID)

	return &ValidateOutput{
		IsValid:           true,
		Message:           msgVerified,
		RemainingAttempts: rec.RemainingAttempts(),
		Token:             token,
	}, nil
}
