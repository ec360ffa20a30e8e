package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/shandysiswandi/yieldcycle/internal/otp/entity"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/goerror"
)

type ResendInput GenerateInput

// Resend refuses while the live code has more than the cooldown left and
// otherwise issues a fresh code exactly like Generate.
func (s *Usecase) Resend(ctx context.Context, in ResendInput) (*GenerateOutput, error) {
	ctx, span := s.startSpan(ctx, "Resend")
	defer span.End()

	gin := GenerateInput(in)
	gin.normalize()
	if err := s.validator.Validate(gin); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	purpose := entity.ParsePurpose(gin.Purpose)
	unlock, err := s.lockIssue(ctx, gin.SubjectID, purpose)
	if err != nil {
		return nil, err
	}
	defer unlock()

	latest, err := s.repoDB.GetLatest(ctx, gin.SubjectID, purpose)
	if err != nil && !errors.Is(err, goerror.ErrNotFound) {
		return nil, storageFailure(ctx, "get latest otp", err, "subject_id", gin.SubjectID)
	}

	now := s.clock.Now()
	cooldown := s.resendCooldown()
	if latest != nil && latest.IsLive(now) {
		if remaining := latest.TimeUntilExpiry(now); remaining > cooldown {
			cerr := &CooldownError{Remaining: remaining, RetryAfter: remaining - cooldown}

			s.count(ctx, s.metrics.cooldown, 1, metric.WithAttributes(attribute.String("purpose", purpose.String())))
			slog.WarnContext(ctx, "otp resend refused by cooldown",
				"otp_id", latest.ID,
				"subject_id", gin.SubjectID,
				"remaining_seconds", cerr.RemainingSeconds(),
			)

			return nil, goerror.NewBusiness(
				fmt.Sprintf("A code was sent recently and is valid for %d more minute(s)", cerr.RemainingMinutes()),
				goerror.CodeTooManyRequest,
				goerror.WithCause(cerr),
				goerror.WithIntField("remaining_minutes", cerr.RemainingMinutes()),
				goerror.WithIntField("remaining_seconds", cerr.RemainingSeconds()),
				goerror.WithIntField("retry_after_seconds", int64(math.Ceil(cerr.RetryAfter.Seconds()))),
			)
		}
	}

	return s.issue(ctx, gin, purpose)
}
