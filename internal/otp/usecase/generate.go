package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/shandysiswandi/yieldcycle/internal/otp/entity"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/goerror"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/idempotency"
)

// maxWriteRounds bounds the read-modify-write retries on a guarded update.
const maxWriteRounds = 3

type GenerateInput struct {
	SubjectID   string `validate:"required,subject"`
	Purpose     string `validate:"required,oneof=REGISTRATION LOGIN PASSWORD_RESET"`
	Destination string `validate:"required,email,max=320"`
	TTLMinutes  int    `validate:"omitempty,min=1,max=60"`
}

func (in *GenerateInput) normalize() {
	in.SubjectID = strings.TrimSpace(in.SubjectID)
	in.Purpose = strings.ToUpper(strings.TrimSpace(in.Purpose))
	in.Destination = strings.ToLower(strings.TrimSpace(in.Destination))
}

// GenerateOutput never carries the code itself.
type GenerateOutput struct {
	Handle           string
	ExpiresInSeconds int64
	ExpiresAt        time.Time
}

// Generate invalidates the live code for the subject and purpose, stores a
// new one and hands it to the delivery channel.
func (s *Usecase) Generate(ctx context.Context, in GenerateInput) (*GenerateOutput, error) {
	ctx, span := s.startSpan(ctx, "Generate")
	defer span.End()

	in.normalize()
	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	purpose := entity.ParsePurpose(in.Purpose)
	unlock, err := s.lockIssue(ctx, in.SubjectID, purpose)
	if err != nil {
		return nil, err
	}
	defer unlock()

	return s.issue(ctx, in, purpose)
}

func (s *Usecase) issue(ctx context.Context, in GenerateInput, purpose entity.Purpose) (*GenerateOutput, error) {
	now := s.clock.Now()

	if err := s.invalidateLive(ctx, in.SubjectID, purpose, now); err != nil {
		return nil, err
	}

	rec, code, err := entity.New(entity.NewParams{
		ID:          s.uid.Generate(),
		SubjectID:   in.SubjectID,
		Purpose:     purpose,
		CodeLength:  s.codeLength(),
		MaxAttempts: s.maxAttempts(),
		TTL:         s.ttl(in.TTLMinutes),
		Now:         now,
	}, s.generator, s.hasher)
	if err != nil {
		slog.ErrorContext(ctx, "failed to build otp", "subject_id", in.SubjectID, "error", err)
		return nil, goerror.NewServer(err)
	}

	if err := s.repoDB.Save(ctx, *rec); err != nil {
		return nil, storageFailure(ctx, "save otp", err, "subject_id", in.SubjectID)
	}

	res, err := s.repoDelivery.Send(ctx, entity.Delivery{
		OTPID:       rec.ID,
		SubjectID:   rec.SubjectID,
		Destination: in.Destination,
		Code:        code,
		Purpose:     purpose,
		ExpiresAt:   rec.ExpiresAt,
	})
	if err == nil && (res == nil || !res.Success) {
		err = errors.New("channel did not accept the message")
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to deliver otp", "otp_id", rec.ID, "subject_id", rec.SubjectID, "error", err)
		return nil, goerror.NewUnavailable(&DeliveryError{OTPID: rec.ID, Err: err}, "Unable to deliver verification code, please retry")
	}

	s.count(ctx, s.metrics.issued, 1, metric.WithAttributes(attribute.String("purpose", purpose.String())))
	slog.InfoContext(ctx, "otp issued",
		"otp_id", rec.ID,
		"subject_id", rec.SubjectID,
		"purpose", purpose.String(),
		"message_id", res.MessageID,
	)

	return &GenerateOutput{
		Handle:           strconv.FormatInt(rec.ID, 10),
		ExpiresInSeconds: rec.SecondsUntilExpiry(now),
		ExpiresAt:        rec.ExpiresAt,
	}, nil
}

// invalidateLive consumes the current live code, if any, so at most one code
// per subject and purpose can be verified.
func (s *Usecase) invalidateLive(ctx context.Context, subjectID string, purpose entity.Purpose, now time.Time) error {
	for range maxWriteRounds {
		latest, err := s.repoDB.GetLatest(ctx, subjectID, purpose)
		if errors.Is(err, goerror.ErrNotFound) {
			return nil
		}
		if err != nil {
			return storageFailure(ctx, "get latest otp", err, "subject_id", subjectID)
		}

		if !latest.IsLive(now) {
			return nil
		}

		before := *latest
		if err := latest.MarkAsUsed(now); err != nil {
			return nil
		}

		_, err = s.repoDB.UpdateAttemptAndUsed(ctx, entity.UpdateFrom(&before, latest))
		if errors.Is(err, goerror.ErrConflict) {
			slog.WarnContext(ctx, "otp changed while invalidating, retrying", "otp_id", latest.ID)
			continue
		}
		if err != nil {
			return storageFailure(ctx, "invalidate otp", err, "otp_id", latest.ID)
		}

		slog.InfoContext(ctx, "previous otp invalidated", "otp_id", latest.ID, "subject_id", subjectID)
		return nil
	}

	return storageFailure(ctx, "invalidate otp", errWriteContention, "subject_id", subjectID)
}

// lockIssue serializes generate and resend for one subject and purpose.
func (s *Usecase) lockIssue(ctx context.Context, subjectID string, purpose entity.Purpose) (func(), error) {
	key := "otp:issue:" + purpose.String() + ":" + subjectID

	unlock, err := s.locker.Lock(ctx, key, s.operationTimeout()+time.Second)
	if errors.Is(err, idempotency.ErrLocked) {
		slog.WarnContext(ctx, "otp issue already in progress", "subject_id", subjectID, "purpose", purpose.String())
		return nil, goerror.NewBusiness("A code is already being issued, please retry shortly", goerror.CodeConflict)
	}
	if err != nil {
		return nil, storageFailure(ctx, "lock otp issue", err, "subject_id", subjectID)
	}

	return func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			slog.WarnContext(ctx, "failed to release otp issue lock", "subject_id", subjectID, "error", err)
		}
	}, nil
}
