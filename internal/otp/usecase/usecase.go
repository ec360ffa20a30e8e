package usecase

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/shandysiswandi/yieldcycle/internal/otp/entity"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/clock"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/config"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/idempotency"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/instrument"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/jwt"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/uid"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/validator"
)

type repoDB interface {
	Save(ctx context.Context, otp entity.OTP) error
	GetLatest(ctx context.Context, subjectID string, purpose entity.Purpose) (*entity.OTP, error)
	UpdateAttemptAndUsed(ctx context.Context, in entity.AttemptUpdate) (*entity.OTP, error)
	// DeleteExpired removes up to limit records that expired before
	// olderThan. beforeCommit sees the batch first; its error keeps the
	// records in place.
	DeleteExpired(ctx context.Context, olderThan time.Time, limit int, beforeCommit func(context.Context, []entity.OTP) error) (int, error)
}

type repoDelivery interface {
	Send(ctx context.Context, msg entity.Delivery) (*entity.DeliveryResult, error)
}

type repoArchive interface {
	Archive(ctx context.Context, records []entity.OTP, at time.Time) (string, error)
}

type locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (idempotency.Unlock, error)
}

type Usecase struct {
	repoDB       repoDB
	repoDelivery repoDelivery
	repoArchive  repoArchive
	locker       locker
	validator    validator.Validator
	cfg          config.Config
	generator    entity.CodeGenerator
	hasher       entity.CodeHasher
	uid          uid.NumberID
	clock        clock.Clocker
	jwt          jwt.JWT
	ins          instrument.Instrumentation
	metrics      metrics
}

type Dependency struct {
	RepoDB       repoDB
	RepoDelivery repoDelivery
	// RepoArchive is optional; without it swept records are dropped.
	RepoArchive repoArchive
	Locker      locker
	Validator   validator.Validator
	Config      config.Config
	Generator   entity.CodeGenerator
	Hasher      entity.CodeHasher
	UID         uid.NumberID
	Clock       clock.Clocker
	JWT         jwt.JWT
	Instrument  instrument.Instrumentation
}

func New(dep Dependency) *Usecase {
	return &Usecase{
		repoDB:       dep.RepoDB,
		repoDelivery: dep.RepoDelivery,
		repoArchive:  dep.RepoArchive,
		locker:       dep.Locker,
		validator:    dep.Validator,
		cfg:          dep.Config,
		generator:    dep.Generator,
		hasher:       dep.Hasher,
		uid:          dep.UID,
		clock:        dep.Clock,
		jwt:          dep.JWT,
		ins:          dep.Instrument,
		metrics:      newMetrics(dep.Instrument.Meter("otp.usecase")),
	}
}

func (s *Usecase) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("otp.usecase").Start(ctx, name)
}

type metrics struct {
	issued       metric.Int64Counter
	verified     metric.Int64Counter
	verifyFailed metric.Int64Counter
	cooldown     metric.Int64Counter
	swept        metric.Int64Counter
}

func newMetrics(meter metric.Meter) metrics {
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			slog.Error("failed to create counter", "name", name, "error", err)
		}
		return c
	}

	return metrics{
		issued:       counter("otp.issued", "Codes issued and handed to a delivery channel"),
		verified:     counter("otp.verified", "Codes verified successfully"),
		verifyFailed: counter("otp.verify_failed", "Rejected verification attempts by reason"),
		cooldown:     counter("otp.resend_cooldown", "Resend requests refused by the cooldown"),
		swept:        counter("otp.swept", "Expired codes removed by the sweeper"),
	}
}

func (s *Usecase) count(ctx context.Context, c metric.Int64Counter, n int64, opts ...metric.AddOption) {
	if c != nil {
		c.Add(ctx, n, opts...)
	}
}

// Settings read per call so hot-reloaded config applies to the next request.

// codeLength falls back to the default when a reload brings a length that
// the validation rule would reject.
func (s *Usecase) codeLength() int {
	n := s.cfg.GetInt("modules.otp.code_length")
	if n == 0 {
		return entity.DefaultCodeLength
	}
	if n < entity.MinCodeLength || n > entity.MaxCodeLength {
		slog.Warn("otp code length out of range, using default", "code_length", n, "default", entity.DefaultCodeLength)
		return entity.DefaultCodeLength
	}
	return n
}

// CheckSettings rejects configuration that would issue codes the service
// cannot verify.
func CheckSettings(cfg config.Config) error {
	n := cfg.GetInt("modules.otp.code_length")
	if n != 0 && (n < entity.MinCodeLength || n > entity.MaxCodeLength) {
		return fmt.Errorf("modules.otp.code_length %d outside %d..%d", n, entity.MinCodeLength, entity.MaxCodeLength)
	}
	return nil
}

func (s *Usecase) maxAttempts() int {
	return cmp.Or(s.cfg.GetInt("modules.otp.max_attempts"), entity.DefaultMaxAttempts)
}

func (s *Usecase) ttl(minutes int) time.Duration {
	if minutes > 0 {
		return time.Duration(minutes) * time.Minute
	}
	return cmp.Or(s.cfg.GetMinute("modules.otp.default_ttl_minutes"), 5*time.Minute)
}

func (s *Usecase) resendCooldown() time.Duration {
	return cmp.Or(s.cfg.GetSecond("modules.otp.resend_cooldown_seconds"), time.Minute)
}

func (s *Usecase) operationTimeout() time.Duration {
	return cmp.Or(s.cfg.GetSecond("modules.otp.operation_timeout_seconds"), 10*time.Second)
}

// withTimeout bounds a workflow; an earlier caller deadline still wins.
func (s *Usecase) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.operationTimeout())
}
