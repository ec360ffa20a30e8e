package otp

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/shandysiswandi/yieldcycle/internal/otp/inbound"
	"github.com/shandysiswandi/yieldcycle/internal/otp/outbound/archive"
	"github.com/shandysiswandi/yieldcycle/internal/otp/outbound/cache"
	"github.com/shandysiswandi/yieldcycle/internal/otp/outbound/db"
	"github.com/shandysiswandi/yieldcycle/internal/otp/outbound/email"
	"github.com/shandysiswandi/yieldcycle/internal/otp/outbound/mq"
	"github.com/shandysiswandi/yieldcycle/internal/otp/usecase"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/clock"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/config"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/goroutine"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/hash"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/idempotency"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/instrument"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/jwt"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/mail"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/messaging"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/otpcode"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/router"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/storage"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/uid"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/validator"
)

const (
	StorePostgres = "postgres"
	StoreRedis    = "redis"

	ChannelMessaging = "messaging"
	ChannelEmail     = "email"
)

type Dependency struct {
	Ctx         context.Context            `validate:"required"`
	DBConn      *pgxpool.Pool              `validate:"required"`
	CacheConn   redis.UniversalClient      `validate:"required"`
	Goroutine   *goroutine.Manager         `validate:"required"`
	Router      *router.Router             `validate:"required"`
	Idempotency idempotency.Idempotency    `validate:"required"`
	Messaging   messaging.Messaging        `validate:"required"`
	Mail        mail.Mail                  `validate:"required"`
	Config      config.Config              `validate:"required"`
	Instrument  instrument.Instrumentation `validate:"required"`
	UID         uid.NumberID               `validate:"required"`
	UUID        uid.StringID               `validate:"required"`
	Clock       clock.Clocker              `validate:"required"`
	Validator   validator.Validator        `validate:"required"`
	JWT         jwt.JWT                    `validate:"required"`
	HMAC        hash.Hash                  `validate:"required"`
	// Storage enables archiving of swept codes; optional.
	Storage storage.Storage
}

// New wires the code lifecycle: store and delivery channel are chosen by
// modules.otp.store and modules.otp.delivery.channel.
func New(dep Dependency) error {
	if err := dep.Validator.Validate(dep); err != nil {
		return err
	}
	if err := usecase.CheckSettings(dep.Config); err != nil {
		return err
	}

	ucDep := usecase.Dependency{
		Locker:     dep.Idempotency,
		Validator:  dep.Validator,
		Config:     dep.Config,
		Generator:  otpcode.New(),
		Hasher:     dep.HMAC,
		UID:        dep.UID,
		Clock:      dep.Clock,
		JWT:        dep.JWT,
		Instrument: dep.Instrument,
	}

	switch store := dep.Config.GetString("modules.otp.store"); store {
	case "", StorePostgres:
		pg := db.NewDB(dep.DBConn, dep.Instrument)
		if dep.Config.GetBool("modules.otp.migrate") {
			if err := pg.Migrate(dep.Ctx); err != nil {
				return fmt.Errorf("migrate otp schema: %w", err)
			}
		}
		ucDep.RepoDB = pg
	case StoreRedis:
		ucDep.RepoDB = cache.New(dep.CacheConn, dep.Instrument)
	default:
		return fmt.Errorf("unknown otp store %q", store)
	}

	switch channel := dep.Config.GetString("modules.otp.delivery.channel"); channel {
	case "", ChannelMessaging:
		ucDep.RepoDelivery = mq.NewMessaging(dep.Messaging, dep.Instrument)
	case ChannelEmail:
		ucDep.RepoDelivery = email.New(dep.Mail, dep.Instrument, dep.Config.GetString("app.name"))
	default:
		return fmt.Errorf("unknown otp delivery channel %q", channel)
	}

	// RepoArchive stays a nil interface unless a bucket is configured.
	if bucket := dep.Config.GetString("modules.otp.archive.bucket"); bucket != "" && dep.Storage != nil {
		ucDep.RepoArchive = archive.New(dep.Storage, bucket, dep.Config.GetString("modules.otp.archive.prefix"), dep.Instrument)
	}

	uc := usecase.New(ucDep)

	inbound.RegisterHTTPEndpoint(dep.Router, uc)
	inbound.RegisterSweeper(dep.Ctx, dep.Config, dep.Goroutine, dep.UUID, uc)

	return nil
}
