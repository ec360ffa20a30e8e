package notification

import (
	"context"

	"github.com/shandysiswandi/yieldcycle/internal/notification/inbound"
	"github.com/shandysiswandi/yieldcycle/internal/notification/outbound/email"
	"github.com/shandysiswandi/yieldcycle/internal/notification/usecase"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/clock"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/config"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/goroutine"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/idempotency"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/instrument"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/mail"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/messaging"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/uid"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/validator"
)

type Dependency struct {
	Ctx         context.Context            `validate:"required"`
	Messaging   messaging.Messaging        `validate:"required"`
	Idempotency idempotency.Idempotency    `validate:"required"`
	Config      config.Config              `validate:"required"`
	Instrument  instrument.Instrumentation `validate:"required"`
	UUID        uid.StringID               `validate:"required"`
	Clock       clock.Clocker              `validate:"required"`
	Goroutine   *goroutine.Manager         `validate:"required"`
	Validator   validator.Validator        `validate:"required"`
	Mail        mail.Mail                  `validate:"required"`
}

// New mails codes published on otp_issued.
func New(dep Dependency) error {
	if err := dep.Validator.Validate(dep); err != nil {
		return err
	}

	uc, err := usecase.New(usecase.Dependency{
		RepoMail:    email.New(dep.Mail, dep.Instrument),
		Idempotency: dep.Idempotency,
		Config:      dep.Config,
		Clock:       dep.Clock,
		Validator:   dep.Validator,
		Instrument:  dep.Instrument,
	})
	if err != nil {
		return err
	}

	inbound.RegisterMQConsumer(dep.Ctx, dep.Config, dep.Goroutine, dep.Messaging, dep.UUID, uc, dep.Instrument)

	return nil
}
