package usecase

import (
	"bytes"
	"context"
	"embed"
	htmltemplate "html/template"
	"io"
	"strings"
	texttemplate "text/template"

	"go.opentelemetry.io/otel/trace"

	"github.com/shandysiswandi/yieldcycle/internal/pkg/clock"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/config"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/idempotency"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/instrument"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/mail"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/validator"
)

//go:embed templates/*
var templateFS embed.FS

type repoMail interface {
	Send(ctx context.Context, msg mail.Message) (string, error)
}

type deduper interface {
	Exec(ctx context.Context, key string, fn func(context.Context) error, opts ...idempotency.Option) error
}

type Dependency struct {
	RepoMail    repoMail
	Idempotency deduper
	Config      config.Config
	Clock       clock.Clocker
	Validator   validator.Validator
	Instrument  instrument.Instrumentation
}

type Usecase struct {
	repoMail  repoMail
	idemp     deduper
	cfg       config.Config
	clock     clock.Clocker
	validator validator.Validator
	ins       instrument.Instrumentation

	htmlOTP *htmltemplate.Template
	textOTP *texttemplate.Template
}

func New(dep Dependency) (*Usecase, error) {
	htmlOTP, err := htmltemplate.New("otp_code.html").Option("missingkey=zero").ParseFS(templateFS, "templates/otp_code.html")
	if err != nil {
		return nil, err
	}
	textOTP, err := texttemplate.New("otp_code.txt").Option("missingkey=zero").ParseFS(templateFS, "templates/otp_code.txt")
	if err != nil {
		return nil, err
	}

	return &Usecase{
		repoMail:  dep.RepoMail,
		idemp:     dep.Idempotency,
		cfg:       dep.Config,
		clock:     dep.Clock,
		validator: dep.Validator,
		ins:       dep.Instrument,
		htmlOTP:   htmlOTP,
		textOTP:   textOTP,
	}, nil
}

func (s *Usecase) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("notification.usecase").Start(ctx, name)
}

type executor interface {
	Execute(w io.Writer, data any) error
}

func render(tpl executor, data map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (s *Usecase) baseEmailTemplateData() map[string]any {
	return map[string]any{
		"support_email":   s.cfg.GetString("app.support_email"),
		"company_name":    s.cfg.GetString("app.name"),
		"company_address": s.cfg.GetString("app.address"),
		"year":            s.clock.Now().Format("2006"),
	}
}

func purposeLabel(purpose string) string {
	return strings.ToLower(strings.ReplaceAll(purpose, "_", " "))
}
