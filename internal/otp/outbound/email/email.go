package email

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/codes"

	"github.com/shandysiswandi/yieldcycle/internal/otp/entity"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/instrument"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/mail"
)

// Mail delivers codes straight over SMTP as a plain text message.
type Mail struct {
	client  mail.Mail
	ins     instrument.Instrumentation
	appName string
}

func New(client mail.Mail, ins instrument.Instrumentation, appName string) *Mail {
	return &Mail{client: client, ins: ins, appName: appName}
}

func (m *Mail) Send(ctx context.Context, msg entity.Delivery) (*entity.DeliveryResult, error) {
	ctx, span := m.ins.Tracer("otp.outbound.email").Start(ctx, "Send")
	defer span.End()

	id, err := m.client.Send(ctx, m.compose(msg))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return &entity.DeliveryResult{Success: true, MessageID: id}, nil
}

func (m *Mail) compose(msg entity.Delivery) mail.Message {
	purpose := strings.ToLower(strings.ReplaceAll(msg.Purpose.String(), "_", " "))

	return mail.Message{
		To:      []string{msg.Destination},
		Subject: fmt.Sprintf("%s verification code", m.appName),
		TextBody: fmt.Sprintf(
			"Your %s code for %s is %s.\n\nIt expires at %s. If you did not request it, ignore this email.\n",
			m.appName, purpose, msg.Code, msg.ExpiresAt.UTC().Format("15:04 MST, 2 Jan 2006"),
		),
	}
}
