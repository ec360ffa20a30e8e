package inbound

import (
	"cmp"
	"context"
	"log/slog"
	"slices"

	"github.com/shandysiswandi/yieldcycle/internal/pkg/config"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/goroutine"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/instrument"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/messaging"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/uid"
	"github.com/shandysiswandi/yieldcycle/internal/shared/event"
)

// RegisterMQConsumer starts the consumers listed in
// modules.notification.consumer_names.
func RegisterMQConsumer(
	ctx context.Context,
	cfg config.Config,
	routine *goroutine.Manager,
	messenger messaging.Consumer,
	uuid uid.StringID,
	uc uc,
	ins instrument.Instrumentation,
) {
	mqHandler := &MQHandler{uc: uc, uuid: uuid, ins: ins}

	enableConsumerNames := cfg.GetArray("modules.notification.consumer_names")
	concurrency := cmp.Or(cfg.GetInt("modules.notification.consumer_concurrency"), 10)

	var consumers = []struct {
		name    string
		topic   string // destination where publisher sent message
		group   string // nsq channel, nats queue group, kafka group
		handler messaging.Handler
	}{
		{
			name:    event.OTPIssuedDestinationConsumerNotification,
			topic:   event.OTPIssuedDestination,
			group:   event.OTPIssuedDestinationConsumerNotification,
			handler: mqHandler.OTPIssuedNotification,
		},
	}

	for _, consumer := range consumers {
		if !slices.Contains(enableConsumerNames, consumer.name) {
			continue
		}

		routine.Go(ctx, func(pCtx context.Context) error {
			slog.InfoContext(ctx, "Running job for handling consumer", "consumer", consumer.name)
			return messenger.Consume(pCtx,
				consumer.topic,
				consumer.handler,
				messaging.WithChannel(consumer.group),
				messaging.WithQueueGroup(consumer.group),
				messaging.WithGroup(consumer.group),
				messaging.WithAutoAck(true),
				messaging.WithConcurrency(concurrency),
				messaging.WithMaxInFlight(concurrency),
			)
		})
	}
}
