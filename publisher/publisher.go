package publisher

import (
	"context"
	"github.com/pkg/errors"
	"github.com/tony-ross/actor-messaging/config"
	"github.com/tony-ross/actor-messaging/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Publisher sends outbound messages to the configured topic on a message broker.
// Send makes exactly one publish attempt and blocks until the broker has accepted or rejected it.
type Publisher interface {
	Send(ctx context.Context, message models.OutboundMessage) error
	Topic() string
	Close() error
}

func New(ctx context.Context, cfg *config.Configuration, errChan chan Error) (Publisher, error) {
	switch cfg.QueueBackend {
	case config.BackendKafka:
		return NewKafkaPublisher(cfg), nil
	case config.BackendPubSub:
		return NewPubSubPublisher(ctx, cfg)
	case config.BackendRabbit:
		return NewRabbitPublisher(ctx, cfg, errChan)
	}
	return nil, errors.Errorf("unknown queue backend %q", cfg.QueueBackend)
}

// NewMessage builds an outbound message carrying the trace context of ctx in its headers.
func NewMessage(ctx context.Context, body string) models.OutboundMessage {
	message := models.NewOutboundMessage(body)
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(message.Headers))
	return message
}
