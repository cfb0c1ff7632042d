package publisher

import (
	"cloud.google.com/go/pubsub"
	"context"
	"github.com/pkg/errors"
	"github.com/tony-ross/actor-messaging/config"
	"github.com/tony-ross/actor-messaging/logger"
	"github.com/tony-ross/actor-messaging/models"
	"go.uber.org/zap"
)

const messageKeyAttribute = "messageKey"

type PubSubPublisher struct {
	PubSubClient *pubsub.Client
	PubSubTopic  *pubsub.Topic
	Logger       *zap.SugaredLogger
}

func NewPubSubPublisher(ctx context.Context, cfg *config.Configuration) (*PubSubPublisher, error) {
	client, err := pubsub.NewClient(ctx, cfg.PubSubProject)
	if err != nil {
		return nil, errors.Wrap(err, "error setting up PubSub client")
	}
	return newPubSubPublisher(client, cfg.MessageTopic), nil
}

func newPubSubPublisher(client *pubsub.Client, topicId string) *PubSubPublisher {
	return &PubSubPublisher{
		PubSubClient: client,
		PubSubTopic:  client.Topic(topicId),
		Logger:       logger.Logger.With("publisher", config.BackendPubSub, "topic", topicId),
	}
}

func (p *PubSubPublisher) Send(ctx context.Context, message models.OutboundMessage) error {
	attributes := make(map[string]string, len(message.Headers)+1)
	for key, value := range message.Headers {
		attributes[key] = value
	}
	attributes[messageKeyAttribute] = message.Key

	result := p.PubSubTopic.Publish(ctx, &pubsub.Message{
		Data:       []byte(message.Body),
		Attributes: attributes,
	})

	// Block until the server has accepted the message and assigned it an ID
	msgId, err := result.Get(ctx)
	if err != nil {
		return errors.Wrapf(err, "error publishing to PubSub topic %s", p.PubSubTopic.ID())
	}
	p.Logger.Debugw("Published message", "messageKey", message.Key, "msgId", msgId)
	return nil
}

func (p *PubSubPublisher) Topic() string {
	return p.PubSubTopic.ID()
}

func (p *PubSubPublisher) Close() error {
	p.PubSubTopic.Stop()
	return p.PubSubClient.Close()
}
