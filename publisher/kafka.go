package publisher

import (
	"context"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/tony-ross/actor-messaging/config"
	"github.com/tony-ross/actor-messaging/logger"
	"github.com/tony-ross/actor-messaging/models"
	"go.uber.org/zap"
	"sort"
	"time"
)

type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	Writer KafkaWriter
	topic  string
	Logger *zap.SugaredLogger
}

func NewKafkaPublisher(cfg *config.Configuration) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.MessageTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  1,
		// Each send writes a single message and waits for it, so flush without batching
		BatchSize:    1,
		WriteTimeout: time.Duration(cfg.KafkaWriteTimeoutSeconds) * time.Second,
	}
	return &KafkaPublisher{
		Writer: writer,
		topic:  cfg.MessageTopic,
		Logger: logger.Logger.With("publisher", config.BackendKafka, "topic", cfg.MessageTopic),
	}
}

func (p *KafkaPublisher) Send(ctx context.Context, message models.OutboundMessage) error {
	msg := kafka.Message{
		Key:     []byte(message.Key),
		Value:   []byte(message.Body),
		Headers: kafkaHeaders(message.Headers),
	}
	if err := p.Writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "error publishing to kafka topic %s", p.topic)
	}
	p.Logger.Debugw("Published message", "messageKey", message.Key)
	return nil
}

func (p *KafkaPublisher) Topic() string {
	return p.topic
}

func (p *KafkaPublisher) Close() error {
	return p.Writer.Close()
}

func kafkaHeaders(headers map[string]string) []kafka.Header {
	keys := make([]string, 0, len(headers))
	for key := range headers {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	kafkaHeaders := make([]kafka.Header, 0, len(keys))
	for _, key := range keys {
		kafkaHeaders = append(kafkaHeaders, kafka.Header{Key: key, Value: []byte(headers[key])})
	}
	return kafkaHeaders
}
