package publisher

import (
	"context"
	"github.com/pkg/errors"
	"github.com/streadway/amqp"
	"github.com/tony-ross/actor-messaging/config"
	"github.com/tony-ross/actor-messaging/logger"
	"github.com/tony-ross/actor-messaging/models"
	"go.uber.org/zap"
	"sync"
)

type RabbitChannel interface {
	Close() error
	Tx() error
	TxCommit() error
	TxRollback() error
	NotifyClose(chan *amqp.Error) chan *amqp.Error
	NotifyReturn(chan amqp.Return) chan amqp.Return
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Error is reported when the rabbit connection or one of its channels fails.
// The receiver is expected to call Restart.
type Error struct {
	Err error
	*RabbitPublisher
}

type pendingMessage struct {
	message models.OutboundMessage
	result  chan error
}

type RabbitPublisher struct {
	Name            string
	RabbitConn      *amqp.Connection
	RabbitChannels  []RabbitChannel
	OutboundMsgChan chan *pendingMessage
	Config          *config.Configuration
	ErrChan         chan Error
	Logger          *zap.SugaredLogger
	Context         context.Context
	Cancel          context.CancelFunc
	closed          chan struct{}
	closeOnce       sync.Once
}

func NewRabbitPublisher(ctx context.Context, cfg *config.Configuration, errChan chan Error) (*RabbitPublisher, error) {
	p := &RabbitPublisher{}
	p.Name = cfg.RabbitExchange + ">" + cfg.MessageTopic
	p.Config = cfg
	p.ErrChan = errChan
	p.OutboundMsgChan = make(chan *pendingMessage)
	p.closed = make(chan struct{})
	p.Logger = logger.Logger.With("publisher", config.BackendRabbit, "name", p.Name)

	if err := p.Initialise(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *RabbitPublisher) Initialise(ctx context.Context) error {
	p.Context, p.Cancel = context.WithCancel(ctx)

	if err := p.initRabbitConnection(); err != nil {
		p.Cancel()
		return err
	}

	p.RabbitChannels = make([]RabbitChannel, 0)
	firstRabbitErr := make(chan *amqp.Error, 1)

	for i := 0; i < p.Config.PublishersPerBackend; i++ {
		// Open a rabbit channel for each publisher worker
		channel, returns, err := p.initRabbitChannel(firstRabbitErr)
		if err != nil {
			p.Cancel()
			p.CloseRabbit(true)
			return err
		}
		go p.Publish(p.Context, channel, returns)
	}
	go p.sendPublisherErrorOnRabbitError(firstRabbitErr)

	p.Logger.Infow("Rabbit publishers started", "publishers", p.Config.PublishersPerBackend)
	return nil
}

func (p *RabbitPublisher) initRabbitConnection() error {
	p.Logger.Debug("Initialising rabbit connection")
	var err error

	p.RabbitConn, err = amqp.Dial(p.Config.RabbitConnectionString)
	if err != nil {
		return errors.Wrap(err, "error connecting to rabbit")
	}
	return nil
}

func (p *RabbitPublisher) initRabbitChannel(firstRabbitErr chan *amqp.Error) (RabbitChannel, <-chan amqp.Return, error) {
	p.Logger.Debugf("Initialising rabbit channel no. %d", len(p.RabbitChannels)+1)
	channel, err := p.RabbitConn.Channel()
	if err != nil {
		return nil, nil, errors.Wrap(err, "error opening rabbit channel")
	}

	if err := channel.Tx(); err != nil {
		return nil, nil, errors.Wrap(err, "error making rabbit channel transactional")
	}

	// Mandatory messages that cannot be routed come back here before the commit completes.
	// One message per transaction means a buffer of one is never outgrown.
	returns := channel.NotifyReturn(make(chan amqp.Return, 1))

	// Listen for errors on the rabbit channel to handle both channel specific and connection wide exceptions
	rabbitChannelErrs := make(chan *amqp.Error)
	go p.handleRabbitChannelErrors(p.Context, rabbitChannelErrs, firstRabbitErr)
	channel.NotifyClose(rabbitChannelErrs)
	p.RabbitChannels = append(p.RabbitChannels, channel)

	return channel, returns, nil
}

func (p *RabbitPublisher) handleRabbitChannelErrors(ctx context.Context, rabbitChannelErrs <-chan *amqp.Error, firstRabbitErr chan<- *amqp.Error) {
	select {
	case rabbitErr := <-rabbitChannelErrs:
		if rabbitErr != nil {
			p.Logger.Errorw("Received rabbit channel error", "error", rabbitErr)
			select {
			// Only the first error triggers a restart, any after it are logged then ignored
			case firstRabbitErr <- rabbitErr:
			default:
			}
		} else {
			p.Logger.Debug("Rabbit channel shutting down")
		}
	case <-ctx.Done():
		return
	}
}

func (p *RabbitPublisher) sendPublisherErrorOnRabbitError(firstRabbitErr <-chan *amqp.Error) {
	ctx := p.Context
	select {
	case err := <-firstRabbitErr:
		p.ReportError(errors.Wrap(err, "rabbit connection or channel error"))
	case <-ctx.Done():
		return
	}
}

// Send hands the message to a publisher worker and waits for the outcome of its transaction.
func (p *RabbitPublisher) Send(ctx context.Context, message models.OutboundMessage) error {
	pending := &pendingMessage{message: message, result: make(chan error, 1)}
	select {
	case p.OutboundMsgChan <- pending:
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "message was not handed to a rabbit publisher")
	case <-p.closed:
		return errors.New("rabbit publisher is closed")
	}
	return <-pending.result
}

func (p *RabbitPublisher) Publish(ctx context.Context, channel RabbitChannel, returns <-chan amqp.Return) {
	for {
		select {
		case pending := <-p.OutboundMsgChan:
			pending.result <- p.publishInTransaction(pending.message, channel, returns)
		case <-ctx.Done():
			return
		}
	}
}

func (p *RabbitPublisher) publishInTransaction(message models.OutboundMessage, channel RabbitChannel, returns <-chan amqp.Return) error {
	ctxLogger := p.Logger.With("messageKey", message.Key)

	if err := p.publishMessageToRabbit(message, channel); err != nil {
		ctxLogger.Errorw("Failed to publish message", "error", err)
		if err := channel.TxRollback(); err != nil {
			ctxLogger.Errorw("Error rolling back rabbit transaction after failed message publish", "error", err)
		}
		return errors.Wrap(err, "error publishing to rabbit")
	}
	if err := channel.TxCommit(); err != nil {
		ctxLogger.Errorw("Failed to commit transaction to publish message", "error", err)
		if err := channel.TxRollback(); err != nil {
			ctxLogger.Errorw("Error rolling back rabbit transaction", "error", err)
		}
		return errors.Wrap(err, "error committing rabbit transaction")
	}

	select {
	case returned := <-returns:
		ctxLogger.Errorw("Message was returned unroutable", "replyCode", returned.ReplyCode, "replyText", returned.ReplyText)
		return errors.Errorf("message returned by rabbit: %d %s", returned.ReplyCode, returned.ReplyText)
	default:
		return nil
	}
}

func (p *RabbitPublisher) publishMessageToRabbit(message models.OutboundMessage, channel RabbitChannel) error {
	headers := amqp.Table{}
	for key, value := range message.Headers {
		headers[key] = value
	}

	if err := channel.Publish(
		p.Config.RabbitExchange,
		p.Config.MessageTopic,
		true,  // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "text/plain",
			MessageId:    message.Key,
			Headers:      headers,
			Body:         []byte(message.Body),
			DeliveryMode: amqp.Persistent,
		}); err != nil {
		return err
	}

	p.Logger.Debugw("Published message", "routingKey", p.Config.MessageTopic, "messageKey", message.Key)
	return nil
}

func (p *RabbitPublisher) Topic() string {
	return p.Config.MessageTopic
}

func (p *RabbitPublisher) Stop() {
	p.Logger.Debug("Stopping rabbit publisher")
	p.Cancel()
	p.CloseRabbit(false)
}

func (p *RabbitPublisher) Restart(ctx context.Context) {
	select {
	case <-p.closed:
		return
	default:
	}
	p.Stop()
	if err := p.Initialise(ctx); err != nil {
		p.Logger.Errorw("Failed to restart rabbit publisher", "error", err)
		p.ReportError(err)
	}
}

func (p *RabbitPublisher) Close() error {
	p.closeOnce.Do(func() {
		close(p.closed)
		p.Stop()
	})
	return nil
}

func (p *RabbitPublisher) ReportError(err error) {
	// Writing to a channel is a blocking operation, it waits till there is a consumer ready.
	// Do it in a go routine to ensure it gets written without blocking the caller.
	go p.sendError(err)
}

func (p *RabbitPublisher) sendError(err error) {
	select {
	case p.ErrChan <- Error{Err: err, RabbitPublisher: p}:
	case <-p.closed:
		p.Logger.Debugw("Dropping error from closed rabbit publisher", "error", err)
	}
}

func (p *RabbitPublisher) CloseRabbit(errOk bool) {
	if p.RabbitConn != nil {
		if err := p.RabbitConn.Close(); err != nil && !errOk {
			p.Logger.Errorw("Error closing rabbit connection", "error", err)
		}
	}
}
