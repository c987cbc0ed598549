package events

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// AMQPPublisher forwards events to a topic exchange, routing key = event
// type, for downstream consumers (QA tooling, analytics).
type AMQPPublisher struct {
	conn     *amqp.Connection
	exchange string
	logger   *zap.Logger
}

// NewAMQPPublisher dials the broker and declares the topic exchange.
func NewAMQPPublisher(url, exchange string, logger *zap.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &AMQPPublisher{conn: conn, exchange: exchange, logger: logger}, nil
}

// RegisterHandlers subscribes the publisher to every scheduler event.
func (p *AMQPPublisher) RegisterHandlers(dispatcher Dispatcher) {
	if p == nil || dispatcher == nil {
		return
	}
	for _, eventType := range []EventType{
		EventChatCreated,
		EventChatAssigned,
		EventChatReleased,
		EventChatStatusChanged,
		EventChatGraceGranted,
		EventChatDeadlineExtended,
		EventChatMessageAdded,
	} {
		dispatcher.Subscribe(eventType, p.handle)
	}
}

func (p *AMQPPublisher) handle(ctx context.Context, event Event) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = ch.PublishWithContext(ctx, p.exchange, string(event.Type), false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   event.ID,
		Timestamp:   event.Timestamp,
		Body:        body,
	})
	if err != nil {
		p.logger.Warn("amqp publish failed",
			zap.String("exchange", p.exchange),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}
	return err
}

// Close releases the broker connection.
func (p *AMQPPublisher) Close() {
	if p != nil && p.conn != nil {
		_ = p.conn.Close()
	}
}
