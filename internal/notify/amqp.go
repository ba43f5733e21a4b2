package notify

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

type amqpPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSink публикует события в topic exchange; routing key = имя события
type AMQPSink struct {
	conn     *amqp.Connection
	ch       amqpPublisher
	exchange string
}

func NewAMQPSink(url, exchange string) (*AMQPSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPSink{conn: conn, ch: ch, exchange: exchange}, nil
}

func (s *AMQPSink) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	err = s.ch.PublishWithContext(ctx, s.exchange, string(msg.Event), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    msg.SentAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", msg.Event, err)
	}
	return nil
}

func (s *AMQPSink) Close() error {
	if ch, ok := s.ch.(*amqp.Channel); ok && ch != nil {
		_ = ch.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
