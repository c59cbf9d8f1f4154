package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/wsplatform/checkout-api/internal/payment"
)

// DefaultExchange is the topic exchange status changes are published to.
const DefaultExchange = "payments"

// amqpChannel is the subset of *amqp.Channel used for publishing.
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes status changes as persistent JSON messages to a
// durable topic exchange, routed by TopicFor(status).
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  amqpChannel
	exchange string
}

// DialAMQP connects to the broker and declares the exchange.
func DialAMQP(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	pub, err := NewAMQPPublisher(ch, exchange)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	pub.conn = conn
	return pub, nil
}

// NewAMQPPublisher declares the exchange on ch and returns a publisher.
func NewAMQPPublisher(ch amqpChannel, exchange string) (*AMQPPublisher, error) {
	if ch == nil {
		return nil, errors.New("events: amqp channel is required")
	}
	if exchange == "" {
		exchange = DefaultExchange
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &AMQPPublisher{channel: ch, exchange: exchange}, nil
}

// Name identifies the notifier in metrics.
func (p *AMQPPublisher) Name() string { return "amqp" }

// Notify publishes change under topic.
func (p *AMQPPublisher) Notify(ctx context.Context, topic string, change payment.StatusChange) error {
	body, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal status change: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel == nil {
		return errors.New("events: publisher closed")
	}
	err = p.channel.PublishWithContext(ctx, p.exchange, topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Type:         topic,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close releases the channel and connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var joined error
	if p.channel != nil {
		joined = errors.Join(joined, p.channel.Close())
		p.channel = nil
	}
	if p.conn != nil {
		joined = errors.Join(joined, p.conn.Close())
		p.conn = nil
	}
	return joined
}
