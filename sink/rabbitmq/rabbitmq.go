// Package rabbitmq publishes run events to a RabbitMQ topic exchange.
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/hupe1980/agentchain/core"
	"github.com/hupe1980/agentchain/runner"
)

// Config describes the broker connection.
type Config struct {
	URL      string
	Exchange string
	// RoutingKey is a prefix; the author of the event is appended.
	RoutingKey string
	Durable    bool
}

// Channel is the subset of *amqp.Channel the sink uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Sink implements runner.Sink.
type Sink struct {
	conn       *amqp.Connection
	ch         Channel
	exchange   string
	routingKey string
	mu         sync.Mutex
}

var _ runner.Sink = (*Sink)(nil)

// New dials the broker and declares the exchange.
func New(cfg Config) (*Sink, error) {
	if cfg.URL == "" {
		return nil, errors.New("rabbitmq url must not be empty")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}

	s, err := NewFromChannel(ch, cfg)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	s.conn = conn

	return s, nil
}

// NewFromChannel builds a sink on an existing channel.
func NewFromChannel(ch Channel, cfg Config) (*Sink, error) {
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = "agentchain.events"
	}

	routingKey := cfg.RoutingKey
	if routingKey == "" {
		routingKey = "events"
	}

	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, cfg.Durable, !cfg.Durable, false, false, nil); err != nil {
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	return &Sink{ch: ch, exchange: exchange, routingKey: routingKey}, nil
}

// Message is the published envelope.
type Message struct {
	Session core.SessionKey `json:"session"`
	Event   core.Event      `json:"event"`
}

// Publish implements runner.Sink. The routing key is
// "<prefix>.<app>.<author>".
func (s *Sink) Publish(ctx context.Context, key core.SessionKey, ev core.Event) error {
	body, err := json.Marshal(Message{Session: key, Event: ev})
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", ev.ID, err)
	}

	msg := amqp.Publishing{
		ContentType:   "application/json",
		MessageId:     ev.ID,
		CorrelationId: ev.InvocationID,
		Timestamp:     ev.Timestamp,
		Type:          eventType(ev),
		Body:          body,
	}

	// amqp channels are not safe for concurrent publishing
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ch.PublishWithContext(ctx, s.exchange, s.route(key, ev), false, false, msg); err != nil {
		return fmt.Errorf("failed to publish event %s: %w", ev.ID, err)
	}

	return nil
}

func (s *Sink) route(key core.SessionKey, ev core.Event) string {
	return strings.Join([]string{s.routingKey, sanitize(key.AppName), sanitize(ev.Author)}, ".")
}

func sanitize(part string) string {
	if part == "" {
		return "_"
	}

	return strings.NewReplacer(".", "_", "*", "_", "#", "_").Replace(part)
}

func eventType(ev core.Event) string {
	switch {
	case ev.IsError():
		return "failure"
	case ev.IsFinal():
		return "final"
	default:
		return "progress"
	}
}

// Close releases the channel and connection.
func (s *Sink) Close() error {
	if s == nil {
		return nil
	}

	if s.ch != nil {
		_ = s.ch.Close()
	}

	if s.conn != nil {
		return s.conn.Close()
	}

	return nil
}
