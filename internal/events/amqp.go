package events

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// AMQPChannel is the part of *amqp.Channel the forwarder uses.
type AMQPChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPForwarder copies bus events to a RabbitMQ topic exchange, routed by
// "booking.<event type>". Messages are persistent.
type AMQPForwarder struct {
	ch       AMQPChannel
	conn     *amqp.Connection
	exchange string
	timeout  time.Duration
	logger   *zerolog.Logger
}

// DialAMQP connects to the broker and declares the exchange.
func DialAMQP(url, exchange string, logger *zerolog.Logger) (*AMQPForwarder, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	f, err := NewAMQPForwarder(ch, exchange, logger)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	f.conn = conn
	return f, nil
}

// NewAMQPForwarder declares a durable topic exchange on ch.
func NewAMQPForwarder(ch AMQPChannel, exchange string, logger *zerolog.Logger) (*AMQPForwarder, error) {
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("rabbitmq exchange declare: %w", err)
	}
	l := logger.With().Str("component", "amqp").Logger()
	return &AMQPForwarder{
		ch:       ch,
		exchange: exchange,
		timeout:  5 * time.Second,
		logger:   &l,
	}, nil
}

// RoutingKey maps an event type to its routing key.
func RoutingKey(eventType string) string {
	return "booking." + eventType
}

// Handle is an EventHandler.
func (f *AMQPForwarder) Handle(event *Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.CreatedAt.UTC(),
		Type:         event.Type,
		Body:         event.Payload,
	}
	if err := f.ch.PublishWithContext(ctx, f.exchange, RoutingKey(event.Type), false, false, msg); err != nil {
		f.logger.Error().Err(err).Str("event", event.Type).Msg("Failed to publish event to broker")
		return fmt.Errorf("rabbitmq publish %s: %w", event.Type, err)
	}
	f.logger.Debug().Str("event", event.Type).Msg("Event forwarded to broker")
	return nil
}

// Attach subscribes the forwarder to every booking event on bus.
func (f *AMQPForwarder) Attach(bus *EventBus) {
	bus.SubscribeAll(f.Handle)
}

func (f *AMQPForwarder) Close() error {
	err := f.ch.Close()
	if f.conn != nil {
		if cerr := f.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
