package transport

import (
	"context"
	"fmt"

	"github.com/streadway/amqp"
)

// defaultExchange is the topic exchange manifests are published to;
// one worker pool consumer binds to it per section 4.5's "ephemeral"
// worker class.
const defaultExchange = "tabsdata.workers.ephemeral"

// Config configures an AMQP publisher.
type Config struct {
	URL      string
	Exchange string // defaults to defaultExchange
}

// AMQP publishes manifest envelopes to a topic exchange. Grounded on
// the teacher's queue.RabbitMQService: dial, open a channel, declare
// the topology, publish JSON bodies, clean up on Close.
type AMQP struct {
	conn     Connection
	channel  Channel
	exchange string
}

// NewAMQP connects to a real broker at cfg.URL.
func NewAMQP(cfg Config) (*AMQP, error) {
	return NewAMQPWithDialer(cfg, RealDialer{})
}

// NewAMQPWithDialer connects using dialer, allowing tests to inject a
// mock in place of a live broker.
func NewAMQPWithDialer(cfg Config, dialer Dialer) (*AMQP, error) {
	if cfg.Exchange == "" {
		cfg.Exchange = defaultExchange
	}
	conn, err := dialer.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to AMQP broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	return &AMQP{conn: conn, channel: ch, exchange: cfg.Exchange}, nil
}

// Publish hands body to the exchange under routingKey. ctx is accepted
// for interface symmetry with other suspension points (section 5); the
// underlying streadway/amqp client has no context-aware publish call.
func (a *AMQP) Publish(ctx context.Context, routingKey string, body []byte) error {
	return a.channel.Publish(a.exchange, routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}

// Close releases the channel and connection.
func (a *AMQP) Close() error {
	if a.channel != nil {
		a.channel.Close()
	}
	if a.conn != nil {
		a.conn.Close()
	}
	return nil
}
