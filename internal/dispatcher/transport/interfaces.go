// Package transport carries manifest envelopes from the Dispatcher to
// the out-of-process worker pool. The shape follows the teacher's
// queue package: a dependency-injectable Dialer/Connection/Channel
// trio wrapping github.com/streadway/amqp, so the real broker can be
// swapped for a mock in tests without touching the Dispatcher.
package transport

import "github.com/streadway/amqp"

// Connection abstracts an amqp.Connection.
type Connection interface {
	Channel() (Channel, error)
	Close() error
}

// Channel abstracts an amqp.Channel for the one exchange this package
// needs: declare it once, then publish.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Dialer abstracts amqp.Dial so tests can inject a mock.
type Dialer interface {
	Dial(url string) (Connection, error)
}

// realConnection wraps a real *amqp.Connection.
type realConnection struct{ conn *amqp.Connection }

func (r *realConnection) Channel() (Channel, error) {
	ch, err := r.conn.Channel()
	if err != nil {
		return nil, err
	}
	return &realChannel{ch: ch}, nil
}

func (r *realConnection) Close() error { return r.conn.Close() }

// realChannel wraps a real *amqp.Channel.
type realChannel struct{ ch *amqp.Channel }

func (r *realChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	return r.ch.ExchangeDeclare(name, kind, durable, autoDelete, internal, noWait, args)
}

func (r *realChannel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	return r.ch.Publish(exchange, key, mandatory, immediate, msg)
}

func (r *realChannel) Close() error { return r.ch.Close() }

// RealDialer implements Dialer using the real AMQP library.
type RealDialer struct{}

func (RealDialer) Dial(url string) (Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return &realConnection{conn: conn}, nil
}
