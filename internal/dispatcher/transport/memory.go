package transport

import (
	"context"
	"sync"
)

// Message is one envelope captured by Memory.
type Message struct {
	RoutingKey string
	Body       []byte
}

// Memory is an in-process Publisher double: no broker, just a
// recorded slice, for tests and single-process deployments that wire
// the Scheduler straight to an in-process worker pool.
type Memory struct {
	mu        sync.Mutex
	Published []Message
}

// NewMemory returns an empty Memory publisher.
func NewMemory() *Memory { return &Memory{} }

// Publish records msg.
func (m *Memory) Publish(ctx context.Context, routingKey string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Published = append(m.Published, Message{RoutingKey: routingKey, Body: body})
	return nil
}

// Last returns the most recently published message, or the zero value
// if none have been published.
func (m *Memory) Last() Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Published) == 0 {
		return Message{}
	}
	return m.Published[len(m.Published)-1]
}
