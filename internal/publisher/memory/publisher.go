// Package memory provides the in-process publisher used when no Pub/Sub
// topic is configured. Tests also use it to assert on completion events.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Message is one recorded publish call.
type Message struct {
	ID      string
	Topic   string
	Payload any
}

// Publisher records publishes instead of sending them anywhere. Safe for
// concurrent use by the worker pool.
type Publisher struct {
	mu   sync.Mutex
	seq  int
	msgs []Message
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the payload and returns a synthetic message ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	msg := Message{
		ID:      fmt.Sprintf("mem-%d", p.seq),
		Topic:   topic,
		Payload: payload,
	}
	p.msgs = append(p.msgs, msg)
	return msg.ID, nil
}

// Messages returns a copy of everything published so far, in order.
func (p *Publisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Message, len(p.msgs))
	copy(out, p.msgs)
	return out
}
