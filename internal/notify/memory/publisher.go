// Package memory keeps published article events in process for local runs
// and tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// DefaultRetain bounds how many events a Publisher keeps; older ones are
// dropped first.
const DefaultRetain = 1024

// Message is one published event as a subscriber would see it.
type Message struct {
	ID      string
	Topic   string
	Data    []byte
	Payload any
}

// Publisher retains the most recent events per process.
type Publisher struct {
	mu     sync.Mutex
	retain int
	seq    int
	buf    []Message
}

// New returns a Publisher retaining DefaultRetain events.
func New() *Publisher {
	return NewWithRetain(DefaultRetain)
}

// NewWithRetain returns a Publisher keeping at most retain events.
func NewWithRetain(retain int) *Publisher {
	if retain <= 0 {
		retain = DefaultRetain
	}
	return &Publisher{retain: retain}
}

// Publish encodes payload the way the Pub/Sub publisher does and records it.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("publish to %s: %w", topic, err)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode %s event: %w", topic, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	id := fmt.Sprintf("memory-%d", p.seq)
	p.buf = append(p.buf, Message{ID: id, Topic: topic, Data: data, Payload: payload})
	if over := len(p.buf) - p.retain; over > 0 {
		p.buf = append(p.buf[:0:0], p.buf[over:]...)
	}
	return id, nil
}

// Messages returns the retained events, oldest first.
func (p *Publisher) Messages() []Message {
	return p.filter(func(Message) bool { return true })
}

// Topic returns the retained events published to topic.
func (p *Publisher) Topic(topic string) []Message {
	return p.filter(func(m Message) bool { return m.Topic == topic })
}

func (p *Publisher) filter(keep func(Message) bool) []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Message, 0, len(p.buf))
	for _, m := range p.buf {
		if keep(m) {
			out = append(out, m)
		}
	}
	return out
}
