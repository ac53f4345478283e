package realtime

import (
	"context"
	"sync"

	"github.com/mroshb/campus_match/pkg/logger"
)

// MemoryBroker is an in-process hub for single-instance deployments and
// tests. A subscriber whose buffer is full is dropped; it reconnects and
// catches up from its message cursor.
type MemoryBroker struct {
	mu     sync.Mutex
	hubs   map[string]map[*memorySub]struct{}
	closed bool
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		hubs: make(map[string]map[*memorySub]struct{}),
	}
}

type memorySub struct {
	broker *MemoryBroker
	topic  string
	events chan Event
	once   sync.Once
}

func (s *memorySub) Events() <-chan Event {
	return s.events
}

func (s *memorySub) Close() error {
	s.broker.unregister(s)
	return nil
}

func (b *MemoryBroker) Publish(ctx context.Context, topic string, event Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.hubs[topic] {
		select {
		case sub.events <- event:
		default:
			logger.Warn("Dropping slow subscriber", "topic", topic)
			b.removeLocked(sub)
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	sub := &memorySub{
		broker: b,
		topic:  topic,
		events: make(chan Event, subscriberBuffer),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.events)
		return sub, nil
	}
	hub := b.hubs[topic]
	if hub == nil {
		hub = make(map[*memorySub]struct{})
		b.hubs[topic] = hub
	}
	hub[sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.unregister(sub)
	}()

	return sub, nil
}

// Subscribers returns the number of live subscriptions on topic.
func (b *MemoryBroker) Subscribers(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.hubs[topic])
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for _, hub := range b.hubs {
		for sub := range hub {
			b.removeLocked(sub)
		}
	}
	return nil
}

func (b *MemoryBroker) unregister(sub *memorySub) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(sub)
}

func (b *MemoryBroker) removeLocked(sub *memorySub) {
	if hub, ok := b.hubs[sub.topic]; ok {
		delete(hub, sub)
		if len(hub) == 0 {
			delete(b.hubs, sub.topic)
		}
	}
	sub.once.Do(func() { close(sub.events) })
}
