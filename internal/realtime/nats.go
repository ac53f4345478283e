package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/mroshb/campus_match/pkg/logger"
	"github.com/nats-io/nats.go"
)

const (
	natsStreamName    = "CAMPUS"
	natsSubjectPrefix = "campus."
)

// NATSBroker publishes events to a JetStream stream. Subscriptions are
// ephemeral push consumers that start at the newest message.
type NATSBroker struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewNATSBroker connects to url and makes sure the event stream exists.
func NewNATSBroker(url string, opts ...nats.Option) (*NATSBroker, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, err
	}

	if _, err := js.StreamInfo(natsStreamName); errors.Is(err, nats.ErrStreamNotFound) {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     natsStreamName,
			Subjects: []string{natsSubjectPrefix + ">"},
			Storage:  nats.MemoryStorage,
		})
		if err != nil {
			nc.Close()
			return nil, err
		}
	} else if err != nil {
		nc.Close()
		return nil, err
	}

	return &NATSBroker{conn: nc, js: js}, nil
}

func (b *NATSBroker) Publish(ctx context.Context, topic string, event Event) error {
	if b == nil {
		return errors.New("nil broker")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, err = b.js.Publish(natsSubjectPrefix+topic, data, nats.Context(ctx))
	return err
}

func (b *NATSBroker) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	if b == nil {
		return nil, errors.New("nil broker")
	}

	s := &natsSub{events: make(chan Event, subscriberBuffer)}

	handler := func(msg *nats.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			logger.Warn("Dropping malformed event", "topic", topic, "error", err)
			_ = msg.Ack()
			return
		}
		s.deliver(event, topic)
		_ = msg.Ack()
	}

	sub, err := b.js.Subscribe(natsSubjectPrefix+topic, handler, nats.DeliverNew(), nats.AckExplicit())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.sub = sub
	closed := s.closed
	s.mu.Unlock()
	if closed {
		_ = sub.Unsubscribe()
	}

	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()

	return s, nil
}

// Close shuts down the underlying NATS connection.
func (b *NATSBroker) Close() error {
	if b == nil {
		return nil
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
	}
	return nil
}

type natsSub struct {
	sub    *nats.Subscription
	events chan Event
	mu     sync.Mutex
	closed bool
}

func (s *natsSub) Events() <-chan Event {
	return s.events
}

func (s *natsSub) deliver(event Event, topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- event:
	default:
		logger.Warn("Dropping slow subscriber", "topic", topic)
		s.closeLocked()
	}
}

func (s *natsSub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *natsSub) closeLocked() error {
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.events)
	if s.sub == nil {
		return nil
	}
	return s.sub.Unsubscribe()
}
