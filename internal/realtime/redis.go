package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mroshb/campus_match/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const redisChannelPrefix = "campus:"

// RedisBroker fans events out through Redis pub/sub so every API instance
// sees every session.
type RedisBroker struct {
	rdb *redis.Client
}

// NewRedisBroker connects to addr and checks the connection.
func NewRedisBroker(ctx context.Context, addr string) (*RedisBroker, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisBroker{rdb: rdb}, nil
}

func (b *RedisBroker) Publish(ctx context.Context, topic string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, redisChannelPrefix+topic, data).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	ps := b.rdb.Subscribe(ctx, redisChannelPrefix+topic)
	// Wait for the subscription to be confirmed so no publish after this
	// call returns is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	sub := &redisSub{
		ps:     ps,
		events: make(chan Event, subscriberBuffer),
		done:   make(chan struct{}),
	}
	go sub.pump(ctx, topic)
	return sub, nil
}

func (b *RedisBroker) Close() error {
	return b.rdb.Close()
}

type redisSub struct {
	ps     *redis.PubSub
	events chan Event
	done   chan struct{}
	once   sync.Once
}

func (s *redisSub) Events() <-chan Event {
	return s.events
}

func (s *redisSub) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}

func (s *redisSub) pump(ctx context.Context, topic string) {
	defer close(s.events)
	ch := s.ps.Channel()

	for {
		select {
		case <-ctx.Done():
			_ = s.Close()
			return
		case <-s.done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				logger.Warn("Dropping malformed event", "topic", topic, "error", err)
				continue
			}
			select {
			case s.events <- event:
			default:
				logger.Warn("Dropping slow subscriber", "topic", topic)
				_ = s.Close()
				return
			}
		}
	}
}
