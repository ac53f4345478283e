package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub Subscription) (Event, bool) {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		return ev, ok
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}, false
	}
}

func TestMemoryBroker_FanOut(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()

	first, err := b.Subscribe(ctx, SessionTopic("s1"))
	require.NoError(t, err)
	second, err := b.Subscribe(ctx, SessionTopic("s1"))
	require.NoError(t, err)
	other, err := b.Subscribe(ctx, SessionTopic("s2"))
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, SessionTopic("s1"), Event{Kind: EventMessage, SessionID: "s1"}))

	for _, sub := range []Subscription{first, second} {
		ev, ok := receive(t, sub)
		require.True(t, ok)
		assert.Equal(t, EventMessage, ev.Kind)
		assert.Equal(t, "s1", ev.SessionID)
	}

	select {
	case ev := <-other.Events():
		t.Fatalf("unexpected event on other topic: %+v", ev)
	default:
	}
}

func TestMemoryBroker_CloseAndCancel(t *testing.T) {
	b := NewMemoryBroker()
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := b.Subscribe(ctx, UserTopic(7))
	require.NoError(t, err)
	assert.Equal(t, 1, b.Subscribers(UserTopic(7)))

	cancel()
	_, ok := receive(t, sub)
	assert.False(t, ok, "channel should close when context is cancelled")
	assert.Equal(t, 0, b.Subscribers(UserTopic(7)))

	// closing twice is harmless
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
}

func TestMemoryBroker_DropsSlowSubscriber(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, SessionTopic("s1"))
	require.NoError(t, err)

	for i := 0; i < subscriberBuffer+1; i++ {
		require.NoError(t, b.Publish(ctx, SessionTopic("s1"), Event{Kind: EventMessage}))
	}
	assert.Equal(t, 0, b.Subscribers(SessionTopic("s1")))

	count := 0
	for range sub.Events() {
		count++
	}
	assert.Equal(t, subscriberBuffer, count)
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "session.abc", SessionTopic("abc"))
	assert.Equal(t, "user.42", UserTopic(42))
}
