package realtime

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/mroshb/campus_match/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisBroker(t *testing.T) (*RedisBroker, *miniredis.Miniredis) {
	t.Helper()
	logger.InitNop()

	mr := miniredis.RunT(t)
	b, err := NewRedisBroker(context.Background(), mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b, mr
}

func TestRedisBroker_RoundTrip(t *testing.T) {
	b, _ := newRedisBroker(t)
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, SessionTopic("s1"))
	require.NoError(t, err)
	other, err := b.Subscribe(ctx, SessionTopic("s2"))
	require.NoError(t, err)
	defer other.Close()

	require.NoError(t, b.Publish(ctx, SessionTopic("s1"), Event{Kind: EventMessage, SessionID: "s1", UserID: 7}))

	ev, ok := receive(t, sub)
	require.True(t, ok)
	assert.Equal(t, EventMessage, ev.Kind)
	assert.Equal(t, "s1", ev.SessionID)
	assert.Equal(t, uint(7), ev.UserID)

	select {
	case ev := <-other.Events():
		t.Fatalf("unexpected event on other topic: %+v", ev)
	default:
	}

	require.NoError(t, sub.Close())
	_, ok = receive(t, sub)
	assert.False(t, ok, "events channel closes after Close")
	assert.NoError(t, sub.Close())
}

func TestRedisBroker_SkipsMalformedPayload(t *testing.T) {
	b, mr := newRedisBroker(t)
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, UserTopic(3))
	require.NoError(t, err)
	defer sub.Close()

	mr.Publish(redisChannelPrefix+UserTopic(3), "not json")
	require.NoError(t, b.Publish(ctx, UserTopic(3), Event{Kind: EventBlindDatePaired, UserID: 3}))

	ev, ok := receive(t, sub)
	require.True(t, ok)
	assert.Equal(t, EventBlindDatePaired, ev.Kind)
}

func TestRedisBroker_CancelledContextEndsSubscription(t *testing.T) {
	b, _ := newRedisBroker(t)
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := b.Subscribe(ctx, SessionTopic("s1"))
	require.NoError(t, err)

	cancel()
	_, ok := receive(t, sub)
	assert.False(t, ok)
}

func TestNewRedisBroker_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisBroker(context.Background(), addr)
	assert.Error(t, err)
}
