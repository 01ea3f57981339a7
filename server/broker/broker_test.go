package broker

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	t "github.com/mercury-im/mercury/server/store/types"
)

// testEvent routes to a fixed set of topics.
type testEvent struct {
	name string
	to   []TopicKey
}

func (ev *testEvent) EventName() string { return ev.name }

// routeResolver reads the audience off the event itself.
type routeResolver struct{}

func (routeResolver) Audience(ev Event) ([]TopicKey, error) {
	return ev.(*testEvent).to, nil
}

// openGate admits everyone. denyGate admits no one.
type openGate struct{}

func (openGate) Authorize(TopicKey, t.Uid) error { return nil }

type denyGate struct{}

func (denyGate) Authorize(TopicKey, t.Uid) error { return t.ErrPermissionDenied }

func newTestBroker(buf int) *Broker {
	return New(routeResolver{}, openGate{}, buf)
}

func collect(sub *Subscription, n int) []string {
	var names []string
	for i := 0; i < n; i++ {
		ev, ok := <-sub.Events()
		if !ok {
			break
		}
		names = append(names, ev.EventName())
	}
	return names
}

func TestSubscribeGate(t_ *testing.T) {
	b := New(routeResolver{}, denyGate{}, 0)
	defer b.Shutdown()

	_, err := b.Subscribe(TopicKey{Kind: KindChats, ID: 1}, 1)
	assert.ErrorIs(t_, err, t.ErrPermissionDenied)
	assert.Equal(t_, 0, b.TopicCount())
}

func TestPublishFanout(t_ *testing.T) {
	b := newTestBroker(0)
	defer b.Shutdown()

	key := TopicKey{Kind: KindChatMessages, ID: 7}
	s1, err := b.Subscribe(key, 1)
	require.NoError(t_, err)
	s2, err := b.Subscribe(key, 2)
	require.NoError(t_, err)
	// Anonymous subscriber on the same topic.
	s3, err := b.Subscribe(key, t.ZeroUid)
	require.NoError(t_, err)

	require.NoError(t_, b.Publish(&testEvent{name: "messageSent", to: []TopicKey{key}}))
	b.Flush()

	for _, sub := range []*Subscription{s1, s2, s3} {
		assert.Equal(t_, []string{"messageSent"}, collect(sub, 1))
	}
	assert.Equal(t_, int64(3), b.Stats().Delivered)
}

func TestPublishOrder(t_ *testing.T) {
	b := newTestBroker(128)
	defer b.Shutdown()

	key := TopicKey{Kind: KindMessages, ID: 3}
	sub, err := b.Subscribe(key, 3)
	require.NoError(t_, err)

	want := []string{"a", "b", "c", "d", "e"}
	for _, name := range want {
		require.NoError(t_, b.Publish(&testEvent{name: name, to: []TopicKey{key}}))
	}
	b.Flush()

	assert.Equal(t_, want, collect(sub, len(want)))
}

func TestPublishNoSubscribers(t_ *testing.T) {
	b := newTestBroker(0)
	defer b.Shutdown()

	// No topic is materialized for an audience with no live
	// subscriptions; the event is simply not retained.
	require.NoError(t_, b.Publish(&testEvent{
		name: "chatCreated",
		to:   []TopicKey{{Kind: KindChats, ID: 9}},
	}))
	assert.Equal(t_, 0, b.TopicCount())
	assert.Equal(t_, int64(0), b.Stats().Delivered)
}

func TestSlowSubscriberDrops(t_ *testing.T) {
	b := newTestBroker(2)
	defer b.Shutdown()

	key := TopicKey{Kind: KindTypingStatus, ID: 5}
	sub, err := b.Subscribe(key, 5)
	require.NoError(t_, err)

	// Five events into a buffer of two: the last three are dropped for
	// this subscriber, the topic itself never stalls.
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t_, b.Publish(&testEvent{name: name, to: []TopicKey{key}}))
	}
	b.Flush()

	assert.Equal(t_, []string{"a", "b"}, collect(sub, 2))
	assert.Equal(t_, int64(3), b.Stats().Dropped)
}

func TestCancel(t_ *testing.T) {
	b := newTestBroker(0)
	defer b.Shutdown()

	key := TopicKey{Kind: KindAccounts, ID: 2}
	sub, err := b.Subscribe(key, 2)
	require.NoError(t_, err)

	sub.Cancel()
	b.Flush()

	_, open := <-sub.Events()
	assert.False(t_, open, "events channel should be closed after Cancel")

	// Double cancel is a no-op.
	sub.Cancel()
	b.Flush()

	require.NoError(t_, b.Publish(&testEvent{name: "late", to: []TopicKey{key}}))
	b.Flush()
	assert.Equal(t_, int64(0), b.Stats().Delivered)
}

func TestEvict(t_ *testing.T) {
	b := newTestBroker(4)
	defer b.Shutdown()

	key := TopicKey{Kind: KindGroupChatMetadata, ID: 11}
	evicted, err := b.Subscribe(key, 20)
	require.NoError(t_, err)
	kept, err := b.Subscribe(key, 21)
	require.NoError(t_, err)

	b.Evict(key, 20)
	b.Flush()

	_, open := <-evicted.Events()
	assert.False(t_, open, "evicted subscription should be closed")

	require.NoError(t_, b.Publish(&testEvent{name: "titleChanged", to: []TopicKey{key}}))
	b.Flush()
	assert.Equal(t_, []string{"titleChanged"}, collect(kept, 1))
}

func TestComplete(t_ *testing.T) {
	b := newTestBroker(4)
	defer b.Shutdown()

	key := TopicKey{Kind: KindChatMessages, ID: 13}
	sub, err := b.Subscribe(key, 1)
	require.NoError(t_, err)

	// Events published before completion still reach the subscriber.
	require.NoError(t_, b.Publish(&testEvent{name: "messageSent", to: []TopicKey{key}}))
	b.Complete(key)
	b.Flush()

	assert.Equal(t_, []string{"messageSent"}, collect(sub, 1))
	_, open := <-sub.Events()
	assert.False(t_, open, "subscription should be closed after Complete")
	assert.Equal(t_, 0, b.TopicCount())

	// The completed topic accepts nothing further.
	require.NoError(t_, b.Publish(&testEvent{name: "ghost", to: []TopicKey{key}}))
	b.Flush()
	assert.Equal(t_, int64(1), b.Stats().Delivered)
}

func TestFlushQuiescence(t_ *testing.T) {
	b := newTestBroker(1024)
	defer b.Shutdown()

	key := TopicKey{Kind: KindMessages, ID: 8}
	sub, err := b.Subscribe(key, 8)
	require.NoError(t_, err)

	const n = 200
	var wg sync.WaitGroup
	wg.Add(4)
	for w := 0; w < 4; w++ {
		go func() {
			defer wg.Done()
			for i := 0; i < n/4; i++ {
				b.Publish(&testEvent{name: "tick", to: []TopicKey{key}})
			}
		}()
	}
	wg.Wait()
	b.Flush()

	// After Flush every published event is buffered and readable without
	// further waiting.
	assert.Len(t_, collect(sub, n), n)
	assert.Equal(t_, int64(n), b.Stats().Delivered)
}

func TestSubscribeAfterComplete(t_ *testing.T) {
	b := newTestBroker(0)
	defer b.Shutdown()

	key := TopicKey{Kind: KindTypingStatus, ID: 4}
	first, err := b.Subscribe(key, 1)
	require.NoError(t_, err)
	b.Complete(key)
	b.Flush()
	_, open := <-first.Events()
	require.False(t_, open)

	// A fresh subscription materializes a new topic. Whether that is
	// allowed is the gate's decision, not the broker's.
	second, err := b.Subscribe(key, 1)
	require.NoError(t_, err)
	require.NoError(t_, b.Publish(&testEvent{name: "typing", to: []TopicKey{key}}))
	b.Flush()
	assert.Equal(t_, []string{"typing"}, collect(second, 1))
}
