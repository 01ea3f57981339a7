/******************************************************************************
 *
 *  Description :
 *
 *    Authorization-scoped event broker: maps (kind, key) topics to their
 *    live subscriptions and fans domain events out to them in publish
 *    order. One broker instance is owned by the process root and passed
 *    by reference to the domain layer and the transport.
 *
 *****************************************************************************/

// Package broker delivers domain events to live subscribers.
package broker

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	t "github.com/mercury-im/mercury/server/store/types"
)

// Kind enumerates the topic kinds of the registry.
type Kind int

const (
	// KindMessages is a user-keyed feed of message events from every
	// chat the user currently participates in.
	KindMessages Kind = iota
	// KindChats is a user-keyed feed of chat lifecycle events.
	KindChats
	// KindAccounts is a user-keyed feed of contact/block/account events.
	KindAccounts
	// KindOnlineStatus is a user-keyed feed of presence changes of the
	// user's contacts and private chat peers.
	KindOnlineStatus
	// KindChatMessages is the chat-keyed anonymous topic. It exists only
	// for public chats and may be subscribed to without authentication.
	KindChatMessages
	// KindTypingStatus is a chat-keyed feed of typing indicators.
	KindTypingStatus
	// KindGroupChatMetadata is a chat-keyed feed of title/publicity/admin
	// changes.
	KindGroupChatMetadata
)

func (k Kind) String() string {
	switch k {
	case KindMessages:
		return "messages"
	case KindChats:
		return "chats"
	case KindAccounts:
		return "accounts"
	case KindOnlineStatus:
		return "onlineStatus"
	case KindChatMessages:
		return "chatMessages"
	case KindTypingStatus:
		return "typingStatus"
	case KindGroupChatMetadata:
		return "groupChatMetadata"
	}
	return "unknown"
}

// UserKeyed reports whether topics of this kind are keyed by a user id
// and may only be subscribed to by that user.
func (k Kind) UserKeyed() bool {
	switch k {
	case KindMessages, KindChats, KindAccounts, KindOnlineStatus:
		return true
	}
	return false
}

// TopicKey addresses a single topic.
type TopicKey struct {
	Kind Kind
	// ID is a user id for user-keyed kinds, a chat id otherwise.
	ID t.Uid
}

// Event is a self-contained domain event. Payloads carry enough data for
// recipients to render without a follow-up query.
type Event interface {
	// EventName returns the wire name of the event type.
	EventName() string
}

// Resolver computes the audience of an event: the set of topics entitled
// to receive it, derived from live relational state at publish time.
type Resolver interface {
	Audience(ev Event) ([]TopicKey, error)
}

// Gate authorizes subscription attempts against the topic's backing
// entity. The viewer is ZeroUid for anonymous subscribers.
type Gate interface {
	Authorize(key TopicKey, viewer t.Uid) error
}

// Stats is a snapshot of broker delivery counters.
type Stats struct {
	Published int64
	Delivered int64
	Dropped   int64
}

// Broker is the topic registry plus the dispatch machinery.
type Broker struct {
	lock   sync.Mutex
	topics map[TopicKey]*topic
	// Number of topic goroutines still running.
	running sync.WaitGroup

	resolver Resolver
	gate     Gate
	// Per-subscription buffer size.
	subQueueLen int

	published atomic.Int64
	delivered atomic.Int64
	dropped   atomic.Int64
}

// DefaultSubQueueLen is the per-subscription buffer used when the caller
// does not specify one.
const DefaultSubQueueLen = 32

// New creates a broker. subQueueLen bounds each subscription's private
// buffer; a subscriber that falls behind by more than that loses events
// rather than stalling the topic (the drop is counted and logged).
func New(resolver Resolver, gate Gate, subQueueLen int) *Broker {
	if subQueueLen <= 0 {
		subQueueLen = DefaultSubQueueLen
	}
	return &Broker{
		topics:      make(map[TopicKey]*topic),
		resolver:    resolver,
		gate:        gate,
		subQueueLen: subQueueLen,
	}
}

// Subscribe opens a subscription to the given topic on behalf of viewer
// (ZeroUid for anonymous). Fails with the gate's error if the viewer is
// not entitled to the topic's backing entity at subscribe time.
func (b *Broker) Subscribe(key TopicKey, viewer t.Uid) (*Subscription, error) {
	if b.gate != nil {
		if err := b.gate.Authorize(key, viewer); err != nil {
			return nil, err
		}
	}

	sub := &Subscription{
		ID:     uuid.NewString(),
		Key:    key,
		User:   viewer,
		events: make(chan Event, b.subQueueLen),
		broker: b,
	}

	b.lock.Lock()
	tp := b.topics[key]
	if tp == nil {
		tp = newTopic(b, key)
		b.topics[key] = tp
		b.running.Add(1)
		go tp.run()
	}
	b.lock.Unlock()

	tp.post(topicCmd{attach: sub})
	return sub, nil
}

// Publish resolves the event's audience against current relational state
// and appends the event to every resolved topic's queue. Delivery is
// asynchronous; the call itself never blocks on subscribers.
func (b *Broker) Publish(ev Event) error {
	keys, err := b.resolver.Audience(ev)
	if err != nil {
		return err
	}
	b.publishTo(keys, ev)
	return nil
}

func (b *Broker) publishTo(keys []TopicKey, ev Event) {
	b.published.Add(1)
	b.lock.Lock()
	defer b.lock.Unlock()
	for _, key := range keys {
		if tp := b.topics[key]; tp != nil {
			tp.post(topicCmd{event: ev})
		}
	}
}

// Complete shuts the given topics down because their backing entity no
// longer exists: already-queued events are flushed, then every
// subscription is closed and the topics are dropped from the registry.
func (b *Broker) Complete(keys ...TopicKey) {
	b.lock.Lock()
	var doomed []*topic
	for _, key := range keys {
		if tp := b.topics[key]; tp != nil {
			doomed = append(doomed, tp)
			delete(b.topics, key)
		}
	}
	b.lock.Unlock()

	for _, tp := range doomed {
		tp.post(topicCmd{complete: true})
	}
}

// Evict closes the given user's subscriptions on the topic, e.g. after
// the user lost access to the backing entity. Other subscriptions are
// unaffected.
func (b *Broker) Evict(key TopicKey, user t.Uid) {
	b.lock.Lock()
	tp := b.topics[key]
	b.lock.Unlock()
	if tp != nil {
		tp.post(topicCmd{evict: user})
	}
}

// Flush blocks until every event queued before the call has been handed
// to its subscribers' buffers. Used by callers which need a quiescence
// point, primarily tests.
func (b *Broker) Flush() {
	b.lock.Lock()
	live := make([]*topic, 0, len(b.topics))
	for _, tp := range b.topics {
		live = append(live, tp)
	}
	b.lock.Unlock()

	var wg sync.WaitGroup
	wg.Add(len(live))
	for _, tp := range live {
		tp.post(topicCmd{flush: wg.Done})
	}
	wg.Wait()
}

// Shutdown completes all topics and waits for their goroutines to exit.
func (b *Broker) Shutdown() {
	b.lock.Lock()
	live := make([]*topic, 0, len(b.topics))
	for key, tp := range b.topics {
		live = append(live, tp)
		delete(b.topics, key)
	}
	b.lock.Unlock()

	for _, tp := range live {
		tp.post(topicCmd{complete: true})
	}
	b.running.Wait()
}

// TopicCount returns the number of registered topics.
func (b *Broker) TopicCount() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return len(b.topics)
}

// Stats returns a snapshot of the delivery counters.
func (b *Broker) Stats() Stats {
	return Stats{
		Published: b.published.Load(),
		Delivered: b.delivered.Load(),
		Dropped:   b.dropped.Load(),
	}
}
