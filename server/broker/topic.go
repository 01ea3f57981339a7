/******************************************************************************
 *
 *  Description :
 *
 *    A single registered topic: its subscription set and the goroutine
 *    which drains the topic's command queue in FIFO order.
 *
 *****************************************************************************/

package broker

import (
	"sync"

	"github.com/mercury-im/mercury/server/logs"
	t "github.com/mercury-im/mercury/server/store/types"
)

// Subscription is one live attachment to a topic. Events are read from
// Events(); the channel is closed when the subscription ends, whether by
// Cancel, eviction or topic completion.
type Subscription struct {
	// ID is unique across the broker's lifetime.
	ID  string
	Key TopicKey
	// User is ZeroUid for anonymous subscriptions.
	User t.Uid

	events chan Event
	broker *Broker
	// Set by the topic goroutine once the subscription is detached;
	// guards against double close.
	closed bool
}

// Events is the subscriber's receive side. Closed on termination.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Cancel detaches the subscription from its topic. Safe to call at any
// time and more than once; never blocks on pending deliveries.
func (s *Subscription) Cancel() {
	s.broker.lock.Lock()
	tp := s.broker.topics[s.Key]
	s.broker.lock.Unlock()
	if tp != nil {
		tp.post(topicCmd{detach: s})
	}
}

// topicCmd is one entry of a topic's serialized command queue. Exactly
// one of the fields is set.
type topicCmd struct {
	event    Event
	attach   *Subscription
	detach   *Subscription
	evict    t.Uid
	flush    func()
	complete bool
}

// topic owns its subscription set. All mutation happens on the run
// goroutine, fed through a queue which preserves post order.
type topic struct {
	broker *Broker
	key    TopicKey

	// Unbounded FIFO so that publishers never stall. Slow subscribers
	// are handled per subscription, not here.
	qlock sync.Mutex
	queue []topicCmd
	avail chan struct{}
	// Set once the run goroutine has processed a completion. Posts after
	// that are serviced inline by post().
	dead bool

	subs map[string]*Subscription
}

func newTopic(b *Broker, key TopicKey) *topic {
	return &topic{
		broker: b,
		key:    key,
		avail:  make(chan struct{}, 1),
		subs:   make(map[string]*Subscription),
	}
}

// post appends a command to the queue. Never blocks. Commands posted
// after the topic completed are serviced here so that flush callbacks
// always fire and late attaches see their channel closed.
func (tp *topic) post(cmd topicCmd) {
	tp.qlock.Lock()
	if tp.dead {
		tp.qlock.Unlock()
		tp.discard(cmd)
		return
	}
	tp.queue = append(tp.queue, cmd)
	tp.qlock.Unlock()
	select {
	case tp.avail <- struct{}{}:
	default:
	}
}

// discard services a command addressed to a completed topic.
func (tp *topic) discard(cmd topicCmd) {
	switch {
	case cmd.flush != nil:
		cmd.flush()
	case cmd.attach != nil && !cmd.attach.closed:
		cmd.attach.closed = true
		close(cmd.attach.events)
	}
}

// take removes the whole pending batch at once.
func (tp *topic) take() []topicCmd {
	tp.qlock.Lock()
	batch := tp.queue
	tp.queue = nil
	tp.qlock.Unlock()
	return batch
}

func (tp *topic) run() {
	defer tp.broker.running.Done()

	for range tp.avail {
		batch := tp.take()
		for i, cmd := range batch {
			switch {
			case cmd.event != nil:
				tp.deliver(cmd.event)
			case cmd.attach != nil:
				tp.subs[cmd.attach.ID] = cmd.attach
			case cmd.detach != nil:
				tp.drop(cmd.detach)
			case !cmd.evict.IsZero():
				for _, sub := range tp.subs {
					if sub.User == cmd.evict {
						tp.drop(sub)
					}
				}
			case cmd.flush != nil:
				cmd.flush()
			case cmd.complete:
				for _, sub := range tp.subs {
					tp.drop(sub)
				}
				tp.qlock.Lock()
				tp.dead = true
				rest := append(batch[i+1:], tp.queue...)
				tp.queue = nil
				tp.qlock.Unlock()
				for _, late := range rest {
					tp.discard(late)
				}
				return
			}
		}
	}
}

// deliver hands the event to every subscription's buffer. A full buffer
// means the subscriber has fallen too far behind; the event is dropped
// for that subscriber only.
func (tp *topic) deliver(ev Event) {
	for _, sub := range tp.subs {
		select {
		case sub.events <- ev:
			tp.broker.delivered.Add(1)
		default:
			tp.broker.dropped.Add(1)
			logs.Warn.Printf("broker: topic %s/%s dropping %s for slow subscriber %s",
				tp.key.Kind, tp.key.ID, ev.EventName(), sub.ID)
		}
	}
}

func (tp *topic) drop(sub *Subscription) {
	live, ok := tp.subs[sub.ID]
	if !ok || live.closed {
		return
	}
	live.closed = true
	delete(tp.subs, sub.ID)
	close(live.events)
}
