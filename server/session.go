/******************************************************************************
 *
 *  Description :
 *
 *    A Session is a long-lived connection between a client and this
 *    server. It carries the client's identity, owns the client's broker
 *    subscriptions and pumps both request replies and delivered events
 *    into the connection's write loop.
 *
 *****************************************************************************/

package main

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mercury-im/mercury/server/broker"
	"github.com/mercury-im/mercury/server/logs"
	t "github.com/mercury-im/mercury/server/store/types"
)

const (
	// Default length of the session's outbound queue.
	defaultSendQueueLen = 128

	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Don't send a notification if the send queue did not clear within
	// this interval; drop the session instead.
	sendTimeout = 7 * time.Second
)

// Session is a single client connection.
type Session struct {
	// Session id.
	sid string
	// Authenticated user, ZeroUid when anonymous.
	uid t.Uid
	// Websocket connection.
	ws *websocket.Conn

	// Live broker subscriptions of this session.
	subsLock sync.Mutex
	subs     map[broker.TopicKey]*broker.Subscription

	// Outbound messages, buffered.
	send chan any
	// Channel for shutting down the session, buffer 1.
	stop chan any

	lastTouch time.Time
	store     *SessionStore
}

// queueOut attempts to send a message to the session write loop; if the
// send queue is full, fails after a timeout.
func (s *Session) queueOut(msg *ServerComMessage) bool {
	select {
	case s.send <- msg:
		return true
	case <-time.After(sendTimeout):
		logs.Err.Println("session: timeout pushing to queue", s.sid)
		return false
	}
}

// stopSession schedules the session for termination.
func (s *Session) stopSession() {
	select {
	case s.stop <- nil:
	default:
	}
}

// dispatch routes one decoded client frame.
func (s *Session) dispatch(msg *ClientComMessage) {
	switch {
	case msg.Sub != nil:
		s.handleSub(msg.Sub)
	case msg.Unsub != nil:
		s.handleUnsub(msg.Unsub)
	default:
		s.queueOut(ctrlReply("", 400, "malformed", broker.TopicKey{}))
	}
}

func (s *Session) handleSub(sub *MsgSub) {
	key, ok := parseTopic(sub.Topic, sub.Key)
	if !ok {
		s.queueOut(ctrlReply(sub.Id, 400, "malformed topic", broker.TopicKey{}))
		return
	}

	s.subsLock.Lock()
	_, already := s.subs[key]
	s.subsLock.Unlock()
	if already {
		// Whatever the reason for the duplicate request, it's not an
		// error: the session is attached exactly once.
		s.queueOut(ctrlReply(sub.Id, 304, "already subscribed", key))
		return
	}

	bsub, err := globals.broker.Subscribe(key, s.uid)
	if err != nil {
		code := 403
		if err == t.ErrNotFound {
			code = 404
		}
		s.queueOut(ctrlReply(sub.Id, code, err.Error(), key))
		return
	}

	s.subsLock.Lock()
	s.subs[key] = bsub
	s.subsLock.Unlock()

	s.queueOut(ctrlReply(sub.Id, 200, "subscribed", key))

	// Forward delivered events into the session queue until the broker
	// closes the subscription.
	go func() {
		for ev := range bsub.Events() {
			if !s.queueOut(dataFrame(key, ev)) {
				s.stopSession()
				return
			}
		}
		s.subsLock.Lock()
		live := s.subs[key] == bsub
		if live {
			delete(s.subs, key)
		}
		s.subsLock.Unlock()
		if live {
			s.queueOut(ctrlReply("", 205, "topic complete", key))
		}
	}()
}

func (s *Session) handleUnsub(unsub *MsgUnsub) {
	key, ok := parseTopic(unsub.Topic, unsub.Key)
	if !ok {
		s.queueOut(ctrlReply(unsub.Id, 400, "malformed topic", broker.TopicKey{}))
		return
	}

	s.subsLock.Lock()
	bsub := s.subs[key]
	delete(s.subs, key)
	s.subsLock.Unlock()

	if bsub == nil {
		s.queueOut(ctrlReply(unsub.Id, 304, "not subscribed", key))
		return
	}
	bsub.Cancel()
	s.queueOut(ctrlReply(unsub.Id, 200, "unsubscribed", key))
}

// cleanUp cancels all the session's subscriptions and removes it from
// the store.
func (s *Session) cleanUp() {
	s.subsLock.Lock()
	subs := make([]*broker.Subscription, 0, len(s.subs))
	for _, bsub := range s.subs {
		subs = append(subs, bsub)
	}
	s.subs = make(map[broker.TopicKey]*broker.Subscription)
	s.subsLock.Unlock()

	for _, bsub := range subs {
		bsub.Cancel()
	}
	s.store.Delete(s)
}

func serializeFrame(msg any) []byte {
	out, err := json.Marshal(msg)
	if err != nil {
		logs.Err.Println("session: failed to serialize frame:", err)
		return nil
	}
	return out
}
