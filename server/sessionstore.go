/******************************************************************************
 *
 *  Description :
 *
 *    Session management: a store of currently active sessions keyed by
 *    session id.
 *
 *****************************************************************************/

package main

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mercury-im/mercury/server/broker"
	t "github.com/mercury-im/mercury/server/store/types"
)

// SessionStore holds live sessions.
type SessionStore struct {
	lock sync.Mutex
	sess map[string]*Session

	// Send queue length for new sessions.
	sendQueueLen int
}

// NewSessionStore initializes a session store.
func NewSessionStore(sendQueueLen int) *SessionStore {
	if sendQueueLen <= 0 {
		sendQueueLen = defaultSendQueueLen
	}
	return &SessionStore{
		sess:         make(map[string]*Session),
		sendQueueLen: sendQueueLen,
	}
}

// NewSession creates a new session and saves it to the store.
func (ss *SessionStore) NewSession(conn *websocket.Conn, uid t.Uid) *Session {
	s := &Session{
		sid:       uuid.NewString(),
		uid:       uid,
		ws:        conn,
		subs:      make(map[broker.TopicKey]*broker.Subscription),
		send:      make(chan any, ss.sendQueueLen),
		stop:      make(chan any, 1),
		lastTouch: time.Now(),
		store:     ss,
	}

	ss.lock.Lock()
	ss.sess[s.sid] = s
	ss.lock.Unlock()

	statsInc("LiveSessions", 1)
	statsInc("TotalSessions", 1)
	return s
}

// Get fetches a session by id.
func (ss *SessionStore) Get(sid string) *Session {
	ss.lock.Lock()
	defer ss.lock.Unlock()
	return ss.sess[sid]
}

// Delete removes the session from the store.
func (ss *SessionStore) Delete(s *Session) {
	ss.lock.Lock()
	defer ss.lock.Unlock()
	if _, ok := ss.sess[s.sid]; ok {
		delete(ss.sess, s.sid)
		statsInc("LiveSessions", -1)
	}
}

// Count returns the number of live sessions.
func (ss *SessionStore) Count() int {
	ss.lock.Lock()
	defer ss.lock.Unlock()
	return len(ss.sess)
}

// Shutdown terminates all sessions.
func (ss *SessionStore) Shutdown() {
	ss.lock.Lock()
	defer ss.lock.Unlock()
	for _, s := range ss.sess {
		s.stopSession()
	}
	ss.sess = make(map[string]*Session)
}
