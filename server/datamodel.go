/******************************************************************************
 *
 *  Description :
 *
 *    Wire representation of client/server messages exchanged over a
 *    session: subscription control inbound, acknowledgements and event
 *    frames outbound.
 *
 *****************************************************************************/

package main

import (
	"time"

	"github.com/mercury-im/mercury/server/broker"
	t "github.com/mercury-im/mercury/server/store/types"
)

// MsgSub is a request to attach the session to a topic.
type MsgSub struct {
	// Id is the client-provided request id, echoed in the reply.
	Id string `json:"id,omitempty"`
	// Topic is a kind name: messages, chats, accounts, onlineStatus,
	// chatMessages, typingStatus, groupChatMetadata.
	Topic string `json:"topic"`
	// Key is the decimal ordinal of the user or chat the topic is keyed
	// by.
	Key string `json:"key"`
}

// MsgUnsub detaches the session from a topic.
type MsgUnsub struct {
	Id    string `json:"id,omitempty"`
	Topic string `json:"topic"`
	Key   string `json:"key"`
}

// ClientComMessage is a single client frame. Exactly one field is set.
type ClientComMessage struct {
	Sub   *MsgSub   `json:"sub,omitempty"`
	Unsub *MsgUnsub `json:"unsub,omitempty"`
}

// MsgCtrl is a reply to a client request or an unsolicited notice such
// as topic completion.
type MsgCtrl struct {
	Id        string    `json:"id,omitempty"`
	Code      int       `json:"code"`
	Text      string    `json:"text,omitempty"`
	Topic     string    `json:"topic,omitempty"`
	Key       string    `json:"key,omitempty"`
	Timestamp time.Time `json:"ts"`
}

// MsgData is one delivered domain event.
type MsgData struct {
	Topic     string    `json:"topic"`
	Key       string    `json:"key"`
	Event     string    `json:"event"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"ts"`
}

// ServerComMessage is a single server frame. Exactly one field is set.
type ServerComMessage struct {
	Ctrl *MsgCtrl `json:"ctrl,omitempty"`
	Data *MsgData `json:"data,omitempty"`
}

var topicKinds = map[string]broker.Kind{
	"messages":          broker.KindMessages,
	"chats":             broker.KindChats,
	"accounts":          broker.KindAccounts,
	"onlineStatus":      broker.KindOnlineStatus,
	"chatMessages":      broker.KindChatMessages,
	"typingStatus":      broker.KindTypingStatus,
	"groupChatMetadata": broker.KindGroupChatMetadata,
}

// parseTopic converts wire topic name and key into a broker TopicKey.
func parseTopic(topic, key string) (broker.TopicKey, bool) {
	kind, ok := topicKinds[topic]
	if !ok {
		return broker.TopicKey{}, false
	}
	id := t.ParseUid(key)
	if id.IsZero() {
		return broker.TopicKey{}, false
	}
	return broker.TopicKey{Kind: kind, ID: id}, true
}

// ctrlReply builds a MsgCtrl frame.
func ctrlReply(id string, code int, text string, key broker.TopicKey) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgCtrl{
		Id:        id,
		Code:      code,
		Text:      text,
		Topic:     key.Kind.String(),
		Key:       key.ID.String(),
		Timestamp: t.TimeNow(),
	}}
}

// dataFrame builds a MsgData frame for a delivered event.
func dataFrame(key broker.TopicKey, ev broker.Event) *ServerComMessage {
	return &ServerComMessage{Data: &MsgData{
		Topic:     key.Kind.String(),
		Key:       key.ID.String(),
		Event:     ev.EventName(),
		Payload:   ev,
		Timestamp: t.TimeNow(),
	}}
}
