/******************************************************************************
 *
 *  Description :
 *
 *    Typed domain events. Events are ephemeral: constructed after a
 *    successful store commit, handed to the broker, delivered, discarded.
 *    Payloads are self-contained so recipients can render them without a
 *    follow-up query.
 *
 *****************************************************************************/

package domain

import (
	"time"

	t "github.com/mercury-im/mercury/server/store/types"
)

// NewMessage is emitted once per created message.
type NewMessage struct {
	Chat    t.Uid
	Message t.Message
}

func (*NewMessage) EventName() string { return "newMessage" }

// UpdatedMessage is emitted when a message's rendered state changes.
// Status changes and poll votes are chat-visible; star/bookmark changes
// set Only so the event reaches just the acting user.
type UpdatedMessage struct {
	Chat    t.Uid
	Message t.Message
	// Only restricts the audience to a single user when non-zero.
	Only t.Uid
}

func (*UpdatedMessage) EventName() string { return "updatedMessage" }

// DeletedMessage is emitted when a message is deleted by its sender.
type DeletedMessage struct {
	Chat    t.Uid
	Message t.Uid
}

func (*DeletedMessage) EventName() string { return "deletedMessage" }

// CreatedChat tells the listed users they are in a new chat.
type CreatedChat struct {
	Chat t.Chat
	// Users to notify. Carried in the payload because a freshly created
	// chat has no subscriber-visible state to resolve against yet.
	Users []t.Uid
}

func (*CreatedChat) EventName() string { return "createdChat" }

// NewParticipants is emitted when users join a group chat.
type NewParticipants struct {
	Chat  t.Uid
	Users []t.Uid
}

func (*NewParticipants) EventName() string { return "newParticipants" }

// ExitedUsers is emitted to the remaining participants when users leave
// or are removed from a group chat.
type ExitedUsers struct {
	Chat  t.Uid
	Users []t.Uid
}

func (*ExitedUsers) EventName() string { return "exitedUsers" }

// RemovedFromChat tells the removed user they are out.
type RemovedFromChat struct {
	Chat t.Uid
	User t.Uid
}

func (*RemovedFromChat) EventName() string { return "removedFromChat" }

// DeletedChat tells the listed users the chat is gone from their view:
// either the chat itself was deleted, or the user hid a private chat.
type DeletedChat struct {
	Chat t.Uid
	// Users to notify. Carried in the payload because by the time the
	// event is published the membership rows may no longer exist.
	Users []t.Uid
}

func (*DeletedChat) EventName() string { return "deletedChat" }

// ChatMetadata is emitted when a group chat's title, description,
// publicity or admin set changes.
type ChatMetadata struct {
	Chat t.Chat
}

func (*ChatMetadata) EventName() string { return "chatMetadata" }

// ContactAdded is emitted to the owner only.
type ContactAdded struct {
	Owner   t.Uid
	Contact t.User
}

func (*ContactAdded) EventName() string { return "contactAdded" }

// ContactRemoved is emitted to the owner only.
type ContactRemoved struct {
	Owner   t.Uid
	Contact t.Uid
}

func (*ContactRemoved) EventName() string { return "contactRemoved" }

// BlockedAccount is emitted to the blocker only, never the blocked party.
type BlockedAccount struct {
	Blocker t.Uid
	Blocked t.Uid
}

func (*BlockedAccount) EventName() string { return "blockedAccount" }

// UnblockedAccount is emitted to the unblocker only.
type UnblockedAccount struct {
	Blocker t.Uid
	Blocked t.Uid
}

func (*UnblockedAccount) EventName() string { return "unblockedAccount" }

// AccountUpdated is emitted when a user's profile changes: to the user,
// to everyone holding them as a contact, and to their private chat peers.
type AccountUpdated struct {
	User t.User
}

func (*AccountUpdated) EventName() string { return "accountUpdated" }

// DeletedAccount is emitted when an account is deleted.
type DeletedAccount struct {
	User t.Uid
	// Users to notify, snapshotted before the deletion cascade removes
	// the relations the audience would be resolved from.
	Users []t.Uid
}

func (*DeletedAccount) EventName() string { return "deletedAccount" }

// TypingUsers carries the full current set of typing users of a chat.
type TypingUsers struct {
	Chat  t.Uid
	Users []t.Uid
}

func (*TypingUsers) EventName() string { return "typingUsers" }

// OnlineStatus is emitted when a user transitions online or offline.
type OnlineStatus struct {
	User       t.Uid
	Online     bool
	LastOnline time.Time
}

func (*OnlineStatus) EventName() string { return "onlineStatus" }
