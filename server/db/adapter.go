// Package adapter contains the interfaces to be implemented by the database
// adapter.
package adapter

import (
	"encoding/json"

	t "github.com/mercury-im/mercury/server/store/types"
)

// Adapter is the interface that must be implemented by a database adapter.
// Every mutating method is atomic: it either commits all of its writes or
// none of them. Range scans return live (not soft-deleted) rows in
// ascending ordinal order; deleted ordinals are excluded from results but
// remain valid numeric boundaries in QueryOpt.
type Adapter interface {
	// General

	// Open and configure the adapter.
	Open(config json.RawMessage) error
	// Close the adapter.
	Close() error
	// IsOpen checks if the adapter is ready for use.
	IsOpen() bool
	// GetName returns the name of the adapter.
	GetName() string
	// SetMaxResults configures how many results can be returned in a
	// single call.
	SetMaxResults(val int) error
	// Stats returns the connection stats object.
	Stats() any

	// Users

	// UserCreate creates a user record.
	UserCreate(user *t.User) error
	// UserGet returns a live user record or nil if absent/deleted.
	UserGet(uid t.Uid) (*t.User, error)
	// UserGetAll returns live user records for the given ids.
	UserGetAll(ids ...t.Uid) ([]t.User, error)
	// UserUpdate applies the given field updates to a user record.
	UserUpdate(uid t.Uid, update map[string]any) error
	// UserDelete soft-deletes the user record.
	UserDelete(uid t.Uid) error

	// Chats

	// ChatCreate creates a chat together with its initial participants.
	ChatCreate(chat *t.Chat, parts []*t.Participant) error
	// ChatGet returns a live chat or nil if absent/deleted.
	ChatGet(cid t.Uid) (*t.Chat, error)
	// ChatUpdate applies the given field updates to a chat record.
	ChatUpdate(cid t.Uid, update map[string]any) error
	// ChatDelete soft-deletes the chat and hard-removes all dependent
	// state: participants, messages, statuses, stars, bookmarks, typing
	// records and deletion watermarks.
	ChatDelete(cid t.Uid) error
	// PrivateChatBetween returns the live private chat shared by the two
	// users, or nil if there is none.
	PrivateChatBetween(u1, u2 t.Uid) (*t.Chat, error)
	// ChatsForUser returns live chats the user participates in,
	// ascending by chat ordinal.
	ChatsForUser(uid t.Uid, opts *t.QueryOpt) ([]t.Chat, error)

	// Participants

	// ParticipantAdd adds a membership row. Returns ErrDuplicate if the
	// user is already a member.
	ParticipantAdd(p *t.Participant) error
	// ParticipantRemove removes a membership row. Returns ErrNotFound if
	// the user is not a member.
	ParticipantRemove(cid, uid t.Uid) error
	// ParticipantGet returns the membership row or nil if absent.
	ParticipantGet(cid, uid t.Uid) (*t.Participant, error)
	// ParticipantsForChat returns the chat's membership rows ascending
	// by user ordinal.
	ParticipantsForChat(cid t.Uid) ([]t.Participant, error)
	// ParticipantUpdate changes the admin flag of a membership row.
	ParticipantUpdate(cid, uid t.Uid, isAdmin bool) error

	// Messages

	// MessageSave saves a new message.
	MessageSave(msg *t.Message) error
	// MessageGet returns a live message or nil if absent/deleted.
	MessageGet(mid t.Uid) (*t.Message, error)
	// MessageUpdate replaces the stored message payload (poll votes).
	MessageUpdate(msg *t.Message) error
	// MessageDelete soft-deletes the message and hard-removes its
	// statuses, stars and bookmarks.
	MessageDelete(mid t.Uid) error
	// MessagesForChat returns live messages of the chat ascending by
	// ordinal, honoring QueryOpt bounds.
	MessagesForChat(cid t.Uid, opts *t.QueryOpt) ([]t.Message, error)

	// Message statuses

	// StatusCreate records a delivered/read status. Returns ErrDuplicate
	// if the same (message, user, status) row already exists.
	StatusCreate(st *t.MessageStatus) error
	// StatusesForMessage returns all status rows of a message.
	StatusesForMessage(mid t.Uid) ([]t.MessageStatus, error)

	// Contacts

	// ContactCreate adds a contact row. Returns ErrDuplicate if present.
	ContactCreate(c *t.Contact) error
	// ContactDelete removes a contact row. Returns ErrNotFound if absent.
	ContactDelete(owner, contact t.Uid) error
	// ContactsForUser returns the owner's contact rows ascending by row
	// ordinal.
	ContactsForUser(owner t.Uid, opts *t.QueryOpt) ([]t.Contact, error)
	// ContactHolders returns ids of users who hold the given user as a
	// contact.
	ContactHolders(contact t.Uid) ([]t.Uid, error)

	// Blocks

	// BlockCreate adds a block row. Returns ErrDuplicate if present.
	BlockCreate(b *t.BlockEntry) error
	// BlockDelete removes a block row. Returns ErrNotFound if absent.
	BlockDelete(blocker, blocked t.Uid) error
	// BlockGet returns the block row or nil if absent.
	BlockGet(blocker, blocked t.Uid) (*t.BlockEntry, error)
	// BlocksForUser returns the blocker's block rows ascending by row
	// ordinal.
	BlocksForUser(blocker t.Uid, opts *t.QueryOpt) ([]t.BlockEntry, error)
	// Blockers returns ids of users who hold a block against the given
	// user.
	Blockers(blocked t.Uid) ([]t.Uid, error)

	// Stars

	// StarCreate adds a star row. Returns ErrDuplicate if present.
	StarCreate(s *t.Star) error
	// StarDelete removes a star row. Returns ErrNotFound if absent.
	StarDelete(user, message t.Uid) error
	// StarGet returns the star row or nil if absent.
	StarGet(user, message t.Uid) (*t.Star, error)
	// StarsForUser returns the user's star rows ascending by row ordinal.
	StarsForUser(user t.Uid, opts *t.QueryOpt) ([]t.Star, error)

	// Bookmarks

	// BookmarkCreate adds a bookmark row. Returns ErrDuplicate if present.
	BookmarkCreate(b *t.Bookmark) error
	// BookmarkDelete removes a bookmark row. Returns ErrNotFound if absent.
	BookmarkDelete(user, message t.Uid) error
	// BookmarkGet returns the bookmark row or nil if absent.
	BookmarkGet(user, message t.Uid) (*t.Bookmark, error)
	// BookmarksForUser returns the user's bookmark rows ascending by row
	// ordinal.
	BookmarksForUser(user t.Uid, opts *t.QueryOpt) ([]t.Bookmark, error)

	// Typing

	// TypingCreate records that the user is typing in the chat. Returns
	// ErrDuplicate if the record already exists.
	TypingCreate(rec *t.TypingRecord) error
	// TypingDelete removes the typing record. Returns ErrNotFound if
	// there is none.
	TypingDelete(cid, uid t.Uid) error
	// TypingForChat returns the chat's current typing records.
	TypingForChat(cid t.Uid) ([]t.TypingRecord, error)

	// Chat deletion watermarks

	// ChatDeletionUpsert records or advances a per-(user, chat)
	// visibility watermark.
	ChatDeletionUpsert(d *t.ChatDeletion) error
	// ChatDeletionGet returns the watermark row or nil if absent.
	ChatDeletionGet(uid, cid t.Uid) (*t.ChatDeletion, error)
}
