// Package store provides a uniform interface to the database adapter and
// owns the ordinal generator. One Store instance is constructed by the
// process root and shared by reference; there are no package-level
// singletons.
package store

import (
	"encoding/json"
	"errors"

	adapter "github.com/mercury-im/mercury/server/db"
	t "github.com/mercury-im/mercury/server/store/types"
)

// Store is the main object for interacting with persistent storage.
type Store struct {
	adp  adapter.Adapter
	uGen t.UidGenerator

	// Object mappers, one per entity family.
	Users     UsersObjMapper
	Chats     ChatsObjMapper
	Messages  MessagesObjMapper
	Contacts  ContactsObjMapper
	Blocks    BlocksObjMapper
	Stars     StarsObjMapper
	Bookmarks BookmarksObjMapper
	Typing    TypingObjMapper
}

// Open initializes the store: opens the adapter and seeds the ordinal
// generator.
//
//	workerId - unique id of this process for ordinal generation
//	adp      - the database adapter to use
//	jsonconf - adapter configuration
func Open(workerId int, adp adapter.Adapter, jsonconf json.RawMessage) (*Store, error) {
	if adp == nil {
		return nil, errors.New("store: no adapter provided")
	}
	if workerId < 0 || workerId > 1023 {
		return nil, errors.New("store: invalid worker id")
	}

	s := &Store{adp: adp}
	if err := s.uGen.Init(uint(workerId)); err != nil {
		return nil, errors.New("store: failed to init ordinal generator: " + err.Error())
	}

	if !adp.IsOpen() {
		if err := adp.Open(jsonconf); err != nil {
			return nil, err
		}
	}

	s.Users = UsersObjMapper{s}
	s.Chats = ChatsObjMapper{s}
	s.Messages = MessagesObjMapper{s}
	s.Contacts = ContactsObjMapper{s}
	s.Blocks = BlocksObjMapper{s}
	s.Stars = StarsObjMapper{s}
	s.Bookmarks = BookmarksObjMapper{s}
	s.Typing = TypingObjMapper{s}
	return s, nil
}

// Close terminates the connection to persistent storage.
func (s *Store) Close() error {
	if s.adp.IsOpen() {
		return s.adp.Close()
	}
	return nil
}

// GetAdapterName returns the name of the current adapter.
func (s *Store) GetAdapterName() string {
	return s.adp.GetName()
}

// DbStats returns the adapter's stats object.
func (s *Store) DbStats() any {
	return s.adp.Stats()
}

// GetUid returns a new unique ordinal.
func (s *Store) GetUid() t.Uid {
	return s.uGen.Get()
}

// UsersObjMapper is a users struct to hold methods for persistence mapping
// for the User object.
type UsersObjMapper struct {
	s *Store
}

// Create assigns an ordinal to the user and persists the record.
func (m UsersObjMapper) Create(user *t.User) (*t.User, error) {
	user.Id = m.s.GetUid()
	user.CreatedAt = t.TimeNow()
	if err := m.s.adp.UserCreate(user); err != nil {
		return nil, err
	}
	return user, nil
}

// Get loads a live user record.
func (m UsersObjMapper) Get(uid t.Uid) (*t.User, error) {
	return m.s.adp.UserGet(uid)
}

// GetAll loads live user records for the given ids.
func (m UsersObjMapper) GetAll(ids ...t.Uid) ([]t.User, error) {
	return m.s.adp.UserGetAll(ids...)
}

// Update applies the given field updates.
func (m UsersObjMapper) Update(uid t.Uid, update map[string]any) error {
	return m.s.adp.UserUpdate(uid, update)
}

// Delete soft-deletes the user record.
func (m UsersObjMapper) Delete(uid t.Uid) error {
	return m.s.adp.UserDelete(uid)
}

// ChatsObjMapper holds methods for persistence mapping of Chat objects and
// their membership rows.
type ChatsObjMapper struct {
	s *Store
}

// CreatePrivate creates a private chat between two users.
func (m ChatsObjMapper) CreatePrivate(u1, u2 t.Uid) (*t.Chat, error) {
	now := t.TimeNow()
	chat := &t.Chat{
		ObjHeader: t.ObjHeader{Id: m.s.GetUid(), CreatedAt: now},
		Kind:      t.ChatPrivate,
	}
	parts := []*t.Participant{
		{Chat: chat.Id, User: u1, CreatedAt: now},
		{Chat: chat.Id, User: u2, CreatedAt: now},
	}
	if err := m.s.adp.ChatCreate(chat, parts); err != nil {
		return nil, err
	}
	return chat, nil
}

// CreateGroup creates a group chat. The creator becomes its first admin.
func (m ChatsObjMapper) CreateGroup(chat *t.Chat, creator t.Uid, members []t.Uid) (*t.Chat, error) {
	now := t.TimeNow()
	chat.Id = m.s.GetUid()
	chat.CreatedAt = now
	chat.Kind = t.ChatGroup

	parts := []*t.Participant{{Chat: chat.Id, User: creator, IsAdmin: true, CreatedAt: now}}
	for _, uid := range members {
		if uid == creator {
			continue
		}
		parts = append(parts, &t.Participant{Chat: chat.Id, User: uid, CreatedAt: now})
	}
	if err := m.s.adp.ChatCreate(chat, parts); err != nil {
		return nil, err
	}
	return chat, nil
}

// Get loads a live chat record.
func (m ChatsObjMapper) Get(cid t.Uid) (*t.Chat, error) {
	return m.s.adp.ChatGet(cid)
}

// Update applies the given field updates.
func (m ChatsObjMapper) Update(cid t.Uid, update map[string]any) error {
	return m.s.adp.ChatUpdate(cid, update)
}

// Delete removes the chat and everything that depends on it.
func (m ChatsObjMapper) Delete(cid t.Uid) error {
	return m.s.adp.ChatDelete(cid)
}

// PrivateBetween returns the live private chat of the two users or nil.
func (m ChatsObjMapper) PrivateBetween(u1, u2 t.Uid) (*t.Chat, error) {
	return m.s.adp.PrivateChatBetween(u1, u2)
}

// ForUser returns live chats of the user ascending by chat ordinal.
func (m ChatsObjMapper) ForUser(uid t.Uid, opts *t.QueryOpt) ([]t.Chat, error) {
	return m.s.adp.ChatsForUser(uid, opts)
}

// Participants returns the chat's membership rows.
func (m ChatsObjMapper) Participants(cid t.Uid) ([]t.Participant, error) {
	return m.s.adp.ParticipantsForChat(cid)
}

// Participant returns a single membership row or nil.
func (m ChatsObjMapper) Participant(cid, uid t.Uid) (*t.Participant, error) {
	return m.s.adp.ParticipantGet(cid, uid)
}

// AddParticipant adds a user to the chat.
func (m ChatsObjMapper) AddParticipant(cid, uid t.Uid, isAdmin bool) error {
	return m.s.adp.ParticipantAdd(&t.Participant{
		Chat: cid, User: uid, IsAdmin: isAdmin, CreatedAt: t.TimeNow()})
}

// RemoveParticipant removes a user from the chat.
func (m ChatsObjMapper) RemoveParticipant(cid, uid t.Uid) error {
	return m.s.adp.ParticipantRemove(cid, uid)
}

// SetAdmin changes the admin flag of a membership row.
func (m ChatsObjMapper) SetAdmin(cid, uid t.Uid, isAdmin bool) error {
	return m.s.adp.ParticipantUpdate(cid, uid, isAdmin)
}

// DeleteFor records a visibility watermark hiding the chat's current
// history from the given user.
func (m ChatsObjMapper) DeleteFor(uid, cid, watermark t.Uid) error {
	return m.s.adp.ChatDeletionUpsert(&t.ChatDeletion{
		User: uid, Chat: cid, Watermark: watermark, CreatedAt: t.TimeNow()})
}

// DeletionFor returns the user's watermark row for the chat or nil.
func (m ChatsObjMapper) DeletionFor(uid, cid t.Uid) (*t.ChatDeletion, error) {
	return m.s.adp.ChatDeletionGet(uid, cid)
}

// MessagesObjMapper holds methods for persistence mapping of Message
// objects and their status rows.
type MessagesObjMapper struct {
	s *Store
}

// Save assigns an ordinal to the message and persists it.
func (m MessagesObjMapper) Save(msg *t.Message) (*t.Message, error) {
	msg.Id = m.s.GetUid()
	msg.CreatedAt = t.TimeNow()
	if err := m.s.adp.MessageSave(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// Get loads a live message.
func (m MessagesObjMapper) Get(mid t.Uid) (*t.Message, error) {
	return m.s.adp.MessageGet(mid)
}

// Update replaces the stored message payload.
func (m MessagesObjMapper) Update(msg *t.Message) error {
	return m.s.adp.MessageUpdate(msg)
}

// Delete soft-deletes the message.
func (m MessagesObjMapper) Delete(mid t.Uid) error {
	return m.s.adp.MessageDelete(mid)
}

// ForChat returns live messages of the chat visible to forUser, ascending
// by ordinal. When forUser has recorded a deletion watermark for the chat,
// messages at or below the watermark are filtered out; the watermark is a
// visibility bound, it does not participate in cursor arithmetic.
func (m MessagesObjMapper) ForChat(cid, forUser t.Uid, opts *t.QueryOpt) ([]t.Message, error) {
	if !forUser.IsZero() {
		del, err := m.s.adp.ChatDeletionGet(forUser, cid)
		if err != nil {
			return nil, err
		}
		if del != nil {
			bounded := t.QueryOpt{}
			if opts != nil {
				bounded = *opts
			}
			if del.Watermark > bounded.Since {
				bounded.Since = del.Watermark
			}
			opts = &bounded
		}
	}
	return m.s.adp.MessagesForChat(cid, opts)
}

// AddStatus records a delivered/read status row.
func (m MessagesObjMapper) AddStatus(st *t.MessageStatus) error {
	st.CreatedAt = t.TimeNow()
	return m.s.adp.StatusCreate(st)
}

// Statuses returns all status rows of a message.
func (m MessagesObjMapper) Statuses(mid t.Uid) ([]t.MessageStatus, error) {
	return m.s.adp.StatusesForMessage(mid)
}

// ContactsObjMapper holds methods for persistence mapping of Contact rows.
type ContactsObjMapper struct {
	s *Store
}

// Create adds a contact row for owner.
func (m ContactsObjMapper) Create(owner, contact t.Uid) (*t.Contact, error) {
	c := &t.Contact{Id: m.s.GetUid(), Owner: owner, Contact: contact, CreatedAt: t.TimeNow()}
	if err := m.s.adp.ContactCreate(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Delete removes a contact row.
func (m ContactsObjMapper) Delete(owner, contact t.Uid) error {
	return m.s.adp.ContactDelete(owner, contact)
}

// ForUser returns the owner's contact rows ascending by row ordinal.
func (m ContactsObjMapper) ForUser(owner t.Uid, opts *t.QueryOpt) ([]t.Contact, error) {
	return m.s.adp.ContactsForUser(owner, opts)
}

// Holders returns ids of users who hold the given user as a contact.
func (m ContactsObjMapper) Holders(contact t.Uid) ([]t.Uid, error) {
	return m.s.adp.ContactHolders(contact)
}

// BlocksObjMapper holds methods for persistence mapping of BlockEntry rows.
type BlocksObjMapper struct {
	s *Store
}

// Create adds a block row.
func (m BlocksObjMapper) Create(blocker, blocked t.Uid) (*t.BlockEntry, error) {
	b := &t.BlockEntry{Id: m.s.GetUid(), Blocker: blocker, Blocked: blocked, CreatedAt: t.TimeNow()}
	if err := m.s.adp.BlockCreate(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Delete removes a block row.
func (m BlocksObjMapper) Delete(blocker, blocked t.Uid) error {
	return m.s.adp.BlockDelete(blocker, blocked)
}

// Get returns the block row or nil.
func (m BlocksObjMapper) Get(blocker, blocked t.Uid) (*t.BlockEntry, error) {
	return m.s.adp.BlockGet(blocker, blocked)
}

// ForUser returns the blocker's block rows ascending by row ordinal.
func (m BlocksObjMapper) ForUser(blocker t.Uid, opts *t.QueryOpt) ([]t.BlockEntry, error) {
	return m.s.adp.BlocksForUser(blocker, opts)
}

// Blockers returns ids of users who hold a block against the given user.
func (m BlocksObjMapper) Blockers(blocked t.Uid) ([]t.Uid, error) {
	return m.s.adp.Blockers(blocked)
}

// StarsObjMapper holds methods for persistence mapping of Star rows.
type StarsObjMapper struct {
	s *Store
}

// Add stars a message for the user.
func (m StarsObjMapper) Add(user, message t.Uid) (*t.Star, error) {
	star := &t.Star{Id: m.s.GetUid(), User: user, Message: message, CreatedAt: t.TimeNow()}
	if err := m.s.adp.StarCreate(star); err != nil {
		return nil, err
	}
	return star, nil
}

// Remove unstars a message for the user.
func (m StarsObjMapper) Remove(user, message t.Uid) error {
	return m.s.adp.StarDelete(user, message)
}

// Get returns the star row or nil.
func (m StarsObjMapper) Get(user, message t.Uid) (*t.Star, error) {
	return m.s.adp.StarGet(user, message)
}

// ForUser returns the user's star rows ascending by row ordinal.
func (m StarsObjMapper) ForUser(user t.Uid, opts *t.QueryOpt) ([]t.Star, error) {
	return m.s.adp.StarsForUser(user, opts)
}

// BookmarksObjMapper holds methods for persistence mapping of Bookmark rows.
type BookmarksObjMapper struct {
	s *Store
}

// Add bookmarks a message for the user.
func (m BookmarksObjMapper) Add(user, message t.Uid) (*t.Bookmark, error) {
	bm := &t.Bookmark{Id: m.s.GetUid(), User: user, Message: message, CreatedAt: t.TimeNow()}
	if err := m.s.adp.BookmarkCreate(bm); err != nil {
		return nil, err
	}
	return bm, nil
}

// Remove unbookmarks a message for the user.
func (m BookmarksObjMapper) Remove(user, message t.Uid) error {
	return m.s.adp.BookmarkDelete(user, message)
}

// Get returns the bookmark row or nil.
func (m BookmarksObjMapper) Get(user, message t.Uid) (*t.Bookmark, error) {
	return m.s.adp.BookmarkGet(user, message)
}

// ForUser returns the user's bookmark rows ascending by row ordinal.
func (m BookmarksObjMapper) ForUser(user t.Uid, opts *t.QueryOpt) ([]t.Bookmark, error) {
	return m.s.adp.BookmarksForUser(user, opts)
}

// TypingObjMapper holds methods for persistence mapping of TypingRecord
// rows.
type TypingObjMapper struct {
	s *Store
}

// Start records that the user is typing.
func (m TypingObjMapper) Start(cid, uid t.Uid) error {
	return m.s.adp.TypingCreate(&t.TypingRecord{Chat: cid, User: uid, CreatedAt: t.TimeNow()})
}

// Stop removes the typing record.
func (m TypingObjMapper) Stop(cid, uid t.Uid) error {
	return m.s.adp.TypingDelete(cid, uid)
}

// ForChat returns the chat's current typing records.
func (m TypingObjMapper) ForChat(cid t.Uid) ([]t.TypingRecord, error) {
	return m.s.adp.TypingForChat(cid)
}
