/******************************************************************************
 *
 *  Description :
 *
 *    Chat operations: private and group creation, metadata, membership,
 *    per-user deletion watermarks and the empty-chat cascade.
 *
 *****************************************************************************/

package domain

import (
	"github.com/samber/lo"

	"github.com/mercury-im/mercury/server/broker"
	t "github.com/mercury-im/mercury/server/store/types"
)

// GroupChatUpdate is the set of mutable group chat fields. Nil fields
// are left unchanged.
type GroupChatUpdate struct {
	Title       *string
	Description *string
	Publicity   *t.Publicity
}

// CreatePrivateChat opens the private chat between the caller and other.
// There is at most one per pair; a block in either direction forbids it.
func (s *Service) CreatePrivateChat(caller, other t.Uid) (*t.Chat, error) {
	if caller == other {
		return nil, t.ErrMalformed
	}
	if _, err := s.GetUser(caller); err != nil {
		return nil, err
	}
	if _, err := s.GetUser(other); err != nil {
		return nil, err
	}
	if err := s.checkNotBlocked(caller, other); err != nil {
		return nil, err
	}

	existing, err := s.store.Chats.PrivateBetween(caller, other)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, t.ErrDuplicate
	}

	chat, err := s.store.Chats.CreatePrivate(caller, other)
	if err != nil {
		return nil, err
	}
	s.publish(&CreatedChat{Chat: *chat, Users: []t.Uid{caller, other}})
	return chat, nil
}

// CreateGroupChat creates a group chat with the caller as its first
// admin.
func (s *Service) CreateGroupChat(caller t.Uid, title, description string,
	publicity t.Publicity, members []t.Uid) (*t.Chat, error) {

	if title == "" {
		return nil, t.ErrMalformed
	}
	if _, err := s.GetUser(caller); err != nil {
		return nil, err
	}
	members = lo.Uniq(members)
	for _, uid := range members {
		if uid == caller {
			continue
		}
		if _, err := s.GetUser(uid); err != nil {
			return nil, err
		}
	}

	chat, err := s.store.Chats.CreateGroup(&t.Chat{
		Title:       title,
		Description: description,
		Publicity:   publicity,
	}, caller, members)
	if err != nil {
		return nil, err
	}

	users := append([]t.Uid{caller}, lo.Without(members, caller)...)
	s.publish(&CreatedChat{Chat: *chat, Users: users})
	return chat, nil
}

// UpdateGroupChat changes title, description or publicity. Admins only.
// Turning a public chat non-public completes its anonymous topic.
func (s *Service) UpdateGroupChat(caller, cid t.Uid, upd GroupChatUpdate) (*t.Chat, error) {
	chat, err := s.requireGroupAdmin(caller, cid)
	if err != nil {
		return nil, err
	}

	update := map[string]any{}
	if upd.Title != nil {
		if *upd.Title == "" {
			return nil, t.ErrMalformed
		}
		update["Title"] = *upd.Title
	}
	if upd.Description != nil {
		update["Description"] = *upd.Description
	}
	if upd.Publicity != nil {
		update["Publicity"] = *upd.Publicity
	}
	if len(update) == 0 {
		return chat, nil
	}

	wasPublic := chat.IsPublic()
	if err := s.store.Chats.Update(cid, update); err != nil {
		return nil, err
	}
	chat, err = s.store.Chats.Get(cid)
	if err != nil {
		return nil, err
	}

	s.publish(&ChatMetadata{Chat: *chat})
	if wasPublic && !chat.IsPublic() {
		s.broker.Complete(broker.TopicKey{Kind: broker.KindChatMessages, ID: cid})
	}
	return chat, nil
}

// AddParticipants adds users to a group chat. Admins may always add;
// regular participants may add only to invitable or public chats.
// Already-present users are skipped silently: no row, no event for them.
func (s *Service) AddParticipants(caller, cid t.Uid, users []t.Uid) error {
	chat, part, err := s.requireParticipant(caller, cid)
	if err != nil {
		return err
	}
	if chat.Kind != t.ChatGroup {
		return t.ErrUnsupported
	}
	if !part.IsAdmin && chat.Publicity == t.PublicityNotInvitable {
		return t.ErrPermissionDenied
	}

	var added []t.Uid
	for _, uid := range lo.Uniq(users) {
		if _, err := s.GetUser(uid); err != nil {
			return err
		}
		err := s.store.Chats.AddParticipant(cid, uid, false)
		if err == t.ErrDuplicate {
			continue
		}
		if err != nil {
			return err
		}
		added = append(added, uid)
	}
	if len(added) == 0 {
		return nil
	}

	s.publish(&CreatedChat{Chat: *chat, Users: added})
	s.publish(&NewParticipants{Chat: cid, Users: added})
	return nil
}

// RemoveParticipant removes a user from a group chat. Admins may remove
// anyone; a regular participant may only remove themselves. Removing
// someone who is not a member is a silent no-op.
func (s *Service) RemoveParticipant(caller, cid, uid t.Uid) error {
	chat, part, err := s.requireParticipant(caller, cid)
	if err != nil {
		return err
	}
	if chat.Kind != t.ChatGroup {
		return t.ErrUnsupported
	}
	if caller != uid && !part.IsAdmin {
		return t.ErrPermissionDenied
	}
	return s.removeFromChat(cid, uid, false)
}

// LeaveChat removes the caller from a group chat.
func (s *Service) LeaveChat(caller, cid t.Uid) error {
	return s.RemoveParticipant(caller, cid, caller)
}

// removeFromChat performs the removal itself. With force set (account
// deletion) a departing last admin hands the role to the longest-standing
// remaining participant instead of being rejected.
func (s *Service) removeFromChat(cid, uid t.Uid, force bool) error {
	target, err := s.store.Chats.Participant(cid, uid)
	if err != nil {
		return err
	}
	if target == nil {
		// Already gone. No row, no event.
		return nil
	}

	parts, err := s.store.Chats.Participants(cid)
	if err != nil {
		return err
	}

	if len(parts) == 1 {
		// The chat empties out: the chat and all dependent state go with
		// it, and its topics are completed.
		return s.deleteChat(cid, []t.Uid{uid})
	}

	if target.IsAdmin && !anyOtherAdmin(parts, uid) {
		if !force {
			return t.ErrLastAdmin
		}
		heir := oldestOther(parts, uid)
		if err := s.store.Chats.SetAdmin(cid, heir, true); err != nil {
			return err
		}
	}

	if err := s.store.Chats.RemoveParticipant(cid, uid); err != nil {
		return err
	}
	// A stale typing record must not survive the membership.
	if err := s.store.Typing.Stop(cid, uid); err != nil && err != t.ErrNotFound {
		return err
	}

	s.publish(&ExitedUsers{Chat: cid, Users: []t.Uid{uid}})
	s.publish(&RemovedFromChat{Chat: cid, User: uid})
	s.broker.Evict(broker.TopicKey{Kind: broker.KindTypingStatus, ID: cid}, uid)
	s.broker.Evict(broker.TopicKey{Kind: broker.KindGroupChatMetadata, ID: cid}, uid)
	return nil
}

// deleteChat cascades the chat away and completes its topics. notify
// lists the users to tell; membership rows are gone once this returns.
func (s *Service) deleteChat(cid t.Uid, notify []t.Uid) error {
	if err := s.store.Chats.Delete(cid); err != nil {
		return err
	}
	s.publish(&DeletedChat{Chat: cid, Users: notify})
	s.broker.Complete(
		broker.TopicKey{Kind: broker.KindChatMessages, ID: cid},
		broker.TopicKey{Kind: broker.KindTypingStatus, ID: cid},
		broker.TopicKey{Kind: broker.KindGroupChatMetadata, ID: cid},
	)
	return nil
}

// MakeAdmin grants admin to a participant. Granting to an existing admin
// is a silent no-op.
func (s *Service) MakeAdmin(caller, cid, uid t.Uid) error {
	chat, err := s.requireGroupAdmin(caller, cid)
	if err != nil {
		return err
	}
	target, err := s.store.Chats.Participant(cid, uid)
	if err != nil {
		return err
	}
	if target == nil {
		return t.ErrNotFound
	}
	if target.IsAdmin {
		return nil
	}
	if err := s.store.Chats.SetAdmin(cid, uid, true); err != nil {
		return err
	}
	s.publish(&ChatMetadata{Chat: *chat})
	return nil
}

// DeleteChatForUser hides a private chat's current history from the
// caller. The watermark is a fresh ordinal: every existing message sorts
// below it and stays hidden, every future message sorts above it and is
// still delivered.
func (s *Service) DeleteChatForUser(caller, cid t.Uid) error {
	chat, _, err := s.requireParticipant(caller, cid)
	if err != nil {
		return err
	}
	if chat.Kind != t.ChatPrivate {
		return t.ErrUnsupported
	}
	if err := s.store.Chats.DeleteFor(caller, cid, s.store.GetUid()); err != nil {
		return err
	}
	s.publish(&DeletedChat{Chat: cid, Users: []t.Uid{caller}})
	return nil
}

// ReadChat returns a chat visible to the caller: participants always,
// anyone for public chats.
func (s *Service) ReadChat(caller, cid t.Uid) (*t.Chat, error) {
	chat, err := s.store.Chats.Get(cid)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, t.ErrNotFound
	}
	if chat.IsPublic() {
		return chat, nil
	}
	if caller.IsZero() {
		return nil, t.ErrNotFound
	}
	part, err := s.store.Chats.Participant(cid, caller)
	if err != nil {
		return nil, err
	}
	if part == nil {
		return nil, t.ErrNotFound
	}
	return chat, nil
}

// ReadChats pages through the caller's chats ascending by chat ordinal.
func (s *Service) ReadChats(caller t.Uid, page Page) (Connection[t.Chat], error) {
	if _, err := s.GetUser(caller); err != nil {
		return Connection[t.Chat]{}, err
	}
	chats, err := s.store.Chats.ForUser(caller, nil)
	if err != nil {
		return Connection[t.Chat]{}, err
	}
	return pageOf(chats, func(c t.Chat) t.Uid { return c.Id }, page), nil
}

// ReadParticipants returns the chat's membership, gated like ReadChat.
func (s *Service) ReadParticipants(caller, cid t.Uid) ([]t.Participant, error) {
	if _, err := s.ReadChat(caller, cid); err != nil {
		return nil, err
	}
	return s.store.Chats.Participants(cid)
}

// requireParticipant loads the chat and the caller's membership row,
// rejecting non-members.
func (s *Service) requireParticipant(caller, cid t.Uid) (*t.Chat, *t.Participant, error) {
	chat, err := s.store.Chats.Get(cid)
	if err != nil {
		return nil, nil, err
	}
	if chat == nil {
		return nil, nil, t.ErrNotFound
	}
	part, err := s.store.Chats.Participant(cid, caller)
	if err != nil {
		return nil, nil, err
	}
	if part == nil {
		return nil, nil, t.ErrPermissionDenied
	}
	return chat, part, nil
}

// requireGroupAdmin loads the chat and checks the caller administers it.
func (s *Service) requireGroupAdmin(caller, cid t.Uid) (*t.Chat, error) {
	chat, part, err := s.requireParticipant(caller, cid)
	if err != nil {
		return nil, err
	}
	if chat.Kind != t.ChatGroup {
		return nil, t.ErrUnsupported
	}
	if !part.IsAdmin {
		return nil, t.ErrPermissionDenied
	}
	return chat, nil
}

func anyOtherAdmin(parts []t.Participant, except t.Uid) bool {
	return lo.SomeBy(parts, func(p t.Participant) bool {
		return p.IsAdmin && p.User != except
	})
}

func oldestOther(parts []t.Participant, except t.Uid) t.Uid {
	var heir t.Uid
	for _, p := range parts {
		if p.User == except {
			continue
		}
		if heir.IsZero() || p.CreatedAt.Before(partByUser(parts, heir).CreatedAt) {
			heir = p.User
		}
	}
	return heir
}

func partByUser(parts []t.Participant, uid t.Uid) t.Participant {
	for _, p := range parts {
		if p.User == uid {
			return p
		}
	}
	return t.Participant{}
}

func (s *Service) checkNotBlocked(a, b t.Uid) error {
	for _, pair := range [][2]t.Uid{{a, b}, {b, a}} {
		entry, err := s.store.Blocks.Get(pair[0], pair[1])
		if err != nil {
			return err
		}
		if entry != nil {
			return t.ErrPermissionDenied
		}
	}
	return nil
}
