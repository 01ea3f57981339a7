/******************************************************************************
 *
 *  Description :
 *
 *    Message operations: creation of all message kinds, deletion, poll
 *    voting, delivery statuses, stars and bookmarks, paginated reads and
 *    content search.
 *
 *****************************************************************************/

package domain

import (
	"sort"
	"strings"

	"github.com/samber/lo"

	t "github.com/mercury-im/mercury/server/store/types"
)

// MessageDraft is the payload of CreateMessage. Exactly one content
// field must be set, matching Kind.
type MessageDraft struct {
	Kind    t.MessageKind
	Text    string
	Poll    *t.Poll
	Actions []string
	Media   *t.MediaRef
	// InviteChat is the chat an invite message points at.
	InviteChat t.Uid
}

// CreateMessage posts a message to a chat the caller participates in.
func (s *Service) CreateMessage(caller, cid t.Uid, draft MessageDraft) (*t.Message, error) {
	if _, _, err := s.requireParticipant(caller, cid); err != nil {
		return nil, err
	}
	if err := s.validateDraft(caller, draft); err != nil {
		return nil, err
	}

	msg, err := s.store.Messages.Save(&t.Message{
		Chat:       cid,
		From:       caller,
		Kind:       draft.Kind,
		Text:       draft.Text,
		Poll:       draft.Poll,
		Actions:    draft.Actions,
		Media:      draft.Media,
		InviteChat: draft.InviteChat,
	})
	if err != nil {
		return nil, err
	}
	s.publish(&NewMessage{Chat: cid, Message: *msg})
	return msg, nil
}

func (s *Service) validateDraft(caller t.Uid, draft MessageDraft) error {
	switch draft.Kind {
	case t.MessageText:
		if strings.TrimSpace(draft.Text) == "" {
			return t.ErrMalformed
		}
	case t.MessagePoll:
		if draft.Poll == nil || len(draft.Poll.Options) < 2 {
			return t.ErrMalformed
		}
	case t.MessageAction:
		if len(draft.Actions) == 0 {
			return t.ErrMalformed
		}
	case t.MessageMedia:
		if draft.Media == nil || draft.Media.Location == "" {
			return t.ErrMalformed
		}
	case t.MessageInvite:
		invite, err := s.store.Chats.Get(draft.InviteChat)
		if err != nil {
			return err
		}
		if invite == nil {
			return t.ErrNotFound
		}
		// Invites are only valid for group chats that accept them, sent
		// by their own members.
		if invite.Kind != t.ChatGroup || invite.Publicity == t.PublicityNotInvitable {
			return t.ErrUnsupported
		}
		part, err := s.store.Chats.Participant(draft.InviteChat, caller)
		if err != nil {
			return err
		}
		if part == nil {
			return t.ErrPermissionDenied
		}
	default:
		return t.ErrMalformed
	}
	return nil
}

// DeleteMessage soft-deletes a message. Sender only. The ordinal remains
// a valid pagination boundary.
func (s *Service) DeleteMessage(caller, mid t.Uid) error {
	msg, err := s.store.Messages.Get(mid)
	if err != nil {
		return err
	}
	if msg == nil {
		return t.ErrNotFound
	}
	if msg.From != caller {
		return t.ErrPermissionDenied
	}
	if err := s.store.Messages.Delete(mid); err != nil {
		return err
	}
	s.publish(&DeletedMessage{Chat: msg.Chat, Message: mid})
	return nil
}

// SetPollVote records the caller's single-choice vote. Re-voting the same
// option changes nothing and emits nothing; voting another option moves
// the vote.
func (s *Service) SetPollVote(caller, mid t.Uid, option int) (*t.Message, error) {
	msg, err := s.visibleMessage(caller, mid)
	if err != nil {
		return nil, err
	}
	if msg.Kind != t.MessagePoll || msg.Poll == nil {
		return nil, t.ErrUnsupported
	}
	if option < 0 || option >= len(msg.Poll.Options) {
		return nil, t.ErrMalformed
	}
	if lo.Contains(msg.Poll.Options[option].Voters, caller) {
		return msg, nil
	}

	for i := range msg.Poll.Options {
		msg.Poll.Options[i].Voters = lo.Without(msg.Poll.Options[i].Voters, caller)
	}
	msg.Poll.Options[option].Voters = append(msg.Poll.Options[option].Voters, caller)

	if err := s.store.Messages.Update(msg); err != nil {
		return nil, err
	}
	s.publish(&UpdatedMessage{Chat: msg.Chat, Message: *msg})
	return msg, nil
}

// AddStatus records a delivered/read receipt. The receipt is chat-visible
// state, so the whole chat is notified. A duplicate receipt is rejected.
func (s *Service) AddStatus(caller, mid t.Uid, kind t.StatusKind) error {
	msg, err := s.visibleMessage(caller, mid)
	if err != nil {
		return err
	}
	if msg.From == caller {
		return t.ErrUnsupported
	}
	if err := s.store.Messages.AddStatus(&t.MessageStatus{
		Message: mid, User: caller, Status: kind}); err != nil {
		return err
	}
	s.publish(&UpdatedMessage{Chat: msg.Chat, Message: *msg})
	return nil
}

// StarMessage stars a message for the caller only. Starring twice is a
// silent no-op.
func (s *Service) StarMessage(caller, mid t.Uid) error {
	msg, err := s.visibleMessage(caller, mid)
	if err != nil {
		return err
	}
	existing, err := s.store.Stars.Get(caller, mid)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	if _, err := s.store.Stars.Add(caller, mid); err != nil {
		return err
	}
	s.publish(&UpdatedMessage{Chat: msg.Chat, Message: *msg, Only: caller})
	return nil
}

// UnstarMessage removes the caller's star. No star, no event.
func (s *Service) UnstarMessage(caller, mid t.Uid) error {
	msg, err := s.store.Messages.Get(mid)
	if err != nil {
		return err
	}
	if msg == nil {
		return t.ErrNotFound
	}
	if err := s.store.Stars.Remove(caller, mid); err != nil {
		if err == t.ErrNotFound {
			return nil
		}
		return err
	}
	s.publish(&UpdatedMessage{Chat: msg.Chat, Message: *msg, Only: caller})
	return nil
}

// BookmarkMessage bookmarks a message for the caller only. Idempotent.
func (s *Service) BookmarkMessage(caller, mid t.Uid) error {
	msg, err := s.visibleMessage(caller, mid)
	if err != nil {
		return err
	}
	existing, err := s.store.Bookmarks.Get(caller, mid)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	if _, err := s.store.Bookmarks.Add(caller, mid); err != nil {
		return err
	}
	s.publish(&UpdatedMessage{Chat: msg.Chat, Message: *msg, Only: caller})
	return nil
}

// UnbookmarkMessage removes the caller's bookmark. Idempotent.
func (s *Service) UnbookmarkMessage(caller, mid t.Uid) error {
	msg, err := s.store.Messages.Get(mid)
	if err != nil {
		return err
	}
	if msg == nil {
		return t.ErrNotFound
	}
	if err := s.store.Bookmarks.Remove(caller, mid); err != nil {
		if err == t.ErrNotFound {
			return nil
		}
		return err
	}
	s.publish(&UpdatedMessage{Chat: msg.Chat, Message: *msg, Only: caller})
	return nil
}

// ReadMessages pages through a chat's live messages visible to the
// caller. The caller's deletion watermark, if any, bounds visibility; it
// never participates in cursor arithmetic. Anonymous reads are allowed
// for public chats.
func (s *Service) ReadMessages(caller, cid t.Uid, page Page) (Connection[t.Message], error) {
	if _, err := s.ReadChat(caller, cid); err != nil {
		return Connection[t.Message]{}, err
	}
	msgs, err := s.store.Messages.ForChat(cid, caller, nil)
	if err != nil {
		return Connection[t.Message]{}, err
	}
	return pageOf(msgs, func(m t.Message) t.Uid { return m.Id }, page), nil
}

// ReadStatuses returns the delivery receipts of a message.
func (s *Service) ReadStatuses(caller, mid t.Uid) ([]t.MessageStatus, error) {
	if _, err := s.visibleMessage(caller, mid); err != nil {
		return nil, err
	}
	return s.store.Messages.Statuses(mid)
}

// ReadStarredMessages pages through the caller's starred messages,
// ordered by star ordinal.
func (s *Service) ReadStarredMessages(caller t.Uid, page Page) (Connection[t.Star], error) {
	stars, err := s.store.Stars.ForUser(caller, nil)
	if err != nil {
		return Connection[t.Star]{}, err
	}
	return pageOf(stars, func(st t.Star) t.Uid { return st.Id }, page), nil
}

// ReadBookmarkedMessages pages through the caller's bookmarks, ordered
// by bookmark ordinal.
func (s *Service) ReadBookmarkedMessages(caller t.Uid, page Page) (Connection[t.Bookmark], error) {
	bms, err := s.store.Bookmarks.ForUser(caller, nil)
	if err != nil {
		return Connection[t.Bookmark]{}, err
	}
	return pageOf(bms, func(b t.Bookmark) t.Uid { return b.Id }, page), nil
}

// SearchMessages finds the caller's visible text messages containing the
// query, case-insensitively, across all their chats, ordered by message
// ordinal and paginated like any other collection.
func (s *Service) SearchMessages(caller t.Uid, query string, page Page) (Connection[t.Message], error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return Connection[t.Message]{}, t.ErrMalformed
	}
	chats, err := s.store.Chats.ForUser(caller, nil)
	if err != nil {
		return Connection[t.Message]{}, err
	}

	var hits []t.Message
	for _, chat := range chats {
		msgs, err := s.store.Messages.ForChat(chat.Id, caller, nil)
		if err != nil {
			return Connection[t.Message]{}, err
		}
		for _, m := range msgs {
			if m.Kind == t.MessageText && strings.Contains(strings.ToLower(m.Text), query) {
				hits = append(hits, m)
			}
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Id < hits[j].Id })
	return pageOf(hits, func(m t.Message) t.Uid { return m.Id }, page), nil
}

// visibleMessage loads a live message the caller is allowed to act on:
// the caller must be a live participant of its chat.
func (s *Service) visibleMessage(caller, mid t.Uid) (*t.Message, error) {
	msg, err := s.store.Messages.Get(mid)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, t.ErrNotFound
	}
	part, err := s.store.Chats.Participant(msg.Chat, caller)
	if err != nil {
		return nil, err
	}
	if part == nil {
		return nil, t.ErrNotFound
	}
	return msg, nil
}
