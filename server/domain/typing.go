/******************************************************************************
 *
 *  Description :
 *
 *    Typing indicators. The (chat, user) record exists exactly while the
 *    user is typing; redundant transitions touch nothing and emit
 *    nothing.
 *
 *****************************************************************************/

package domain

import (
	"github.com/samber/lo"

	t "github.com/mercury-im/mercury/server/store/types"
)

// SetTyping records a typing transition for the caller in a chat they
// participate in. Asserting the current state again is a no-op: no row,
// no event.
func (s *Service) SetTyping(caller, cid t.Uid, typing bool) error {
	if _, _, err := s.requireParticipant(caller, cid); err != nil {
		return err
	}

	if typing {
		if err := s.store.Typing.Start(cid, caller); err != nil {
			if err == t.ErrDuplicate {
				return nil
			}
			return err
		}
	} else {
		if err := s.store.Typing.Stop(cid, caller); err != nil {
			if err == t.ErrNotFound {
				return nil
			}
			return err
		}
	}

	users, err := s.typingUsers(cid)
	if err != nil {
		return err
	}
	s.publish(&TypingUsers{Chat: cid, Users: users})
	return nil
}

// ReadTypingUsers returns who is currently typing in the chat, gated
// like any chat read.
func (s *Service) ReadTypingUsers(caller, cid t.Uid) ([]t.Uid, error) {
	if _, err := s.ReadChat(caller, cid); err != nil {
		return nil, err
	}
	return s.typingUsers(cid)
}

func (s *Service) typingUsers(cid t.Uid) ([]t.Uid, error) {
	recs, err := s.store.Typing.ForChat(cid)
	if err != nil {
		return nil, err
	}
	return lo.Map(recs, func(r t.TypingRecord, _ int) t.Uid { return r.User }), nil
}
