/******************************************************************************
 *
 *  Description :
 *
 *    Account operations: create, update, presence, deletion with its
 *    relational cascade.
 *
 *****************************************************************************/

package domain

import (
	"strings"

	"github.com/mercury-im/mercury/server/broker"
	t "github.com/mercury-im/mercury/server/store/types"
)

// UserUpdate is the set of mutable profile fields. Nil fields are left
// unchanged.
type UserUpdate struct {
	Username    *string
	DisplayName *string
	Bio         *string
}

// CreateUser registers a new account.
func (s *Service) CreateUser(username, displayName string) (*t.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, t.ErrMalformed
	}
	return s.store.Users.Create(&t.User{
		Username:    username,
		DisplayName: displayName,
	})
}

// GetUser returns a live account.
func (s *Service) GetUser(uid t.Uid) (*t.User, error) {
	user, err := s.store.Users.Get(uid)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, t.ErrNotFound
	}
	return user, nil
}

// UpdateUser changes the caller's own profile and notifies the caller,
// their contact holders and their private chat peers.
func (s *Service) UpdateUser(caller t.Uid, upd UserUpdate) (*t.User, error) {
	if _, err := s.GetUser(caller); err != nil {
		return nil, err
	}

	update := map[string]any{}
	if upd.Username != nil {
		name := strings.TrimSpace(*upd.Username)
		if name == "" {
			return nil, t.ErrMalformed
		}
		update["Username"] = name
	}
	if upd.DisplayName != nil {
		update["DisplayName"] = *upd.DisplayName
	}
	if upd.Bio != nil {
		update["Bio"] = *upd.Bio
	}
	if len(update) == 0 {
		return s.GetUser(caller)
	}

	if err := s.store.Users.Update(caller, update); err != nil {
		return nil, err
	}
	user, err := s.GetUser(caller)
	if err != nil {
		return nil, err
	}
	s.publish(&AccountUpdated{User: *user})
	return user, nil
}

// DeleteUser removes the caller's account: the user leaves every chat
// (chats they empty out are cascaded away), contact and block rows are
// dropped in both directions, and the user-keyed topics are completed.
func (s *Service) DeleteUser(caller t.Uid) error {
	if _, err := s.GetUser(caller); err != nil {
		return err
	}

	// Snapshot the interested parties before the cascade removes the
	// relations they would be resolved from.
	notify, err := NewResolver(s.store).interestedIn(caller)
	if err != nil {
		return err
	}

	chats, err := s.store.Chats.ForUser(caller, nil)
	if err != nil {
		return err
	}
	for _, chat := range chats {
		if chat.Kind == t.ChatPrivate {
			// A private chat does not survive either of its members.
			parts, err := s.store.Chats.Participants(chat.Id)
			if err != nil {
				return err
			}
			users := make([]t.Uid, len(parts))
			for i, p := range parts {
				users[i] = p.User
			}
			if err := s.deleteChat(chat.Id, users); err != nil {
				return err
			}
			continue
		}
		if err := s.removeFromChat(chat.Id, caller, true); err != nil {
			return err
		}
	}

	contacts, err := s.store.Contacts.ForUser(caller, nil)
	if err != nil {
		return err
	}
	for _, c := range contacts {
		if err := s.store.Contacts.Delete(caller, c.Contact); err != nil {
			return err
		}
	}
	holders, err := s.store.Contacts.Holders(caller)
	if err != nil {
		return err
	}
	for _, h := range holders {
		if err := s.store.Contacts.Delete(h, caller); err != nil {
			return err
		}
	}

	blocks, err := s.store.Blocks.ForUser(caller, nil)
	if err != nil {
		return err
	}
	for _, b := range blocks {
		if err := s.store.Blocks.Delete(caller, b.Blocked); err != nil {
			return err
		}
	}
	// Blocks held against the deleted account go too; their holders are
	// not notified, the account deletion itself is the signal.
	blockers, err := s.store.Blocks.Blockers(caller)
	if err != nil {
		return err
	}
	for _, b := range blockers {
		if err := s.store.Blocks.Delete(b, caller); err != nil {
			return err
		}
	}

	if err := s.store.Users.Delete(caller); err != nil {
		return err
	}

	s.publish(&DeletedAccount{User: caller, Users: notify})
	s.broker.Complete(
		broker.TopicKey{Kind: broker.KindMessages, ID: caller},
		broker.TopicKey{Kind: broker.KindChats, ID: caller},
		broker.TopicKey{Kind: broker.KindAccounts, ID: caller},
		broker.TopicKey{Kind: broker.KindOnlineStatus, ID: caller},
	)
	return nil
}

// SetOnline records a presence transition. Re-asserting the current
// state writes nothing and emits nothing.
func (s *Service) SetOnline(caller t.Uid, online bool) error {
	user, err := s.GetUser(caller)
	if err != nil {
		return err
	}
	if user.Online == online {
		return nil
	}

	update := map[string]any{"Online": online}
	last := user.LastOnline
	if !online {
		last = t.TimeNow()
		update["LastOnline"] = last
	}
	if err := s.store.Users.Update(caller, update); err != nil {
		return err
	}
	s.publish(&OnlineStatus{User: caller, Online: online, LastOnline: last})
	return nil
}

// ReadOnlineStatus returns a user's presence. Entitled viewers are the
// user themselves, anyone holding them as a contact and their private
// chat peers.
func (s *Service) ReadOnlineStatus(caller, uid t.Uid) (*OnlineStatus, error) {
	user, err := s.GetUser(uid)
	if err != nil {
		return nil, err
	}
	if caller != uid {
		entitled, err := NewResolver(s.store).interestedIn(uid)
		if err != nil {
			return nil, err
		}
		found := false
		for _, u := range entitled {
			if u == caller {
				found = true
				break
			}
		}
		if !found {
			return nil, t.ErrPermissionDenied
		}
	}
	return &OnlineStatus{User: uid, Online: user.Online, LastOnline: user.LastOnline}, nil
}
