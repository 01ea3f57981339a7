/******************************************************************************
 *
 *  Description :
 *
 *    Visibility resolution. Resolver computes, per event, the set of
 *    topics entitled to receive it from live relational state - chat
 *    membership, the contact graph, chat publicity. Nothing here is
 *    cached across events. Gate applies the matching rules at subscribe
 *    time.
 *
 *****************************************************************************/

package domain

import (
	"github.com/samber/lo"

	"github.com/mercury-im/mercury/server/broker"
	"github.com/mercury-im/mercury/server/store"
	t "github.com/mercury-im/mercury/server/store/types"
)

// Resolver implements broker.Resolver over the store.
type Resolver struct {
	store *store.Store
}

// NewResolver creates a resolver bound to the given store.
func NewResolver(s *store.Store) *Resolver {
	return &Resolver{store: s}
}

// Audience maps an event to the topics that must receive it.
func (r *Resolver) Audience(ev broker.Event) ([]broker.TopicKey, error) {
	switch e := ev.(type) {
	case *NewMessage:
		return r.chatScope(e.Chat, broker.KindMessages)
	case *UpdatedMessage:
		if !e.Only.IsZero() {
			return userKeys(broker.KindMessages, e.Only), nil
		}
		return r.chatScope(e.Chat, broker.KindMessages)
	case *DeletedMessage:
		return r.chatScope(e.Chat, broker.KindMessages)

	case *CreatedChat:
		return userKeys(broker.KindChats, e.Users...), nil
	case *NewParticipants:
		return r.chatScope(e.Chat, broker.KindChats)
	case *ExitedUsers:
		return r.chatScope(e.Chat, broker.KindChats)
	case *RemovedFromChat:
		return userKeys(broker.KindChats, e.User), nil
	case *DeletedChat:
		return userKeys(broker.KindChats, e.Users...), nil
	case *ChatMetadata:
		keys, err := r.chatScope(e.Chat.Id, broker.KindChats)
		if err != nil {
			return nil, err
		}
		return append(keys, broker.TopicKey{Kind: broker.KindGroupChatMetadata, ID: e.Chat.Id}), nil

	case *ContactAdded:
		return userKeys(broker.KindAccounts, e.Owner), nil
	case *ContactRemoved:
		return userKeys(broker.KindAccounts, e.Owner), nil
	case *BlockedAccount:
		// Never the blocked party.
		return userKeys(broker.KindAccounts, e.Blocker), nil
	case *UnblockedAccount:
		return userKeys(broker.KindAccounts, e.Blocker), nil

	case *AccountUpdated:
		users, err := r.interestedIn(e.User.Id)
		if err != nil {
			return nil, err
		}
		return userKeys(broker.KindAccounts, users...), nil
	case *DeletedAccount:
		return userKeys(broker.KindAccounts, e.Users...), nil

	case *TypingUsers:
		keys := []broker.TopicKey{{Kind: broker.KindTypingStatus, ID: e.Chat}}
		chat, err := r.store.Chats.Get(e.Chat)
		if err != nil {
			return nil, err
		}
		if chat != nil && chat.IsPublic() {
			keys = append(keys, broker.TopicKey{Kind: broker.KindChatMessages, ID: e.Chat})
		}
		return keys, nil

	case *OnlineStatus:
		users, err := r.interestedIn(e.User)
		if err != nil {
			return nil, err
		}
		return userKeys(broker.KindOnlineStatus, users...), nil
	}
	// Unknown event: deliver to no one.
	return nil, nil
}

// chatScope returns one user-keyed topic of the given kind per current
// live participant, plus the chat's anonymous topic when it is public.
func (r *Resolver) chatScope(cid t.Uid, kind broker.Kind) ([]broker.TopicKey, error) {
	parts, err := r.store.Chats.Participants(cid)
	if err != nil {
		return nil, err
	}
	keys := lo.Map(parts, func(p t.Participant, _ int) broker.TopicKey {
		return broker.TopicKey{Kind: kind, ID: p.User}
	})
	chat, err := r.store.Chats.Get(cid)
	if err != nil {
		return nil, err
	}
	if chat != nil && chat.IsPublic() {
		keys = append(keys, broker.TopicKey{Kind: broker.KindChatMessages, ID: cid})
	}
	return keys, nil
}

// interestedIn returns the user themselves, everyone holding them as a
// contact, and everyone sharing a live private chat with them.
func (r *Resolver) interestedIn(uid t.Uid) ([]t.Uid, error) {
	users := []t.Uid{uid}

	holders, err := r.store.Contacts.Holders(uid)
	if err != nil {
		return nil, err
	}
	users = append(users, holders...)

	chats, err := r.store.Chats.ForUser(uid, nil)
	if err != nil {
		return nil, err
	}
	for _, chat := range chats {
		if chat.Kind != t.ChatPrivate {
			continue
		}
		parts, err := r.store.Chats.Participants(chat.Id)
		if err != nil {
			return nil, err
		}
		for _, p := range parts {
			if p.User != uid {
				users = append(users, p.User)
			}
		}
	}
	return lo.Uniq(users), nil
}

func userKeys(kind broker.Kind, users ...t.Uid) []broker.TopicKey {
	return lo.Map(users, func(uid t.Uid, _ int) broker.TopicKey {
		return broker.TopicKey{Kind: kind, ID: uid}
	})
}

// Gate implements broker.Gate: subscribe-time authorization against the
// topic's backing entity.
type Gate struct {
	store *store.Store
}

// NewGate creates a gate bound to the given store.
func NewGate(s *store.Store) *Gate {
	return &Gate{store: s}
}

// Authorize admits or rejects a subscription attempt. User-keyed topics
// accept only their own user. Chat-keyed topics accept any identity when
// the chat is public, live participants otherwise; the anonymous message
// topic exists only for public chats.
func (g *Gate) Authorize(key broker.TopicKey, viewer t.Uid) error {
	if key.Kind.UserKeyed() {
		if viewer.IsZero() || viewer != key.ID {
			return t.ErrPermissionDenied
		}
		user, err := g.store.Users.Get(viewer)
		if err != nil {
			return err
		}
		if user == nil {
			return t.ErrNotFound
		}
		return nil
	}

	chat, err := g.store.Chats.Get(key.ID)
	if err != nil {
		return err
	}
	if chat == nil {
		return t.ErrNotFound
	}
	if chat.IsPublic() {
		return nil
	}
	if key.Kind == broker.KindChatMessages {
		// Anonymous topics exist only for public chats.
		return t.ErrPermissionDenied
	}
	if viewer.IsZero() {
		return t.ErrPermissionDenied
	}
	part, err := g.store.Chats.Participant(key.ID, viewer)
	if err != nil {
		return err
	}
	if part == nil {
		return t.ErrPermissionDenied
	}
	return nil
}
