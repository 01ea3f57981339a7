package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mercury-im/mercury/server/broker"
	"github.com/mercury-im/mercury/server/db/badgerdb"
	"github.com/mercury-im/mercury/server/store"
	t "github.com/mercury-im/mercury/server/store/types"
)

type env struct {
	store  *store.Store
	broker *broker.Broker
	svc    *Service
}

func newEnv(t_ *testing.T) *env {
	st, err := store.Open(1, badgerdb.New(), json.RawMessage(`{"in_memory": true}`))
	require.NoError(t_, err)

	b := broker.New(NewResolver(st), NewGate(st), 64)
	e := &env{store: st, broker: b, svc: NewService(st, b)}
	t_.Cleanup(func() {
		b.Shutdown()
		st.Close()
	})
	return e
}

func (e *env) user(t_ *testing.T, name string) t.Uid {
	u, err := e.svc.CreateUser(name, name)
	require.NoError(t_, err)
	return u.Id
}

func (e *env) sub(t_ *testing.T, kind broker.Kind, id, viewer t.Uid) *broker.Subscription {
	s, err := e.broker.Subscribe(broker.TopicKey{Kind: kind, ID: id}, viewer)
	require.NoError(t_, err)
	return s
}

func recv(t_ *testing.T, sub *broker.Subscription) broker.Event {
	t_.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t_, ok, "subscription closed while an event was expected")
		return ev
	case <-time.After(time.Second):
		t_.Fatal("timed out waiting for an event")
		return nil
	}
}

// noEvent asserts the subscription buffer is empty. Callers must Flush
// the broker first.
func noEvent(t_ *testing.T, sub *broker.Subscription) {
	t_.Helper()
	select {
	case ev := <-sub.Events():
		t_.Fatalf("unexpected event %s", ev.EventName())
	default:
	}
}

func TestBlockNotifiesBlockerOnly(t_ *testing.T) {
	e := newEnv(t_)
	alice := e.user(t_, "alice")
	bob := e.user(t_, "bob")

	aliceAcc := e.sub(t_, broker.KindAccounts, alice, alice)
	bobAcc := e.sub(t_, broker.KindAccounts, bob, bob)

	require.NoError(t_, e.svc.BlockUser(alice, bob))
	e.broker.Flush()

	ev := recv(t_, aliceAcc).(*BlockedAccount)
	assert.Equal(t_, bob, ev.Blocked)
	noEvent(t_, bobAcc)

	// Blocking again: no row, no event.
	require.NoError(t_, e.svc.BlockUser(alice, bob))
	e.broker.Flush()
	noEvent(t_, aliceAcc)

	page, err := e.svc.ReadBlockedUsers(alice, Page{})
	require.NoError(t_, err)
	require.Len(t_, page.Items, 1)

	// Unblock, then a redundant unblock.
	require.NoError(t_, e.svc.UnblockUser(alice, bob))
	e.broker.Flush()
	assert.IsType(t_, &UnblockedAccount{}, recv(t_, aliceAcc))
	require.NoError(t_, e.svc.UnblockUser(alice, bob))
	e.broker.Flush()
	noEvent(t_, aliceAcc)
	noEvent(t_, bobAcc)
}

func TestEmptyBlockedListPageInfo(t_ *testing.T) {
	e := newEnv(t_)
	alice := e.user(t_, "alice")

	page, err := e.svc.ReadBlockedUsers(alice, Page{})
	require.NoError(t_, err)
	assert.Empty(t_, page.Items)
	assert.False(t_, page.Info.HasNextPage)
	assert.False(t_, page.Info.HasPreviousPage)
	assert.True(t_, page.Info.StartCursor.IsZero())
	assert.True(t_, page.Info.EndCursor.IsZero())
}

func TestRemoveParticipant(t_ *testing.T) {
	e := newEnv(t_)
	admin := e.user(t_, "admin")
	user := e.user(t_, "user")

	chat, err := e.svc.CreateGroupChat(admin, "room", "", t.PublicityNotInvitable, []t.Uid{user})
	require.NoError(t_, err)

	adminChats := e.sub(t_, broker.KindChats, admin, admin)
	userChats := e.sub(t_, broker.KindChats, user, user)

	require.NoError(t_, e.svc.RemoveParticipant(admin, chat.Id, user))
	// Removing an already-removed user changes nothing.
	require.NoError(t_, e.svc.RemoveParticipant(admin, chat.Id, user))
	e.broker.Flush()

	exited := recv(t_, adminChats).(*ExitedUsers)
	assert.Equal(t_, chat.Id, exited.Chat)
	assert.Equal(t_, []t.Uid{user}, exited.Users)
	noEvent(t_, adminChats)

	removed := recv(t_, userChats).(*RemovedFromChat)
	assert.Equal(t_, chat.Id, removed.Chat)
	noEvent(t_, userChats)

	parts, err := e.svc.ReadParticipants(admin, chat.Id)
	require.NoError(t_, err)
	require.Len(t_, parts, 1)
	assert.Equal(t_, admin, parts[0].User)
}

func TestRemoveParticipantAuthorization(t_ *testing.T) {
	e := newEnv(t_)
	admin := e.user(t_, "admin")
	u1 := e.user(t_, "u1")
	u2 := e.user(t_, "u2")

	chat, err := e.svc.CreateGroupChat(admin, "room", "", t.PublicityNotInvitable, []t.Uid{u1, u2})
	require.NoError(t_, err)

	// A regular participant cannot remove another participant.
	assert.ErrorIs(t_, e.svc.RemoveParticipant(u1, chat.Id, u2), t.ErrPermissionDenied)
	// But may leave.
	require.NoError(t_, e.svc.RemoveParticipant(u1, chat.Id, u1))
	// A non-participant cannot touch the chat at all.
	assert.ErrorIs(t_, e.svc.RemoveParticipant(u1, chat.Id, u2), t.ErrPermissionDenied)
}

func TestLastAdminInvariant(t_ *testing.T) {
	e := newEnv(t_)
	admin := e.user(t_, "admin")
	user := e.user(t_, "user")

	chat, err := e.svc.CreateGroupChat(admin, "room", "", t.PublicityNotInvitable, []t.Uid{user})
	require.NoError(t_, err)

	// The only admin cannot leave a non-empty chat.
	assert.ErrorIs(t_, e.svc.LeaveChat(admin, chat.Id), t.ErrLastAdmin)

	require.NoError(t_, e.svc.MakeAdmin(admin, chat.Id, user))
	// Granting again is a no-op.
	require.NoError(t_, e.svc.MakeAdmin(admin, chat.Id, user))
	require.NoError(t_, e.svc.LeaveChat(admin, chat.Id))

	parts, err := e.svc.ReadParticipants(user, chat.Id)
	require.NoError(t_, err)
	require.Len(t_, parts, 1)
	assert.True(t_, parts[0].IsAdmin)
}

func TestEmptyChatCascade(t_ *testing.T) {
	e := newEnv(t_)
	admin := e.user(t_, "admin")

	chat, err := e.svc.CreateGroupChat(admin, "solo", "", t.PublicityPublic, nil)
	require.NoError(t_, err)
	msg, err := e.svc.CreateMessage(admin, chat.Id, MessageDraft{Kind: t.MessageText, Text: "hello"})
	require.NoError(t_, err)
	require.NoError(t_, e.svc.StarMessage(admin, msg.Id))
	require.NoError(t_, e.svc.SetTyping(admin, chat.Id, true))

	meta := e.sub(t_, broker.KindGroupChatMetadata, chat.Id, admin)
	anon := e.sub(t_, broker.KindChatMessages, chat.Id, t.ZeroUid)

	require.NoError(t_, e.svc.LeaveChat(admin, chat.Id))
	e.broker.Flush()

	// Both chat-keyed topics completed.
	for _, sub := range []*broker.Subscription{meta, anon} {
		for {
			if _, ok := <-sub.Events(); !ok {
				break
			}
		}
	}

	_, err = e.svc.ReadChat(admin, chat.Id)
	assert.ErrorIs(t_, err, t.ErrNotFound)
	stars, err := e.svc.ReadStarredMessages(admin, Page{})
	require.NoError(t_, err)
	assert.Empty(t_, stars.Items)
}

func TestTypingIdempotence(t_ *testing.T) {
	e := newEnv(t_)
	alice := e.user(t_, "alice")
	bob := e.user(t_, "bob")
	chat, err := e.svc.CreatePrivateChat(alice, bob)
	require.NoError(t_, err)

	typ := e.sub(t_, broker.KindTypingStatus, chat.Id, bob)

	require.NoError(t_, e.svc.SetTyping(alice, chat.Id, true))
	require.NoError(t_, e.svc.SetTyping(alice, chat.Id, true))
	e.broker.Flush()

	ev := recv(t_, typ).(*TypingUsers)
	assert.Equal(t_, []t.Uid{alice}, ev.Users)
	noEvent(t_, typ)

	users, err := e.svc.ReadTypingUsers(bob, chat.Id)
	require.NoError(t_, err)
	assert.Equal(t_, []t.Uid{alice}, users)

	require.NoError(t_, e.svc.SetTyping(alice, chat.Id, false))
	require.NoError(t_, e.svc.SetTyping(alice, chat.Id, false))
	e.broker.Flush()

	ev = recv(t_, typ).(*TypingUsers)
	assert.Empty(t_, ev.Users)
	noEvent(t_, typ)
}

func TestPrivateChatWatermark(t_ *testing.T) {
	e := newEnv(t_)
	alice := e.user(t_, "alice")
	bob := e.user(t_, "bob")
	chat, err := e.svc.CreatePrivateChat(alice, bob)
	require.NoError(t_, err)

	m1, err := e.svc.CreateMessage(bob, chat.Id, MessageDraft{Kind: t.MessageText, Text: "one"})
	require.NoError(t_, err)
	_, err = e.svc.CreateMessage(bob, chat.Id, MessageDraft{Kind: t.MessageText, Text: "two"})
	require.NoError(t_, err)

	require.NoError(t_, e.svc.DeleteChatForUser(alice, chat.Id))

	// Deletion hides the history but not the future: a new message from
	// Bob still reaches Alice.
	aliceMsgs := e.sub(t_, broker.KindMessages, alice, alice)
	m3, err := e.svc.CreateMessage(bob, chat.Id, MessageDraft{Kind: t.MessageText, Text: "three"})
	require.NoError(t_, err)
	e.broker.Flush()

	ev := recv(t_, aliceMsgs).(*NewMessage)
	assert.Equal(t_, m3.Id, ev.Message.Id)

	alicePage, err := e.svc.ReadMessages(alice, chat.Id, Page{})
	require.NoError(t_, err)
	require.Len(t_, alicePage.Items, 1)
	assert.Equal(t_, m3.Id, alicePage.Items[0].Id)

	// Bob still sees everything.
	bobPage, err := e.svc.ReadMessages(bob, chat.Id, Page{})
	require.NoError(t_, err)
	require.Len(t_, bobPage.Items, 3)
	assert.Equal(t_, m1.Id, bobPage.Items[0].Id)
}

func TestNewMessageFanout(t_ *testing.T) {
	e := newEnv(t_)
	admin := e.user(t_, "admin")
	member := e.user(t_, "member")
	outsider := e.user(t_, "outsider")

	chat, err := e.svc.CreateGroupChat(admin, "town square", "", t.PublicityPublic, []t.Uid{member})
	require.NoError(t_, err)

	memberFeed := e.sub(t_, broker.KindMessages, member, member)
	outsiderFeed := e.sub(t_, broker.KindMessages, outsider, outsider)
	anon := e.sub(t_, broker.KindChatMessages, chat.Id, t.ZeroUid)

	msg, err := e.svc.CreateMessage(admin, chat.Id, MessageDraft{Kind: t.MessageText, Text: "hi"})
	require.NoError(t_, err)
	e.broker.Flush()

	assert.Equal(t_, msg.Id, recv(t_, memberFeed).(*NewMessage).Message.Id)
	assert.Equal(t_, msg.Id, recv(t_, anon).(*NewMessage).Message.Id)
	noEvent(t_, outsiderFeed)
}

func TestStarScopeAndStatusScope(t_ *testing.T) {
	e := newEnv(t_)
	alice := e.user(t_, "alice")
	bob := e.user(t_, "bob")
	chat, err := e.svc.CreatePrivateChat(alice, bob)
	require.NoError(t_, err)
	msg, err := e.svc.CreateMessage(bob, chat.Id, MessageDraft{Kind: t.MessageText, Text: "hello"})
	require.NoError(t_, err)

	aliceFeed := e.sub(t_, broker.KindMessages, alice, alice)
	bobFeed := e.sub(t_, broker.KindMessages, bob, bob)

	// Starring is visible to the stargazer only.
	require.NoError(t_, e.svc.StarMessage(alice, msg.Id))
	require.NoError(t_, e.svc.StarMessage(alice, msg.Id))
	e.broker.Flush()
	assert.IsType(t_, &UpdatedMessage{}, recv(t_, aliceFeed))
	noEvent(t_, aliceFeed)
	noEvent(t_, bobFeed)

	// A read receipt is chat-visible state: both participants hear it.
	require.NoError(t_, e.svc.AddStatus(alice, msg.Id, t.StatusRead))
	e.broker.Flush()
	assert.IsType(t_, &UpdatedMessage{}, recv(t_, aliceFeed))
	assert.IsType(t_, &UpdatedMessage{}, recv(t_, bobFeed))

	// A duplicate receipt is a structural violation, not a no-op.
	assert.ErrorIs(t_, e.svc.AddStatus(alice, msg.Id, t.StatusRead), t.ErrDuplicate)
}

func TestPrivateChatUniqueness(t_ *testing.T) {
	e := newEnv(t_)
	alice := e.user(t_, "alice")
	bob := e.user(t_, "bob")
	eve := e.user(t_, "eve")

	_, err := e.svc.CreatePrivateChat(alice, bob)
	require.NoError(t_, err)
	_, err = e.svc.CreatePrivateChat(bob, alice)
	assert.ErrorIs(t_, err, t.ErrDuplicate)

	// A block in either direction forbids opening a chat.
	require.NoError(t_, e.svc.BlockUser(eve, alice))
	_, err = e.svc.CreatePrivateChat(alice, eve)
	assert.ErrorIs(t_, err, t.ErrPermissionDenied)
}

func TestMessagePaginationWithDeletedCursor(t_ *testing.T) {
	e := newEnv(t_)
	alice := e.user(t_, "alice")
	bob := e.user(t_, "bob")
	chat, err := e.svc.CreatePrivateChat(alice, bob)
	require.NoError(t_, err)

	ids := make([]t.Uid, 10)
	for i := range ids {
		msg, err := e.svc.CreateMessage(alice, chat.Id, MessageDraft{Kind: t.MessageText, Text: "m"})
		require.NoError(t_, err)
		ids[i] = msg.Id
	}

	// Delete the fourth message, then page backward from the sixth: its
	// ordinal must still split the collection as if it were live.
	require.NoError(t_, e.svc.DeleteMessage(alice, ids[3]))

	last := 3
	page, err := e.svc.ReadMessages(bob, chat.Id, Page{Last: &last, Before: &ids[5]})
	require.NoError(t_, err)
	require.Len(t_, page.Items, 3)
	assert.Equal(t_, ids[1], page.Items[0].Id)
	assert.Equal(t_, ids[2], page.Items[1].Id)
	assert.Equal(t_, ids[4], page.Items[2].Id)
	assert.True(t_, page.Info.HasNextPage)
	assert.True(t_, page.Info.HasPreviousPage)

	// The deleted ordinal itself works as a cursor too.
	first := 2
	page, err = e.svc.ReadMessages(bob, chat.Id, Page{First: &first, After: &ids[3]})
	require.NoError(t_, err)
	require.Len(t_, page.Items, 2)
	assert.Equal(t_, ids[4], page.Items[0].Id)
	assert.Equal(t_, ids[5], page.Items[1].Id)
}

func TestContactsIdempotence(t_ *testing.T) {
	e := newEnv(t_)
	alice := e.user(t_, "alice")
	bob := e.user(t_, "bob")

	acc := e.sub(t_, broker.KindAccounts, alice, alice)

	require.NoError(t_, e.svc.CreateContact(alice, bob))
	require.NoError(t_, e.svc.CreateContact(alice, bob))
	e.broker.Flush()
	assert.IsType(t_, &ContactAdded{}, recv(t_, acc))
	noEvent(t_, acc)

	page, err := e.svc.ReadContacts(alice, Page{})
	require.NoError(t_, err)
	require.Len(t_, page.Items, 1)

	require.NoError(t_, e.svc.DeleteContact(alice, bob))
	require.NoError(t_, e.svc.DeleteContact(alice, bob))
	e.broker.Flush()
	assert.IsType(t_, &ContactRemoved{}, recv(t_, acc))
	noEvent(t_, acc)
}

func TestOnlineStatusAudience(t_ *testing.T) {
	e := newEnv(t_)
	alice := e.user(t_, "alice")
	bob := e.user(t_, "bob")
	carol := e.user(t_, "carol")
	stranger := e.user(t_, "stranger")

	// Bob holds Alice as a contact; Carol shares a private chat.
	require.NoError(t_, e.svc.CreateContact(bob, alice))
	_, err := e.svc.CreatePrivateChat(alice, carol)
	require.NoError(t_, err)

	bobFeed := e.sub(t_, broker.KindOnlineStatus, bob, bob)
	carolFeed := e.sub(t_, broker.KindOnlineStatus, carol, carol)
	strangerFeed := e.sub(t_, broker.KindOnlineStatus, stranger, stranger)

	require.NoError(t_, e.svc.SetOnline(alice, true))
	// Re-asserting the same presence is a no-op.
	require.NoError(t_, e.svc.SetOnline(alice, true))
	e.broker.Flush()

	assert.True(t_, recv(t_, bobFeed).(*OnlineStatus).Online)
	assert.True(t_, recv(t_, carolFeed).(*OnlineStatus).Online)
	noEvent(t_, bobFeed)
	noEvent(t_, strangerFeed)

	// Read entitlement mirrors the audience rule.
	st, err := e.svc.ReadOnlineStatus(bob, alice)
	require.NoError(t_, err)
	assert.True(t_, st.Online)
	_, err = e.svc.ReadOnlineStatus(stranger, alice)
	assert.ErrorIs(t_, err, t.ErrPermissionDenied)
}

func TestSubscribeAuthorization(t_ *testing.T) {
	e := newEnv(t_)
	alice := e.user(t_, "alice")
	bob := e.user(t_, "bob")
	outsider := e.user(t_, "outsider")

	private, err := e.svc.CreatePrivateChat(alice, bob)
	require.NoError(t_, err)
	public, err := e.svc.CreateGroupChat(alice, "square", "", t.PublicityPublic, nil)
	require.NoError(t_, err)

	// User-keyed topics: self only.
	_, err = e.broker.Subscribe(broker.TopicKey{Kind: broker.KindMessages, ID: alice}, bob)
	assert.ErrorIs(t_, err, t.ErrPermissionDenied)

	// Private chat topics: participants only, no anonymous topic.
	_, err = e.broker.Subscribe(broker.TopicKey{Kind: broker.KindTypingStatus, ID: private.Id}, outsider)
	assert.ErrorIs(t_, err, t.ErrPermissionDenied)
	_, err = e.broker.Subscribe(broker.TopicKey{Kind: broker.KindChatMessages, ID: private.Id}, t.ZeroUid)
	assert.ErrorIs(t_, err, t.ErrPermissionDenied)

	// Public chat: anyone, authenticated or not.
	_, err = e.broker.Subscribe(broker.TopicKey{Kind: broker.KindChatMessages, ID: public.Id}, t.ZeroUid)
	require.NoError(t_, err)
	_, err = e.broker.Subscribe(broker.TopicKey{Kind: broker.KindTypingStatus, ID: public.Id}, outsider)
	require.NoError(t_, err)
}

func TestSearchMessages(t_ *testing.T) {
	e := newEnv(t_)
	alice := e.user(t_, "alice")
	bob := e.user(t_, "bob")
	chat, err := e.svc.CreatePrivateChat(alice, bob)
	require.NoError(t_, err)

	for _, text := range []string{"Hello world", "goodbye", "HELLO again", "unrelated"} {
		_, err := e.svc.CreateMessage(alice, chat.Id, MessageDraft{Kind: t.MessageText, Text: text})
		require.NoError(t_, err)
	}

	page, err := e.svc.SearchMessages(bob, "hello", Page{})
	require.NoError(t_, err)
	require.Len(t_, page.Items, 2)
	assert.Equal(t_, "Hello world", page.Items[0].Text)
	assert.Equal(t_, "HELLO again", page.Items[1].Text)

	first := 1
	page, err = e.svc.SearchMessages(bob, "hello", Page{First: &first})
	require.NoError(t_, err)
	require.Len(t_, page.Items, 1)
	assert.True(t_, page.Info.HasNextPage)

	_, err = e.svc.SearchMessages(bob, "   ", Page{})
	assert.ErrorIs(t_, err, t.ErrMalformed)
}

func TestPollVoting(t_ *testing.T) {
	e := newEnv(t_)
	alice := e.user(t_, "alice")
	bob := e.user(t_, "bob")
	chat, err := e.svc.CreatePrivateChat(alice, bob)
	require.NoError(t_, err)

	msg, err := e.svc.CreateMessage(alice, chat.Id, MessageDraft{
		Kind: t.MessagePoll,
		Poll: &t.Poll{Question: "lunch?", Options: []t.PollOption{{Text: "yes"}, {Text: "no"}}},
	})
	require.NoError(t_, err)

	bobFeed := e.sub(t_, broker.KindMessages, bob, bob)

	updated, err := e.svc.SetPollVote(bob, msg.Id, 0)
	require.NoError(t_, err)
	assert.Equal(t_, []t.Uid{bob}, updated.Poll.Options[0].Voters)
	e.broker.Flush()
	assert.IsType(t_, &UpdatedMessage{}, recv(t_, bobFeed))

	// Re-voting the same option is a no-op.
	_, err = e.svc.SetPollVote(bob, msg.Id, 0)
	require.NoError(t_, err)
	e.broker.Flush()
	noEvent(t_, bobFeed)

	// Moving the vote clears the previous option.
	updated, err = e.svc.SetPollVote(bob, msg.Id, 1)
	require.NoError(t_, err)
	assert.Empty(t_, updated.Poll.Options[0].Voters)
	assert.Equal(t_, []t.Uid{bob}, updated.Poll.Options[1].Voters)

	_, err = e.svc.SetPollVote(bob, msg.Id, 5)
	assert.ErrorIs(t_, err, t.ErrMalformed)
}

func TestDeleteUserCascade(t_ *testing.T) {
	e := newEnv(t_)
	alice := e.user(t_, "alice")
	bob := e.user(t_, "bob")

	require.NoError(t_, e.svc.CreateContact(bob, alice))
	chat, err := e.svc.CreatePrivateChat(alice, bob)
	require.NoError(t_, err)

	bobAcc := e.sub(t_, broker.KindAccounts, bob, bob)
	aliceFeed := e.sub(t_, broker.KindMessages, alice, alice)

	require.NoError(t_, e.svc.DeleteUser(alice))
	e.broker.Flush()

	// Bob learns; Alice's own topics are completed.
	var sawDeleted bool
	for {
		ev, ok := <-bobAcc.Events()
		if !ok {
			t_.Fatal("bob's topic closed unexpectedly")
		}
		if del, is := ev.(*DeletedAccount); is {
			assert.Equal(t_, alice, del.User)
			sawDeleted = true
			break
		}
	}
	assert.True(t_, sawDeleted)
	for {
		if _, ok := <-aliceFeed.Events(); !ok {
			break
		}
	}

	_, err = e.svc.GetUser(alice)
	assert.ErrorIs(t_, err, t.ErrNotFound)
	// The private chat emptied out and was cascaded away.
	_, err = e.svc.ReadChat(bob, chat.Id)
	assert.ErrorIs(t_, err, t.ErrNotFound)
	page, err := e.svc.ReadContacts(bob, Page{})
	require.NoError(t_, err)
	assert.Empty(t_, page.Items)
}

func TestDeleteUserDropsInboundBlocks(t_ *testing.T) {
	e := newEnv(t_)
	alice := e.user(t_, "alice")
	bob := e.user(t_, "bob")
	carol := e.user(t_, "carol")

	require.NoError(t_, e.svc.BlockUser(bob, alice))
	require.NoError(t_, e.svc.BlockUser(carol, alice))
	require.NoError(t_, e.svc.BlockUser(bob, carol))

	require.NoError(t_, e.svc.DeleteUser(alice))

	// Nobody keeps a block row pointing at the deleted account.
	page, err := e.svc.ReadBlockedUsers(bob, Page{})
	require.NoError(t_, err)
	require.Len(t_, page.Items, 1)
	assert.Equal(t_, carol, page.Items[0].Blocked)

	page, err = e.svc.ReadBlockedUsers(carol, Page{})
	require.NoError(t_, err)
	assert.Empty(t_, page.Items)
}

func TestPublicityChangeCompletesAnonymousTopic(t_ *testing.T) {
	e := newEnv(t_)
	admin := e.user(t_, "admin")

	chat, err := e.svc.CreateGroupChat(admin, "square", "", t.PublicityPublic, nil)
	require.NoError(t_, err)
	anon := e.sub(t_, broker.KindChatMessages, chat.Id, t.ZeroUid)

	priv := t.PublicityNotInvitable
	_, err = e.svc.UpdateGroupChat(admin, chat.Id, GroupChatUpdate{Publicity: &priv})
	require.NoError(t_, err)
	e.broker.Flush()

	for {
		if _, ok := <-anon.Events(); !ok {
			break
		}
	}
	// And no new anonymous subscription may be opened.
	_, err = e.broker.Subscribe(broker.TopicKey{Kind: broker.KindChatMessages, ID: chat.Id}, t.ZeroUid)
	assert.ErrorIs(t_, err, t.ErrPermissionDenied)
}
