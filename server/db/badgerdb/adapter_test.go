package badgerdb

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	t_ "github.com/mercury-im/mercury/server/store/types"
)

func newAdapter(t *testing.T) *badgerAdapter {
	a := New().(*badgerAdapter)
	require.NoError(t, a.Open(json.RawMessage(`{"in_memory": true}`)))
	t.Cleanup(func() { a.Close() })
	return a
}

func user(t *testing.T, a *badgerAdapter, id t_.Uid, name string) {
	require.NoError(t, a.UserCreate(&t_.User{
		ObjHeader: t_.ObjHeader{Id: id, CreatedAt: t_.TimeNow()},
		Username:  name,
	}))
}

func groupChat(t *testing.T, a *badgerAdapter, cid t_.Uid, members ...t_.Uid) {
	var parts []*t_.Participant
	for i, uid := range members {
		parts = append(parts, &t_.Participant{
			Chat: cid, User: uid, IsAdmin: i == 0, CreatedAt: t_.TimeNow(),
		})
	}
	require.NoError(t, a.ChatCreate(&t_.Chat{
		ObjHeader: t_.ObjHeader{Id: cid, CreatedAt: t_.TimeNow()},
		Kind:      t_.ChatGroup,
		Title:     "test",
	}, parts))
}

func message(t *testing.T, a *badgerAdapter, mid, cid, from t_.Uid, text string) {
	require.NoError(t, a.MessageSave(&t_.Message{
		ObjHeader: t_.ObjHeader{Id: mid, CreatedAt: t_.TimeNow()},
		Chat:      cid, From: from, Kind: t_.MessageText, Text: text,
	}))
}

func TestOpenClose(t *testing.T) {
	a := newAdapter(t)
	assert.True(t, a.IsOpen())
	assert.Error(t, a.Open(nil))
	require.NoError(t, a.Close())
	assert.False(t, a.IsOpen())
}

func TestUserLifecycle(t *testing.T) {
	a := newAdapter(t)
	user(t, a, 10, "alice")

	got, err := a.UserGet(10)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "alice", got.Username)

	require.NoError(t, a.UserUpdate(10, map[string]any{"Bio": "hello"}))
	got, err = a.UserGet(10)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Bio)

	// Missing and deleted users are skipped, not errors.
	require.NoError(t, a.UserDelete(10))
	got, err = a.UserGet(10)
	require.NoError(t, err)
	assert.Nil(t, got)

	all, err := a.UserGetAll(10, 99)
	require.NoError(t, err)
	assert.Empty(t, all)

	assert.ErrorIs(t, a.UserUpdate(99, nil), t_.ErrNotFound)
}

func TestMembership(t *testing.T) {
	a := newAdapter(t)
	user(t, a, 1, "a")
	user(t, a, 2, "b")
	groupChat(t, a, 100, 2, 1)

	parts, err := a.ParticipantsForChat(100)
	require.NoError(t, err)
	require.Len(t, parts, 2)
	// Rows come back ascending by user ordinal regardless of insert order.
	assert.Equal(t, t_.Uid(1), parts[0].User)
	assert.Equal(t, t_.Uid(2), parts[1].User)

	err = a.ParticipantAdd(&t_.Participant{Chat: 100, User: 2})
	assert.ErrorIs(t, err, t_.ErrDuplicate)

	require.NoError(t, a.ParticipantUpdate(100, 1, true))
	p, err := a.ParticipantGet(100, 1)
	require.NoError(t, err)
	assert.True(t, p.IsAdmin)

	require.NoError(t, a.ParticipantRemove(100, 1))
	assert.ErrorIs(t, a.ParticipantRemove(100, 1), t_.ErrNotFound)

	chats, err := a.ChatsForUser(1, nil)
	require.NoError(t, err)
	assert.Empty(t, chats)
}

func TestPrivateChatBetween(t *testing.T) {
	a := newAdapter(t)
	user(t, a, 1, "a")
	user(t, a, 2, "b")
	require.NoError(t, a.ChatCreate(
		&t_.Chat{ObjHeader: t_.ObjHeader{Id: 50, CreatedAt: t_.TimeNow()}, Kind: t_.ChatPrivate},
		[]*t_.Participant{{Chat: 50, User: 2}, {Chat: 50, User: 1}}))

	// The lookup is symmetric in its arguments.
	c, err := a.PrivateChatBetween(1, 2)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, t_.Uid(50), c.Id)

	c, err = a.PrivateChatBetween(2, 1)
	require.NoError(t, err)
	require.NotNil(t, c)

	c, err = a.PrivateChatBetween(1, 3)
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestMessageBounds(t *testing.T) {
	a := newAdapter(t)
	groupChat(t, a, 100, 1)
	for mid := t_.Uid(201); mid <= 210; mid++ {
		message(t, a, mid, 100, 1, "m")
	}

	msgs, err := a.MessagesForChat(100, &t_.QueryOpt{Since: 203, Before: 208})
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, t_.Uid(204), msgs[0].Id)
	assert.Equal(t, t_.Uid(207), msgs[3].Id)

	msgs, err = a.MessagesForChat(100, &t_.QueryOpt{Limit: 3})
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, t_.Uid(201), msgs[0].Id)

	// A deleted message leaves a gap but never an error.
	require.NoError(t, a.MessageDelete(205))
	msgs, err = a.MessagesForChat(100, &t_.QueryOpt{Since: 203, Before: 208})
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	m, err := a.MessageGet(205)
	require.NoError(t, err)
	assert.Nil(t, m)
	assert.ErrorIs(t, a.MessageDelete(205), t_.ErrNotFound)
}

func TestMessageDeletePurgesDependents(t *testing.T) {
	a := newAdapter(t)
	groupChat(t, a, 100, 1, 2)
	message(t, a, 201, 100, 1, "m")

	require.NoError(t, a.StatusCreate(&t_.MessageStatus{Message: 201, User: 2, Status: t_.StatusRead}))
	require.NoError(t, a.StarCreate(&t_.Star{Id: 301, User: 2, Message: 201}))
	require.NoError(t, a.BookmarkCreate(&t_.Bookmark{Id: 302, User: 2, Message: 201}))

	require.NoError(t, a.MessageDelete(201))

	sts, err := a.StatusesForMessage(201)
	require.NoError(t, err)
	assert.Empty(t, sts)
	stars, err := a.StarsForUser(2, nil)
	require.NoError(t, err)
	assert.Empty(t, stars)
	bms, err := a.BookmarksForUser(2, nil)
	require.NoError(t, err)
	assert.Empty(t, bms)
}

func TestStatusDuplicate(t *testing.T) {
	a := newAdapter(t)
	groupChat(t, a, 100, 1, 2)
	message(t, a, 201, 100, 1, "m")

	st := &t_.MessageStatus{Message: 201, User: 2, Status: t_.StatusDelivered}
	require.NoError(t, a.StatusCreate(st))
	assert.ErrorIs(t, a.StatusCreate(st), t_.ErrDuplicate)

	// A different status kind for the same user is a distinct row.
	require.NoError(t, a.StatusCreate(&t_.MessageStatus{Message: 201, User: 2, Status: t_.StatusRead}))
	sts, err := a.StatusesForMessage(201)
	require.NoError(t, err)
	assert.Len(t, sts, 2)
}

func TestChatDeleteCascades(t *testing.T) {
	a := newAdapter(t)
	user(t, a, 1, "a")
	user(t, a, 2, "b")
	groupChat(t, a, 100, 1, 2)
	message(t, a, 201, 100, 1, "m")
	require.NoError(t, a.StarCreate(&t_.Star{Id: 301, User: 2, Message: 201}))
	require.NoError(t, a.TypingCreate(&t_.TypingRecord{Chat: 100, User: 1}))
	require.NoError(t, a.ChatDeletionUpsert(&t_.ChatDeletion{User: 2, Chat: 100, Watermark: 200}))

	require.NoError(t, a.ChatDelete(100))

	c, err := a.ChatGet(100)
	require.NoError(t, err)
	assert.Nil(t, c)

	m, err := a.MessageGet(201)
	require.NoError(t, err)
	assert.Nil(t, m)

	parts, err := a.ParticipantsForChat(100)
	require.NoError(t, err)
	assert.Empty(t, parts)

	stars, err := a.StarsForUser(2, nil)
	require.NoError(t, err)
	assert.Empty(t, stars)

	recs, err := a.TypingForChat(100)
	require.NoError(t, err)
	assert.Empty(t, recs)

	d, err := a.ChatDeletionGet(2, 100)
	require.NoError(t, err)
	assert.Nil(t, d)

	chats, err := a.ChatsForUser(1, nil)
	require.NoError(t, err)
	assert.Empty(t, chats)
}

func TestContacts(t *testing.T) {
	a := newAdapter(t)
	require.NoError(t, a.ContactCreate(&t_.Contact{Id: 401, Owner: 1, Contact: 2}))
	require.NoError(t, a.ContactCreate(&t_.Contact{Id: 402, Owner: 3, Contact: 2}))
	assert.ErrorIs(t, a.ContactCreate(&t_.Contact{Id: 403, Owner: 1, Contact: 2}), t_.ErrDuplicate)

	holders, err := a.ContactHolders(2)
	require.NoError(t, err)
	assert.ElementsMatch(t, []t_.Uid{1, 3}, holders)

	require.NoError(t, a.ContactDelete(1, 2))
	assert.ErrorIs(t, a.ContactDelete(1, 2), t_.ErrNotFound)

	holders, err = a.ContactHolders(2)
	require.NoError(t, err)
	assert.Equal(t, []t_.Uid{3}, holders)
}

func TestBlockers(t *testing.T) {
	a := newAdapter(t)
	require.NoError(t, a.BlockCreate(&t_.BlockEntry{Id: 501, Blocker: 1, Blocked: 2}))
	require.NoError(t, a.BlockCreate(&t_.BlockEntry{Id: 502, Blocker: 3, Blocked: 2}))
	require.NoError(t, a.BlockCreate(&t_.BlockEntry{Id: 503, Blocker: 1, Blocked: 3}))

	blockers, err := a.Blockers(2)
	require.NoError(t, err)
	assert.ElementsMatch(t, []t_.Uid{1, 3}, blockers)

	// Deleting the block row drops it from the reverse index too.
	require.NoError(t, a.BlockDelete(1, 2))
	blockers, err = a.Blockers(2)
	require.NoError(t, err)
	assert.Equal(t, []t_.Uid{3}, blockers)

	blockers, err = a.Blockers(99)
	require.NoError(t, err)
	assert.Empty(t, blockers)
}

func TestWatermarkUpsert(t *testing.T) {
	a := newAdapter(t)
	require.NoError(t, a.ChatDeletionUpsert(&t_.ChatDeletion{User: 1, Chat: 50, Watermark: 200}))
	require.NoError(t, a.ChatDeletionUpsert(&t_.ChatDeletion{User: 1, Chat: 50, Watermark: 300}))

	d, err := a.ChatDeletionGet(1, 50)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, t_.Uid(300), d.Watermark)

	d, err = a.ChatDeletionGet(2, 50)
	require.NoError(t, err)
	assert.Nil(t, d)
}
