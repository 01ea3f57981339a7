// Package badgerdb is a database adapter backed by an embedded BadgerDB
// key-value store. It keeps the whole dataset in a single process, which
// matches the single-datastore deployment model; the in-memory mode is
// used by the test suites.
package badgerdb

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	adapter "github.com/mercury-im/mercury/server/db"
	t "github.com/mercury-im/mercury/server/store/types"
)

// Key layout. Fixed-width big-endian ordinals keep badger's lexicographic
// iteration order equal to ordinal order.
//
//	usr <user>                user record
//	cht <chat>                chat record
//	prt <chat><user>          participant row
//	ucx <user><chat>          chat membership index
//	pcx <lo><hi>              private chat pair -> chat id
//	msg <chat><message>       message record
//	mix <message>             message id -> chat id
//	sta <message><user><kind> status row
//	cnt <owner><row>          contact row
//	cni <owner><contact>      contact pair -> row id
//	cnh <contact><owner>      contact holder index
//	blk <blocker><row>        block row
//	bli <blocker><blocked>    block pair -> row id
//	blh <blocked><blocker>    block reverse index
//	str <user><row>           star row
//	sti <user><message>       star pair -> row id
//	smx <message><user>       star reverse index
//	bmk <user><row>           bookmark row
//	bmi <user><message>       bookmark pair -> row id
//	bmx <message><user>       bookmark reverse index
//	typ <chat><user>          typing record
//	cdl <chat><user>          chat deletion watermark

const adapterName = "badgerdb"

type configType struct {
	Dir      string `json:"dir"`
	InMemory bool   `json:"in_memory"`
}

type badgerAdapter struct {
	db         *badger.DB
	maxResults int
}

// New returns an unopened badger adapter.
func New() adapter.Adapter {
	return &badgerAdapter{}
}

// Open initializes the underlying badger database.
func (a *badgerAdapter) Open(jsonconf json.RawMessage) error {
	if a.db != nil {
		return errors.New("adapter badgerdb is already connected")
	}

	var config configType
	if len(jsonconf) > 0 {
		if err := json.Unmarshal(jsonconf, &config); err != nil {
			return errors.New("adapter badgerdb failed to parse config: " + err.Error())
		}
	}

	opts := badger.DefaultOptions(config.Dir).WithLogger(nil)
	if config.InMemory || config.Dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return err
	}
	a.db = db
	return nil
}

// Close shuts the database down.
func (a *badgerAdapter) Close() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

// IsOpen checks if the adapter is ready for use.
func (a *badgerAdapter) IsOpen() bool {
	return a.db != nil
}

// GetName returns the adapter name.
func (a *badgerAdapter) GetName() string {
	return adapterName
}

// SetMaxResults sets the default cap on scan sizes.
func (a *badgerAdapter) SetMaxResults(val int) error {
	if val <= 0 {
		return errors.New("adapter badgerdb invalid max results value")
	}
	a.maxResults = val
	return nil
}

// Stats returns badger LSM/vlog sizes.
func (a *badgerAdapter) Stats() any {
	if a.db == nil {
		return nil
	}
	lsm, vlog := a.db.Size()
	return map[string]int64{"lsm": lsm, "vlog": vlog}
}

func key(prefix string, ids ...t.Uid) []byte {
	k := make([]byte, len(prefix), len(prefix)+8*len(ids))
	copy(k, prefix)
	for _, id := range ids {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(id))
		k = append(k, buf[:]...)
	}
	return k
}

func uidAt(k []byte, prefixLen, idx int) t.Uid {
	off := prefixLen + idx*8
	return t.Uid(binary.BigEndian.Uint64(k[off : off+8]))
}

func setJSON(txn *badger.Txn, k []byte, val any) error {
	data, err := json.Marshal(val)
	if err != nil {
		return err
	}
	return txn.Set(k, data)
}

func getJSON(txn *badger.Txn, k []byte, val any) error {
	item, err := txn.Get(k)
	if err != nil {
		return err
	}
	return item.Value(func(v []byte) error {
		return json.Unmarshal(v, val)
	})
}

func setUid(txn *badger.Txn, k []byte, id t.Uid) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(id))
	return txn.Set(k, buf[:])
}

func getUid(txn *badger.Txn, k []byte) (t.Uid, error) {
	item, err := txn.Get(k)
	if err != nil {
		return t.ZeroUid, err
	}
	var id t.Uid
	err = item.Value(func(v []byte) error {
		id = t.Uid(binary.BigEndian.Uint64(v))
		return nil
	})
	return id, err
}

func exists(txn *badger.Txn, k []byte) (bool, error) {
	_, err := txn.Get(k)
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// forEach iterates all values under the prefix in key order.
func forEach(txn *badger.Txn, prefix []byte, fn func(k, v []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		k := item.KeyCopy(nil)
		if err := item.Value(func(v []byte) error {
			return fn(k, v)
		}); err != nil {
			return err
		}
	}
	return nil
}

// deletePrefix removes every key under the prefix. Keys are collected
// first: the iterator must be closed before the transaction is mutated.
func deletePrefix(txn *badger.Txn, prefix []byte) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)

	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()

	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// Users

// UserCreate creates a user record.
func (a *badgerAdapter) UserCreate(user *t.User) error {
	return a.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, key("usr", user.Id), user)
	})
}

// UserGet returns a live user record or nil.
func (a *badgerAdapter) UserGet(uid t.Uid) (*t.User, error) {
	var user *t.User
	err := a.db.View(func(txn *badger.Txn) error {
		var u t.User
		if err := getJSON(txn, key("usr", uid), &u); err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		if !u.IsDeleted() {
			user = &u
		}
		return nil
	})
	return user, err
}

// UserGetAll returns live user records for the given ids.
func (a *badgerAdapter) UserGetAll(ids ...t.Uid) ([]t.User, error) {
	var users []t.User
	err := a.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			var u t.User
			if err := getJSON(txn, key("usr", id), &u); err != nil {
				if err == badger.ErrKeyNotFound {
					continue
				}
				return err
			}
			if !u.IsDeleted() {
				users = append(users, u)
			}
		}
		return nil
	})
	return users, err
}

// UserUpdate applies the given updates to a user record.
func (a *badgerAdapter) UserUpdate(uid t.Uid, update map[string]any) error {
	return a.db.Update(func(txn *badger.Txn) error {
		var u t.User
		if err := getJSON(txn, key("usr", uid), &u); err != nil {
			if err == badger.ErrKeyNotFound {
				return t.ErrNotFound
			}
			return err
		}
		updateUser(&u, update)
		return setJSON(txn, key("usr", uid), &u)
	})
}

func updateUser(u *t.User, update map[string]any) {
	for f, v := range update {
		switch f {
		case "Username":
			u.Username = v.(string)
		case "DisplayName":
			u.DisplayName = v.(string)
		case "Bio":
			u.Bio = v.(string)
		case "Online":
			u.Online = v.(bool)
		case "LastOnline":
			u.LastOnline = v.(time.Time)
		}
	}
}

// UserDelete soft-deletes the user record.
func (a *badgerAdapter) UserDelete(uid t.Uid) error {
	return a.db.Update(func(txn *badger.Txn) error {
		var u t.User
		if err := getJSON(txn, key("usr", uid), &u); err != nil {
			if err == badger.ErrKeyNotFound {
				return t.ErrNotFound
			}
			return err
		}
		now := t.TimeNow()
		u.DeletedAt = &now
		return setJSON(txn, key("usr", uid), &u)
	})
}

// Chats

// ChatCreate creates a chat together with its initial participants.
func (a *badgerAdapter) ChatCreate(chat *t.Chat, parts []*t.Participant) error {
	return a.db.Update(func(txn *badger.Txn) error {
		if err := setJSON(txn, key("cht", chat.Id), chat); err != nil {
			return err
		}
		for _, p := range parts {
			if err := setJSON(txn, key("prt", p.Chat, p.User), p); err != nil {
				return err
			}
			if err := txn.Set(key("ucx", p.User, p.Chat), nil); err != nil {
				return err
			}
		}
		if chat.Kind == t.ChatPrivate && len(parts) == 2 {
			lo, hi := orderPair(parts[0].User, parts[1].User)
			return setUid(txn, key("pcx", lo, hi), chat.Id)
		}
		return nil
	})
}

func orderPair(u1, u2 t.Uid) (t.Uid, t.Uid) {
	if u1 < u2 {
		return u1, u2
	}
	return u2, u1
}

// ChatGet returns a live chat or nil.
func (a *badgerAdapter) ChatGet(cid t.Uid) (*t.Chat, error) {
	var chat *t.Chat
	err := a.db.View(func(txn *badger.Txn) error {
		c, err := chatGet(txn, cid)
		chat = c
		return err
	})
	return chat, err
}

func chatGet(txn *badger.Txn, cid t.Uid) (*t.Chat, error) {
	var c t.Chat
	if err := getJSON(txn, key("cht", cid), &c); err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}
	if c.IsDeleted() {
		return nil, nil
	}
	return &c, nil
}

// ChatUpdate applies the given updates to a chat record.
func (a *badgerAdapter) ChatUpdate(cid t.Uid, update map[string]any) error {
	return a.db.Update(func(txn *badger.Txn) error {
		var c t.Chat
		if err := getJSON(txn, key("cht", cid), &c); err != nil {
			if err == badger.ErrKeyNotFound {
				return t.ErrNotFound
			}
			return err
		}
		for f, v := range update {
			switch f {
			case "Title":
				c.Title = v.(string)
			case "Description":
				c.Description = v.(string)
			case "Publicity":
				c.Publicity = v.(t.Publicity)
			}
		}
		return setJSON(txn, key("cht", cid), &c)
	})
}

// ChatDelete soft-deletes the chat and hard-removes all dependent rows.
func (a *badgerAdapter) ChatDelete(cid t.Uid) error {
	return a.db.Update(func(txn *badger.Txn) error {
		var c t.Chat
		if err := getJSON(txn, key("cht", cid), &c); err != nil {
			if err == badger.ErrKeyNotFound {
				return t.ErrNotFound
			}
			return err
		}

		// Messages and their dependents.
		var msgIds []t.Uid
		if err := forEach(txn, key("msg", cid), func(k, v []byte) error {
			msgIds = append(msgIds, uidAt(k, 3, 1))
			return nil
		}); err != nil {
			return err
		}
		for _, mid := range msgIds {
			if err := messagePurgeDependents(txn, mid); err != nil {
				return err
			}
			if err := txn.Delete(key("mix", mid)); err != nil {
				return err
			}
		}
		if err := deletePrefix(txn, key("msg", cid)); err != nil {
			return err
		}

		// Membership rows and indexes.
		var users []t.Uid
		if err := forEach(txn, key("prt", cid), func(k, v []byte) error {
			users = append(users, uidAt(k, 3, 1))
			return nil
		}); err != nil {
			return err
		}
		for _, uid := range users {
			if err := txn.Delete(key("ucx", uid, cid)); err != nil {
				return err
			}
		}
		if err := deletePrefix(txn, key("prt", cid)); err != nil {
			return err
		}
		if err := deletePrefix(txn, key("typ", cid)); err != nil {
			return err
		}
		if err := deletePrefix(txn, key("cdl", cid)); err != nil {
			return err
		}

		now := t.TimeNow()
		c.DeletedAt = &now
		return setJSON(txn, key("cht", cid), &c)
	})
}

// messagePurgeDependents removes statuses, stars and bookmarks of a message.
func messagePurgeDependents(txn *badger.Txn, mid t.Uid) error {
	if err := deletePrefix(txn, key("sta", mid)); err != nil {
		return err
	}

	var starUsers []t.Uid
	if err := forEach(txn, key("smx", mid), func(k, v []byte) error {
		starUsers = append(starUsers, uidAt(k, 3, 1))
		return nil
	}); err != nil {
		return err
	}
	for _, uid := range starUsers {
		rowId, err := getUid(txn, key("sti", uid, mid))
		if err != nil {
			return err
		}
		if err = txn.Delete(key("str", uid, rowId)); err != nil {
			return err
		}
		if err = txn.Delete(key("sti", uid, mid)); err != nil {
			return err
		}
	}
	if err := deletePrefix(txn, key("smx", mid)); err != nil {
		return err
	}

	var bmUsers []t.Uid
	if err := forEach(txn, key("bmx", mid), func(k, v []byte) error {
		bmUsers = append(bmUsers, uidAt(k, 3, 1))
		return nil
	}); err != nil {
		return err
	}
	for _, uid := range bmUsers {
		rowId, err := getUid(txn, key("bmi", uid, mid))
		if err != nil {
			return err
		}
		if err = txn.Delete(key("bmk", uid, rowId)); err != nil {
			return err
		}
		if err = txn.Delete(key("bmi", uid, mid)); err != nil {
			return err
		}
	}
	return deletePrefix(txn, key("bmx", mid))
}

// PrivateChatBetween returns the live private chat of the two users or nil.
func (a *badgerAdapter) PrivateChatBetween(u1, u2 t.Uid) (*t.Chat, error) {
	var chat *t.Chat
	err := a.db.View(func(txn *badger.Txn) error {
		lo, hi := orderPair(u1, u2)
		cid, err := getUid(txn, key("pcx", lo, hi))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		chat, err = chatGet(txn, cid)
		return err
	})
	return chat, err
}

// ChatsForUser returns live chats of the user ascending by chat ordinal.
func (a *badgerAdapter) ChatsForUser(uid t.Uid, opts *t.QueryOpt) ([]t.Chat, error) {
	var chats []t.Chat
	err := a.db.View(func(txn *badger.Txn) error {
		var cids []t.Uid
		if err := forEach(txn, key("ucx", uid), func(k, v []byte) error {
			cids = append(cids, uidAt(k, 3, 1))
			return nil
		}); err != nil {
			return err
		}
		for _, cid := range cids {
			if !inBounds(cid, opts) {
				continue
			}
			c, err := chatGet(txn, cid)
			if err != nil {
				return err
			}
			if c != nil {
				chats = append(chats, *c)
			}
			if limited(len(chats), opts, a.maxResults) {
				break
			}
		}
		return nil
	})
	return chats, err
}

func inBounds(id t.Uid, opts *t.QueryOpt) bool {
	if opts == nil {
		return true
	}
	if !opts.Since.IsZero() && id <= opts.Since {
		return false
	}
	if !opts.Before.IsZero() && id >= opts.Before {
		return false
	}
	return true
}

func limited(count int, opts *t.QueryOpt, maxResults int) bool {
	if opts != nil && opts.Limit > 0 && count >= opts.Limit {
		return true
	}
	return maxResults > 0 && count >= maxResults
}

// Participants

// ParticipantAdd adds a membership row.
func (a *badgerAdapter) ParticipantAdd(p *t.Participant) error {
	return a.db.Update(func(txn *badger.Txn) error {
		ok, err := exists(txn, key("prt", p.Chat, p.User))
		if err != nil {
			return err
		}
		if ok {
			return t.ErrDuplicate
		}
		if err = setJSON(txn, key("prt", p.Chat, p.User), p); err != nil {
			return err
		}
		return txn.Set(key("ucx", p.User, p.Chat), nil)
	})
}

// ParticipantRemove removes a membership row.
func (a *badgerAdapter) ParticipantRemove(cid, uid t.Uid) error {
	return a.db.Update(func(txn *badger.Txn) error {
		ok, err := exists(txn, key("prt", cid, uid))
		if err != nil {
			return err
		}
		if !ok {
			return t.ErrNotFound
		}
		if err = txn.Delete(key("prt", cid, uid)); err != nil {
			return err
		}
		// The typing record, if any, dies with the membership.
		if err = txn.Delete(key("typ", cid, uid)); err != nil {
			return err
		}
		return txn.Delete(key("ucx", uid, cid))
	})
}

// ParticipantGet returns a membership row or nil.
func (a *badgerAdapter) ParticipantGet(cid, uid t.Uid) (*t.Participant, error) {
	var part *t.Participant
	err := a.db.View(func(txn *badger.Txn) error {
		var p t.Participant
		if err := getJSON(txn, key("prt", cid, uid), &p); err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		part = &p
		return nil
	})
	return part, err
}

// ParticipantsForChat returns membership rows ascending by user ordinal.
func (a *badgerAdapter) ParticipantsForChat(cid t.Uid) ([]t.Participant, error) {
	var parts []t.Participant
	err := a.db.View(func(txn *badger.Txn) error {
		return forEach(txn, key("prt", cid), func(k, v []byte) error {
			var p t.Participant
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			parts = append(parts, p)
			return nil
		})
	})
	return parts, err
}

// ParticipantUpdate changes the admin flag of a membership row.
func (a *badgerAdapter) ParticipantUpdate(cid, uid t.Uid, isAdmin bool) error {
	return a.db.Update(func(txn *badger.Txn) error {
		var p t.Participant
		if err := getJSON(txn, key("prt", cid, uid), &p); err != nil {
			if err == badger.ErrKeyNotFound {
				return t.ErrNotFound
			}
			return err
		}
		p.IsAdmin = isAdmin
		return setJSON(txn, key("prt", cid, uid), &p)
	})
}

// Messages

// MessageSave saves a new message.
func (a *badgerAdapter) MessageSave(msg *t.Message) error {
	return a.db.Update(func(txn *badger.Txn) error {
		if err := setJSON(txn, key("msg", msg.Chat, msg.Id), msg); err != nil {
			return err
		}
		return setUid(txn, key("mix", msg.Id), msg.Chat)
	})
}

// MessageGet returns a live message or nil.
func (a *badgerAdapter) MessageGet(mid t.Uid) (*t.Message, error) {
	var msg *t.Message
	err := a.db.View(func(txn *badger.Txn) error {
		m, err := messageGet(txn, mid)
		msg = m
		return err
	})
	return msg, err
}

func messageGet(txn *badger.Txn, mid t.Uid) (*t.Message, error) {
	cid, err := getUid(txn, key("mix", mid))
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var m t.Message
	if err = getJSON(txn, key("msg", cid, mid), &m); err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}
	if m.IsDeleted() {
		return nil, nil
	}
	return &m, nil
}

// MessageUpdate replaces the stored message payload.
func (a *badgerAdapter) MessageUpdate(msg *t.Message) error {
	return a.db.Update(func(txn *badger.Txn) error {
		ok, err := exists(txn, key("msg", msg.Chat, msg.Id))
		if err != nil {
			return err
		}
		if !ok {
			return t.ErrNotFound
		}
		return setJSON(txn, key("msg", msg.Chat, msg.Id), msg)
	})
}

// MessageDelete soft-deletes the message and purges its dependents. The
// tombstone row is kept so the ordinal survives as a paging boundary.
func (a *badgerAdapter) MessageDelete(mid t.Uid) error {
	return a.db.Update(func(txn *badger.Txn) error {
		cid, err := getUid(txn, key("mix", mid))
		if err == badger.ErrKeyNotFound {
			return t.ErrNotFound
		}
		if err != nil {
			return err
		}
		var m t.Message
		if err = getJSON(txn, key("msg", cid, mid), &m); err != nil {
			return err
		}
		if m.IsDeleted() {
			return t.ErrNotFound
		}
		if err = messagePurgeDependents(txn, mid); err != nil {
			return err
		}
		now := t.TimeNow()
		m.DeletedAt = &now
		return setJSON(txn, key("msg", cid, mid), &m)
	})
}

// MessagesForChat returns live messages ascending by ordinal.
func (a *badgerAdapter) MessagesForChat(cid t.Uid, opts *t.QueryOpt) ([]t.Message, error) {
	var msgs []t.Message
	err := a.db.View(func(txn *badger.Txn) error {
		return forEach(txn, key("msg", cid), func(k, v []byte) error {
			var m t.Message
			if err := json.Unmarshal(v, &m); err != nil {
				return err
			}
			if m.IsDeleted() || !inBounds(m.Id, opts) {
				return nil
			}
			if limited(len(msgs), opts, a.maxResults) {
				return nil
			}
			msgs = append(msgs, m)
			return nil
		})
	})
	return msgs, err
}

// Message statuses

// StatusCreate records a delivered/read status.
func (a *badgerAdapter) StatusCreate(st *t.MessageStatus) error {
	return a.db.Update(func(txn *badger.Txn) error {
		k := append(key("sta", st.Message, st.User), byte(st.Status))
		ok, err := exists(txn, k)
		if err != nil {
			return err
		}
		if ok {
			return t.ErrDuplicate
		}
		return setJSON(txn, k, st)
	})
}

// StatusesForMessage returns all status rows of a message.
func (a *badgerAdapter) StatusesForMessage(mid t.Uid) ([]t.MessageStatus, error) {
	var sts []t.MessageStatus
	err := a.db.View(func(txn *badger.Txn) error {
		return forEach(txn, key("sta", mid), func(k, v []byte) error {
			var st t.MessageStatus
			if err := json.Unmarshal(v, &st); err != nil {
				return err
			}
			sts = append(sts, st)
			return nil
		})
	})
	return sts, err
}

// Contacts

// ContactCreate adds a contact row.
func (a *badgerAdapter) ContactCreate(c *t.Contact) error {
	return a.db.Update(func(txn *badger.Txn) error {
		ok, err := exists(txn, key("cni", c.Owner, c.Contact))
		if err != nil {
			return err
		}
		if ok {
			return t.ErrDuplicate
		}
		if err = setJSON(txn, key("cnt", c.Owner, c.Id), c); err != nil {
			return err
		}
		if err = setUid(txn, key("cni", c.Owner, c.Contact), c.Id); err != nil {
			return err
		}
		return txn.Set(key("cnh", c.Contact, c.Owner), nil)
	})
}

// ContactDelete removes a contact row.
func (a *badgerAdapter) ContactDelete(owner, contact t.Uid) error {
	return a.db.Update(func(txn *badger.Txn) error {
		rowId, err := getUid(txn, key("cni", owner, contact))
		if err == badger.ErrKeyNotFound {
			return t.ErrNotFound
		}
		if err != nil {
			return err
		}
		if err = txn.Delete(key("cnt", owner, rowId)); err != nil {
			return err
		}
		if err = txn.Delete(key("cni", owner, contact)); err != nil {
			return err
		}
		return txn.Delete(key("cnh", contact, owner))
	})
}

// ContactsForUser returns the owner's contact rows ascending by ordinal.
func (a *badgerAdapter) ContactsForUser(owner t.Uid, opts *t.QueryOpt) ([]t.Contact, error) {
	var contacts []t.Contact
	err := a.db.View(func(txn *badger.Txn) error {
		return forEach(txn, key("cnt", owner), func(k, v []byte) error {
			var c t.Contact
			if err := json.Unmarshal(v, &c); err != nil {
				return err
			}
			if !inBounds(c.Id, opts) || limited(len(contacts), opts, a.maxResults) {
				return nil
			}
			contacts = append(contacts, c)
			return nil
		})
	})
	return contacts, err
}

// ContactHolders returns ids of users holding the given user as a contact.
func (a *badgerAdapter) ContactHolders(contact t.Uid) ([]t.Uid, error) {
	var holders []t.Uid
	err := a.db.View(func(txn *badger.Txn) error {
		return forEach(txn, key("cnh", contact), func(k, v []byte) error {
			holders = append(holders, uidAt(k, 3, 1))
			return nil
		})
	})
	return holders, err
}

// Blocks

// BlockCreate adds a block row.
func (a *badgerAdapter) BlockCreate(b *t.BlockEntry) error {
	return a.db.Update(func(txn *badger.Txn) error {
		ok, err := exists(txn, key("bli", b.Blocker, b.Blocked))
		if err != nil {
			return err
		}
		if ok {
			return t.ErrDuplicate
		}
		if err = setJSON(txn, key("blk", b.Blocker, b.Id), b); err != nil {
			return err
		}
		if err = setUid(txn, key("bli", b.Blocker, b.Blocked), b.Id); err != nil {
			return err
		}
		return txn.Set(key("blh", b.Blocked, b.Blocker), nil)
	})
}

// BlockDelete removes a block row.
func (a *badgerAdapter) BlockDelete(blocker, blocked t.Uid) error {
	return a.db.Update(func(txn *badger.Txn) error {
		rowId, err := getUid(txn, key("bli", blocker, blocked))
		if err == badger.ErrKeyNotFound {
			return t.ErrNotFound
		}
		if err != nil {
			return err
		}
		if err = txn.Delete(key("blk", blocker, rowId)); err != nil {
			return err
		}
		if err = txn.Delete(key("bli", blocker, blocked)); err != nil {
			return err
		}
		return txn.Delete(key("blh", blocked, blocker))
	})
}

// BlockGet returns a block row or nil.
func (a *badgerAdapter) BlockGet(blocker, blocked t.Uid) (*t.BlockEntry, error) {
	var entry *t.BlockEntry
	err := a.db.View(func(txn *badger.Txn) error {
		rowId, err := getUid(txn, key("bli", blocker, blocked))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		var b t.BlockEntry
		if err = getJSON(txn, key("blk", blocker, rowId), &b); err != nil {
			return err
		}
		entry = &b
		return nil
	})
	return entry, err
}

// BlocksForUser returns the blocker's block rows ascending by ordinal.
func (a *badgerAdapter) BlocksForUser(blocker t.Uid, opts *t.QueryOpt) ([]t.BlockEntry, error) {
	var blocks []t.BlockEntry
	err := a.db.View(func(txn *badger.Txn) error {
		return forEach(txn, key("blk", blocker), func(k, v []byte) error {
			var b t.BlockEntry
			if err := json.Unmarshal(v, &b); err != nil {
				return err
			}
			if !inBounds(b.Id, opts) || limited(len(blocks), opts, a.maxResults) {
				return nil
			}
			blocks = append(blocks, b)
			return nil
		})
	})
	return blocks, err
}

// Blockers returns ids of users holding a block against the given user.
func (a *badgerAdapter) Blockers(blocked t.Uid) ([]t.Uid, error) {
	var blockers []t.Uid
	err := a.db.View(func(txn *badger.Txn) error {
		return forEach(txn, key("blh", blocked), func(k, v []byte) error {
			blockers = append(blockers, uidAt(k, 3, 1))
			return nil
		})
	})
	return blockers, err
}

// Stars

// StarCreate adds a star row.
func (a *badgerAdapter) StarCreate(s *t.Star) error {
	return a.db.Update(func(txn *badger.Txn) error {
		ok, err := exists(txn, key("sti", s.User, s.Message))
		if err != nil {
			return err
		}
		if ok {
			return t.ErrDuplicate
		}
		if err = setJSON(txn, key("str", s.User, s.Id), s); err != nil {
			return err
		}
		if err = setUid(txn, key("sti", s.User, s.Message), s.Id); err != nil {
			return err
		}
		return txn.Set(key("smx", s.Message, s.User), nil)
	})
}

// StarDelete removes a star row.
func (a *badgerAdapter) StarDelete(user, message t.Uid) error {
	return a.db.Update(func(txn *badger.Txn) error {
		rowId, err := getUid(txn, key("sti", user, message))
		if err == badger.ErrKeyNotFound {
			return t.ErrNotFound
		}
		if err != nil {
			return err
		}
		if err = txn.Delete(key("str", user, rowId)); err != nil {
			return err
		}
		if err = txn.Delete(key("sti", user, message)); err != nil {
			return err
		}
		return txn.Delete(key("smx", message, user))
	})
}

// StarGet returns a star row or nil.
func (a *badgerAdapter) StarGet(user, message t.Uid) (*t.Star, error) {
	var star *t.Star
	err := a.db.View(func(txn *badger.Txn) error {
		rowId, err := getUid(txn, key("sti", user, message))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		var s t.Star
		if err = getJSON(txn, key("str", user, rowId), &s); err != nil {
			return err
		}
		star = &s
		return nil
	})
	return star, err
}

// StarsForUser returns the user's star rows ascending by ordinal.
func (a *badgerAdapter) StarsForUser(user t.Uid, opts *t.QueryOpt) ([]t.Star, error) {
	var stars []t.Star
	err := a.db.View(func(txn *badger.Txn) error {
		return forEach(txn, key("str", user), func(k, v []byte) error {
			var s t.Star
			if err := json.Unmarshal(v, &s); err != nil {
				return err
			}
			if !inBounds(s.Id, opts) || limited(len(stars), opts, a.maxResults) {
				return nil
			}
			stars = append(stars, s)
			return nil
		})
	})
	return stars, err
}

// Bookmarks

// BookmarkCreate adds a bookmark row.
func (a *badgerAdapter) BookmarkCreate(b *t.Bookmark) error {
	return a.db.Update(func(txn *badger.Txn) error {
		ok, err := exists(txn, key("bmi", b.User, b.Message))
		if err != nil {
			return err
		}
		if ok {
			return t.ErrDuplicate
		}
		if err = setJSON(txn, key("bmk", b.User, b.Id), b); err != nil {
			return err
		}
		if err = setUid(txn, key("bmi", b.User, b.Message), b.Id); err != nil {
			return err
		}
		return txn.Set(key("bmx", b.Message, b.User), nil)
	})
}

// BookmarkDelete removes a bookmark row.
func (a *badgerAdapter) BookmarkDelete(user, message t.Uid) error {
	return a.db.Update(func(txn *badger.Txn) error {
		rowId, err := getUid(txn, key("bmi", user, message))
		if err == badger.ErrKeyNotFound {
			return t.ErrNotFound
		}
		if err != nil {
			return err
		}
		if err = txn.Delete(key("bmk", user, rowId)); err != nil {
			return err
		}
		if err = txn.Delete(key("bmi", user, message)); err != nil {
			return err
		}
		return txn.Delete(key("bmx", message, user))
	})
}

// BookmarkGet returns a bookmark row or nil.
func (a *badgerAdapter) BookmarkGet(user, message t.Uid) (*t.Bookmark, error) {
	var bm *t.Bookmark
	err := a.db.View(func(txn *badger.Txn) error {
		rowId, err := getUid(txn, key("bmi", user, message))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		var b t.Bookmark
		if err = getJSON(txn, key("bmk", user, rowId), &b); err != nil {
			return err
		}
		bm = &b
		return nil
	})
	return bm, err
}

// BookmarksForUser returns the user's bookmark rows ascending by ordinal.
func (a *badgerAdapter) BookmarksForUser(user t.Uid, opts *t.QueryOpt) ([]t.Bookmark, error) {
	var bms []t.Bookmark
	err := a.db.View(func(txn *badger.Txn) error {
		return forEach(txn, key("bmk", user), func(k, v []byte) error {
			var b t.Bookmark
			if err := json.Unmarshal(v, &b); err != nil {
				return err
			}
			if !inBounds(b.Id, opts) || limited(len(bms), opts, a.maxResults) {
				return nil
			}
			bms = append(bms, b)
			return nil
		})
	})
	return bms, err
}

// Typing

// TypingCreate records that the user is typing in the chat.
func (a *badgerAdapter) TypingCreate(rec *t.TypingRecord) error {
	return a.db.Update(func(txn *badger.Txn) error {
		ok, err := exists(txn, key("typ", rec.Chat, rec.User))
		if err != nil {
			return err
		}
		if ok {
			return t.ErrDuplicate
		}
		return setJSON(txn, key("typ", rec.Chat, rec.User), rec)
	})
}

// TypingDelete removes the typing record.
func (a *badgerAdapter) TypingDelete(cid, uid t.Uid) error {
	return a.db.Update(func(txn *badger.Txn) error {
		ok, err := exists(txn, key("typ", cid, uid))
		if err != nil {
			return err
		}
		if !ok {
			return t.ErrNotFound
		}
		return txn.Delete(key("typ", cid, uid))
	})
}

// TypingForChat returns the chat's current typing records.
func (a *badgerAdapter) TypingForChat(cid t.Uid) ([]t.TypingRecord, error) {
	var recs []t.TypingRecord
	err := a.db.View(func(txn *badger.Txn) error {
		return forEach(txn, key("typ", cid), func(k, v []byte) error {
			var r t.TypingRecord
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			recs = append(recs, r)
			return nil
		})
	})
	return recs, err
}

// Chat deletion watermarks

// ChatDeletionUpsert records or advances a visibility watermark.
func (a *badgerAdapter) ChatDeletionUpsert(d *t.ChatDeletion) error {
	return a.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, key("cdl", d.Chat, d.User), d)
	})
}

// ChatDeletionGet returns the watermark row or nil.
func (a *badgerAdapter) ChatDeletionGet(uid, cid t.Uid) (*t.ChatDeletion, error) {
	var del *t.ChatDeletion
	err := a.db.View(func(txn *badger.Txn) error {
		var d t.ChatDeletion
		if err := getJSON(txn, key("cdl", cid, uid), &d); err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		del = &d
		return nil
	})
	return del, err
}

var _ adapter.Adapter = (*badgerAdapter)(nil)
