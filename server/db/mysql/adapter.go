// Package mysql is a database adapter backed by MySQL/MariaDB through
// sqlx. Schema objects are created on first open. Soft deletion is a
// deletedat column; range scans filter it out and honor QueryOpt ordinal
// bounds.
package mysql

import (
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	ms "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	adapter "github.com/mercury-im/mercury/server/db"
	t "github.com/mercury-im/mercury/server/store/types"
)

// adp holds the MySQL connection.
type adp struct {
	db         *sqlx.DB
	dsn        string
	maxResults int
}

const (
	defaultDSN = "root:@tcp(localhost:3306)/mercury?parseTime=true"

	adapterName = "mysql"

	// Maximum number of records to return.
	defaultMaxResults = 1024
)

type configType struct {
	DSN             string `json:"dsn,omitempty"`
	MaxOpenConns    int    `json:"max_open_conns,omitempty"`
	MaxIdleConns    int    `json:"max_idle_conns,omitempty"`
	ConnMaxLifetime int    `json:"conn_max_lifetime,omitempty"`
}

// New returns an unopened MySQL adapter.
func New() adapter.Adapter {
	return &adp{maxResults: defaultMaxResults}
}

// Open connects and ensures the schema exists.
func (a *adp) Open(jsonconf json.RawMessage) error {
	if a.db != nil {
		return errors.New("adapter mysql is already connected")
	}

	var config configType
	if len(jsonconf) > 0 {
		if err := json.Unmarshal(jsonconf, &config); err != nil {
			return errors.New("adapter mysql failed to parse config: " + err.Error())
		}
	}

	a.dsn = config.DSN
	if a.dsn == "" {
		a.dsn = defaultDSN
	}

	db, err := sqlx.Open("mysql", a.dsn)
	if err != nil {
		return err
	}
	// sqlx.Open does not touch the network. Force a connection now.
	if err = db.Ping(); err != nil {
		db.Close()
		return err
	}
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(config.ConnMaxLifetime) * time.Second)
	}

	a.db = db
	if err = a.createSchema(); err != nil {
		a.db.Close()
		a.db = nil
		return err
	}
	return nil
}

// Close closes the underlying database connection.
func (a *adp) Close() error {
	var err error
	if a.db != nil {
		err = a.db.Close()
		a.db = nil
	}
	return err
}

// IsOpen returns true if the connection has been established. It does
// not check if the connection is actually live.
func (a *adp) IsOpen() bool {
	return a.db != nil
}

// GetName returns the name of the adapter.
func (a *adp) GetName() string {
	return adapterName
}

// SetMaxResults configures how many results can be returned in a single
// call.
func (a *adp) SetMaxResults(val int) error {
	if val <= 0 {
		return errors.New("adapter mysql invalid max results value")
	}
	a.maxResults = val
	return nil
}

// Stats returns the DB connection pool stats.
func (a *adp) Stats() any {
	if a.db == nil {
		return nil
	}
	return a.db.Stats()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users(
		id        BIGINT UNSIGNED NOT NULL,
		createdat DATETIME(3) NOT NULL,
		deletedat DATETIME(3),
		username  VARCHAR(64) NOT NULL,
		dispname  VARCHAR(128) NOT NULL DEFAULT '',
		bio       TEXT,
		online    TINYINT NOT NULL DEFAULT 0,
		lastonline DATETIME(3),
		PRIMARY KEY(id))`,
	`CREATE TABLE IF NOT EXISTS chats(
		id        BIGINT UNSIGNED NOT NULL,
		createdat DATETIME(3) NOT NULL,
		deletedat DATETIME(3),
		kind      SMALLINT NOT NULL,
		title     VARCHAR(255) NOT NULL DEFAULT '',
		descr     TEXT,
		publicity SMALLINT NOT NULL DEFAULT 0,
		PRIMARY KEY(id))`,
	`CREATE TABLE IF NOT EXISTS participants(
		chatid    BIGINT UNSIGNED NOT NULL,
		userid    BIGINT UNSIGNED NOT NULL,
		isadmin   TINYINT NOT NULL DEFAULT 0,
		createdat DATETIME(3) NOT NULL,
		PRIMARY KEY(chatid, userid),
		INDEX participants_userid(userid))`,
	`CREATE TABLE IF NOT EXISTS messages(
		id        BIGINT UNSIGNED NOT NULL,
		createdat DATETIME(3) NOT NULL,
		deletedat DATETIME(3),
		chatid    BIGINT UNSIGNED NOT NULL,
		fromid    BIGINT UNSIGNED NOT NULL,
		kind      SMALLINT NOT NULL,
		content   TEXT,
		poll      JSON,
		actions   JSON,
		media     JSON,
		invitechat BIGINT UNSIGNED NOT NULL DEFAULT 0,
		PRIMARY KEY(id),
		INDEX messages_chatid(chatid, id))`,
	`CREATE TABLE IF NOT EXISTS statuses(
		messageid BIGINT UNSIGNED NOT NULL,
		userid    BIGINT UNSIGNED NOT NULL,
		status    SMALLINT NOT NULL,
		createdat DATETIME(3) NOT NULL,
		PRIMARY KEY(messageid, userid, status))`,
	`CREATE TABLE IF NOT EXISTS contacts(
		id        BIGINT UNSIGNED NOT NULL,
		owner     BIGINT UNSIGNED NOT NULL,
		contact   BIGINT UNSIGNED NOT NULL,
		createdat DATETIME(3) NOT NULL,
		PRIMARY KEY(id),
		UNIQUE INDEX contacts_owner_contact(owner, contact),
		INDEX contacts_contact(contact))`,
	`CREATE TABLE IF NOT EXISTS blocks(
		id        BIGINT UNSIGNED NOT NULL,
		blocker   BIGINT UNSIGNED NOT NULL,
		blocked   BIGINT UNSIGNED NOT NULL,
		createdat DATETIME(3) NOT NULL,
		PRIMARY KEY(id),
		UNIQUE INDEX blocks_blocker_blocked(blocker, blocked))`,
	`CREATE TABLE IF NOT EXISTS stars(
		id        BIGINT UNSIGNED NOT NULL,
		userid    BIGINT UNSIGNED NOT NULL,
		messageid BIGINT UNSIGNED NOT NULL,
		createdat DATETIME(3) NOT NULL,
		PRIMARY KEY(id),
		UNIQUE INDEX stars_user_message(userid, messageid),
		INDEX stars_messageid(messageid))`,
	`CREATE TABLE IF NOT EXISTS bookmarks(
		id        BIGINT UNSIGNED NOT NULL,
		userid    BIGINT UNSIGNED NOT NULL,
		messageid BIGINT UNSIGNED NOT NULL,
		createdat DATETIME(3) NOT NULL,
		PRIMARY KEY(id),
		UNIQUE INDEX bookmarks_user_message(userid, messageid),
		INDEX bookmarks_messageid(messageid))`,
	`CREATE TABLE IF NOT EXISTS typing(
		chatid    BIGINT UNSIGNED NOT NULL,
		userid    BIGINT UNSIGNED NOT NULL,
		createdat DATETIME(3) NOT NULL,
		PRIMARY KEY(chatid, userid))`,
	`CREATE TABLE IF NOT EXISTS chatdeletions(
		userid    BIGINT UNSIGNED NOT NULL,
		chatid    BIGINT UNSIGNED NOT NULL,
		watermark BIGINT UNSIGNED NOT NULL,
		createdat DATETIME(3) NOT NULL,
		PRIMARY KEY(userid, chatid))`,
}

func (a *adp) createSchema() error {
	for _, stmt := range schema {
		if _, err := a.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// isDupe checks for the MySQL duplicate-entry error.
func isDupe(err error) bool {
	var myerr *ms.MySQLError
	return errors.As(err, &myerr) && myerr.Number == 1062
}

// inTx runs fn inside a transaction.
func (a *adp) inTx(fn func(tx *sqlx.Tx) error) error {
	tx, err := a.db.Beginx()
	if err != nil {
		return err
	}
	if err = fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// bounds appends QueryOpt conditions to a WHERE clause on the given
// ordinal column.
func (a *adp) bounds(cond string, args []any, col string, opts *t.QueryOpt) (string, []any, int) {
	limit := a.maxResults
	if opts != nil {
		if !opts.Since.IsZero() {
			cond += " AND " + col + ">?"
			args = append(args, uint64(opts.Since))
		}
		if !opts.Before.IsZero() {
			cond += " AND " + col + "<?"
			args = append(args, uint64(opts.Before))
		}
		if opts.Limit > 0 && opts.Limit < limit {
			limit = opts.Limit
		}
	}
	return cond, args, limit
}

// Users

type userRow struct {
	Id         uint64         `db:"id"`
	CreatedAt  time.Time      `db:"createdat"`
	DeletedAt  sql.NullTime   `db:"deletedat"`
	Username   string         `db:"username"`
	DispName   string         `db:"dispname"`
	Bio        sql.NullString `db:"bio"`
	Online     bool           `db:"online"`
	LastOnline sql.NullTime   `db:"lastonline"`
}

func (r *userRow) user() *t.User {
	u := &t.User{
		ObjHeader:   t.ObjHeader{Id: t.Uid(r.Id), CreatedAt: r.CreatedAt},
		Username:    r.Username,
		DisplayName: r.DispName,
		Bio:         r.Bio.String,
		Online:      r.Online,
	}
	if r.DeletedAt.Valid {
		at := r.DeletedAt.Time
		u.DeletedAt = &at
	}
	if r.LastOnline.Valid {
		u.LastOnline = r.LastOnline.Time
	}
	return u
}

func (a *adp) UserCreate(user *t.User) error {
	_, err := a.db.Exec(
		"INSERT INTO users(id,createdat,username,dispname,bio,online) VALUES(?,?,?,?,?,?)",
		uint64(user.Id), user.CreatedAt, user.Username, user.DisplayName, user.Bio, user.Online)
	if isDupe(err) {
		return t.ErrDuplicate
	}
	return err
}

func (a *adp) UserGet(uid t.Uid) (*t.User, error) {
	var row userRow
	err := a.db.Get(&row,
		"SELECT * FROM users WHERE id=? AND deletedat IS NULL", uint64(uid))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.user(), nil
}

func (a *adp) UserGetAll(ids ...t.Uid) ([]t.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	raw := make([]uint64, len(ids))
	for i, uid := range ids {
		raw[i] = uint64(uid)
	}
	query, args, err := sqlx.In(
		"SELECT * FROM users WHERE id IN (?) AND deletedat IS NULL ORDER BY id", raw)
	if err != nil {
		return nil, err
	}
	var rows []userRow
	if err = a.db.Select(&rows, query, args...); err != nil {
		return nil, err
	}
	users := make([]t.User, len(rows))
	for i := range rows {
		users[i] = *rows[i].user()
	}
	return users, nil
}

// userColumns maps exported field names accepted by UserUpdate to their
// columns.
var userColumns = map[string]string{
	"Username":    "username",
	"DisplayName": "dispname",
	"Bio":         "bio",
	"Online":      "online",
	"LastOnline":  "lastonline",
}

func (a *adp) UserUpdate(uid t.Uid, update map[string]any) error {
	cols, args := updateClause(userColumns, update)
	if len(cols) == 0 {
		return nil
	}
	args = append(args, uint64(uid))
	res, err := a.db.Exec(
		"UPDATE users SET "+strings.Join(cols, ",")+" WHERE id=? AND deletedat IS NULL", args...)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (a *adp) UserDelete(uid t.Uid) error {
	res, err := a.db.Exec(
		"UPDATE users SET deletedat=? WHERE id=? AND deletedat IS NULL",
		t.TimeNow(), uint64(uid))
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func updateClause(columns map[string]string, update map[string]any) ([]string, []any) {
	// Deterministic column order.
	fields := make([]string, 0, len(update))
	for f := range update {
		if _, ok := columns[f]; ok {
			fields = append(fields, f)
		}
	}
	sort.Strings(fields)

	var cols []string
	var args []any
	for _, f := range fields {
		cols = append(cols, columns[f]+"=?")
		args = append(args, update[f])
	}
	return cols, args
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return t.ErrNotFound
	}
	return nil
}

// Chats

type chatRow struct {
	Id        uint64         `db:"id"`
	CreatedAt time.Time      `db:"createdat"`
	DeletedAt sql.NullTime   `db:"deletedat"`
	Kind      int            `db:"kind"`
	Title     string         `db:"title"`
	Descr     sql.NullString `db:"descr"`
	Publicity int            `db:"publicity"`
}

func (r *chatRow) chat() *t.Chat {
	c := &t.Chat{
		ObjHeader:   t.ObjHeader{Id: t.Uid(r.Id), CreatedAt: r.CreatedAt},
		Kind:        t.ChatKind(r.Kind),
		Title:       r.Title,
		Description: r.Descr.String,
		Publicity:   t.Publicity(r.Publicity),
	}
	if r.DeletedAt.Valid {
		at := r.DeletedAt.Time
		c.DeletedAt = &at
	}
	return c
}

func (a *adp) ChatCreate(chat *t.Chat, parts []*t.Participant) error {
	return a.inTx(func(tx *sqlx.Tx) error {
		if _, err := tx.Exec(
			"INSERT INTO chats(id,createdat,kind,title,descr,publicity) VALUES(?,?,?,?,?,?)",
			uint64(chat.Id), chat.CreatedAt, chat.Kind, chat.Title, chat.Description,
			chat.Publicity); err != nil {
			if isDupe(err) {
				return t.ErrDuplicate
			}
			return err
		}
		for _, p := range parts {
			if _, err := tx.Exec(
				"INSERT INTO participants(chatid,userid,isadmin,createdat) VALUES(?,?,?,?)",
				uint64(p.Chat), uint64(p.User), p.IsAdmin, p.CreatedAt); err != nil {
				return err
			}
		}
		return nil
	})
}

func (a *adp) ChatGet(cid t.Uid) (*t.Chat, error) {
	var row chatRow
	err := a.db.Get(&row,
		"SELECT * FROM chats WHERE id=? AND deletedat IS NULL", uint64(cid))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.chat(), nil
}

var chatColumns = map[string]string{
	"Title":       "title",
	"Description": "descr",
	"Publicity":   "publicity",
}

func (a *adp) ChatUpdate(cid t.Uid, update map[string]any) error {
	cols, args := updateClause(chatColumns, update)
	if len(cols) == 0 {
		return nil
	}
	args = append(args, uint64(cid))
	res, err := a.db.Exec(
		"UPDATE chats SET "+strings.Join(cols, ",")+" WHERE id=? AND deletedat IS NULL", args...)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (a *adp) ChatDelete(cid t.Uid) error {
	return a.inTx(func(tx *sqlx.Tx) error {
		res, err := tx.Exec(
			"UPDATE chats SET deletedat=? WHERE id=? AND deletedat IS NULL",
			t.TimeNow(), uint64(cid))
		if err != nil {
			return err
		}
		if err = requireAffected(res); err != nil {
			return err
		}

		// Message dependents go first, then the messages themselves.
		for _, stmt := range []string{
			"DELETE FROM statuses WHERE messageid IN (SELECT id FROM messages WHERE chatid=?)",
			"DELETE FROM stars WHERE messageid IN (SELECT id FROM messages WHERE chatid=?)",
			"DELETE FROM bookmarks WHERE messageid IN (SELECT id FROM messages WHERE chatid=?)",
			"DELETE FROM messages WHERE chatid=?",
			"DELETE FROM participants WHERE chatid=?",
			"DELETE FROM typing WHERE chatid=?",
			"DELETE FROM chatdeletions WHERE chatid=?",
		} {
			if _, err = tx.Exec(stmt, uint64(cid)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (a *adp) PrivateChatBetween(u1, u2 t.Uid) (*t.Chat, error) {
	var row chatRow
	err := a.db.Get(&row,
		`SELECT c.* FROM chats AS c
			JOIN participants AS p1 ON p1.chatid=c.id AND p1.userid=?
			JOIN participants AS p2 ON p2.chatid=c.id AND p2.userid=?
			WHERE c.kind=? AND c.deletedat IS NULL LIMIT 1`,
		uint64(u1), uint64(u2), t.ChatPrivate)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.chat(), nil
}

func (a *adp) ChatsForUser(uid t.Uid, opts *t.QueryOpt) ([]t.Chat, error) {
	cond, args, limit := a.bounds(
		"p.userid=? AND c.deletedat IS NULL", []any{uint64(uid)}, "c.id", opts)
	var rows []chatRow
	err := a.db.Select(&rows,
		"SELECT c.* FROM chats AS c JOIN participants AS p ON p.chatid=c.id WHERE "+
			cond+" ORDER BY c.id LIMIT ?", append(args, limit)...)
	if err != nil {
		return nil, err
	}
	chats := make([]t.Chat, len(rows))
	for i := range rows {
		chats[i] = *rows[i].chat()
	}
	return chats, nil
}

// Participants

func (a *adp) ParticipantAdd(p *t.Participant) error {
	_, err := a.db.Exec(
		"INSERT INTO participants(chatid,userid,isadmin,createdat) VALUES(?,?,?,?)",
		uint64(p.Chat), uint64(p.User), p.IsAdmin, p.CreatedAt)
	if isDupe(err) {
		return t.ErrDuplicate
	}
	return err
}

func (a *adp) ParticipantRemove(cid, uid t.Uid) error {
	res, err := a.db.Exec(
		"DELETE FROM participants WHERE chatid=? AND userid=?", uint64(cid), uint64(uid))
	if err != nil {
		return err
	}
	return requireAffected(res)
}

type participantRow struct {
	ChatId    uint64    `db:"chatid"`
	UserId    uint64    `db:"userid"`
	IsAdmin   bool      `db:"isadmin"`
	CreatedAt time.Time `db:"createdat"`
}

func (r *participantRow) participant() t.Participant {
	return t.Participant{
		Chat: t.Uid(r.ChatId), User: t.Uid(r.UserId),
		IsAdmin: r.IsAdmin, CreatedAt: r.CreatedAt,
	}
}

func (a *adp) ParticipantGet(cid, uid t.Uid) (*t.Participant, error) {
	var row participantRow
	err := a.db.Get(&row,
		"SELECT * FROM participants WHERE chatid=? AND userid=?", uint64(cid), uint64(uid))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p := row.participant()
	return &p, nil
}

func (a *adp) ParticipantsForChat(cid t.Uid) ([]t.Participant, error) {
	var rows []participantRow
	err := a.db.Select(&rows,
		"SELECT * FROM participants WHERE chatid=? ORDER BY userid", uint64(cid))
	if err != nil {
		return nil, err
	}
	parts := make([]t.Participant, len(rows))
	for i := range rows {
		parts[i] = rows[i].participant()
	}
	return parts, nil
}

func (a *adp) ParticipantUpdate(cid, uid t.Uid, isAdmin bool) error {
	_, err := a.db.Exec(
		"UPDATE participants SET isadmin=? WHERE chatid=? AND userid=?",
		isAdmin, uint64(cid), uint64(uid))
	return err
}

// Messages

type messageRow struct {
	Id         uint64          `db:"id"`
	CreatedAt  time.Time       `db:"createdat"`
	DeletedAt  sql.NullTime    `db:"deletedat"`
	ChatId     uint64          `db:"chatid"`
	FromId     uint64          `db:"fromid"`
	Kind       int             `db:"kind"`
	Content    sql.NullString  `db:"content"`
	Poll       json.RawMessage `db:"poll"`
	Actions    json.RawMessage `db:"actions"`
	Media      json.RawMessage `db:"media"`
	InviteChat uint64          `db:"invitechat"`
}

func (r *messageRow) message() (*t.Message, error) {
	msg := &t.Message{
		ObjHeader:  t.ObjHeader{Id: t.Uid(r.Id), CreatedAt: r.CreatedAt},
		Chat:       t.Uid(r.ChatId),
		From:       t.Uid(r.FromId),
		Kind:       t.MessageKind(r.Kind),
		Text:       r.Content.String,
		InviteChat: t.Uid(r.InviteChat),
	}
	if r.DeletedAt.Valid {
		at := r.DeletedAt.Time
		msg.DeletedAt = &at
	}
	if len(r.Poll) > 0 {
		if err := json.Unmarshal(r.Poll, &msg.Poll); err != nil {
			return nil, err
		}
	}
	if len(r.Actions) > 0 {
		if err := json.Unmarshal(r.Actions, &msg.Actions); err != nil {
			return nil, err
		}
	}
	if len(r.Media) > 0 {
		if err := json.Unmarshal(r.Media, &msg.Media); err != nil {
			return nil, err
		}
	}
	return msg, nil
}

// jsonField marshals an optional payload, keeping SQL NULL for nil.
func jsonField(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func (a *adp) MessageSave(msg *t.Message) error {
	var poll, actions, media any
	var err error
	if msg.Poll != nil {
		if poll, err = jsonField(msg.Poll); err != nil {
			return err
		}
	}
	if msg.Actions != nil {
		if actions, err = json.Marshal(msg.Actions); err != nil {
			return err
		}
	}
	if msg.Media != nil {
		if media, err = jsonField(msg.Media); err != nil {
			return err
		}
	}
	_, err = a.db.Exec(
		`INSERT INTO messages(id,createdat,chatid,fromid,kind,content,poll,actions,media,invitechat)
			VALUES(?,?,?,?,?,?,?,?,?,?)`,
		uint64(msg.Id), msg.CreatedAt, uint64(msg.Chat), uint64(msg.From), msg.Kind,
		msg.Text, poll, actions, media, uint64(msg.InviteChat))
	if isDupe(err) {
		return t.ErrDuplicate
	}
	return err
}

func (a *adp) MessageGet(mid t.Uid) (*t.Message, error) {
	var row messageRow
	err := a.db.Get(&row,
		"SELECT * FROM messages WHERE id=? AND deletedat IS NULL", uint64(mid))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.message()
}

func (a *adp) MessageUpdate(msg *t.Message) error {
	var poll any
	var err error
	if msg.Poll != nil {
		if poll, err = jsonField(msg.Poll); err != nil {
			return err
		}
	}
	res, err := a.db.Exec(
		"UPDATE messages SET content=?, poll=? WHERE id=? AND deletedat IS NULL",
		msg.Text, poll, uint64(msg.Id))
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (a *adp) MessageDelete(mid t.Uid) error {
	return a.inTx(func(tx *sqlx.Tx) error {
		res, err := tx.Exec(
			"UPDATE messages SET deletedat=? WHERE id=? AND deletedat IS NULL",
			t.TimeNow(), uint64(mid))
		if err != nil {
			return err
		}
		if err = requireAffected(res); err != nil {
			return err
		}
		for _, table := range []string{"statuses", "stars", "bookmarks"} {
			if _, err = tx.Exec(
				"DELETE FROM "+table+" WHERE messageid=?", uint64(mid)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (a *adp) MessagesForChat(cid t.Uid, opts *t.QueryOpt) ([]t.Message, error) {
	cond, args, limit := a.bounds(
		"chatid=? AND deletedat IS NULL", []any{uint64(cid)}, "id", opts)
	var rows []messageRow
	err := a.db.Select(&rows,
		"SELECT * FROM messages WHERE "+cond+" ORDER BY id LIMIT ?",
		append(args, limit)...)
	if err != nil {
		return nil, err
	}
	msgs := make([]t.Message, 0, len(rows))
	for i := range rows {
		msg, err := rows[i].message()
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *msg)
	}
	return msgs, nil
}

// Message statuses

func (a *adp) StatusCreate(st *t.MessageStatus) error {
	_, err := a.db.Exec(
		"INSERT INTO statuses(messageid,userid,status,createdat) VALUES(?,?,?,?)",
		uint64(st.Message), uint64(st.User), st.Status, st.CreatedAt)
	if isDupe(err) {
		return t.ErrDuplicate
	}
	return err
}

type statusRow struct {
	MessageId uint64    `db:"messageid"`
	UserId    uint64    `db:"userid"`
	Status    int       `db:"status"`
	CreatedAt time.Time `db:"createdat"`
}

func (a *adp) StatusesForMessage(mid t.Uid) ([]t.MessageStatus, error) {
	var rows []statusRow
	err := a.db.Select(&rows,
		"SELECT * FROM statuses WHERE messageid=? ORDER BY userid, status", uint64(mid))
	if err != nil {
		return nil, err
	}
	sts := make([]t.MessageStatus, len(rows))
	for i, r := range rows {
		sts[i] = t.MessageStatus{
			Message: t.Uid(r.MessageId), User: t.Uid(r.UserId),
			Status: t.StatusKind(r.Status), CreatedAt: r.CreatedAt,
		}
	}
	return sts, nil
}

// Contacts

func (a *adp) ContactCreate(c *t.Contact) error {
	_, err := a.db.Exec(
		"INSERT INTO contacts(id,owner,contact,createdat) VALUES(?,?,?,?)",
		uint64(c.Id), uint64(c.Owner), uint64(c.Contact), c.CreatedAt)
	if isDupe(err) {
		return t.ErrDuplicate
	}
	return err
}

func (a *adp) ContactDelete(owner, contact t.Uid) error {
	res, err := a.db.Exec(
		"DELETE FROM contacts WHERE owner=? AND contact=?", uint64(owner), uint64(contact))
	if err != nil {
		return err
	}
	return requireAffected(res)
}

type contactRow struct {
	Id        uint64    `db:"id"`
	Owner     uint64    `db:"owner"`
	Contact   uint64    `db:"contact"`
	CreatedAt time.Time `db:"createdat"`
}

func (a *adp) ContactsForUser(owner t.Uid, opts *t.QueryOpt) ([]t.Contact, error) {
	cond, args, limit := a.bounds("owner=?", []any{uint64(owner)}, "id", opts)
	var rows []contactRow
	err := a.db.Select(&rows,
		"SELECT * FROM contacts WHERE "+cond+" ORDER BY id LIMIT ?", append(args, limit)...)
	if err != nil {
		return nil, err
	}
	contacts := make([]t.Contact, len(rows))
	for i, r := range rows {
		contacts[i] = t.Contact{
			Id: t.Uid(r.Id), Owner: t.Uid(r.Owner),
			Contact: t.Uid(r.Contact), CreatedAt: r.CreatedAt,
		}
	}
	return contacts, nil
}

func (a *adp) ContactHolders(contact t.Uid) ([]t.Uid, error) {
	var raw []uint64
	err := a.db.Select(&raw,
		"SELECT owner FROM contacts WHERE contact=? ORDER BY owner", uint64(contact))
	if err != nil {
		return nil, err
	}
	holders := make([]t.Uid, len(raw))
	for i, v := range raw {
		holders[i] = t.Uid(v)
	}
	return holders, nil
}

// Blocks

func (a *adp) BlockCreate(b *t.BlockEntry) error {
	_, err := a.db.Exec(
		"INSERT INTO blocks(id,blocker,blocked,createdat) VALUES(?,?,?,?)",
		uint64(b.Id), uint64(b.Blocker), uint64(b.Blocked), b.CreatedAt)
	if isDupe(err) {
		return t.ErrDuplicate
	}
	return err
}

func (a *adp) BlockDelete(blocker, blocked t.Uid) error {
	res, err := a.db.Exec(
		"DELETE FROM blocks WHERE blocker=? AND blocked=?", uint64(blocker), uint64(blocked))
	if err != nil {
		return err
	}
	return requireAffected(res)
}

type blockRow struct {
	Id        uint64    `db:"id"`
	Blocker   uint64    `db:"blocker"`
	Blocked   uint64    `db:"blocked"`
	CreatedAt time.Time `db:"createdat"`
}

func (r *blockRow) entry() t.BlockEntry {
	return t.BlockEntry{
		Id: t.Uid(r.Id), Blocker: t.Uid(r.Blocker),
		Blocked: t.Uid(r.Blocked), CreatedAt: r.CreatedAt,
	}
}

func (a *adp) BlockGet(blocker, blocked t.Uid) (*t.BlockEntry, error) {
	var row blockRow
	err := a.db.Get(&row,
		"SELECT * FROM blocks WHERE blocker=? AND blocked=?", uint64(blocker), uint64(blocked))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	entry := row.entry()
	return &entry, nil
}

func (a *adp) BlocksForUser(blocker t.Uid, opts *t.QueryOpt) ([]t.BlockEntry, error) {
	cond, args, limit := a.bounds("blocker=?", []any{uint64(blocker)}, "id", opts)
	var rows []blockRow
	err := a.db.Select(&rows,
		"SELECT * FROM blocks WHERE "+cond+" ORDER BY id LIMIT ?", append(args, limit)...)
	if err != nil {
		return nil, err
	}
	blocks := make([]t.BlockEntry, len(rows))
	for i := range rows {
		blocks[i] = rows[i].entry()
	}
	return blocks, nil
}

func (a *adp) Blockers(blocked t.Uid) ([]t.Uid, error) {
	var ids []uint64
	err := a.db.Select(&ids,
		"SELECT blocker FROM blocks WHERE blocked=? ORDER BY id", uint64(blocked))
	if err != nil {
		return nil, err
	}
	blockers := make([]t.Uid, len(ids))
	for i, id := range ids {
		blockers[i] = t.Uid(id)
	}
	return blockers, nil
}

// Stars and bookmarks share a row shape.

type markRow struct {
	Id        uint64    `db:"id"`
	UserId    uint64    `db:"userid"`
	MessageId uint64    `db:"messageid"`
	CreatedAt time.Time `db:"createdat"`
}

func (a *adp) StarCreate(s *t.Star) error {
	_, err := a.db.Exec(
		"INSERT INTO stars(id,userid,messageid,createdat) VALUES(?,?,?,?)",
		uint64(s.Id), uint64(s.User), uint64(s.Message), s.CreatedAt)
	if isDupe(err) {
		return t.ErrDuplicate
	}
	return err
}

func (a *adp) StarDelete(user, message t.Uid) error {
	res, err := a.db.Exec(
		"DELETE FROM stars WHERE userid=? AND messageid=?", uint64(user), uint64(message))
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (a *adp) StarGet(user, message t.Uid) (*t.Star, error) {
	var row markRow
	err := a.db.Get(&row,
		"SELECT * FROM stars WHERE userid=? AND messageid=?", uint64(user), uint64(message))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t.Star{
		Id: t.Uid(row.Id), User: t.Uid(row.UserId),
		Message: t.Uid(row.MessageId), CreatedAt: row.CreatedAt,
	}, nil
}

func (a *adp) StarsForUser(user t.Uid, opts *t.QueryOpt) ([]t.Star, error) {
	cond, args, limit := a.bounds("userid=?", []any{uint64(user)}, "id", opts)
	var rows []markRow
	err := a.db.Select(&rows,
		"SELECT * FROM stars WHERE "+cond+" ORDER BY id LIMIT ?", append(args, limit)...)
	if err != nil {
		return nil, err
	}
	stars := make([]t.Star, len(rows))
	for i, r := range rows {
		stars[i] = t.Star{
			Id: t.Uid(r.Id), User: t.Uid(r.UserId),
			Message: t.Uid(r.MessageId), CreatedAt: r.CreatedAt,
		}
	}
	return stars, nil
}

func (a *adp) BookmarkCreate(b *t.Bookmark) error {
	_, err := a.db.Exec(
		"INSERT INTO bookmarks(id,userid,messageid,createdat) VALUES(?,?,?,?)",
		uint64(b.Id), uint64(b.User), uint64(b.Message), b.CreatedAt)
	if isDupe(err) {
		return t.ErrDuplicate
	}
	return err
}

func (a *adp) BookmarkDelete(user, message t.Uid) error {
	res, err := a.db.Exec(
		"DELETE FROM bookmarks WHERE userid=? AND messageid=?", uint64(user), uint64(message))
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (a *adp) BookmarkGet(user, message t.Uid) (*t.Bookmark, error) {
	var row markRow
	err := a.db.Get(&row,
		"SELECT * FROM bookmarks WHERE userid=? AND messageid=?", uint64(user), uint64(message))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t.Bookmark{
		Id: t.Uid(row.Id), User: t.Uid(row.UserId),
		Message: t.Uid(row.MessageId), CreatedAt: row.CreatedAt,
	}, nil
}

func (a *adp) BookmarksForUser(user t.Uid, opts *t.QueryOpt) ([]t.Bookmark, error) {
	cond, args, limit := a.bounds("userid=?", []any{uint64(user)}, "id", opts)
	var rows []markRow
	err := a.db.Select(&rows,
		"SELECT * FROM bookmarks WHERE "+cond+" ORDER BY id LIMIT ?", append(args, limit)...)
	if err != nil {
		return nil, err
	}
	bms := make([]t.Bookmark, len(rows))
	for i, r := range rows {
		bms[i] = t.Bookmark{
			Id: t.Uid(r.Id), User: t.Uid(r.UserId),
			Message: t.Uid(r.MessageId), CreatedAt: r.CreatedAt,
		}
	}
	return bms, nil
}

// Typing

func (a *adp) TypingCreate(rec *t.TypingRecord) error {
	_, err := a.db.Exec(
		"INSERT INTO typing(chatid,userid,createdat) VALUES(?,?,?)",
		uint64(rec.Chat), uint64(rec.User), rec.CreatedAt)
	if isDupe(err) {
		return t.ErrDuplicate
	}
	return err
}

func (a *adp) TypingDelete(cid, uid t.Uid) error {
	res, err := a.db.Exec(
		"DELETE FROM typing WHERE chatid=? AND userid=?", uint64(cid), uint64(uid))
	if err != nil {
		return err
	}
	return requireAffected(res)
}

type typingRow struct {
	ChatId    uint64    `db:"chatid"`
	UserId    uint64    `db:"userid"`
	CreatedAt time.Time `db:"createdat"`
}

func (a *adp) TypingForChat(cid t.Uid) ([]t.TypingRecord, error) {
	var rows []typingRow
	err := a.db.Select(&rows,
		"SELECT * FROM typing WHERE chatid=? ORDER BY userid", uint64(cid))
	if err != nil {
		return nil, err
	}
	recs := make([]t.TypingRecord, len(rows))
	for i, r := range rows {
		recs[i] = t.TypingRecord{
			Chat: t.Uid(r.ChatId), User: t.Uid(r.UserId), CreatedAt: r.CreatedAt,
		}
	}
	return recs, nil
}

// Chat deletion watermarks

type deletionRow struct {
	UserId    uint64    `db:"userid"`
	ChatId    uint64    `db:"chatid"`
	Watermark uint64    `db:"watermark"`
	CreatedAt time.Time `db:"createdat"`
}

func (a *adp) ChatDeletionUpsert(d *t.ChatDeletion) error {
	_, err := a.db.Exec(
		`INSERT INTO chatdeletions(userid,chatid,watermark,createdat) VALUES(?,?,?,?)
			ON DUPLICATE KEY UPDATE watermark=VALUES(watermark), createdat=VALUES(createdat)`,
		uint64(d.User), uint64(d.Chat), uint64(d.Watermark), d.CreatedAt)
	return err
}

func (a *adp) ChatDeletionGet(uid, cid t.Uid) (*t.ChatDeletion, error) {
	var row deletionRow
	err := a.db.Get(&row,
		"SELECT * FROM chatdeletions WHERE userid=? AND chatid=?", uint64(uid), uint64(cid))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t.ChatDeletion{
		User: t.Uid(row.UserId), Chat: t.Uid(row.ChatId),
		Watermark: t.Uid(row.Watermark), CreatedAt: row.CreatedAt,
	}, nil
}
