// Package types contains the entities stored in the database and shared by
// the store, the domain layer and the broker.
package types

import (
	"strconv"
	"time"
)

// Uid is the permanent identity of a stored entity. Uids are assigned in
// strictly increasing order at creation time and are never reused, which
// makes them double as pagination ordinals and wire-level cursors. A Uid
// remains a valid pagination boundary after the entity it denotes is
// deleted.
type Uid uint64

// ZeroUid is a null Uid.
const ZeroUid Uid = 0

// IsZero checks if Uid is uninitialized.
func (uid Uid) IsZero() bool {
	return uid == 0
}

// Compare returns -1 if uid < u2, 1 if uid > u2, 0 otherwise.
func (uid Uid) Compare(u2 Uid) int {
	if uid < u2 {
		return -1
	} else if uid > u2 {
		return 1
	}
	return 0
}

// String returns the Uid in the form used as a wire cursor.
func (uid Uid) String() string {
	if uid.IsZero() {
		return ""
	}
	return strconv.FormatUint(uint64(uid), 10)
}

// ParseUid converts a wire cursor back into a Uid. Returns ZeroUid if the
// string is not a valid cursor.
func ParseUid(s string) Uid {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return ZeroUid
	}
	return Uid(v)
}

// StoreError satisfies Error interface but allows constant values for
// direct comparison.
type StoreError string

func (s StoreError) Error() string {
	return string(s)
}

const (
	// ErrInternal means DB or other internal failure.
	ErrInternal = StoreError("internal")
	// ErrMalformed means the input is malformed.
	ErrMalformed = StoreError("malformed")
	// ErrFailed means the operation failed for any other reason.
	ErrFailed = StoreError("failed")
	// ErrDuplicate means the object already exists.
	ErrDuplicate = StoreError("duplicate value")
	// ErrNotFound means the referenced object does not exist or is not
	// visible to the caller.
	ErrNotFound = StoreError("not found")
	// ErrPermissionDenied means the caller lacks the role required for
	// the operation.
	ErrPermissionDenied = StoreError("denied")
	// ErrLastAdmin means the operation would leave a non-empty group
	// chat without a single admin.
	ErrLastAdmin = StoreError("last admin")
	// ErrUnsupported means the operation is not supported for the
	// entity, e.g. updating metadata of a private chat.
	ErrUnsupported = StoreError("unsupported")
)

// TimeNow returns current wall time in UTC rounded to milliseconds.
func TimeNow() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}

// ObjHeader is the header shared by all stored objects.
type ObjHeader struct {
	// Id is the entity's ordinal.
	Id        Uid
	CreatedAt time.Time
	DeletedAt *time.Time
}

// IsDeleted returns true if the object is soft-deleted.
func (h *ObjHeader) IsDeleted() bool {
	return h.DeletedAt != nil
}

// User is a stored user account.
type User struct {
	ObjHeader
	Username    string
	DisplayName string
	Bio         string
	// Presence. LastOnline is the time of the last transition out of
	// the online state.
	Online     bool
	LastOnline time.Time
}

// ChatKind distinguishes private (two fixed members) from group chats.
type ChatKind int

const (
	// ChatPrivate is a chat between exactly two users.
	ChatPrivate ChatKind = iota
	// ChatGroup is a multi-user chat with admins and metadata.
	ChatGroup
)

// Publicity is the invitability/visibility level of a group chat.
type Publicity int

const (
	// PublicityNotInvitable: members join by admin action only.
	PublicityNotInvitable Publicity = iota
	// PublicityInvitable: members may be invited via invite messages.
	PublicityInvitable
	// PublicityPublic: the chat is readable without authentication and
	// has an anonymous topic.
	PublicityPublic
)

// Chat is a stored private or group chat.
type Chat struct {
	ObjHeader
	Kind ChatKind
	// Group chat metadata. Unused for private chats.
	Title       string
	Description string
	Publicity   Publicity
}

// IsPublic reports whether the chat carries an anonymous topic.
func (c *Chat) IsPublic() bool {
	return c.Kind == ChatGroup && c.Publicity == PublicityPublic
}

// Participant is a membership row: user belongs to chat.
type Participant struct {
	Chat      Uid
	User      Uid
	IsAdmin   bool
	CreatedAt time.Time
}

// MessageKind is the renderable kind of a message.
type MessageKind int

const (
	// MessageText is plain text.
	MessageText MessageKind = iota
	// MessagePoll is a poll with votable options.
	MessagePoll
	// MessageAction is a list of actionable choices.
	MessageAction
	// MessageMedia references an externally stored image/audio/video.
	MessageMedia
	// MessageInvite is an invitation to join an invitable group chat.
	MessageInvite
)

// PollOption is a single poll choice with its voters.
type PollOption struct {
	Text string
	// Voters holds ids of users who voted for the option.
	Voters []Uid
}

// Poll is the payload of a MessagePoll message.
type Poll struct {
	Question string
	Options  []PollOption
}

// MediaRef is an opaque reference to media stored by an external
// collaborator. The core never inspects the content.
type MediaRef struct {
	// ContentType such as "image/png".
	ContentType string
	// Location understood by the media collaborator.
	Location string
	Caption  string
}

// Message is a stored chat message of any kind.
type Message struct {
	ObjHeader
	Chat Uid
	From Uid
	Kind MessageKind
	// Text is the content of MessageText messages.
	Text string
	// Poll is set for MessagePoll messages.
	Poll *Poll
	// Actions is set for MessageAction messages.
	Actions []string
	// Media is set for MessageMedia messages.
	Media *MediaRef
	// InviteChat is set for MessageInvite messages.
	InviteChat Uid
}

// StatusKind is a chat-visible delivery state of a message.
type StatusKind int

const (
	// StatusDelivered means the message reached the user's client.
	StatusDelivered StatusKind = iota
	// StatusRead means the user has seen the message.
	StatusRead
)

func (s StatusKind) String() string {
	if s == StatusRead {
		return "read"
	}
	return "delivered"
}

// MessageStatus is a per-(message, user) delivery record. The pair plus
// the kind is unique.
type MessageStatus struct {
	Message   Uid
	User      Uid
	Status    StatusKind
	CreatedAt time.Time
}

// Contact is a saved-contact row. Id is the ordinal used when paginating
// the owner's contact list.
type Contact struct {
	Id        Uid
	Owner     Uid
	Contact   Uid
	CreatedAt time.Time
}

// BlockEntry is a block-list row. Id is the ordinal used when paginating
// the blocker's block list.
type BlockEntry struct {
	Id        Uid
	Blocker   Uid
	Blocked   Uid
	CreatedAt time.Time
}

// Star marks a message as starred by a user. Id is the ordinal used when
// paginating the user's starred messages.
type Star struct {
	Id        Uid
	User      Uid
	Message   Uid
	CreatedAt time.Time
}

// Bookmark marks a message as bookmarked by a user. Id is the ordinal
// used when paginating the user's bookmarks.
type Bookmark struct {
	Id        Uid
	User      Uid
	Message   Uid
	CreatedAt time.Time
}

// TypingRecord exists while a user is typing in a chat. The (chat, user)
// pair is unique.
type TypingRecord struct {
	Chat      Uid
	User      Uid
	CreatedAt time.Time
}

// ChatDeletion is a per-(user, chat) visibility watermark recorded when a
// user deletes a private chat. Messages with ordinals at or below the
// watermark stay hidden from that user; later messages are visible and
// still notified.
type ChatDeletion struct {
	User      Uid
	Chat      Uid
	Watermark Uid
	CreatedAt time.Time
}

// QueryOpt is a set of bounds passed to adapter range scans. All fields
// are optional; zero values mean "unbounded".
type QueryOpt struct {
	// Since is an exclusive lower ordinal bound.
	Since Uid
	// Before is an exclusive upper ordinal bound.
	Before Uid
	// Limit caps the number of returned rows.
	Limit int
}
