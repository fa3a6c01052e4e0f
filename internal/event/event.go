// Package event defines the platform-neutral events the dispatcher routes.
//
// An Event is built once by a platform adapter and then passed by value;
// nothing downstream mutates it.
package event

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/mo"
)

// Kind tags the Event variant.
type Kind int

const (
	MessageCreated Kind = iota + 1
	MemberJoined
	MemberLeft
	MemberUpdated
	MessageDeleted
	ReactionAdded
	ReadyToSync
)

var kindNames = map[Kind]string{
	MessageCreated: "message_created",
	MemberJoined:   "member_joined",
	MemberLeft:     "member_left",
	MemberUpdated:  "member_updated",
	MessageDeleted: "message_deleted",
	ReactionAdded:  "reaction_added",
	ReadyToSync:    "ready_to_sync",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Permission bits, matching Discord's layout. Other platforms map their
// admin notion onto PermAdministrator.
const (
	PermKickMembers     int64 = 1 << 1
	PermBanMembers      int64 = 1 << 2
	PermAdministrator   int64 = 1 << 3
	PermManageGuild     int64 = 1 << 5
	PermAddReactions    int64 = 1 << 6
	PermManageMessages  int64 = 1 << 13
	PermModerateMembers int64 = 1 << 40
)

// User identifies a member or account.
type User struct {
	ID          string
	Name        string
	DisplayName string
	Bot         bool
	AvatarURL   string
	JoinedAt    time.Time
	CreatedAt   time.Time
	Permissions int64
}

// Mention returns the platform mention for the user.
func (u User) Mention() string {
	if u.ID == "" {
		return u.Name
	}
	return "<@" + u.ID + ">"
}

// Display returns the display name, falling back to the account name.
func (u User) Display() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Name
}

// Can reports whether the user holds all of perm. Administrators hold all.
func (u User) Can(perm int64) bool {
	if u.Permissions&PermAdministrator != 0 {
		return true
	}
	return u.Permissions&perm == perm
}

// Guild identifies the server an event happened in.
type Guild struct {
	ID              string
	Name            string
	SystemChannelID string
	MemberCount     int
	OwnerID         string
}

// Attachment is a file attached to a message.
type Attachment struct {
	URL         string
	ContentType string
	Filename    string
}

// IsImage reports whether the attachment is an image.
func (a Attachment) IsImage() bool {
	return strings.HasPrefix(a.ContentType, "image/")
}

// MemberSnapshot is a member's nickname and role IDs at one point in time.
type MemberSnapshot struct {
	Nickname string
	Roles    []string
}

// Origin is what a gateway needs to reply to the event in place.
type Origin struct {
	Platform  string
	GuildID   string
	ChannelID string
	MessageID string
	// Raw holds the platform object, e.g. a slash-command interaction.
	Raw interface{}
}

// Event is a single inbound notification.
type Event struct {
	ID          string
	Kind        Kind
	Platform    string
	Author      User
	Guild       Guild
	ChannelID   string
	MessageID   string
	Text        mo.Option[string]
	Attachments []Attachment
	Emoji       string
	Nickname    string
	Roles       []string
	Slash       bool
	Timestamp   time.Time
	Origin      Origin

	// Before is the prior member state on MemberUpdated, when the platform
	// had it cached.
	Before mo.Option[MemberSnapshot]
}

// Content returns the text of the event or "".
func (e Event) Content() string {
	return e.Text.OrEmpty()
}

// InGuild reports whether the event happened inside a guild.
func (e Event) InGuild() bool {
	return e.Guild.ID != ""
}

// NewID returns a sortable unique identifier.
func NewID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// New returns an Event with ID and Timestamp filled in.
func New(kind Kind, platform string) Event {
	return Event{
		ID:        NewID(),
		Kind:      kind,
		Platform:  platform,
		Timestamp: time.Now().UTC(),
	}
}
