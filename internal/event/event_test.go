package event

import (
	"testing"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
)

func TestNew_AssignsSortableIDs(t *testing.T) {
	a := New(MessageCreated, "discord")
	b := New(MessageCreated, "discord")

	assert.NotEqual(t, a.ID, b.ID)
	assert.Len(t, a.ID, 26)
	assert.False(t, a.Timestamp.IsZero())
}

func TestEvent_Content(t *testing.T) {
	ev := New(MessageDeleted, "discord")
	assert.Equal(t, "", ev.Content())

	ev.Text = mo.Some("hello")
	assert.Equal(t, "hello", ev.Content())
}

func TestUser_Can(t *testing.T) {
	mod := User{Permissions: PermKickMembers | PermManageMessages}
	assert.True(t, mod.Can(PermKickMembers))
	assert.False(t, mod.Can(PermBanMembers))
	assert.False(t, mod.Can(PermKickMembers|PermBanMembers))

	admin := User{Permissions: PermAdministrator}
	assert.True(t, admin.Can(PermBanMembers|PermModerateMembers))
}

func TestUser_MentionAndDisplay(t *testing.T) {
	u := User{ID: "42", Name: "ana"}
	assert.Equal(t, "<@42>", u.Mention())
	assert.Equal(t, "ana", u.Display())

	u.DisplayName = "Ana B"
	assert.Equal(t, "Ana B", u.Display())
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "reaction_added", ReactionAdded.String())
	assert.Equal(t, "unknown", Kind(99).String())
}
