package features

import (
	"context"
	"testing"
	"time"

	"github.com/keepmind9/guildbot/internal/bot"
	"github.com/keepmind9/guildbot/internal/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKick(t *testing.T) {
	h := newHarness(t)

	h.send(withPerms(message("!kick <@u2> spamming links"), event.PermKickMembers))

	calls := h.gw.CallsOf("kick")
	require.Len(t, calls, 1)
	assert.Equal(t, bot.Member{GuildID: "g1", UserID: "u2"}, calls[0].Member)
	assert.Equal(t, "Kicked by alice: spamming links", calls[0].Reason)
	assert.Equal(t, []string{"✅ Member Kicked\n<@u2> has been kicked from the server."}, h.gw.Texts())
}

func TestKick_Refusals(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		perms int64
		fail  error
		want  string
	}{
		{"no permission", "!kick <@u2>", 0, nil, "❌ You need the Kick Members permission to use this command."},
		{"self", "!kick <@u1>", event.PermKickMembers, nil, "❌ You cannot kick yourself."},
		{"bad member", "!kick bob", event.PermKickMembers, nil, "❌ Member \"bob\" not found. Mention them or use their ID."},
		{"bot lacks rights", "!kick 222", event.PermAdministrator, &bot.APIError{Kind: bot.ErrPermission, Op: "kick"},
			"❌ I don't have permission to kick this member."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if tt.fail != nil {
				h.gw.SetFail("kick", tt.fail)
			}
			h.send(withPerms(message(tt.text), tt.perms))
			assert.Equal(t, []string{tt.want}, h.gw.Texts())
		})
	}
}

func TestBan_DefaultReason(t *testing.T) {
	h := newHarness(t)

	h.send(withPerms(message("!ban 222"), event.PermBanMembers))

	calls := h.gw.CallsOf("ban")
	require.Len(t, calls, 1)
	assert.Equal(t, "Banned by alice: No reason provided", calls[0].Reason)
}

func TestTimeout(t *testing.T) {
	h := newHarness(t)

	h.send(withPerms(message("!mute <@u2> 10m being rude"), event.PermModerateMembers))
	calls := h.gw.CallsOf("timeout")
	require.Len(t, calls, 1)
	assert.Equal(t, 10*time.Minute, calls[0].Duration)
	assert.Equal(t, "Timed out by alice: being rude", calls[0].Reason)

	h.gw.Reset()
	h.send(withPerms(message("!timeout <@u2> 8d"), event.PermModerateMembers))
	assert.Equal(t, []string{"❌ Maximum timeout duration is 7 days."}, h.gw.Texts())
	assert.Empty(t, h.gw.CallsOf("timeout"))

	h.gw.Reset()
	h.send(withPerms(message("!unmute <@u2>"), event.PermModerateMembers))
	assert.Len(t, h.gw.CallsOf("untimeout"), 1)
}

func TestPurge(t *testing.T) {
	h := newHarness(t)

	h.send(withPerms(message("!purge 5"), event.PermManageMessages))
	calls := h.gw.CallsOf("delete")
	require.Len(t, calls, 1)
	assert.Equal(t, 6, calls[0].Count)
	assert.Equal(t, []string{"✅ Messages Purged\nDeleted 5 message(s)."}, h.gw.Texts())

	h.gw.Reset()
	h.send(withPerms(message("!clear 500"), event.PermManageMessages))
	assert.Equal(t, []string{"❌ Please specify a number between 1 and 100."}, h.gw.Texts())
	assert.Empty(t, h.gw.CallsOf("delete"))
}

func TestPurge_SlashDeletesExactCount(t *testing.T) {
	h := newHarness(t)
	ev := withPerms(message("purge 3"), event.PermManageMessages)
	ev.Slash = true

	h.send(ev)

	calls := h.gw.CallsOf("delete")
	require.Len(t, calls, 1)
	assert.Equal(t, 3, calls[0].Count)
}

func TestWarnAndWarnings(t *testing.T) {
	h := newHarness(t)

	h.send(withPerms(message("!warn <@u2> rude language"), event.PermManageMessages))
	h.send(withPerms(message("!warn <@u2> again"), event.PermManageMessages))

	var dms int
	for _, s := range h.gw.Sent() {
		if s.UserID == "u2" {
			dms++
			assert.Equal(t, "⚠️ You have been warned", s.Message.Embed.Title)
		}
	}
	assert.Equal(t, 2, dms)

	list, err := h.deps.Warnings.List(context.Background(), "g1", "u2")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "rude language", list[0].Reason)
	assert.Equal(t, "u1", list[0].ModeratorID)

	h.gw.Reset()
	h.say("!warns <@u2>")
	e := h.gw.Sent()[0].Message.Embed
	require.NotNil(t, e)
	assert.Equal(t, "⚠️ Warnings for <@u2>", e.Title)
	assert.Equal(t, "Total: 2", e.Description)
	assert.Len(t, e.Fields, 2)

	h.gw.Reset()
	h.say("!warnings")
	assert.Equal(t, []string{"✅ <@u1> has no warnings."}, h.gw.Texts())
}

func TestWarn_DMFailureIsNotAnError(t *testing.T) {
	h := newHarness(t)
	h.gw.SetFail("direct", &bot.APIError{Kind: bot.ErrPermission, Op: "send_direct"})

	h.send(withPerms(message("!warn <@u2>"), event.PermManageMessages))

	assert.Equal(t, []string{"⚠️ Warning Issued\n<@u2> has been warned."}, h.gw.Texts())
}
