package features

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/keepmind9/guildbot/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemind_StoresReminder(t *testing.T) {
	h := newHarness(t)

	h.say("!remind 1h 30m check email")

	sent := h.gw.Sent()
	require.Len(t, sent, 1)
	e := sent[0].Message.Embed
	require.NotNil(t, e)
	assert.Equal(t, "✅ Reminder Set", e.Title)
	assert.Equal(t, "I'll remind you in 1h 30m 0s", e.Description)
	assert.Equal(t, "check email", e.Fields[0].Value)
	assert.Equal(t, "2026-03-14 13:30:00 UTC", e.Fields[1].Value)

	list, err := h.deps.Reminders.ListByOwner(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	rem := list[0]
	assert.Equal(t, "check email", rem.Body)
	assert.Equal(t, store.Destination{Kind: store.DestinationDM, ID: "u1"}, rem.Destination)
	assert.Equal(t, "c1", rem.FallbackChannelID)
	assert.True(t, rem.DueAt.Equal(testNow.Add(90*time.Minute)))
}

func TestRemind_Errors(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"missing message", "!remind 1h", "❌ Missing required argument. Use `!help remind` for usage."},
		{"bad duration", "!remind soon do it", "❌ Invalid duration format. Use: 1h, 30m, 5s, etc.\nExample: `!remind 1h 30m check email`"},
		{"too long", "!remind 31d renew domain", "❌ Maximum reminder duration is 30 days."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.say(tt.text)
			assert.Equal(t, []string{tt.want}, h.gw.Texts())

			list, err := h.deps.Reminders.ListByOwner(context.Background(), "u1")
			require.NoError(t, err)
			assert.Empty(t, list)
		})
	}
}

func TestReminders_List(t *testing.T) {
	h := newHarness(t)

	h.say("!reminders")
	assert.Equal(t, []string{"✅ You have no active reminders."}, h.gw.Texts())

	for i := 0; i < 12; i++ {
		h.say("!remind 2h stretch")
	}
	h.gw.Reset()
	h.say("!myreminders")

	e := h.gw.Sent()[0].Message.Embed
	require.NotNil(t, e)
	assert.Equal(t, "⏰ Your Active Reminders", e.Title)
	assert.Equal(t, "You have 12 active reminder(s)", e.Description)
	assert.Len(t, e.Fields, 10)
	assert.True(t, strings.HasSuffix(e.Fields[0].Value, "(2 hours from now)"), e.Fields[0].Value)
}
