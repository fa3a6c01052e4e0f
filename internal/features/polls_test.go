package features

import (
	"context"
	"testing"

	"github.com/keepmind9/guildbot/internal/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reactionEvent(messageID, userID, emoji string) event.Event {
	ev := event.New(event.ReactionAdded, "test")
	ev.Author = event.User{ID: userID}
	ev.Guild = event.Guild{ID: "g1"}
	ev.ChannelID = "c1"
	ev.MessageID = messageID
	ev.Emoji = emoji
	return ev
}

func TestPoll_PostsAndCountsVotesOncePerUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.say(`!poll "Best pizza?" margherita pepperoni hawaiian`)

	sent := h.gw.Sent()
	require.Len(t, sent, 1)
	e := sent[0].Message.Embed
	require.NotNil(t, e)
	assert.Equal(t, "📊 Poll: Best pizza?", e.Title)
	assert.Equal(t, "Poll created by alice", e.Footer)
	require.Len(t, e.Fields, 3)
	assert.Equal(t, "1️⃣ margherita", e.Fields[0].Name)

	reacts := h.gw.CallsOf("react")
	require.Len(t, reacts, 3)
	pollID := reacts[0].Ref.MessageID
	assert.Equal(t, "3️⃣", reacts[2].Emoji)

	h.send(reactionEvent(pollID, "u2", "2️⃣"))
	h.send(reactionEvent(pollID, "u2", "2️⃣"))
	h.send(reactionEvent(pollID, "u3", "2️⃣"))
	h.send(reactionEvent(pollID, "u3", "🍕"))

	tally, err := h.deps.Polls.Tally(ctx, "g1", pollID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, tally[1])
	assert.Zero(t, tally[0])

	h.gw.Reset()
	h.say("!results " + pollID)
	e = h.gw.Sent()[0].Message.Embed
	require.NotNil(t, e)
	assert.Equal(t, "Total votes: 2", e.Description)
	assert.Equal(t, "2️⃣ pepperoni (2)", e.Fields[1].Name)
	assert.Equal(t, "No votes yet", e.Fields[0].Value)
}

func TestPoll_YesNoAndLimits(t *testing.T) {
	h := newHarness(t)

	h.say(`!poll "Ship it?"`)
	reacts := h.gw.CallsOf("react")
	require.Len(t, reacts, 2)
	assert.Equal(t, "✅", reacts[0].Emoji)
	assert.Equal(t, "❌", reacts[1].Emoji)

	h.gw.Reset()
	h.say(`!poll "Pick" one`)
	assert.Equal(t, []string{"❌ Please provide at least 2 options!"}, h.gw.Texts())

	h.gw.Reset()
	h.say(`!poll "Pick" a b c d e f g h i j k`)
	assert.Equal(t, []string{"❌ Maximum 10 options allowed!"}, h.gw.Texts())
}

func TestQuickPoll(t *testing.T) {
	h := newHarness(t)

	h.say("!qp pizza tonight")

	assert.Equal(t, []string{"📊 Quick Poll\n**pizza tonight**"}, h.gw.Texts())
	assert.Len(t, h.gw.CallsOf("react"), 2)
}

func TestPollCount_IgnoresUnknownMessages(t *testing.T) {
	h := newHarness(t)

	out := h.send(reactionEvent("nope", "u2", "✅"))

	assert.Contains(t, out.Observers, "polls.count")
	tally, err := h.deps.Polls.Tally(context.Background(), "g1", "nope")
	require.NoError(t, err)
	assert.Empty(t, tally)
}
