package features

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/keepmind9/guildbot/internal/bot/bottest"
	"github.com/keepmind9/guildbot/internal/dispatch"
	"github.com/keepmind9/guildbot/internal/event"
	"github.com/keepmind9/guildbot/internal/ratelimit"
	"github.com/keepmind9/guildbot/internal/registry"
	"github.com/keepmind9/guildbot/internal/store"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// inline runs tasks on the calling goroutine.
type inline struct{}

func (inline) Submit(task func()) { task() }

type fakeModules struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeModules) record(op, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op+":"+name)
	return f.err
}

func (f *fakeModules) ReloadModule(name string) error { return f.record("reload", name) }
func (f *fakeModules) LoadModule(name string) error   { return f.record("load", name) }
func (f *fakeModules) UnloadModule(name string) error { return f.record("unload", name) }

type harness struct {
	deps *Deps
	reg  *registry.Registry
	gw   *bottest.FakeGateway
	d    *dispatch.Dispatcher
	mods *fakeModules
}

func newHarness(t *testing.T, tweak ...func(*Deps)) *harness {
	t.Helper()
	s, err := store.OpenDocumentStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	h := &harness{
		reg:  registry.New(),
		gw:   bottest.New(),
		mods: &fakeModules{},
	}
	h.deps = &Deps{
		Prefix:    "!",
		Reminders: store.NewReminders(s),
		Stats:     store.NewStats(s),
		Warnings:  store.NewWarnings(s),
		Polls:     store.NewPolls(s),
		Settings:  store.NewSettings(s),
		Modules:   h.mods,
		Pick:      func(int) int { return 0 },
		Now:       func() time.Time { return testNow },
	}
	for _, fn := range tweak {
		fn(h.deps)
	}
	for _, m := range Catalog(h.deps) {
		require.NoError(t, h.reg.RegisterModule(m.Name(), m.Registrations()), m.Name())
	}
	h.d = dispatch.New(dispatch.Config{
		Prefix:   "!",
		Denylist: NegativeWords,
		Owners:   []string{"owner"},
	}, h.reg, ratelimit.New(), h.gw, inline{})
	return h
}

func (h *harness) send(ev event.Event) dispatch.Outcome {
	return h.d.Dispatch(context.Background(), ev)
}

func (h *harness) say(text string) dispatch.Outcome {
	return h.send(message(text))
}

func message(text string) event.Event {
	ev := event.New(event.MessageCreated, "test")
	ev.Author = event.User{ID: "u1", Name: "alice"}
	ev.Guild = event.Guild{ID: "g1", Name: "Guild", SystemChannelID: "sys"}
	ev.ChannelID = "c1"
	ev.MessageID = "m0"
	ev.Text = mo.Some(text)
	ev.Origin = event.Origin{Platform: "test", GuildID: "g1", ChannelID: "c1", MessageID: "m0"}
	return ev
}

func withPerms(ev event.Event, perm int64) event.Event {
	ev.Author.Permissions = perm
	return ev
}

func TestCatalog_RegistersEveryModule(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, Names(), h.reg.Current().Modules())

	for _, name := range Names() {
		m, ok := Build(h.deps, name)
		require.True(t, ok, name)
		assert.Equal(t, name, m.Name())
	}
	_, ok := Build(h.deps, "music")
	assert.False(t, ok)
}

func TestPing_RepliesWithLatencyAndNothingElse(t *testing.T) {
	h := newHarness(t)

	out := h.say("!ping")

	assert.Equal(t, "basic.ping", out.Responder)
	assert.Equal(t, []string{"🏓 Pong!\nLatency: 42ms"}, h.gw.Texts())
	assert.Empty(t, h.gw.CallsOf("react"))

	found, err := h.deps.Stats.Get(context.Background(), "g1", "u1")
	require.NoError(t, err)
	us, ok := found.Get()
	require.True(t, ok)
	assert.EqualValues(t, 1, us.Messages)
	assert.EqualValues(t, 1, us.CommandsUsed)
}

func TestUnknownCommand_IsSilent(t *testing.T) {
	h := newHarness(t)

	out := h.say("!nosuchcommand great")

	assert.True(t, out.Prefixed)
	assert.Empty(t, out.Responder)
	assert.Empty(t, h.gw.Sent())
	assert.Contains(t, out.Observers, "stats.track")
}

func TestHello_GreetsWithMention(t *testing.T) {
	h := newHarness(t)
	h.say("!hey")
	assert.Equal(t, []string{"Hello <@u1>! 👋"}, h.gw.Texts())
}

func TestEightBall(t *testing.T) {
	h := newHarness(t)

	h.say("!8ball")
	assert.Equal(t, []string{"❌ Please ask a question!"}, h.gw.Texts())

	h.gw.Reset()
	h.say("!8ball will it rain")
	assert.Equal(t, []string{"🎱 Magic 8-Ball\n**Question:** will it rain\n\n**Answer:** It is certain."}, h.gw.Texts())
}

func TestHelp(t *testing.T) {
	h := newHarness(t)

	h.say("!help")
	sent := h.gw.Sent()
	require.Len(t, sent, 1)
	e := sent[0].Message.Embed
	require.NotNil(t, e)
	assert.Equal(t, "📖 Commands", e.Title)
	var names []string
	for _, f := range e.Fields {
		names = append(names, f.Name)
	}
	assert.Contains(t, names, "Basic")
	assert.Contains(t, names, "Moderation")

	h.gw.Reset()
	h.say("!help remind")
	e = h.gw.Sent()[0].Message.Embed
	require.NotNil(t, e)
	assert.Equal(t, "!remind", e.Title)
	require.Len(t, e.Fields, 2)
	assert.Equal(t, "`!remind <duration> <message>`", e.Fields[0].Value)
	assert.Equal(t, "reminder, timer", e.Fields[1].Value)

	h.gw.Reset()
	h.say("!help dance")
	assert.Equal(t, []string{"❌ No command called `dance`."}, h.gw.Texts())
}

func TestInvite_ConfigurationHintShownOnce(t *testing.T) {
	h := newHarness(t)

	h.say("!invite")
	h.say("!invite")

	assert.Equal(t, []string{
		"❌ The invite link is not available.\nSet bots.discord.client_id in the configuration.",
		"❌ The invite link is not available.",
	}, h.gw.Texts())
}

func TestInvite_BuildsLink(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.ClientID = "123" })

	h.say("!invite")

	e := h.gw.Sent()[0].Message.Embed
	require.NotNil(t, e)
	assert.Contains(t, e.Description, "client_id=123")
	assert.Contains(t, e.Description, "permissions=1099780156416")
}

func TestServerInfo_NeedsGuild(t *testing.T) {
	h := newHarness(t)
	ev := message("!serverinfo")
	ev.Guild = event.Guild{}

	out := h.send(ev)

	assert.Error(t, out.Rejected)
	assert.Equal(t, []string{"❌ This command can only be used in a server."}, h.gw.Texts())
}

func TestKeywords(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		keyword string
		reply   string
	}{
		{"single word", "wow", "wow", "Wow <@u1>! 😲"},
		{"longest keyword wins", "wow this is amazing", "amazing", "Amazing <@u1>! ✨"},
		{"punctuation is ignored", "That's great!", "great", "Great <@u1>! 👍"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)

			out := h.say(tt.text)

			assert.Equal(t, "keywords.reply", out.Responder)
			assert.Equal(t, tt.keyword, out.Keyword)
			assert.Equal(t, []string{tt.reply}, h.gw.Texts())
		})
	}
}

func TestKeywords_DenylistSuppressesPositiveReplies(t *testing.T) {
	h := newHarness(t)

	out := h.say("great but i am sad")

	// The AI rule is not positive, so it still wins; without a client it
	// stays silent.
	assert.Equal(t, "ai.auto", out.Responder)
	assert.Empty(t, h.gw.Sent())
}

func TestKeywords_CommandSuppressesKeywords(t *testing.T) {
	h := newHarness(t)

	out := h.say("!ping wow")

	assert.Equal(t, "basic.ping", out.Responder)
	assert.Empty(t, out.Keyword)
	assert.Len(t, h.gw.Sent(), 1)
}

func TestBotAuthorsAreIgnored(t *testing.T) {
	h := newHarness(t)
	ev := message("wow")
	ev.Author.Bot = true

	out := h.send(ev)

	assert.True(t, out.Skipped)
	assert.Empty(t, h.gw.Sent())
	assert.Empty(t, h.gw.Calls())
}
