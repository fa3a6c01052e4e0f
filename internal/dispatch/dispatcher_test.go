package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/keepmind9/guildbot/internal/apperr"
	"github.com/keepmind9/guildbot/internal/bot/bottest"
	"github.com/keepmind9/guildbot/internal/event"
	"github.com/keepmind9/guildbot/internal/ratelimit"
	"github.com/keepmind9/guildbot/internal/registry"
	"github.com/keepmind9/guildbot/pkg/constants"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inline runs tasks on the calling goroutine.
type inline struct{}

func (inline) Submit(task func()) { task() }

type harness struct {
	d    *Dispatcher
	reg  *registry.Registry
	gw   *bottest.FakeGateway
	lim  *ratelimit.Limiter
	mu   sync.Mutex
	runs []string
	invs []*registry.Invocation
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		reg: registry.New(),
		gw:  bottest.New(),
		lim: ratelimit.New(),
	}
	h.d = New(cfg, h.reg, h.lim, h.gw, inline{})
	return h
}

func (h *harness) record(name string) registry.Handler {
	return registry.HandlerFunc(func(_ context.Context, inv *registry.Invocation) error {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.runs = append(h.runs, name)
		h.invs = append(h.invs, inv)
		return nil
	})
}

func (h *harness) ran() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.runs...)
}

func (h *harness) command(name string, aliases ...string) registry.Registration {
	return registry.Registration{
		Name:    name,
		Trigger: registry.Command(name, aliases...),
		Class:   registry.Responder,
		Handler: h.record(name),
	}
}

func (h *harness) keyword(name string, positive bool, words ...string) registry.Registration {
	return registry.Registration{
		Name:     name,
		Trigger:  registry.Keywords(words...),
		Class:    registry.Responder,
		Positive: positive,
		Handler:  h.record(name),
	}
}

func (h *harness) observer(name string, kinds ...event.Kind) registry.Registration {
	return registry.Registration{
		Name:    name,
		Trigger: registry.Events(kinds...),
		Class:   registry.Observer,
		Handler: h.record(name),
	}
}

func message(text string) event.Event {
	ev := event.New(event.MessageCreated, "test")
	ev.Author = event.User{ID: "u1", Name: "alice"}
	ev.Guild = event.Guild{ID: "g1", Name: "Guild"}
	ev.ChannelID = "c1"
	ev.MessageID = "m1"
	ev.Text = mo.Some(text)
	ev.Origin = event.Origin{Platform: "test", GuildID: "g1", ChannelID: "c1", MessageID: "m1"}
	return ev
}

func TestDispatch_SkipsBotAuthors(t *testing.T) {
	h := newHarness(t, Config{})
	require.NoError(t, h.reg.Register(h.command("ping"), h.observer("stats", event.MessageCreated)))

	ev := message("!ping")
	ev.Author.Bot = true
	out := h.d.Dispatch(context.Background(), ev)

	assert.True(t, out.Skipped)
	assert.Empty(t, h.ran())
}

func TestDispatch_CommandSuppressesKeywords(t *testing.T) {
	h := newHarness(t, Config{})
	require.NoError(t, h.reg.Register(
		h.command("hello", "hi"),
		h.keyword("greet", true, "hello"),
		h.observer("stats", event.MessageCreated),
	))

	out := h.d.Dispatch(context.Background(), message("!HI there friend"))

	assert.Equal(t, "hello", out.Responder)
	assert.Equal(t, []string{"hello", "stats"}, h.ran())
	inv := h.invs[0]
	assert.Equal(t, "hi", inv.Command)
	assert.Equal(t, []string{"there", "friend"}, inv.Args)
	assert.Equal(t, "there friend", inv.Rest)
	assert.True(t, h.invs[1].CommandMatched, "observers learn the message was a command")
}

func TestDispatch_UnknownCommandIsSilent(t *testing.T) {
	h := newHarness(t, Config{})
	require.NoError(t, h.reg.Register(
		h.keyword("greet", true, "hello"),
		h.observer("stats", event.MessageCreated),
	))

	out := h.d.Dispatch(context.Background(), message("!nosuch hello"))

	assert.True(t, out.Prefixed)
	assert.Empty(t, out.Responder)
	assert.Equal(t, []string{"stats"}, h.ran())
	assert.Empty(t, h.gw.Sent())
	assert.True(t, h.invs[0].Prefixed)
	assert.False(t, h.invs[0].CommandMatched)
}

func TestDispatch_OversizedCommandIsIgnored(t *testing.T) {
	h := newHarness(t, Config{})
	require.NoError(t, h.reg.Register(h.command("echo"), h.observer("stats", event.MessageCreated)))

	out := h.d.Dispatch(context.Background(), message("!echo "+strings.Repeat("a", constants.MaxCommandInputLength)))

	assert.True(t, out.Prefixed)
	assert.Empty(t, out.Responder)
	assert.Equal(t, []string{"stats"}, h.ran())
}

func TestDispatch_SlashUsesTextWithoutPrefix(t *testing.T) {
	h := newHarness(t, Config{})
	require.NoError(t, h.reg.Register(h.command("remind")))

	ev := message("remind 10m stretch")
	ev.Slash = true
	out := h.d.Dispatch(context.Background(), ev)

	assert.Equal(t, "remind", out.Responder)
	assert.Equal(t, []string{"10m", "stretch"}, h.invs[0].Args)
}

func TestDispatch_LongestKeywordWins(t *testing.T) {
	h := newHarness(t, Config{})
	require.NoError(t, h.reg.Register(
		h.keyword("short", false, "wow"),
		h.keyword("long", false, "awesome"),
	))

	out := h.d.Dispatch(context.Background(), message("Wow, that is AWESOME!"))

	assert.Equal(t, "long", out.Responder)
	assert.Equal(t, "awesome", out.Keyword)
	assert.Equal(t, []string{"long"}, h.ran())
}

func TestDispatch_KeywordsMatchWholeWords(t *testing.T) {
	h := newHarness(t, Config{})
	require.NoError(t, h.reg.Register(h.keyword("cool", false, "cool")))

	out := h.d.Dispatch(context.Background(), message("the pool is coolant"))
	assert.Empty(t, out.Responder)
}

func TestDispatch_EqualLengthUsesPriorityThenName(t *testing.T) {
	h := newHarness(t, Config{})
	low := h.keyword("b-rule", false, "nice")
	other := h.keyword("a-rule", false, "nice")
	high := h.keyword("z-rule", false, "nice")
	high.Priority = 10
	require.NoError(t, h.reg.Register(low, other))

	assert.Equal(t, "a-rule", h.d.Dispatch(context.Background(), message("nice")).Responder)

	require.NoError(t, h.reg.Register(high))
	assert.Equal(t, "z-rule", h.d.Dispatch(context.Background(), message("nice")).Responder)
}

func TestDispatch_DenylistSuppressesPositiveRules(t *testing.T) {
	h := newHarness(t, Config{Denylist: []string{"sad"}})
	require.NoError(t, h.reg.Register(
		h.keyword("praise", true, "great"),
		h.keyword("neutral", false, "day"),
	))

	out := h.d.Dispatch(context.Background(), message("great day but I am sad"))
	assert.Equal(t, "neutral", out.Responder)

	out = h.d.Dispatch(context.Background(), message("great day"))
	assert.Equal(t, "praise", out.Responder)
}

func TestDispatch_PredicateLosesToKeyword(t *testing.T) {
	h := newHarness(t, Config{})
	question := registry.Registration{
		Name:     "ask",
		Trigger:  registry.Predicate(func(ev event.Event) bool { return true }),
		Class:    registry.Responder,
		Priority: 100,
		Handler:  h.record("ask"),
	}
	require.NoError(t, h.reg.Register(question, h.keyword("wow", false, "wow")))

	assert.Equal(t, "wow", h.d.Dispatch(context.Background(), message("wow what is this?")).Responder)
	assert.Equal(t, "ask", h.d.Dispatch(context.Background(), message("what is this?")).Responder)
}

func TestDispatch_ObserversRunForOtherKinds(t *testing.T) {
	h := newHarness(t, Config{})
	require.NoError(t, h.reg.Register(
		h.observer("welcome", event.MemberJoined),
		h.observer("audit", event.MemberJoined, event.MemberLeft),
	))

	ev := event.New(event.MemberJoined, "test")
	ev.Author = event.User{ID: "u2", Name: "bob"}
	out := h.d.Dispatch(context.Background(), ev)

	assert.Equal(t, []string{"audit", "welcome"}, out.Observers)
	assert.Equal(t, []string{"audit", "welcome"}, h.ran())
}

func TestDispatch_Cooldown(t *testing.T) {
	h := newHarness(t, Config{})
	reg := h.command("roll")
	reg.Cooldown = registry.Cooldown{Max: 1, Window: time.Minute}
	require.NoError(t, h.reg.Register(reg))

	first := h.d.Dispatch(context.Background(), message("!roll"))
	second := h.d.Dispatch(context.Background(), message("!roll"))

	assert.False(t, first.RateLimited)
	assert.True(t, second.RateLimited)
	assert.Equal(t, []string{"roll"}, h.ran())
	texts := h.gw.Texts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "⏰ This command is on cooldown. Try again in")
}

func TestDispatch_CooldownOverride(t *testing.T) {
	h := newHarness(t, Config{Cooldowns: map[string]registry.Cooldown{
		"roll": {Max: 2, Window: time.Minute},
	}})
	reg := h.command("roll")
	reg.Cooldown = registry.Cooldown{Max: 1, Window: time.Minute}
	require.NoError(t, h.reg.Register(reg))

	for i := 0; i < 3; i++ {
		h.d.Dispatch(context.Background(), message("!roll"))
	}
	assert.Len(t, h.ran(), 2)
}

func TestCooldownNotice(t *testing.T) {
	assert.Equal(t, "⏰ This command is on cooldown. Try again in 2.5 seconds.", CooldownNotice(2500*time.Millisecond))
}

func TestDispatch_Requirements(t *testing.T) {
	h := newHarness(t, Config{Owners: []string{"owner"}})
	guildOnly := h.command("stats")
	guildOnly.Requirements.Guild = true
	ownerOnly := h.command("reload")
	ownerOnly.Requirements.Owner = true
	kick := h.command("kick")
	kick.Requirements.Permissions = event.PermKickMembers
	require.NoError(t, h.reg.Register(guildOnly, ownerOnly, kick))

	dm := message("!stats")
	dm.Guild = event.Guild{}
	out := h.d.Dispatch(context.Background(), dm)
	assert.Equal(t, apperr.KindUsage, apperr.KindOf(out.Rejected))

	out = h.d.Dispatch(context.Background(), message("!reload"))
	assert.Equal(t, apperr.KindPermission, apperr.KindOf(out.Rejected))

	out = h.d.Dispatch(context.Background(), message("!kick @bob"))
	assert.Equal(t, apperr.KindPermission, apperr.KindOf(out.Rejected))

	assert.Empty(t, h.ran())
	assert.Equal(t, []string{
		"❌ This command can only be used in a server.",
		"❌ Only the bot owner can use this command.",
		"❌ You need the Kick Members permission to use this command.",
	}, h.gw.Texts())

	owner := message("!reload")
	owner.Author.ID = "owner"
	admin := message("!kick @bob")
	admin.Author.Permissions = event.PermAdministrator
	h.d.Dispatch(context.Background(), owner)
	h.d.Dispatch(context.Background(), admin)
	assert.Equal(t, []string{"reload", "kick"}, h.ran())
}

func TestDispatch_ErrorClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"usage", apperr.Usage("Missing required argument."), "❌ Missing required argument."},
		{"transient", apperr.Transient(errors.New("502"), "The service is unavailable."), "❌ The service is unavailable. Please try again later."},
		{"internal", errors.New("nil map"), "❌ An error occurred while running this command."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{})
			require.NoError(t, h.reg.Register(registry.Registration{
				Name:    "fail",
				Trigger: registry.Command("fail"),
				Class:   registry.Responder,
				Handler: registry.HandlerFunc(func(context.Context, *registry.Invocation) error { return tt.err }),
			}))
			h.d.Dispatch(context.Background(), message("!fail"))
			assert.Equal(t, []string{tt.want}, h.gw.Texts())
		})
	}
}

func TestDispatch_ConfigurationHintShownOncePerGuild(t *testing.T) {
	h := newHarness(t, Config{})
	require.NoError(t, h.reg.Register(registry.Registration{
		Name:    "ask",
		Trigger: registry.Command("ask"),
		Class:   registry.Responder,
		Handler: registry.HandlerFunc(func(context.Context, *registry.Invocation) error {
			return apperr.Configuration("The AI service is not configured.", "Set GROQ_API_KEY and restart the bot.")
		}),
	}))

	h.d.Dispatch(context.Background(), message("!ask hi"))
	h.d.Dispatch(context.Background(), message("!ask hi"))
	other := message("!ask hi")
	other.Guild.ID = "g2"
	h.d.Dispatch(context.Background(), other)

	assert.Equal(t, []string{
		"❌ The AI service is not configured.\nSet GROQ_API_KEY and restart the bot.",
		"❌ The AI service is not configured.",
		"❌ The AI service is not configured.\nSet GROQ_API_KEY and restart the bot.",
	}, h.gw.Texts())
}

func TestDispatch_PanicIsIsolated(t *testing.T) {
	h := newHarness(t, Config{})
	require.NoError(t, h.reg.Register(
		registry.Registration{
			Name:    "boom",
			Trigger: registry.Command("boom"),
			Class:   registry.Responder,
			Handler: registry.HandlerFunc(func(context.Context, *registry.Invocation) error { panic("kaboom") }),
		},
		registry.Registration{
			Name:    "obs-boom",
			Trigger: registry.Events(event.MessageCreated),
			Class:   registry.Observer,
			Handler: registry.HandlerFunc(func(context.Context, *registry.Invocation) error { panic("observer") }),
		},
		h.observer("stats", event.MessageCreated),
	))

	assert.NotPanics(t, func() {
		h.d.Dispatch(context.Background(), message("!boom"))
	})
	assert.Equal(t, []string{"stats"}, h.ran())
	assert.Equal(t, []string{"❌ An error occurred while running this command."}, h.gw.Texts(),
		"observer failures are never shown to users")
}

func TestDispatch_HandlerTimeout(t *testing.T) {
	h := newHarness(t, Config{HandlerTimeout: 20 * time.Millisecond})
	require.NoError(t, h.reg.Register(registry.Registration{
		Name:    "slow",
		Trigger: registry.Command("slow"),
		Class:   registry.Responder,
		Handler: registry.HandlerFunc(func(ctx context.Context, _ *registry.Invocation) error {
			<-ctx.Done()
			return ctx.Err()
		}),
	}))

	h.d.Dispatch(context.Background(), message("!slow"))
	assert.Equal(t, []string{"❌ That took too long. Please try again later."}, h.gw.Texts())
}

func TestDispatch_HandlerIgnoringContextIsAbandoned(t *testing.T) {
	h := newHarness(t, Config{HandlerTimeout: 20 * time.Millisecond})
	release := make(chan struct{})
	defer close(release)
	require.NoError(t, h.reg.Register(registry.Registration{
		Name:    "stuck",
		Trigger: registry.Command("stuck"),
		Class:   registry.Responder,
		Handler: registry.HandlerFunc(func(context.Context, *registry.Invocation) error {
			<-release
			return nil
		}),
	}))

	start := time.Now()
	h.d.Dispatch(context.Background(), message("!stuck"))

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, []string{"❌ That took too long. Please try again later."}, h.gw.Texts())
}

func TestDispatch_ReplyFailureIsSwallowed(t *testing.T) {
	h := newHarness(t, Config{})
	h.gw.SetFail("reply", errors.New("gone"))
	require.NoError(t, h.reg.Register(registry.Registration{
		Name:    "ping",
		Trigger: registry.Command("ping"),
		Class:   registry.Responder,
		Handler: registry.HandlerFunc(func(ctx context.Context, inv *registry.Invocation) error {
			_, ok := inv.ReplyText(ctx, "pong")
			assert.False(t, ok)
			return nil
		}),
	}))
	assert.NotPanics(t, func() { h.d.Dispatch(context.Background(), message("!ping")) })
}

func TestDispatch_PingEndToEnd(t *testing.T) {
	h := newHarness(t, Config{Prefix: "?"})
	require.NoError(t, h.reg.Register(registry.Registration{
		Name:    "ping",
		Trigger: registry.Command("ping"),
		Class:   registry.Responder,
		Handler: registry.HandlerFunc(func(ctx context.Context, inv *registry.Invocation) error {
			inv.ReplyText(ctx, fmt.Sprintf("Latency: %dms", inv.Gateway.Latency().Milliseconds()))
			return nil
		}),
	}))

	h.d.Dispatch(context.Background(), message("!ping"))
	assert.Empty(t, h.gw.Sent(), "wrong prefix")

	h.d.Dispatch(context.Background(), message("?ping"))
	sent := h.gw.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Latency: 42ms", sent[0].Message.Content)
	assert.Equal(t, "m1", sent[0].Origin.MessageID)
}

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"a b  c", []string{"a", "b", "c"}},
		{`"Pizza or tacos?" Pizza Tacos`, []string{"Pizza or tacos?", "Pizza", "Tacos"}},
		{`say "" done`, []string{"say", "", "done"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SplitArgs(tt.in), tt.in)
	}
}

func TestWords(t *testing.T) {
	words := Words("Wow!! I'm SO happy, really...")
	for _, w := range []string{"wow", "i'm", "so", "happy", "really"} {
		assert.True(t, words[w], w)
	}
	assert.False(t, words["wow!!"])
}

func TestPermissionNames(t *testing.T) {
	assert.Equal(t, "Kick Members, Ban Members", PermissionNames(event.PermKickMembers|event.PermBanMembers))
	assert.Equal(t, "required", PermissionNames(0))
}
