package features

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/keepmind9/guildbot/internal/bot"
	"github.com/keepmind9/guildbot/internal/event"
	"github.com/keepmind9/guildbot/internal/registry"
	"github.com/keepmind9/guildbot/internal/store"
	"github.com/keepmind9/guildbot/pkg/constants"
)

const statsTimeLayout = "2006-01-02 15:04"

// Stats counts activity per member and shows it back.
type Stats struct {
	deps *Deps
}

func (m *Stats) Name() string { return ModuleStats }

func (m *Stats) Registrations() []registry.Registration {
	return []registry.Registration{
		{
			Name:    "stats.track",
			Trigger: registry.Events(event.MessageCreated),
			Class:   registry.Observer,
			Handler: registry.HandlerFunc(m.track),
		},
		{
			Name:         "stats.show",
			Trigger:      registry.Command("stats", "statistics", "userstats"),
			Class:        registry.Responder,
			Requirements: registry.Requirements{Guild: true},
			Description:  "View member statistics",
			Usage:        "stats [@member]",
			Handler:      registry.HandlerFunc(m.show),
		},
		{
			Name:          "stats.leaderboard",
			Trigger:       registry.Command("leaderboard", "lb", "top"),
			Class:         registry.Responder,
			Requirements:  registry.Requirements{Guild: true},
			Description:   "View the server leaderboard",
			Usage:         "leaderboard [messages|commands]",
			Slash:         true,
			SlashArgument: "metric",
			Handler:       registry.HandlerFunc(m.leaderboard),
		},
	}
}

func (m *Stats) track(ctx context.Context, inv *registry.Invocation) error {
	ev := inv.Event
	if !ev.InGuild() {
		return nil
	}
	return m.deps.Stats.RecordMessage(ctx, ev.Guild.ID, ev.Author.ID, ev.Author.Display(), inv.Prefixed, ev.Timestamp)
}

// ActivityLevel names the tier of a message count.
func ActivityLevel(messages int64) string {
	switch {
	case messages < 10:
		return "🌱 Newcomer"
	case messages < 100:
		return "📝 Regular"
	case messages < 500:
		return "🔥 Active"
	case messages < 1000:
		return "⭐ Veteran"
	default:
		return "💎 Legendary"
	}
}

func (m *Stats) show(ctx context.Context, inv *registry.Invocation) error {
	u, err := targetOrSelf(inv, 0)
	if err != nil {
		return err
	}
	found, err := m.deps.Stats.Get(ctx, inv.Event.Guild.ID, u.ID)
	if err != nil {
		return fmt.Errorf("load stats: %w", err)
	}
	us, ok := found.Get()
	if !ok {
		inv.ReplyText(ctx, fmt.Sprintf("📊 %s has no statistics yet.", u.Mention()))
		return nil
	}

	name := u.Display()
	if name == "" {
		name = orDefault(us.Name, u.Mention())
	}
	e := &bot.Embed{
		Title:        "📊 Statistics for " + name,
		Color:        bot.ColorBlue,
		ThumbnailURL: u.AvatarURL,
		Timestamp:    inv.Event.Timestamp,
	}
	e.AddField("💬 Messages Sent", humanize.Comma(us.Messages), true)
	e.AddField("⚡ Commands Used", humanize.Comma(us.CommandsUsed), true)
	e.AddField("📈 Activity Level", ActivityLevel(us.Messages), true)
	if !us.FirstSeen.IsZero() {
		e.AddField("📅 First Seen", us.FirstSeen.UTC().Format(statsTimeLayout), true)
	}
	if !us.LastSeen.IsZero() {
		e.AddField("🕐 Last Seen", us.LastSeen.UTC().Format(statsTimeLayout), true)
	}
	if !u.CreatedAt.IsZero() {
		days := int(m.deps.now().Sub(u.CreatedAt).Hours() / 24)
		e.AddField("🗓️ Account Age", fmt.Sprintf("%d days", days), true)
	}
	inv.ReplyEmbed(ctx, e)
	return nil
}

func leaderboardMetric(arg string) (string, string) {
	switch strings.ToLower(arg) {
	case "", "messages", "msg", "m":
		return store.MetricMessages, "Messages"
	default:
		return store.MetricCommands, "Commands_Used"
	}
}

var medals = []string{"🥇", "🥈", "🥉"}

func (m *Stats) leaderboard(ctx context.Context, inv *registry.Invocation) error {
	metric, label := leaderboardMetric(inv.Arg(0))
	top, err := m.deps.Stats.Top(ctx, inv.Event.Guild.ID, metric, constants.LeaderboardSize)
	if err != nil {
		return fmt.Errorf("load leaderboard: %w", err)
	}
	if len(top) == 0 {
		inv.ReplyText(ctx, "📊 No statistics available yet.")
		return nil
	}

	lines := make([]string, 0, len(top))
	for i, us := range top {
		rank := fmt.Sprintf("%d.", i+1)
		if i < len(medals) {
			rank = medals[i]
		}
		value := us.Messages
		if metric == store.MetricCommands {
			value = us.CommandsUsed
		}
		lines = append(lines, fmt.Sprintf("%s <@%s> - %s", rank, us.UserID, humanize.Comma(value)))
	}
	inv.ReplyEmbed(ctx, &bot.Embed{
		Title:       "🏆 Leaderboard - " + label,
		Description: strings.Join(lines, "\n"),
		Color:       bot.ColorGold,
	})
	return nil
}
