package features

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/keepmind9/guildbot/internal/apperr"
	"github.com/keepmind9/guildbot/internal/bot"
	"github.com/keepmind9/guildbot/internal/event"
	"github.com/keepmind9/guildbot/internal/registry"
)

const maxLoggedContent = 1024

var channelPattern = regexp.MustCompile(`^<#(\d+)>$`)

// parseChannelID accepts a channel mention or a bare ID; empty means the
// channel the command was used in.
func parseChannelID(inv *registry.Invocation, i int) (string, error) {
	arg := inv.Arg(i)
	if arg == "" {
		return inv.Event.ChannelID, nil
	}
	if m := channelPattern.FindStringSubmatch(arg); m != nil {
		return m[1], nil
	}
	if _, ok := parseUserID(arg); ok {
		return arg, nil
	}
	return "", apperr.Usage("Channel %q not found. Mention it or use its ID.", arg)
}

// Audit posts member and message events to the guild's log channel.
type Audit struct {
	deps *Deps
}

func (m *Audit) Name() string { return ModuleAudit }

func (m *Audit) Registrations() []registry.Registration {
	return []registry.Registration{
		{
			Name:    "audit.events",
			Trigger: registry.Events(event.MemberJoined, event.MemberLeft, event.MessageDeleted, event.MemberUpdated),
			Class:   registry.Observer,
			Handler: registry.HandlerFunc(m.record),
		},
		{
			Name:         "audit.setlogchannel",
			Trigger:      registry.Command("setlogchannel", "setlogs"),
			Class:        registry.Responder,
			Requirements: registry.Requirements{Guild: true, Permissions: event.PermManageGuild},
			Description:  "Set the channel event logs are sent to",
			Usage:        "setlogchannel [#channel]",
			Handler:      registry.HandlerFunc(m.setLogChannel),
		},
	}
}

func (m *Audit) setLogChannel(ctx context.Context, inv *registry.Invocation) error {
	channelID, err := parseChannelID(inv, 0)
	if err != nil {
		return err
	}
	if err := m.deps.Settings.SetLogChannel(ctx, inv.Event.Guild.ID, channelID); err != nil {
		return fmt.Errorf("save log channel: %w", err)
	}
	inv.ReplyEmbed(ctx, &bot.Embed{
		Title:       "✅ Log Channel Set",
		Description: "Event logs will be sent to <#" + channelID + ">",
		Color:       bot.ColorGreen,
	})
	return nil
}

func (m *Audit) record(ctx context.Context, inv *registry.Invocation) error {
	ev := inv.Event
	if !ev.InGuild() {
		return nil
	}
	embeds := AuditEmbeds(ev)
	if len(embeds) == 0 {
		return nil
	}
	settings, err := m.deps.Settings.Get(ctx, ev.Guild.ID)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if settings.LogChannelID == "" {
		return nil
	}
	for _, e := range embeds {
		if _, err := inv.Gateway.SendMessage(ctx, settings.LogChannelID, bot.EmbedMessage(e)); err != nil {
			return fmt.Errorf("send audit log: %w", err)
		}
	}
	return nil
}

// AuditEmbeds renders the log entries for an event; most events produce
// one, a member update may produce two.
func AuditEmbeds(ev event.Event) []*bot.Embed {
	u := ev.Author
	switch ev.Kind {
	case event.MemberJoined:
		e := &bot.Embed{
			Title:        "✅ Member Joined",
			Description:  u.Mention() + " joined the server",
			Color:        bot.ColorGreen,
			ThumbnailURL: u.AvatarURL,
			Timestamp:    ev.Timestamp,
		}
		e.AddField("User", orDefault(u.Name, u.Mention()), true)
		e.AddField("ID", u.ID, true)
		if !u.CreatedAt.IsZero() {
			e.AddField("Account Created", u.CreatedAt.UTC().Format("2006-01-02"), true)
		}
		return []*bot.Embed{e}

	case event.MemberLeft:
		e := &bot.Embed{
			Title:        "👋 Member Left",
			Description:  u.Mention() + " left the server",
			Color:        bot.ColorOrange,
			ThumbnailURL: u.AvatarURL,
			Timestamp:    ev.Timestamp,
		}
		e.AddField("User", orDefault(u.Name, u.Mention()), true)
		e.AddField("ID", u.ID, true)
		return []*bot.Embed{e}

	case event.MessageDeleted:
		content := clip(ev.Content(), maxLoggedContent)
		if content == "" {
			content = "*No content*"
		}
		e := &bot.Embed{
			Title:       "🗑️ Message Deleted",
			Description: "Message deleted in <#" + ev.ChannelID + ">",
			Color:       bot.ColorRed,
			Timestamp:   ev.Timestamp,
		}
		if u.ID != "" {
			e.AddField("Author", u.Mention(), true)
		}
		e.AddField("Channel", "<#"+ev.ChannelID+">", true)
		e.AddField("Content", content, false)
		if n := len(ev.Attachments); n > 0 {
			e.AddField("Attachments", fmt.Sprintf("%d file(s)", n), true)
		}
		return []*bot.Embed{e}

	case event.MemberUpdated:
		before, ok := ev.Before.Get()
		if !ok {
			return nil
		}
		var out []*bot.Embed
		if before.Nickname != ev.Nickname {
			e := &bot.Embed{
				Title:       "📝 Nickname Changed",
				Description: u.Mention() + " changed nickname",
				Color:       bot.ColorBlue,
				Timestamp:   ev.Timestamp,
			}
			e.AddField("Before", orDefault(before.Nickname, orDefault(u.Name, "None")), true)
			e.AddField("After", orDefault(ev.Nickname, orDefault(u.Name, "None")), true)
			out = append(out, e)
		}
		added, removed := diffRoles(before.Roles, ev.Roles)
		if len(added) > 0 || len(removed) > 0 {
			e := &bot.Embed{
				Title:       "🎭 Roles Updated",
				Description: u.Mention() + "'s roles changed",
				Color:       bot.ColorPurple,
				Timestamp:   ev.Timestamp,
			}
			if len(added) > 0 {
				e.AddField("➕ Added", roleMentions(added), false)
			}
			if len(removed) > 0 {
				e.AddField("➖ Removed", roleMentions(removed), false)
			}
			out = append(out, e)
		}
		return out
	}
	return nil
}

func diffRoles(before, after []string) (added, removed []string) {
	had := make(map[string]bool, len(before))
	for _, r := range before {
		had[r] = true
	}
	has := make(map[string]bool, len(after))
	for _, r := range after {
		has[r] = true
		if !had[r] {
			added = append(added, r)
		}
	}
	for _, r := range before {
		if !has[r] {
			removed = append(removed, r)
		}
	}
	return added, removed
}

func roleMentions(ids []string) string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = "<@&" + id + ">"
	}
	return strings.Join(out, ", ")
}
