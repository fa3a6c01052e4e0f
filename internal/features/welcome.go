package features

import (
	"context"
	"fmt"

	"github.com/keepmind9/guildbot/internal/bot"
	"github.com/keepmind9/guildbot/internal/event"
	"github.com/keepmind9/guildbot/internal/registry"
)

// Welcome greets new members.
type Welcome struct {
	deps *Deps
}

func (m *Welcome) Name() string { return ModuleWelcome }

func (m *Welcome) Registrations() []registry.Registration {
	return []registry.Registration{
		{
			Name:    "welcome.greet",
			Trigger: registry.Events(event.MemberJoined),
			Class:   registry.Observer,
			Handler: registry.HandlerFunc(m.greet),
		},
		{
			Name:         "welcome.setwelcome",
			Trigger:      registry.Command("setwelcome", "setwelcomechannel"),
			Class:        registry.Responder,
			Requirements: registry.Requirements{Guild: true, Permissions: event.PermManageGuild},
			Description:  "Set the channel new members are welcomed in",
			Usage:        "setwelcome [#channel]",
			Handler:      registry.HandlerFunc(m.setChannel),
		},
	}
}

func (m *Welcome) greet(ctx context.Context, inv *registry.Invocation) error {
	ev := inv.Event
	if !ev.InGuild() {
		return nil
	}
	settings, err := m.deps.Settings.Get(ctx, ev.Guild.ID)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	channelID := orDefault(settings.WelcomeChannelID, ev.Guild.SystemChannelID)
	if channelID == "" {
		return nil
	}
	msg := bot.EmbedMessage(&bot.Embed{
		Title: fmt.Sprintf("Welcome to %s! 🎉", orDefault(ev.Guild.Name, "the server")),
		Description: fmt.Sprintf("Hey %s, welcome to the server!\n\n"+
			"We're glad to have you here. Make sure to read the rules!", ev.Author.Mention()),
		Color:        bot.ColorBlue,
		ThumbnailURL: ev.Author.AvatarURL,
		Timestamp:    ev.Timestamp,
	})
	if _, err := inv.Gateway.SendMessage(ctx, channelID, msg); err != nil {
		if bot.Permanent(err) {
			inv.Logger.WithError(err).Warn("welcome-channel-not-writable")
			return nil
		}
		return fmt.Errorf("send welcome: %w", err)
	}
	return nil
}

func (m *Welcome) setChannel(ctx context.Context, inv *registry.Invocation) error {
	channelID, err := parseChannelID(inv, 0)
	if err != nil {
		return err
	}
	if err := m.deps.Settings.SetWelcomeChannel(ctx, inv.Event.Guild.ID, channelID); err != nil {
		return fmt.Errorf("save welcome channel: %w", err)
	}
	inv.ReplyEmbed(ctx, &bot.Embed{
		Title:       "✅ Welcome Channel Set",
		Description: "New members will be welcomed in <#" + channelID + ">",
		Color:       bot.ColorGreen,
	})
	return nil
}
