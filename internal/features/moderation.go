package features

import (
	"context"
	"fmt"
	"strconv"

	"github.com/keepmind9/guildbot/internal/apperr"
	"github.com/keepmind9/guildbot/internal/bot"
	"github.com/keepmind9/guildbot/internal/duration"
	"github.com/keepmind9/guildbot/internal/event"
	"github.com/keepmind9/guildbot/internal/registry"
	"github.com/keepmind9/guildbot/internal/store"
	"github.com/keepmind9/guildbot/pkg/constants"
)

const (
	noReason          = "No reason provided"
	defaultPurgeCount = 10
)

// Moderation has the member management commands.
type Moderation struct {
	deps *Deps
}

func (m *Moderation) Name() string { return ModuleModeration }

func (m *Moderation) Registrations() []registry.Registration {
	guildWith := func(perm int64) registry.Requirements {
		return registry.Requirements{Guild: true, Permissions: perm}
	}
	return []registry.Registration{
		{
			Name:         "moderation.kick",
			Trigger:      registry.Command("kick"),
			Class:        registry.Responder,
			Requirements: guildWith(event.PermKickMembers),
			Description:  "Kick a member from the server",
			Usage:        "kick <@member> [reason]",
			Handler:      registry.HandlerFunc(m.kick),
		},
		{
			Name:         "moderation.ban",
			Trigger:      registry.Command("ban"),
			Class:        registry.Responder,
			Requirements: guildWith(event.PermBanMembers),
			Description:  "Ban a member from the server",
			Usage:        "ban <@member> [reason]",
			Handler:      registry.HandlerFunc(m.ban),
		},
		{
			Name:         "moderation.timeout",
			Trigger:      registry.Command("timeout", "mute", "tempban"),
			Class:        registry.Responder,
			Requirements: guildWith(event.PermModerateMembers),
			Description:  "Timeout a member",
			Usage:        "timeout <@member> <duration> [reason]",
			Handler:      registry.HandlerFunc(m.timeout),
		},
		{
			Name:         "moderation.untimeout",
			Trigger:      registry.Command("untimeout", "unmute"),
			Class:        registry.Responder,
			Requirements: guildWith(event.PermModerateMembers),
			Description:  "Remove a member's timeout",
			Usage:        "untimeout <@member> [reason]",
			Handler:      registry.HandlerFunc(m.untimeout),
		},
		{
			Name:         "moderation.purge",
			Trigger:      registry.Command("purge", "clear", "delete"),
			Class:        registry.Responder,
			Requirements: guildWith(event.PermManageMessages),
			Description:  "Delete recent messages",
			Usage:        "purge [1-100]",
			Handler:      registry.HandlerFunc(m.purge),
		},
		{
			Name:         "moderation.warn",
			Trigger:      registry.Command("warn"),
			Class:        registry.Responder,
			Requirements: guildWith(event.PermManageMessages),
			Description:  "Warn a member",
			Usage:        "warn <@member> [reason]",
			Handler:      registry.HandlerFunc(m.warn),
		},
		{
			Name:         "moderation.warnings",
			Trigger:      registry.Command("warnings", "warns"),
			Class:        registry.Responder,
			Requirements: registry.Requirements{Guild: true},
			Description:  "View a member's warnings",
			Usage:        "warnings [@member]",
			Handler:      registry.HandlerFunc(m.warnings),
		},
	}
}

// target resolves the required member argument and refuses self-targeting.
func (m *Moderation) target(inv *registry.Invocation, verb string) (bot.Member, string, error) {
	arg := inv.Arg(0)
	if arg == "" {
		return bot.Member{}, "", missingArgument(m.deps, inv)
	}
	id, ok := parseUserID(arg)
	if !ok {
		return bot.Member{}, "", apperr.Usage("Member %q not found. Mention them or use their ID.", arg)
	}
	if id == inv.Event.Author.ID {
		return bot.Member{}, "", apperr.Usage("You cannot %s yourself.", verb)
	}
	return bot.Member{GuildID: inv.Event.Guild.ID, UserID: id}, "<@" + id + ">", nil
}

func auditReason(inv *registry.Invocation, verb, reason string) string {
	return fmt.Sprintf("%s by %s: %s", verb, inv.Event.Author.Display(), reason)
}

func (m *Moderation) kick(ctx context.Context, inv *registry.Invocation) error {
	member, mention, err := m.target(inv, "kick")
	if err != nil {
		return err
	}
	reason := orDefault(restAfter(inv, 1), noReason)
	if err := inv.Gateway.Kick(ctx, member, auditReason(inv, "Kicked", reason)); err != nil {
		return bot.AsUserError(err, "kick this member")
	}
	e := &bot.Embed{
		Title:       "✅ Member Kicked",
		Description: mention + " has been kicked from the server.",
		Color:       bot.ColorOrange,
	}
	e.AddField("Reason", reason, false)
	e.AddField("Moderator", inv.Event.Author.Mention(), true)
	inv.ReplyEmbed(ctx, e)
	return nil
}

func (m *Moderation) ban(ctx context.Context, inv *registry.Invocation) error {
	member, mention, err := m.target(inv, "ban")
	if err != nil {
		return err
	}
	reason := orDefault(restAfter(inv, 1), noReason)
	if err := inv.Gateway.Ban(ctx, member, auditReason(inv, "Banned", reason)); err != nil {
		return bot.AsUserError(err, "ban this member")
	}
	e := &bot.Embed{
		Title:       "✅ Member Banned",
		Description: mention + " has been banned from the server.",
		Color:       bot.ColorRed,
	}
	e.AddField("Reason", reason, false)
	e.AddField("Moderator", inv.Event.Author.Mention(), true)
	inv.ReplyEmbed(ctx, e)
	return nil
}

func (m *Moderation) timeout(ctx context.Context, inv *registry.Invocation) error {
	member, mention, err := m.target(inv, "timeout")
	if err != nil {
		return err
	}
	if inv.Arg(1) == "" {
		return missingArgument(m.deps, inv)
	}
	d, err := duration.Parse(inv.Arg(1))
	if err != nil {
		return apperr.Usage("Invalid duration format. Use: 1h, 30m, 5s, etc.")
	}
	if d > constants.MaxTimeoutDuration {
		return apperr.Usage("Maximum timeout duration is 7 days.")
	}
	reason := orDefault(restAfter(inv, 2), noReason)
	if err := inv.Gateway.Timeout(ctx, member, d, auditReason(inv, "Timed out", reason)); err != nil {
		return bot.AsUserError(err, "timeout this member")
	}
	e := &bot.Embed{
		Title:       "✅ Member Timed Out",
		Description: mention + " has been timed out.",
		Color:       bot.ColorOrange,
	}
	e.AddField("Duration", duration.Format(d), true)
	e.AddField("Reason", reason, false)
	e.AddField("Moderator", inv.Event.Author.Mention(), true)
	inv.ReplyEmbed(ctx, e)
	return nil
}

func (m *Moderation) untimeout(ctx context.Context, inv *registry.Invocation) error {
	member, mention, err := m.target(inv, "untimeout")
	if err != nil {
		return err
	}
	reason := orDefault(restAfter(inv, 1), noReason)
	if err := inv.Gateway.RemoveTimeout(ctx, member, auditReason(inv, "Untimed out", reason)); err != nil {
		return bot.AsUserError(err, "remove timeout from this member")
	}
	e := &bot.Embed{
		Title:       "✅ Timeout Removed",
		Description: "Timeout removed from " + mention + ".",
		Color:       bot.ColorGreen,
	}
	e.AddField("Moderator", inv.Event.Author.Mention(), true)
	inv.ReplyEmbed(ctx, e)
	return nil
}

func (m *Moderation) purge(ctx context.Context, inv *registry.Invocation) error {
	amount := defaultPurgeCount
	if arg := inv.Arg(0); arg != "" {
		n, err := strconv.Atoi(arg)
		if err != nil {
			return apperr.Usage("Please specify a number between 1 and %d.", constants.MaxPurgeCount)
		}
		amount = n
	}
	if amount < 1 || amount > constants.MaxPurgeCount {
		return apperr.Usage("Please specify a number between 1 and %d.", constants.MaxPurgeCount)
	}

	// One extra for the command message itself; slash commands have none.
	extra := 1
	if inv.Event.Slash {
		extra = 0
	}
	deleted, err := inv.Gateway.DeleteMessages(ctx, inv.Event.ChannelID, amount+extra)
	if err != nil {
		return bot.AsUserError(err, "delete messages")
	}
	if deleted -= extra; deleted < 0 {
		deleted = 0
	}
	inv.Logger.WithField("deleted", deleted).Info("messages-purged")
	inv.ReplyEmbed(ctx, &bot.Embed{
		Title:       "✅ Messages Purged",
		Description: fmt.Sprintf("Deleted %d message(s).", deleted),
		Color:       bot.ColorGreen,
	})
	return nil
}

func (m *Moderation) warn(ctx context.Context, inv *registry.Invocation) error {
	member, mention, err := m.target(inv, "warn")
	if err != nil {
		return err
	}
	reason := orDefault(restAfter(inv, 1), noReason)
	ev := inv.Event
	total, err := m.deps.Warnings.Add(ctx, member.GuildID, member.UserID, store.Warning{
		Reason:        reason,
		ModeratorID:   ev.Author.ID,
		ModeratorName: ev.Author.Display(),
		Timestamp:     m.deps.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("save warning: %w", err)
	}

	e := &bot.Embed{
		Title:       "⚠️ Warning Issued",
		Description: mention + " has been warned.",
		Color:       bot.ColorOrange,
	}
	e.AddField("Reason", reason, false)
	e.AddField("Total Warnings", strconv.Itoa(total), true)
	e.AddField("Moderator", ev.Author.Mention(), true)
	inv.ReplyEmbed(ctx, e)

	dm := &bot.Embed{
		Title:       "⚠️ You have been warned",
		Description: "You received a warning in " + orDefault(ev.Guild.Name, "a server"),
		Color:       bot.ColorOrange,
	}
	dm.AddField("Reason", reason, false)
	dm.AddField("Total Warnings", strconv.Itoa(total), true)
	if _, err := inv.Gateway.SendDirect(ctx, member.UserID, bot.EmbedMessage(dm)); err != nil {
		inv.Logger.WithError(err).Debug("warn-dm-failed")
	}
	return nil
}

func (m *Moderation) warnings(ctx context.Context, inv *registry.Invocation) error {
	u, err := targetOrSelf(inv, 0)
	if err != nil {
		return err
	}
	list, err := m.deps.Warnings.List(ctx, inv.Event.Guild.ID, u.ID)
	if err != nil {
		return fmt.Errorf("load warnings: %w", err)
	}
	if len(list) == 0 {
		inv.ReplyText(ctx, fmt.Sprintf("✅ %s has no warnings.", u.Mention()))
		return nil
	}

	e := &bot.Embed{
		Title:       "⚠️ Warnings for " + orDefault(u.Display(), u.Mention()),
		Description: fmt.Sprintf("Total: %d", len(list)),
		Color:       bot.ColorOrange,
	}
	recent := list
	if len(recent) > constants.ListedWarnings {
		recent = recent[len(recent)-constants.ListedWarnings:]
	}
	for i, w := range recent {
		e.AddField(
			fmt.Sprintf("Warning #%d", i+1),
			fmt.Sprintf("**Reason:** %s\n**By:** %s\n**Date:** %s",
				orDefault(w.Reason, "N/A"),
				orDefault(w.ModeratorName, "Unknown"),
				w.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC")),
			false,
		)
	}
	inv.ReplyEmbed(ctx, e)
	return nil
}
