package features

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/keepmind9/guildbot/internal/apperr"
	"github.com/keepmind9/guildbot/internal/bot"
	"github.com/keepmind9/guildbot/internal/duration"
	"github.com/keepmind9/guildbot/internal/registry"
	"github.com/keepmind9/guildbot/internal/store"
	"github.com/keepmind9/guildbot/pkg/constants"
)

const reminderTimeLayout = "2006-01-02 15:04:05 UTC"

// Reminders lets users schedule direct-message reminders. Delivery is done
// by the scheduler.
type Reminders struct {
	deps *Deps
}

func (m *Reminders) Name() string { return ModuleReminders }

func (m *Reminders) Registrations() []registry.Registration {
	return []registry.Registration{
		{
			Name:          "reminders.remind",
			Trigger:       registry.Command("remind", "reminder", "timer"),
			Class:         registry.Responder,
			Description:   "Set a reminder",
			Usage:         "remind <duration> <message>",
			Slash:         true,
			SlashArgument: "when_and_what",
			Handler:       registry.HandlerFunc(m.remind),
		},
		{
			Name:        "reminders.list",
			Trigger:     registry.Command("reminders", "myreminders"),
			Class:       registry.Responder,
			Description: "View your active reminders",
			Usage:       "reminders",
			Handler:     registry.HandlerFunc(m.list),
		},
	}
}

func invalidReminderDuration(prefix string) error {
	return apperr.Usage("Invalid duration format. Use: 1h, 30m, 5s, etc.\nExample: `%sremind 1h 30m check email`", prefix)
}

// splitDuration takes the longest run of leading arguments that parses as a
// duration, leaving at least one word for the message.
func splitDuration(inv *registry.Invocation) (string, string, bool) {
	for n := len(inv.Args) - 1; n >= 1; n-- {
		spec := strings.Join(inv.Args[:n], " ")
		if _, err := duration.Parse(spec); err == nil {
			return spec, restAfter(inv, n), true
		}
	}
	return "", "", false
}

func (m *Reminders) remind(ctx context.Context, inv *registry.Invocation) error {
	if len(inv.Args) < 2 {
		return missingArgument(m.deps, inv)
	}
	spec, body, ok := splitDuration(inv)
	if !ok {
		return invalidReminderDuration(m.deps.prefix())
	}
	d, _ := duration.Parse(spec)
	if d > constants.MaxReminderDuration {
		return apperr.Usage("Maximum reminder duration is 30 days.")
	}

	ev := inv.Event
	now := m.deps.now()
	rem := store.Reminder{
		OwnerID:     ev.Author.ID,
		GuildID:     ev.Guild.ID,
		Destination: store.Destination{Kind: store.DestinationDM, ID: ev.Author.ID},
		Body:        body,
		DueAt:       now.Add(d),
		CreatedAt:   now,
	}
	if ev.InGuild() {
		rem.FallbackChannelID = ev.ChannelID
	}
	rem, err := m.deps.Reminders.Add(ctx, rem)
	if err != nil {
		return fmt.Errorf("save reminder: %w", err)
	}
	inv.Logger.WithField("reminder_id", rem.ID).Info("reminder-created")

	e := &bot.Embed{
		Title:       "✅ Reminder Set",
		Description: fmt.Sprintf("I'll remind you in %s", duration.Format(d)),
		Color:       bot.ColorGreen,
	}
	e.AddField("Reminder", body, false)
	e.AddField("Time", rem.DueAt.UTC().Format(reminderTimeLayout), false)
	inv.ReplyEmbed(ctx, e)
	return nil
}

func (m *Reminders) list(ctx context.Context, inv *registry.Invocation) error {
	pending, err := m.deps.Reminders.ListByOwner(ctx, inv.Event.Author.ID)
	if err != nil {
		return fmt.Errorf("list reminders: %w", err)
	}
	if len(pending) == 0 {
		inv.ReplyText(ctx, "✅ You have no active reminders.")
		return nil
	}

	e := &bot.Embed{
		Title:       "⏰ Your Active Reminders",
		Description: fmt.Sprintf("You have %d active reminder(s)", len(pending)),
		Color:       bot.ColorBlue,
	}
	if len(pending) > constants.ListedReminders {
		pending = pending[:constants.ListedReminders]
	}
	for i, rem := range pending {
		e.AddField(
			fmt.Sprintf("Reminder #%d", i+1),
			fmt.Sprintf("**Message:** %s\n**Time:** %s (%s)",
				rem.Body,
				rem.DueAt.UTC().Format(reminderTimeLayout),
				humanize.RelTime(rem.DueAt, m.deps.now(), "ago", "from now")),
			false,
		)
	}
	inv.ReplyEmbed(ctx, e)
	return nil
}
