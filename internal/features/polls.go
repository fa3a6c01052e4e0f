package features

import (
	"context"
	"fmt"
	"strings"

	"github.com/keepmind9/guildbot/internal/apperr"
	"github.com/keepmind9/guildbot/internal/bot"
	"github.com/keepmind9/guildbot/internal/event"
	"github.com/keepmind9/guildbot/internal/registry"
	"github.com/keepmind9/guildbot/internal/store"
)

const maxPollOptions = 10

var (
	numberEmojis = []string{"1️⃣", "2️⃣", "3️⃣", "4️⃣", "5️⃣", "6️⃣", "7️⃣", "8️⃣", "9️⃣", "🔟"}
	yesNoEmojis  = []string{"✅", "❌"}
)

// Polls posts reaction polls and counts the votes.
type Polls struct {
	deps *Deps
}

func (m *Polls) Name() string { return ModulePolls }

func (m *Polls) Registrations() []registry.Registration {
	return []registry.Registration{
		{
			Name:         "polls.poll",
			Trigger:      registry.Command("poll", "vote"),
			Class:        registry.Responder,
			Requirements: registry.Requirements{Guild: true},
			Description:  "Create a poll",
			Usage:        `poll "question" [option1 option2 ...]`,
			Handler:      registry.HandlerFunc(m.poll),
		},
		{
			Name:          "polls.quickpoll",
			Trigger:       registry.Command("quickpoll", "qp"),
			Class:         registry.Responder,
			Requirements:  registry.Requirements{Guild: true},
			Description:   "Create a quick yes/no poll",
			Usage:         "quickpoll <question>",
			Slash:         true,
			SlashArgument: "question",
			Handler:       registry.HandlerFunc(m.quickPoll),
		},
		{
			Name:         "polls.results",
			Trigger:      registry.Command("pollresults", "results"),
			Class:        registry.Responder,
			Requirements: registry.Requirements{Guild: true},
			Description:  "Show the votes of a poll",
			Usage:        "pollresults <message_id>",
			Handler:      registry.HandlerFunc(m.results),
		},
		{
			Name:    "polls.count",
			Trigger: registry.Events(event.ReactionAdded),
			Class:   registry.Observer,
			Handler: registry.HandlerFunc(m.count),
		},
	}
}

func (m *Polls) poll(ctx context.Context, inv *registry.Invocation) error {
	question := inv.Arg(0)
	if question == "" {
		return missingArgument(m.deps, inv)
	}
	options := inv.Args[1:]

	e := &bot.Embed{
		Title:       "📊 Poll: " + question,
		Description: "React to vote!",
		Color:       bot.ColorBlue,
	}
	var emojis []string
	switch {
	case len(options) == 0:
		options = []string{"Yes", "No"}
		emojis = yesNoEmojis
		e.AddField("✅ Yes", "React with ✅", true)
		e.AddField("❌ No", "React with ❌", true)
	case len(options) < 2:
		return apperr.Usage("Please provide at least 2 options!")
	case len(options) > maxPollOptions:
		return apperr.Usage("Maximum %d options allowed!", maxPollOptions)
	default:
		emojis = numberEmojis[:len(options)]
		for i, opt := range options {
			e.AddField(emojis[i]+" "+opt, "React with "+emojis[i], false)
		}
		e.Footer = "Poll created by " + inv.Event.Author.Display()
	}
	return m.post(ctx, inv, question, options, emojis, e)
}

func (m *Polls) quickPoll(ctx context.Context, inv *registry.Invocation) error {
	if inv.Rest == "" {
		return missingArgument(m.deps, inv)
	}
	e := &bot.Embed{
		Title:       "📊 Quick Poll",
		Description: "**" + inv.Rest + "**",
		Color:       bot.ColorGreen,
		Footer:      "Poll by " + inv.Event.Author.Display(),
	}
	e.AddField("✅ Yes", "React with ✅", true)
	e.AddField("❌ No", "React with ❌", true)
	return m.post(ctx, inv, inv.Rest, []string{"Yes", "No"}, yesNoEmojis, e)
}

// post sends the poll, seeds its reactions and stores it for vote counting.
func (m *Polls) post(ctx context.Context, inv *registry.Invocation, question string, options, emojis []string, e *bot.Embed) error {
	ref, ok := inv.ReplyEmbed(ctx, e)
	if !ok {
		return nil
	}
	for _, emoji := range emojis {
		if err := inv.Gateway.AddReaction(ctx, ref, emoji); err != nil {
			inv.Logger.WithError(err).WithField("emoji", emoji).Warn("poll-reaction-failed")
			break
		}
	}
	ev := inv.Event
	err := m.deps.Polls.Create(ctx, store.Poll{
		GuildID:   ev.Guild.ID,
		ChannelID: ref.ChannelID,
		MessageID: ref.MessageID,
		AuthorID:  ev.Author.ID,
		Question:  question,
		Options:   options,
		Emojis:    emojis,
		CreatedAt: m.deps.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("save poll: %w", err)
	}
	return nil
}

func (m *Polls) count(ctx context.Context, inv *registry.Invocation) error {
	ev := inv.Event
	if !ev.InGuild() || ev.MessageID == "" || ev.Emoji == "" {
		return nil
	}
	found, err := m.deps.Polls.Get(ctx, ev.Guild.ID, ev.MessageID)
	if err != nil {
		return err
	}
	poll, ok := found.Get()
	if !ok {
		return nil
	}
	option := indexOf(poll.Emojis, ev.Emoji)
	if option < 0 {
		return nil
	}
	counted, err := m.deps.Polls.VoteOnce(ctx, ev.Guild.ID, ev.MessageID, ev.Author.ID, option)
	if err != nil {
		return err
	}
	if counted {
		inv.Logger.WithField("option", option).Debug("poll-vote-counted")
	}
	return nil
}

func (m *Polls) results(ctx context.Context, inv *registry.Invocation) error {
	id := inv.Arg(0)
	if id == "" {
		return missingArgument(m.deps, inv)
	}
	found, err := m.deps.Polls.Get(ctx, inv.Event.Guild.ID, id)
	if err != nil {
		return fmt.Errorf("load poll: %w", err)
	}
	poll, ok := found.Get()
	if !ok {
		return apperr.Usage("No poll found for message %s.", id)
	}
	tally, err := m.deps.Polls.Tally(ctx, poll.GuildID, poll.MessageID)
	if err != nil {
		return fmt.Errorf("tally poll: %w", err)
	}

	var total int64
	for _, n := range tally {
		total += n
	}
	e := &bot.Embed{
		Title:       "📊 Results: " + poll.Question,
		Description: fmt.Sprintf("Total votes: %d", total),
		Color:       bot.ColorBlue,
	}
	for i, opt := range poll.Options {
		n := tally[i]
		emoji := ""
		if i < len(poll.Emojis) {
			emoji = poll.Emojis[i] + " "
		}
		e.AddField(fmt.Sprintf("%s%s (%d)", emoji, opt, n), voteBar(n, total), false)
	}
	inv.ReplyEmbed(ctx, e)
	return nil
}

// voteBar draws a 20-cell bar for n out of total votes.
func voteBar(n, total int64) string {
	if n == 0 || total == 0 {
		return "No votes yet"
	}
	cells := int(n * 20 / total)
	pct := n * 100 / total
	return fmt.Sprintf("%s %d%%", strings.Repeat("█", cells), pct)
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
