package features

import (
	"context"
	"regexp"
	"strings"

	"github.com/keepmind9/guildbot/internal/apperr"
	"github.com/keepmind9/guildbot/internal/bot"
	"github.com/keepmind9/guildbot/internal/event"
	"github.com/keepmind9/guildbot/internal/registry"
	"github.com/keepmind9/guildbot/pkg/constants"
)

type reactionRule struct {
	pattern *regexp.Regexp
	emojis  []string
}

func reaction(keyword string, emojis ...string) reactionRule {
	return reactionRule{
		pattern: regexp.MustCompile(`\b` + regexp.QuoteMeta(keyword) + `\b`),
		emojis:  emojis,
	}
}

// reactionRules are checked in order; earlier keywords win the three slots.
var reactionRules = []reactionRule{
	reaction("wow", "😲", "🤯", "😱"),
	reaction("amazing", "✨", "🌟", "💫"),
	reaction("awesome", "🔥", "💯", "⭐"),
	reaction("great", "👍", "👏", "🎉"),
	reaction("good", "👍", "😊", "✅"),
	reaction("nice", "😊", "👍", "👌"),
	reaction("cool", "😎", "👌", "✨"),

	reaction("congrats", "🎉", "🎊", "👏"),
	reaction("congratulations", "🎉", "🎊", "🏆"),
	reaction("welcome", "👋", "🎉", "🎊"),
	reaction("thanks", "🙏", "💙", "😊"),
	reaction("thank you", "🙏", "💙"),

	reaction("love", "❤️", "💕", "💖"),
	reaction("hate", "😡", "👎"),
	reaction("happy", "😊", "😄", "😃"),
	reaction("sad", "😢", "😔", "💔"),
	reaction("excited", "🎉", "🔥", "✨"),
	reaction("proud", "👏", "🏆", "🌟"),

	reaction("why", "🤔", "💭"),
	reaction("how", "🤔", "💡"),
	reaction("what", "🤔", "❓"),
	reaction("when", "🤔", "📅"),
	reaction("who", "🤔", "👤"),

	reaction("python", "🐍", "💻"),
	reaction("code", "💻", "⌨️"),
	reaction("programming", "💻", "🔧"),
	reaction("bug", "🐛", "🔧"),
	reaction("error", "❌", "⚠️"),
	reaction("fixed", "✅", "🔧"),
	reaction("working", "✅", "👍"),

	reaction("lol", "😂", "🤣"),
	reaction("haha", "😂", "😄"),
	reaction("funny", "😂", "🤣"),
	reaction("joke", "😆", "🎭"),
}

const (
	imageReaction    = "🖼️"
	linkReaction     = "🔗"
	questionReaction = "❓"
	maxQuestionLen   = 100
)

// Reactions adds emoji reactions to ordinary messages.
type Reactions struct {
	deps *Deps
}

func (m *Reactions) Name() string { return ModuleReactions }

func (m *Reactions) Registrations() []registry.Registration {
	return []registry.Registration{
		{
			Name:    "reactions.auto",
			Trigger: registry.Events(event.MessageCreated),
			Class:   registry.Observer,
			Handler: registry.HandlerFunc(m.auto),
		},
		{
			Name:         "reactions.react",
			Trigger:      registry.Command("react", "addreact"),
			Class:        registry.Responder,
			Requirements: registry.Requirements{Guild: true, Permissions: event.PermManageMessages},
			Description:  "Add a reaction to a message",
			Usage:        "react <emoji> <message_id>",
			Handler:      registry.HandlerFunc(m.react),
		},
	}
}

// AutoReactions returns the emojis to add to a message, at most
// MaxAutoReactions and without duplicates. pick chooses among a keyword's
// emojis.
func AutoReactions(ev event.Event, pick func(n int) int) []string {
	text := strings.ToLower(ev.Content())
	var out []string
	seen := make(map[string]bool)
	for _, rule := range reactionRules {
		if !rule.pattern.MatchString(text) {
			continue
		}
		emoji := rule.emojis[pick(len(rule.emojis))]
		if seen[emoji] {
			continue
		}
		seen[emoji] = true
		out = append(out, emoji)
		if len(out) >= constants.MaxAutoReactions {
			return out
		}
	}
	if len(out) > 0 {
		return out
	}

	for _, a := range ev.Attachments {
		if a.IsImage() {
			out = append(out, imageReaction)
			break
		}
	}
	if strings.Contains(text, "http://") || strings.Contains(text, "https://") {
		out = append(out, linkReaction)
	}
	if strings.HasSuffix(text, "?") && len(text) < maxQuestionLen {
		out = append(out, questionReaction)
	}
	return out
}

func (m *Reactions) auto(ctx context.Context, inv *registry.Invocation) error {
	ev := inv.Event
	if inv.Prefixed || !ev.InGuild() || ev.MessageID == "" {
		return nil
	}
	ref := bot.MessageRef{ChannelID: ev.ChannelID, MessageID: ev.MessageID}
	for _, emoji := range AutoReactions(ev, m.deps.pick) {
		if err := inv.Gateway.AddReaction(ctx, ref, emoji); err != nil {
			if bot.Permanent(err) {
				inv.Logger.WithError(err).Debug("auto-reaction-not-allowed")
				return nil
			}
			inv.Logger.WithError(err).WithField("emoji", emoji).Warn("auto-reaction-failed")
		}
	}
	return nil
}

func (m *Reactions) react(ctx context.Context, inv *registry.Invocation) error {
	emoji := inv.Arg(0)
	if emoji == "" {
		return missingArgument(m.deps, inv)
	}
	messageID := inv.Arg(1)
	if messageID == "" {
		return apperr.Usage("Provide the ID of the message to react to!")
	}
	ref := bot.MessageRef{ChannelID: inv.Event.ChannelID, MessageID: messageID}
	if err := inv.Gateway.AddReaction(ctx, ref, emoji); err != nil {
		if bot.KindOf(err) == bot.ErrNotFound {
			return apperr.Usage("Message not found.")
		}
		return apperr.Usage("Couldn't add reaction.")
	}
	inv.ReplyText(ctx, "✅ Added "+emoji+" reaction!")
	return nil
}
