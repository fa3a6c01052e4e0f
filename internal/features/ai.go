package features

import (
	"context"
	"strings"
	"time"

	"github.com/keepmind9/guildbot/internal/ai"
	"github.com/keepmind9/guildbot/internal/apperr"
	"github.com/keepmind9/guildbot/internal/bot"
	"github.com/keepmind9/guildbot/internal/event"
	"github.com/keepmind9/guildbot/internal/registry"
	"github.com/keepmind9/guildbot/pkg/constants"
	"github.com/sirupsen/logrus"
)

var (
	questionWords = []string{"who", "what", "when", "where", "why", "how"}
	askPhrases    = []string{"tell me about", "explain", "what is", "who is"}
	emotionWords  = []string{"angry", "happy", "sad", "excited", "bored", "tired"}
	feelingOpens  = []string{"i am ", "i'm ", "i feel "}
	praiseWords   = []string{"fabulous", "amazing", "great", "awesome"}
)

// NeedsAIReply reports whether a plain message looks like something worth
// answering: a question, a feeling, or a longer unpunctuated statement.
func NeedsAIReply(ev event.Event) bool {
	content := strings.TrimSpace(ev.Content())
	if ev.Kind != event.MessageCreated || content == "" {
		return false
	}
	lower := strings.ToLower(content)
	fields := strings.Fields(lower)
	for _, f := range fields {
		for _, w := range questionWords {
			if f == w {
				return true
			}
		}
	}
	if strings.Contains(content, "?") {
		return true
	}
	if containsAny(lower, askPhrases) || containsAny(lower, emotionWords) || containsAny(lower, praiseWords) {
		return true
	}
	for _, p := range feelingOpens {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return len(fields) > 3 && !strings.HasSuffix(content, ".") && !strings.HasSuffix(content, "!")
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// AI answers questions with the chat completion client.
type AI struct {
	deps *Deps
}

func (m *AI) Name() string { return ModuleAI }

func (m *AI) Registrations() []registry.Registration {
	return []registry.Registration{
		{
			Name:          "ai.ask",
			Trigger:       registry.Command("ask", "question", "ai"),
			Class:         registry.Responder,
			Cooldown:      registry.Cooldown{Max: 1, Window: 5 * time.Second},
			Description:   "Ask the AI a question",
			Usage:         "ask <question>",
			Slash:         true,
			SlashArgument: "question",
			Handler:       registry.HandlerFunc(m.ask),
		},
		{
			Name:        "ai.model",
			Trigger:     registry.Command("model"),
			Class:       registry.Responder,
			Description: "Change or view the current AI model",
			Usage:       "model [name]",
			Handler:     registry.HandlerFunc(m.model),
		},
		{
			Name:        "ai.checkkey",
			Trigger:     registry.Command("checkkey"),
			Class:       registry.Responder,
			Description: "Check whether the AI API key works",
			Usage:       "checkkey",
			Handler:     registry.HandlerFunc(m.checkKey),
		},
		{
			Name:    "ai.auto",
			Trigger: registry.Predicate(NeedsAIReply),
			Class:   registry.Responder,
			Handler: registry.HandlerFunc(m.auto),
		},
	}
}

func (m *AI) client() (*ai.Client, error) {
	if m.deps.AI == nil || !m.deps.AI.Configured() {
		return nil, apperr.Configuration(
			"Groq API key is not properly configured.",
			"Use `"+m.deps.prefix()+"checkkey` for details.",
		)
	}
	return m.deps.AI, nil
}

func (m *AI) ask(ctx context.Context, inv *registry.Invocation) error {
	if inv.Rest == "" {
		return missingArgument(m.deps, inv)
	}
	c, err := m.client()
	if err != nil {
		return err
	}
	ans, err := c.Ask(ctx, inv.Rest)
	if err != nil {
		return err
	}
	inv.ReplyEmbed(ctx, &bot.Embed{
		Title:       "🤖 AI Response",
		Description: clip(ans.Text, constants.MaxDiscordEmbedDescription),
		Color:       bot.ColorGreen,
		Footer:      "Model: " + ans.Model + " | Asked by " + inv.Event.Author.Display(),
	})
	return nil
}

func (m *AI) model(ctx context.Context, inv *registry.Invocation) error {
	if m.deps.AI == nil {
		_, err := m.client()
		return err
	}
	if name := inv.Arg(0); name != "" {
		if err := m.deps.AI.SetModel(name); err != nil {
			return err
		}
		inv.ReplyEmbed(ctx, &bot.Embed{
			Title:       "🔧 Model Changed",
			Description: "Switched to: **" + name + "**",
			Color:       bot.ColorGreen,
		})
		return nil
	}
	inv.ReplyEmbed(ctx, &bot.Embed{
		Title:       "🔧 Current Model",
		Description: "**Current:** " + m.deps.AI.Model() + "\n\n**Available:**\n" + ai.Bullets(m.deps.AI.Models()),
		Color:       bot.ColorBlue,
	})
	return nil
}

func (m *AI) checkKey(ctx context.Context, inv *registry.Invocation) error {
	status := ai.KeyStatus{Detail: "No API key is configured."}
	if m.deps.AI != nil {
		status = m.deps.AI.CheckKey(ctx)
	}
	e := &bot.Embed{Title: "🔑 Groq API Key Status", Color: bot.ColorBlue}
	if status.Valid {
		e.Description = "✅ " + status.Detail + " (Model: " + status.Model + ")"
		e.AddField("Available Models", ai.Bullets(m.deps.AI.Models()), false)
		e.AddField("Current Model", m.deps.AI.Model(), true)
	} else {
		e.Color = bot.ColorRed
		e.Description = status.Detail
		e.AddField("How to fix:",
			"1. Get an API key from https://console.groq.com/keys\n"+
				"2. Add it to your .env file: `GROQ_API_KEY=your_key_here`\n"+
				"3. Restart your bot",
			false)
	}
	inv.ReplyEmbed(ctx, e)
	return nil
}

// auto answers plain messages. Failures stay silent in the channel.
func (m *AI) auto(ctx context.Context, inv *registry.Invocation) error {
	if m.deps.AI == nil || !m.deps.AI.Configured() {
		return nil
	}
	ans, err := m.deps.AI.Ask(ctx, inv.Event.Content())
	if err != nil {
		inv.Logger.WithFields(logrus.Fields{
			"error": err,
			"kind":  apperr.KindOf(err).String(),
		}).Warn("ai-auto-reply-failed")
		return nil
	}
	if ans.Text == "" || strings.HasPrefix(ans.Text, "❌") {
		return nil
	}
	inv.ReplyEmbed(ctx, &bot.Embed{
		Description: clip(ans.Text, constants.MaxDiscordEmbedDescription),
		Color:       bot.ColorBlue,
	})
	return nil
}
