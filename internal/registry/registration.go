package registry

import (
	"context"
	"strings"
	"time"

	"github.com/keepmind9/guildbot/internal/bot"
	"github.com/keepmind9/guildbot/internal/event"
	"github.com/sirupsen/logrus"
)

// Class says whether a handler competes for an event or just watches it.
type Class int

const (
	// Responder handlers are chosen by command or keyword match; at most
	// one runs per event.
	Responder Class = iota + 1
	// Observer handlers run for every event of their kinds.
	Observer
)

func (c Class) String() string {
	switch c {
	case Responder:
		return "responder"
	case Observer:
		return "observer"
	default:
		return "unknown"
	}
}

// TriggerKind tags the Trigger variant.
type TriggerKind int

const (
	TriggerCommand TriggerKind = iota + 1
	TriggerKeywords
	TriggerEvents
)

// Trigger decides which events reach a handler.
type Trigger struct {
	Kind TriggerKind

	// Command
	Name    string
	Aliases []string

	// Keywords. A nil Words with a Predicate matches with length zero.
	Words     []string
	Predicate func(ev event.Event) bool

	// Events
	Events []event.Kind
}

// Command triggers on "<prefix>name" or any alias.
func Command(name string, aliases ...string) Trigger {
	return Trigger{Kind: TriggerCommand, Name: name, Aliases: aliases}
}

// Keywords triggers when the message contains any of words.
func Keywords(words ...string) Trigger {
	return Trigger{Kind: TriggerKeywords, Words: words}
}

// Predicate triggers when fn reports true; it loses to any real keyword.
func Predicate(fn func(ev event.Event) bool) Trigger {
	return Trigger{Kind: TriggerKeywords, Predicate: fn}
}

// Events triggers on every event of the given kinds.
func Events(kinds ...event.Kind) Trigger {
	return Trigger{Kind: TriggerEvents, Events: kinds}
}

func (t Trigger) names() []string {
	out := make([]string, 0, 1+len(t.Aliases))
	out = append(out, strings.ToLower(t.Name))
	for _, a := range t.Aliases {
		out = append(out, strings.ToLower(a))
	}
	return out
}

// Cooldown is a per-user rate limit. A zero Cooldown never limits.
type Cooldown struct {
	Max    int
	Window time.Duration
}

// Requirements are checked before a responder runs.
type Requirements struct {
	Guild       bool
	Owner       bool
	Permissions int64
}

// Handler runs one invocation.
type Handler interface {
	Handle(ctx context.Context, inv *Invocation) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, inv *Invocation) error

func (f HandlerFunc) Handle(ctx context.Context, inv *Invocation) error {
	return f(ctx, inv)
}

// Registration binds a handler to its trigger and policies.
type Registration struct {
	Name         string
	Module       string
	Trigger      Trigger
	Class        Class
	Priority     int
	Cooldown     Cooldown
	Requirements Requirements
	// Positive keyword rules are suppressed by the denylist.
	Positive    bool
	Description string
	Usage       string
	// Slash mirrors the command to the platform's command surface.
	// SlashArgument names its single free-text option, if any.
	Slash         bool
	SlashArgument string
	Handler       Handler
}

func (r *Registration) validate() error {
	switch {
	case r.Name == "":
		return &InvalidError{Name: r.Name, Reason: "empty name"}
	case r.Handler == nil:
		return &InvalidError{Name: r.Name, Reason: "nil handler"}
	}
	switch r.Trigger.Kind {
	case TriggerCommand:
		if r.Trigger.Name == "" {
			return &InvalidError{Name: r.Name, Reason: "command trigger without a name"}
		}
		if r.Class != Responder {
			return &InvalidError{Name: r.Name, Reason: "command triggers need the responder class"}
		}
	case TriggerKeywords:
		if len(r.Trigger.Words) == 0 && r.Trigger.Predicate == nil {
			return &InvalidError{Name: r.Name, Reason: "keyword trigger without words or predicate"}
		}
		if r.Class != Responder {
			return &InvalidError{Name: r.Name, Reason: "keyword triggers need the responder class"}
		}
	case TriggerEvents:
		if len(r.Trigger.Events) == 0 {
			return &InvalidError{Name: r.Name, Reason: "event trigger without kinds"}
		}
		if r.Class != Observer {
			return &InvalidError{Name: r.Name, Reason: "event triggers need the observer class"}
		}
	default:
		return &InvalidError{Name: r.Name, Reason: "unknown trigger"}
	}
	return nil
}

// Invocation is one run of a handler for one event.
type Invocation struct {
	Event event.Event
	// Name of the registration being run.
	Handler string

	// Command is the name or alias as typed, lower-cased.
	Command string
	Args    []string
	// Rest is the text after the command word, trimmed.
	Rest string

	// Keyword is the matched keyword for keyword responders.
	Keyword string

	// CommandMatched tells observers the event was consumed by a command.
	CommandMatched bool
	// Prefixed is set when the message began with the command prefix or
	// arrived as a slash command, whether or not a command matched.
	Prefixed bool

	Gateway  bot.Gateway
	Snapshot *Snapshot
	Logger   *logrus.Entry
}

// Reply answers the event. Send failures are logged and swallowed; the
// second return reports success.
func (inv *Invocation) Reply(ctx context.Context, msg bot.Message) (bot.MessageRef, bool) {
	ref, err := inv.Gateway.Reply(ctx, inv.Event.Origin, msg)
	if err != nil {
		inv.Logger.WithFields(logrus.Fields{
			"error": err,
			"kind":  bot.KindOf(err).String(),
		}).Warn("reply-failed")
		return bot.MessageRef{}, false
	}
	return ref, true
}

// ReplyText is Reply with plain text.
func (inv *Invocation) ReplyText(ctx context.Context, text string) (bot.MessageRef, bool) {
	return inv.Reply(ctx, bot.Text(text))
}

// ReplyEmbed is Reply with an embed.
func (inv *Invocation) ReplyEmbed(ctx context.Context, e *bot.Embed) (bot.MessageRef, bool) {
	return inv.Reply(ctx, bot.EmbedMessage(e))
}

// Arg returns the i-th argument or "".
func (inv *Invocation) Arg(i int) string {
	if i < 0 || i >= len(inv.Args) {
		return ""
	}
	return inv.Args[i]
}
