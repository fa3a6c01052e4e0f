// Package bot connects the dispatcher to chat platforms.
//
// Every platform adapter plays two roles:
//
//   - EventSource: it owns the gateway connection and turns platform
//     callbacks into event.Event values delivered to a sink, together with
//     connection lifecycle signals.
//   - Gateway: it performs outbound calls (send, react, edit, delete,
//     kick, ban, timeout) and reports failures as *APIError values with a
//     Kind the caller can act on.
//
// # Supported Platforms
//
//   - Discord: WebSocket gateway via discordgo, slash commands mirrored
//     from registered commands
//   - Telegram: long polling via telegram-bot-api; reactions and bulk
//     deletes are reported as unsupported
//
// # Usage
//
//	discordBot := bot.NewDiscordBot(token, bot.DiscordOptions{})
//	err := discordBot.Start(ctx, func(ev event.Event) {
//	    dispatcher.Dispatch(ctx, ev)
//	}, func(state bot.Lifecycle) {})
//	gw := bot.WithRetry(discordBot, bot.RetryPolicy{})
//	gw.SendMessage(ctx, channelID, bot.Text("Hello, world!"))
//	discordBot.Stop()
//
// # Thread Safety
//
// Adapters are safe for concurrent use. The sink may be called from the
// platform library's goroutines; callers that need ordering should funnel
// events through a single channel.
package bot

import (
	"context"
	"time"

	"github.com/keepmind9/guildbot/internal/event"
)

// Lifecycle is a connection state change.
type Lifecycle int

const (
	Connected Lifecycle = iota + 1
	Disconnected
	Reconnecting
)

func (l Lifecycle) String() string {
	switch l {
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// EventSource is the inbound half of a platform adapter.
type EventSource interface {
	// Start connects and begins delivering events. It returns once the
	// connection is opened; delivery continues in the background.
	Start(ctx context.Context, sink func(event.Event), lifecycle func(Lifecycle)) error
	Stop() error
}

// Gateway is the outbound capability set handed to handlers and the scheduler.
type Gateway interface {
	SendMessage(ctx context.Context, channelID string, msg Message) (MessageRef, error)
	// SendDirect opens (or reuses) a direct channel with the user.
	SendDirect(ctx context.Context, userID string, msg Message) (MessageRef, error)
	// Reply answers the event's origin, using the interaction follow-up for
	// slash commands.
	Reply(ctx context.Context, origin event.Origin, msg Message) (MessageRef, error)
	AddReaction(ctx context.Context, ref MessageRef, emoji string) error
	EditMessage(ctx context.Context, ref MessageRef, msg Message) error
	// DeleteMessages removes up to count recent messages and returns how
	// many were deleted.
	DeleteMessages(ctx context.Context, channelID string, count int) (int, error)
	Kick(ctx context.Context, member Member, reason string) error
	Ban(ctx context.Context, member Member, reason string) error
	Timeout(ctx context.Context, member Member, d time.Duration, reason string) error
	RemoveTimeout(ctx context.Context, member Member, reason string) error
	Latency() time.Duration
}

// Platform is a full adapter.
type Platform interface {
	EventSource
	Gateway
	Name() string
}

// CommandSpec describes a command mirrored to a structured command surface.
type CommandSpec struct {
	Name        string
	Description string
	// Argument is the name of the single free-text option, if any.
	Argument     string
	ArgumentHelp string
}

// CommandSyncer is implemented by platforms with slash commands.
type CommandSyncer interface {
	SyncCommands(ctx context.Context, guildID string, cmds []CommandSpec) error
}

// MessageRef points at a sent or received message.
type MessageRef struct {
	ChannelID string
	MessageID string
}

// Member points at a guild member.
type Member struct {
	GuildID string
	UserID  string
}

// Message is outbound content: text, an embed, or both.
type Message struct {
	Content string
	Embed   *Embed
}

// Text is shorthand for a plain-text Message.
func Text(s string) Message {
	return Message{Content: s}
}

// EmbedMessage is shorthand for an embed-only Message.
func EmbedMessage(e *Embed) Message {
	return Message{Embed: e}
}

// Embed is a rich card. Platforms without embeds render it as text.
type Embed struct {
	Title        string
	Description  string
	URL          string
	Color        int
	Fields       []EmbedField
	Footer       string
	ThumbnailURL string
	ImageURL     string
	Timestamp    time.Time
}

// EmbedField is one name/value row of an Embed.
type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// AddField appends a field and returns the embed for chaining.
func (e *Embed) AddField(name, value string, inline bool) *Embed {
	e.Fields = append(e.Fields, EmbedField{Name: name, Value: value, Inline: inline})
	return e
}

// Colors used across features.
const (
	ColorBlue   = 0x3498db
	ColorGreen  = 0x2ecc71
	ColorOrange = 0xe67e22
	ColorRed    = 0xe74c3c
	ColorGold   = 0xf1c40f
	ColorPurple = 0x9b59b6
)
