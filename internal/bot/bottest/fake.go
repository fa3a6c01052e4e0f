// Package bottest provides an in-memory bot.Gateway for tests.
package bottest

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/keepmind9/guildbot/internal/bot"
	"github.com/keepmind9/guildbot/internal/event"
)

// Sent is one recorded outbound message.
type Sent struct {
	ChannelID string
	UserID    string
	Origin    event.Origin
	Message   bot.Message
}

// Call is one recorded non-message call.
type Call struct {
	Op       string
	Member   bot.Member
	Ref      bot.MessageRef
	Emoji    string
	Reason   string
	Duration time.Duration
	Count    int
}

// FakeGateway records every call. Errors set in Fail are returned by the
// matching operation ("send", "direct", "reply", "react", "edit", "delete",
// "kick", "ban", "timeout", "untimeout").
type FakeGateway struct {
	mu     sync.Mutex
	sent   []Sent
	calls  []Call
	nextID int

	Fail map[string]error

	// FailOnce errors are returned once and then cleared.
	FailOnce map[string]error

	// ChannelFail fails sends to specific channels or users.
	ChannelFail map[string]error

	Deleted int
	Lat     time.Duration
}

// New returns an empty FakeGateway.
func New() *FakeGateway {
	return &FakeGateway{
		Fail:        make(map[string]error),
		FailOnce:    make(map[string]error),
		ChannelFail: make(map[string]error),
		Lat:         42 * time.Millisecond,
	}
}

var _ bot.Gateway = (*FakeGateway)(nil)

func (f *FakeGateway) failure(op, target string) error {
	if err, ok := f.FailOnce[op]; ok {
		delete(f.FailOnce, op)
		return err
	}
	if err, ok := f.Fail[op]; ok {
		return err
	}
	if target != "" {
		if err, ok := f.ChannelFail[target]; ok {
			return err
		}
	}
	return nil
}

func (f *FakeGateway) ref(channel string) bot.MessageRef {
	f.nextID++
	return bot.MessageRef{ChannelID: channel, MessageID: "m" + strconv.Itoa(f.nextID)}
}

// SetFail sets a persistent failure for op; nil clears it.
func (f *FakeGateway) SetFail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.Fail, op)
		return
	}
	f.Fail[op] = err
}

func (f *FakeGateway) SendMessage(_ context.Context, channelID string, msg bot.Message) (bot.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("send", channelID); err != nil {
		return bot.MessageRef{}, err
	}
	f.sent = append(f.sent, Sent{ChannelID: channelID, Message: msg})
	return f.ref(channelID), nil
}

func (f *FakeGateway) SendDirect(_ context.Context, userID string, msg bot.Message) (bot.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("direct", userID); err != nil {
		return bot.MessageRef{}, err
	}
	f.sent = append(f.sent, Sent{UserID: userID, Message: msg})
	return f.ref("dm-" + userID), nil
}

func (f *FakeGateway) Reply(_ context.Context, origin event.Origin, msg bot.Message) (bot.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("reply", origin.ChannelID); err != nil {
		return bot.MessageRef{}, err
	}
	f.sent = append(f.sent, Sent{ChannelID: origin.ChannelID, Origin: origin, Message: msg})
	return f.ref(origin.ChannelID), nil
}

func (f *FakeGateway) record(op string, c Call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure(op, ""); err != nil {
		return err
	}
	c.Op = op
	f.calls = append(f.calls, c)
	return nil
}

func (f *FakeGateway) AddReaction(_ context.Context, ref bot.MessageRef, emoji string) error {
	return f.record("react", Call{Ref: ref, Emoji: emoji})
}

func (f *FakeGateway) EditMessage(_ context.Context, ref bot.MessageRef, _ bot.Message) error {
	return f.record("edit", Call{Ref: ref})
}

func (f *FakeGateway) DeleteMessages(_ context.Context, channelID string, count int) (int, error) {
	if err := f.record("delete", Call{Ref: bot.MessageRef{ChannelID: channelID}, Count: count}); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Deleted += count
	return count, nil
}

func (f *FakeGateway) Kick(_ context.Context, m bot.Member, reason string) error {
	return f.record("kick", Call{Member: m, Reason: reason})
}

func (f *FakeGateway) Ban(_ context.Context, m bot.Member, reason string) error {
	return f.record("ban", Call{Member: m, Reason: reason})
}

func (f *FakeGateway) Timeout(_ context.Context, m bot.Member, d time.Duration, reason string) error {
	return f.record("timeout", Call{Member: m, Duration: d, Reason: reason})
}

func (f *FakeGateway) RemoveTimeout(_ context.Context, m bot.Member, reason string) error {
	return f.record("untimeout", Call{Member: m, Reason: reason})
}

func (f *FakeGateway) Latency() time.Duration { return f.Lat }

// Sent returns a copy of every recorded message.
func (f *FakeGateway) Sent() []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Sent(nil), f.sent...)
}

// Calls returns a copy of every recorded non-message call.
func (f *FakeGateway) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsOf returns the recorded calls of one operation.
func (f *FakeGateway) CallsOf(op string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Texts returns the content of every recorded message, with embeds
// rendered as their title and description.
func (f *FakeGateway) Texts() []string {
	var out []string
	for _, s := range f.Sent() {
		text := s.Message.Content
		if e := s.Message.Embed; e != nil {
			if text != "" {
				text += "\n"
			}
			text += e.Title + "\n" + e.Description
		}
		out = append(out, text)
	}
	return out
}

// Reset forgets recorded traffic.
func (f *FakeGateway) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = nil
	f.calls = nil
}
