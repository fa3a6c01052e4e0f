// Package dispatch routes inbound events to registered handlers.
//
// Dispatch runs once per event, in arrival order, on the engine's event
// loop. It only decides what runs; handler bodies are submitted to an
// Executor so a slow or failing handler never holds up the next event.
//
// Routing for a MessageCreated event:
//
//  1. Bot-authored events are dropped.
//  2. A prefixed (or slash) message naming a registered command runs that
//     command and nothing else competes. A prefixed message naming no
//     command reaches observers only.
//  3. Otherwise the keyword rule with the longest matched word wins, ties
//     broken by priority and then name. Denylisted words suppress every
//     rule flagged Positive.
//  4. Observers of the event kind always run.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/keepmind9/guildbot/internal/apperr"
	"github.com/keepmind9/guildbot/internal/bot"
	"github.com/keepmind9/guildbot/internal/event"
	"github.com/keepmind9/guildbot/internal/logger"
	"github.com/keepmind9/guildbot/internal/ratelimit"
	"github.com/keepmind9/guildbot/internal/registry"
	"github.com/keepmind9/guildbot/pkg/constants"
	"github.com/sirupsen/logrus"
)

// Executor runs submitted tasks. *workerpool.WorkerPool satisfies it.
type Executor interface {
	Submit(task func())
}

// Config controls routing policy.
type Config struct {
	Prefix         string
	HandlerTimeout time.Duration
	// Denylist words suppress positive keyword rules.
	Denylist []string
	// Owners may run owner-only commands.
	Owners []string
	// Cooldowns override registration cooldowns by handler name.
	Cooldowns map[string]registry.Cooldown
}

// Outcome describes what Dispatch decided for one event.
type Outcome struct {
	Skipped     bool
	Prefixed    bool
	Responder   string
	Keyword     string
	Observers   []string
	RateLimited bool
	RetryAfter  time.Duration
	Rejected    error
}

// Dispatcher is safe for concurrent use, though the engine calls it from a
// single goroutine.
type Dispatcher struct {
	cfg      Config
	registry *registry.Registry
	limiter  *ratelimit.Limiter
	gateway  bot.Gateway
	exec     Executor
	denylist map[string]bool
	owners   map[string]bool

	// configuration errors already shown, keyed by handler and guild
	shownMu sync.Mutex
	shown   map[string]bool
}

// New returns a Dispatcher. Zero Config fields take defaults.
func New(cfg Config, reg *registry.Registry, limiter *ratelimit.Limiter, gw bot.Gateway, exec Executor) *Dispatcher {
	if cfg.Prefix == "" {
		cfg.Prefix = constants.DefaultCommandPrefix
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = constants.DefaultHandlerTimeout
	}
	d := &Dispatcher{
		cfg:      cfg,
		registry: reg,
		limiter:  limiter,
		gateway:  gw,
		exec:     exec,
		denylist: make(map[string]bool, len(cfg.Denylist)),
		owners:   make(map[string]bool, len(cfg.Owners)),
		shown:    make(map[string]bool),
	}
	for _, w := range cfg.Denylist {
		d.denylist[strings.ToLower(w)] = true
	}
	for _, o := range cfg.Owners {
		d.owners[o] = true
	}
	return d
}

// Prefix is the configured command prefix.
func (d *Dispatcher) Prefix() string { return d.cfg.Prefix }

// Dispatch routes ev. It returns once every selected invocation has been
// submitted; it never waits for handlers to finish.
func (d *Dispatcher) Dispatch(ctx context.Context, ev event.Event) (out Outcome) {
	log := logger.WithFields(logrus.Fields{
		"event_id": ev.ID,
		"kind":     ev.Kind.String(),
		"platform": ev.Platform,
	})
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("dispatch-panicked")
		}
	}()

	if ev.Author.Bot {
		return Outcome{Skipped: true}
	}

	snap := d.registry.Current()
	base := registry.Invocation{
		Event:    ev,
		Gateway:  d.gateway,
		Snapshot: snap,
	}

	if ev.Kind == event.MessageCreated {
		out = d.route(ctx, snap, &base, log)
	}

	for _, reg := range snap.Observers(ev.Kind) {
		inv := base
		inv.Handler = reg.Name
		inv.Logger = log.WithField("handler", reg.Name)
		d.submit(ctx, reg, &inv)
		out.Observers = append(out.Observers, reg.Name)
	}
	return out
}

// route picks the responder for a message and fills base with the parsed
// command so observers can see it too.
func (d *Dispatcher) route(ctx context.Context, snap *registry.Snapshot, base *registry.Invocation, log *logrus.Entry) Outcome {
	var out Outcome
	ev := base.Event
	text := strings.TrimSpace(ev.Content())

	body, prefixed := d.commandBody(ev, text)
	if prefixed {
		out.Prefixed = true
		base.Prefixed = true
		if len(body) > constants.MaxCommandInputLength {
			log.WithField("length", len(body)).Debug("oversized-command-ignored")
			return out
		}
		word, rest := splitCommand(body)
		reg, ok := snap.Command(word)
		if !ok {
			log.WithField("command", word).Debug("unknown-command-ignored")
			return out
		}
		base.CommandMatched = true
		inv := *base
		inv.Handler = reg.Name
		inv.Command = strings.ToLower(word)
		inv.Rest = rest
		inv.Args = SplitArgs(rest)
		inv.Logger = log.WithField("handler", reg.Name)
		out.Responder = reg.Name
		d.respond(ctx, reg, &inv, &out)
		return out
	}

	reg, keyword := d.matchKeyword(snap, ev, text)
	if reg == nil {
		return out
	}
	inv := *base
	inv.Handler = reg.Name
	inv.Keyword = keyword
	inv.Logger = log.WithField("handler", reg.Name)
	out.Responder = reg.Name
	out.Keyword = keyword
	d.respond(ctx, reg, &inv, &out)
	return out
}

func (d *Dispatcher) commandBody(ev event.Event, text string) (string, bool) {
	if ev.Slash {
		return text, true
	}
	if strings.HasPrefix(text, d.cfg.Prefix) {
		return strings.TrimPrefix(text, d.cfg.Prefix), true
	}
	return "", false
}

// matchKeyword returns the winning keyword rule. Rules come from the
// snapshot ordered by priority and name, so the first rule with the
// longest match wins.
func (d *Dispatcher) matchKeyword(snap *registry.Snapshot, ev event.Event, text string) (*registry.Registration, string) {
	if text == "" {
		return nil, ""
	}
	words := Words(text)
	denied := false
	for w := range words {
		if d.denylist[w] {
			denied = true
			break
		}
	}

	var best *registry.Registration
	bestWord := ""
	bestLen := -1
	for _, reg := range snap.KeywordRules() {
		if reg.Positive && denied {
			continue
		}
		matched, length := "", -1
		for _, w := range reg.Trigger.Words {
			lw := strings.ToLower(w)
			if words[lw] && len(lw) > length {
				matched, length = lw, len(lw)
			}
		}
		if length < 0 && len(reg.Trigger.Words) == 0 && reg.Trigger.Predicate != nil && reg.Trigger.Predicate(ev) {
			length = 0
		}
		if length > bestLen {
			best, bestWord, bestLen = reg, matched, length
		}
	}
	return best, bestWord
}

// respond checks requirements and the rate limit, then submits.
func (d *Dispatcher) respond(ctx context.Context, reg *registry.Registration, inv *registry.Invocation, out *Outcome) {
	if err := d.check(reg, inv.Event); err != nil {
		out.Rejected = err
		d.notify(ctx, inv, apperr.UserMessage(err))
		return
	}

	cd := reg.Cooldown
	if override, ok := d.cfg.Cooldowns[reg.Name]; ok {
		cd = override
	}
	if allowed, retry := d.limiter.CheckAndConsume(inv.Event.Author.ID, reg.Name, cd.Max, cd.Window); !allowed {
		out.RateLimited = true
		out.RetryAfter = retry
		inv.Logger.WithField("retry_after", retry.String()).Debug("handler-rate-limited")
		d.notify(ctx, inv, CooldownNotice(retry))
		return
	}
	d.submit(ctx, reg, inv)
}

// CooldownNotice is the text sent when a user is rate limited.
func CooldownNotice(retry time.Duration) string {
	return fmt.Sprintf("⏰ This command is on cooldown. Try again in %.1f seconds.", retry.Seconds())
}

func (d *Dispatcher) check(reg *registry.Registration, ev event.Event) error {
	req := reg.Requirements
	if req.Guild && !ev.InGuild() {
		return apperr.Usage("This command can only be used in a server.")
	}
	if req.Owner && !d.owners[ev.Author.ID] {
		return apperr.Permission("Only the bot owner can use this command.")
	}
	if req.Permissions != 0 && !ev.Author.Can(req.Permissions) {
		return apperr.Permission("You need the %s permission to use this command.", PermissionNames(req.Permissions))
	}
	return nil
}

// IsOwner reports whether userID is a configured owner.
func (d *Dispatcher) IsOwner(userID string) bool {
	return d.owners[userID]
}

func (d *Dispatcher) notify(ctx context.Context, inv *registry.Invocation, text string) {
	d.exec.Submit(func() {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.HandlerTimeout)
		defer cancel()
		inv.ReplyText(sendCtx, text)
	})
}

func (d *Dispatcher) submit(ctx context.Context, reg *registry.Registration, inv *registry.Invocation) {
	d.exec.Submit(func() {
		d.run(ctx, reg, inv)
	})
}

// run executes one invocation with a timeout, recovering panics and
// reporting errors to the user for responders.
func (d *Dispatcher) run(parent context.Context, reg *registry.Registration, inv *registry.Invocation) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), d.cfg.HandlerTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("handler panicked: %v", r)
			}
		}()
		done <- reg.Handler.Handle(ctx, inv)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		// The handler goroutine is abandoned; its result lands in the
		// buffered channel and is dropped.
		inv.Logger.WithField("timeout", d.cfg.HandlerTimeout.String()).Warn("handler-invocation-timed-out")
		err = ctx.Err()
	}

	log := inv.Logger.WithField("elapsed", time.Since(start).String())
	if err == nil {
		log.Debug("handler-invocation-finished")
		return
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && apperr.KindOf(err) == apperr.KindInternal {
		err = apperr.Transient(err, "That took too long.")
	}

	kind := apperr.KindOf(err)
	log = log.WithFields(logrus.Fields{
		"error":      err,
		"error_kind": kind.String(),
	})
	if kind == apperr.KindInternal {
		log.Error("handler-invocation-failed")
	} else {
		log.Warn("handler-invocation-failed")
	}

	if reg.Class != registry.Responder {
		return
	}
	msg := apperr.UserMessage(err)
	if kind == apperr.KindConfiguration && !d.firstConfigError(reg.Name, inv.Event.Guild.ID) {
		msg = apperr.ShortMessage(err)
	}
	replyCtx, cancelReply := context.WithTimeout(context.WithoutCancel(parent), d.cfg.HandlerTimeout)
	defer cancelReply()
	inv.ReplyText(replyCtx, msg)
}

func (d *Dispatcher) firstConfigError(handler, guildID string) bool {
	key := handler + "\x00" + guildID
	d.shownMu.Lock()
	defer d.shownMu.Unlock()
	if d.shown[key] {
		return false
	}
	d.shown[key] = true
	return true
}

// splitCommand splits "name rest of text" into the command word and the
// trimmed remainder.
func splitCommand(body string) (string, string) {
	body = strings.TrimLeftFunc(body, unicode.IsSpace)
	i := strings.IndexFunc(body, unicode.IsSpace)
	if i < 0 {
		return body, ""
	}
	return body[:i], strings.TrimSpace(body[i:])
}

// SplitArgs splits s on whitespace, keeping double-quoted runs together.
func SplitArgs(s string) []string {
	var args []string
	var cur strings.Builder
	inQuote, have := false, false
	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
			have = true
		case unicode.IsSpace(r) && !inQuote:
			if have {
				args = append(args, cur.String())
				cur.Reset()
				have = false
			}
		default:
			cur.WriteRune(r)
			have = true
		}
	}
	if have {
		args = append(args, cur.String())
	}
	return args
}

// Words returns the lower-cased words of text with surrounding
// punctuation removed.
func Words(text string) map[string]bool {
	out := make(map[string]bool)
	for _, f := range strings.Fields(strings.ToLower(text)) {
		w := strings.TrimFunc(f, func(r rune) bool {
			return unicode.IsPunct(r) && r != '\''
		})
		if w != "" {
			out[w] = true
		}
	}
	return out
}

var permissionNames = []struct {
	bit  int64
	name string
}{
	{event.PermAdministrator, "Administrator"},
	{event.PermManageGuild, "Manage Server"},
	{event.PermKickMembers, "Kick Members"},
	{event.PermBanMembers, "Ban Members"},
	{event.PermModerateMembers, "Moderate Members"},
	{event.PermManageMessages, "Manage Messages"},
	{event.PermAddReactions, "Add Reactions"},
}

// PermissionNames renders permission bits for users.
func PermissionNames(perm int64) string {
	var names []string
	for _, p := range permissionNames {
		if perm&p.bit != 0 {
			names = append(names, p.name)
		}
	}
	if len(names) == 0 {
		return "required"
	}
	return strings.Join(names, ", ")
}
