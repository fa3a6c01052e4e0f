// Package features holds the bot's command and listener modules. Each
// Module turns its dependencies into registry registrations; the engine
// loads, reloads and unloads them by name.
package features

import (
	"math/rand/v2"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/keepmind9/guildbot/internal/ai"
	"github.com/keepmind9/guildbot/internal/apperr"
	"github.com/keepmind9/guildbot/internal/event"
	"github.com/keepmind9/guildbot/internal/fetch"
	"github.com/keepmind9/guildbot/internal/registry"
	"github.com/keepmind9/guildbot/internal/store"
	"github.com/keepmind9/guildbot/pkg/constants"
)

// Module names.
const (
	ModuleBasic      = "basic"
	ModuleReminders  = "reminders"
	ModuleStats      = "stats"
	ModuleModeration = "moderation"
	ModulePolls      = "polls"
	ModuleReactions  = "reactions"
	ModuleKeywords   = "keywords"
	ModuleAI         = "ai"
	ModuleLookup     = "lookup"
	ModuleAudit      = "audit"
	ModuleWelcome    = "welcome"
	ModuleAdmin      = "admin"
)

// Module is a named group of registrations.
type Module interface {
	Name() string
	Registrations() []registry.Registration
}

// ModuleControl loads and unloads modules at runtime.
type ModuleControl interface {
	ReloadModule(name string) error
	LoadModule(name string) error
	UnloadModule(name string) error
}

// Deps are the collaborators modules are built from. Nil clients disable
// the commands that need them with a configuration error.
type Deps struct {
	Prefix string

	Reminders *store.Reminders
	Stats     *store.Stats
	Warnings  *store.Warnings
	Polls     *store.Polls
	Settings  *store.Settings

	AI      *ai.Client
	Weather *fetch.Client
	Crypto  *fetch.Client
	News    *fetch.Client

	WeatherKey string
	NewsKey    string

	// ClientID is the application ID used for invite links.
	ClientID string

	Modules ModuleControl

	// Pick returns a random index in [0, n).
	Pick func(n int) int
	Now  func() time.Time
}

func (d *Deps) prefix() string {
	if d.Prefix == "" {
		return constants.DefaultCommandPrefix
	}
	return d.Prefix
}

func (d *Deps) pick(n int) int {
	if d.Pick != nil {
		return d.Pick(n)
	}
	return rand.IntN(n)
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Catalog builds every module.
func Catalog(d *Deps) []Module {
	return []Module{
		&Basic{deps: d},
		&Reminders{deps: d},
		&Stats{deps: d},
		&Moderation{deps: d},
		&Polls{deps: d},
		&Reactions{deps: d},
		&Keywords{deps: d},
		&AI{deps: d},
		&Lookup{deps: d},
		&Audit{deps: d},
		&Welcome{deps: d},
		&Admin{deps: d},
	}
}

// Names returns the names of every module in the catalog, sorted.
func Names() []string {
	names := []string{
		ModuleBasic, ModuleReminders, ModuleStats, ModuleModeration,
		ModulePolls, ModuleReactions, ModuleKeywords, ModuleAI,
		ModuleLookup, ModuleAudit, ModuleWelcome, ModuleAdmin,
	}
	sort.Strings(names)
	return names
}

// Build returns a fresh instance of the named module.
func Build(d *Deps, name string) (Module, bool) {
	for _, m := range Catalog(d) {
		if m.Name() == name {
			return m, true
		}
	}
	return nil, false
}

// missingArgument is the usage error for a command called without its
// required argument.
func missingArgument(d *Deps, inv *registry.Invocation) error {
	return apperr.Usage("Missing required argument. Use `%shelp %s` for usage.", d.prefix(), inv.Command)
}

var mentionPattern = regexp.MustCompile(`^<@!?(\d+)>$`)

// parseUserID accepts a mention or a bare numeric ID.
func parseUserID(s string) (string, bool) {
	if m := mentionPattern.FindStringSubmatch(s); m != nil {
		return m[1], true
	}
	s = strings.TrimPrefix(s, "@")
	if s == "" {
		return "", false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return s, true
}

// targetOrSelf resolves the optional member argument at index i.
func targetOrSelf(inv *registry.Invocation, i int) (event.User, error) {
	arg := inv.Arg(i)
	if arg == "" {
		return inv.Event.Author, nil
	}
	id, ok := parseUserID(arg)
	if !ok {
		return event.User{}, apperr.Usage("Member %q not found. Mention them or use their ID.", arg)
	}
	if id == inv.Event.Author.ID {
		return inv.Event.Author, nil
	}
	return event.User{ID: id}, nil
}

// restAfter returns the remainder text after the first n arguments.
func restAfter(inv *registry.Invocation, n int) string {
	rest := inv.Rest
	for i := 0; i < n; i++ {
		rest = strings.TrimSpace(rest)
		idx := strings.IndexAny(rest, " \t\n")
		if idx < 0 {
			return ""
		}
		rest = rest[idx:]
	}
	return strings.TrimSpace(rest)
}

// orDefault returns s, or def when s is empty.
func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// capitalize upper-cases the first letter of s.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// clip cuts s to at most n runes, marking the cut with an ellipsis.
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
