// Package registry holds the set of handler registrations the dispatcher
// routes to.
//
// Every mutation builds a new immutable Snapshot and publishes it with an
// atomic pointer swap. Readers call Current once per event and keep using
// that snapshot, so an invocation that started before a reload finishes
// against the definition it started with.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/keepmind9/guildbot/internal/event"
	"github.com/keepmind9/guildbot/internal/logger"
	"github.com/sirupsen/logrus"
)

// DuplicateNameError is returned when a handler name, command name or
// alias, or module is already registered.
type DuplicateNameError struct {
	Kind  string
	Name  string
	Owner string
}

func (e *DuplicateNameError) Error() string {
	if e.Owner != "" {
		return fmt.Sprintf("%s %q is already registered by %q", e.Kind, e.Name, e.Owner)
	}
	return fmt.Sprintf("%s %q is already registered", e.Kind, e.Name)
}

// NotFoundError is returned when unregistering or reloading something that
// is not registered.
type NotFoundError struct {
	Kind string
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q is not registered", e.Kind, e.Name)
}

// InvalidError is returned for a malformed registration.
type InvalidError struct {
	Name   string
	Reason string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("invalid registration %q: %s", e.Name, e.Reason)
}

// Registry is safe for concurrent use. Writers are serialized; readers
// never block.
type Registry struct {
	mu      sync.Mutex
	current atomic.Pointer[Snapshot]
}

// New returns an empty registry at generation 0.
func New() *Registry {
	r := &Registry{}
	snap, _ := build(nil, 0)
	r.current.Store(snap)
	return r
}

// Current returns the published snapshot.
func (r *Registry) Current() *Snapshot {
	return r.current.Load()
}

// Register adds regs. Either all are added or none is.
func (r *Registry) Register(regs ...Registration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.current.Load()
	next := append(cur.all(), toPointers(regs)...)
	return r.publish(next, "registrations-added", len(regs))
}

// Unregister removes the registration called name.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.current.Load()
	if _, ok := cur.byName[name]; !ok {
		return &NotFoundError{Kind: "handler", Name: name}
	}
	next := cur.filter(func(reg *Registration) bool { return reg.Name != name })
	return r.publish(next, "registration-removed", 1)
}

// Reload swaps the definition of an existing registration with the same name.
func (r *Registry) Reload(reg Registration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.current.Load()
	if _, ok := cur.byName[reg.Name]; !ok {
		return &NotFoundError{Kind: "handler", Name: reg.Name}
	}
	replacement := reg
	next := make([]*Registration, 0, len(cur.ordered))
	for _, existing := range cur.ordered {
		if existing.Name == reg.Name {
			if replacement.Module == "" {
				replacement.Module = existing.Module
			}
			next = append(next, &replacement)
			continue
		}
		next = append(next, existing)
	}
	return r.publish(next, "registration-reloaded", 1)
}

// RegisterModule adds every registration of a module, stamping Module on
// each. A module can be registered only once.
func (r *Registry) RegisterModule(module string, regs []Registration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.current.Load()
	if cur.HasModule(module) {
		return &DuplicateNameError{Kind: "module", Name: module}
	}
	next := append(cur.all(), stamp(module, regs)...)
	return r.publish(next, "module-registered", len(regs))
}

// UnloadModule removes every registration of a module.
func (r *Registry) UnloadModule(module string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.current.Load()
	if !cur.HasModule(module) {
		return &NotFoundError{Kind: "module", Name: module}
	}
	next := cur.filter(func(reg *Registration) bool { return reg.Module != module })
	return r.publish(next, "module-unloaded", 0)
}

// ReloadModule replaces a loaded module's registrations with regs in one
// swap. On error the old registrations stay in place.
func (r *Registry) ReloadModule(module string, regs []Registration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.current.Load()
	if !cur.HasModule(module) {
		return &NotFoundError{Kind: "module", Name: module}
	}
	next := cur.filter(func(reg *Registration) bool { return reg.Module != module })
	next = append(next, stamp(module, regs)...)
	return r.publish(next, "module-reloaded", len(regs))
}

func (r *Registry) publish(regs []*Registration, msg string, n int) error {
	cur := r.current.Load()
	snap, err := build(regs, cur.Generation+1)
	if err != nil {
		return err
	}
	r.current.Store(snap)
	logger.WithFields(logrus.Fields{
		"generation": snap.Generation,
		"count":      n,
		"total":      len(snap.ordered),
	}).Info(msg)
	return nil
}

func toPointers(regs []Registration) []*Registration {
	out := make([]*Registration, len(regs))
	for i := range regs {
		reg := regs[i]
		out[i] = &reg
	}
	return out
}

func stamp(module string, regs []Registration) []*Registration {
	out := toPointers(regs)
	for _, reg := range out {
		reg.Module = module
	}
	return out
}

// Snapshot is an immutable view of the registry.
type Snapshot struct {
	Generation uint64

	ordered   []*Registration
	byName    map[string]*Registration
	commands  map[string]*Registration
	keywords  []*Registration
	observers map[event.Kind][]*Registration
}

func build(regs []*Registration, generation uint64) (*Snapshot, error) {
	s := &Snapshot{
		Generation: generation,
		byName:     make(map[string]*Registration, len(regs)),
		commands:   make(map[string]*Registration),
		observers:  make(map[event.Kind][]*Registration),
	}
	for _, reg := range regs {
		if err := reg.validate(); err != nil {
			return nil, err
		}
		if prev, ok := s.byName[reg.Name]; ok {
			return nil, &DuplicateNameError{Kind: "handler", Name: reg.Name, Owner: prev.Module}
		}
		s.byName[reg.Name] = reg

		switch reg.Trigger.Kind {
		case TriggerCommand:
			for _, word := range reg.Trigger.names() {
				if prev, ok := s.commands[word]; ok {
					return nil, &DuplicateNameError{Kind: "command", Name: word, Owner: prev.Name}
				}
				s.commands[word] = reg
			}
		case TriggerKeywords:
			s.keywords = append(s.keywords, reg)
		case TriggerEvents:
			for _, kind := range reg.Trigger.Events {
				s.observers[kind] = append(s.observers[kind], reg)
			}
		}
		s.ordered = append(s.ordered, reg)
	}

	sort.SliceStable(s.ordered, func(i, j int) bool {
		if s.ordered[i].Module != s.ordered[j].Module {
			return s.ordered[i].Module < s.ordered[j].Module
		}
		return s.ordered[i].Name < s.ordered[j].Name
	})
	sort.SliceStable(s.keywords, func(i, j int) bool {
		if s.keywords[i].Priority != s.keywords[j].Priority {
			return s.keywords[i].Priority > s.keywords[j].Priority
		}
		return s.keywords[i].Name < s.keywords[j].Name
	})
	for kind := range s.observers {
		obs := s.observers[kind]
		sort.SliceStable(obs, func(i, j int) bool { return obs[i].Name < obs[j].Name })
	}
	return s, nil
}

func (s *Snapshot) all() []*Registration {
	return append([]*Registration(nil), s.ordered...)
}

func (s *Snapshot) filter(keep func(*Registration) bool) []*Registration {
	var out []*Registration
	for _, reg := range s.ordered {
		if keep(reg) {
			out = append(out, reg)
		}
	}
	return out
}

// Lookup returns the registration called name.
func (s *Snapshot) Lookup(name string) (*Registration, bool) {
	reg, ok := s.byName[name]
	return reg, ok
}

// Command resolves a command name or alias, case-insensitively.
func (s *Snapshot) Command(word string) (*Registration, bool) {
	reg, ok := s.commands[strings.ToLower(word)]
	return reg, ok
}

// KeywordRules returns keyword responders ordered by priority, then name.
// Matched-keyword length is applied on top by the dispatcher.
func (s *Snapshot) KeywordRules() []*Registration {
	return s.keywords
}

// Observers returns the observers of kind, ordered by name.
func (s *Snapshot) Observers(kind event.Kind) []*Registration {
	return s.observers[kind]
}

// All returns every registration ordered by module, then name.
func (s *Snapshot) All() []*Registration {
	return s.all()
}

// Commands returns command registrations ordered by module, then name.
func (s *Snapshot) Commands() []*Registration {
	var out []*Registration
	for _, reg := range s.ordered {
		if reg.Trigger.Kind == TriggerCommand {
			out = append(out, reg)
		}
	}
	return out
}

// HasModule reports whether any registration belongs to module.
func (s *Snapshot) HasModule(module string) bool {
	for _, reg := range s.ordered {
		if reg.Module == module {
			return true
		}
	}
	return false
}

// Modules returns the distinct module names, sorted.
func (s *Snapshot) Modules() []string {
	seen := make(map[string]bool)
	var out []string
	for _, reg := range s.ordered {
		if reg.Module != "" && !seen[reg.Module] {
			seen[reg.Module] = true
			out = append(out, reg.Module)
		}
	}
	sort.Strings(out)
	return out
}

// Len is the number of registrations.
func (s *Snapshot) Len() int {
	return len(s.ordered)
}
