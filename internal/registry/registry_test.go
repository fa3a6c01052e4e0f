package registry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/keepmind9/guildbot/internal/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var noop = HandlerFunc(func(context.Context, *Invocation) error { return nil })

func cmd(name string, aliases ...string) Registration {
	return Registration{Name: name, Trigger: Command(name, aliases...), Class: Responder, Handler: noop}
}

func TestRegister_AddsAndBumpsGeneration(t *testing.T) {
	r := New()
	assert.Equal(t, uint64(0), r.Current().Generation)

	require.NoError(t, r.Register(cmd("ping"), cmd("remind", "reminder", "timer")))
	snap := r.Current()
	assert.Equal(t, uint64(1), snap.Generation)
	assert.Equal(t, 2, snap.Len())

	reg, ok := snap.Command("TIMER")
	require.True(t, ok)
	assert.Equal(t, "remind", reg.Name)
}

func TestRegister_DuplicateNameIsAllOrNothing(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(cmd("ping")))

	err := r.Register(cmd("hello"), cmd("ping"))
	var dup *DuplicateNameError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "ping", dup.Name)

	_, ok := r.Current().Lookup("hello")
	assert.False(t, ok, "no part of a failed batch is published")
	assert.Equal(t, uint64(1), r.Current().Generation)
}

func TestRegister_AliasConflict(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(cmd("purge", "clear", "delete")))

	err := r.Register(cmd("wipe", "Clear"))
	var dup *DuplicateNameError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "command", dup.Kind)
	assert.Equal(t, "clear", dup.Name)
	assert.Equal(t, "purge", dup.Owner)
}

func TestRegister_Invalid(t *testing.T) {
	tests := []struct {
		name string
		reg  Registration
	}{
		{"empty name", Registration{Trigger: Command("x"), Class: Responder, Handler: noop}},
		{"nil handler", Registration{Name: "x", Trigger: Command("x"), Class: Responder}},
		{"observer with command", Registration{Name: "x", Trigger: Command("x"), Class: Observer, Handler: noop}},
		{"responder with events", Registration{Name: "x", Trigger: Events(event.MemberJoined), Class: Responder, Handler: noop}},
		{"empty keywords", Registration{Name: "x", Trigger: Keywords(), Class: Responder, Handler: noop}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var invalid *InvalidError
			assert.True(t, errors.As(New().Register(tt.reg), &invalid))
		})
	}
}

func TestUnregister(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(cmd("ping")))
	require.NoError(t, r.Unregister("ping"))
	_, ok := r.Current().Command("ping")
	assert.False(t, ok)

	var nf *NotFoundError
	assert.True(t, errors.As(r.Unregister("ping"), &nf))
}

func TestReload_OldSnapshotKeepsOldDefinition(t *testing.T) {
	r := New()
	old := cmd("ping")
	old.Description = "v1"
	require.NoError(t, r.RegisterModule("basic", []Registration{old}))
	before := r.Current()

	updated := cmd("ping")
	updated.Description = "v2"
	require.NoError(t, r.Reload(updated))

	regOld, _ := before.Lookup("ping")
	regNew, _ := r.Current().Lookup("ping")
	assert.Equal(t, "v1", regOld.Description)
	assert.Equal(t, "v2", regNew.Description)
	assert.Equal(t, "basic", regNew.Module, "module survives a reload")

	var nf *NotFoundError
	assert.True(t, errors.As(r.Reload(cmd("missing")), &nf))
}

func TestModules(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterModule("basic", []Registration{cmd("ping"), cmd("hello", "hi")}))
	require.NoError(t, r.RegisterModule("stats", []Registration{{
		Name: "stats.counter", Trigger: Events(event.MessageCreated), Class: Observer, Handler: noop,
	}}))
	assert.Equal(t, []string{"basic", "stats"}, r.Current().Modules())
	assert.Len(t, r.Current().Observers(event.MessageCreated), 1)

	var dup *DuplicateNameError
	assert.True(t, errors.As(r.RegisterModule("basic", nil), &dup))

	require.NoError(t, r.ReloadModule("basic", []Registration{cmd("ping")}))
	_, ok := r.Current().Command("hi")
	assert.False(t, ok)

	// A failing reload keeps the old registrations.
	err := r.ReloadModule("basic", []Registration{cmd("ping"), cmd("ping")})
	require.Error(t, err)
	_, ok = r.Current().Command("ping")
	assert.True(t, ok)

	require.NoError(t, r.UnloadModule("basic"))
	assert.False(t, r.Current().HasModule("basic"))
	var nf *NotFoundError
	assert.True(t, errors.As(r.UnloadModule("basic"), &nf))
}

func TestKeywordRulesOrdering(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(
		Registration{Name: "b", Trigger: Keywords("hi"), Class: Responder, Handler: noop},
		Registration{Name: "a", Trigger: Keywords("hi"), Class: Responder, Handler: noop},
		Registration{Name: "z", Trigger: Keywords("hi"), Class: Responder, Priority: 5, Handler: noop},
	))
	var names []string
	for _, reg := range r.Current().KeywordRules() {
		names = append(names, reg.Name)
	}
	assert.Equal(t, []string{"z", "a", "b"}, names)
}

func TestConcurrentReadersDuringWrites(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				snap := r.Current()
				_ = snap.Commands()
			}
		}()
	}
	for i := 0; i < 50; i++ {
		require.NoError(t, r.Register(cmd("c"+string(rune('a'+i%26))+string(rune('a'+i/26)))))
	}
	wg.Wait()
	assert.Equal(t, uint64(50), r.Current().Generation)
}
