package features

import (
	"context"
	"errors"
	"strings"

	"github.com/keepmind9/guildbot/internal/apperr"
	"github.com/keepmind9/guildbot/internal/bot"
	"github.com/keepmind9/guildbot/internal/registry"
)

// Admin lets owners load, unload and reload modules at runtime.
type Admin struct {
	deps *Deps
}

func (m *Admin) Name() string { return ModuleAdmin }

func (m *Admin) Registrations() []registry.Registration {
	owner := registry.Requirements{Owner: true}
	return []registry.Registration{
		{
			Name:         "admin.reload",
			Trigger:      registry.Command("reload", "rl"),
			Class:        registry.Responder,
			Requirements: owner,
			Description:  "Reload a module (owner only)",
			Usage:        "reload <module>",
			Handler:      registry.HandlerFunc(m.reload),
		},
		{
			Name:         "admin.load",
			Trigger:      registry.Command("load"),
			Class:        registry.Responder,
			Requirements: owner,
			Description:  "Load a module (owner only)",
			Usage:        "load <module>",
			Handler:      registry.HandlerFunc(m.load),
		},
		{
			Name:         "admin.unload",
			Trigger:      registry.Command("unload"),
			Class:        registry.Responder,
			Requirements: owner,
			Description:  "Unload a module (owner only)",
			Usage:        "unload <module>",
			Handler:      registry.HandlerFunc(m.unload),
		},
	}
}

func (m *Admin) module(inv *registry.Invocation) (string, error) {
	if m.deps.Modules == nil {
		return "", apperr.Configuration("Module control is not available.", "")
	}
	name := strings.ToLower(inv.Arg(0))
	if name == "" {
		return "", apperr.Usage("Please specify a module. Available: %s", strings.Join(Names(), ", "))
	}
	for _, n := range Names() {
		if n == name {
			return name, nil
		}
	}
	return "", apperr.Usage("Unknown module `%s`. Available: %s", name, strings.Join(Names(), ", "))
}

func (m *Admin) reload(ctx context.Context, inv *registry.Invocation) error {
	name, err := m.module(inv)
	if err != nil {
		return err
	}
	if err := m.deps.Modules.ReloadModule(name); err != nil {
		return moduleError("reload", name, err)
	}
	inv.ReplyEmbed(ctx, &bot.Embed{
		Title:       "🔄 Module Reloaded",
		Description: "Successfully reloaded `" + name + "`",
		Color:       bot.ColorGreen,
	})
	return nil
}

func (m *Admin) load(ctx context.Context, inv *registry.Invocation) error {
	name, err := m.module(inv)
	if err != nil {
		return err
	}
	if err := m.deps.Modules.LoadModule(name); err != nil {
		return moduleError("load", name, err)
	}
	inv.ReplyEmbed(ctx, &bot.Embed{
		Title:       "📥 Module Loaded",
		Description: "Successfully loaded `" + name + "`",
		Color:       bot.ColorGreen,
	})
	return nil
}

func (m *Admin) unload(ctx context.Context, inv *registry.Invocation) error {
	name, err := m.module(inv)
	if err != nil {
		return err
	}
	if name == ModuleAdmin {
		return apperr.Usage("The admin module cannot be unloaded.")
	}
	if err := m.deps.Modules.UnloadModule(name); err != nil {
		return moduleError("unload", name, err)
	}
	inv.ReplyEmbed(ctx, &bot.Embed{
		Title:       "📤 Module Unloaded",
		Description: "Successfully unloaded `" + name + "`",
		Color:       bot.ColorOrange,
	})
	return nil
}

// moduleError turns a registry failure into something the owner can act on.
func moduleError(action, name string, err error) error {
	var dup *registry.DuplicateNameError
	var missing *registry.NotFoundError
	switch {
	case errors.As(err, &dup):
		return &apperr.Error{Kind: apperr.KindUsage, Msg: "Module `" + name + "` is already loaded.", Err: err}
	case errors.As(err, &missing):
		return &apperr.Error{Kind: apperr.KindUsage, Msg: "Module `" + name + "` is not loaded.", Err: err}
	}
	return &apperr.Error{Kind: apperr.KindInternal, Msg: "Failed to " + action + " `" + name + "`.", Err: err}
}
