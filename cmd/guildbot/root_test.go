package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/keepmind9/guildbot/internal/bot"
	"github.com/keepmind9/guildbot/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	assert.Equal(t, "guildbot", rootCmd.Use)

	names := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, expected := range []string{"serve", "validate", "status", "version"} {
		assert.True(t, names[expected], "missing subcommand: %s", expected)
	}
}

func TestCommandFlags(t *testing.T) {
	tests := map[string][]string{
		"serve":    {"config", "validate"},
		"validate": {"config", "show", "json"},
		"status":   {"addr", "config", "json"},
		"version":  {"json"},
	}
	for _, cmd := range rootCmd.Commands() {
		for _, flag := range tests[cmd.Name()] {
			assert.NotNil(t, cmd.Flags().Lookup(flag), "%s --%s", cmd.Name(), flag)
		}
	}
}

func TestVersion_JSON(t *testing.T) {
	out, err := run(t, "version", "--json")
	versionJSON = false

	require.NoError(t, err)
	var v VersionOutput
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, "dev", v.Version)
	assert.NotEmpty(t, v.GoVersion)
}

func TestVersion_Text(t *testing.T) {
	out, err := run(t, "version")

	require.NoError(t, err)
	assert.Contains(t, out, "guildbot version information:")
	assert.Contains(t, out, "Version:   dev")
}

func TestResolveConfigPath(t *testing.T) {
	assert.Equal(t, "given.yaml", resolveConfigPath("given.yaml"))

	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)

	assert.Equal(t, "", resolveConfigPath(""))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("x: 1"), 0600))
	assert.Equal(t, "config.yaml", resolveConfigPath(""))
}

func TestNewPlatform(t *testing.T) {
	p, err := newPlatform(bot.PlatformDiscord, core.BotConfig{Token: "t"})
	require.NoError(t, err)
	assert.Equal(t, bot.PlatformDiscord, p.Name())

	p, err = newPlatform(bot.PlatformTelegram, core.BotConfig{Token: "t"})
	require.NoError(t, err)
	assert.Equal(t, bot.PlatformTelegram, p.Name())

	_, err = newPlatform("irc", core.BotConfig{})
	assert.Error(t, err)
}
