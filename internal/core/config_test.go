package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/keepmind9/guildbot/internal/features"
	"github.com/keepmind9/guildbot/internal/registry"
	"github.com/keepmind9/guildbot/internal/store"
	"github.com/keepmind9/guildbot/pkg/constants"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

const minimalConfig = `
bots:
  discord:
    enabled: true
    token: "abc"
`

func TestLoadConfig_ValidConfig_ReturnsConfigStruct(t *testing.T) {
	t.Setenv("GUILDBOT_TEST_TOKEN", "test-token-12345")
	path := writeConfig(t, `
command_prefix: "?"
security:
  owners:
    discord: ["111"]
  admins:
    discord: ["222", "111"]
bots:
  discord:
    enabled: true
    token: "${GUILDBOT_TEST_TOKEN}"
    sync_guild: "999"
  telegram:
    enabled: false
dispatch:
  handler_timeout: 10s
  workers: 4
rate_limits:
  ai.ask:
    max: 2
    window: 1m
storage:
  driver: sqlite
  path: /var/lib/guildbot
features:
  disabled: [lookup]
`)

	config, err := LoadConfig(path)

	require.NoError(t, err)
	assert.Equal(t, "?", config.CommandPrefix)
	assert.Equal(t, "test-token-12345", config.Bots["discord"].Token)
	assert.Equal(t, "999", config.Bots["discord"].SyncGuild)
	assert.Equal(t, 10*time.Second, config.HandlerTimeout())
	assert.Equal(t, 4, config.Dispatch.Workers)
	assert.Equal(t, []string{"111", "222"}, config.OwnerIDs("discord"))
	assert.True(t, config.IsAdmin("discord", "222"))
	assert.False(t, config.IsAdmin("telegram", "222"))
	assert.Equal(t, map[string]registry.Cooldown{"ai.ask": {Max: 2, Window: time.Minute}}, config.Cooldowns())
	assert.Equal(t, store.Config{Driver: "sqlite", Path: "/var/lib/guildbot"}, config.StoreConfig())
	assert.False(t, config.ModuleEnabled(features.ModuleLookup))
	assert.True(t, config.ModuleEnabled(features.ModuleAI))

	name, bot, err := config.EnabledBot()
	require.NoError(t, err)
	assert.Equal(t, "discord", name)
	assert.True(t, bot.Enabled)
}

func TestLoadConfig_Defaults(t *testing.T) {
	config, err := LoadConfig(writeConfig(t, minimalConfig))

	require.NoError(t, err)
	assert.Equal(t, constants.DefaultCommandPrefix, config.CommandPrefix)
	assert.Equal(t, constants.DefaultWorkerCount, config.Dispatch.Workers)
	assert.Equal(t, constants.EventChannelBufferSize, config.Dispatch.EventBuffer)
	assert.Equal(t, features.NegativeWords, config.Dispatch.Denylist)
	assert.Equal(t, constants.DefaultHandlerTimeout, config.HandlerTimeout())
	assert.Equal(t, constants.DefaultSchedulerInterval, config.SchedulerInterval())
	assert.Equal(t, constants.DefaultDeliveryTimeout, config.DeliveryTimeout())
	assert.Equal(t, constants.DefaultPruneInterval, config.PruneInterval())
	assert.Equal(t, constants.DefaultFetchTimeout, config.FetchTimeout())
	assert.Equal(t, constants.DefaultAITimeout, config.AITimeout())
	assert.Equal(t, constants.DefaultMaxDeliveryAttempts, config.Scheduler.MaxDeliveryAttempts)
	assert.Equal(t, store.DriverJSON, config.Storage.Driver)
	assert.Equal(t, DefaultDataDir, config.Storage.Path)
	assert.Equal(t, features.WeatherBaseURL, config.Features.WeatherBaseURL)
	assert.Equal(t, constants.DefaultAIBaseURL, config.AI.BaseURL)
	assert.Equal(t, constants.DefaultAIMaxTokens, config.AI.MaxTokens)
	assert.Equal(t, DefaultAdminAddr, config.AdminServer.Addr)
	assert.Equal(t, DefaultLogLevel, config.Logging.Level)
	assert.True(t, config.Logging.EnableStdout)
	assert.Nil(t, config.Cooldowns())
}

func TestLoadConfig_EnvDefaults(t *testing.T) {
	t.Setenv("GUILDBOT_TEST_SET", "from-env")
	path := writeConfig(t, minimalConfig+`
ai:
  api_key: "${GUILDBOT_TEST_SET:-ignored}"
  model: "${GUILDBOT_TEST_UNSET_MODEL:-llama-3.1-8b-instant}"
features:
  news_api_key: "${GUILDBOT_TEST_UNSET_NEWS:-}"
`)

	config, err := LoadConfig(path)

	require.NoError(t, err)
	assert.Equal(t, "from-env", config.AI.APIKey)
	assert.Equal(t, "llama-3.1-8b-instant", config.AI.Model)
	assert.Empty(t, config.Features.NewsAPIKey)
}

func TestLoadConfig_MissingEnvVar(t *testing.T) {
	path := writeConfig(t, `
bots:
  discord:
    enabled: true
    token: "${GUILDBOT_TEST_MISSING_A}"
ai:
  api_key: "${GUILDBOT_TEST_MISSING_B}"
`)

	_, err := LoadConfig(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "GUILDBOT_TEST_MISSING_A, GUILDBOT_TEST_MISSING_B")
}

func TestLoadConfig_ReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Cleanup(func() { os.Unsetenv("GUILDBOT_TEST_DOTENV_TOKEN") })
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("GUILDBOT_TEST_DOTENV_TOKEN=from-dotenv\n"), 0600))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
bots:
  telegram:
    enabled: true
    token: "${GUILDBOT_TEST_DOTENV_TOKEN}"
`), 0600))

	config, err := LoadConfig(path)

	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", config.Bots["telegram"].Token)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestValidateConfig_Rejects(t *testing.T) {
	discord := map[string]BotConfig{"discord": {Enabled: true, Token: "t"}}
	tests := []struct {
		name   string
		config Config
		want   string
	}{
		{"no bots", Config{}, "exactly one bot must be enabled (got 0)"},
		{"two bots", Config{Bots: map[string]BotConfig{
			"discord":  {Enabled: true, Token: "t"},
			"telegram": {Enabled: true, Token: "t"},
		}}, "exactly one bot must be enabled (got 2)"},
		{"unknown platform", Config{Bots: map[string]BotConfig{"irc": {Enabled: true, Token: "t"}}}, "unsupported bot type"},
		{"no token", Config{Bots: map[string]BotConfig{"discord": {Enabled: true}}}, "bots.discord.token is required"},
		{"prefix with space", Config{CommandPrefix: "! ", Bots: discord}, "command_prefix"},
		{"bad timeout", Config{Bots: discord, Dispatch: DispatchConfig{HandlerTimeout: "soon"}}, "invalid dispatch.handler_timeout"},
		{"negative workers", Config{Bots: discord, Dispatch: DispatchConfig{Workers: -1}}, "dispatch.workers"},
		{"zero rate", Config{Bots: discord, RateLimits: map[string]RateLimitConfig{"x": {Window: "1s"}}}, "rate_limits.x.max"},
		{"rate without window", Config{Bots: discord, RateLimits: map[string]RateLimitConfig{"x": {Max: 1}}}, "rate_limits.x.window is required"},
		{"bad interval", Config{Bots: discord, Scheduler: SchedulerConfig{Interval: "-5s"}}, "invalid scheduler.interval"},
		{"unknown driver", Config{Bots: discord, Storage: StorageConfig{Driver: "mongo"}}, `unknown storage driver "mongo"`},
		{"postgres without dsn", Config{Bots: discord, Storage: StorageConfig{Driver: "postgres"}}, "storage.dsn is required"},
		{"unknown module", Config{Bots: discord, Features: FeaturesConfig{Disabled: []string{"music"}}}, `unknown module "music"`},
		{"admin disabled", Config{Bots: discord, Features: FeaturesConfig{Disabled: []string{"admin"}}}, "admin module cannot be disabled"},
		{"bad ai timeout", Config{Bots: discord, AI: AIConfig{Timeout: "forever"}}, "invalid ai.timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := tt.config
			err := validateConfig(&config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("GUILDBOT_TEST_A", "a")

	out, err := expandEnv("x=${GUILDBOT_TEST_A} y=${GUILDBOT_TEST_NOPE:-b} z=$GUILDBOT_TEST_A")

	require.NoError(t, err)
	assert.Equal(t, "x=a y=b z=a", out)
}

func TestGetBotConfig(t *testing.T) {
	config := &Config{Bots: map[string]BotConfig{
		"discord":  {Enabled: true, Token: "t"},
		"telegram": {Enabled: false},
	}}

	_, err := config.GetBotConfig("discord")
	assert.NoError(t, err)
	_, err = config.GetBotConfig("telegram")
	assert.ErrorContains(t, err, "disabled")
	_, err = config.GetBotConfig("slack")
	assert.ErrorContains(t, err, "not found")
}

func TestDurationAccessors_AcceptBotSyntax(t *testing.T) {
	config := &Config{Scheduler: SchedulerConfig{Interval: "1m 30s", PruneInterval: "2h"}}

	assert.Equal(t, 90*time.Second, config.SchedulerInterval())
	assert.Equal(t, 2*time.Hour, config.PruneInterval())
}
