// Package core wires configuration, platform adapters, the dispatcher and
// the scheduler into a running bot.
//
// It handles:
//
//   - Configuration loading and validation (from YAML files and .env)
//   - Building the handler registry from feature modules
//   - The event loop feeding the dispatcher
//   - Periodic tasks (reminder delivery, rate-limit pruning)
//   - The admin HTTP server
//   - Graceful shutdown and cleanup
//
// # Main Components
//
//   - Engine: Central orchestration engine
//   - Config: Configuration structure and loading
//   - AdminServer: Health, status and module control over HTTP
//
// # Configuration
//
// Configuration is loaded from a YAML file with the following main sections:
//
//   - command_prefix: prefix for text commands
//   - security: bot owners and admins per platform
//   - bots: platform bot configurations (exactly one enabled)
//   - dispatch: handler timeout, worker pool size, denylist
//   - rate_limits: cooldown overrides by handler name
//   - scheduler: reminder polling and delivery settings
//   - storage: json, sqlite or postgres backend
//   - features: third-party API keys and disabled modules
//   - ai: completion client settings
//   - admin_server: admin HTTP listener
//   - logging: Log configuration
//
// Values may reference environment variables as ${VAR} or
// ${VAR:-default}. A .env file next to the config file is loaded first.
//
// # Example Configuration
//
//	command_prefix: "!"
//	security:
//	  owners:
//	    discord: ["123456789"]
//	bots:
//	  discord:
//	    enabled: true
//	    token: "${DISCORD_TOKEN}"
//	storage:
//	  driver: sqlite
//	  path: ./data
//	ai:
//	  api_key: "${GROQ_API_KEY:-}"
package core

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/keepmind9/guildbot/internal/bot"
	"github.com/keepmind9/guildbot/internal/duration"
	"github.com/keepmind9/guildbot/internal/features"
	"github.com/keepmind9/guildbot/internal/registry"
	"github.com/keepmind9/guildbot/internal/store"
	"github.com/keepmind9/guildbot/pkg/constants"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAdminAddr     = "127.0.0.1:8080"
	DefaultDataDir       = "./data"
	DefaultLogLevel      = "info"
	DefaultLogMaxBackups = 5
)

// LoadConfig loads configuration from file and expands environment variables
func LoadConfig(configPath string) (*Config, error) {
	if err := loadDotEnv(filepath.Join(filepath.Dir(configPath), ".env")); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData, err := expandEnv(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to expand environment variables: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// loadDotEnv loads path into the environment without overriding variables
// that are already set. A missing file is fine.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load %s: %w", path, err)
}

// expandEnv replaces ${VAR} and ${VAR:-default} patterns with environment
// variable values. A ${VAR} without a value is an error.
func expandEnv(input string) (string, error) {
	var missingVars []string

	result := os.Expand(input, func(key string) string {
		name, def, hasDefault := strings.Cut(key, ":-")
		if val := os.Getenv(name); val != "" {
			return val
		}
		if hasDefault {
			return def
		}
		missingVars = append(missingVars, name)
		return ""
	})

	if len(missingVars) > 0 {
		return "", fmt.Errorf("missing required environment variables: %s",
			strings.Join(missingVars, ", "))
	}

	return result, nil
}

// validateConfig fills defaults and rejects inconsistent settings
func validateConfig(config *Config) error {
	if config.CommandPrefix == "" {
		config.CommandPrefix = constants.DefaultCommandPrefix
	}
	if strings.ContainsAny(config.CommandPrefix, " \t\n") {
		return fmt.Errorf("command_prefix must not contain whitespace")
	}

	// Exactly one platform connection per process
	enabled := 0
	for name, b := range config.Bots {
		if !b.Enabled {
			continue
		}
		enabled++
		if name != bot.PlatformDiscord && name != bot.PlatformTelegram {
			return fmt.Errorf("unsupported bot type %q (want %s or %s)", name, bot.PlatformDiscord, bot.PlatformTelegram)
		}
		if b.Token == "" {
			return fmt.Errorf("bots.%s.token is required", name)
		}
	}
	if enabled != 1 {
		return fmt.Errorf("exactly one bot must be enabled (got %d)", enabled)
	}

	// Dispatch
	if err := checkDuration("dispatch.handler_timeout", config.Dispatch.HandlerTimeout); err != nil {
		return err
	}
	if config.Dispatch.Workers < 0 {
		return fmt.Errorf("dispatch.workers must not be negative")
	}
	if config.Dispatch.Workers == 0 {
		config.Dispatch.Workers = constants.DefaultWorkerCount
	}
	if config.Dispatch.EventBuffer <= 0 {
		config.Dispatch.EventBuffer = constants.EventChannelBufferSize
	}
	if len(config.Dispatch.Denylist) == 0 {
		config.Dispatch.Denylist = features.NegativeWords
	}

	for name, rl := range config.RateLimits {
		if rl.Max < 1 {
			return fmt.Errorf("rate_limits.%s.max must be at least 1", name)
		}
		if rl.Window == "" {
			return fmt.Errorf("rate_limits.%s.window is required", name)
		}
		if err := checkDuration("rate_limits."+name+".window", rl.Window); err != nil {
			return err
		}
	}

	// Scheduler
	for field, v := range map[string]string{
		"scheduler.interval":         config.Scheduler.Interval,
		"scheduler.delivery_timeout": config.Scheduler.DeliveryTimeout,
		"scheduler.prune_interval":   config.Scheduler.PruneInterval,
	} {
		if err := checkDuration(field, v); err != nil {
			return err
		}
	}
	if config.Scheduler.MaxDeliveryAttempts < 0 {
		return fmt.Errorf("scheduler.max_delivery_attempts must not be negative")
	}
	if config.Scheduler.MaxDeliveryAttempts == 0 {
		config.Scheduler.MaxDeliveryAttempts = constants.DefaultMaxDeliveryAttempts
	}

	// Storage
	if config.Storage.Driver == "" {
		config.Storage.Driver = store.DriverJSON
	}
	switch config.Storage.Driver {
	case store.DriverJSON, store.DriverSQLite:
		if config.Storage.Path == "" {
			config.Storage.Path = DefaultDataDir
		}
	case store.DriverPostgres:
		if config.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", config.Storage.Driver)
	}

	// Features
	if config.Features.WeatherBaseURL == "" {
		config.Features.WeatherBaseURL = features.WeatherBaseURL
	}
	if config.Features.CryptoBaseURL == "" {
		config.Features.CryptoBaseURL = features.CryptoBaseURL
	}
	if config.Features.NewsBaseURL == "" {
		config.Features.NewsBaseURL = features.NewsBaseURL
	}
	if err := checkDuration("features.fetch_timeout", config.Features.FetchTimeout); err != nil {
		return err
	}
	for _, name := range config.Features.Disabled {
		if !isModule(name) {
			return fmt.Errorf("features.disabled: unknown module %q", name)
		}
		if name == features.ModuleAdmin {
			return fmt.Errorf("features.disabled: the admin module cannot be disabled")
		}
	}

	// AI
	if config.AI.BaseURL == "" {
		config.AI.BaseURL = constants.DefaultAIBaseURL
	}
	if config.AI.MaxTokens == 0 {
		config.AI.MaxTokens = constants.DefaultAIMaxTokens
	}
	if err := checkDuration("ai.timeout", config.AI.Timeout); err != nil {
		return err
	}

	if config.AdminServer.Addr == "" {
		config.AdminServer.Addr = DefaultAdminAddr
	}

	// Logging
	if config.Logging.Level == "" {
		config.Logging.Level = DefaultLogLevel
	}
	if config.Logging.MaxSize == 0 {
		config.Logging.MaxSize = constants.DefaultLogMaxSize
	}
	if config.Logging.MaxBackups == 0 {
		config.Logging.MaxBackups = DefaultLogMaxBackups
	}
	if config.Logging.MaxAge == 0 {
		config.Logging.MaxAge = constants.DefaultLogMaxAge
	}
	if config.Logging.File == "" && !config.Logging.EnableStdout {
		config.Logging.EnableStdout = true
	}

	return nil
}

func checkDuration(field, v string) error {
	if v == "" {
		return nil
	}
	if _, err := duration.ParseConfig(v); err != nil {
		return fmt.Errorf("invalid %s: %w", field, err)
	}
	return nil
}

func isModule(name string) bool {
	for _, n := range features.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// EnabledBot returns the single enabled bot and its platform name
func (c *Config) EnabledBot() (string, BotConfig, error) {
	for name, b := range c.Bots {
		if b.Enabled {
			return name, b, nil
		}
	}
	return "", BotConfig{}, fmt.Errorf("no bot is enabled")
}

// GetBotConfig retrieves configuration for a specific bot
func (c *Config) GetBotConfig(botType string) (BotConfig, error) {
	b, exists := c.Bots[botType]
	if !exists {
		return BotConfig{}, fmt.Errorf("bot type %s not found in configuration", botType)
	}

	if !b.Enabled {
		return BotConfig{}, fmt.Errorf("bot type %s is disabled", botType)
	}

	return b, nil
}

// OwnerIDs returns the users allowed to run owner-only commands on a
// platform. Admins are owners for that purpose.
func (c *Config) OwnerIDs(platform string) []string {
	var ids []string
	seen := make(map[string]bool)
	for _, list := range [][]string{c.Security.Owners[platform], c.Security.Admins[platform]} {
		for _, id := range list {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// IsAdmin checks if a user is an owner or admin
func (c *Config) IsAdmin(platform, userID string) bool {
	for _, id := range c.OwnerIDs(platform) {
		if id == userID {
			return true
		}
	}
	return false
}

// Cooldowns converts rate_limits into dispatcher overrides
func (c *Config) Cooldowns() map[string]registry.Cooldown {
	if len(c.RateLimits) == 0 {
		return nil
	}
	out := make(map[string]registry.Cooldown, len(c.RateLimits))
	for name, rl := range c.RateLimits {
		out[name] = registry.Cooldown{Max: rl.Max, Window: durationOr(rl.Window, 0)}
	}
	return out
}

// HandlerTimeout is the per-invocation deadline
func (c *Config) HandlerTimeout() time.Duration {
	return durationOr(c.Dispatch.HandlerTimeout, constants.DefaultHandlerTimeout)
}

// SchedulerInterval is the reminder polling interval
func (c *Config) SchedulerInterval() time.Duration {
	return durationOr(c.Scheduler.Interval, constants.DefaultSchedulerInterval)
}

// DeliveryTimeout bounds one reminder delivery
func (c *Config) DeliveryTimeout() time.Duration {
	return durationOr(c.Scheduler.DeliveryTimeout, constants.DefaultDeliveryTimeout)
}

// PruneInterval is how often idle rate-limit buckets are dropped
func (c *Config) PruneInterval() time.Duration {
	return durationOr(c.Scheduler.PruneInterval, constants.DefaultPruneInterval)
}

// FetchTimeout bounds third-party API requests
func (c *Config) FetchTimeout() time.Duration {
	return durationOr(c.Features.FetchTimeout, constants.DefaultFetchTimeout)
}

// AITimeout bounds a completion request
func (c *Config) AITimeout() time.Duration {
	return durationOr(c.AI.Timeout, constants.DefaultAITimeout)
}

// StoreConfig converts the storage section for store.Open
func (c *Config) StoreConfig() store.Config {
	return store.Config{Driver: c.Storage.Driver, Path: c.Storage.Path, DSN: c.Storage.DSN}
}

// ModuleEnabled reports whether a module loads at startup
func (c *Config) ModuleEnabled(name string) bool {
	for _, d := range c.Features.Disabled {
		if d == name {
			return false
		}
	}
	return true
}
