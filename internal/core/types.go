package core

import (
	"time"

	"github.com/keepmind9/guildbot/internal/duration"
)

// Config represents the complete guildbot configuration structure
type Config struct {
	CommandPrefix string                     `yaml:"command_prefix"`
	Security      SecurityConfig             `yaml:"security"`
	Bots          map[string]BotConfig       `yaml:"bots"`
	Dispatch      DispatchConfig             `yaml:"dispatch"`
	RateLimits    map[string]RateLimitConfig `yaml:"rate_limits"`
	Scheduler     SchedulerConfig            `yaml:"scheduler"`
	Storage       StorageConfig              `yaml:"storage"`
	Features      FeaturesConfig             `yaml:"features"`
	AI            AIConfig                   `yaml:"ai"`
	AdminServer   AdminServerConfig          `yaml:"admin_server"`
	Logging       LoggingConfig              `yaml:"logging"`
}

// SecurityConfig lists privileged users per platform
type SecurityConfig struct {
	Owners map[string][]string `yaml:"owners"`
	Admins map[string][]string `yaml:"admins"`
}

// BotConfig represents bot configuration
type BotConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	// SyncGuild limits slash command sync to one guild; empty syncs to
	// every guild the bot is in.
	SyncGuild string `yaml:"sync_guild"`
}

// DispatchConfig controls the event loop and handler pool
type DispatchConfig struct {
	HandlerTimeout string   `yaml:"handler_timeout"`
	Workers        int      `yaml:"workers"`
	EventBuffer    int      `yaml:"event_buffer"`
	Denylist       []string `yaml:"denylist"`
}

// RateLimitConfig overrides a handler's cooldown
type RateLimitConfig struct {
	Max    int    `yaml:"max"`
	Window string `yaml:"window"`
}

// SchedulerConfig controls periodic tasks
type SchedulerConfig struct {
	Interval            string `yaml:"interval"`
	DeliveryTimeout     string `yaml:"delivery_timeout"`
	MaxDeliveryAttempts int    `yaml:"max_delivery_attempts"`
	PruneInterval       string `yaml:"prune_interval"`
}

// StorageConfig selects the persistence backend
type StorageConfig struct {
	Driver string `yaml:"driver"` // json, sqlite, postgres
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

// FeaturesConfig holds third-party API settings and module selection
type FeaturesConfig struct {
	ClientID       string   `yaml:"client_id"`
	WeatherAPIKey  string   `yaml:"weather_api_key"`
	WeatherBaseURL string   `yaml:"weather_base_url"`
	CryptoBaseURL  string   `yaml:"crypto_base_url"`
	NewsAPIKey     string   `yaml:"news_api_key"`
	NewsBaseURL    string   `yaml:"news_base_url"`
	FetchTimeout   string   `yaml:"fetch_timeout"`
	Disabled       []string `yaml:"disabled"` // modules not loaded at startup
}

// AIConfig configures the completion client
type AIConfig struct {
	APIKey      string   `yaml:"api_key"`
	BaseURL     string   `yaml:"base_url"`
	Models      []string `yaml:"models"`
	Model       string   `yaml:"model"`
	MaxTokens   int      `yaml:"max_tokens"`
	Temperature float32  `yaml:"temperature"`
	Timeout     string   `yaml:"timeout"`
}

// AdminServerConfig represents the admin HTTP server configuration
type AdminServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`         // debug, info, warn, error
	File         string `yaml:"file"`          // Log file path
	MaxSize      int    `yaml:"max_size"`      // Single file max size in MB (default: 100)
	MaxBackups   int    `yaml:"max_backups"`   // Number of backups to keep (default: 5)
	MaxAge       int    `yaml:"max_age"`       // Maximum days to retain (default: 30)
	Compress     bool   `yaml:"compress"`      // Whether to compress old logs
	EnableStdout bool   `yaml:"enable_stdout"` // Also output to stdout
}

// durationOr parses s, falling back to def when s is empty or invalid.
// validateConfig rejects invalid values before this is reached.
func durationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := duration.ParseConfig(s)
	if err != nil {
		return def
	}
	return d
}
