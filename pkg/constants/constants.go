package constants

import "time"

// Message length limits for different platforms
const (
	// MaxDiscordMessageLength is Discord's message character limit
	MaxDiscordMessageLength = 2000
	// MaxDiscordEmbedDescription is Discord's embed description limit
	MaxDiscordEmbedDescription = 4096
	// MaxTelegramMessageLength is Telegram's message character limit
	MaxTelegramMessageLength = 4096
)

// Dispatch defaults
const (
	// DefaultCommandPrefix is the prefix for text commands
	DefaultCommandPrefix = "!"
	// DefaultHandlerTimeout bounds a single handler invocation
	DefaultHandlerTimeout = 30 * time.Second
	// DefaultWorkerCount is the size of the handler worker pool
	DefaultWorkerCount = 16
	// EventChannelBufferSize is the buffer size for the inbound event channel
	EventChannelBufferSize = 100
	// MaxCommandInputLength rejects absurdly long command lines early
	MaxCommandInputLength = 4000
)

// Scheduler defaults
const (
	// DefaultSchedulerInterval is how often due reminders are polled
	DefaultSchedulerInterval = 30 * time.Second
	// DefaultDeliveryTimeout bounds a single reminder delivery
	DefaultDeliveryTimeout = 10 * time.Second
	// DefaultMaxDeliveryAttempts is the number of ticks a transient failure is retried
	DefaultMaxDeliveryAttempts = 5
	// DefaultPruneInterval is how often idle rate-limit buckets are dropped
	DefaultPruneInterval = 10 * time.Minute
)

// Feature limits
const (
	// MaxReminderDuration is the longest reminder accepted
	MaxReminderDuration = 30 * 24 * time.Hour
	// MaxTimeoutDuration is the longest member timeout accepted
	MaxTimeoutDuration = 7 * 24 * time.Hour
	// MaxPurgeCount is the maximum number of messages a purge deletes
	MaxPurgeCount = 100
	// MaxAutoReactions caps keyword reactions added to one message
	MaxAutoReactions = 3
	// ListedReminders is the number of reminders shown by the list command
	ListedReminders = 10
	// ListedWarnings is the number of warnings shown by the list command
	ListedWarnings = 5
	// LeaderboardSize is the number of entries on the leaderboard
	LeaderboardSize = 10
)

// Outbound retry
const (
	// DefaultRetryAttempts is the number of attempts for a retried gateway call
	DefaultRetryAttempts = 3
	// DefaultRetryBaseDelay is the first backoff delay
	DefaultRetryBaseDelay = 500 * time.Millisecond
	// MaxRetryDelay caps a single backoff delay
	MaxRetryDelay = 10 * time.Second
)

// Third-party HTTP
const (
	// DefaultFetchTimeout is the timeout for third-party API requests
	DefaultFetchTimeout = 10 * time.Second
	// DefaultAITimeout is the timeout for AI completion requests
	DefaultAITimeout = 30 * time.Second
	// DefaultAIMaxTokens is the completion token budget
	DefaultAIMaxTokens = 1000
	// DefaultAIBaseURL is the OpenAI-compatible Groq endpoint
	DefaultAIBaseURL = "https://api.groq.com/openai/v1"
)

// Token masking
const (
	// MinSecretLengthForMasking is the minimum secret length to apply masking
	MinSecretLengthForMasking = 10
	// SecretMaskPrefixLength is the length of prefix to show before masking
	SecretMaskPrefixLength = 4
	// SecretMaskSuffixLength is the length of suffix to show after masking
	SecretMaskSuffixLength = 4
)

// Logging defaults
const (
	// DefaultLogMaxSize is the default maximum log file size in MB
	DefaultLogMaxSize = 100
	// DefaultLogMaxAge is the default maximum number of days to retain old logs
	DefaultLogMaxAge = 30
)
