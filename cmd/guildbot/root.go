package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "guildbot",
	Short: "guildbot is a chat bot for Discord and Telegram communities",
	Long: `guildbot connects to a chat platform gateway and routes every incoming
event (messages, member joins, reactions) to independently registered
feature handlers: commands, keyword replies, AI answers, moderation,
reminders, polls and audit logging.`,
	SilenceUsage: true,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

// defaultConfigLocations are tried in order when --config is not given.
func defaultConfigLocations() []string {
	return []string{
		"config.yaml",
		filepath.Join(os.Getenv("HOME"), ".config/guildbot/config.yaml"),
		"/etc/guildbot/config.yaml",
	}
}

// resolveConfigPath returns flag, or the first default location that exists.
func resolveConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	for _, loc := range defaultConfigLocations() {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}
