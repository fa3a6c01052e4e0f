package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net"

	"github.com/keepmind9/guildbot/internal/core"
	"github.com/keepmind9/guildbot/internal/features"
	"github.com/spf13/cobra"
)

var (
	validateConfigFile string
	validateShow       bool
	validateJSON       bool
)

// ValidationResult represents the validation result
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Config   string   `json:"config"`
	Platform string   `json:"platform,omitempty"`
	Storage  string   `json:"storage,omitempty"`
	Modules  []string `json:"modules,omitempty"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate guildbot configuration file",
	Long: `Validate the guildbot configuration file without starting the service.

This command checks:
  - YAML syntax and environment variables
  - Exactly one enabled bot with a token
  - Durations, storage driver and module names
  - Optional API keys (reported as warnings)

Exit codes:
  0 - Configuration is valid
  1 - Configuration has errors`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configFile := resolveConfigPath(validateConfigFile)
		if configFile == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "❌ No configuration file found")
			fmt.Fprintln(cmd.OutOrStdout(), "\nSpecify a config file with --config or ensure one exists at:")
			for _, loc := range defaultConfigLocations() {
				fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", loc)
			}
			return fmt.Errorf("no configuration file found")
		}

		result, cfg := validateFile(configFile)
		if validateShow && cfg != nil && !validateJSON {
			showConfig(cmd.OutOrStdout(), cfg)
		}
		outputValidationResult(cmd.OutOrStdout(), result, validateJSON)

		if !result.Valid {
			return fmt.Errorf("configuration is invalid")
		}
		return nil
	},
}

// validateFile loads path and collects errors and warnings.
func validateFile(path string) (ValidationResult, *core.Config) {
	cfg, err := core.LoadConfig(path)
	if err != nil {
		return ValidationResult{
			Valid:  false,
			Config: path,
			Errors: []string{err.Error()},
		}, nil
	}

	platform, _, _ := cfg.EnabledBot()
	result := ValidationResult{
		Valid:    true,
		Config:   path,
		Platform: platform,
		Storage:  cfg.Storage.Driver,
		Warnings: validateConfigDetails(cfg),
	}
	for _, name := range features.Names() {
		if cfg.ModuleEnabled(name) {
			result.Modules = append(result.Modules, name)
		}
	}
	return result, cfg
}

func showConfig(w io.Writer, cfg *core.Config) {
	platform, b, _ := cfg.EnabledBot()
	fmt.Fprintf(w, "Platform: %s\n", platform)
	if b.SyncGuild != "" {
		fmt.Fprintf(w, "  - slash commands synced to guild %s only\n", b.SyncGuild)
	}
	fmt.Fprintf(w, "Command prefix: %s\n", cfg.CommandPrefix)
	fmt.Fprintf(w, "Owners: %d\n", len(cfg.OwnerIDs(platform)))
	fmt.Fprintf(w, "Workers: %d, handler timeout: %s\n", cfg.Dispatch.Workers, cfg.HandlerTimeout())
	fmt.Fprintf(w, "Scheduler: every %s, %d delivery attempts\n", cfg.SchedulerInterval(), cfg.Scheduler.MaxDeliveryAttempts)
	fmt.Fprintf(w, "Storage: %s\n", cfg.Storage.Driver)
	if len(cfg.RateLimits) > 0 {
		fmt.Fprintf(w, "Rate limit overrides (%d):\n", len(cfg.RateLimits))
		for name, rl := range cfg.RateLimits {
			fmt.Fprintf(w, "  - %s: %d per %s\n", name, rl.Max, rl.Window)
		}
	}
	fmt.Fprintln(w)
}

func outputValidationResult(w io.Writer, result ValidationResult, jsonFormat bool) {
	if jsonFormat {
		output, err := json.Marshal(result)
		if err != nil {
			fmt.Fprintf(w, "{\"error\": \"failed to marshal json: %v\"}\n", err)
			return
		}
		fmt.Fprintln(w, string(output))
		return
	}

	if result.Valid {
		fmt.Fprintln(w, "✓ Configuration is valid")
		fmt.Fprintf(w, "  - Config: %s\n", result.Config)
		fmt.Fprintf(w, "  - Platform: %s\n", result.Platform)
		fmt.Fprintf(w, "  - Storage: %s\n", result.Storage)
		fmt.Fprintf(w, "  - Modules: %d\n", len(result.Modules))
		if len(result.Warnings) > 0 {
			fmt.Fprintln(w, "\n⚠️  Warnings:")
			for _, warning := range result.Warnings {
				fmt.Fprintf(w, "  - %s\n", warning)
			}
		}
		return
	}

	fmt.Fprintln(w, "❌ Configuration validation failed:")
	for _, errMsg := range result.Errors {
		fmt.Fprintf(w, "  - %s\n", errMsg)
	}
}

// validateConfigDetails reports settings that load fine but leave
// features unusable.
func validateConfigDetails(cfg *core.Config) []string {
	var warnings []string

	platform, _, _ := cfg.EnabledBot()
	if len(cfg.OwnerIDs(platform)) == 0 {
		warnings = append(warnings, fmt.Sprintf("No owners configured for %s - reload/load/unload commands are unusable", platform))
	}
	if cfg.ModuleEnabled(features.ModuleAI) && cfg.AI.APIKey == "" {
		warnings = append(warnings, "ai.api_key is empty - AI commands and auto-replies are disabled")
	}
	if cfg.ModuleEnabled(features.ModuleLookup) {
		if cfg.Features.WeatherAPIKey == "" {
			warnings = append(warnings, "features.weather_api_key is empty - the weather command is disabled")
		}
		if cfg.Features.NewsAPIKey == "" {
			warnings = append(warnings, "features.news_api_key is empty - the news command is disabled")
		}
	}
	if cfg.ModuleEnabled(features.ModuleBasic) && cfg.Features.ClientID == "" {
		warnings = append(warnings, "features.client_id is empty - the invite command cannot build a link")
	}
	if cfg.AdminServer.Enabled && !isLoopback(cfg.AdminServer.Addr) {
		warnings = append(warnings, fmt.Sprintf("admin_server.addr %s is not a loopback address - module control is unauthenticated", cfg.AdminServer.Addr))
	}

	return warnings
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func init() {
	validateCmd.Flags().StringVarP(&validateConfigFile, "config", "c", "", "Configuration file path")
	validateCmd.Flags().BoolVar(&validateShow, "show", false, "Show configuration details")
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "Output in JSON format")
}
