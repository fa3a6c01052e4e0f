package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/keepmind9/guildbot/internal/bot"
	"github.com/keepmind9/guildbot/internal/core"
	"github.com/keepmind9/guildbot/internal/logger"
	"github.com/keepmind9/guildbot/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configFile    string
	serveValidate bool

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the bot",
		Long:  "Connect to the configured platform and dispatch events to feature handlers until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveConfigPath(configFile)
			if path == "" {
				return fmt.Errorf("no configuration file found; pass --config")
			}

			config, err := core.LoadConfig(path)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if serveValidate {
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Configuration is valid: %s\n", path)
				return nil
			}

			return serve(path, config)
		},
	}
)

func serve(path string, config *core.Config) error {
	logConfig := logger.Config{
		Level:        config.Logging.Level,
		File:         config.Logging.File,
		MaxSize:      config.Logging.MaxSize,
		MaxBackups:   config.Logging.MaxBackups,
		MaxAge:       config.Logging.MaxAge,
		Compress:     config.Logging.Compress,
		EnableStdout: config.Logging.EnableStdout,
	}
	if err := logger.InitLogger(logConfig); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	name, botConfig, err := config.EnabledBot()
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"config_file": path,
		"log_level":   config.Logging.Level,
		"platform":    name,
		"token":       logger.MaskSecret(botConfig.Token),
		"storage":     config.Storage.Driver,
	}).Info("logger-initialized")

	st, err := store.Open(config.StoreConfig())
	if err != nil {
		return fmt.Errorf("failed to open %s storage: %w", config.Storage.Driver, err)
	}
	defer st.Close()

	platform, err := newPlatform(name, botConfig)
	if err != nil {
		return err
	}

	engine, err := core.NewEngine(config, platform, st)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("guildbot starting on %s (prefix %q)\n", name, config.CommandPrefix)
	if config.AdminServer.Enabled {
		fmt.Printf("Admin server: http://%s\n", config.AdminServer.Addr)
	}
	fmt.Println("Press Ctrl+C to stop")

	runErr := engine.Run(ctx)
	if runErr == nil {
		logger.Info("shutdown-signal-received")
	}
	if err := engine.Stop(); err != nil {
		logger.WithError(err).Error("engine-stop-failed")
	}
	return runErr
}

// newPlatform builds the adapter for the enabled bot.
func newPlatform(name string, cfg core.BotConfig) (bot.Platform, error) {
	switch name {
	case bot.PlatformDiscord:
		return bot.NewDiscordBot(cfg.Token), nil
	case bot.PlatformTelegram:
		return bot.NewTelegramBot(cfg.Token), nil
	default:
		return nil, fmt.Errorf("bot type %q is not supported", name)
	}
}

func init() {
	serveCmd.Flags().StringVarP(&configFile, "config", "c", "", "Configuration file path")
	serveCmd.Flags().BoolVar(&serveValidate, "validate", false, "Validate configuration and exit")
}
