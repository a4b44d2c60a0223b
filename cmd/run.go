package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/cv-matcher/internal/chat"
	"github.com/spigell/cv-matcher/internal/secrets"
	"github.com/spigell/cv-matcher/internal/telegram"
)

const shutdownTimeout = 2 * time.Minute

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the telegram bot",
	Run: func(_ *cobra.Command, _ []string) {
		run()
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("token-file", "t", "", "a file with the telegram bot token")
	runCmd.Flags().Int64("max-concurrent", 0, "events handled at the same time across all chats")

	viper.BindPFlag("telegram.token-file", runCmd.Flags().Lookup("token-file"))
	viper.BindPFlag("sessions.max-concurrent", runCmd.Flags().Lookup("max-concurrent"))
}

// run serves chats over telegram until the process is interrupted.
func run() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := newLogger()

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the cv-matcher bot", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	token, err := secrets.Load(secrets.Source{
		Name: "telegram token",
		File: config.Telegram.TokenFile,
		Env:  "TELEGRAM_TOKEN",
	})
	if err != nil {
		logger.Fatal(
			"loading telegram token",
			zap.Error(err),
			zap.String("hint", "set TELEGRAM_TOKEN_FILE environment variable or the 'telegram.token-file' key in the configuration file"),
		)
	}

	core, err := newApplication(ctx, config, config.Telegram.Admins, logger)
	if err != nil {
		logger.Fatal("building the application", zap.Error(err))
	}

	bot, err := telegram.New(token, config.Telegram.Endpoint, logger.With(zap.String("component", "telegram")))
	if err != nil {
		logger.Fatal("connecting to telegram", zap.Error(err))
	}

	router := chat.NewRouter(ctx, core.machine, bot, config.Sessions.MaxConcurrent, logger.With(zap.String("component", "router")))

	if err := bot.Run(ctx, router); err != nil {
		logger.Error("receiving updates stopped", zap.Error(err))
	}

	logger.Info("shutting down", zap.Duration("timeout", shutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := router.Shutdown(shutdownCtx); err != nil {
		logger.Warn("events were still in flight at shutdown", zap.Error(err))
	}
	core.close(shutdownCtx)

	logger.Info("stopped", zap.Int("sessions", core.store.Len()))
}
