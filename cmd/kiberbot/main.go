package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kiberone/kiberbot/internal/backend"
	"github.com/kiberone/kiberbot/internal/bot"
	"github.com/kiberone/kiberbot/internal/config"
	"github.com/kiberone/kiberbot/internal/logging"
)

func main() {
	// Load configuration
	cfg, err := config.LoadBot()
	if err != nil {
		logging.New("info").WithError(err).Fatal("failed to load config")
	}
	logger := logging.New(cfg.LogLevel)

	client := backend.New(cfg.BackendURL, cfg.BackendToken, cfg.BackendTimeout, logger)

	telegramBot, err := bot.New(cfg.TelegramToken, client, cfg.Admins, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to create telegram bot")
	}

	// Wait for signal to stop
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := telegramBot.Run(ctx); err != nil {
		logger.WithError(err).Fatal("telegram bot stopped with error")
	}
	logger.Info("shutdown complete")
}
