package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiberone/kiberbot/internal/api"
	"github.com/kiberone/kiberbot/internal/config"
	"github.com/kiberone/kiberbot/internal/crm"
	"github.com/kiberone/kiberbot/internal/db"
	"github.com/kiberone/kiberbot/internal/logging"
	"github.com/kiberone/kiberbot/internal/notify"
)

func main() {
	// Load configuration
	cfg, err := config.LoadAPI()
	if err != nil {
		logging.New("info").WithError(err).Fatal("failed to load config")
	}
	logger := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to database
	database, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}
	defer database.Close()

	// Run migrations
	if err := database.RunMigrations(ctx); err != nil {
		logger.WithError(err).Fatal("failed to run migrations")
	}

	crmClient := crm.New(cfg.CRMBaseURL(), cfg.CRMAPIKey, logger,
		crm.WithTimeout(cfg.CRMTimeout),
		crm.WithExternalIDField(cfg.CRMField, cfg.CRMStrictField),
	)

	notifier, err := notify.New(cfg.TelegramToken, cfg.DirectorsChatID, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to create director notifier")
	}

	apiServer := api.New(api.Options{
		Bind:         cfg.Bind,
		CORSOrigins:  cfg.CORSOrigins,
		ServiceToken: cfg.ServiceToken,
		JWTSecret:    cfg.JWTSecret,
		TokenTTL:     cfg.TokenTTL,
	}, crmClient, database, notifier, logger)

	// Start API server
	errc := make(chan error, 1)
	go func() {
		errc <- apiServer.Start()
	}()

	select {
	case err := <-errc:
		if err != nil {
			logger.WithError(err).Error("API server error")
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("graceful shutdown failed")
	}
}
