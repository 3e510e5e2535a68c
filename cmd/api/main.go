// Package main provides the entry point for the licensing API server.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/powerflow/licensing/internal/api"
	"github.com/powerflow/licensing/internal/auth"
	"github.com/powerflow/licensing/internal/mail"
	pgstore "github.com/powerflow/licensing/internal/store/postgres"
	"github.com/powerflow/licensing/pkg/config"
	"github.com/powerflow/licensing/pkg/logger"
)

func main() {
	log := logger.New(slog.LevelInfo, true)

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	storeCfg := pgstore.DefaultConfig(cfg.DatabaseDSN)
	store, err := pgstore.NewPostgresStore(storeCfg, log.Logger)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	authService := auth.NewService(&auth.Config{
		JWTSecret:   []byte(cfg.JWTSecret),
		TokenExpiry: cfg.JWTExpiry,
		BcryptCost:  cfg.BcryptCost,
	}, log.Logger)

	// Without an API key all outbound mail goes to the log. Useful for
	// local development, never for production.
	var mailer mail.Sender
	if cfg.MailAPIKey != "" {
		mailer = mail.NewHTTPSender(&mail.Config{
			Endpoint: cfg.MailEndpoint,
			APIKey:   cfg.MailAPIKey,
			From:     cfg.MailFrom,
		}, log.Logger)
	} else {
		log.Warn("MAIL_API_KEY not set, emails will be logged instead of sent")
		mailer = mail.NewLogSender(log.Logger)
	}

	server := api.NewServer(cfg, store, authService, mailer, log.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
