package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/gas-agency/internal/config"
	"github.com/example/gas-agency/internal/email"
	"github.com/example/gas-agency/internal/infrastructure/kafka"
	"github.com/example/gas-agency/internal/infrastructure/store/postgres"
	"github.com/example/gas-agency/internal/notification"
)

func main() {
	cfg, err := config.LoadNotifier()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})).With("service", "notifier")

	if err := run(cfg, logger); err != nil {
		logger.Error("notifier exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Notifier, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Accounts are read from the API's database to find recipients.
	db, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer db.Close()

	mailer := email.NewService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom)
	handler := notification.NewHandler(mailer, postgres.NewAccountRepository(db), logger)

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroup, logger)
	defer consumer.Close()

	logger.Info("consuming booking events",
		"brokers", cfg.KafkaBrokers,
		"topic", cfg.KafkaTopic,
		"group", cfg.KafkaGroup,
		"smtp", cfg.SMTPHost+":"+cfg.SMTPPort,
	)
	if err := consumer.Consume(ctx, handler.HandleEvent); err != nil && ctx.Err() == nil {
		return fmt.Errorf("consume: %w", err)
	}
	logger.Info("shutting down")
	return nil
}
