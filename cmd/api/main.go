package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/gas-agency/internal/api"
	"github.com/example/gas-agency/internal/auth"
	"github.com/example/gas-agency/internal/clock"
	"github.com/example/gas-agency/internal/config"
	"github.com/example/gas-agency/internal/domain/account"
	"github.com/example/gas-agency/internal/domain/booking"
	"github.com/example/gas-agency/internal/domain/stock"
	"github.com/example/gas-agency/internal/infrastructure/cache"
	"github.com/example/gas-agency/internal/infrastructure/kafka"
	"github.com/example/gas-agency/internal/infrastructure/store"
	"github.com/example/gas-agency/internal/infrastructure/store/memory"
	"github.com/example/gas-agency/internal/infrastructure/store/postgres"
	"github.com/example/gas-agency/migrations"
)

const (
	outboxBatchSize = 100
	shutdownTimeout = 10 * time.Second
)

// backend is the set of repositories one store driver provides.
type backend struct {
	tx       store.Transactor
	events   store.EventLog
	outbox   store.Outbox
	accounts account.Repository
	sessions account.SessionRepository
	stock    stock.Repository
	bookings booking.Repository
	pinger   api.Pinger
	close    func() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Debug).With("service", "api")
	if err := run(cfg, logger); err != nil {
		logger.Error("api exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.App, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := be.close(); err != nil {
			logger.Warn("close store", "error", err)
		}
	}()

	clk := clock.NewSystem()
	tokens := auth.NewJWTService(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.SessionTTL, auth.WithClock(clk))

	accounts := account.NewService(be.tx, be.accounts, be.sessions, be.events, tokens, clk, logger)
	ledger := stock.NewLedger(be.tx, be.stock, be.events, clk, logger)
	workflow := booking.NewWorkflow(be.tx, be.bookings, ledger, be.events, clk, logger)

	if cfg.BootstrapStaffUsername != "" {
		staff, err := accounts.EnsureStaff(ctx, cfg.BootstrapStaffUsername, cfg.BootstrapStaffPassword)
		if err != nil {
			return fmt.Errorf("bootstrap staff account: %w", err)
		}
		logger.Info("staff account ready", "account_id", staff.ID, "username", staff.Username)
	}

	deps := api.Deps{
		Accounts: accounts,
		Ledger:   ledger,
		Bookings: workflow,
		Store:    be.pinger,
		Logger:   logger,
	}
	if cfg.RedisEnabled() {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		deps.StockCache = cache.NewStockCache(rdb, cfg.StockCacheTTL)
		deps.Idempotency = cache.NewIdempotencyStore(rdb, cfg.IdempotencyTTL)
		logger.Info("redis connected", "addr", cfg.RedisAddr)
	} else {
		logger.Info("redis not configured; stock cache and idempotency keys disabled")
	}

	var wg sync.WaitGroup

	if cfg.KafkaEnabled() {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()

		relay := store.NewRelay(be.outbox, producer, outboxBatchSize, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			relay.Run(ctx, cfg.OutboxInterval)
		}()
		logger.Info("outbox relay started", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		logger.Info("kafka not configured; events stay in the outbox")
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		accounts.RunSessionCleanup(ctx, cfg.SessionCleanupInterval)
	}()

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.NewRouter(api.NewHandlers(deps), logger, cfg.AllowedOrigins),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server started", "addr", server.Addr, "store", cfg.StoreDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			stop()
			wg.Wait()
			return fmt.Errorf("serve http: %w", err)
		}
	}

	logger.Info("shutting down")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}
	wg.Wait()
	return nil
}

func openBackend(ctx context.Context, cfg config.App, logger *slog.Logger) (*backend, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		db := memory.New()
		events := memory.NewEventLog(db)
		logger.Warn("using in-memory store; data is lost on restart")
		return &backend{
			tx:       db,
			events:   events,
			outbox:   events,
			accounts: memory.NewAccountRepository(db),
			sessions: memory.NewSessionRepository(db),
			stock:    memory.NewStockRepository(db),
			bookings: memory.NewBookingRepository(db),
			pinger:   db,
			close:    func() error { return nil },
		}, nil

	default:
		db, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := migrations.Apply(ctx, db.SQL()); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		logger.Info("connected to postgres; migrations applied")

		events := postgres.NewEventLog(db)
		return &backend{
			tx:       db,
			events:   events,
			outbox:   events,
			accounts: postgres.NewAccountRepository(db),
			sessions: postgres.NewSessionRepository(db),
			stock:    postgres.NewStockRepository(db),
			bookings: postgres.NewBookingRepository(db),
			pinger:   db,
			close:    db.Close,
		}, nil
	}
}

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
