/*
main.go - Application entry point

PURPOSE:
  Starts the virtual wallet server: ledger, recurring scheduler, notifier
  and HTTP API. Handles configuration, dependency injection, and graceful
  shutdown.

STARTUP SEQUENCE:
  1. Load .env and configuration (see config package)
  2. Apply command-line flags
  3. Open the store (sqlite, postgres or memory)
  4. Connect the notifier (log, rabbitmq or kafka)
  5. Re-register recurring jobs and start the scheduler
  6. Start the HTTP server

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides SERVER_PORT)
  -db      SQLite database path (overrides SQLITE_PATH)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler and wait for running firings
  4. Close notifier and database connections

EXAMPLES:
  ./server -db="./data/wallet.db"
  DATABASE_DRIVER=postgres DATABASE_URL=postgres://... ./server
  NOTIFIER=kafka KAFKA_BROKERS=localhost:9092 ./server -port=3000

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Environment keys
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/warp/virtual-wallet/api"
	"github.com/warp/virtual-wallet/config"
	"github.com/warp/virtual-wallet/notify"
	"github.com/warp/virtual-wallet/notify/kafka"
	"github.com/warp/virtual-wallet/notify/rabbitmq"
	"github.com/warp/virtual-wallet/scheduler"
	"github.com/warp/virtual-wallet/store/postgres"
	"github.com/warp/virtual-wallet/store/sqlite"
	"github.com/warp/virtual-wallet/wallet"
	"github.com/warp/virtual-wallet/wallet/store"
)

// backend is what the server needs from a store.
type backend interface {
	wallet.Store
	wallet.AccountAdmin
}

// notifier is a wallet.Notifier holding a connection.
type notifier interface {
	wallet.Notifier
	io.Closer
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found, relying on environment variables")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Flags
	port := flag.Int("port", cfg.ServerPort, "HTTP server port")
	dbPath := flag.String("db", cfg.SQLitePath, "SQLite database path")
	flag.Parse()
	cfg.ServerPort = *port
	cfg.SQLitePath = *dbPath

	level, _ := cfg.Level()
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	// Initialize store
	db, closeDB, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer closeDB()

	if err := seedAccounts(ctx, cfg, db, logger); err != nil {
		return err
	}

	// Initialize notifier
	notes := openNotifier(cfg, logger)
	defer func() {
		if err := notes.Close(); err != nil {
			logger.Warn("failed to close notifier", "error", err)
		}
	}()

	// Initialize scheduler and ledger
	loc, _ := cfg.Location()
	sched := scheduler.New(logger, loc)
	ledger := wallet.NewLedger(db, sched, notes, logger, wallet.WithLocation(loc))

	restored, err := ledger.RestoreRecurring(ctx)
	if err != nil {
		return fmt.Errorf("restore recurring jobs: %w", err)
	}
	sched.Start()
	logger.Info("recurring scheduler running", "restored_jobs", restored)

	// Create router and server
	handler := api.NewHandler(ledger, db, logger)
	router := api.NewRouter(handler, cfg.Origins())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", server.Addr, "driver", cfg.DatabaseDriver, "notifier", cfg.Notifier)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutting down server", "signal", sig.String())
	case err := <-serverErr:
		<-sched.Stop().Done()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	select {
	case <-sched.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn("scheduler did not stop in time")
	}

	logger.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (backend, func(), error) {
	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		db, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("connected to postgres")
		return db, func() { db.Close() }, nil
	case config.DriverMemory:
		logger.Warn("using in-memory store; data is lost on exit")
		return store.NewMemory(), func() {}, nil
	default:
		db, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("opened sqlite database", "path", cfg.SQLitePath)
		return db, func() { db.Close() }, nil
	}
}

// seedAccounts creates SEED_ACCOUNTS that do not exist yet.
func seedAccounts(ctx context.Context, cfg *config.Config, db wallet.AccountAdmin, logger *slog.Logger) error {
	seeds, err := cfg.Seeds()
	if err != nil {
		return err
	}
	for _, seed := range seeds {
		err := db.CreateAccount(ctx, seed.Username, seed.Balance)
		switch {
		case errors.Is(err, wallet.ErrAccountExists):
		case err != nil:
			return fmt.Errorf("seed account %s: %w", seed.Username, err)
		default:
			logger.Info("seeded account", "username", seed.Username, "balance", wallet.FormatMoney(seed.Balance))
		}
	}
	return nil
}

func openNotifier(cfg *config.Config, logger *slog.Logger) notifier {
	switch cfg.Notifier {
	case config.NotifierRabbitMQ:
		producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, cfg.NotificationExchange, logger)
		if err != nil {
			logger.Warn("RabbitMQ unavailable; notifications will only be logged", "error", err)
			return notify.NewBroker(&rabbitmq.Fallback{Logger: logger}, logger)
		}
		logger.Info("publishing notifications to RabbitMQ", "exchange", cfg.NotificationExchange)
		return notify.NewBroker(producer, logger)
	case config.NotifierKafka:
		logger.Info("publishing notifications to Kafka", "topic", cfg.KafkaTopic)
		return notify.NewBroker(kafka.NewPublisher(cfg.Brokers(), cfg.KafkaTopic, logger), logger)
	default:
		return notify.NewLog(logger)
	}
}
