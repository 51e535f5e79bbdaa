// Package app bootstraps the three deployable services: the balance ledger,
// the cash/transfer orchestrator and the risk-gate blocker.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/velesbank/moneymove/internal/api"
	"github.com/velesbank/moneymove/internal/clients"
	"github.com/velesbank/moneymove/internal/config"
	"github.com/velesbank/moneymove/internal/db"
	"github.com/velesbank/moneymove/internal/idempotency"
	"github.com/velesbank/moneymove/internal/ledger"
	"github.com/velesbank/moneymove/internal/notify"
	"github.com/velesbank/moneymove/internal/observability"
	"github.com/velesbank/moneymove/internal/orchestrator"
	"github.com/velesbank/moneymove/internal/records"
	"github.com/velesbank/moneymove/internal/risk"
	"github.com/velesbank/moneymove/internal/worker"
)

// RunLedger starts the balance-ledger service, blocking until shutdown.
func RunLedger() error {
	cfg, err := config.LoadLedger()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := db.Migrate(cfg.DatabaseURL, db.MigrationsLedger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	svc := ledger.NewService(ledger.NewPostgresStore(pool), logger)
	router := api.LedgerRouter(svc, pool, logger)

	return serve(cfg.HTTPPort, router, logger, nil)
}

// RunOrchestrator starts the cash/transfer service, blocking until shutdown.
func RunOrchestrator() error {
	cfg, err := config.LoadOrchestrator()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := db.Migrate(cfg.DatabaseURL, db.MigrationsRecords); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	redisClient, err := newRedisClient(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	emitter, err := notify.NewEmitter(notify.NewWriter(cfg.KafkaBrokers, cfg.NotificationTopic), cfg.NotifyPoolSize, logger)
	if err != nil {
		return fmt.Errorf("init notification emitter: %w", err)
	}

	recordStore := records.NewPostgresStore(pool)
	sweeper := worker.NewSweeper(recordStore, cfg.SweepInterval, cfg.StaleAfter, logger)
	stopSweeper := sweeper.Run(ctx)

	svc := orchestrator.NewService(
		recordStore,
		clients.NewLedgerClient(cfg.LedgerBaseURL, cfg.ConnectTimeout, cfg.ReadTimeout, logger),
		clients.NewBlockerClient(cfg.BlockerBaseURL, cfg.RiskTimeout, logger),
		emitter,
		logger,
	)

	idemStore := idempotency.NewStore(redisClient, cfg.IdempotencyTTL)
	router := api.OrchestratorRouter(svc, idemStore, pool, redisClient, cfg.PublicRateLimit, logger)

	return serve(cfg.HTTPPort, router, logger, func() {
		stopSweeper()
		if err := emitter.Close(); err != nil {
			logger.Warn("close notification emitter", zap.Error(err))
		}
	})
}

// RunBlocker starts the risk-gate service, blocking until shutdown.
func RunBlocker() error {
	cfg, err := config.LoadBlocker()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()

	decider := risk.NewEveryNth(cfg.BlockEvery, logger)
	router := api.BlockerRouter(decider, logger)

	return serve(cfg.HTTPPort, router, logger, nil)
}

// serve runs the HTTP server until SIGINT/SIGTERM, then drains it. onStop
// runs after the server stops accepting requests.
func serve(port string, handler http.Handler, logger *zap.Logger, onStop func()) error {
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", port))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	if onStop != nil {
		onStop()
	}

	logger.Info("shutdown complete")
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
