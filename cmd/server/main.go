package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/alphalens/alphalens/internal/adapters/config"
	"github.com/alphalens/alphalens/internal/adapters/database"
	"github.com/alphalens/alphalens/internal/adapters/marketdata"
	"github.com/alphalens/alphalens/internal/adapters/metrics"
	redisAdapter "github.com/alphalens/alphalens/internal/adapters/redis"
	"github.com/alphalens/alphalens/internal/adapters/telegram"
	"github.com/alphalens/alphalens/internal/agent"
	"github.com/alphalens/alphalens/internal/api"
	"github.com/alphalens/alphalens/internal/health"
	"github.com/alphalens/alphalens/internal/jobs"
	"github.com/alphalens/alphalens/internal/llm"
	"github.com/alphalens/alphalens/internal/toolkit"
	"github.com/alphalens/alphalens/pkg/logger"
	"github.com/alphalens/alphalens/pkg/worker"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := initConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("analysis service starting")

	db, err := initDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := initRedis(cfg)
	if redisClient != nil {
		defer redisClient.Close()
	}

	// The registry owns the metrics writer and flushes it on Close
	registry := initToolRegistry(cfg, redisClient, initMetrics(cfg))
	executor := toolkit.NewExecutor(registry, cfg.Agent.ToolTimeout)

	llmClient, err := llm.New(&cfg.AI)
	if err != nil {
		return fmt.Errorf("failed to initialize AI client: %w", err)
	}

	orchestrator := agent.NewOrchestrator(llmClient, executor, registry, cfg.Agent)

	store := jobs.NewPostgresStore(db)
	service := jobs.NewService(store, orchestrator, initNotifier(cfg), cfg.Agent)

	workers := worker.NewGroup(ctx)
	workers.Add(jobs.NewReaper(store, cfg.Agent), 5*time.Minute)
	workers.Start()

	healthServer := health.NewServer(cfg.HTTP.HealthPort, db, redisClient)
	go func() {
		if err := healthServer.Start(); err != nil {
			logger.Error("health server error", zap.Error(err))
		}
	}()

	apiServer := api.NewServer(cfg.HTTP.Port, service)
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("api server error", zap.Error(err))
		}
	}()

	healthServer.SetReady(true)
	logger.Info("analysis service ready",
		zap.String("api_port", cfg.HTTP.Port),
		zap.Int("tools", registry.ToolCount()),
	)

	<-ctx.Done()

	return shutdown(healthServer, apiServer, workers, registry)
}

// initConfig loads configuration and initializes the logger
func initConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, nil
}

// initDatabase connects to Postgres and applies migrations
func initDatabase(cfg *config.Config) (*database.DB, error) {
	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, err
	}

	if err := database.RunMigrations(db.Conn(), "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// initRedis connects the optional provider-response cache. A failed
// connection disables caching rather than blocking startup.
func initRedis(cfg *config.Config) *redisAdapter.Client {
	if !cfg.Redis.Enabled {
		logger.Info("redis cache disabled")
		return nil
	}

	client, err := redisAdapter.New(&cfg.Redis)
	if err != nil {
		logger.Warn("redis not available, caching disabled", zap.Error(err))
		return nil
	}
	return client
}

// initMetrics connects the optional ClickHouse tool-usage sink
func initMetrics(cfg *config.Config) *metrics.BatchedWriter {
	if !cfg.ClickHouse.Enabled {
		return nil
	}

	chDB, err := database.NewClickHouse(cfg.ClickHouse.GetDSN())
	if err != nil {
		logger.Warn("ClickHouse not available, tool metrics disabled", zap.Error(err))
		return nil
	}

	logger.Info("ClickHouse metrics sink connected",
		zap.String("host", cfg.ClickHouse.Host),
		zap.String("database", cfg.ClickHouse.Database),
	)

	return metrics.NewBatchedWriter(metrics.NewClickHouseRepository(chDB.DB()), 500, 10*time.Second)
}

// initToolRegistry builds the market data clients and the tool registry
func initToolRegistry(cfg *config.Config, redisClient *redisAdapter.Client, metricsWriter *metrics.BatchedWriter) *toolkit.Registry {
	var cache marketdata.Cache
	if redisClient != nil {
		cache = redisClient
	}

	md := &cfg.MarketData
	tk := toolkit.NewToolkit(toolkit.Deps{
		Stock:     marketdata.NewFMPClient(md.FMPAPIKey, cache, md.CacheQuoteTTL, md.CacheBarsTTL),
		Secondary: marketdata.NewFinnhubClient(md.FinnhubAPIKey),
		Keyless:   marketdata.NewYahooClient(),
		Options:   marketdata.NewTradierClient(md.TradierAPIKey),
		Forex:     marketdata.NewAlphaVantageClient(md.AlphaVantageAPIKey, cache, md.CacheBarsTTL),
		Knowledge: toolkit.NewKnowledgeBase(),
	})

	registry := toolkit.NewRegistry(tk)
	if metricsWriter != nil {
		registry.SetMetricsLogger(metricsWriter)
	}
	return registry
}

// initNotifier builds the optional Telegram completion notifier
func initNotifier(cfg *config.Config) jobs.Notifier {
	if cfg.Telegram.BotToken == "" {
		logger.Info("telegram notifications disabled (no token provided)")
		return nil
	}

	notifier, err := telegram.NewNotifier(&cfg.Telegram)
	if err != nil {
		logger.Warn("failed to initialize telegram notifier", zap.Error(err))
		return nil
	}
	return notifier
}

// shutdown drains the outer surfaces in dependency order. In-flight
// agent runs are not awaited; the reaper fails them on next startup if
// they never persisted a terminal state.
func shutdown(healthServer *health.Server, apiServer *api.Server, workers *worker.Group, registry *toolkit.Registry) error {
	logger.Info("shutdown signal received, starting graceful shutdown")

	healthServer.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	if err := apiServer.Stop(shutdownCtx); err != nil && err != http.ErrServerClosed {
		logger.Error("api server stop error", zap.Error(err))
	}

	workers.Stop(10 * time.Second)

	if err := registry.Close(); err != nil {
		logger.Error("tool registry close error", zap.Error(err))
	}

	if err := healthServer.Stop(shutdownCtx); err != nil {
		logger.Error("health server stop error", zap.Error(err))
	}

	logger.Sync()
	return nil
}
