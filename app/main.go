package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/rss-relay/app/api"
	"github.com/lysyi3m/rss-relay/app/cfg"
	"github.com/lysyi3m/rss-relay/app/database"
	"github.com/lysyi3m/rss-relay/app/events"
	"github.com/lysyi3m/rss-relay/app/feed"
	"github.com/lysyi3m/rss-relay/app/logging"
	"github.com/lysyi3m/rss-relay/app/queue"
	"github.com/lysyi3m/rss-relay/app/tasks"
	"github.com/redis/go-redis/v9"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if appCfg == nil {
		return
	}

	logCloser, err := logging.Setup(appCfg.Debug, appCfg.LogFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logCloser.Close()

	if err := run(appCfg); err != nil {
		slog.Error("RSS Relay stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(appCfg *cfg.Cfg) error {
	slog.Info("Starting RSS Relay", "version", appCfg.Version)

	db, err := database.Open(appCfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("Database ready", "path", db.Path(), "schema_version", version, "dirty", dirty)

	sourceRepo := database.NewSourceStore(db)
	ledgerRepo := database.NewLedgerStore(db)
	subscriptionRepo := database.NewSubscriptionStore(db)

	configCache := feed.NewSourceConfigCache(appCfg.SourcesDir)
	if err := configCache.Run(); err != nil {
		return fmt.Errorf("failed to load source configurations: %w", err)
	}
	slog.Info("Source configurations loaded", "dir", appCfg.SourcesDir, "count", configCache.GetConfigCount())

	var redisClient *redis.Client
	if appCfg.QueueBackend == cfg.QueueBackendRedis || appCfg.EventBus == cfg.EventBusRedis {
		redisClient = redis.NewClient(&redis.Options{
			Addr:         appCfg.RedisAddr,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			PoolSize:     2*appCfg.WorkerCount + 4,
			MinIdleConns: 2,
		})
		defer redisClient.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("failed to connect to redis at %s: %w", appCfg.RedisAddr, err)
		}
		slog.Info("Connected to redis", "addr", appCfg.RedisAddr)
	}

	sourceQueue, itemQueue, err := newQueues(appCfg, redisClient)
	if err != nil {
		return err
	}

	var bus events.Bus
	switch appCfg.EventBus {
	case cfg.EventBusRedis:
		bus = events.NewRedisBus(redisClient, appCfg.EventChannel)
	default:
		bus = events.NewWebhookBus(subscriptionRepo, &http.Client{Timeout: appCfg.FetchTimeout}, appCfg.UserAgent)
	}
	slog.Info("Event bus configured", "kind", appCfg.EventBus)

	scheduler := tasks.NewScheduler(tasks.Dependencies{
		SourceRepo:  sourceRepo,
		LedgerRepo:  ledgerRepo,
		ConfigCache: configCache,
		Fetcher:     feed.NewFetcher(&http.Client{}, appCfg.UserAgent, appCfg.FetchTimeout),
		Parser:      feed.NewParser(),
		Bus:         bus,
		Pruner:      tasks.NewPruner(ledgerRepo, appCfg.PruneBatchSize, appCfg.PruneInitialWait, appCfg.PruneMaxWait),
		SourceQueue: sourceQueue,
		ItemQueue:   itemQueue,
	}, tasks.Options{
		Interval:       appCfg.SchedulerInterval,
		WorkerCount:    appCfg.WorkerCount,
		TaskTimeout:    appCfg.TaskTimeout,
		ScanPageSize:   appCfg.ScanPageSize,
		LedgerPageSize: appCfg.LedgerPageSize,
	})

	slog.Info("Starting scheduler", "workers", appCfg.WorkerCount, "interval", appCfg.SchedulerInterval, "queue_backend", appCfg.QueueBackend)
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(sourceRepo, ledgerRepo, subscriptionRepo, configCache, scheduler)
	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      api.NewServer(handler, appCfg.APIAccessKey),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port, "api_enabled", appCfg.APIAccessKey != "")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case runErr = <-serverErrChan:
	}

	slog.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	return runErr
}

func newQueues(appCfg *cfg.Cfg, redisClient *redis.Client) (queue.Queue, queue.Queue, error) {
	opts := queue.Options{
		Capacity:       appCfg.QueueCapacity,
		DedupWindow:    appCfg.QueueDedupWindow,
		MaxReceives:    appCfg.QueueMaxReceives,
		RetryBaseDelay: appCfg.QueueRetryBaseDelay,
	}

	if appCfg.QueueBackend != cfg.QueueBackendRedis {
		return queue.NewMemoryQueue("sources", opts), queue.NewMemoryQueue("items", opts), nil
	}

	sources := queue.NewRedisQueue(redisClient, "sources", opts)
	items := queue.NewRedisQueue(redisClient, "items", opts)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, q := range []*queue.RedisQueue{sources, items} {
		n, err := q.Recover(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to recover %s queue: %w", q.Name(), err)
		}
		if n > 0 {
			slog.Info("Recovered in-flight messages", "queue", q.Name(), "count", n)
		}
	}

	return sources, items, nil
}
