// Command worker relays committed outbox rows from Postgres to the change
// feed broker and prunes processed rows. Run it when the API servers have
// outbox.enabled=false.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/lifeblood-api/internal/config"
	"github.com/jwalitptl/lifeblood-api/internal/handler/health"
	promHandler "github.com/jwalitptl/lifeblood-api/internal/handler/prometheus"
	"github.com/jwalitptl/lifeblood-api/internal/repository/postgres"
	"github.com/jwalitptl/lifeblood-api/pkg/logger"
	"github.com/jwalitptl/lifeblood-api/pkg/messaging/redis"
	"github.com/jwalitptl/lifeblood-api/pkg/metrics"
	"github.com/jwalitptl/lifeblood-api/pkg/worker"
)

const healthPort = 8081

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Logging.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		Console:    cfg.Logging.Console,
	})
	hostname, _ := os.Hostname()
	log = log.WithFields(map[string]interface{}{"worker_id": fmt.Sprintf("worker-%s-%d", hostname, os.Getpid())})

	if cfg.Store.Driver != "postgres" {
		log.Fatal(fmt.Errorf("store driver %q has no outbox", cfg.Store.Driver), "Worker requires the postgres store")
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal(err, "Failed to connect to database")
	}
	defer db.Close()
	store := postgres.NewStore(db)

	broker, err := redis.NewRedisBroker(redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, log.ZL)
	if err != nil {
		log.Fatal(err, "Failed to create Redis broker")
	}
	defer broker.Close()

	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(cfg.Monitoring.Namespace, "outbox_worker", registry)

	processor, err := worker.NewOutboxProcessor(store.Outbox(), broker, worker.OutboxProcessorConfig{
		BatchSize:     cfg.Outbox.BatchSize,
		PollInterval:  cfg.Outbox.PollInterval,
		RetryAttempts: cfg.Outbox.RetryAttempts,
		RetryDelay:    cfg.Outbox.RetryDelay,
		MaxFailures:   cfg.Outbox.MaxFailures,
	}, log, m)
	if err != nil {
		log.Fatal(err, "Invalid outbox configuration")
	}
	cleanup := worker.NewOutboxCleanupWorker(store.Outbox(), cfg.Outbox.Retention, time.Hour, log)

	srv := healthServer(store, broker, registry, cfg.Monitoring.Namespace)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err, "Health check server failed")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Shutting down...")
		cancel()
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		processor.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		cleanup.Start(ctx)
	}()
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}

func healthServer(store health.Pinger, broker interface{}, registry *prometheus.Registry, namespace string) *http.Server {
	var brokerPing health.Pinger
	if p, ok := broker.(health.Pinger); ok {
		brokerPing = p
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	health.NewHandler(store, brokerPing).RegisterRoutes(engine.Group(""))
	engine.GET("/metrics", promHandler.New(namespace, registry).Handler())

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", healthPort),
		Handler: engine,
	}
}
