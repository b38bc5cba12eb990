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

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/lifeblood-api/internal/config"
	"github.com/jwalitptl/lifeblood-api/internal/email"
	adminHandler "github.com/jwalitptl/lifeblood-api/internal/handler/admin"
	authHandler "github.com/jwalitptl/lifeblood-api/internal/handler/auth"
	bookingHandler "github.com/jwalitptl/lifeblood-api/internal/handler/booking"
	dashboardHandler "github.com/jwalitptl/lifeblood-api/internal/handler/dashboard"
	"github.com/jwalitptl/lifeblood-api/internal/handler/health"
	notificationHandler "github.com/jwalitptl/lifeblood-api/internal/handler/notification"
	offerHandler "github.com/jwalitptl/lifeblood-api/internal/handler/offer"
	promHandler "github.com/jwalitptl/lifeblood-api/internal/handler/prometheus"
	realtimeHandler "github.com/jwalitptl/lifeblood-api/internal/handler/realtime"
	userHandler "github.com/jwalitptl/lifeblood-api/internal/handler/user"
	"github.com/jwalitptl/lifeblood-api/internal/middleware"
	"github.com/jwalitptl/lifeblood-api/internal/realtime"
	"github.com/jwalitptl/lifeblood-api/internal/repository"
	"github.com/jwalitptl/lifeblood-api/internal/repository/memory"
	"github.com/jwalitptl/lifeblood-api/internal/repository/postgres"
	"github.com/jwalitptl/lifeblood-api/internal/router"
	adminService "github.com/jwalitptl/lifeblood-api/internal/service/admin"
	authService "github.com/jwalitptl/lifeblood-api/internal/service/auth"
	bookingService "github.com/jwalitptl/lifeblood-api/internal/service/booking"
	dashboardService "github.com/jwalitptl/lifeblood-api/internal/service/dashboard"
	"github.com/jwalitptl/lifeblood-api/internal/service/eligibility"
	notificationService "github.com/jwalitptl/lifeblood-api/internal/service/notification"
	offerService "github.com/jwalitptl/lifeblood-api/internal/service/offer"
	userService "github.com/jwalitptl/lifeblood-api/internal/service/user"
	"github.com/jwalitptl/lifeblood-api/internal/service/verification"
	"github.com/jwalitptl/lifeblood-api/pkg/auth"
	"github.com/jwalitptl/lifeblood-api/pkg/logger"
	"github.com/jwalitptl/lifeblood-api/pkg/messaging"
	"github.com/jwalitptl/lifeblood-api/pkg/messaging/redis"
	"github.com/jwalitptl/lifeblood-api/pkg/metrics"
	"github.com/jwalitptl/lifeblood-api/pkg/security"
	"github.com/jwalitptl/lifeblood-api/pkg/validator"
	"github.com/jwalitptl/lifeblood-api/pkg/worker"
)

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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(cfg.Monitoring.Namespace, "", registry)

	// Change feed broker
	var broker messaging.Broker
	if cfg.Redis.Enabled {
		broker, err = redis.NewRedisBroker(redis.Config{
			URL:          cfg.Redis.URL,
			MaxRetries:   cfg.Redis.MaxRetries,
			RetryBackoff: cfg.Redis.RetryBackoff,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		}, log.ZL)
		if err != nil {
			log.Fatal(err, "Failed to connect to Redis")
		}
	} else {
		broker = messaging.NewLocalBroker(0)
	}
	defer broker.Close()

	// Document store
	var (
		store  repository.Store
		outbox repository.OutboxRepository
	)
	switch cfg.Store.Driver {
	case "memory":
		log.Info("Using in-memory document store; data is lost on restart")
		store = memory.New(broker, log)
	default:
		db, err := postgres.NewDB(cfg.Database)
		if err != nil {
			log.Fatal(err, "Failed to connect to database")
		}
		if cfg.Database.Migrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				log.Fatal(err, "Failed to apply schema")
			}
		}
		pg := postgres.NewStore(db)
		store, outbox = pg, pg.Outbox()
	}
	defer store.Close()

	// Services
	v := validator.New()
	jwtSvc := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, time.Duration(cfg.JWT.ExpiryHours)*time.Hour)
	authSvc := authService.NewService(store.Users(), jwtSvc, security.NewBcryptHasher(0, security.DefaultPolicy), v, cfg.Admin.Email, log)
	if cfg.Admin.Password != "" {
		if err := authSvc.EnsureAdmin(ctx, cfg.Admin.Password); err != nil {
			log.Fatal(err, "Failed to seed admin account")
		}
	}

	gate := verification.NewGate(store.Hospitals(), cfg.Verification, log, m)
	notificationSvc := notificationService.NewService(store, email.NewService(cfg.Email, log), log, m)
	offerSvc := offerService.NewService(store, notificationSvc, eligibility.NewChecker(v), log, m)
	bookingSvc := bookingService.NewService(store.Bookings())
	dashboardSvc := dashboardService.NewService(store, cfg.Dashboard.FallbackTTL, log, m)
	adminSvc := adminService.NewService(store, gate, log)
	userSvc := userService.NewService(store.Users(), v, log)

	// Transport
	var brokerPing health.Pinger
	if p, ok := broker.(health.Pinger); ok {
		brokerPing = p
	}
	handlers := router.Handlers{
		Health:       health.NewHandler(store, brokerPing),
		Auth:         authHandler.NewHandler(authSvc, gate),
		User:         userHandler.NewHandler(userSvc),
		Notification: notificationHandler.NewHandler(notificationSvc),
		Offer:        offerHandler.NewHandler(offerSvc),
		Booking:      bookingHandler.NewHandler(bookingSvc),
		Dashboard:    dashboardHandler.NewHandler(dashboardSvc),
		Realtime: realtimeHandler.NewHandler(
			realtime.NewStreamer(broker, cfg.CORS.AllowedOrigins, log, m),
			notificationSvc,
			offerSvc,
		),
		Admin: adminHandler.NewHandler(adminSvc),
	}
	if cfg.Monitoring.PrometheusEnabled {
		handlers.Metrics = promHandler.New(cfg.Monitoring.Namespace, registry)
	}

	corsConfig := middleware.DefaultCORSConfig()
	if len(cfg.CORS.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.CORS.AllowedOrigins
	}
	if len(cfg.CORS.AllowedMethods) > 0 {
		corsConfig.AllowMethods = cfg.CORS.AllowedMethods
	}
	if len(cfg.CORS.AllowedHeaders) > 0 {
		corsConfig.AllowHeaders = cfg.CORS.AllowedHeaders
	}

	routerConfig := router.RouterConfig{
		Mode:           cfg.Server.Mode,
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxBodySize:    middleware.DefaultMaxBodySize,
		CORSConfig:     corsConfig,
		Security:       middleware.DefaultSecurityConfig(),
	}
	if cfg.RateLimit.Enabled {
		routerConfig.RateLimit = rate.Limit(cfg.RateLimit.RequestsPerSecond)
		routerConfig.RateBurst = cfg.RateLimit.Burst
	}

	r := router.NewRouter(middleware.NewAuthMiddleware(authSvc, gate), handlers, routerConfig, log)
	r.Setup()

	srv := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        r.Engine(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	// Outbox relay runs in-process unless a separate worker owns it.
	var wg sync.WaitGroup
	if outbox != nil && cfg.Outbox.Enabled {
		processor, err := worker.NewOutboxProcessor(outbox, broker, worker.OutboxProcessorConfig{
			BatchSize:     cfg.Outbox.BatchSize,
			PollInterval:  cfg.Outbox.PollInterval,
			RetryAttempts: cfg.Outbox.RetryAttempts,
			RetryDelay:    cfg.Outbox.RetryDelay,
			MaxFailures:   cfg.Outbox.MaxFailures,
		}, log, m)
		if err != nil {
			log.Fatal(err, "Invalid outbox configuration")
		}
		cleanup := worker.NewOutboxCleanupWorker(outbox, cfg.Outbox.Retention, time.Hour, log)

		wg.Add(2)
		go func() {
			defer wg.Done()
			processor.Start(ctx)
		}()
		go func() {
			defer wg.Done()
			cleanup.Start(ctx)
		}()
	}

	go func() {
		log.Info("Server starting", "port", cfg.Server.Port, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err, "Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "Server forced to shutdown")
	}

	cancel()
	wg.Wait()
	log.Info("Server exited properly")
}
