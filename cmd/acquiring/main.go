package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/acquiring-core-go/internal/bootstrap"
	"github.com/boddenberg/acquiring-core-go/internal/config"
	"github.com/boddenberg/acquiring-core-go/internal/domain"
	"github.com/boddenberg/acquiring-core-go/internal/handler"
	"github.com/boddenberg/acquiring-core-go/internal/infra/cache"
	"github.com/boddenberg/acquiring-core-go/internal/infra/lock"
	"github.com/boddenberg/acquiring-core-go/internal/infra/observability"
	"github.com/boddenberg/acquiring-core-go/internal/infra/provider"
	"github.com/boddenberg/acquiring-core-go/internal/infra/queue"
	"github.com/boddenberg/acquiring-core-go/internal/infra/resilience"
	"github.com/boddenberg/acquiring-core-go/internal/infra/webhook"
	"github.com/boddenberg/acquiring-core-go/internal/port"
	"github.com/boddenberg/acquiring-core-go/internal/service"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// producer is what the queue package offers to both side-effect sinks.
type producer interface {
	port.QueuePublisher
	port.EventTrigger
	Close()
}

func main() {
	// --- Config ---
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("store_driver", cfg.StoreDriver),
		zap.Strings("enabled_providers", cfg.EnabledProviders),
		zap.Bool("redis_locks", cfg.RedisURL != ""),
		zap.Duration("refund_lock_ttl", cfg.RefundLockTTL),
		zap.Duration("registration_lock_ttl", cfg.RegistrationLockTTL),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "acquiring-core")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Storage ---
	openCtx, cancelOpen := context.WithTimeout(context.Background(), 10*time.Second)
	repo, err := bootstrap.OpenRepository(openCtx, cfg)
	cancelOpen()
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer repo.Close()

	stores := service.StoresFrom(repo)
	companyCache := cache.New[*domain.Company](cfg.CacheTTL)
	defer companyCache.Close()
	stores.Companies = cache.NewCompanyStore(repo, companyCache, metrics)

	// --- Locks ---
	lockOpts := lock.Options{
		Prefix:        cfg.LockPrefix,
		RetryInterval: cfg.LockRetryInterval,
		WaitTimeout:   cfg.LockWaitTimeout,
	}
	var locker port.Locker
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("invalid REDIS_URL", zap.Error(err))
		}
		client := redis.NewClient(opts)
		defer client.Close()
		locker = lock.NewRedisLocker(client, lockOpts)
		logger.Info("using redis locks")
	} else {
		locker = lock.NewMemoryLocker(lockOpts)
		logger.Warn("REDIS_URL not set, locks are process-local")
	}

	// --- Messaging ---
	var prod producer = queue.NewNoopProducer(logger)
	if cfg.RabbitMQURL != "" {
		p, err := queue.NewProducer(cfg.RabbitMQURL, cfg.EventsExchange, logger)
		if err != nil {
			logger.Error("rabbitmq unavailable, side-effect messages will be dropped", zap.Error(err))
		} else {
			prod = p
			logger.Info("rabbitmq producer connected", zap.String("exchange", cfg.EventsExchange))
		}
	}
	defer prod.Close()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	// --- Providers ---
	resolver := provider.NewResolver(cfg.EnabledProviders)
	resolver.Register("", provider.NewSandbox())
	urls, _ := cfg.ProviderURLMap()
	for name, baseURL := range urls {
		cb := resilience.NewCircuitBreaker("provider-" + name)
		resolver.Register("", provider.NewHTTPConnector(name, baseURL, httpClient, cb, resilienceCfg, metrics))
		logger.Info("provider connector registered", zap.String("provider", name))
	}

	// --- Webhooks ---
	notifier := webhook.NewNotifier(stores.Companies, httpClient, resilience.NewCircuitBreaker("webhooks"),
		resilienceCfg, cfg.WebhookSigningSecret, logger)

	effects := service.Effects{Queue: prod, Events: prod, Webhooks: notifier}

	// --- Services ---
	registration := service.NewRegistrationPipeline(stores, resolver, locker, effects,
		service.RegistrationConfig{DefaultLocale: cfg.DefaultLocale, LockTTL: cfg.RegistrationLockTTL},
		metrics, logger)
	refunds := service.NewRefundOrchestrator(stores, resolver, locker, effects,
		service.RefundConfig{LockTTL: cfg.RefundLockTTL, PayableConcurrency: cfg.PayableRefundConcurrency},
		metrics, logger)
	companies := service.NewCompanyService(stores.Companies, metrics, logger)

	// --- Router ---
	router := handler.NewRouter(handler.Deps{
		Registration: registration,
		Refunds:      refunds,
		Companies:    companies,
		Transactions: stores.Transactions,
		Tokens:       service.NewTokenService(cfg.JWTSecret, 0),
		Store:        repo,
		Metrics:      metrics,
		Logger:       logger,
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
