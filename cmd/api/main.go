package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"storefront-api/internal/cache"
	"storefront-api/internal/config"
	"storefront-api/internal/fulfillment"
	"storefront-api/internal/handler"
	"storefront-api/internal/ledger"
	"storefront-api/internal/metrics"
	"storefront-api/internal/orders"
	"storefront-api/internal/pkg/logging"
	"storefront-api/internal/repository"
	"storefront-api/internal/router"
	"storefront-api/internal/service"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	cfg := config.MustLoad()

	logger := logging.MustNewLogger(cfg.App.Name, cfg.App.Environment, cfg.App.LogLevel)
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	logger.Info("starting", zap.String("version", cfg.App.Version), zap.String("store", cfg.Store.Type))

	// Backing store
	store, err := repository.Open(cfg.Store, logging.Component(logger, "store"))
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer store.Close()

	// Idempotency window cache
	var idemCache cache.Cache
	var cachePinger service.Pinger
	switch cfg.Cache.Type {
	case "redis":
		rc, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:      cfg.Cache.RedisAddress(),
			Password:  cfg.Cache.RedisPassword,
			DB:        cfg.Cache.RedisDB,
			KeyPrefix: cfg.Cache.RedisKeyPrefix,
		})
		if err != nil {
			logger.Warn("redis unavailable, falling back to memory cache", zap.Error(err))
			idemCache = cache.NewMemoryCache(0)
		} else {
			idemCache, cachePinger = rc, rc
		}
	default:
		idemCache = cache.NewMemoryCache(0)
	}
	defer idemCache.Close()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Core
	reader := ledger.NewReader(store, ledger.Tables{
		Users:    cfg.Store.UserTable,
		Products: cfg.Store.ProductTable,
	}, logging.Component(logger, "ledger"))

	recorder := orders.NewRecorder(store, idemCache, orders.Config{
		Table:  cfg.Store.OrderTable,
		Window: cfg.Fulfillment.IdempotencyWindow,
	}, logging.Component(logger, "orders"))

	engine := fulfillment.NewEngine(store, reader, recorder, fulfillment.Config{
		IdempotencyWindow: cfg.Fulfillment.IdempotencyWindow,
		MaxAttempts:       cfg.Fulfillment.MaxAttempts,
		RetryBackoff:      cfg.Fulfillment.RetryBackoff,
		CommitTimeout:     cfg.Fulfillment.CommitTimeout,
		ReconcileAttempts: cfg.Fulfillment.ReconcileAttempts,
	}, m, logging.Component(logger, "fulfillment"))

	storefront := service.NewStorefront(engine, reader, recorder, store, cachePinger, service.StorefrontConfig{
		RequestTimeout: cfg.Fulfillment.RequestTimeout,
		StoreType:      cfg.Store.Type,
	}, logging.Component(logger, "service"))

	scheduler := service.NewReconcileScheduler(engine, service.ReconcileConfig{
		Interval: cfg.Fulfillment.ReconcileInterval,
		Timeout:  cfg.Fulfillment.CommitTimeout,
	}, logging.Component(logger, "reconcile"))
	scheduler.Start()

	if len(cfg.Admin.APIKeys) == 0 {
		logger.Warn("ADMIN_API_KEYS is empty, admin routes will reject every request")
	}

	r := router.New(router.Config{
		Handler:           handler.New(storefront, cfg.App.Name, cfg.App.Version),
		StorefrontHandler: handler.NewStorefrontHandler(storefront),
		AdminHandler:      handler.NewAdminHandler(storefront),
		MetricsHandler:    promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Metrics:           m,
		Logger:            logger,
		AdminAPIKeys:      cfg.Admin.APIKeys,
		AllowedOrigins:    cfg.CORS.AllowedOrigins,
		CORSMaxAge:        cfg.CORS.MaxAge,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", cfg.Server.Address()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}

	scheduler.Stop()

	// last chance for plans still in the journal; it does not survive the process
	if pending := engine.PendingCount(); pending > 0 {
		sum, err := engine.ReconcilePending(ctx)
		if err != nil || sum.Remaining > 0 {
			logger.Error("exiting with unresolved commit plans",
				zap.Int("remaining", sum.Remaining),
				zap.Any("plans", engine.Stats().Pending),
				zap.Error(err),
			)
		}
	}

	logger.Info("server stopped")
}
