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

	"github.com/fxmarket/forex-marketplace/internal/api"
	"github.com/fxmarket/forex-marketplace/internal/api/middleware"
	"github.com/fxmarket/forex-marketplace/internal/cache"
	"github.com/fxmarket/forex-marketplace/internal/config"
	"github.com/fxmarket/forex-marketplace/internal/db"
	"github.com/fxmarket/forex-marketplace/internal/directory"
	"github.com/fxmarket/forex-marketplace/internal/notify"
	"github.com/fxmarket/forex-marketplace/internal/observability"
	"github.com/fxmarket/forex-marketplace/internal/rate"
	"github.com/fxmarket/forex-marketplace/internal/repository"
	"github.com/fxmarket/forex-marketplace/internal/service"
	"github.com/fxmarket/forex-marketplace/internal/worker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Run bootstraps the HTTP server and rate poller, blocking until shutdown.
func Run() error {
	cfg, err := config.Load()
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
	middleware.SetJWTSecret(cfg.JWTSecret)
	middleware.SetJWTValidation(cfg.JWTIssuer, cfg.JWTAudience)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	var bus notify.Bus
	if len(cfg.KafkaBrokers) > 0 {
		kafkaBus := notify.NewKafkaBus(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kafkaBus.Close()
		bus = kafkaBus
		logger.Info("kafka notification bus enabled", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	} else {
		bus = notify.NewLogBus(logger)
		logger.Info("no kafka brokers configured, logging notifications instead")
	}

	appCache := cache.NewRedis(redisClient)
	idemStore := middleware.NewIdempotencyStore(redisClient, cfg.IdempotencyTTL)

	orderStore := repository.NewPostgresOrderStore(pool)
	walletStore := repository.NewPostgresWalletStore(pool)
	dir := directory.NewPostgresDirectory(pool)
	rateStore := rate.NewStore(pool)

	walletSvc := service.NewWalletService(walletStore, bus, appCache).
		WithCacheTTL(cfg.WalletCacheTTL)
	orderSvc := service.NewOrderService(orderStore, walletSvc, rateStore, dir, bus, appCache).
		WithCacheTTLs(cfg.OrderCacheTTL, cfg.OrderListCacheTTL)

	rateClient := rate.NewClient(cfg.RateAPIURL, cfg.RateAPIKey)
	ratePoller := worker.NewRatePoller(rateClient, rateStore, cfg.RateBaseCurrencies).
		WithInterval(cfg.RatePollInterval)
	stopPoller := ratePoller.Run(ctx)
	logger.Info("rate poller started", zap.Duration("interval", cfg.RatePollInterval))

	router := api.NewRouter(cfg, logger, pool, redisClient, idemStore, dir, walletSvc, orderSvc, rateStore, rateStore)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort))
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

	logger.Info("stopping rate poller")
	stopPoller()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
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
