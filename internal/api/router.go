package api

import (
	"github.com/fxmarket/forex-marketplace/internal/api/handler"
	"github.com/fxmarket/forex-marketplace/internal/api/middleware"
	"github.com/fxmarket/forex-marketplace/internal/api/spec"
	"github.com/fxmarket/forex-marketplace/internal/config"
	"github.com/fxmarket/forex-marketplace/internal/directory"
	"github.com/fxmarket/forex-marketplace/internal/rate"
	"github.com/fxmarket/forex-marketplace/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

type Router struct {
	cfg       *config.Config
	logger    *zap.Logger
	db        *pgxpool.Pool
	redis     redis.Cmdable
	idemStore *middleware.IdempotencyStore
	dir       *directory.PostgresDirectory
	walletSvc *service.WalletService
	orderSvc  *service.OrderService
	rates     rate.Provider
	rateStore *rate.Store
}

func NewRouter(
	cfg *config.Config,
	logger *zap.Logger,
	db *pgxpool.Pool,
	redisClient redis.Cmdable,
	idemStore *middleware.IdempotencyStore,
	dir *directory.PostgresDirectory,
	walletSvc *service.WalletService,
	orderSvc *service.OrderService,
	rates rate.Provider,
	rateStore *rate.Store,
) *Router {
	return &Router{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		redis:     redisClient,
		idemStore: idemStore,
		dir:       dir,
		walletSvc: walletSvc,
		orderSvc:  orderSvc,
		rates:     rates,
		rateStore: rateStore,
	}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)

	userHandler := handler.NewUserHandler(api.dir)
	walletHandler := handler.NewWalletHandler(api.walletSvc)
	orderHandler := handler.NewOrderHandler(api.orderSvc)
	rateHandler := handler.NewRateHandler(api.rates, api.rateStore)
	healthHandler := handler.NewHealthHandler(api.db, api.redis)

	// Operational endpoints
	r.Get("/healthz", healthHandler.Live)
	r.Get("/readyz", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", spec.OpenAPIHandler())
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))

	// Public routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS))

		r.Post("/v1/users", userHandler.Register)
		r.Post("/v1/auth/login", userHandler.Login)
		r.Get("/v1/rates", rateHandler.ListRates)
		r.Get("/v1/rates/quote", rateHandler.GetRate)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))

		r.Get("/v1/users/me", userHandler.Me)

		r.Post("/v1/wallets", walletHandler.CreateWallet)
		r.Get("/v1/wallets", walletHandler.ListWallets)
		r.Get("/v1/wallets/{id}", walletHandler.GetWallet)
		r.Get("/v1/wallets/{id}/transactions", walletHandler.ListTransactions)

		r.With(middleware.IdempotencyMiddleware(api.idemStore, api.logger)).
			Post("/v1/orders", orderHandler.CreateOrder)
		r.Get("/v1/orders", orderHandler.ListOrders)
		r.Get("/v1/orders/{id}", orderHandler.GetOrder)
		r.Get("/v1/orders/{id}/settlements", orderHandler.ListSettlements)
	})

	return r
}
