package app

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/paygate/server/internal/adapter/outbound/postgres"
	"github.com/paygate/server/internal/domain/payment"
	"github.com/paygate/server/internal/infra/config"
	sharedmiddleware "github.com/paygate/server/internal/shared/middleware"
	"github.com/paygate/server/internal/utils/middleware"

	paymenthttp "github.com/paygate/server/internal/adapter/inbound/http/payment"
)

// App represents the application.
type App struct {
	deps    *Dependencies
	router  *gin.Engine
	cleanup func()
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	deps, cleanup, err := newDependencies(cfg)
	if err != nil {
		return nil, err
	}

	app := &App{deps: deps, cleanup: cleanup}
	app.router = app.setupRouter()
	app.registerRoutes()

	deps.ZapLogger.Info("payment gateway ready",
		zap.Strings("gateways", cfg.Gateway.Enabled),
		zap.Bool("redis", deps.Redis != nil),
		zap.Bool("ipn_archive", cfg.Storage.Bucket != ""),
	)
	return app, nil
}

// newDependencies builds the same graph as InitializeDependencies by hand.
func newDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	zapLog, err := ProvideZapLogger(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init zap logger: %w", err)
	}
	cleanups = append(cleanups, func() { _ = zapLog.Sync() })

	db, closeDB, err := ProvideDatabase(cfg, zapLog)
	if err != nil {
		return fail(fmt.Errorf("init database: %w", err))
	}
	cleanups = append(cleanups, closeDB)

	redis, closeRedis := ProvideRedisClient(cfg, zapLog)
	cleanups = append(cleanups, closeRedis)

	m := ProvideMetrics()

	registry, err := ProvideGatewayRegistry(cfg, ProvideHTTPClient(cfg), zapLog, m)
	if err != nil {
		return fail(fmt.Errorf("init gateways: %w", err))
	}
	methods, err := payment.DefaultMethods(registry)
	if err != nil {
		return fail(fmt.Errorf("init payment methods: %w", err))
	}
	archive, err := ProvideIpnArchive(cfg)
	if err != nil {
		return fail(err)
	}

	domain := ProvidePaymentDomain(
		cfg,
		postgres.NewPaymentAdapter(db),
		postgres.NewIpnAuditAdapter(db),
		registry,
		methods,
		ProvideCredentialStore(cfg),
		ProvideReferenceLocker(cfg, redis, zapLog),
		archive,
		ProvideEventBus(zapLog),
		m,
		zapLog,
	)

	return &Dependencies{
		Config:         cfg,
		DB:             db,
		Redis:          redis,
		RateLimiter:    ProvideRateLimiter(redis),
		TokenValidator: ProvideTokenManager(cfg),
		Logger:         ProvideLogger(cfg),
		ZapLogger:      zapLog,
		Metrics:        m,
		PaymentDomain:  domain,
		PaymentHandler: paymenthttp.NewPaymentHandler(domain),
		WebhookHandler: paymenthttp.NewWebhookHandler(domain),
	}, cleanup, nil
}

// setupRouter creates and configures the Gin router.
func (a *App) setupRouter() *gin.Engine {
	cfg := a.deps.Config
	if cfg.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(middleware.Recovery(a.deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(a.deps.Logger))
	r.Use(sharedmiddleware.Metrics(a.deps.Metrics, "/health", "/metrics"))
	r.Use(middleware.CORS(cfg.Server.CORSOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// registerRoutes mounts the payment API and the gateway webhooks.
func (a *App) registerRoutes() {
	cfg := a.deps.Config

	// Webhooks authenticate by gateway signature, not by tenant token.
	a.deps.WebhookHandler.RegisterRoutes(a.router)

	api := a.router.Group("/api/v1")
	api.Use(middleware.RequireAuth(a.deps.TokenValidator))
	if cfg.Server.RateLimit.Enabled {
		api.Use(middleware.RateLimitByTenant(a.deps.RateLimiter, middleware.RateLimitConfig{
			Limit:     cfg.Server.RateLimit.Limit,
			Window:    cfg.Server.RateLimit.Window,
			WriteCost: cfg.Server.RateLimit.WriteCost,
		}))
	}
	api.Use(middleware.Idempotency(a.deps.Redis, middleware.IdempotencyConfig{
		TTL:     cfg.Server.IdempotencyTTL,
		Methods: []string{http.MethodPost},
	}))
	a.deps.PaymentHandler.RegisterRoutes(api)
}

// Router returns the HTTP handler.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Stop releases connections.
func (a *App) Stop() {
	if a.cleanup != nil {
		a.cleanup()
	}
}
