package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/wire"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	// Domains
	"github.com/paygate/server/internal/domain/payment"

	// Inbound adapters
	paymenthttp "github.com/paygate/server/internal/adapter/inbound/http/payment"

	// Ports
	"github.com/paygate/server/internal/port/outbound"

	// Outbound adapters
	"github.com/paygate/server/internal/adapter/outbound/authtoken"
	"github.com/paygate/server/internal/adapter/outbound/gateway"
	"github.com/paygate/server/internal/adapter/outbound/gateway/alipay"
	"github.com/paygate/server/internal/adapter/outbound/gateway/mercadopago"
	"github.com/paygate/server/internal/adapter/outbound/gateway/stripe"
	"github.com/paygate/server/internal/adapter/outbound/gateway/wechat"
	"github.com/paygate/server/internal/adapter/outbound/memory"
	"github.com/paygate/server/internal/adapter/outbound/postgres"
	redisadapter "github.com/paygate/server/internal/adapter/outbound/redis"
	s3adapter "github.com/paygate/server/internal/adapter/outbound/s3"

	// Infrastructure
	"github.com/paygate/server/internal/infra/config"
	"github.com/paygate/server/internal/infra/events"
	"github.com/paygate/server/internal/infra/httpclient"
	"github.com/paygate/server/internal/shared/cache"
	"github.com/paygate/server/internal/shared/database"
	"github.com/paygate/server/internal/shared/logger"

	// Utils
	"github.com/paygate/server/internal/model"
	"github.com/paygate/server/internal/utils/metrics"
)

// Dependencies holds everything the HTTP server needs.
type Dependencies struct {
	Config         *config.Config
	DB             *gorm.DB
	Redis          goredis.UniversalClient
	RateLimiter    outbound.RateLimiterPort
	TokenValidator outbound.TokenValidatorPort
	Logger         *logger.Logger
	ZapLogger      *zap.Logger
	Metrics        *metrics.Metrics

	PaymentDomain  payment.PaymentDomain
	PaymentHandler *paymenthttp.PaymentHandler
	WebhookHandler *paymenthttp.WebhookHandler
}

// ===== Infrastructure Providers =====

// InfraSet provides infrastructure dependencies.
var InfraSet = wire.NewSet(
	ProvideDatabase,
	ProvideRedisClient,
	ProvideHTTPClient,
	ProvideRateLimiter,
	ProvideLogger,
	ProvideZapLogger,
	ProvideMetrics,
	ProvideEventBus,
)

// ProvideDatabase opens the database and migrates the payment tables when enabled.
func ProvideDatabase(cfg *config.Config, zapLog *zap.Logger) (*gorm.DB, func(), error) {
	db, err := database.New(&cfg.Database, zapLog)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			_ = database.Close(db)
			return nil, nil, err
		}
	}
	return db, func() { _ = database.Close(db) }, nil
}

// ProvideRedisClient creates a Redis client. Redis is optional.
func ProvideRedisClient(cfg *config.Config, zapLog *zap.Logger) (goredis.UniversalClient, func()) {
	if !cfg.Redis.Enabled() {
		return nil, func() {}
	}
	client, err := cache.NewRedisClient(&cfg.Redis)
	if err != nil {
		zapLog.Warn("Redis connection failed, falling back to in-process locks", zap.Error(err))
		return nil, func() {}
	}
	return client, func() { _ = cache.Close(client) }
}

// ProvideLogger creates the access log logger.
func ProvideLogger(cfg *config.Config) *logger.Logger {
	return logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
}

// ProvideZapLogger creates a zap logger instance.
func ProvideZapLogger(cfg *config.Config) (*zap.Logger, error) {
	return logger.NewZapLogger(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
}

// ProvideHTTPClient creates the HTTP client shared by the gateways.
func ProvideHTTPClient(cfg *config.Config) *http.Client {
	return httpclient.New(cfg.HTTPClient)
}

// ProvideRateLimiter creates a rate limiter, or nil without Redis.
func ProvideRateLimiter(redis goredis.UniversalClient) outbound.RateLimiterPort {
	if redis == nil {
		return nil
	}
	return redisadapter.NewRateLimiter(redis)
}

// ProvideMetrics creates a metrics instance.
func ProvideMetrics() *metrics.Metrics {
	return metrics.New("paygate")
}

// ProvideEventBus creates the payment event bus with its subscribers.
func ProvideEventBus(zapLog *zap.Logger) *events.Bus {
	bus := events.NewBus(zapLog)
	bus.Register(newPaymentEventLogger(zapLog))
	return bus
}

// ===== Outbound Adapter Providers =====

// AdapterSet provides the payment outbound adapters.
var AdapterSet = wire.NewSet(
	postgres.NewPaymentAdapter,
	postgres.NewIpnAuditAdapter,
	ProvideReferenceLocker,
	ProvideIpnArchive,
	ProvideCredentialStore,
	ProvideTokenManager,
	wire.Bind(new(outbound.TokenValidatorPort), new(*authtoken.Manager)),
	ProvideGatewayRegistry,
	wire.Bind(new(outbound.GatewayRegistryPort), new(*gateway.Registry)),
)

// ProvideReferenceLocker uses Redis when available so several instances
// serialize on the same payment, and an in-process lock otherwise.
func ProvideReferenceLocker(cfg *config.Config, redis goredis.UniversalClient, zapLog *zap.Logger) outbound.ReferenceLockerPort {
	if redis == nil {
		return memory.NewKeyedLocker()
	}
	return redisadapter.NewReferenceLocker(redis, redisadapter.LockConfig{
		TTL:  cfg.Gateway.Lock.TTL,
		Wait: cfg.Gateway.Lock.Wait,
	}, zapLog)
}

// ProvideIpnArchive creates the raw notification archive, or nil without a bucket.
func ProvideIpnArchive(cfg *config.Config) (outbound.IpnArchivePort, error) {
	if cfg.Storage.Bucket == "" {
		return nil, nil
	}
	client, err := s3adapter.NewClient(context.Background(), &s3adapter.Config{
		Endpoint:        cfg.Storage.Endpoint,
		Region:          cfg.Storage.Region,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
		Bucket:          cfg.Storage.Bucket,
	})
	if err != nil {
		return nil, fmt.Errorf("init ipn archive: %w", err)
	}
	return s3adapter.NewIpnArchive(client, cfg.Storage.Bucket, cfg.Storage.Prefix), nil
}

// ProvideCredentialStore serves the tenants' gateway accounts from config.
func ProvideCredentialStore(cfg *config.Config) outbound.CredentialStorePort {
	return memory.NewCredentialStore(cfg.GatewayCredentials(), cfg.Gateway.DefaultTenant)
}

// ProvideTokenManager creates the tenant token validator.
func ProvideTokenManager(cfg *config.Config) *authtoken.Manager {
	return authtoken.NewManager(authtoken.Config{
		Secret: cfg.Auth.JWTSecret,
		Issuer: cfg.Auth.Issuer,
	})
}

// ProvideGatewayRegistry registers the enabled gateways behind circuit breakers.
func ProvideGatewayRegistry(cfg *config.Config, httpClient *http.Client, zapLog *zap.Logger, m *metrics.Metrics) (*gateway.Registry, error) {
	constructors := map[model.GatewayType]func() outbound.GatewayPort{
		model.GatewayStripe:      func() outbound.GatewayPort { return stripe.New(httpClient, zapLog, m) },
		model.GatewayMercadoPago: func() outbound.GatewayPort { return mercadopago.New(httpClient, zapLog, m) },
		model.GatewayAlipay:      func() outbound.GatewayPort { return alipay.New(zapLog, m) },
		model.GatewayWechat:      func() outbound.GatewayPort { return wechat.New(zapLog, m) },
	}
	breaker := gateway.BreakerConfig{
		FailureThreshold: cfg.Gateway.Breaker.FailureThreshold,
		MaxHalfOpen:      cfg.Gateway.Breaker.MaxHalfOpen,
		Interval:         cfg.Gateway.Breaker.Interval,
		Timeout:          cfg.Gateway.Breaker.Timeout,
	}

	gateways := make([]outbound.GatewayPort, 0, len(cfg.Gateway.Enabled))
	for _, name := range cfg.Gateway.Enabled {
		newGateway, ok := constructors[model.GatewayType(name)]
		if !ok {
			return nil, fmt.Errorf("unknown gateway %q", name)
		}
		gateways = append(gateways, gateway.WithBreaker(newGateway(), breaker, zapLog, m))
	}
	return gateway.NewRegistry(gateways...)
}

// ===== Payment Domain Providers =====

// PaymentSet provides the payment domain and its HTTP handlers.
var PaymentSet = wire.NewSet(
	payment.DefaultMethods,
	wire.Bind(new(payment.EventPublisher), new(*events.Bus)),
	ProvidePaymentDomain,
	paymenthttp.NewPaymentHandler,
	paymenthttp.NewWebhookHandler,
)

// ProvidePaymentDomain creates the payment domain.
func ProvidePaymentDomain(
	cfg *config.Config,
	payments outbound.PaymentDatabasePort,
	audits outbound.IpnAuditDatabasePort,
	gateways outbound.GatewayRegistryPort,
	methods *payment.MethodRegistry,
	credentials outbound.CredentialStorePort,
	locker outbound.ReferenceLockerPort,
	archive outbound.IpnArchivePort,
	publisher payment.EventPublisher,
	m *metrics.Metrics,
	zapLog *zap.Logger,
) payment.PaymentDomain {
	return payment.NewPaymentDomain(payment.Deps{
		Payments:    payments,
		Audits:      audits,
		Gateways:    gateways,
		Methods:     methods,
		Credentials: credentials,
		Locker:      locker,
		Archive:     archive,
		Events:      publisher,
	}, payment.Config{
		NotifyBaseURL: cfg.Gateway.NotifyBaseURL,
		DefaultTenant: cfg.Gateway.DefaultTenant,
		Retry: payment.RetryConfig{
			MaxAttempts:  cfg.Gateway.Retry.MaxAttempts,
			BaseDelay:    cfg.Gateway.Retry.BaseDelay,
			MaxDelay:     cfg.Gateway.Retry.MaxDelay,
			JitterFactor: cfg.Gateway.Retry.JitterFactor,
		},
	}, m, zapLog)
}

// AppSet is the master provider set that includes all dependencies.
var AppSet = wire.NewSet(
	InfraSet,
	AdapterSet,
	PaymentSet,
)
