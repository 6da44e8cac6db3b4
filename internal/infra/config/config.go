package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the server configuration. Gateway credentials live per tenant.
type Config struct {
	Server     ServerConfig            `mapstructure:"server"`
	Database   DatabaseConfig          `mapstructure:"database"`
	Redis      RedisConfig             `mapstructure:"redis"`
	HTTPClient HTTPClientConfig        `mapstructure:"http_client"`
	Log        LogConfig               `mapstructure:"log"`
	Auth       AuthConfig              `mapstructure:"auth"`
	Storage    StorageConfig           `mapstructure:"storage"`
	Gateway    GatewayConfig           `mapstructure:"gateway"`
	Tenants    map[string]TenantConfig `mapstructure:"tenants"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address      string          `mapstructure:"address"`
	ReadTimeout  time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout time.Duration   `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration   `mapstructure:"idle_timeout"`
	CORSOrigins  []string        `mapstructure:"cors_origins"`
	RateLimit    RateLimitConfig `mapstructure:"rate_limit"`

	// IdempotencyTTL is how long replayable responses are kept in Redis.
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
}

// RateLimitConfig bounds requests per tenant.
type RateLimitConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Limit   int           `mapstructure:"limit"`
	Window  time.Duration `mapstructure:"window"`
	// WriteCost is what one POST charges against Limit.
	WriteCost int `mapstructure:"write_cost"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Database, c.SSLMode,
	)
	if c.Password != "" {
		dsn += fmt.Sprintf(" password=%s", c.Password)
	}
	return dsn
}

// RedisConfig holds Redis configuration. An empty address disables Redis and
// reference locks fall back to in-process mutexes.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Enabled reports whether a Redis server is configured.
func (c *RedisConfig) Enabled() bool {
	return c.Address != ""
}

// HTTPClientConfig tunes the pooled client the REST gateways share.
// ResponseTimeout bounds a whole gateway call, body included.
type HTTPClientConfig struct {
	MaxIdleConns        int           `mapstructure:"max_idle_conns"`
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `mapstructure:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `mapstructure:"idle_conn_timeout"`
	DialTimeout         time.Duration `mapstructure:"dial_timeout"`
	TLSHandshakeTimeout time.Duration `mapstructure:"tls_handshake_timeout"`
	ResponseTimeout     time.Duration `mapstructure:"response_timeout"`
	KeepAlive           time.Duration `mapstructure:"keep_alive"`
}

// LogConfig selects the level and the json or text encoder.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AuthConfig holds API authentication configuration.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// StorageConfig holds the object storage used to archive rejected notifications.
// An empty bucket disables archiving.
type StorageConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
}

// GatewayConfig holds settings shared by every gateway.
type GatewayConfig struct {
	// NotifyBaseURL is the public URL gateways post notifications to.
	NotifyBaseURL string `mapstructure:"notify_base_url"`
	// DefaultTenant answers notifications that carry no tenant.
	DefaultTenant string        `mapstructure:"default_tenant"`
	Enabled       []string      `mapstructure:"enabled"`
	Retry         RetryConfig   `mapstructure:"retry"`
	Breaker       BreakerConfig `mapstructure:"breaker"`
	Lock          LockConfig    `mapstructure:"lock"`
}

// RetryConfig bounds retries of transient gateway failures.
type RetryConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	BaseDelay    time.Duration `mapstructure:"base_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	JitterFactor float64       `mapstructure:"jitter_factor"`
}

// BreakerConfig configures the per-gateway circuit breaker.
type BreakerConfig struct {
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	MaxHalfOpen      uint32        `mapstructure:"max_half_open"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// LockConfig configures per-reference locks.
type LockConfig struct {
	TTL  time.Duration `mapstructure:"ttl"`
	Wait time.Duration `mapstructure:"wait"`
}

// TenantConfig holds one tenant's gateway accounts. A zero section means the
// tenant does not use that gateway.
type TenantConfig struct {
	Stripe      StripeConfig      `mapstructure:"stripe"`
	MercadoPago MercadoPagoConfig `mapstructure:"mercadopago"`
	Alipay      AlipayConfig      `mapstructure:"alipay"`
	Wechat      WechatConfig      `mapstructure:"wechat"`
}

// StripeConfig holds Stripe account configuration.
type StripeConfig struct {
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	BaseURL       string `mapstructure:"base_url"`
}

// MercadoPagoConfig holds Mercado Pago account configuration.
type MercadoPagoConfig struct {
	AccessToken   string `mapstructure:"access_token"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	BaseURL       string `mapstructure:"base_url"`
}

// AlipayConfig holds Alipay account configuration.
type AlipayConfig struct {
	AppID           string `mapstructure:"app_id"`
	PrivateKey      string `mapstructure:"private_key"`       // RSA2 private key
	AlipayPublicKey string `mapstructure:"alipay_public_key"` // PEM or bare base64
	IsProd          bool   `mapstructure:"is_prod"`
}

// WechatConfig is a WeChat Pay v3 merchant. Notifications are verified with
// the platform public key, so no platform certificate download is needed.
type WechatConfig struct {
	AppID                 string `mapstructure:"app_id"`
	MchID                 string `mapstructure:"mch_id"`
	APIKeyV3              string `mapstructure:"api_key_v3"`
	SerialNo              string `mapstructure:"serial_no"`
	PrivateKey            string `mapstructure:"private_key"`
	WechatPublicKeySerial string `mapstructure:"wechat_public_key_serial"`
	WechatPublicKey       string `mapstructure:"wechat_public_key"`
	IsProd                bool   `mapstructure:"is_prod"`
}

// Load reads config.yaml from the working directory, ./configs or
// /etc/paygate, then applies PAYGATE_* environment overrides.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/paygate")

	return load(v)
}

// LoadFile loads configuration from one file and the environment.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("PAYGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applySecretEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applySecretEnv lets secrets stay out of the config file. Gateway secrets
// apply to the default tenant.
func applySecretEnv(cfg *Config) {
	override := func(name string, dst *string) {
		if s := os.Getenv(name); s != "" {
			*dst = s
		}
	}
	override("PAYGATE_JWT_SECRET", &cfg.Auth.JWTSecret)
	override("PAYGATE_DB_PASSWORD", &cfg.Database.Password)
	override("PAYGATE_REDIS_PASSWORD", &cfg.Redis.Password)
	override("PAYGATE_STORAGE_SECRET_KEY", &cfg.Storage.SecretAccessKey)

	if cfg.Tenants == nil {
		cfg.Tenants = make(map[string]TenantConfig)
	}
	tenant := cfg.Tenants[cfg.Gateway.DefaultTenant]
	override("PAYGATE_STRIPE_SECRET_KEY", &tenant.Stripe.SecretKey)
	override("PAYGATE_STRIPE_WEBHOOK_SECRET", &tenant.Stripe.WebhookSecret)
	override("PAYGATE_MERCADOPAGO_ACCESS_TOKEN", &tenant.MercadoPago.AccessToken)
	override("PAYGATE_MERCADOPAGO_WEBHOOK_SECRET", &tenant.MercadoPago.WebhookSecret)
	override("PAYGATE_ALIPAY_APP_ID", &tenant.Alipay.AppID)
	override("PAYGATE_ALIPAY_PRIVATE_KEY", &tenant.Alipay.PrivateKey)
	override("PAYGATE_ALIPAY_PUBLIC_KEY", &tenant.Alipay.AlipayPublicKey)
	override("PAYGATE_WECHAT_APP_ID", &tenant.Wechat.AppID)
	override("PAYGATE_WECHAT_MCH_ID", &tenant.Wechat.MchID)
	override("PAYGATE_WECHAT_API_KEY_V3", &tenant.Wechat.APIKeyV3)
	override("PAYGATE_WECHAT_PRIVATE_KEY", &tenant.Wechat.PrivateKey)
	override("PAYGATE_WECHAT_PUBLIC_KEY", &tenant.Wechat.WechatPublicKey)
	if tenant != (TenantConfig{}) {
		cfg.Tenants[cfg.Gateway.DefaultTenant] = tenant
	}
}

// Validate checks settings the server cannot start without.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 bytes")
	}
	if rl := c.Server.RateLimit; rl.Enabled && (rl.Limit < 1 || rl.Window <= 0) {
		return fmt.Errorf("server.rate_limit needs a positive limit and window when enabled")
	}
	if c.Gateway.Retry.MaxAttempts < 1 {
		return fmt.Errorf("gateway.retry.max_attempts must be at least 1")
	}
	for _, name := range c.Gateway.Enabled {
		switch name {
		case "stripe", "mercadopago", "alipay", "wechat":
		default:
			return fmt.Errorf("gateway.enabled: unknown gateway %q", name)
		}
	}
	return nil
}

var defaults = map[string]any{
	"server.address":               ":8080",
	"server.read_timeout":          30 * time.Second,
	"server.write_timeout":         30 * time.Second,
	"server.idle_timeout":          120 * time.Second,
	"server.cors_origins":          []string{"*"},
	"server.rate_limit.enabled":    true,
	"server.rate_limit.limit":      600,
	"server.rate_limit.window":     time.Minute,
	"server.rate_limit.write_cost": 2,
	"server.idempotency_ttl":       24 * time.Hour,

	"database.host":               "localhost",
	"database.port":               5432,
	"database.user":               "postgres",
	"database.database":           "paygate",
	"database.ssl_mode":           "disable",
	"database.max_open_conns":     25,
	"database.max_idle_conns":     10,
	"database.conn_max_lifetime":  time.Hour,
	"database.conn_max_idle_time": 30 * time.Minute,
	"database.auto_migrate":       true,

	"redis.address": "",
	"redis.db":      0,

	"http_client.max_idle_conns":          100,
	"http_client.max_idle_conns_per_host": 20,
	"http_client.max_conns_per_host":      50,
	"http_client.idle_conn_timeout":       90 * time.Second,
	"http_client.dial_timeout":            10 * time.Second,
	"http_client.tls_handshake_timeout":   10 * time.Second,
	"http_client.response_timeout":        30 * time.Second,
	"http_client.keep_alive":              30 * time.Second,

	"log.level":   "info",
	"log.format":  "json",
	"auth.issuer": "paygate",

	"storage.region": "auto",
	"storage.prefix": "ipn/",

	"gateway.default_tenant":            "default",
	"gateway.enabled":                   []string{"stripe", "mercadopago", "alipay", "wechat"},
	"gateway.retry.max_attempts":        3,
	"gateway.retry.base_delay":          200 * time.Millisecond,
	"gateway.retry.max_delay":           2 * time.Second,
	"gateway.retry.jitter_factor":       0.25,
	"gateway.breaker.failure_threshold": 5,
	"gateway.breaker.max_half_open":     1,
	"gateway.breaker.interval":          60 * time.Second,
	"gateway.breaker.timeout":           30 * time.Second,
	"gateway.lock.ttl":                  30 * time.Second,
	"gateway.lock.wait":                 10 * time.Second,
}

func setDefaults(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}
