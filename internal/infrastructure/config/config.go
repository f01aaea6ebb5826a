package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Stripe         StripeConfig         `mapstructure:"stripe"`
	Ledger         LedgerConfig         `mapstructure:"ledger"`
	Fraud          FraudConfig          `mapstructure:"fraud"`
	Email          EmailConfig          `mapstructure:"email"`
	Events         EventsConfig         `mapstructure:"events"`
	MerchantConfig MerchantConfigConfig `mapstructure:"merchant_config"`
	Breaker        BreakerConfig        `mapstructure:"breaker"`
	Worker         WorkerConfig         `mapstructure:"worker"`
	Observability  ObservabilityConfig  `mapstructure:"observability"`
	Auth           AuthConfig           `mapstructure:"auth"`
	InstanceID     string               `mapstructure:"instance_id"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	CORS              CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SSLMode         string        `mapstructure:"ssl_mode"`
}

type RedisConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	ConnectRetries    int           `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

// StripeConfig holds the platform secret keys and Connect settings. The
// merchant's connected account id comes from the merchant config.
type StripeConfig struct {
	LiveSecretKey string        `mapstructure:"live_secret_key"`
	TestSecretKey string        `mapstructure:"test_secret_key"`
	LiveClientID  string        `mapstructure:"live_client_id"`
	TestClientID  string        `mapstructure:"test_client_id"`
	Connect       ConnectConfig `mapstructure:"connect"`
}

type ConnectConfig struct {
	// CallbackURL is registered with the processor as the OAuth redirect.
	CallbackURL string `mapstructure:"callback_url"`
	// AppURL is where the merchant lands once the handshake is over.
	AppURL   string        `mapstructure:"app_url"`
	StateTTL time.Duration `mapstructure:"state_ttl"`
	// DemoAccountDomains own accounts that are never deauthorized from a
	// test-mode badge.
	DemoAccountDomains []string `mapstructure:"demo_account_domains"`
}

type LedgerConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	APIToken      string        `mapstructure:"api_token"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RetryAttempts uint          `mapstructure:"retry_attempts"`
}

type FraudConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Endpoint   string        `mapstructure:"endpoint"`
	UserID     string        `mapstructure:"user_id"`
	LicenseKey string        `mapstructure:"license_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type EmailConfig struct {
	Region         string `mapstructure:"region"`
	FromAddress    string `mapstructure:"from_address"`
	StrictTemplate bool   `mapstructure:"strict_template"`
}

type EventsConfig struct {
	Driver      string `mapstructure:"driver"` // redis, nats, sqs or none
	Stream      string `mapstructure:"stream"`
	NATSURL     string `mapstructure:"nats_url"`
	SQSQueueURL string `mapstructure:"sqs_queue_url"`
}

type MerchantConfigConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type BreakerConfig struct {
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MinRequests  uint32        `mapstructure:"min_requests"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
}

type WorkerConfig struct {
	BatchSize       int64         `mapstructure:"batch_size"`
	BlockDuration   time.Duration `mapstructure:"block_duration"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	ConsumerGroup   string        `mapstructure:"consumer_group"`
	IdempotencyTTL  time.Duration `mapstructure:"idempotency_ttl"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// TURNKEY_LEDGER_BASE_URL -> ledger.base_url
	v.SetEnvPrefix("TURNKEY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/turnkey")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.write_timeout must be positive"))
	}
	if c.Database.Host == "" {
		errs = append(errs, fmt.Errorf("database.host is required"))
	}
	if c.Database.Port <= 0 {
		errs = append(errs, fmt.Errorf("database.port must be positive"))
	}
	if c.Redis.Port <= 0 {
		errs = append(errs, fmt.Errorf("redis.port must be positive"))
	}
	if c.Ledger.BaseURL == "" {
		errs = append(errs, fmt.Errorf("ledger.base_url is required"))
	}
	if c.Ledger.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("ledger.timeout must be positive"))
	}
	if c.Fraud.Enabled && (c.Fraud.UserID == "" || c.Fraud.LicenseKey == "") {
		errs = append(errs, fmt.Errorf("fraud.user_id and fraud.license_key are required when fraud scoring is enabled"))
	}
	switch c.Events.Driver {
	case "redis", "none", "":
	case "nats":
		if c.Events.NATSURL == "" {
			errs = append(errs, fmt.Errorf("events.nats_url is required for the nats driver"))
		}
	case "sqs":
		if c.Events.SQSQueueURL == "" {
			errs = append(errs, fmt.Errorf("events.sqs_queue_url is required for the sqs driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("events.driver %q is not supported", c.Events.Driver))
	}
	if c.MerchantConfig.CacheTTL < 0 {
		errs = append(errs, fmt.Errorf("merchant_config.cache_ttl must not be negative"))
	}
	if c.Breaker.FailureRatio < 0 || c.Breaker.FailureRatio > 1 {
		errs = append(errs, fmt.Errorf("breaker.failure_ratio must be between 0 and 1"))
	}

	env := os.Getenv("ENV")
	if env == "production" || env == "prod" {
		if c.Database.Password == "" {
			errs = append(errs, fmt.Errorf("database.password required in production"))
		}
		if c.Auth.JWTSecret == "" {
			errs = append(errs, fmt.Errorf("auth.jwt_secret required in production"))
		}
		if c.Stripe.LiveSecretKey == "" {
			errs = append(errs, fmt.Errorf("stripe.live_secret_key required in production"))
		}
		if c.Email.FromAddress == "" {
			errs = append(errs, fmt.Errorf("email.from_address required in production"))
		}
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, fmt.Errorf("auth.jwt_secret must be at least 32 characters"))
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.requests_per_minute", 120)
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "turnkey")
	v.SetDefault("database.database", "turnkey")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.min_connections", 2)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.ssl_mode", "disable")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")

	v.SetDefault("ledger.base_url", "https://api.lightrail.com")
	v.SetDefault("ledger.timeout", "10s")
	v.SetDefault("ledger.retry_attempts", 3)

	v.SetDefault("fraud.enabled", false)
	v.SetDefault("fraud.endpoint", "https://minfraud.maxmind.com")
	v.SetDefault("fraud.timeout", "5s")

	v.SetDefault("email.region", "us-west-2")
	v.SetDefault("email.strict_template", true)

	v.SetDefault("events.driver", "redis")
	v.SetDefault("events.stream", "turnkey:events")

	v.SetDefault("stripe.live_secret_key", "")
	v.SetDefault("stripe.test_secret_key", "")
	v.SetDefault("stripe.live_client_id", "")
	v.SetDefault("stripe.test_client_id", "")
	v.SetDefault("stripe.connect.callback_url", "http://localhost:8080/api/v1/turnkey/stripe/callback")
	v.SetDefault("stripe.connect.app_url", "http://localhost:3000/app/")
	v.SetDefault("stripe.connect.state_ttl", "6h")
	v.SetDefault("stripe.connect.demo_account_domains", []string{"giftbit.com", "lightrail.com"})

	v.SetDefault("merchant_config.cache_ttl", "5m")

	v.SetDefault("breaker.max_requests", 10)
	v.SetDefault("breaker.interval", "60s")
	v.SetDefault("breaker.timeout", "30s")
	v.SetDefault("breaker.min_requests", 10)
	v.SetDefault("breaker.failure_ratio", 0.6)

	v.SetDefault("worker.batch_size", 10)
	v.SetDefault("worker.block_duration", "1s")
	v.SetDefault("worker.cleanup_interval", "10m")
	v.SetDefault("worker.consumer_group", "fraud-review")
	v.SetDefault("worker.idempotency_ttl", "24h")

	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", true)

	v.SetDefault("instance_id", "turnkey-1")
}

func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// DatabaseURL is the URL form used by migrations.
func (c *DatabaseConfig) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ClientID returns the Connect platform client id for the given mode.
func (c *StripeConfig) ClientID(testMode bool) string {
	if testMode {
		return c.TestClientID
	}
	return c.LiveClientID
}

// SecretKey returns the platform key for the given mode.
func (c *StripeConfig) SecretKey(testMode bool) string {
	if testMode {
		return c.TestSecretKey
	}
	return c.LiveSecretKey
}
