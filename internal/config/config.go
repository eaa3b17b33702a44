package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Store    StoreConfig
	Session  SessionConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Paystack PaystackConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port            string        `env:"PORT" env-default:"8080"`
	Host            string        `env:"HOST" env-default:"localhost"`
	Env             string        `env:"ENV" env-default:"development"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" env-default:"15s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" env-default:"15s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"10s"`
	AllowedOrigins  []string      `env:"CORS_ALLOWED_ORIGINS" env-separator:"," env-default:"http://localhost:3000"`
}

// Addr returns host:port for the HTTP listener
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// IsProduction reports whether the service runs in production
func (s ServerConfig) IsProduction() bool {
	return s.Env == "production"
}

type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"` // Full database URL
	Host            string        `env:"DB_HOST" env-default:"localhost"`
	Port            int           `env:"DB_PORT" env-default:"5432"`
	User            string        `env:"DB_USER" env-default:"postgres"`
	Password        string        `env:"DB_PASSWORD"`
	DBName          string        `env:"DB_NAME" env-default:"marketplace"`
	SSLMode         string        `env:"DB_SSLMODE" env-default:"disable"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" env-default:"5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"5m"`
	AutoMigrate     bool          `env:"DB_AUTO_MIGRATE" env-default:"false"`
}

type StoreConfig struct {
	Driver string `env:"STORE_DRIVER" env-default:"postgres"`
}

type SessionConfig struct {
	Secret string `env:"SESSION_SECRET" env-default:"your-secret-key-change-in-production"`
	Name   string `env:"SESSION_NAME" env-default:"session"`
	MaxAge int    `env:"SESSION_MAX_AGE" env-default:"86400"`
}

type RedisConfig struct {
	Addr           string        `env:"REDIS_ADDR"`
	Password       string        `env:"REDIS_PASSWORD"`
	DB             int           `env:"REDIS_DB" env-default:"0"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" env-default:"24h"`
}

// Enabled reports whether a Redis server was configured
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

type KafkaConfig struct {
	Brokers        []string      `env:"KAFKA_BROKERS" env-separator:","`
	Topic          string        `env:"KAFKA_TOPIC" env-default:"marketplace.checkout"`
	OutboxInterval time.Duration `env:"OUTBOX_INTERVAL" env-default:"2s"`
	OutboxBatch    int           `env:"OUTBOX_BATCH_SIZE" env-default:"50"`
	OutboxLease    time.Duration `env:"OUTBOX_LEASE" env-default:"30s"`
	MaxAttempts    int           `env:"OUTBOX_MAX_ATTEMPTS" env-default:"10"`
}

// Enabled reports whether brokers were configured
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

type PaystackConfig struct {
	SecretKey        string        `env:"PAYSTACK_SECRET_KEY"`
	BaseURL          string        `env:"PAYSTACK_BASE_URL" env-default:"https://api.paystack.co"`
	Timeout          time.Duration `env:"PAYSTACK_TIMEOUT" env-default:"30s"`
	BreakerFailures  uint32        `env:"PAYSTACK_BREAKER_FAILURES" env-default:"5"`
	BreakerOpenFor   time.Duration `env:"PAYSTACK_BREAKER_TIMEOUT" env-default:"30s"`
	BreakerHalfOpen  uint32        `env:"PAYSTACK_BREAKER_HALF_OPEN" env-default:"1"`
	BreakerResetSpan time.Duration `env:"PAYSTACK_BREAKER_INTERVAL" env-default:"60s"`
}

// Enabled reports whether gateway verification is configured
func (p PaystackConfig) Enabled() bool {
	return p.SecretKey != ""
}

type LogConfig struct {
	Level string `env:"LOG_LEVEL" env-default:"info"`
}

func Load() (*Config, error) {
	// Load .env files if they exist (try .env.local first, then .env)
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if cfg.Database.URL != "" {
		applyDatabaseURL(&cfg.Database)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the server cannot start with
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}

	if c.Server.IsProduction() && c.Session.Secret == "your-secret-key-change-in-production" {
		return fmt.Errorf("SESSION_SECRET must be set in production")
	}

	if c.Server.IsProduction() && !c.Paystack.Enabled() {
		return fmt.Errorf("PAYSTACK_SECRET_KEY must be set in production")
	}

	if c.Kafka.Enabled() && c.Kafka.Topic == "" {
		return fmt.Errorf("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	return nil
}

// applyDatabaseURL fills the individual connection fields from DATABASE_URL
func applyDatabaseURL(config *DatabaseConfig) {
	u, err := url.Parse(config.URL)
	if err != nil {
		// If parsing fails, keep the URL as-is
		return
	}

	config.Host = u.Hostname()
	if u.Port() != "" {
		config.Port, _ = strconv.Atoi(u.Port())
	} else {
		config.Port = 5432
	}

	if u.User != nil {
		config.User = u.User.Username()
		config.Password, _ = u.User.Password()
	}

	config.DBName = strings.TrimPrefix(u.Path, "/")

	config.SSLMode = u.Query().Get("sslmode")
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}
}
