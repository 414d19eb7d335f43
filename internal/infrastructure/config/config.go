package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Purchase      PurchaseConfig      `mapstructure:"purchase"`
	CallGate      CallGateConfig      `mapstructure:"call_gate"`
	Postback      PostbackConfig      `mapstructure:"postback"`
	Worker        WorkerConfig        `mapstructure:"worker"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	InstanceID    string              `mapstructure:"instance_id"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
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

type PurchaseConfig struct {
	ThreeDSTTL    time.Duration `mapstructure:"three_ds_ttl"`
	LockTTL       time.Duration `mapstructure:"lock_ttl"`
	DefaultBiller string        `mapstructure:"default_biller"`
}

// CallGateConfig tunes the per-dependency circuit breakers and the call
// timeouts the orchestrator applies around each outbound dependency.
type CallGateConfig struct {
	FailureThreshold  uint32        `mapstructure:"failure_threshold"`
	CoolDown          time.Duration `mapstructure:"cool_down"`
	BillerTimeout     time.Duration `mapstructure:"biller_timeout"`
	FraudTimeout      time.Duration `mapstructure:"fraud_timeout"`
	BinRoutingTimeout time.Duration `mapstructure:"bin_routing_timeout"`
}

type PostbackConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
}

type WorkerConfig struct {
	BatchSize          int64         `mapstructure:"batch_size"`
	BlockDuration      time.Duration `mapstructure:"block_duration"`
	OutboxPollInterval time.Duration `mapstructure:"outbox_poll_interval"`
	ConsumerGroup      string        `mapstructure:"consumer_group"`
	// ReclaimInterval is how often a worker scans the group's pending list
	// for messages left unacked by a dead consumer.
	ReclaimInterval time.Duration `mapstructure:"reclaim_interval"`
	// ClaimMinIdle is how long a pending message must sit idle before it
	// may be claimed. Must be at least purchase.lock_ttl so a consumer
	// still delivering is never raced.
	ClaimMinIdle time.Duration `mapstructure:"claim_min_idle"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix("CHECKOUT")
	v.AutomaticEnv()

	// Read from config file if exists
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/checkout")

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
	if c.Purchase.ThreeDSTTL <= 0 {
		errs = append(errs, fmt.Errorf("purchase.three_ds_ttl must be positive"))
	}
	if c.Purchase.LockTTL <= 0 {
		errs = append(errs, fmt.Errorf("purchase.lock_ttl must be positive"))
	}
	if c.CallGate.FailureThreshold == 0 {
		errs = append(errs, fmt.Errorf("call_gate.failure_threshold must be positive"))
	}
	if c.CallGate.CoolDown <= 0 {
		errs = append(errs, fmt.Errorf("call_gate.cool_down must be positive"))
	}
	if c.Postback.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("postback.max_attempts must be positive"))
	}
	if c.Worker.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("worker.batch_size must be positive"))
	}
	if c.Worker.ReclaimInterval <= 0 {
		errs = append(errs, fmt.Errorf("worker.reclaim_interval must be positive"))
	}
	if c.Worker.ClaimMinIdle < c.Purchase.LockTTL {
		errs = append(errs, fmt.Errorf("worker.claim_min_idle must be at least purchase.lock_ttl"))
	}

	// Production environment checks
	env := os.Getenv("ENV")
	if env == "production" || env == "prod" {
		if c.Database.Password == "" {
			errs = append(errs, fmt.Errorf("database.password required in production"))
		}
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "checkout")
	v.SetDefault("database.database", "checkout")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.ssl_mode", "disable")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")

	// Purchase defaults
	v.SetDefault("purchase.three_ds_ttl", "15m")
	v.SetDefault("purchase.lock_ttl", "30s")
	v.SetDefault("purchase.default_biller", "netbilling")

	// Call gate defaults
	v.SetDefault("call_gate.failure_threshold", 5)
	v.SetDefault("call_gate.cool_down", "30s")
	v.SetDefault("call_gate.biller_timeout", "10s")
	v.SetDefault("call_gate.fraud_timeout", "3s")
	v.SetDefault("call_gate.bin_routing_timeout", "2s")

	// Postback defaults
	v.SetDefault("postback.max_attempts", 5)
	v.SetDefault("postback.retry_delay", "5s")
	v.SetDefault("postback.http_timeout", "10s")

	// Worker defaults
	v.SetDefault("worker.batch_size", 10)
	v.SetDefault("worker.block_duration", "1s")
	v.SetDefault("worker.outbox_poll_interval", "2s")
	v.SetDefault("worker.consumer_group", "postback-senders")
	v.SetDefault("worker.reclaim_interval", "30s")
	v.SetDefault("worker.claim_min_idle", "1m")

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", true)

	// Instance ID
	v.SetDefault("instance_id", "checkout-1")
}

func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
