package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
	Service  string `yaml:"service"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
	Migrate  bool   `yaml:"migrate"` // apply the embedded schema on start
}

// StoreConfig selects the ledger backend.
type StoreConfig struct {
	Driver   string `yaml:"driver"` // postgres|bolt
	BoltPath string `yaml:"bolt_path"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // content cache ttl
}

type StripeConfig struct {
	SecretKey     string `yaml:"secret_key"`
	WebhookSecret string `yaml:"webhook_secret"`
	Currency      string `yaml:"currency"`
	// Sandbox swaps Stripe for the in-process gateway.
	Sandbox bool `yaml:"sandbox"`
}

type FeesConfig struct {
	PlatformFeeBps     int64 `yaml:"platform_fee_bps"`
	MaxPriceCents      int64 `yaml:"max_price_cents"`
	MinWithdrawalCents int64 `yaml:"min_withdrawal_cents"`
}

type GatewayConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"` // empty disables publishing
	Topic   string   `yaml:"topic"`
	Workers int      `yaml:"workers"`
	Queue   int      `yaml:"queue"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type ReconcilerConfig struct {
	Interval   time.Duration `yaml:"interval"`
	StaleAfter time.Duration `yaml:"stale_after"`
	Batch      int           `yaml:"batch"`
}

type RateLimitConfig struct {
	IntentsPerMinute     int `yaml:"intents_per_minute"`
	WithdrawalsPerMinute int `yaml:"withdrawals_per_minute"`
}

type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key"` // 16, 24 or 32 bytes
}

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Database   DatabaseConfig   `yaml:"database"`
	Store      StoreConfig      `yaml:"store"`
	Redis      RedisConfig      `yaml:"redis"`
	Stripe     StripeConfig     `yaml:"stripe"`
	Fees       FeesConfig       `yaml:"fees"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Auth       AuthConfig       `yaml:"auth"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Security   SecurityConfig   `yaml:"security"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path. ${VAR} references are expanded
// from the environment before parsing.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return cfg, nil
}

func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	c.Server.ReadTimeout = orDefault(c.Server.ReadTimeout, 10*time.Second)
	c.Server.WriteTimeout = orDefault(c.Server.WriteTimeout, 30*time.Second)
	c.Server.RequestTimeout = orDefault(c.Server.RequestTimeout, 20*time.Second)
	c.Server.ShutdownTimeout = orDefault(c.Server.ShutdownTimeout, 15*time.Second)

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.Service == "" {
		c.Log.Service = "creator-paywall"
	}

	if c.Store.Driver == "" {
		c.Store.Driver = "postgres"
	}
	c.Store.Driver = strings.ToLower(c.Store.Driver)
	if c.Store.Driver == "bolt" && c.Store.BoltPath == "" {
		c.Store.BoltPath = "paywall.db"
	}
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = 10
	}

	c.Redis.TTL = orDefault(c.Redis.TTL, time.Minute)

	if c.Stripe.Currency == "" {
		c.Stripe.Currency = "usd"
	}
	c.Stripe.Currency = strings.ToLower(c.Stripe.Currency)

	if c.Fees.PlatformFeeBps == 0 {
		c.Fees.PlatformFeeBps = 1000
	}
	if c.Fees.MaxPriceCents == 0 {
		c.Fees.MaxPriceCents = 100_000
	}
	if c.Fees.MinWithdrawalCents == 0 {
		c.Fees.MinWithdrawalCents = 100
	}

	c.Gateway.Timeout = orDefault(c.Gateway.Timeout, 10*time.Second)

	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "paywall.ledger"
	}
	if c.Kafka.Workers <= 0 {
		c.Kafka.Workers = 2
	}
	if c.Kafka.Queue <= 0 {
		c.Kafka.Queue = 256
	}

	c.Auth.TokenTTL = orDefault(c.Auth.TokenTTL, 24*time.Hour)

	c.Reconciler.Interval = orDefault(c.Reconciler.Interval, time.Minute)
	c.Reconciler.StaleAfter = orDefault(c.Reconciler.StaleAfter, 5*time.Minute)
	if c.Reconciler.Batch <= 0 {
		c.Reconciler.Batch = 50
	}

	if c.RateLimit.IntentsPerMinute <= 0 {
		c.RateLimit.IntentsPerMinute = 30
	}
	if c.RateLimit.WithdrawalsPerMinute <= 0 {
		c.RateLimit.WithdrawalsPerMinute = 5
	}
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("database.url is required for the postgres store")
		}
	case "bolt":
	default:
		return fmt.Errorf("store.driver %q is not supported", c.Store.Driver)
	}
	if c.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if c.Stripe.WebhookSecret == "" {
		return errors.New("stripe.webhook_secret is required")
	}
	if !c.Stripe.Sandbox && c.Stripe.SecretKey == "" {
		return errors.New("stripe.secret_key is required unless stripe.sandbox is set")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if c.Security.EncryptionKey == "" {
		return errors.New("security.encryption_key is required")
	}
	if c.Fees.PlatformFeeBps < 0 || c.Fees.PlatformFeeBps > 10_000 {
		return fmt.Errorf("fees.platform_fee_bps must be within 0..10000, got %d", c.Fees.PlatformFeeBps)
	}
	if c.Fees.MaxPriceCents < 0 || c.Fees.MinWithdrawalCents < 0 {
		return errors.New("fees must not be negative")
	}
	return nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
