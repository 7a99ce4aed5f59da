package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override. A double underscore
// separates nesting levels: MARKET_REDIS__ADDR sets redis.addr.
const EnvPrefix = "MARKET_"

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"

	PolicyLatest  = "latest"
	PolicyHighest = "highest"
)

type Config struct {
	LogLevel     string `koanf:"log_level"`
	SeedDemoData bool   `koanf:"seed_demo_data"`

	Server    ServerConfig    `koanf:"server"`
	Store     StoreConfig     `koanf:"store"`
	Redis     RedisConfig     `koanf:"redis"`
	Auth      AuthConfig      `koanf:"auth"`
	Bidding   BiddingConfig   `koanf:"bidding"`
	Notify    NotifyConfig    `koanf:"notify"`
	Payments  PaymentsConfig  `koanf:"payments"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type StoreConfig struct {
	Backend string `koanf:"backend"`
}

type RedisConfig struct {
	Addr          string        `koanf:"addr"`
	Password      string        `koanf:"password"`
	DB            int           `koanf:"db"`
	Prefix        string        `koanf:"prefix"`
	MaxTxnRetries int           `koanf:"max_txn_retries"`
	DialTimeout   time.Duration `koanf:"dial_timeout"`
	ReadTimeout   time.Duration `koanf:"read_timeout"`
	WriteTimeout  time.Duration `koanf:"write_timeout"`
}

type AuthConfig struct {
	JWTSecret string        `koanf:"jwt_secret"`
	TokenTTL  time.Duration `koanf:"token_ttl"`
}

type BiddingConfig struct {
	OperationTimeout time.Duration `koanf:"operation_timeout"`
	CurrentBidPolicy string        `koanf:"current_bid_policy"`
}

type NotifyConfig struct {
	// RelayURL, when set, sends decisions through a remote /send-email relay
	// instead of the local SMTP mailer. RelayToken is sent as its bearer
	// token; leave it empty for an unauthenticated relay.
	RelayURL   string     `koanf:"relay_url"`
	RelayToken string     `koanf:"relay_token"`
	Currency   string     `koanf:"currency"`
	SMTP       SMTPConfig `koanf:"smtp"`
}

type SMTPConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from"`
}

type PaymentsConfig struct {
	StripeBaseURL   string        `koanf:"stripe_base_url"`
	StripeSecretKey string        `koanf:"stripe_secret_key"`
	Timeout         time.Duration `koanf:"timeout"`

	// MaxNetworkRetries is handed to the Stripe client; 0 disables retries
	MaxNetworkRetries int64 `koanf:"max_network_retries"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`
}

// Defaults returns the built-in configuration
func Defaults() Config {
	return Config{
		LogLevel: "info",
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{Backend: BackendMemory},
		Redis: RedisConfig{
			Addr:          "localhost:6379",
			Prefix:        "market",
			MaxTxnRetries: 25,
			DialTimeout:   5 * time.Second,
			ReadTimeout:   3 * time.Second,
			WriteTimeout:  3 * time.Second,
		},
		Auth: AuthConfig{TokenTTL: 24 * time.Hour},
		Bidding: BiddingConfig{
			OperationTimeout: 10 * time.Second,
			CurrentBidPolicy: PolicyLatest,
		},
		Notify: NotifyConfig{
			Currency: "ksh",
			SMTP:     SMTPConfig{Host: "smtp.gmail.com", Port: 587},
		},
		Payments: PaymentsConfig{
			StripeBaseURL:     "https://api.stripe.com",
			Timeout:           10 * time.Second,
			MaxNetworkRetries: 2,
		},
		RateLimit: RateLimitConfig{RequestsPerSecond: 20, Burst: 40},
	}
}

// Load builds the configuration from defaults, an optional YAML file at path
// and MARKET_ environment variables, in increasing priority.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("loading config file %s: %w", path, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("stat config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Validate rejects configurations the server cannot run with
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}
	switch c.Bidding.CurrentBidPolicy {
	case PolicyLatest, PolicyHighest:
	default:
		return fmt.Errorf("config: unknown current bid policy %q", c.Bidding.CurrentBidPolicy)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("config: auth.jwt_secret is required")
	}
	if c.Bidding.OperationTimeout <= 0 {
		return fmt.Errorf("config: bidding.operation_timeout must be positive")
	}
	return nil
}

// Addr returns the HTTP listen address
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
