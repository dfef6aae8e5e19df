// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the GoChat service.
package server

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	defaultPort            = ":8080"
	defaultMaxMessageSize  = 32 * 1024
	defaultBurst           = 5
	defaultRefillInterval  = time.Second
	defaultMongoDatabase   = "gochat"
	defaultMongoTimeout    = 5 * time.Second
	defaultTypingTTL       = 5 * time.Second
	defaultShutdownTimeout = 30 * time.Second
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// AuthConfig holds the parameters used to verify session tokens.
type AuthConfig struct {
	Secret string
	Issuer string
}

// MongoConfig selects the durable store. An empty URI selects the in-memory
// store.
type MongoConfig struct {
	URI              string
	Database         string
	OperationTimeout time.Duration
}

// RedisConfig selects the notification sink. An empty address logs
// notifications instead of publishing them.
type RedisConfig struct {
	Addr          string
	ChannelPrefix string
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port            string
	AllowedOrigins  []string
	MaxMessageSize  int64
	RateLimit       RateLimitConfig
	Auth            AuthConfig
	Mongo           MongoConfig
	Redis           RedisConfig
	TypingTTL       time.Duration
	LogLevel        string
	ShutdownTimeout time.Duration
}

// serverEnv is the raw environment layout. RATE_LIMIT_REFILL_INTERVAL is a
// whole number of seconds.
type serverEnv struct {
	Port               string        `env:"SERVER_PORT"                envDefault:":8080"`
	AllowedOrigins     []string      `env:"ALLOWED_ORIGINS"            envSeparator:","`
	MaxMessageSize     int64         `env:"MAX_MESSAGE_SIZE"`
	RateLimitBurst     int           `env:"RATE_LIMIT_BURST"`
	RateLimitRefillSec int           `env:"RATE_LIMIT_REFILL_INTERVAL"`
	JWTSecret          string        `env:"JWT_SECRET"`
	JWTIssuer          string        `env:"JWT_ISSUER"`
	MongoURI           string        `env:"MONGO_URI"`
	MongoDatabase      string        `env:"MONGO_DATABASE"             envDefault:"gochat"`
	MongoTimeout       time.Duration `env:"MONGO_OPERATION_TIMEOUT"    envDefault:"5s"`
	RedisAddr          string        `env:"REDIS_ADDR"`
	RedisChannelPrefix string        `env:"REDIS_CHANNEL_PREFIX"`
	TypingTTL          time.Duration `env:"TYPING_TTL"                 envDefault:"5s"`
	LogLevel           string        `env:"LOG_LEVEL"                  envDefault:"info"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT"           envDefault:"30s"`
}

var (
	configMu      sync.RWMutex
	activeConfig  Config
	activeOrigins originPolicy
)

func init() {
	SetConfig(nil)
}

func defaultConfig() Config {
	return Config{
		Port: defaultPort,
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: defaultMaxMessageSize,
		RateLimit: RateLimitConfig{
			Burst:          defaultBurst,
			RefillInterval: defaultRefillInterval,
		},
		Mongo: MongoConfig{
			Database:         defaultMongoDatabase,
			OperationTimeout: defaultMongoTimeout,
		},
		TypingTTL:       defaultTypingTTL,
		LogLevel:        "info",
		ShutdownTimeout: defaultShutdownTimeout,
	}
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = defaultBurst
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = defaultRefillInterval
	}

	if cfg.Mongo.Database == "" {
		cfg.Mongo.Database = defaultMongoDatabase
	}

	if cfg.Mongo.OperationTimeout <= 0 {
		cfg.Mongo.OperationTimeout = defaultMongoTimeout
	}

	// Zero disables typing expiry.
	if cfg.TypingTTL < 0 {
		cfg.TypingTTL = 0
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	policy, normalizedOrigins := newOriginPolicy(cfg.AllowedOrigins)
	cfg.AllowedOrigins = normalizedOrigins

	configMu.Lock()
	defer configMu.Unlock()

	activeConfig = cfg
	activeOrigins = policy

	return cfg
}

// SetConfig applies the provided configuration. Passing nil resets to defaults.
func SetConfig(cfg *Config) {
	if cfg == nil {
		sanitizeConfig(defaultConfig())
		return
	}

	sanitized := *cfg
	sanitized.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	sanitizeConfig(sanitized)
}

// CurrentConfig returns a copy of the active configuration.
func CurrentConfig() Config {
	return currentConfig()
}

func currentConfig() Config {
	configMu.RLock()
	defer configMu.RUnlock()

	cfg := activeConfig
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Unset or out-of-range values fall back to the defaults. A value that cannot
// be parsed at all is an error so a typo never silently discards the rest of
// the environment.
func NewConfigFromEnv() (*Config, error) {
	cfg := defaultConfig()

	var raw serverEnv
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	cfg.Port = raw.Port
	if origins := trimOrigins(raw.AllowedOrigins); len(origins) > 0 {
		cfg.AllowedOrigins = origins
	}
	if raw.MaxMessageSize > 0 {
		cfg.MaxMessageSize = raw.MaxMessageSize
	}
	if raw.RateLimitBurst > 0 {
		cfg.RateLimit.Burst = raw.RateLimitBurst
	}
	if raw.RateLimitRefillSec > 0 {
		cfg.RateLimit.RefillInterval = time.Duration(raw.RateLimitRefillSec) * time.Second
	}
	cfg.Auth = AuthConfig{Secret: raw.JWTSecret, Issuer: raw.JWTIssuer}
	cfg.Mongo = MongoConfig{URI: raw.MongoURI, Database: raw.MongoDatabase, OperationTimeout: raw.MongoTimeout}
	cfg.Redis = RedisConfig{Addr: raw.RedisAddr, ChannelPrefix: raw.RedisChannelPrefix}
	cfg.TypingTTL = raw.TypingTTL
	cfg.LogLevel = raw.LogLevel
	cfg.ShutdownTimeout = raw.ShutdownTimeout

	return &cfg, nil
}

func trimOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
