// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the server needs to start
type Config struct {
	Port      string
	JWTSecret string
	JWTIssuer string

	// Empty values select the in-process fallbacks
	DatabaseURL  string
	RedisURL     string
	RabbitMQURL  string
	SaleExchange string
	RelayChannel string

	SweepInterval  time.Duration
	WSSendBuffer   int
	WSPingInterval time.Duration
	WSWriteTimeout time.Duration
	DBLockTimeout  time.Duration

	LogLevel string
}

// Load reads .env.local and .env when present, then the process environment. Variables
// already set in the environment take precedence over the files.
func Load() (Config, error) {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup, applying defaults for unset keys
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	r := reader{lookup: lookup}
	cfg := Config{
		Port:           r.str("PORT", "8080"),
		JWTSecret:      r.str("JWT_SECRET", ""),
		JWTIssuer:      r.str("JWT_ISSUER", "bidding-live"),
		DatabaseURL:    r.str("DATABASE_URL", ""),
		RedisURL:       r.str("REDIS_URL", ""),
		RabbitMQURL:    r.str("RABBITMQ_URL", ""),
		SaleExchange:   r.str("SALE_EXCHANGE", "auction.events"),
		RelayChannel:   r.str("RELAY_CHANNEL", "bidding-live.events"),
		SweepInterval:  r.duration("SWEEP_INTERVAL", 5*time.Second),
		WSSendBuffer:   r.integer("WS_SEND_BUFFER", 32),
		WSPingInterval: r.duration("WS_PING_INTERVAL", 30*time.Second),
		WSWriteTimeout: r.duration("WS_WRITE_TIMEOUT", 10*time.Second),
		DBLockTimeout:  r.duration("DB_LOCK_TIMEOUT", 3*time.Second),
		LogLevel:       r.str("LOG_LEVEL", "info"),
	}
	if err := errors.Join(r.errs...); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("SWEEP_INTERVAL must be positive"))
	}
	if c.WSSendBuffer <= 0 {
		errs = append(errs, errors.New("WS_SEND_BUFFER must be positive"))
	}
	if c.WSPingInterval <= 0 || c.WSWriteTimeout <= 0 {
		errs = append(errs, errors.New("WS_PING_INTERVAL and WS_WRITE_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}

type reader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *reader) str(key, def string) string {
	if v, ok := r.lookup(key); ok && v != "" {
		return v
	}
	return def
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v, ok := r.lookup(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (r *reader) integer(key string, def int) int {
	v, ok := r.lookup(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}
