// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
)

// Config holds all application configuration
type Config struct {
	Addr       string `env:"ADDR" envDefault:":8080"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	TrustProxy bool   `env:"TRUST_PROXY" envDefault:"false"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	DatabaseURL  string        `env:"DATABASE_URL"`
	SeedDatabase bool          `env:"SEED_DATABASE" envDefault:"true"`
	StoreTimeout time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`

	Cache     CacheConfig     `envPrefix:"CACHE_"`
	RateLimit RateLimitConfig `envPrefix:"RATE_LIMIT_"`
	Worker    WorkerConfig
}

// CacheConfig holds settings for the product bucket
type CacheConfig struct {
	Bucket   string        `env:"BUCKET" envDefault:"productsDetails"`
	TTL      time.Duration `env:"TTL" envDefault:"300s"`
	Timeout  time.Duration `env:"TIMEOUT" envDefault:"2s"`
	WarmCron string        `env:"WARM_CRON"`
}

// RateLimitConfig holds the per-client token bucket settings
type RateLimitConfig struct {
	Capacity   int `env:"CAPACITY" envDefault:"0"` // 0 disables limiting
	RefillRate int `env:"REFILL_RATE" envDefault:"10"`
}

// WorkerConfig holds background job settings
type WorkerConfig struct {
	Concurrency int `env:"WORKER_CONCURRENCY" envDefault:"2"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// HasRedis returns true if a Redis server is configured
func (c *Config) HasRedis() bool {
	return c.RedisAddr != ""
}

// HasDatabase returns true if a Postgres database is configured
func (c *Config) HasDatabase() bool {
	return c.DatabaseURL != ""
}

// Validate checks value ranges that the parser cannot express
func (c *Config) Validate() error {
	if c.Cache.Bucket == "" {
		return fmt.Errorf("CACHE_BUCKET must not be empty")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive, got %v", c.Cache.TTL)
	}
	if c.Cache.Timeout <= 0 {
		return fmt.Errorf("CACHE_TIMEOUT must be positive, got %v", c.Cache.Timeout)
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT must be positive, got %v", c.StoreTimeout)
	}
	if c.RateLimit.Capacity < 0 {
		return fmt.Errorf("RATE_LIMIT_CAPACITY must not be negative, got %d", c.RateLimit.Capacity)
	}
	if c.RateLimit.Capacity > 0 && c.RateLimit.RefillRate <= 0 {
		return fmt.Errorf("RATE_LIMIT_REFILL_RATE must be positive when limiting is enabled, got %d", c.RateLimit.RefillRate)
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive, got %d", c.Worker.Concurrency)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %v", err)
	}
	return nil
}
