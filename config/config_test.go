package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Addr != ":8080" {
		t.Errorf("Expected Addr ':8080', got '%s'", cfg.Addr)
	}
	if cfg.Cache.Bucket != "productsDetails" {
		t.Errorf("Expected bucket 'productsDetails', got '%s'", cfg.Cache.Bucket)
	}
	if cfg.Cache.TTL != 300*time.Second {
		t.Errorf("Expected TTL 300s, got %v", cfg.Cache.TTL)
	}
	if cfg.Cache.Timeout != 2*time.Second {
		t.Errorf("Expected cache timeout 2s, got %v", cfg.Cache.Timeout)
	}
	if cfg.StoreTimeout != 5*time.Second {
		t.Errorf("Expected store timeout 5s, got %v", cfg.StoreTimeout)
	}
	if !cfg.SeedDatabase {
		t.Error("Expected SeedDatabase to default to true")
	}
	if cfg.RateLimit.Capacity != 0 {
		t.Errorf("Expected rate limiting disabled by default, got capacity %d", cfg.RateLimit.Capacity)
	}
	if cfg.Worker.Concurrency != 2 {
		t.Errorf("Expected worker concurrency 2, got %d", cfg.Worker.Concurrency)
	}
	if cfg.TrustProxy {
		t.Error("Expected forwarded headers to be untrusted by default")
	}
	if cfg.HasRedis() {
		t.Error("Should not have Redis configured")
	}
	if cfg.HasDatabase() {
		t.Error("Should not have a database configured")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("TRUST_PROXY", "true")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("DATABASE_URL", "postgres://localhost/catalog")
	t.Setenv("SEED_DATABASE", "false")
	t.Setenv("CACHE_BUCKET", "ProductData")
	t.Setenv("CACHE_TTL", "1m")
	t.Setenv("CACHE_WARM_CRON", "@every 4m")
	t.Setenv("RATE_LIMIT_CAPACITY", "20")
	t.Setenv("RATE_LIMIT_REFILL_RATE", "5")
	t.Setenv("WORKER_CONCURRENCY", "4")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Addr != ":9090" {
		t.Errorf("Expected Addr ':9090', got '%s'", cfg.Addr)
	}
	if !cfg.TrustProxy {
		t.Error("Expected TrustProxy true")
	}
	if !cfg.HasRedis() || cfg.RedisDB != 3 {
		t.Errorf("Expected Redis localhost:6379 db 3, got %s db %d", cfg.RedisAddr, cfg.RedisDB)
	}
	if !cfg.HasDatabase() {
		t.Error("Should have a database configured")
	}
	if cfg.SeedDatabase {
		t.Error("Expected SeedDatabase false")
	}
	if cfg.Cache.Bucket != "ProductData" {
		t.Errorf("Expected bucket 'ProductData', got '%s'", cfg.Cache.Bucket)
	}
	if cfg.Cache.TTL != time.Minute {
		t.Errorf("Expected TTL 1m, got %v", cfg.Cache.TTL)
	}
	if cfg.Cache.WarmCron != "@every 4m" {
		t.Errorf("Expected warm cron '@every 4m', got '%s'", cfg.Cache.WarmCron)
	}
	if cfg.RateLimit.Capacity != 20 || cfg.RateLimit.RefillRate != 5 {
		t.Errorf("Expected rate limit 20/5, got %d/%d", cfg.RateLimit.Capacity, cfg.RateLimit.RefillRate)
	}
	if cfg.Worker.Concurrency != 4 {
		t.Errorf("Expected worker concurrency 4, got %d", cfg.Worker.Concurrency)
	}
}

func TestLoadInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unparsable ttl", "CACHE_TTL", "soon"},
		{"zero ttl", "CACHE_TTL", "0s"},
		{"negative store timeout", "STORE_TIMEOUT", "-1s"},
		{"negative capacity", "RATE_LIMIT_CAPACITY", "-1"},
		{"bad log level", "LOG_LEVEL", "loud"},
		{"non-numeric redis db", "REDIS_DB", "first"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("Expected error for %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	valid := Config{
		LogLevel:     "info",
		StoreTimeout: time.Second,
		Cache:        CacheConfig{Bucket: "b", TTL: time.Second, Timeout: time.Second},
		Worker:       WorkerConfig{Concurrency: 1},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Should not error on valid config: %v", err)
	}

	cfg := valid
	cfg.RateLimit = RateLimitConfig{Capacity: 10, RefillRate: 0}
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error when limiting is enabled without a refill rate")
	}

	cfg = valid
	cfg.Worker.Concurrency = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for zero worker concurrency")
	}
}
