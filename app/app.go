// Package app assembles the stores, metrics and coordinator shared by the
// HTTP server and the worker.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/codetesla51/productcache/cache"
	"github.com/codetesla51/productcache/config"
	"github.com/codetesla51/productcache/product"
	"github.com/codetesla51/productcache/store"
)

const metricsNamespace = "productcache"

type App struct {
	Config      *config.Config
	Logger      zerolog.Logger
	Registry    *prometheus.Registry
	Cache       store.HashStore
	Source      store.ProductSource
	Coordinator *cache.Coordinator

	closers []io.Closer
}

// NewLogger builds the process logger at the configured level.
func NewLogger(level string) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return logger.Level(lvl)
}

// NewRegistry returns a registry carrying the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// New connects the configured stores. Redis is used for the cache when
// REDIS_ADDR is set, otherwise an in-memory store. Postgres backs the catalog
// when DATABASE_URL is set, otherwise the seed catalog is served from memory.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger, Registry: NewRegistry()}

	hashStore, err := a.openCache(cfg)
	if err != nil {
		return nil, a.fail(err)
	}
	a.Cache = hashStore

	source, err := a.openSource(ctx, cfg)
	if err != nil {
		return nil, a.fail(err)
	}
	a.Source = source

	coord, err := cache.New(cache.Options{
		Cache:        a.Cache,
		Source:       a.Source,
		Bucket:       cfg.Cache.Bucket,
		TTL:          cfg.Cache.TTL,
		CacheTimeout: cfg.Cache.Timeout,
		StoreTimeout: cfg.StoreTimeout,
		Logger:       logger,
		Metrics:      cache.NewMetrics(metricsNamespace, a.Registry),
	})
	if err != nil {
		return nil, a.fail(err)
	}
	a.Coordinator = coord
	return a, nil
}

// RedisOptions returns the go-redis options for the configured server.
func RedisOptions(cfg *config.Config) *redis.Options {
	return &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

func (a *App) openCache(cfg *config.Config) (store.HashStore, error) {
	if !cfg.HasRedis() {
		a.Logger.Info().Msg("using in-memory cache store")
		ms := store.NewMemoryStore()
		a.closers = append(a.closers, ms)
		return ms, nil
	}

	rs, err := store.NewRedisStore(RedisOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("open redis cache: %w", err)
	}
	a.closers = append(a.closers, rs)
	a.Logger.Info().Str("addr", cfg.RedisAddr).Int("db", cfg.RedisDB).Msg("using redis cache store")
	return rs, nil
}

func (a *App) openSource(ctx context.Context, cfg *config.Config) (store.ProductSource, error) {
	if !cfg.HasDatabase() {
		a.Logger.Info().Msg("using in-memory seed catalog")
		return store.NewSeedCatalog(), nil
	}

	ds, err := store.NewDatabaseStore(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open product database: %w", err)
	}
	a.closers = append(a.closers, ds)

	if cfg.SeedDatabase {
		seedCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
		defer cancel()
		n, err := ds.Seed(seedCtx, product.Seed())
		if err != nil {
			return nil, fmt.Errorf("seed product database: %w", err)
		}
		if n > 0 {
			a.Logger.Info().Int("products", n).Msg("seeded product database")
		}
	}
	a.Logger.Info().Msg("using postgres product database")
	return ds, nil
}

func (a *App) fail(err error) error {
	if cerr := a.Close(); cerr != nil {
		return errors.Join(err, cerr)
	}
	return err
}

// Close releases every store opened by New, last opened first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
