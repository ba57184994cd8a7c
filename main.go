package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/codetesla51/productcache/api"
	"github.com/codetesla51/productcache/app"
	"github.com/codetesla51/productcache/config"
	"github.com/codetesla51/productcache/ratelimit"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := app.NewLogger("info")
		bootLogger.Fatal().Err(err).Msg("load config")
	}
	logger := app.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("build app")
	}
	defer a.Close()

	opts := api.ServerOptions{
		Products:   a.Coordinator,
		Logger:     logger,
		Gatherer:   a.Registry,
		TrustProxy: cfg.TrustProxy,
	}

	// Warm requests go through the worker when Redis is available
	if cfg.HasRedis() {
		client := asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() {
			if err := client.Close(); err != nil {
				logger.Error().Err(err).Msg("close asynq client")
			}
		}()
		opts.Jobs = client
	}

	if cfg.RateLimit.Capacity > 0 {
		opts.Limiter = ratelimit.NewTokenBucket(cfg.RateLimit.Capacity, cfg.RateLimit.RefillRate, a.Cache)
		logger.Info().
			Int("capacity", cfg.RateLimit.Capacity).
			Int("refill_rate", cfg.RateLimit.RefillRate).
			Msg("rate limiting enabled")
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.New(opts),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server failed")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
