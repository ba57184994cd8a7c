package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/codetesla51/productcache/app"
	"github.com/codetesla51/productcache/config"
	"github.com/codetesla51/productcache/jobs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := app.NewLogger("info")
		bootLogger.Fatal().Err(err).Msg("load config")
	}
	logger := app.NewLogger(cfg.LogLevel).With().Str("process", "worker").Logger()

	if !cfg.HasRedis() {
		logger.Fatal().Msg("worker requires REDIS_ADDR")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("build app")
	}
	defer a.Close()

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
		Queues: map[string]int{
			jobs.QueueCache: 10,
			"default":       5,
		},
	})
	mux := asynq.NewServeMux()
	mux.Handle(jobs.TaskWarmCatalog, jobs.NewWarmCatalogHandler(a.Coordinator, logger))

	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start worker")
	}
	logger.Info().Int("concurrency", cfg.Worker.Concurrency).Msg("worker running")

	var scheduler *asynq.Scheduler
	if cfg.Cache.WarmCron != "" {
		scheduler = asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{})
		task, err := jobs.NewWarmCatalogTask("schedule")
		if err != nil {
			logger.Fatal().Err(err).Msg("build scheduled warm task")
		}
		entryID, err := scheduler.Register(cfg.Cache.WarmCron, task, jobs.WarmOptions("")...)
		if err != nil {
			logger.Fatal().Err(err).Str("cron", cfg.Cache.WarmCron).Msg("register warm schedule")
		}
		if err := scheduler.Start(); err != nil {
			logger.Fatal().Err(err).Msg("start scheduler")
		}
		logger.Info().Str("entry_id", entryID).Str("cron", cfg.Cache.WarmCron).Msg("warm schedule registered")
	}

	<-ctx.Done()
	logger.Info().Msg("shutting down worker")
	if scheduler != nil {
		scheduler.Shutdown()
	}
	srv.Shutdown()
}
