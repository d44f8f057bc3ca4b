package main

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"association/internal/config"
	"association/internal/logging"
	"association/internal/queue"
	"association/internal/store"
)

// Worker applies attendance counter increments that failed inline.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New(logging.Config{}).Fatal("invalid configuration", zap.Error(err))
	}
	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	defer func() { _ = logger.Sync() }()

	if cfg.QueueBackend != "redis" || cfg.StoreBackend == "memory" {
		logger.Fatal("worker needs a shared queue and store",
			zap.String("queue", cfg.QueueBackend), zap.String("store", cfg.StoreBackend))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	records, err := store.OpenRecords(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("record store connect failed", zap.Error(err))
	}
	defer func() { _ = records.Close(context.Background()) }()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer func() { _ = redisClient.Close() }()
	if !redisClient.Healthy(ctx) {
		logger.Warn("redis not reachable yet; consumer will keep retrying", zap.String("addr", cfg.RedisAddr))
	}

	q := queue.NewRedisQueue(redisClient.Client, queue.DefaultKey, logger)
	if err := queue.NewCounterWorker(q, records, cfg.CounterRetryMax, logger).Run(ctx); err != nil {
		logger.Fatal("queue consume init failed", zap.Error(err))
	}
}
