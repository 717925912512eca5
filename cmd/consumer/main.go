package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/maltedev/shelf-price-scraper/internal/config"
	"github.com/maltedev/shelf-price-scraper/internal/database"
	"github.com/maltedev/shelf-price-scraper/internal/events"
	"github.com/maltedev/shelf-price-scraper/internal/logger"
	"github.com/maltedev/shelf-price-scraper/internal/runner"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(runner.RedisOptions(cfg))
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	logger.Info("Connected to Redis", "addr", cfg.Redis.Addr)

	stream := os.Getenv("REDIS_STREAM")
	if stream == "" {
		stream = database.DefaultStream
	}

	hostname, _ := os.Hostname()
	consumer := events.NewConsumer(rdb, events.LogHandler{Logger: logger}, events.ConsumerConfig{
		Stream: stream,
		Name:   hostname,
	}, logger)

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Consumer error: %v", err)
	}
	logger.Info("Consumer stopped")
}
