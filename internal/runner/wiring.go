package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/shelf-price-scraper/internal/checkpoint"
	"github.com/maltedev/shelf-price-scraper/internal/config"
	"github.com/maltedev/shelf-price-scraper/internal/database"
	"github.com/maltedev/shelf-price-scraper/internal/events"
	"github.com/maltedev/shelf-price-scraper/internal/storage"
	"github.com/redis/go-redis/v9"
)

const cursorTTL = 7 * 24 * time.Hour

// OutputSinks writes every batch to a numbered JSONL file and to the full
// export of the source. When db is set, batches also go to the database with
// an outbox event per batch and one when the run finishes.
func OutputSinks(dir string, db *database.DB, logger *slog.Logger) SinkFactory {
	return func(_ context.Context, runID uuid.UUID, source string) (checkpoint.Sink, error) {
		files, err := storage.NewBatchFileSink(dir, source)
		if err != nil {
			return nil, err
		}
		sinks := []checkpoint.Sink{files, storage.NewExport(ExportPath(dir, source))}
		if db != nil {
			sinks = append(sinks, events.NewPublisher(db, runID, source, logger))
		}
		return NewPipeline(sinks...), nil
	}
}

// CursorStore picks the resume cursor backend from the configuration.
func CursorStore(cfg *config.Config, rdb *redis.Client) (storage.CursorStore, error) {
	switch cfg.Output.CursorBackend {
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("redis cursor backend needs a redis client")
		}
		return storage.NewRedisCursorStore(rdb, cursorTTL), nil
	default:
		return storage.NewFileCursorStore(cfg.Output.CursorDir)
	}
}

func DatabaseConfig(cfg *config.Config) database.Config {
	return database.Config{
		URL:      cfg.Database.URL,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.MaxConns,
	}
}

func RedisOptions(cfg *config.Config) *redis.Options {
	return &redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
}
