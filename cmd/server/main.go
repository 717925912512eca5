package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maltedev/shelf-price-scraper/internal/api"
	"github.com/maltedev/shelf-price-scraper/internal/config"
	"github.com/maltedev/shelf-price-scraper/internal/database"
	"github.com/maltedev/shelf-price-scraper/internal/jobs"
	"github.com/maltedev/shelf-price-scraper/internal/logger"
	"github.com/maltedev/shelf-price-scraper/internal/runner"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		db      *database.DB
		records api.RecordLister
		outbox  *database.OutboxRepository
	)
	if cfg.Database.Enabled {
		db, err = database.New(ctx, runner.DatabaseConfig(cfg))
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			logger.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
		records = database.NewRecordRepository(db)
		outbox = database.NewOutboxRepository(db)
	}

	var rdb *redis.Client
	if cfg.Database.Enabled || cfg.Output.CursorBackend == "redis" {
		rdb = redis.NewClient(runner.RedisOptions(cfg))
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
	}

	cursors, err := runner.CursorStore(cfg, rdb)
	if err != nil {
		logger.Error("failed to open cursor store", "error", err)
		os.Exit(1)
	}

	r := runner.New(
		runner.SettingsFrom(cfg),
		runner.NewSiteOpener(cfg, logger),
		logger,
		runner.WithSinks(runner.OutputSinks(cfg.Output.Dir, db, logger)),
		runner.WithCursorStore(cursors),
	)
	manager := jobs.NewManager(ctx, r, logger)

	var counter api.OutboxCounter
	if outbox != nil {
		counter = outbox
	}
	handlers := api.NewHandlers(manager, records, counter, logger)

	server := &http.Server{
		Addr: cfg.Addr(),
		Handler: api.NewRouter(handlers, api.RouterConfig{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			RateLimit:      cfg.Server.RateLimit,
			RateBurst:      cfg.Server.RateBurst,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		manager.Wait()
		return err
	})

	if outbox != nil {
		relay := database.NewRelay(outbox, rdb, logger, database.RelayConfig{
			PollInterval: 5 * time.Second,
			BatchSize:    100,
			MaxLen:       cfg.Redis.StreamMaxLen,
		})
		g.Go(func() error {
			if err := relay.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
