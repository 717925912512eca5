package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/maltedev/shelf-price-scraper/internal/config"
	"github.com/maltedev/shelf-price-scraper/internal/database"
	"github.com/maltedev/shelf-price-scraper/internal/logger"
	"github.com/maltedev/shelf-price-scraper/internal/runner"
	"github.com/maltedev/shelf-price-scraper/internal/sources"
	"github.com/redis/go-redis/v9"
)

func main() {
	var (
		source   = flag.String("source", "", "Source to scrape: "+strings.Join(sources.Names(), ", "))
		target   = flag.Int("target", 0, "Number of records to keep (default from SCRAPER_TARGET)")
		offset   = flag.Int("offset", 0, "Absolute entry offset to start at")
		resume   = flag.Bool("resume", false, "Continue from the saved cursor of the source")
		outDir   = flag.String("out", "", "Output directory (default from OUTPUT_DIR)")
		headless = flag.Bool("headless", true, "Run browser in headless mode")
		batch    = flag.Int("batch", 0, "Checkpoint batch size (default from SCRAPER_BATCH_SIZE)")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *target > 0 {
		cfg.Scraper.Target = *target
	}
	if *batch > 0 {
		cfg.Scraper.BatchSize = *batch
	}
	if *outDir != "" {
		cfg.Output.Dir = *outDir
	}
	cfg.Browser.Headless = *headless && cfg.Browser.Headless

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if *source == "" {
		log.Fatalf("-source is required (%s)", strings.Join(sources.Names(), ", "))
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Starting shelf price scraper", "source", *source, "target", cfg.Scraper.Target)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, finishing current entry")
		cancel()
	}()

	var db *database.DB
	if cfg.Database.Enabled {
		db, err = database.New(ctx, runner.DatabaseConfig(cfg))
		if err != nil {
			logger.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			logger.Error("Failed to migrate database", "error", err)
			os.Exit(1)
		}
	}

	var rdb *redis.Client
	if cfg.Output.CursorBackend == "redis" {
		rdb = redis.NewClient(runner.RedisOptions(cfg))
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
	}

	cursors, err := runner.CursorStore(cfg, rdb)
	if err != nil {
		logger.Error("Failed to open cursor store", "error", err)
		os.Exit(1)
	}

	r := runner.New(
		runner.SettingsFrom(cfg),
		runner.NewSiteOpener(cfg, logger),
		logger,
		runner.WithSinks(runner.OutputSinks(cfg.Output.Dir, db, logger)),
		runner.WithCursorStore(cursors),
	)

	result, err := r.Run(ctx, uuid.New(), runner.Request{
		Source:      *source,
		Target:      cfg.Scraper.Target,
		StartOffset: *offset,
		Resume:      *resume,
	})
	if err != nil {
		logger.Error("Run failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("\nSource:       %s\n", *source)
	fmt.Printf("Stop reason:  %s\n", result.StopReason)
	fmt.Printf("Processed:    %d\n", result.Processed)
	fmt.Printf("Kept:         %d\n", result.Kept)
	fmt.Printf("Skipped:      %d\n", result.Skipped)
	fmt.Printf("Failed pages: %d\n", result.FailedPages)
	fmt.Printf("Next offset:  %d\n", result.NextOffset)
	fmt.Printf("Export:       %s\n", runner.ExportPath(cfg.Output.Dir, strings.ToLower(strings.TrimSpace(*source))))

	if result.Cancelled {
		fmt.Println("\nRun was interrupted; use -resume to continue.")
	}
}
