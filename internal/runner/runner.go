package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/shelf-price-scraper/internal/checkpoint"
	"github.com/maltedev/shelf-price-scraper/internal/crawler"
	"github.com/maltedev/shelf-price-scraper/internal/extractor"
	"github.com/maltedev/shelf-price-scraper/internal/models"
	"github.com/maltedev/shelf-price-scraper/internal/sources"
	"github.com/maltedev/shelf-price-scraper/internal/storage"
)

type Settings struct {
	MaxRounds        int
	UnitPriceCeiling float64
	BatchSize        int
}

// Request describes one run against one source.
type Request struct {
	Source string
	Target int
	// StartOffset is used as given unless Resume is set and a cursor exists.
	StartOffset int
	Resume      bool
	OnProgress  func(models.Progress)
}

// Session is an opened source: its pager, extractor options and cleanup.
type Session struct {
	Pager   crawler.Pager
	Options []extractor.Option
	Close   func() error
}

// Opener connects to a site.
type Opener interface {
	Open(ctx context.Context, site sources.Site) (*Session, error)
}

// SinkFactory returns the checkpoint sink for a run.
type SinkFactory func(ctx context.Context, runID uuid.UUID, source string) (checkpoint.Sink, error)

// Finisher is implemented by sinks that need a final step once the run is
// over, such as writing a full export.
type Finisher interface {
	Finish(ctx context.Context, result models.RunResult) error
}

type Runner struct {
	settings Settings
	opener   Opener
	sinks    SinkFactory
	cursors  storage.CursorStore
	logger   *slog.Logger
}

type Option func(*Runner)

func WithSinks(f SinkFactory) Option {
	return func(r *Runner) {
		r.sinks = f
	}
}

func WithCursorStore(s storage.CursorStore) Option {
	return func(r *Runner) {
		r.cursors = s
	}
}

func New(settings Settings, opener Opener, logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		settings: settings,
		opener:   opener,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one extraction run. Cancelling ctx stops the run cooperatively;
// records gathered so far are still flushed and the cursor saved. The returned
// result's NextOffset never lies beyond a record that failed to persist.
func (r *Runner) Run(ctx context.Context, runID uuid.UUID, req Request) (models.RunResult, error) {
	site, err := sources.Lookup(req.Source)
	if err != nil {
		return models.RunResult{}, err
	}
	base := r.logger.With("run_id", runID, "source", site.Name)
	logger := base.With("component", "runner")

	start := max(req.StartOffset, 0)
	if req.Resume && r.cursors != nil {
		saved, err := r.cursors.Load(ctx, site.Name)
		if err != nil {
			return models.RunResult{}, fmt.Errorf("failed to load cursor: %w", err)
		}
		if saved > 0 {
			start = saved
		}
	}

	session, err := r.opener.Open(ctx, site)
	if err != nil {
		return models.RunResult{}, fmt.Errorf("failed to open %s: %w", site.Name, err)
	}
	defer func() {
		if session.Close == nil {
			return
		}
		if err := session.Close(); err != nil {
			logger.Warn("failed to close source", "error", err)
		}
	}()

	cfg := site.Extractor
	if r.settings.UnitPriceCeiling > 0 {
		cfg.UnitPriceCeiling = r.settings.UnitPriceCeiling
	}
	// The extractor tags its own lines with the source.
	exLogger := r.logger.With("run_id", runID)
	ex, err := extractor.New(cfg, append(session.Options, extractor.WithLogger(exLogger))...)
	if err != nil {
		return models.RunResult{}, err
	}

	var (
		sink    checkpoint.Sink
		batcher *checkpoint.Batcher
	)
	if r.sinks != nil {
		sink, err = r.sinks(ctx, runID, site.Name)
		if err != nil {
			return models.RunResult{}, fmt.Errorf("failed to create sink: %w", err)
		}
		batcher = checkpoint.NewBatcher(sink, r.settings.BatchSize, base)
	}

	// indexes holds the entry index of every record handed to the batcher.
	var (
		indexes []int
		addErr  error
	)
	loop := crawler.NewLoop(ex, crawler.Options{
		Target:      req.Target,
		MaxRounds:   r.settings.MaxRounds,
		StartOffset: start,
		CapturedAt:  time.Now().UTC(),
		OnRecord: func(index int, rec models.Record) {
			if batcher == nil {
				return
			}
			indexes = append(indexes, index)
			if err := batcher.Add(context.WithoutCancel(ctx), rec); err != nil {
				addErr = err
				logger.Warn("checkpoint deferred", "index", index, "pending", batcher.Pending(), "error", err)
			}
		},
		OnProgress: req.OnProgress,
	}, base)

	logger.Info("run started", "target", req.Target, "start_offset", start)
	result := loop.Run(ctx, session.Pager)

	// Persisting happens even when the run was cancelled.
	persistCtx := context.WithoutCancel(ctx)
	var persistErr error
	lost := false
	if batcher != nil {
		if err := batcher.Flush(persistCtx); err != nil {
			persistErr = errors.Join(addErr, err)
			logger.Error("final checkpoint failed", "error", persistErr)
		}
		_, written := batcher.Stats()
		if written < len(indexes) {
			lost = true
			result.NextOffset = indexes[written]
			logger.Warn("cursor held at first unpersisted record",
				"next_offset", result.NextOffset,
				"unpersisted", len(indexes)-written)
		}
	}
	if f, ok := sink.(Finisher); ok {
		if err := f.Finish(persistCtx, result); err != nil {
			persistErr = errors.Join(persistErr, err)
			logger.Error("failed to finish sink", "error", err)
		}
	}
	r.saveCursor(persistCtx, logger, site.Name, result, lost)

	if batcher != nil {
		batches, written := batcher.Stats()
		logger.Info("run persisted", "batches", batches, "records", written, "next_offset", result.NextOffset)
	}
	return result, persistErr
}

// saveCursor clears the cursor once the source is exhausted and every record
// was persisted; otherwise it stores result.NextOffset.
func (r *Runner) saveCursor(ctx context.Context, logger *slog.Logger, source string, result models.RunResult, lost bool) {
	if r.cursors == nil {
		return
	}

	var err error
	if result.StopReason == models.StopExhausted && !lost {
		err = r.cursors.Clear(ctx, source)
	} else {
		err = r.cursors.Save(ctx, source, result.NextOffset)
	}
	if err != nil {
		logger.Error("failed to persist cursor", "error", err)
	}
}
