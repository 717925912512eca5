package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/maltedev/shelf-price-scraper/internal/models"
)

const DefaultBatchSize = 1000

var ErrClosed = errors.New("batcher is closed")

// Sink persists one group of records. batchNo starts at 1 and increases by
// one per call within a run.
type Sink interface {
	WriteBatch(ctx context.Context, batchNo int, records []models.Record) error
}

type SinkFunc func(ctx context.Context, batchNo int, records []models.Record) error

func (f SinkFunc) WriteBatch(ctx context.Context, batchNo int, records []models.Record) error {
	return f(ctx, batchNo, records)
}

// Multi writes every batch to all sinks and joins their errors.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(ctx context.Context, batchNo int, records []models.Record) error {
		var errs []error
		for _, s := range sinks {
			if err := s.WriteBatch(ctx, batchNo, records); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

// Batcher groups records into fixed-size batches and hands each full batch to
// its sink. Flush writes the final partial batch. A batch the sink rejects
// stays pending under the same number and is offered again, together with
// later records, on the next Add or Flush.
type Batcher struct {
	sink      Sink
	batchSize int
	pending   []models.Record
	batches   int
	written   int
	closed    bool
	mu        sync.Mutex
	logger    *slog.Logger
}

func NewBatcher(sink Sink, batchSize int, logger *slog.Logger) *Batcher {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Batcher{
		sink:      sink,
		batchSize: batchSize,
		pending:   make([]models.Record, 0, batchSize),
		logger:    logger.With("component", "checkpoint"),
	}
}

func (b *Batcher) Add(ctx context.Context, rec models.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	b.pending = append(b.pending, rec)
	if len(b.pending) < b.batchSize {
		return nil
	}
	return b.flush(ctx)
}

// Flush writes buffered records, if any, and closes the batcher. The batcher
// stays open when the write fails so Flush can be retried.
func (b *Batcher) Flush(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	if len(b.pending) > 0 {
		if err := b.flush(ctx); err != nil {
			return err
		}
	}
	b.closed = true
	return nil
}

func (b *Batcher) flush(ctx context.Context) error {
	batchNo := b.batches + 1
	if err := b.sink.WriteBatch(ctx, batchNo, b.pending); err != nil {
		b.logger.Warn("batch kept for retry", "batch", batchNo, "records", len(b.pending), "error", err)
		return fmt.Errorf("failed to write batch %d: %w", batchNo, err)
	}

	size := len(b.pending)
	b.batches = batchNo
	b.written += size
	b.pending = make([]models.Record, 0, b.batchSize)

	b.logger.Info("batch written", "batch", batchNo, "records", size, "total", b.written)
	return nil
}

// Pending returns the number of buffered records not yet written.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Stats returns the number of batches written and the records they held.
// Records are written in the order they were added.
func (b *Batcher) Stats() (batches, written int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.batches, b.written
}
