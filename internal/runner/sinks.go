package runner

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/maltedev/shelf-price-scraper/internal/checkpoint"
	"github.com/maltedev/shelf-price-scraper/internal/models"
)

// Pipeline fans batches out to several sinks and finishes every finisher.
type Pipeline struct {
	sinks []checkpoint.Sink
}

func NewPipeline(sinks ...checkpoint.Sink) *Pipeline {
	return &Pipeline{sinks: sinks}
}

func (p *Pipeline) WriteBatch(ctx context.Context, batchNo int, records []models.Record) error {
	return checkpoint.Multi(p.sinks...).WriteBatch(ctx, batchNo, records)
}

func (p *Pipeline) Finish(ctx context.Context, result models.RunResult) error {
	var errs []error
	for _, s := range p.sinks {
		if f, ok := s.(Finisher); ok {
			errs = append(errs, f.Finish(ctx, result))
		}
	}
	return errors.Join(errs...)
}

// ExportPath is where the full export of a source is written.
func ExportPath(dir, source string) string {
	return filepath.Join(dir, source+".json")
}
