package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/maltedev/shelf-price-scraper/internal/models"
)

// BatchFileSink writes each checkpoint batch to its own JSON-lines file.
type BatchFileSink struct {
	dir    string
	source string
}

func NewBatchFileSink(dir, source string) (*BatchFileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &BatchFileSink{dir: dir, source: source}, nil
}

func (s *BatchFileSink) Path(batchNo int) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_batch_%03d.jsonl", s.source, batchNo))
}

func (s *BatchFileSink) WriteBatch(_ context.Context, batchNo int, records []models.Record) error {
	return writeAtomic(s.Path(batchNo), func(w *bufio.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		for i := range records {
			if err := enc.Encode(&records[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReadBatch loads a JSON-lines batch file.
func ReadBatch(path string) ([]models.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []models.Record
	dec := json.NewDecoder(f)
	for dec.More() {
		var rec models.Record
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Export accumulates every record of a run and writes them as one indented
// JSON array on Save. It can be used as a checkpoint sink; a batch number
// written twice keeps only its latest records.
type Export struct {
	path    string
	batches map[int][]models.Record
	mu      sync.Mutex
}

func NewExport(path string) *Export {
	return &Export{path: path, batches: make(map[int][]models.Record)}
}

func (e *Export) WriteBatch(_ context.Context, batchNo int, records []models.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.batches[batchNo] = append([]models.Record(nil), records...)
	return nil
}

// Records returns the collected records in batch order.
func (e *Export) Records() []models.Record {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]models.Record, 0)
	for _, n := range slices.Sorted(maps.Keys(e.batches)) {
		out = append(out, e.batches[n]...)
	}
	return out
}

func (e *Export) Save() error {
	return ExportJSON(e.path, e.Records())
}

// Finish saves the export once the run is over.
func (e *Export) Finish(context.Context, models.RunResult) error {
	return e.Save()
}

func ExportJSON(path string, records []models.Record) error {
	if records == nil {
		records = []models.Record{}
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	return writeAtomic(path, func(w *bufio.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	})
}

// writeAtomic writes to a temp file next to path and renames it into place.
func writeAtomic(path string, write func(w *bufio.Writer) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}

	w := bufio.NewWriter(f)
	if err := write(w); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
