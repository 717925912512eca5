package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/maltedev/shelf-price-scraper/internal/database"
	"github.com/maltedev/shelf-price-scraper/internal/models"
)

type EventType string

const (
	// EventTypePriceBatchCaptured is published with every persisted batch.
	EventTypePriceBatchCaptured EventType = "PRICE_BATCH_CAPTURED"
	// EventTypeRunFinished is published once a run stops, for any reason.
	EventTypeRunFinished EventType = "RUN_FINISHED"
)

type PriceBatchCapturedPayload struct {
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	RunID       string    `json:"run_id"`
	Source      string    `json:"source"`
	Batch       int       `json:"batch"`
	Records     int       `json:"records"`
	Stored      int64     `json:"stored"`
	Discounted  int       `json:"discounted"`
	WithUnit    int       `json:"with_unit_price"`
	MinPrice    float64   `json:"min_price"`
	MaxPrice    float64   `json:"max_price"`
	CapturedAt  time.Time `json:"captured_at"`
	ExternalIDs []string  `json:"external_ids,omitempty"`
}

type RunFinishedPayload struct {
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	RunID       string    `json:"run_id"`
	Source      string    `json:"source"`
	Processed   int       `json:"processed"`
	Kept        int       `json:"kept"`
	Skipped     int       `json:"skipped"`
	FailedPages int       `json:"failed_pages"`
	Rounds      int       `json:"rounds"`
	NextOffset  int       `json:"next_offset"`
	Cancelled   bool      `json:"cancelled"`
	StopReason  string    `json:"stop_reason"`
}

// TxRunner runs fn inside one database transaction.
type TxRunner interface {
	Transaction(ctx context.Context, fn func(pgx.Tx) error) error
}

type RecordWriter interface {
	InsertBatchWithTx(ctx context.Context, tx pgx.Tx, runID uuid.UUID, records []models.Record) (int64, error)
}

type OutboxWriter interface {
	InsertWithTx(ctx context.Context, tx pgx.Tx, event *database.OutboxEvent) error
}

// Publisher persists record batches and announces them through the
// transactional outbox. It is a checkpoint sink for one run.
type Publisher struct {
	tx      TxRunner
	records RecordWriter
	outbox  OutboxWriter
	runID   uuid.UUID
	source  string
	stream  string
	logger  *slog.Logger
}

func NewPublisher(db *database.DB, runID uuid.UUID, source string, logger *slog.Logger) *Publisher {
	return NewPublisherWith(db, database.NewRecordRepository(db), database.NewOutboxRepository(db), runID, source, logger)
}

func NewPublisherWith(tx TxRunner, records RecordWriter, outbox OutboxWriter, runID uuid.UUID, source string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		tx:      tx,
		records: records,
		outbox:  outbox,
		runID:   runID,
		source:  source,
		stream:  database.DefaultStream,
		logger:  logger.With("component", "event_publisher", "run_id", runID, "source", source),
	}
}

func (p *Publisher) aggregateID() string {
	return p.source + "-" + p.runID.String()
}

// WriteBatch stores the records and the batch event in the same transaction.
func (p *Publisher) WriteBatch(ctx context.Context, batchNo int, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}

	payload := summarize(records)
	payload.EventID = uuid.New().String()
	payload.EventType = string(EventTypePriceBatchCaptured)
	payload.Timestamp = time.Now().UTC()
	payload.RunID = p.runID.String()
	payload.Source = p.source
	payload.Batch = batchNo

	var event *database.OutboxEvent
	err := p.tx.Transaction(ctx, func(tx pgx.Tx) error {
		stored, err := p.records.InsertBatchWithTx(ctx, tx, p.runID, records)
		if err != nil {
			return fmt.Errorf("failed to store records: %w", err)
		}
		payload.Stored = stored

		event, err = p.event(EventTypePriceBatchCaptured, payload)
		if err != nil {
			return err
		}
		if err := p.outbox.InsertWithTx(ctx, tx, event); err != nil {
			return fmt.Errorf("failed to insert outbox event: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish batch %d: %w", batchNo, err)
	}

	p.logger.Info("batch published to outbox",
		"batch", batchNo,
		"records", payload.Records,
		"stored", payload.Stored,
		"outbox_id", event.ID,
	)
	return nil
}

// PublishRunFinished records the outcome of the run.
func (p *Publisher) PublishRunFinished(ctx context.Context, result models.RunResult) error {
	payload := RunFinishedPayload{
		EventID:     uuid.New().String(),
		EventType:   string(EventTypeRunFinished),
		Timestamp:   time.Now().UTC(),
		RunID:       p.runID.String(),
		Source:      p.source,
		Processed:   result.Processed,
		Kept:        result.Kept,
		Skipped:     result.Skipped,
		FailedPages: result.FailedPages,
		Rounds:      result.Rounds,
		NextOffset:  result.NextOffset,
		Cancelled:   result.Cancelled,
		StopReason:  result.StopReason,
	}

	event, err := p.event(EventTypeRunFinished, payload)
	if err != nil {
		return err
	}

	err = p.tx.Transaction(ctx, func(tx pgx.Tx) error {
		return p.outbox.InsertWithTx(ctx, tx, event)
	})
	if err != nil {
		return fmt.Errorf("failed to publish run result: %w", err)
	}

	p.logger.Info("run result published to outbox", "stop_reason", result.StopReason, "kept", result.Kept)
	return nil
}

func (p *Publisher) Finish(ctx context.Context, result models.RunResult) error {
	return p.PublishRunFinished(ctx, result)
}

func (p *Publisher) event(eventType EventType, payload any) (*database.OutboxEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return &database.OutboxEvent{
		AggregateType: database.AggregateRun,
		AggregateID:   p.aggregateID(),
		EventType:     string(eventType),
		Payload:       data,
		TargetStream:  p.stream,
	}, nil
}

func summarize(records []models.Record) PriceBatchCapturedPayload {
	out := PriceBatchCapturedPayload{
		Records:    len(records),
		MinPrice:   records[0].CurrentPrice,
		MaxPrice:   records[0].CurrentPrice,
		CapturedAt: records[0].CapturedAt,
	}
	for i := range records {
		rec := &records[i]
		if rec.Discounted() {
			out.Discounted++
		}
		if rec.UnitPrice != nil {
			out.WithUnit++
		}
		out.MinPrice = min(out.MinPrice, rec.CurrentPrice)
		out.MaxPrice = max(out.MaxPrice, rec.CurrentPrice)
		if rec.ExternalID != "" {
			out.ExternalIDs = append(out.ExternalIDs, rec.ExternalID)
		}
	}
	return out
}
