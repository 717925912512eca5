package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// AggregateRun marks outbox events that belong to one extraction run. Their
// payloads must name the run and its source.
const AggregateRun = "run"

var ErrUnroutable = errors.New("event cannot be routed")

// RedisClient is the subset of the redis client used by the relay.
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
}

// OutboxRepo is the subset of OutboxRepository used by the relay.
type OutboxRepo interface {
	GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, err error) error
}

type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	// Origin is recorded in the metadata of every published message.
	Origin string
	// MaxLen approximately caps each stream; 0 keeps every message.
	MaxLen int64
}

// Relay drains the outbox into Redis streams. Run events are published with
// their run id, source and batch or stop reason as flat stream fields, so
// consumers can filter without decoding the payload.
type Relay struct {
	redis  RedisClient
	outbox OutboxRepo
	cfg    RelayConfig
	logger *slog.Logger
}

func NewRelay(outbox OutboxRepo, redisClient RedisClient, logger *slog.Logger, cfg RelayConfig) *Relay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Origin == "" {
		cfg.Origin = "shelf-price-scraper"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		redis:  redisClient,
		outbox: outbox,
		cfg:    cfg,
		logger: logger.With("component", "relay"),
	}
}

// Start drains the outbox once, then on every tick until ctx is cancelled.
func (r *Relay) Start(ctx context.Context) error {
	r.logger.Info("relay started", "interval", r.cfg.PollInterval, "batch_size", r.cfg.BatchSize)

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if n, err := r.Drain(ctx); err != nil {
			r.logger.Error("outbox drain failed", "error", err)
		} else if n > 0 {
			r.logger.Debug("outbox drained", "published", n)
		}

		select {
		case <-ctx.Done():
			r.logger.Info("relay stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Drain publishes one batch of pending events and returns how many reached
// Redis. Events that fail are scheduled for retry by the repository.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	events, err := r.outbox.GetPending(ctx, r.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to get pending events: %w", err)
	}

	published := 0
	for _, event := range events {
		if err := r.relay(ctx, event); err != nil {
			r.logger.Warn("event not relayed",
				"event_id", event.ID,
				"event_type", event.EventType,
				"error", err)
			continue
		}
		published++
	}
	return published, nil
}

func (r *Relay) relay(ctx context.Context, event *OutboxEvent) error {
	args, err := r.message(event)
	if err == nil {
		_, err = r.redis.XAdd(ctx, args).Result()
		if err != nil {
			err = fmt.Errorf("failed to publish to %s: %w", args.Stream, err)
		}
	}
	if err != nil {
		if markErr := r.outbox.MarkFailed(ctx, event.ID, err); markErr != nil {
			r.logger.Error("failed to mark event as failed", "event_id", event.ID, "error", markErr)
		}
		return err
	}

	if err := r.outbox.MarkProcessed(ctx, event.ID); err != nil {
		return fmt.Errorf("published but not marked processed: %w", err)
	}

	r.logger.Info("event relayed",
		"event_id", event.ID,
		"event_type", event.EventType,
		"stream", args.Stream,
		"run_id", args.Values["run_id"],
		"source", args.Values["source"])
	return nil
}

// runRoute holds the payload fields a run event is routed by.
type runRoute struct {
	RunID      string `json:"run_id"`
	Source     string `json:"source"`
	Batch      int    `json:"batch"`
	Records    int    `json:"records"`
	StopReason string `json:"stop_reason"`
}

type streamMetadata struct {
	Origin     string `json:"origin"`
	OutboxID   string `json:"outbox_id"`
	RetryCount int    `json:"retry_count"`
	RunID      string `json:"run_id,omitempty"`
	Source     string `json:"source,omitempty"`
}

type streamEnvelope struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	AggregateID string          `json:"aggregate_id"`
	Timestamp   string          `json:"timestamp"`
	Payload     json.RawMessage `json:"payload"`
	Metadata    streamMetadata  `json:"metadata"`
}

// message builds the stream entry for event. The full envelope travels in the
// data field.
func (r *Relay) message(event *OutboxEvent) (*redis.XAddArgs, error) {
	if !json.Valid(event.Payload) {
		return nil, fmt.Errorf("%w: payload is not valid JSON", ErrUnroutable)
	}
	stream := event.TargetStream
	if stream == "" {
		stream = DefaultStream
	}

	var route runRoute
	if event.AggregateType == AggregateRun {
		if err := json.Unmarshal(event.Payload, &route); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnroutable, err)
		}
		if route.RunID == "" || route.Source == "" {
			return nil, fmt.Errorf("%w: run event without run_id or source", ErrUnroutable)
		}
	}

	env := streamEnvelope{
		ID:          event.ID.String(),
		Type:        event.EventType,
		AggregateID: event.AggregateID,
		Timestamp:   event.CreatedAt.UTC().Format(time.RFC3339),
		Payload:     event.Payload,
		Metadata: streamMetadata{
			Origin:     r.cfg.Origin,
			OutboxID:   event.ID.String(),
			RetryCount: event.RetryCount,
			RunID:      route.RunID,
			Source:     route.Source,
		},
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}

	values := map[string]any{
		"data":         string(data),
		"type":         event.EventType,
		"event_type":   event.EventType,
		"original_id":  event.ID.String(),
		"aggregate_id": event.AggregateID,
	}
	if route.RunID != "" {
		values["run_id"] = route.RunID
		values["source"] = route.Source
	}
	if route.Batch > 0 {
		values["batch"] = strconv.Itoa(route.Batch)
		values["records"] = strconv.Itoa(route.Records)
	}
	if route.StopReason != "" {
		values["stop_reason"] = route.StopReason
	}

	args := &redis.XAddArgs{Stream: stream, Values: values}
	if r.cfg.MaxLen > 0 {
		args.MaxLen = r.cfg.MaxLen
		args.Approx = true
	}
	return args, nil
}
