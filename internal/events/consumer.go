package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrMalformedMessage = errors.New("malformed stream message")

// StreamClient is the subset of the Redis client used by the consumer.
type StreamClient interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
}

// Handler reacts to decoded events.
type Handler interface {
	HandleBatch(ctx context.Context, p PriceBatchCapturedPayload) error
	HandleRunFinished(ctx context.Context, p RunFinishedPayload) error
}

type ConsumerConfig struct {
	Stream   string
	Group    string
	Name     string
	Count    int64
	Block    time.Duration
	ErrPause time.Duration
}

// Consumer reads relayed events from a Redis stream through a consumer group.
// Messages are acknowledged after the handler succeeds; malformed messages
// are acknowledged and dropped.
type Consumer struct {
	client  StreamClient
	handler Handler
	cfg     ConsumerConfig
	logger  *slog.Logger
}

func NewConsumer(client StreamClient, handler Handler, cfg ConsumerConfig, logger *slog.Logger) *Consumer {
	if cfg.Group == "" {
		cfg.Group = "price-record-consumers"
	}
	if cfg.Name == "" {
		cfg.Name = "consumer-1"
	}
	if cfg.Count <= 0 {
		cfg.Count = 10
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	if cfg.ErrPause <= 0 {
		cfg.ErrPause = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		client:  client,
		handler: handler,
		cfg:     cfg,
		logger:  logger.With("component", "consumer", "stream", cfg.Stream),
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.logger.Info("consumer started", "group", c.cfg.Group)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.cfg.Group,
			Consumer: c.cfg.Name,
			Streams:  []string{c.cfg.Stream, ">"},
			Count:    c.cfg.Count,
			Block:    c.cfg.Block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("failed to read from stream", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.cfg.ErrPause):
			}
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				c.process(ctx, msg)
			}
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg redis.XMessage) {
	err := c.dispatch(ctx, msg)
	if err != nil && !errors.Is(err, ErrMalformedMessage) {
		c.logger.Error("failed to handle message", "id", msg.ID, "error", err)
		return
	}
	if err != nil {
		c.logger.Warn("dropping message", "id", msg.ID, "error", err)
	}

	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, msg.ID).Err(); err != nil {
		c.logger.Error("failed to acknowledge message", "id", msg.ID, "error", err)
	}
}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (c *Consumer) dispatch(ctx context.Context, msg redis.XMessage) error {
	data, ok := msg.Values["data"].(string)
	if !ok {
		return fmt.Errorf("%w: no data field", ErrMalformedMessage)
	}

	var env envelope
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch EventType(env.Type) {
	case EventTypePriceBatchCaptured:
		var p PriceBatchCapturedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		return c.handler.HandleBatch(ctx, p)
	case EventTypeRunFinished:
		var p RunFinishedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		return c.handler.HandleRunFinished(ctx, p)
	default:
		c.logger.Debug("skipping event", "type", env.Type, "id", msg.ID)
		return nil
	}
}

// LogHandler logs a summary line per event.
type LogHandler struct {
	Logger *slog.Logger
}

func (h LogHandler) HandleBatch(_ context.Context, p PriceBatchCapturedPayload) error {
	h.Logger.Info("price batch captured",
		"source", p.Source,
		"run_id", p.RunID,
		"batch", p.Batch,
		"records", p.Records,
		"discounted", p.Discounted,
		"min_price", p.MinPrice,
		"max_price", p.MaxPrice,
	)
	return nil
}

func (h LogHandler) HandleRunFinished(_ context.Context, p RunFinishedPayload) error {
	h.Logger.Info("run finished",
		"source", p.Source,
		"run_id", p.RunID,
		"stop_reason", p.StopReason,
		"kept", p.Kept,
		"skipped", p.Skipped,
		"next_offset", p.NextOffset,
	)
	return nil
}
