package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/maltedev/shelf-price-scraper/internal/database"
	"github.com/maltedev/shelf-price-scraper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	calls      int
	rolledBack int
}

func (f *fakeTx) Transaction(ctx context.Context, fn func(pgx.Tx) error) error {
	f.calls++
	if err := fn(nil); err != nil {
		f.rolledBack++
		return err
	}
	return nil
}

type MockRecordWriter struct {
	mock.Mock
}

func (m *MockRecordWriter) InsertBatchWithTx(ctx context.Context, tx pgx.Tx, runID uuid.UUID, records []models.Record) (int64, error) {
	args := m.Called(ctx, tx, runID, records)
	return args.Get(0).(int64), args.Error(1)
}

type MockOutboxWriter struct {
	mock.Mock
}

func (m *MockOutboxWriter) InsertWithTx(ctx context.Context, tx pgx.Tx, event *database.OutboxEvent) error {
	args := m.Called(ctx, tx, event)
	return args.Error(0)
}

func batch() []models.Record {
	prev := 3.00
	unit := 2.00
	at := time.Date(2026, 5, 4, 7, 30, 0, 0, time.UTC)
	return []models.Record{
		{Source: "jumbo", CapturedAt: at, ExternalID: "12345STK", Name: "Hak Bruine Bonen", CurrentPrice: 2.40, PreviousPrice: &prev, UnitPrice: &unit, UnitBase: "kg"},
		{Source: "jumbo", CapturedAt: at, ExternalID: "67649PAK", Name: "Jumbo Halfvolle Melk", CurrentPrice: 2.18},
		{Source: "jumbo", CapturedAt: at, Name: "Zonder sku", CurrentPrice: 0.89},
	}
}

func TestPublisher_WriteBatch(t *testing.T) {
	ctx := context.Background()
	runID := uuid.New()

	t.Run("stores records and event together", func(t *testing.T) {
		tx := &fakeTx{}
		records := new(MockRecordWriter)
		outbox := new(MockOutboxWriter)
		pub := NewPublisherWith(tx, records, outbox, runID, "jumbo", nil)

		recs := batch()
		records.On("InsertBatchWithTx", ctx, mock.Anything, runID, recs).Return(int64(3), nil)
		outbox.On("InsertWithTx", ctx, mock.Anything, mock.MatchedBy(func(e *database.OutboxEvent) bool {
			var payload PriceBatchCapturedPayload
			if err := json.Unmarshal(e.Payload, &payload); err != nil {
				return false
			}
			return e.EventType == "PRICE_BATCH_CAPTURED" &&
				e.AggregateType == "run" &&
				e.AggregateID == "jumbo-"+runID.String() &&
				e.TargetStream == "stream:price_records" &&
				payload.Batch == 2 &&
				payload.Records == 3 &&
				payload.Stored == 3 &&
				payload.Discounted == 1 &&
				payload.WithUnit == 1 &&
				payload.MinPrice == 0.89 &&
				payload.MaxPrice == 2.40 &&
				len(payload.ExternalIDs) == 2
		})).Return(nil)

		require.NoError(t, pub.WriteBatch(ctx, 2, recs))
		assert.Equal(t, 1, tx.calls)
		records.AssertExpectations(t)
		outbox.AssertExpectations(t)
	})

	t.Run("record failure rolls back without an event", func(t *testing.T) {
		tx := &fakeTx{}
		records := new(MockRecordWriter)
		outbox := new(MockOutboxWriter)
		pub := NewPublisherWith(tx, records, outbox, runID, "jumbo", nil)

		boom := errors.New("unique violation")
		records.On("InsertBatchWithTx", ctx, mock.Anything, runID, mock.Anything).Return(int64(0), boom)

		err := pub.WriteBatch(ctx, 1, batch())
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, tx.rolledBack)
		outbox.AssertNotCalled(t, "InsertWithTx", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("outbox failure rolls back", func(t *testing.T) {
		tx := &fakeTx{}
		records := new(MockRecordWriter)
		outbox := new(MockOutboxWriter)
		pub := NewPublisherWith(tx, records, outbox, runID, "jumbo", nil)

		records.On("InsertBatchWithTx", ctx, mock.Anything, runID, mock.Anything).Return(int64(3), nil)
		outbox.On("InsertWithTx", ctx, mock.Anything, mock.Anything).Return(database.ErrInvalidEvent)

		err := pub.WriteBatch(ctx, 1, batch())
		assert.ErrorIs(t, err, database.ErrInvalidEvent)
		assert.Equal(t, 1, tx.rolledBack)
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		tx := &fakeTx{}
		pub := NewPublisherWith(tx, new(MockRecordWriter), new(MockOutboxWriter), runID, "jumbo", nil)

		require.NoError(t, pub.WriteBatch(ctx, 1, nil))
		assert.Zero(t, tx.calls)
	})
}

func TestPublisher_PublishRunFinished(t *testing.T) {
	ctx := context.Background()
	runID := uuid.New()
	tx := &fakeTx{}
	outbox := new(MockOutboxWriter)
	pub := NewPublisherWith(tx, new(MockRecordWriter), outbox, runID, "ah", nil)

	outbox.On("InsertWithTx", ctx, mock.Anything, mock.MatchedBy(func(e *database.OutboxEvent) bool {
		var payload RunFinishedPayload
		if err := json.Unmarshal(e.Payload, &payload); err != nil {
			return false
		}
		return e.EventType == "RUN_FINISHED" &&
			payload.StopReason == models.StopCancelled &&
			payload.Cancelled &&
			payload.Kept == 12 &&
			payload.NextOffset == 15
	})).Return(nil)

	result := models.RunResult{Processed: 15, Kept: 12, Skipped: 3, NextOffset: 15, Cancelled: true, StopReason: models.StopCancelled}
	require.NoError(t, pub.PublishRunFinished(ctx, result))
	outbox.AssertExpectations(t)
}
