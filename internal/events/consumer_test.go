package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockStreamClient struct {
	mock.Mock
}

func (m *MockStreamClient) XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd {
	args := m.Called(ctx, stream, group, start)
	return args.Get(0).(*redis.StatusCmd)
}

func (m *MockStreamClient) XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd {
	args := m.Called(ctx, a)
	return args.Get(0).(*redis.XStreamSliceCmd)
}

func (m *MockStreamClient) XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd {
	args := m.Called(ctx, stream, group, ids)
	return args.Get(0).(*redis.IntCmd)
}

type recordingHandler struct {
	batches  []PriceBatchCapturedPayload
	finished []RunFinishedPayload
	err      error
}

func (h *recordingHandler) HandleBatch(_ context.Context, p PriceBatchCapturedPayload) error {
	h.batches = append(h.batches, p)
	return h.err
}

func (h *recordingHandler) HandleRunFinished(_ context.Context, p RunFinishedPayload) error {
	h.finished = append(h.finished, p)
	return h.err
}

func streamMessage(t *testing.T, id, eventType string, payload any) redis.XMessage {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	data, err := json.Marshal(map[string]any{"id": id, "type": eventType, "payload": json.RawMessage(raw)})
	require.NoError(t, err)
	return redis.XMessage{ID: id, Values: map[string]any{"data": string(data), "event_type": eventType}}
}

// runOnce feeds msgs through one read, then cancels on the next read.
func runOnce(t *testing.T, client *MockStreamClient, handler Handler, msgs []redis.XMessage) error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	created := redis.NewStatusCmd(ctx)
	created.SetErr(errors.New("BUSYGROUP Consumer Group name already exists"))
	client.On("XGroupCreateMkStream", mock.Anything, "stream:price_records", "price-record-consumers", "0").Return(created)

	first := redis.NewXStreamSliceCmd(ctx)
	first.SetVal([]redis.XStream{{Stream: "stream:price_records", Messages: msgs}})
	client.On("XReadGroup", mock.Anything, mock.Anything).Return(first).Once()

	done := redis.NewXStreamSliceCmd(ctx)
	done.SetErr(context.Canceled)
	client.On("XReadGroup", mock.Anything, mock.Anything).Run(func(mock.Arguments) { cancel() }).Return(done)

	c := NewConsumer(client, handler, ConsumerConfig{Stream: "stream:price_records", Block: 10 * time.Millisecond}, nil)
	return c.Run(ctx)
}

func TestConsumer_DispatchesAndAcks(t *testing.T) {
	client := new(MockStreamClient)
	handler := &recordingHandler{}
	client.On("XAck", mock.Anything, "stream:price_records", "price-record-consumers", mock.Anything).Return(redis.NewIntCmd(context.Background()))

	msgs := []redis.XMessage{
		streamMessage(t, "1-0", string(EventTypePriceBatchCaptured), PriceBatchCapturedPayload{Source: "jumbo", Batch: 1, Records: 24}),
		streamMessage(t, "2-0", "SOMETHING_ELSE", map[string]any{}),
		streamMessage(t, "3-0", string(EventTypeRunFinished), RunFinishedPayload{Source: "jumbo", StopReason: "target_reached", Kept: 24}),
		{ID: "4-0", Values: map[string]any{"type": "broken"}},
	}

	err := runOnce(t, client, handler, msgs)
	assert.ErrorIs(t, err, context.Canceled)

	require.Len(t, handler.batches, 1)
	assert.Equal(t, 24, handler.batches[0].Records)
	require.Len(t, handler.finished, 1)
	assert.Equal(t, "target_reached", handler.finished[0].StopReason)

	client.AssertNumberOfCalls(t, "XAck", 4)
}

func TestConsumer_HandlerErrorLeavesMessagePending(t *testing.T) {
	client := new(MockStreamClient)
	handler := &recordingHandler{err: errors.New("downstream unavailable")}

	msgs := []redis.XMessage{
		streamMessage(t, "1-0", string(EventTypePriceBatchCaptured), PriceBatchCapturedPayload{Source: "ah"}),
	}

	err := runOnce(t, client, handler, msgs)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, handler.batches, 1)
	client.AssertNotCalled(t, "XAck", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestConsumer_GroupCreateFails(t *testing.T) {
	client := new(MockStreamClient)
	cmd := redis.NewStatusCmd(context.Background())
	cmd.SetErr(errors.New("connection refused"))
	client.On("XGroupCreateMkStream", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(cmd)

	c := NewConsumer(client, &recordingHandler{}, ConsumerConfig{Stream: "stream:price_records"}, nil)
	err := c.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}
