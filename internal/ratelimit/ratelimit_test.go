package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleRateLimiter_Wait(t *testing.T) {
	r := NewSimpleRateLimiter(20*time.Millisecond, 20*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, r.Wait(ctx))
	start := time.Now()
	require.NoError(t, r.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestSimpleRateLimiter_Cancelled(t *testing.T) {
	r := NewSimpleRateLimiter(time.Second, 2*time.Second)
	require.NoError(t, r.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.Wait(ctx), context.Canceled)
}

func TestAdaptiveRateLimiter(t *testing.T) {
	a := NewAdaptiveRateLimiter(2*time.Second, 4*time.Second)

	for i := 0; i < 3; i++ {
		a.RecordError()
	}
	min, max := a.Delays()
	assert.Equal(t, 3*time.Second, min)
	assert.Equal(t, 6*time.Second, max)

	for i := 0; i < 120; i++ {
		a.RecordSuccess()
	}
	min, _ = a.Delays()
	assert.Equal(t, time.Second, min)
}

func TestTokenBucketRateLimiter(t *testing.T) {
	tb := NewTokenBucketRateLimiter(2, 30*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, tb.Wait(ctx))
	require.NoError(t, tb.Wait(ctx))
	assert.Less(t, time.Since(start), 25*time.Millisecond)

	require.NoError(t, tb.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestTokenBucketRateLimiter_Pause(t *testing.T) {
	tb := NewTokenBucketRateLimiter(5, time.Second)
	tb.SetDelay(20*time.Millisecond, time.Hour)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, tb.Wait(ctx))
	require.NoError(t, tb.Wait(ctx))
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
	assert.Less(t, elapsed, time.Second)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, tb.Wait(cancelled), context.Canceled)
}

func TestBackoff(t *testing.T) {
	assert.Zero(t, Backoff(0, time.Second, time.Minute))
	assert.Zero(t, Backoff(1, 0, time.Minute))

	for i := 0; i < 20; i++ {
		first := Backoff(1, 100*time.Millisecond, time.Minute)
		assert.GreaterOrEqual(t, first, 100*time.Millisecond)
		assert.Less(t, first, 200*time.Millisecond)

		third := Backoff(3, 100*time.Millisecond, time.Minute)
		assert.GreaterOrEqual(t, third, 400*time.Millisecond)
		assert.Less(t, third, 800*time.Millisecond)

		assert.Equal(t, 300*time.Millisecond, Backoff(10, 100*time.Millisecond, 300*time.Millisecond))
	}
}
