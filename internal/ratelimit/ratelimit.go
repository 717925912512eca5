package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

type RateLimiter interface {
	Wait(ctx context.Context) error
	SetDelay(min, max time.Duration)
}

// SimpleRateLimiter enforces a randomized pause between consecutive actions.
type SimpleRateLimiter struct {
	minDelay   time.Duration
	maxDelay   time.Duration
	lastAction time.Time
	mu         sync.Mutex
	jitter     bool
}

func NewSimpleRateLimiter(minDelay, maxDelay time.Duration) *SimpleRateLimiter {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &SimpleRateLimiter{
		minDelay: minDelay,
		maxDelay: maxDelay,
		jitter:   true,
	}
}

func (r *SimpleRateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	elapsed := time.Since(r.lastAction)
	delay := r.calculateDelay()

	if elapsed < delay {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay - elapsed):
		}
	}

	r.lastAction = time.Now()
	return nil
}

func (r *SimpleRateLimiter) SetDelay(min, max time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.minDelay = min
	r.maxDelay = max
}

// Delays returns the current delay bounds.
func (r *SimpleRateLimiter) Delays() (time.Duration, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.minDelay, r.maxDelay
}

func (r *SimpleRateLimiter) calculateDelay() time.Duration {
	if !r.jitter || r.maxDelay <= r.minDelay {
		return r.minDelay
	}

	delta := r.maxDelay - r.minDelay
	return r.minDelay + time.Duration(rand.Int63n(int64(delta)))
}

// AdaptiveRateLimiter widens its delays after repeated errors and narrows the
// lower bound again after a run of successes, never below half the initial
// minimum.
type AdaptiveRateLimiter struct {
	*SimpleRateLimiter
	errorCount    int
	successCount  int
	maxErrorCount int
	backoffFactor float64
	floor         time.Duration
	ceilMin       time.Duration
	ceilMax       time.Duration
}

func NewAdaptiveRateLimiter(minDelay, maxDelay time.Duration) *AdaptiveRateLimiter {
	return &AdaptiveRateLimiter{
		SimpleRateLimiter: NewSimpleRateLimiter(minDelay, maxDelay),
		maxErrorCount:     3,
		backoffFactor:     1.5,
		floor:             minDelay / 2,
		ceilMin:           60 * time.Second,
		ceilMax:           120 * time.Second,
	}
}

func (a *AdaptiveRateLimiter) RecordSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.successCount++
	a.errorCount = 0

	if a.successCount > 5 {
		newMin := time.Duration(float64(a.minDelay) * 0.9)
		if newMin < a.floor {
			newMin = a.floor
		}
		a.minDelay = newMin
		a.successCount = 0
	}
}

func (a *AdaptiveRateLimiter) RecordError() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.errorCount++
	a.successCount = 0

	if a.errorCount >= a.maxErrorCount {
		newMin := time.Duration(float64(a.minDelay) * a.backoffFactor)
		newMax := time.Duration(float64(a.maxDelay) * a.backoffFactor)

		if newMin > a.ceilMin {
			newMin = a.ceilMin
		}
		if newMax > a.ceilMax {
			newMax = a.ceilMax
		}

		a.minDelay = newMin
		a.maxDelay = newMax
		a.errorCount = 0
	}
}

// TokenBucketRateLimiter allows bursts of up to maxTokens actions and refills
// one token per refillRate. Each granted action also waits minDelay.
type TokenBucketRateLimiter struct {
	tokens     int
	maxTokens  int
	refillRate time.Duration
	lastRefill time.Time
	mu         sync.Mutex
	minDelay   time.Duration
}

func NewTokenBucketRateLimiter(maxTokens int, refillRate time.Duration) *TokenBucketRateLimiter {
	if maxTokens < 1 {
		maxTokens = 1
	}
	return &TokenBucketRateLimiter{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
		minDelay:   0,
	}
}

func (t *TokenBucketRateLimiter) Wait(ctx context.Context) error {
	t.mu.Lock()
	t.refill()

	for t.tokens <= 0 {
		t.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.refillRate):
		}

		t.mu.Lock()
		t.refill()
	}

	t.tokens--
	delay := t.minDelay
	t.mu.Unlock()

	if delay <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

func (t *TokenBucketRateLimiter) refill() {
	if t.refillRate <= 0 {
		t.tokens = t.maxTokens
		return
	}
	elapsed := time.Since(t.lastRefill)
	tokensToAdd := int(elapsed / t.refillRate)

	if tokensToAdd > 0 {
		t.tokens += tokensToAdd
		if t.tokens > t.maxTokens {
			t.tokens = t.maxTokens
		}
		t.lastRefill = time.Now()
	}
}

// SetDelay sets the pause after each granted action to min. A bucket has no
// upper bound, so max is ignored.
func (t *TokenBucketRateLimiter) SetDelay(min, _ time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.minDelay = min
}

// Backoff returns the wait before retry number attempt (1-based): base
// doubled per attempt, plus up to the same amount of random jitter, capped
// at max.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 || base <= 0 {
		return 0
	}
	d := base
	for i := 1; i < attempt && (max <= 0 || d < max); i++ {
		d *= 2
	}
	d += time.Duration(rand.Int63n(int64(d)))
	if max > 0 && d > max {
		d = max
	}
	return d
}
