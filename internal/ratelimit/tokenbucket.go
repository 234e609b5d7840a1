package ratelimit

import (
	"sync"
	"time"
)

// tokenBucket is a per-key token bucket, grounded on
// original_source/src/rate_limiter.cpp's TokenBucketLimiter: each key gets
// its own bucket that refills at rate/window and caps at capacity.
type tokenBucket struct {
	mu       sync.Mutex
	buckets  map[string]*bucketState
	capacity int64
	rate     int64
	window   time.Duration
}

type bucketState struct {
	tokens       int64
	lastRefill   time.Time
	lastActivity time.Time
}

func newTokenBucket(capacity, rate int64, window time.Duration) *tokenBucket {
	if capacity <= 0 {
		capacity = rate
	}
	if window <= 0 {
		window = time.Second
	}
	return &tokenBucket{
		buckets:  make(map[string]*bucketState),
		capacity: capacity,
		rate:     rate,
		window:   window,
	}
}

func (b *tokenBucket) Check(key string) Result {
	now := time.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	state, ok := b.buckets[key]
	if !ok {
		state = &bucketState{tokens: b.capacity, lastRefill: now}
		b.buckets[key] = state
	}

	// Refill happens in whole-window batches, not continuously: only once
	// a full window has elapsed does the bucket gain intervals*rate tokens
	// and lastRefill advance, matching the original's
	// `intervals = elapsed / refill_interval` gate.
	elapsed := now.Sub(state.lastRefill)
	if elapsed >= b.window {
		intervals := int64(elapsed / b.window)
		state.tokens += intervals * b.rate
		if state.tokens > b.capacity {
			state.tokens = b.capacity
		}
		state.lastRefill = now
		elapsed = now.Sub(state.lastRefill)
	}
	state.lastActivity = now

	if state.tokens >= 1 {
		state.tokens--
		return Result{
			Allowed:   true,
			Remaining: state.tokens,
			LimitType: string(TokenBucket),
		}
	}

	resetIn := b.window - (elapsed % b.window)
	return Result{
		Allowed:   false,
		Remaining: 0,
		ResetTime: resetIn,
		LimitType: string(TokenBucket),
		Reason:    "token bucket exhausted",
	}
}

func (b *tokenBucket) Cleanup(idleAfter time.Duration) {
	cutoff := time.Now().Add(-idleAfter)
	b.mu.Lock()
	defer b.mu.Unlock()
	for key, state := range b.buckets {
		if state.lastActivity.Before(cutoff) {
			delete(b.buckets, key)
		}
	}
}
