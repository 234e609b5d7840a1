package ratelimit

import (
	"sync"
	"time"
)

// fixedWindow is a per-key fixed window counter, grounded on
// original_source/src/rate_limiter.cpp's FixedWindowLimiter: each key's
// counter resets to zero the instant its window elapses, which is what
// lets traffic burst at window boundaries (documented, not a bug, per
// §4.5's edge-case notes).
type fixedWindow struct {
	mu      sync.Mutex
	windows map[string]*windowState
	max     int64
	window  time.Duration
}

type windowState struct {
	count        int64
	windowStart  time.Time
	lastActivity time.Time
}

func newFixedWindow(max int64, window time.Duration) *fixedWindow {
	if window <= 0 {
		window = time.Second
	}
	return &fixedWindow{
		windows: make(map[string]*windowState),
		max:     max,
		window:  window,
	}
}

func (f *fixedWindow) Check(key string) Result {
	now := time.Now()

	f.mu.Lock()
	defer f.mu.Unlock()

	state, ok := f.windows[key]
	if !ok {
		state = &windowState{windowStart: now}
		f.windows[key] = state
	}

	if now.Sub(state.windowStart) >= f.window {
		state.count = 0
		state.windowStart = now
	}
	state.lastActivity = now

	if state.count < f.max {
		state.count++
		return Result{
			Allowed:   true,
			Remaining: f.max - state.count,
			ResetTime: f.window - now.Sub(state.windowStart),
			LimitType: string(FixedWindow),
		}
	}

	return Result{
		Allowed:   false,
		Remaining: 0,
		ResetTime: f.window - now.Sub(state.windowStart),
		LimitType: string(FixedWindow),
		Reason:    "fixed window limit exceeded",
	}
}

func (f *fixedWindow) Cleanup(idleAfter time.Duration) {
	cutoff := time.Now().Add(-idleAfter)
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, state := range f.windows {
		if state.lastActivity.Before(cutoff) {
			delete(f.windows, key)
		}
	}
}
