package ratelimit

import (
	"sync"
	"time"
)

// slidingWindow is a per-key sliding log, grounded on
// original_source/src/rate_limiter.cpp's SlidingWindowLimiter: every
// allowed request's timestamp is recorded, and a request is allowed only
// if fewer than max timestamps remain within the trailing window. This is
// the most memory-hungry of the three algorithms but gives the smoothest
// rate, with no boundary-burst edge case.
type slidingWindow struct {
	mu     sync.Mutex
	logs   map[string]*slidingState
	max    int64
	window time.Duration
}

type slidingState struct {
	timestamps   []time.Time
	lastActivity time.Time
}

func newSlidingWindow(max int64, window time.Duration) *slidingWindow {
	if window <= 0 {
		window = time.Second
	}
	return &slidingWindow{
		logs:   make(map[string]*slidingState),
		max:    max,
		window: window,
	}
}

func (s *slidingWindow) Check(key string) Result {
	now := time.Now()
	cutoff := now.Add(-s.window)

	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.logs[key]
	if !ok {
		state = &slidingState{}
		s.logs[key] = state
	}
	state.lastActivity = now
	state.timestamps = purgeBefore(state.timestamps, cutoff)

	if int64(len(state.timestamps)) < s.max {
		state.timestamps = append(state.timestamps, now)
		return Result{
			Allowed:   true,
			Remaining: s.max - int64(len(state.timestamps)),
			LimitType: string(SlidingWindow),
		}
	}

	oldest := state.timestamps[0]
	return Result{
		Allowed:   false,
		Remaining: 0,
		ResetTime: oldest.Add(s.window).Sub(now),
		LimitType: string(SlidingWindow),
		Reason:    "sliding window limit exceeded",
	}
}

func purgeBefore(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && ts[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return ts
	}
	return append(ts[:0], ts[i:]...)
}

func (s *slidingWindow) Cleanup(idleAfter time.Duration) {
	cutoff := time.Now().Add(-idleAfter)
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, state := range s.logs {
		if state.lastActivity.Before(cutoff) {
			delete(s.logs, key)
		}
	}
}
