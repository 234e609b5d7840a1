// Package ratelimit implements the three interchangeable rate-limiting
// algorithms (token bucket, fixed window, sliding window), pluggable key
// extraction, periodic idle-key cleanup, and a middleware adapter.
// Grounded directly on original_source/src/rate_limiter.cpp's
// TokenBucketLimiter/FixedWindowLimiter/SlidingWindowLimiter classes and
// RateLimitKeyExtractors namespace, with naming conventions (Config,
// Enabled, a "disabled" no-op mode) borrowed from the kephasnet pack
// repo's websocket.RateLimitConfig/DefaultRateLimitConfig/NoRateLimit.
package ratelimit

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/wireserv/wireserv/internal/httpmsg"
	"github.com/wireserv/wireserv/internal/pools"
)

// Strategy selects which algorithm a Limiter uses.
type Strategy string

const (
	TokenBucket   Strategy = "token_bucket"
	FixedWindow   Strategy = "fixed_window"
	SlidingWindow Strategy = "sliding_window"
)

// Result is what check_request returns per §4.5's public contract.
type Result struct {
	Allowed   bool
	Remaining int64
	ResetTime time.Duration
	LimitType string
	Reason    string
}

// maxRemaining stands in for the "remaining=MAX" disabled-mode contract.
const maxRemaining = int64(^uint64(0) >> 1)

// cleanupIdleAfter is the fixed one-hour idle threshold from §3/§4.5.
const cleanupIdleAfter = time.Hour

// cleanupInterval is how often the background sweep runs (at most).
const cleanupInterval = 5 * time.Minute

// algorithm is the shape every rate-limit strategy implements. Each
// algorithm instance is guarded by its own single mutex, held only for the
// duration of one Check call, per §5's Shared Mutable State paragraph.
type algorithm interface {
	Check(key string) Result
	Cleanup(idleAfter time.Duration)
}

// Config configures a Limiter. Fields mirror §6's rate limiter
// configuration block.
type Config struct {
	Strategy       Strategy
	MaxRequests    int64
	WindowDuration time.Duration
	BurstCapacity  int64
	KeyFunc        KeyFunc // nil uses ByIP
	Enabled        bool
	// Response, when non-nil, is used instead of the default 429 JSON
	// body on deny.
	Response func(Result) *httpmsg.Response
}

// DefaultConfig returns a sane token-bucket configuration, enabled,
// matching the spirit of kephasnet's DefaultRateLimitConfig.
func DefaultConfig() Config {
	return Config{
		Strategy:       TokenBucket,
		MaxRequests:    100,
		WindowDuration: time.Second,
		BurstCapacity:  200,
		Enabled:        true,
	}
}

// Disabled returns a pass-through configuration, matching kephasnet's
// NoRateLimit.
func Disabled() Config {
	return Config{Enabled: false}
}

// Limiter is the public rate limiter: it owns one algorithm instance,
// swappable atomically via UpdateConfig, plus a background cleanup worker.
type Limiter struct {
	mu     sync.RWMutex
	config Config
	algo   algorithm

	workers *pools.WorkerPool // optional; cleanup sweep offload
	stopCh  chan struct{}
	once    sync.Once

	requestsChecked atomic.Uint64
	requestsDenied  atomic.Uint64
}

// KeyFunc extracts a rate-limit bucket key from a request. peerAddr is the
// connection's remote address, used as the final fallback.
type KeyFunc func(req *httpmsg.Request, peerAddr string) string

// New builds a Limiter from cfg and starts its cleanup worker. Pass a nil
// workers pool to run cleanup sweeps inline on the ticker goroutine.
func New(cfg Config, workers *pools.WorkerPool) *Limiter {
	l := &Limiter{
		config:  cfg,
		algo:    newAlgorithm(cfg),
		workers: workers,
		stopCh:  make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

func newAlgorithm(cfg Config) algorithm {
	switch cfg.Strategy {
	case FixedWindow:
		return newFixedWindow(cfg.MaxRequests, cfg.WindowDuration)
	case SlidingWindow:
		return newSlidingWindow(cfg.MaxRequests, cfg.WindowDuration)
	default:
		return newTokenBucket(cfg.BurstCapacity, cfg.MaxRequests, cfg.WindowDuration)
	}
}

// CheckRequest is the public contract from §4.5: given a request and its
// connection's peer address (used by the default key extractor), it
// decides allow/deny under the current algorithm.
func (l *Limiter) CheckRequest(req *httpmsg.Request, peerAddr string) Result {
	l.mu.RLock()
	cfg := l.config
	algo := l.algo
	l.mu.RUnlock()

	if !cfg.Enabled {
		return Result{Allowed: true, Remaining: maxRemaining, LimitType: "disabled"}
	}

	keyFn := cfg.KeyFunc
	if keyFn == nil {
		keyFn = ByIP
	}
	key := keyFn(req, peerAddr)

	l.requestsChecked.Add(1)
	result := algo.Check(key)
	if !result.Allowed {
		l.requestsDenied.Add(1)
	}
	return result
}

// UpdateConfig atomically replaces the algorithm in use; any in-flight
// per-key state under the old algorithm is discarded, per §4.5.
func (l *Limiter) UpdateConfig(cfg Config) {
	l.mu.Lock()
	l.config = cfg
	l.algo = newAlgorithm(cfg)
	l.mu.Unlock()
}

// Config returns the limiter's current configuration.
func (l *Limiter) Config() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config
}

// Close stops the background cleanup worker.
func (l *Limiter) Close() {
	l.once.Do(func() { close(l.stopCh) })
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.mu.RLock()
			algo := l.algo
			l.mu.RUnlock()
			sweep := func() { algo.Cleanup(cleanupIdleAfter) }
			if l.workers != nil {
				l.workers.Submit(sweep)
			} else {
				sweep()
			}
		}
	}
}
