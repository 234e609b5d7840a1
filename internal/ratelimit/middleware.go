package ratelimit

import (
	"fmt"
	"strconv"

	"github.com/wireserv/wireserv/internal/httpmsg"
)

// MiddlewareFunc matches the router's middleware shape without creating an
// import cycle between internal/router and internal/ratelimit: it takes
// the inbound request plus an in-progress response to annotate, and
// reports whether the pipeline should continue to the next stage.
type MiddlewareFunc func(req *httpmsg.Request, resp *httpmsg.Response, peerAddr string) bool

// Middleware adapts l into a pipeline stage, matching
// RateLimiter::create_middleware. On every request it sets the
// X-RateLimit-Limit/Remaining/Reset/Type headers; on deny it also sets
// Retry-After and writes a 429 response (JSON by default, or whatever
// l.Config().Response produces), returning false so the router's pipeline
// stops dispatch.
func (l *Limiter) Middleware() MiddlewareFunc {
	return func(req *httpmsg.Request, resp *httpmsg.Response, peerAddr string) bool {
		cfg := l.Config()
		result := l.CheckRequest(req, peerAddr)

		resp.SetHeader("X-RateLimit-Limit", strconv.FormatInt(configuredLimit(cfg), 10))
		resp.SetHeader("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		resp.SetHeader("X-RateLimit-Reset", strconv.FormatInt(int64(result.ResetTime.Seconds()), 10))
		resp.SetHeader("X-RateLimit-Type", result.LimitType)

		if result.Allowed {
			return true
		}

		resp.SetHeader("Retry-After", strconv.FormatInt(int64(result.ResetTime.Seconds()), 10))

		if cfg.Response != nil {
			custom := cfg.Response(result)
			if custom.Headers == nil {
				custom.Headers = map[string]string{}
			}
			for _, name := range []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "X-RateLimit-Type", "Retry-After"} {
				if v, ok := resp.Get(name); ok {
					custom.SetHeader(name, v)
				}
			}
			*resp = *custom
			return false
		}

		body := []byte(fmt.Sprintf(
			`{"error":"rate_limited","limit_type":%q,"reason":%q,"retry_after_seconds":%d}`,
			result.LimitType, result.Reason, int64(result.ResetTime.Seconds()),
		))
		resp.Status = 429
		resp.SetHeader("Content-Type", "application/json")
		resp.SetBody(body)
		return false
	}
}

// configuredLimit reports the request cap X-RateLimit-Limit should carry
// for cfg's strategy: the burst capacity for a token bucket, the per-window
// request cap for the window-based strategies, and maxRemaining when rate
// limiting is disabled, matching the disabled mode's "remaining=MAX"
// contract in CheckRequest.
func configuredLimit(cfg Config) int64 {
	if !cfg.Enabled {
		return maxRemaining
	}
	if cfg.Strategy == TokenBucket {
		if cfg.BurstCapacity > 0 {
			return cfg.BurstCapacity
		}
		return cfg.MaxRequests
	}
	return cfg.MaxRequests
}
