package router

import (
	"log"

	"github.com/wireserv/wireserv/internal/ratelimit"
)

// AccessLog logs the inbound request line before dispatch, in the style
// of the teacher's request logging middleware. The final response status
// is not logged: a pipeline stage runs before the handler and cannot see
// its outcome.
func AccessLog(logger *log.Logger) MiddlewareFunc {
	return func(ctx *Context) bool {
		if logger != nil {
			logger.Printf("%s %s %s", ctx.PeerAddr, ctx.Request.Method, ctx.Request.Path)
		}
		return true
	}
}

// RateLimit adapts a ratelimit.Limiter into a pipeline stage.
func RateLimit(limiter *ratelimit.Limiter) MiddlewareFunc {
	mw := limiter.Middleware()
	return func(ctx *Context) bool {
		return mw(ctx.Request, ctx.Response, ctx.PeerAddr)
	}
}
