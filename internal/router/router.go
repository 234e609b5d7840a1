// Package router implements request routing, the middleware pipeline, and
// static file serving. The route table is grounded on the teacher's
// core/router/radix.go in naming and registration shape, but deliberately
// trades the trie for an ordered slice: a radix trie's traversal order
// cannot express "on equal-length prefix ties, the first-registered route
// wins", which this routing layer's matching contract requires.
package router

import (
	"fmt"
	"log"
	"net"
	"strings"
	"sync"

	"github.com/wireserv/wireserv/internal/httpmsg"
)

// Context carries one request's routing state through the middleware
// pipeline and into its handler.
type Context struct {
	Request  *httpmsg.Request
	Response *httpmsg.Response
	PeerAddr string
	Params   map[string]string

	// Upgrade, when set by a handler (typically a WebSocket upgrade
	// route), is called by the Connection with the raw socket once the
	// 101 response has been written. The Connection then stops running
	// its own HTTP loop on that socket — ownership passes to whatever
	// Upgrade does with it.
	Upgrade func(sock net.Conn)
}

// HandlerFunc handles one matched route.
type HandlerFunc func(ctx *Context)

// MiddlewareFunc runs before a matched handler. Returning false stops the
// pipeline (the middleware has already written a response).
type MiddlewareFunc func(ctx *Context) bool

type exactKey struct {
	method httpmsg.Method
	path   string
}

type prefixRoute struct {
	method  httpmsg.Method
	prefix  string
	handler HandlerFunc
}

// Router holds the route table and the ordered middleware pipeline. A
// Router's route table can be swapped atomically via Swap, letting the
// orchestrator hot-reload routes without pausing in-flight dispatch.
type Router struct {
	mu          sync.RWMutex
	exact       map[exactKey]HandlerFunc
	prefixes    []prefixRoute // registration order
	middlewares []MiddlewareFunc
	notFound    HandlerFunc
	panicLog    *log.Logger
	compress    func(ctx *Context)
}

// SetCompressFunc installs the post-dispatch compression pass Compress
// runs, typically the closure returned by NewCompressor for a server's
// configured compression_min_size/compression_level/compressible_types.
// A nil fn (the default) makes Compress a no-op, which is how compression
// stays fully disabled when enable_compression is false: Gzip is simply
// never registered as middleware, so no response is ever marked eligible,
// but Compress being a no-op means there's nothing to undo either way.
func (r *Router) SetCompressFunc(fn func(ctx *Context)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.compress = fn
}

// Compress runs this Router's configured compression pass against ctx, if
// one was installed via SetCompressFunc.
func (r *Router) Compress(ctx *Context) {
	r.mu.RLock()
	fn := r.compress
	r.mu.RUnlock()
	if fn != nil {
		fn(ctx)
	}
}

// SetPanicLogger configures where Dispatch logs recovered panics.
func (r *Router) SetPanicLogger(logger *log.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.panicLog = logger
}

// New creates an empty Router with a default 404 handler.
func New() *Router {
	return &Router{
		exact:    make(map[exactKey]HandlerFunc),
		notFound: defaultNotFound,
	}
}

func defaultNotFound(ctx *Context) {
	ctx.Response.Status = 404
	ctx.Response.SetHeader("Content-Type", "text/plain; charset=utf-8")
	ctx.Response.SetBody([]byte("404 Not Found"))
}

// Use appends a middleware stage to the pipeline, run in registration
// order before every matched route's handler.
func (r *Router) Use(mw MiddlewareFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares = append(r.middlewares, mw)
}

// Handle registers an exact-path route for method.
func (r *Router) Handle(method httpmsg.Method, path string, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exact[exactKey{method, path}] = handler
}

// HandlePrefix registers a prefix route: any request path beginning with
// prefix matches, subject to the longest-prefix-wins / first-registered
// tiebreak rule documented on match.
func (r *Router) HandlePrefix(method httpmsg.Method, prefix string, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prefixes = append(r.prefixes, prefixRoute{method, prefix, handler})
}

// NotFound overrides the default 404 handler.
func (r *Router) NotFound(handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notFound = handler
}

// Swap atomically replaces this Router's entire route table and
// middleware pipeline with other's, used for config hot-reload. In-flight
// Dispatch calls already holding the read lock finish against the old
// table; new calls see the new one.
func (r *Router) Swap(other *Router) {
	other.mu.RLock()
	exact := other.exact
	prefixes := other.prefixes
	middlewares := other.middlewares
	notFound := other.notFound
	compress := other.compress
	other.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.exact = exact
	r.prefixes = prefixes
	r.middlewares = middlewares
	r.notFound = notFound
	r.compress = compress
}

// match finds the handler for method+path, per §4.4: exact matches are
// tried first; otherwise the longest registered prefix match wins, with
// ties going to whichever was registered first (scanning in registration
// order and only replacing the best match on a strictly longer prefix
// preserves that tiebreak for free).
func (r *Router) match(method httpmsg.Method, path string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if h, ok := r.exact[exactKey{method, path}]; ok {
		return h, true
	}

	var best HandlerFunc
	bestLen := -1
	for _, pr := range r.prefixes {
		if pr.method != method {
			continue
		}
		if strings.HasPrefix(path, pr.prefix) && len(pr.prefix) > bestLen {
			best = pr.handler
			bestLen = len(pr.prefix)
		}
	}
	if best != nil {
		return best, true
	}
	return nil, false
}

// Dispatch runs the middleware pipeline and then the matched route's
// handler (or the 404 handler) against ctx. A panic anywhere in the
// pipeline or handler is recovered here and turned into a 500, matching
// the teacher's core/middleware/pipeline.go recovery stage — recovery
// wraps the whole chain rather than being a pipeline stage itself, since
// this pipeline's stages run flat (not nested), so a stage-local recover
// cannot see panics raised by stages after it.
func (r *Router) Dispatch(ctx *Context) {
	defer func() {
		if rec := recover(); rec != nil {
			if r.panicLog != nil {
				r.panicLog.Printf("panic recovered: %v", rec)
			}
			ctx.Response.Status = 500
			ctx.Response.Headers = map[string]string{"Content-Type": "text/plain; charset=utf-8"}
			ctx.Response.SetBody([]byte(fmt.Sprintf("Internal server error: %v", rec)))
		}
	}()

	r.mu.RLock()
	middlewares := r.middlewares
	r.mu.RUnlock()

	for _, mw := range middlewares {
		if !mw(ctx) {
			return
		}
	}

	handler, ok := r.match(ctx.Request.Method, ctx.Request.Path)
	if !ok {
		r.mu.RLock()
		nf := r.notFound
		r.mu.RUnlock()
		nf(ctx)
		return
	}
	handler(ctx)
}
