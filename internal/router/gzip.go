package router

import (
	"bytes"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// GzipMinSize is the smallest inline body Gzip will bother compressing,
// used as the default when a server is built without an explicit
// compression_min_size in its configuration.
const GzipMinSize = 1024

// compressibleContentTypes are the content-types worth spending a gzip
// pass on; anything else (images, video, already-compressed archives) is
// left alone since gzip either does nothing useful or makes it bigger.
// This is the default compressible_types list; GzipConfig.CompressibleTypes
// overrides it per §6.
var compressibleContentTypes = []string{
	"text/",
	"application/json",
	"application/javascript",
	"application/xml",
}

func isCompressibleContentType(contentType string, prefixes []string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.IndexByte(ct, ';'); idx >= 0 {
		ct = ct[:idx]
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(ct, strings.ToLower(prefix)) {
			return true
		}
	}
	return false
}

// GzipConfig carries the compression knobs §6 lists on the server
// configuration: compression_min_size, compression_level, and
// compressible_types. The zero value is not directly usable — build one
// with NewCompressor, which fills in the documented defaults for any
// zero field.
type GzipConfig struct {
	MinSize           int
	Level             int
	CompressibleTypes []string
}

func (c GzipConfig) withDefaults() GzipConfig {
	if c.MinSize <= 0 {
		c.MinSize = GzipMinSize
	}
	if c.Level == 0 {
		c.Level = gzip.DefaultCompression
	}
	if len(c.CompressibleTypes) == 0 {
		c.CompressibleTypes = compressibleContentTypes
	}
	return c
}

// Gzip is a pre-dispatch pipeline stage: if the client sent
// Accept-Encoding: gzip, it marks the request as eligible for compression
// and always continues the chain. It does not compress anything itself;
// the compression pass (CompressResponse or a NewCompressor func) runs
// after dispatch and only touches eligible responses with an inline
// (non-streamed) body at or above its minimum size. Streamed bodies
// (static files) are left alone — they're already served efficiently via
// sendfile and compressing them would require buffering the whole file,
// defeating that optimization.
//
// Wired here instead of via golang.org/x/net's httputil since klauspost's
// compress/gzip is the encoder already used elsewhere in the example
// corpus and its faster DEFLATE implementation is a straightforward
// drop-in for the standard library's compress/gzip.
func Gzip() MiddlewareFunc {
	return func(ctx *Context) bool {
		accepts := ctx.Request.Get("Accept-Encoding")
		if !strings.Contains(accepts, "gzip") {
			return true
		}
		ctx.Params["__gzip_eligible"] = "1"
		return true
	}
}

// CompressResponse performs the actual gzip pass using the documented
// defaults (GzipMinSize, gzip.DefaultCompression, compressibleContentTypes).
// It is not itself a pipeline stage (compression must happen after the
// handler has set the final body, and this flat pipeline runs middlewares
// before the handler), so it belongs after dispatch: the Connection calls
// Router.Compress once dispatch returns, which runs whatever pass was
// installed with SetCompressFunc (none by default). Servers that configure
// compression_min_size, compression_level, or compressible_types should
// build that pass with NewCompressor instead.
func CompressResponse(ctx *Context) {
	defaultCompressor(ctx)
}

var defaultCompressor = NewCompressor(GzipConfig{})

// NewCompressor builds a compression pass bound to cfg, with any zero field
// filled from the documented defaults. The returned func performs the same
// eligibility and shrink checks as CompressResponse but against cfg's
// min size, level, and compressible-type list.
func NewCompressor(cfg GzipConfig) func(ctx *Context) {
	cfg = cfg.withDefaults()
	return func(ctx *Context) {
		if ctx.Params["__gzip_eligible"] != "1" {
			return
		}
		if ctx.Response.BodyStream != nil {
			return
		}
		if len(ctx.Response.Body) < cfg.MinSize {
			return
		}
		if _, already := ctx.Response.Get("Content-Encoding"); already {
			return
		}
		contentType, _ := ctx.Response.Get("Content-Type")
		if !isCompressibleContentType(contentType, cfg.CompressibleTypes) {
			return
		}

		compressed, err := gzipBytes(ctx.Response.Body, cfg.Level)
		if err != nil {
			return
		}
		if len(compressed) >= len(ctx.Response.Body) {
			return
		}
		ctx.Response.SetBody(compressed)
		ctx.Response.SetHeader("Content-Encoding", "gzip")
		ctx.Response.SetHeader("Vary", "Accept-Encoding")
	}
}

func gzipBytes(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
