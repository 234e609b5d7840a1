package router

import (
	"bytes"
	"crypto/rand"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/wireserv/wireserv/internal/httpmsg"
)

func TestGzipMarksEligibleOnAcceptEncoding(t *testing.T) {
	mw := Gzip()
	ctx := newTestContext(httpmsg.MethodGet, "/x")
	ctx.Request.Headers.Set("Accept-Encoding", "gzip, deflate")

	mw(ctx)
	if ctx.Params["__gzip_eligible"] != "1" {
		t.Error("expected __gzip_eligible to be set when the client accepts gzip")
	}
}

func TestGzipNotMarkedWithoutAcceptEncoding(t *testing.T) {
	mw := Gzip()
	ctx := newTestContext(httpmsg.MethodGet, "/x")

	mw(ctx)
	if ctx.Params["__gzip_eligible"] == "1" {
		t.Error("__gzip_eligible should not be set without Accept-Encoding: gzip")
	}
}

func TestCompressResponseCompressesLargeEligibleBody(t *testing.T) {
	ctx := newTestContext(httpmsg.MethodGet, "/x")
	ctx.Params["__gzip_eligible"] = "1"
	ctx.Response.SetHeader("Content-Type", "text/plain; charset=utf-8")
	body := bytes.Repeat([]byte("a"), GzipMinSize+1)
	ctx.Response.SetBody(body)

	CompressResponse(ctx)

	enc, ok := ctx.Response.Get("Content-Encoding")
	if !ok || enc != "gzip" {
		t.Fatalf("Content-Encoding = %q, ok=%v, want gzip", enc, ok)
	}

	r, err := gzip.NewReader(bytes.NewReader(ctx.Response.Body))
	if err != nil {
		t.Fatalf("compressed body does not decode as gzip: %v", err)
	}
	defer r.Close()
}

func TestCompressResponseSkipsSmallBody(t *testing.T) {
	ctx := newTestContext(httpmsg.MethodGet, "/x")
	ctx.Params["__gzip_eligible"] = "1"
	ctx.Response.SetHeader("Content-Type", "text/plain; charset=utf-8")
	ctx.Response.SetBody([]byte("tiny"))

	CompressResponse(ctx)

	if _, ok := ctx.Response.Get("Content-Encoding"); ok {
		t.Error("a body under GzipMinSize should not be compressed")
	}
}

func TestCompressResponseSkipsNonTextualContentType(t *testing.T) {
	ctx := newTestContext(httpmsg.MethodGet, "/x")
	ctx.Params["__gzip_eligible"] = "1"
	ctx.Response.SetHeader("Content-Type", "image/png")
	ctx.Response.SetBody(bytes.Repeat([]byte("a"), GzipMinSize+1))

	CompressResponse(ctx)

	if _, ok := ctx.Response.Get("Content-Encoding"); ok {
		t.Error("a non-textual content-type should not be compressed")
	}
}

func TestCompressResponseSkipsWhenCompressionDoesNotShrink(t *testing.T) {
	ctx := newTestContext(httpmsg.MethodGet, "/x")
	ctx.Params["__gzip_eligible"] = "1"
	ctx.Response.SetHeader("Content-Type", "application/json")

	// Cryptographically random bytes are incompressible; gzip's own
	// framing overhead makes the "compressed" output larger.
	body := make([]byte, GzipMinSize+1)
	if _, err := rand.Read(body); err != nil {
		t.Fatalf("rand.Read failed: %v", err)
	}
	ctx.Response.SetBody(body)
	original := append([]byte(nil), body...)

	CompressResponse(ctx)

	if _, ok := ctx.Response.Get("Content-Encoding"); ok {
		t.Error("a body that doesn't shrink under gzip should not be compressed")
	}
	if !bytes.Equal(ctx.Response.Body, original) {
		t.Error("body should be left untouched when compression is skipped")
	}
}

func TestCompressResponseSkipsWhenNotEligible(t *testing.T) {
	ctx := newTestContext(httpmsg.MethodGet, "/x")
	body := strings.Repeat("a", GzipMinSize+1)
	ctx.Response.SetBody([]byte(body))

	CompressResponse(ctx)

	if _, ok := ctx.Response.Get("Content-Encoding"); ok {
		t.Error("response should not be compressed when not marked eligible")
	}
}

func TestNewCompressorHonorsCustomMinSize(t *testing.T) {
	compress := NewCompressor(GzipConfig{MinSize: 16})

	ctx := newTestContext(httpmsg.MethodGet, "/x")
	ctx.Params["__gzip_eligible"] = "1"
	ctx.Response.SetHeader("Content-Type", "text/plain; charset=utf-8")
	// 512 bytes is under the default GzipMinSize but large enough for gzip's
	// fixed framing overhead to be outweighed, so the shrink check passes.
	ctx.Response.SetBody(bytes.Repeat([]byte("a"), 512))

	compress(ctx)

	if _, ok := ctx.Response.Get("Content-Encoding"); !ok {
		t.Error("a 512-byte body should compress under a configured MinSize of 16")
	}
}

func TestNewCompressorHonorsCustomCompressibleTypes(t *testing.T) {
	compress := NewCompressor(GzipConfig{CompressibleTypes: []string{"application/x-custom"}})

	ctx := newTestContext(httpmsg.MethodGet, "/x")
	ctx.Params["__gzip_eligible"] = "1"
	ctx.Response.SetHeader("Content-Type", "text/plain; charset=utf-8")
	ctx.Response.SetBody(bytes.Repeat([]byte("a"), GzipMinSize+1))

	compress(ctx)

	if _, ok := ctx.Response.Get("Content-Encoding"); ok {
		t.Error("text/plain should not compress when compressible_types only lists application/x-custom")
	}
}

func TestCompressResponseSkipsStreamedBody(t *testing.T) {
	ctx := newTestContext(httpmsg.MethodGet, "/x")
	ctx.Params["__gzip_eligible"] = "1"
	ctx.Response.SetBodyStream(&fileStream{path: "/dev/null"}, 0)

	CompressResponse(ctx)

	if _, ok := ctx.Response.Get("Content-Encoding"); ok {
		t.Error("a streamed body should never be compressed in-place")
	}
}
