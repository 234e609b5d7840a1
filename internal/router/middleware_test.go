package router

import (
	"bytes"
	"log"
	"testing"
	"time"

	"github.com/wireserv/wireserv/internal/httpmsg"
	"github.com/wireserv/wireserv/internal/ratelimit"
)

func TestAccessLogWritesLineAndContinues(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf, "", 0)

	mw := AccessLog(logger)
	ctx := newTestContext(httpmsg.MethodGet, "/path")
	ctx.PeerAddr = "1.2.3.4:5"

	if !mw(ctx) {
		t.Fatal("AccessLog should always continue the pipeline")
	}
	if !bytes.Contains(buf.Bytes(), []byte("/path")) {
		t.Errorf("log output = %q, want it to mention the request path", buf.String())
	}
}

func TestAccessLogToleratesNilLogger(t *testing.T) {
	mw := AccessLog(nil)
	ctx := newTestContext(httpmsg.MethodGet, "/path")
	if !mw(ctx) {
		t.Fatal("AccessLog with a nil logger should still continue the pipeline")
	}
}

func TestRateLimitAdapterStopsPipelineOnDeny(t *testing.T) {
	limiter := ratelimit.New(ratelimit.Config{
		Strategy: ratelimit.TokenBucket, MaxRequests: 1, BurstCapacity: 1,
		WindowDuration: time.Minute, Enabled: true,
	}, nil)
	defer limiter.Close()

	mw := RateLimit(limiter)
	ctx := newTestContext(httpmsg.MethodGet, "/x")
	ctx.PeerAddr = "9.9.9.9:1"

	if !mw(ctx) {
		t.Fatal("first request should be allowed through")
	}

	ctx2 := newTestContext(httpmsg.MethodGet, "/x")
	ctx2.PeerAddr = "9.9.9.9:1"
	if mw(ctx2) {
		t.Error("second request should be denied once the bucket is exhausted")
	}
	if ctx2.Response.Status != 429 {
		t.Errorf("Status = %d, want 429", ctx2.Response.Status)
	}
}
