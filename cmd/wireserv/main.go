// Command wireserv runs the HTTP/WebSocket server: it loads configuration,
// wires together the router, rate limiter, and static file handler, starts
// the plain and (optionally) TLS listeners, and shuts down cleanly on
// SIGINT/SIGTERM. Adapted from the teacher's app/app.go entry point.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/wireserv/wireserv/config"
	"github.com/wireserv/wireserv/internal/httpmsg"
	"github.com/wireserv/wireserv/internal/pools"
	"github.com/wireserv/wireserv/internal/ratelimit"
	"github.com/wireserv/wireserv/internal/router"
	"github.com/wireserv/wireserv/internal/server"
	"github.com/wireserv/wireserv/internal/wsconn"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON configuration file")
	flag.Parse()

	logger := log.New(os.Stdout, "wireserv: ", log.LstdFlags)

	pools.OptimizeForHighThroughput()

	mgr, err := config.NewManager(*configPath, logger)
	if err != nil {
		logger.Fatalf("loading configuration: %v", err)
	}
	defer mgr.Close()

	workers := pools.NewWorkerPool(0)
	defer workers.Close()

	srv := buildServer(mgr, workers, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := mgr.Current()
	errCh := make(chan error, 2)

	go func() {
		addr := cfg.Host + ":" + strconv.Itoa(cfg.Port)
		logger.Printf("listening on %s", addr)
		errCh <- srv.ListenAndServe(addr)
	}()

	if cfg.EnableHTTPS {
		tc, err := server.Build(server.TLSConfig{
			CertFile:     cfg.SSLCertificateFile,
			KeyFile:      cfg.SSLPrivateKeyFile,
			CAFile:       cfg.SSLCAFile,
			VerifyClient: cfg.SSLVerifyClient,
			CipherSuites: cfg.SSLCipherList,
			DHFile:       cfg.SSLDHFile,
		})
		if err != nil {
			logger.Fatalf("building TLS config: %v", err)
		}
		go func() {
			addr := cfg.Host + ":" + strconv.Itoa(cfg.HTTPSPort)
			logger.Printf("listening (TLS) on %s", addr)
			errCh <- srv.ListenAndServeTLS(addr, tc)
		}()
	}

	select {
	case <-ctx.Done():
		logger.Printf("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Printf("listener error: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("shutdown: %v", err)
	}
}

func buildServer(mgr *config.Manager, workers *pools.WorkerPool, logger *log.Logger) *server.Server {
	cfg := mgr.Current()
	stats := server.NewStats()

	r := buildRouter(cfg, workers, logger, stats)
	mgr.OnReload(func(newCfg *config.Config) {
		r.Swap(buildRouter(newCfg, workers, logger, stats))
	})

	return server.New(server.Config{
		MaxConnections: cfg.MaxConnections,
		IdleTimeout:    cfg.KeepAliveTimeout(),
	}, r, stats, logger)
}

func buildRouter(cfg *config.Config, workers *pools.WorkerPool, logger *log.Logger, stats *server.Stats) *router.Router {
	r := router.New()
	r.SetPanicLogger(logger)
	r.Use(router.AccessLog(logger))

	if cfg.RateLimit.Enabled {
		limiter := ratelimit.New(ratelimit.Config{
			Strategy:       ratelimit.Strategy(cfg.RateLimit.Strategy),
			MaxRequests:    cfg.RateLimit.MaxRequests,
			WindowDuration: time.Duration(cfg.RateLimit.WindowSeconds) * time.Second,
			BurstCapacity:  cfg.RateLimit.BurstCapacity,
			Enabled:        true,
		}, workers)
		r.Use(router.RateLimit(limiter))
	}

	if cfg.EnableCompression {
		r.Use(router.Gzip())
		r.SetCompressFunc(router.NewCompressor(router.GzipConfig{
			MinSize:           cfg.CompressionMinSize,
			Level:             cfg.CompressionLevel,
			CompressibleTypes: cfg.CompressibleTypes,
		}))
	}

	r.Handle(httpmsg.MethodGet, "/healthz", func(ctx *router.Context) {
		ctx.Response.SetHeader("Content-Type", "text/plain; charset=utf-8")
		ctx.Response.SetBody([]byte("ok"))
	})

	r.HandlePrefix(httpmsg.MethodGet, "/ws", wsUpgradeHandler(cfg, stats))

	if cfg.ServeStaticFiles && cfg.DocumentRoot != "" {
		r.HandlePrefix(httpmsg.MethodGet, "/", router.ServeStatic(router.StaticConfig{
			URLPrefix:  "/",
			DocRoot:    cfg.DocumentRoot,
			IndexFiles: cfg.IndexFiles,
			MimeTypes:  cfg.MimeTypes,
		}))
	}

	return r
}

// wsUpgradeHandler demonstrates the WebSocket upgrade path wired through
// the HTTP router: a GET to /ws that passes handshake validation is
// promoted to a wsconn.Conn and served on its own goroutine (the same
// goroutine that was running the HTTP connection loop), echoing text and
// binary messages back to the sender.
func wsUpgradeHandler(cfg *config.Config, stats *server.Stats) router.HandlerFunc {
	hub := wsconn.NewHub(stats)
	throttle := wsconn.ThrottleConfig{
		Enabled:           cfg.WebSocket.ThrottleEnabled,
		MessagesPerSecond: cfg.WebSocket.MessagesPerSecond,
		Burst:             cfg.WebSocket.Burst,
	}

	return func(ctx *router.Context) {
		key, err := wsconn.ValidateUpgrade(ctx.Request)
		if err != nil {
			*ctx.Response = *wsconn.BuildRejectResponse(err.(*wsconn.UpgradeError))
			return
		}
		*ctx.Response = *wsconn.BuildUpgradeResponse(key)

		ctx.Upgrade = func(sock net.Conn) {
			handlers := wsconn.Handlers{
				OnText: func(c *wsconn.Conn, message string) {
					_ = c.SendText([]byte(message))
				},
				OnBinary: func(c *wsconn.Conn, message []byte) {
					_ = c.SendBinary(message)
				},
			}
			wsconn.New(sock, hub, handlers, cfg.WebSocket.MaxFrameSize, throttle).Serve()
		}
	}
}
