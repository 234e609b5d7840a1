// Package server is the orchestrator: it owns the listener(s), enforces
// max_connections, and spawns one internal/conn.Connection per accepted
// socket. Grounded on the teacher's core/engine.go (NewEngine/Run/
// acceptConnections) and app/app.go's signal handling, with TLS listening
// sharing the same Serve(net.Listener) entry point the plain listener
// uses, in the shape of hexinfra-gorox's tcpxGate.serveTLS/IsTLS split,
// where a TLS and a plain gate both run the same per-connection Serve
// runner over whatever net.Conn they were handed.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wireserv/wireserv/internal/conn"
	"github.com/wireserv/wireserv/internal/router"
)

// Config holds the orchestrator's own knobs — everything else (TLS
// material, rate limits, static roots) is wired into the Router and
// passed in already configured.
type Config struct {
	MaxConnections int // <= 0 means unlimited
	IdleTimeout    time.Duration
}

// Server accepts connections on one or more listeners and serves them
// through a shared Router and Stats.
type Server struct {
	cfg    Config
	router *router.Router
	stats  *Stats
	logger *log.Logger

	activeConns atomic.Int64

	listenersMu sync.Mutex
	listeners   []net.Listener

	wg sync.WaitGroup

	closing atomic.Bool
}

// New builds a Server. logger may be nil, in which case log.Default() is
// used, matching the teacher's fallback logger convention.
func New(cfg Config, r *router.Router, stats *Stats, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	if stats == nil {
		stats = NewStats()
	}
	return &Server{cfg: cfg, router: r, stats: stats, logger: logger}
}

// Stats exposes the orchestrator's counters for a status endpoint.
func (s *Server) Stats() *Stats { return s.stats }

// ListenAndServe starts a plain-TCP listener on addr and serves it until
// Shutdown is called or the listener errors.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// ListenAndServeTLS starts a TLS listener on addr using tc and serves it
// until Shutdown is called or the listener errors. It shares Serve with
// the plain listener — the Connection type is generic over net.Conn, so
// nothing downstream needs to know the socket is wrapped in TLS.
func (s *Server) ListenAndServeTLS(addr string, tc *tls.Config) error {
	ln, err := tls.Listen("tcp", addr, tc)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections from ln until it errors (typically because
// Shutdown closed it). Each accepted connection is enforced against
// MaxConnections and, if admitted, served on its own goroutine.
func (s *Server) Serve(ln net.Listener) error {
	s.listenersMu.Lock()
	s.listeners = append(s.listeners, ln)
	s.listenersMu.Unlock()

	for {
		sock, err := ln.Accept()
		if err != nil {
			if s.closing.Load() {
				return nil
			}
			return err
		}

		if s.cfg.MaxConnections > 0 && s.activeConns.Load() >= int64(s.cfg.MaxConnections) {
			sock.Close()
			continue
		}

		s.activeConns.Add(1)
		s.stats.ConnectionOpened()
		s.wg.Add(1)
		go s.serveOne(sock)
	}
}

func (s *Server) serveOne(sock net.Conn) {
	defer s.wg.Done()
	defer s.stats.ConnectionClosed()
	defer s.activeConns.Add(-1)

	c := conn.New(sock, s.router, s.stats, s.logger, s.cfg.IdleTimeout)
	c.Serve()
}

// Shutdown closes every listener this Server owns and waits until in-flight
// connections finish or ctx is done, whichever comes first, matching app/app.go's SIGTERM handling.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closing.Store(true)
	s.listenersMu.Lock()
	listeners := s.listeners
	s.listenersMu.Unlock()
	for _, ln := range listeners {
		ln.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.New("server: shutdown grace period exceeded with connections still active")
	}
}
