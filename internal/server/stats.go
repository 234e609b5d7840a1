package server

import (
	"sync/atomic"
	"time"
)

// Stats holds the server's lifetime atomic counters, adapted wholesale
// from the teacher's core/observability/monitor.go HandlerMetrics: the
// exact field set spec.md §3 names for its Statistics struct.
type Stats struct {
	totalRequests      atomic.Uint64
	activeConnections  atomic.Int64
	totalConnections   atomic.Uint64
	bytesSent          atomic.Uint64
	bytesReceived      atomic.Uint64
	activeWebSockets   atomic.Int64
	totalWebSockets    atomic.Uint64
	startTime          time.Time
}

// NewStats creates a Stats with StartTime set to now.
func NewStats() *Stats {
	return &Stats{startTime: time.Now()}
}

func (s *Stats) AddRequest()                  { s.totalRequests.Add(1) }
func (s *Stats) AddBytesSent(n int64)          { s.bytesSent.Add(uint64(n)) }
func (s *Stats) AddBytesReceived(n int64)      { s.bytesReceived.Add(uint64(n)) }
func (s *Stats) ConnectionOpened()             { s.activeConnections.Add(1); s.totalConnections.Add(1) }
func (s *Stats) ConnectionClosed()             { s.activeConnections.Add(-1) }
func (s *Stats) AddWebSocketOpened()           { s.activeWebSockets.Add(1); s.totalWebSockets.Add(1) }
func (s *Stats) AddWebSocketClosed()           { s.activeWebSockets.Add(-1) }

// Snapshot is a point-in-time, non-atomic copy of every counter, suitable
// for a JSON status endpoint or a log line.
type Snapshot struct {
	TotalRequests     uint64    `json:"total_requests"`
	ActiveConnections int64     `json:"active_connections"`
	TotalConnections  uint64    `json:"total_connections"`
	BytesSent         uint64    `json:"bytes_sent"`
	BytesReceived     uint64    `json:"bytes_received"`
	ActiveWebSockets  int64     `json:"active_websockets"`
	TotalWebSockets   uint64    `json:"total_websockets"`
	StartTime         time.Time `json:"start_time"`
}

// Snapshot reads every counter into a Snapshot.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		TotalRequests:     s.totalRequests.Load(),
		ActiveConnections: s.activeConnections.Load(),
		TotalConnections:  s.totalConnections.Load(),
		BytesSent:         s.bytesSent.Load(),
		BytesReceived:     s.bytesReceived.Load(),
		ActiveWebSockets:  s.activeWebSockets.Load(),
		TotalWebSockets:   s.totalWebSockets.Load(),
		StartTime:         s.startTime,
	}
}
