// Package config defines the JSON-populated configuration surface and a
// hot-reloading Manager. Grounded on the teacher's config/config.go field
// shape (generalized from its flag-parsing source to JSON, per §1's
// "configuration loader... a structure populated from JSON" contract) and
// config/manager.go's reload mechanism, now backed by fsnotify instead of
// the teacher's polling loop.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Config is the full configuration surface named in §6: network, TLS,
// resource limits, static files, and rate limiting.
type Config struct {
	// Network
	Host        string `json:"host"`
	Port        int    `json:"port"`
	EnableHTTPS bool   `json:"enable_https"`
	HTTPSPort   int    `json:"https_port"`

	// TLS
	SSLCertificateFile string   `json:"ssl_certificate_file"`
	SSLPrivateKeyFile  string   `json:"ssl_private_key_file"`
	SSLCAFile          string   `json:"ssl_ca_file"`
	SSLDHFile          string   `json:"ssl_dh_file"` // accepted, documented no-op — see DESIGN.md
	SSLVerifyClient    bool     `json:"ssl_verify_client"`
	SSLCipherList      []string `json:"ssl_cipher_list"`

	// Limits
	MaxConnections    int `json:"max_connections"`
	KeepAliveTimeoutS int `json:"keep_alive_timeout"`
	MaxRequestSize    int `json:"max_request_size"`

	// Static files
	DocumentRoot     string            `json:"document_root"`
	ServeStaticFiles bool              `json:"serve_static_files"`
	IndexFiles       []string          `json:"index_files"`
	MimeTypes        map[string]string `json:"mime_types"`

	// Compression
	EnableCompression  bool     `json:"enable_compression"`
	CompressionMinSize int      `json:"compression_min_size"`
	CompressionLevel   int      `json:"compression_level"`
	CompressibleTypes  []string `json:"compressible_types"`

	// Rate limiting (domain-stack addition; absent from the distilled
	// config surface but required to configure internal/ratelimit)
	RateLimit RateLimitConfig `json:"rate_limit"`

	// WebSocket (domain-stack addition, for internal/wsconn's supplemental
	// inbound throttle)
	WebSocket WebSocketConfig `json:"websocket"`
}

// RateLimitConfig mirrors internal/ratelimit.Config's JSON-facing fields.
type RateLimitConfig struct {
	Enabled        bool   `json:"enabled"`
	Strategy       string `json:"strategy"` // "token_bucket" | "fixed_window" | "sliding_window"
	MaxRequests    int64  `json:"max_requests"`
	WindowSeconds  int64  `json:"window_seconds"`
	BurstCapacity  int64  `json:"burst_capacity"`
}

// WebSocketConfig mirrors internal/wsconn.ThrottleConfig plus the max
// frame size limit.
type WebSocketConfig struct {
	MaxFrameSize      int64   `json:"max_frame_size"`
	ThrottleEnabled   bool    `json:"throttle_enabled"`
	MessagesPerSecond float64 `json:"messages_per_second"`
	Burst             int     `json:"burst"`
}

// KeepAliveTimeout returns KeepAliveTimeoutS as a time.Duration, defaulting
// to 30 seconds per §5 when unset.
func (c *Config) KeepAliveTimeout() time.Duration {
	if c.KeepAliveTimeoutS <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.KeepAliveTimeoutS) * time.Second
}

// Default returns a Config with every documented default applied.
func Default() *Config {
	return &Config{
		Host:              "0.0.0.0",
		Port:              8080,
		MaxConnections:    10000,
		KeepAliveTimeoutS: 30,
		MaxRequestSize:    10 * 1024 * 1024,
		ServeStaticFiles:  false,
		IndexFiles:        []string{"index.html"},
		WebSocket: WebSocketConfig{
			MaxFrameSize: 1024 * 1024,
		},
	}
}

// Load reads and parses path as JSON, starting from Default() so any
// field the file omits keeps its default value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}
