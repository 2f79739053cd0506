package types

import (
	"time"
)

// Size constants
const (
	KB = 1024
	MB = 1024 * KB
	GB = 1024 * MB
)

// Chunk size constants for concurrent downloads
const (
	MinChunk     = 1 * MB  // Lower bound of a planned chunk
	MaxChunk     = 64 * MB // Upper bound of a planned chunk
	WorkerBuffer = 16 * KB // Read size per body read
)

// Worker pool defaults
const (
	DefaultWorkers = 4
	MaxWorkers     = 64
)

// Retry policy for a single chunk
const (
	MaxTaskRetries = 3 // Attempts per chunk, including the first
	RetryBaseDelay = 250 * time.Millisecond
)

// HTTP Client Tuning
const (
	DefaultMaxIdleConns          = 100
	DefaultIdleConnTimeout       = 90 * time.Second
	DefaultTLSHandshakeTimeout   = 10 * time.Second
	DefaultResponseHeaderTimeout = 20 * time.Second
	DefaultExpectContinueTimeout = 1 * time.Second
	DialTimeout                  = 20 * time.Second
	KeepAliveDuration            = 30 * time.Second
	ProbeTimeout                 = 30 * time.Second
)

// Progress reporting
const (
	ProgressEventsPerSecond = 10
	ProgressChannelBuffer   = 100
)

// DefaultUserAgent is sent when the user did not configure one.
const DefaultUserAgent = "KGet/1.0"

// Proxy kinds understood by the HTTP client factory.
const (
	ProxyHTTP   = "http"
	ProxyHTTPS  = "https"
	ProxySOCKS5 = "socks5"
)

// ProxyConfig is handed to the HTTP client opaquely; the engine only enables it.
type ProxyConfig struct {
	Enabled  bool
	URL      string
	Username string
	Password string
	Type     string
}

// RuntimeConfig holds dynamic settings that can override defaults
type RuntimeConfig struct {
	Workers        int
	UserAgent      string
	Proxy          ProxyConfig
	MinChunkSize   int64
	MaxChunkSize   int64
	BufferSize     int
	MaxTaskRetries int
	RetryBaseDelay time.Duration
	SpeedLimit     int64 // bytes per second, 0 = unlimited
	SkipTLSVerify  bool
}

// GetUserAgent returns the configured user agent or the default
func (r *RuntimeConfig) GetUserAgent() string {
	if r == nil || r.UserAgent == "" {
		return DefaultUserAgent
	}
	return r.UserAgent
}

// GetWorkers returns the configured worker count clamped to [1, MaxWorkers]
func (r *RuntimeConfig) GetWorkers() int {
	if r == nil || r.Workers <= 0 {
		return DefaultWorkers
	}
	if r.Workers > MaxWorkers {
		return MaxWorkers
	}
	return r.Workers
}

// GetMinChunkSize returns configured value or default
func (r *RuntimeConfig) GetMinChunkSize() int64 {
	if r == nil || r.MinChunkSize <= 0 {
		return MinChunk
	}
	return r.MinChunkSize
}

// GetMaxChunkSize returns configured value or default
func (r *RuntimeConfig) GetMaxChunkSize() int64 {
	if r == nil || r.MaxChunkSize <= 0 {
		return MaxChunk
	}
	if r.MaxChunkSize < r.GetMinChunkSize() {
		return r.GetMinChunkSize()
	}
	return r.MaxChunkSize
}

// GetBufferSize returns configured value or default
func (r *RuntimeConfig) GetBufferSize() int {
	if r == nil || r.BufferSize <= 0 {
		return WorkerBuffer
	}
	return r.BufferSize
}

// GetMaxTaskRetries returns configured value or default
func (r *RuntimeConfig) GetMaxTaskRetries() int {
	if r == nil || r.MaxTaskRetries <= 0 {
		return MaxTaskRetries
	}
	return r.MaxTaskRetries
}

// GetRetryBaseDelay returns configured value or default
func (r *RuntimeConfig) GetRetryBaseDelay() time.Duration {
	if r == nil || r.RetryBaseDelay <= 0 {
		return RetryBaseDelay
	}
	return r.RetryBaseDelay
}

// GetSpeedLimit returns the bandwidth cap in bytes per second, 0 if unlimited
func (r *RuntimeConfig) GetSpeedLimit() int64 {
	if r == nil || r.SpeedLimit < 0 {
		return 0
	}
	return r.SpeedLimit
}
