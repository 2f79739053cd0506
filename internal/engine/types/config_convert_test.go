package types

import (
	"testing"
	"time"

	"github.com/kget-downloader/kget/internal/config"
)

// TestConvertRuntimeConfig_AllFieldsCopied verifies that every field in
// config.RuntimeConfig is correctly mapped to types.RuntimeConfig.
func TestConvertRuntimeConfig_AllFieldsCopied(t *testing.T) {
	input := &config.RuntimeConfig{
		MaxConnections: 12,
		UserAgent:      "TestAgent/1.0",
		ProxyEnabled:   true,
		ProxyURL:       "http://127.0.0.1:8080",
		ProxyUsername:  "user",
		ProxyPassword:  "secret",
		ProxyType:      config.ProxyHTTPS,
		MinChunkSize:   8 * MB,
		MaxChunkSize:   32 * MB,
		MaxTaskRetries: 5,
		SpeedLimit:     1 * MB,
		SkipTLSVerify:  true,
	}

	result := ConvertRuntimeConfig(input)

	if result == nil {
		t.Fatal("ConvertRuntimeConfig returned nil")
	}
	if result.Workers != input.MaxConnections {
		t.Errorf("Workers: got %d, want %d", result.Workers, input.MaxConnections)
	}
	if result.UserAgent != input.UserAgent {
		t.Errorf("UserAgent: got %q, want %q", result.UserAgent, input.UserAgent)
	}
	want := ProxyConfig{Enabled: true, URL: input.ProxyURL, Username: "user", Password: "secret", Type: config.ProxyHTTPS}
	if result.Proxy != want {
		t.Errorf("Proxy: got %+v, want %+v", result.Proxy, want)
	}
	if result.MinChunkSize != input.MinChunkSize {
		t.Errorf("MinChunkSize: got %d, want %d", result.MinChunkSize, input.MinChunkSize)
	}
	if result.MaxChunkSize != input.MaxChunkSize {
		t.Errorf("MaxChunkSize: got %d, want %d", result.MaxChunkSize, input.MaxChunkSize)
	}
	if result.MaxTaskRetries != input.MaxTaskRetries {
		t.Errorf("MaxTaskRetries: got %d, want %d", result.MaxTaskRetries, input.MaxTaskRetries)
	}
	if result.SpeedLimit != input.SpeedLimit {
		t.Errorf("SpeedLimit: got %d, want %d", result.SpeedLimit, input.SpeedLimit)
	}
	if !result.SkipTLSVerify {
		t.Error("SkipTLSVerify: expected true")
	}
}

func TestRuntimeConfig_NilDefaults(t *testing.T) {
	var r *RuntimeConfig

	if got := r.GetWorkers(); got != DefaultWorkers {
		t.Errorf("GetWorkers: got %d, want %d", got, DefaultWorkers)
	}
	if got := r.GetMinChunkSize(); got != MinChunk {
		t.Errorf("GetMinChunkSize: got %d, want %d", got, MinChunk)
	}
	if got := r.GetMaxChunkSize(); got != MaxChunk {
		t.Errorf("GetMaxChunkSize: got %d, want %d", got, MaxChunk)
	}
	if got := r.GetBufferSize(); got != WorkerBuffer {
		t.Errorf("GetBufferSize: got %d, want %d", got, WorkerBuffer)
	}
	if got := r.GetMaxTaskRetries(); got != MaxTaskRetries {
		t.Errorf("GetMaxTaskRetries: got %d, want %d", got, MaxTaskRetries)
	}
	if got := r.GetRetryBaseDelay(); got != 250*time.Millisecond {
		t.Errorf("GetRetryBaseDelay: got %v", got)
	}
	if got := r.GetUserAgent(); got != DefaultUserAgent {
		t.Errorf("GetUserAgent: got %q", got)
	}
	if got := r.GetSpeedLimit(); got != 0 {
		t.Errorf("GetSpeedLimit: got %d", got)
	}
}

func TestRuntimeConfig_Clamping(t *testing.T) {
	r := &RuntimeConfig{Workers: 500, MinChunkSize: 10 * MB, MaxChunkSize: 1 * MB}

	if got := r.GetWorkers(); got != MaxWorkers {
		t.Errorf("GetWorkers: got %d, want %d", got, MaxWorkers)
	}
	if got := r.GetMaxChunkSize(); got != 10*MB {
		t.Errorf("max chunk below min should clamp to min, got %d", got)
	}
}
