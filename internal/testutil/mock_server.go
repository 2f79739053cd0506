// Package testutil provides testing utilities for the kget downloader.
package testutil

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// MockServer is a configurable HTTP test server for download testing.
type MockServer struct {
	Server *httptest.Server

	// Configuration
	FileSize         int64         // Size of the served file
	SupportsRanges   bool          // Whether to support HTTP Range requests
	IgnoreRanges     bool          // Advertise ranges on HEAD but answer GETs with 200 and the full body
	OmitLength       bool          // Send no Content-Length on HEAD
	ContentType      string        // Content-Type header value
	Filename         string        // Filename in Content-Disposition header
	RandomData       bool          // If true, serve random data; otherwise serve zeros
	Latency          time.Duration // Artificial latency per request
	ByteLatency      time.Duration // Latency per 32 KiB block (simulates slow connection)
	FailAfterBytes   int64         // Cut the connection after this many body bytes (0 = never)
	FailAfterCount   int           // Number of body requests FailAfterBytes applies to (0 = all)
	FailFirstN       int           // Answer the first N body requests with FailStatus
	FailStatus       int           // Status used by FailFirstN
	RangeNotSatFirst int           // Answer the first N range requests with 416 (-1 = always)

	// Tracking
	RequestCount   atomic.Int64
	HeadRequests   atomic.Int64
	BodyRequests   atomic.Int64
	BytesServed    atomic.Int64
	ActiveRequests atomic.Int64
	PeakActive     atomic.Int64
	RangeRequests  atomic.Int64
	FullRequests   atomic.Int64
	FailedRequests atomic.Int64

	mu          sync.Mutex
	bodyReqNum  int
	rangeReqNum int
	truncated   int
	rangesSeen  []string

	// Internal
	data          []byte
	CustomHandler http.HandlerFunc
}

// MockServerOption is a function that configures a MockServer.
type MockServerOption func(*MockServer)

// WithHandler sets a custom request handler.
func WithHandler(h http.HandlerFunc) MockServerOption {
	return func(m *MockServer) {
		m.CustomHandler = h
	}
}

// WithFileSize sets the file size to serve.
func WithFileSize(size int64) MockServerOption {
	return func(m *MockServer) {
		m.FileSize = size
	}
}

// WithRangeSupport enables or disables Range request support.
func WithRangeSupport(enabled bool) MockServerOption {
	return func(m *MockServer) {
		m.SupportsRanges = enabled
	}
}

// WithIgnoredRanges makes the server advertise ranges but reply 200 to range requests.
func WithIgnoredRanges() MockServerOption {
	return func(m *MockServer) {
		m.SupportsRanges = true
		m.IgnoreRanges = true
	}
}

// WithoutContentLength drops Content-Length from HEAD responses.
func WithoutContentLength() MockServerOption {
	return func(m *MockServer) {
		m.OmitLength = true
	}
}

// WithContentType sets the Content-Type header.
func WithContentType(ct string) MockServerOption {
	return func(m *MockServer) {
		m.ContentType = ct
	}
}

// WithFilename sets the filename in Content-Disposition header.
func WithFilename(name string) MockServerOption {
	return func(m *MockServer) {
		m.Filename = name
	}
}

// WithRandomData enables serving random bytes instead of zeros.
func WithRandomData(random bool) MockServerOption {
	return func(m *MockServer) {
		m.RandomData = random
	}
}

// WithData serves the given bytes verbatim.
func WithData(data []byte) MockServerOption {
	return func(m *MockServer) {
		m.FileSize = int64(len(data))
		m.data = data
	}
}

// WithLatency adds artificial latency per request.
func WithLatency(d time.Duration) MockServerOption {
	return func(m *MockServer) {
		m.Latency = d
	}
}

// WithByteLatency adds artificial latency per block served.
func WithByteLatency(d time.Duration) MockServerOption {
	return func(m *MockServer) {
		m.ByteLatency = d
	}
}

// WithFailAfterBytes cuts every body response after n bytes.
func WithFailAfterBytes(n int64) MockServerOption {
	return func(m *MockServer) {
		m.FailAfterBytes = n
	}
}

// WithFailAfterBytesFor cuts only the first count body responses after n bytes.
func WithFailAfterBytesFor(n int64, count int) MockServerOption {
	return func(m *MockServer) {
		m.FailAfterBytes = n
		m.FailAfterCount = count
	}
}

// WithFailFirstN answers the first n body requests with status.
func WithFailFirstN(n int, status int) MockServerOption {
	return func(m *MockServer) {
		m.FailFirstN = n
		m.FailStatus = status
	}
}

// WithRangeNotSatisfiable answers the first n range requests with 416; n < 0 means always.
func WithRangeNotSatisfiable(n int) MockServerOption {
	return func(m *MockServer) {
		m.RangeNotSatFirst = n
	}
}

func newMockServer(opts []MockServerOption) *MockServer {
	m := &MockServer{
		FileSize:       1024 * 1024, // 1MB default
		SupportsRanges: true,
		ContentType:    "application/octet-stream",
		Filename:       "testfile.bin",
		FailStatus:     http.StatusInternalServerError,
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.data == nil {
		m.data = make([]byte, m.FileSize)
		if m.RandomData {
			_, _ = rand.Read(m.data)
		}
	}
	return m
}

// NewMockServer creates a new mock HTTP server with the given options.
func NewMockServer(opts ...MockServerOption) *MockServer {
	m := newMockServer(opts)
	m.Server = NewHTTPServer(http.HandlerFunc(m.handleRequest))
	return m
}

// NewMockServerT creates a new mock HTTP server and skips the test if binding fails.
func NewMockServerT(t *testing.T, opts ...MockServerOption) *MockServer {
	t.Helper()
	m := newMockServer(opts)
	m.Server = NewHTTPServerT(t, http.HandlerFunc(m.handleRequest))
	return m
}

// URL returns the server's URL.
func (m *MockServer) URL() string {
	return m.Server.URL
}

// FileURL returns the server's URL with a file path appended.
func (m *MockServer) FileURL() string {
	return m.Server.URL + "/" + m.Filename
}

// Data returns the bytes the server serves.
func (m *MockServer) Data() []byte {
	return m.data
}

// RangesSeen returns the Range headers received, in arrival order.
func (m *MockServer) RangesSeen() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.rangesSeen...)
}

// Close shuts down the mock server.
func (m *MockServer) Close() {
	if m.Server != nil {
		m.Server.Close()
	}
}

// Reset clears all tracking counters.
func (m *MockServer) Reset() {
	m.RequestCount.Store(0)
	m.HeadRequests.Store(0)
	m.BodyRequests.Store(0)
	m.BytesServed.Store(0)
	m.ActiveRequests.Store(0)
	m.PeakActive.Store(0)
	m.RangeRequests.Store(0)
	m.FullRequests.Store(0)
	m.FailedRequests.Store(0)
	m.mu.Lock()
	m.bodyReqNum = 0
	m.rangeReqNum = 0
	m.truncated = 0
	m.rangesSeen = nil
	m.mu.Unlock()
}

// Stats returns a summary of server statistics.
func (m *MockServer) Stats() MockServerStats {
	return MockServerStats{
		TotalRequests:  m.RequestCount.Load(),
		HeadRequests:   m.HeadRequests.Load(),
		BodyRequests:   m.BodyRequests.Load(),
		BytesServed:    m.BytesServed.Load(),
		PeakActive:     m.PeakActive.Load(),
		RangeRequests:  m.RangeRequests.Load(),
		FullRequests:   m.FullRequests.Load(),
		FailedRequests: m.FailedRequests.Load(),
	}
}

// MockServerStats contains server statistics.
type MockServerStats struct {
	TotalRequests  int64
	HeadRequests   int64
	BodyRequests   int64
	BytesServed    int64
	PeakActive     int64
	RangeRequests  int64
	FullRequests   int64
	FailedRequests int64
}

func (m *MockServer) trackActive() func() {
	n := m.ActiveRequests.Add(1)
	for {
		peak := m.PeakActive.Load()
		if n <= peak || m.PeakActive.CompareAndSwap(peak, n) {
			break
		}
	}
	return func() { m.ActiveRequests.Add(-1) }
}

func (m *MockServer) handleRequest(w http.ResponseWriter, r *http.Request) {
	if m.CustomHandler != nil {
		m.CustomHandler(w, r)
		return
	}

	m.RequestCount.Add(1)
	defer m.trackActive()()

	if m.Latency > 0 {
		time.Sleep(m.Latency)
	}

	// Handle HEAD requests for probing
	if r.Method == http.MethodHead {
		m.HeadRequests.Add(1)
		m.setCommonHeaders(w, 0, m.FileSize-1)
		if m.OmitLength {
			w.Header().Del("Content-Length")
		}
		if m.SupportsRanges {
			w.Header().Set("Accept-Ranges", "bytes")
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	m.BodyRequests.Add(1)
	rangeHeader := r.Header.Get("Range")

	m.mu.Lock()
	m.bodyReqNum++
	reqNum := m.bodyReqNum
	if rangeHeader != "" {
		m.rangeReqNum++
		m.rangesSeen = append(m.rangesSeen, rangeHeader)
	}
	rangeNum := m.rangeReqNum
	m.mu.Unlock()

	if m.FailFirstN > 0 && reqNum <= m.FailFirstN {
		m.FailedRequests.Add(1)
		http.Error(w, "Simulated failure", m.FailStatus)
		return
	}

	start := int64(0)
	end := m.FileSize - 1

	if rangeHeader != "" && m.SupportsRanges && !m.IgnoreRanges {
		m.RangeRequests.Add(1)

		if m.RangeNotSatFirst < 0 || (m.RangeNotSatFirst > 0 && rangeNum <= m.RangeNotSatFirst) {
			m.FailedRequests.Add(1)
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", m.FileSize))
			http.Error(w, "Range not satisfiable", http.StatusRequestedRangeNotSatisfiable)
			return
		}

		var err error
		start, end, err = parseRange(rangeHeader, m.FileSize)
		if err != nil {
			http.Error(w, "Invalid range", http.StatusRequestedRangeNotSatisfiable)
			return
		}

		m.setCommonHeaders(w, start, end)
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, m.FileSize))
		w.WriteHeader(http.StatusPartialContent)
	} else {
		m.FullRequests.Add(1)
		m.setCommonHeaders(w, 0, m.FileSize-1)
		if m.SupportsRanges {
			w.Header().Set("Accept-Ranges", "bytes")
		}
		w.WriteHeader(http.StatusOK)
	}

	failAfter := int64(0)
	if m.FailAfterBytes > 0 {
		m.mu.Lock()
		if m.FailAfterCount == 0 || m.truncated < m.FailAfterCount {
			m.truncated++
			failAfter = m.FailAfterBytes
		}
		m.mu.Unlock()
	}

	length := end - start + 1
	bytesWritten := int64(0)

	// Write in blocks to support byte latency and fail-after-bytes
	chunkSize := int64(32 * 1024)
	for bytesWritten < length {
		if failAfter > 0 && bytesWritten >= failAfter {
			m.FailedRequests.Add(1)
			// Hijack so the client sees the connection drop mid-body.
			if hj, ok := w.(http.Hijacker); ok {
				if conn, _, err := hj.Hijack(); err == nil {
					_ = conn.Close()
				}
			}
			return
		}

		block := chunkSize
		if remaining := length - bytesWritten; remaining < block {
			block = remaining
		}
		if failAfter > 0 && bytesWritten+block > failAfter {
			block = failAfter - bytesWritten
		}

		dataStart := start + bytesWritten
		n, err := w.Write(m.data[dataStart : dataStart+block])
		if err != nil {
			return // Client disconnected
		}

		bytesWritten += int64(n)
		m.BytesServed.Add(int64(n))

		if f, ok := w.(http.Flusher); ok && failAfter > 0 {
			f.Flush()
		}
		if m.ByteLatency > 0 {
			time.Sleep(m.ByteLatency)
		}
	}
}

func (m *MockServer) setCommonHeaders(w http.ResponseWriter, start, end int64) {
	w.Header().Set("Content-Type", m.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))
	if m.Filename != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, m.Filename))
	}
}

// parseRange parses an HTTP Range header and returns start, end positions.
// Handles formats like "bytes=0-499" or "bytes=500-"
func parseRange(rangeHeader string, fileSize int64) (int64, int64, error) {
	if !strings.HasPrefix(rangeHeader, "bytes=") {
		return 0, 0, fmt.Errorf("invalid range prefix")
	}

	rangeSpec := strings.TrimPrefix(rangeHeader, "bytes=")
	parts := strings.Split(rangeSpec, "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid range format")
	}

	var start, end int64
	var err error

	if parts[0] == "" {
		// Suffix range: -500 means last 500 bytes
		end = fileSize - 1
		start, err = strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return 0, 0, err
		}
		start = fileSize - start
	} else {
		start, err = strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return 0, 0, err
		}

		if parts[1] == "" {
			end = fileSize - 1
		} else {
			end, err = strconv.ParseInt(parts[1], 10, 64)
			if err != nil {
				return 0, 0, err
			}
		}
	}

	if start < 0 || end >= fileSize || start > end {
		return 0, 0, fmt.Errorf("range out of bounds")
	}

	return start, end, nil
}
