package testutil

import (
	"io"
	"net/http"
	"strconv"
	"testing"
)

func TestMockServer_BasicDownload(t *testing.T) {
	server := NewMockServerT(t,
		WithFileSize(1024*1024), // 1MB
		WithRangeSupport(true),
	)
	defer server.Close()

	resp, err := http.Get(server.URL())
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read: %v", err)
	}

	if int64(len(data)) != 1024*1024 {
		t.Errorf("Expected 1MB, got %d bytes", len(data))
	}

	stats := server.Stats()
	if stats.TotalRequests != 1 {
		t.Errorf("Expected 1 request, got %d", stats.TotalRequests)
	}
	if stats.FullRequests != 1 {
		t.Errorf("Expected 1 full request, got %d", stats.FullRequests)
	}
}

func TestMockServer_RangeRequest(t *testing.T) {
	server := NewMockServerT(t, WithFileSize(1024*1024), WithRandomData(true))
	defer server.Close()

	req, _ := http.NewRequest("GET", server.URL(), nil)
	req.Header.Set("Range", "bytes=1024-2047")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusPartialContent {
		t.Errorf("Expected 206, got %d", resp.StatusCode)
	}

	data, _ := io.ReadAll(resp.Body)
	if string(data) != string(server.Data()[1024:2048]) {
		t.Error("Range body does not match served data")
	}
	if got := server.RangesSeen(); len(got) != 1 || got[0] != "bytes=1024-2047" {
		t.Errorf("Unexpected ranges seen: %v", got)
	}
}

func TestMockServer_HeadAdvertisesCapability(t *testing.T) {
	for _, ranges := range []bool{true, false} {
		server := NewMockServerT(t, WithFileSize(5000), WithRangeSupport(ranges))

		resp, err := http.Head(server.URL())
		if err != nil {
			t.Fatalf("HEAD failed: %v", err)
		}
		_ = resp.Body.Close()

		if resp.Header.Get("Content-Length") != strconv.Itoa(5000) {
			t.Errorf("Content-Length = %q", resp.Header.Get("Content-Length"))
		}
		if got := resp.Header.Get("Accept-Ranges") == "bytes"; got != ranges {
			t.Errorf("Accept-Ranges advertised = %v, want %v", got, ranges)
		}
		if server.Stats().BodyRequests != 0 {
			t.Error("HEAD must not count as body request")
		}
		server.Close()
	}
}

func TestMockServer_FailFirstN(t *testing.T) {
	server := NewMockServerT(t, WithFileSize(100), WithFailFirstN(2, http.StatusServiceUnavailable))
	defer server.Close()

	for i, want := range []int{503, 503, 200} {
		resp, err := http.Get(server.URL())
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		if resp.StatusCode != want {
			t.Errorf("request %d: status %d, want %d", i, resp.StatusCode, want)
		}
	}
}

func TestMockServer_RangeNotSatisfiable(t *testing.T) {
	server := NewMockServerT(t, WithFileSize(100), WithRangeNotSatisfiable(1))
	defer server.Close()

	for i, want := range []int{416, 206} {
		req, _ := http.NewRequest("GET", server.URL(), nil)
		req.Header.Set("Range", "bytes=0-9")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != want {
			t.Errorf("request %d: status %d, want %d", i, resp.StatusCode, want)
		}
	}
}

func TestMockServer_FailAfterBytes(t *testing.T) {
	server := NewMockServerT(t, WithFileSize(100*1024), WithFailAfterBytesFor(10*1024, 1))
	defer server.Close()

	resp, err := http.Get(server.URL())
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	data, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err == nil {
		t.Error("Expected a read error from the truncated body")
	}
	if len(data) != 10*1024 {
		t.Errorf("Expected 10KB before the cut, got %d", len(data))
	}

	// Second request is served in full.
	resp, err = http.Get(server.URL())
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	data, err = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil || len(data) != 100*1024 {
		t.Errorf("Expected full body, got %d bytes, err %v", len(data), err)
	}
}

func TestMockServer_IgnoredRanges(t *testing.T) {
	server := NewMockServerT(t, WithFileSize(100), WithIgnoredRanges())
	defer server.Close()

	req, _ := http.NewRequest("GET", server.URL(), nil)
	req.Header.Set("Range", "bytes=10-19")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 for ignored range, got %d", resp.StatusCode)
	}
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		header     string
		start, end int64
		wantErr    bool
	}{
		{"bytes=0-499", 0, 499, false},
		{"bytes=500-", 500, 999, false},
		{"bytes=-100", 900, 999, false},
		{"bytes=900-1000", 0, 0, true},
		{"items=0-1", 0, 0, true},
	}
	for _, tt := range tests {
		start, end, err := parseRange(tt.header, 1000)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: err = %v", tt.header, err)
			continue
		}
		if !tt.wantErr && (start != tt.start || end != tt.end) {
			t.Errorf("%s: got %d-%d", tt.header, start, end)
		}
	}
}
