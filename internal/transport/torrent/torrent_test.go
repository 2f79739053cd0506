package torrent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kget-downloader/kget/internal/config"
	"github.com/kget-downloader/kget/internal/testutil"
	"github.com/kget-downloader/kget/internal/transport"
)

type statusRecorder struct {
	mu       sync.Mutex
	statuses []string
	progress [][2]int64
}

func (r *statusRecorder) OnProgress(done, total int64) {
	r.mu.Lock()
	r.progress = append(r.progress, [2]int64{done, total})
	r.mu.Unlock()
}

func (r *statusRecorder) OnStatus(text string) {
	r.mu.Lock()
	r.statuses = append(r.statuses, text)
	r.mu.Unlock()
}

// fakeTransmission serves torrent-add and a torrent-get that completes after
// the given number of polls. Every client must first pass the 409 handshake.
func fakeTransmission(t *testing.T, pollsUntilDone int, torrentErr int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var gets atomic.Int32

	srv := testutil.NewHTTPServerT(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(sessionHeader) != "sess-1" {
			w.Header().Set(sessionHeader, "sess-1")
			w.WriteHeader(http.StatusConflict)
			return
		}

		var req struct {
			Method    string         `json:"method"`
			Arguments map[string]any `json:"arguments"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		switch req.Method {
		case "torrent-add":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"result": "success",
				"arguments": map[string]any{
					"torrent-added": map[string]any{"id": 7, "name": "ubuntu.iso"},
				},
			})
		case "torrent-get":
			n := int(gets.Add(1))
			pct := float64(n) / float64(pollsUntilDone)
			if pct > 1 {
				pct = 1
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"result": "success",
				"arguments": map[string]any{
					"torrents": []map[string]any{{
						"id": 7, "name": "ubuntu.iso", "percentDone": pct,
						"sizeWhenDone": 1000, "status": StatusDownload,
						"error": torrentErr, "errorString": "tracker gone",
						"downloadDir": "/downloads",
					}},
				},
			})
		default:
			_ = json.NewEncoder(w).Encode(map[string]any{"result": "method not recognized"})
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &gets
}

func newTestTransport(rpcURL string) *Transport {
	tr := New(config.TorrentSettings{Enabled: true, RPCURL: rpcURL})
	tr.PollInterval = 5 * time.Millisecond
	tr.Open = func(string) error { return errors.New("opener must not be used") }
	return tr
}

func TestIsTorrentURL(t *testing.T) {
	assert.True(t, IsTorrentURL("magnet:?xt=urn:btih:abc"))
	assert.True(t, IsTorrentURL("MAGNET:?xt=urn:btih:abc"))
	assert.True(t, IsTorrentURL("https://example.com/files/distro.torrent"))
	assert.True(t, IsTorrentURL("https://example.com/files/distro.TORRENT?x=1"))
	assert.False(t, IsTorrentURL("https://example.com/files/distro.iso"))
	assert.False(t, IsTorrentURL("ftp://example.com/torrent"))
}

func TestRPCClient_SessionHandshake(t *testing.T) {
	srv, _ := fakeTransmission(t, 1, 0)
	c := NewRPCClient(srv.URL, "", "")

	info, err := c.AddTorrent(context.Background(), "magnet:?xt=urn:btih:abc", AddOptions{DownloadDir: "/downloads"})
	require.NoError(t, err)
	assert.Equal(t, int64(7), info.ID)
	assert.Equal(t, "sess-1", c.session())
}

func TestRPCClient_BasicAuth(t *testing.T) {
	srv := testutil.NewHTTPServerT(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin" || pass != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"result":"success","arguments":{"torrent-duplicate":{"id":3}}}`))
	}))
	defer srv.Close()

	info, err := NewRPCClient(srv.URL, "admin", "pw").AddTorrent(context.Background(), "magnet:?x", AddOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), info.ID)

	_, err = NewRPCClient(srv.URL, "admin", "wrong").AddTorrent(context.Background(), "magnet:?x", AddOptions{})
	assert.Error(t, err)
}

func TestDownload_FollowsToCompletion(t *testing.T) {
	srv, gets := fakeTransmission(t, 3, 0)
	tr := newTestTransport(srv.URL)
	rec := &statusRecorder{}

	res, err := tr.Download(context.Background(), transport.Request{URL: "magnet:?xt=urn:btih:abc", Reporter: rec})
	require.NoError(t, err)

	assert.False(t, res.HandedOff)
	assert.Equal(t, "/downloads/ubuntu.iso", res.Path)
	assert.Equal(t, int64(1000), res.Size)
	assert.Equal(t, int32(3), gets.Load())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.NotEmpty(t, rec.progress)
	assert.Equal(t, [2]int64{1000, 1000}, rec.progress[len(rec.progress)-1])
}

func TestDownload_TorrentError(t *testing.T) {
	srv, _ := fakeTransmission(t, 10, 3)
	tr := newTestTransport(srv.URL)

	_, err := tr.Download(context.Background(), transport.Request{URL: "magnet:?xt=urn:btih:abc"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tracker gone")
}

func TestDownload_Timeout(t *testing.T) {
	srv, _ := fakeTransmission(t, 100, 0)
	tr := newTestTransport(srv.URL)
	tr.MaxPolls = 2

	_, err := tr.Download(context.Background(), transport.Request{URL: "magnet:?xt=urn:btih:abc"})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestDownload_FallsBackToOpener(t *testing.T) {
	srv := testutil.NewHTTPServerT(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tr := New(config.TorrentSettings{Enabled: true, RPCURL: srv.URL})
	var opened string
	tr.Open = func(target string) error {
		opened = target
		return nil
	}

	res, err := tr.Download(context.Background(), transport.Request{URL: "magnet:?xt=urn:btih:abc"})
	require.NoError(t, err)
	assert.True(t, res.HandedOff)
	assert.Equal(t, "magnet:?xt=urn:btih:abc", opened)
}

func TestDownload_DisabledUsesOpener(t *testing.T) {
	tr := New(config.TorrentSettings{Enabled: false})
	assert.Nil(t, tr.RPC)

	var opened string
	tr.Open = func(target string) error {
		opened = target
		return nil
	}

	res, err := tr.Download(context.Background(), transport.Request{URL: "https://example.com/a.torrent"})
	require.NoError(t, err)
	assert.True(t, res.HandedOff)
	assert.Equal(t, "https://example.com/a.torrent", opened)
}

func TestDownload_SendsPeerLimit(t *testing.T) {
	var mu sync.Mutex
	var addArgs map[string]any

	srv := testutil.NewHTTPServerT(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method    string         `json:"method"`
			Arguments map[string]any `json:"arguments"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		torrent := map[string]any{
			"id": 3, "name": "distro.iso", "percentDone": 1.0, "sizeWhenDone": 10,
			"status": StatusSeed, "downloadDir": "/srv",
		}
		switch req.Method {
		case "torrent-add":
			mu.Lock()
			addArgs = req.Arguments
			mu.Unlock()
			_ = json.NewEncoder(w).Encode(map[string]any{
				"result":    "success",
				"arguments": map[string]any{"torrent-added": torrent},
			})
		default:
			_ = json.NewEncoder(w).Encode(map[string]any{
				"result":    "success",
				"arguments": map[string]any{"torrents": []map[string]any{torrent}},
			})
		}
	}))
	defer srv.Close()

	tr := New(config.TorrentSettings{Enabled: true, RPCURL: srv.URL, MaxPeers: 80})
	tr.PollInterval = 5 * time.Millisecond
	tr.Open = func(string) error { return errors.New("opener must not be used") }

	_, err := tr.Download(context.Background(), transport.Request{URL: "magnet:?xt=urn:btih:abc", Output: "/srv"})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, addArgs)
	assert.Equal(t, float64(80), addArgs["peer-limit"])
	assert.Equal(t, "/srv", addArgs["download-dir"])
}

func TestRPCClient_OmitsUnsetPeerLimit(t *testing.T) {
	var sawPeerLimit atomic.Bool
	srv := testutil.NewHTTPServerT(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Arguments map[string]any `json:"arguments"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		_, ok := req.Arguments["peer-limit"]
		sawPeerLimit.Store(ok)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"result":    "success",
			"arguments": map[string]any{"torrent-duplicate": map[string]any{"id": 1}},
		})
	}))
	defer srv.Close()

	_, err := NewRPCClient(srv.URL, "", "").AddTorrent(context.Background(), "magnet:?x", AddOptions{})
	require.NoError(t, err)
	assert.False(t, sawPeerLimit.Load())
}
