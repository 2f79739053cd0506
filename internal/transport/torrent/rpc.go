package torrent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
)

const sessionHeader = "X-Transmission-Session-Id"

// Torrent status codes reported by Transmission.
const (
	StatusStopped      = 0
	StatusCheckWait    = 1
	StatusCheck        = 2
	StatusDownloadWait = 3
	StatusDownload     = 4
	StatusSeedWait     = 5
	StatusSeed         = 6
)

// RPCClient talks to a Transmission daemon over its JSON RPC endpoint.
type RPCClient struct {
	URL      string
	Username string
	Password string
	HTTP     *http.Client

	mu        sync.Mutex
	sessionID string
}

// TorrentInfo is the subset of torrent-get fields used for progress.
type TorrentInfo struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	PercentDone  float64 `json:"percentDone"`
	SizeWhenDone int64   `json:"sizeWhenDone"`
	RateDownload int64   `json:"rateDownload"`
	Status       int     `json:"status"`
	Error        int     `json:"error"`
	ErrorString  string  `json:"errorString"`
	DownloadDir  string  `json:"downloadDir"`
}

type rpcRequest struct {
	Method    string `json:"method"`
	Arguments any    `json:"arguments,omitempty"`
}

type rpcResponse struct {
	Result    string          `json:"result"`
	Arguments json.RawMessage `json:"arguments"`
}

// NewRPCClient creates a client for the daemon at url.
func NewRPCClient(url, username, password string) *RPCClient {
	return &RPCClient{URL: url, Username: username, Password: password, HTTP: http.DefaultClient}
}

func (c *RPCClient) session() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *RPCClient) setSession(id string) {
	c.mu.Lock()
	c.sessionID = id
	c.mu.Unlock()
}

// call performs one RPC. A 409 carries a fresh session id; the request is
// repeated once with it.
func (c *RPCClient) call(ctx context.Context, method string, args any, out any) error {
	body, err := json.Marshal(rpcRequest{Method: method, Arguments: args})
	if err != nil {
		return err
	}

	for attempt := 0; attempt < 2; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if id := c.session(); id != "" {
			req.Header.Set(sessionHeader, id)
		}
		if c.Username != "" {
			req.SetBasicAuth(c.Username, c.Password)
		}

		resp, err := c.HTTP.Do(req)
		if err != nil {
			return fmt.Errorf("transmission rpc %s: %w", method, err)
		}
		data, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		if resp.StatusCode == http.StatusConflict {
			c.setSession(resp.Header.Get(sessionHeader))
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("transmission rpc %s: HTTP %d", method, resp.StatusCode)
		}
		if readErr != nil {
			return fmt.Errorf("transmission rpc %s: %w", method, readErr)
		}

		var r rpcResponse
		if err := json.Unmarshal(data, &r); err != nil {
			return fmt.Errorf("transmission rpc %s: bad response: %w", method, err)
		}
		if r.Result != "success" {
			return fmt.Errorf("transmission rpc %s: %s", method, r.Result)
		}
		if out != nil && len(r.Arguments) > 0 {
			return json.Unmarshal(r.Arguments, out)
		}
		return nil
	}
	return fmt.Errorf("transmission rpc %s: session id rejected", method)
}

// AddOptions are the optional torrent-add arguments.
type AddOptions struct {
	DownloadDir string
	PeerLimit   int // Maximum peers for this torrent; 0 leaves the daemon default
}

// AddTorrent adds a magnet link or .torrent URL. An already known torrent
// is not an error; its id is returned.
func (c *RPCClient) AddTorrent(ctx context.Context, filename string, opts AddOptions) (*TorrentInfo, error) {
	args := map[string]any{
		"filename": filename,
		"paused":   false,
	}
	if opts.DownloadDir != "" {
		args["download-dir"] = opts.DownloadDir
	}
	if opts.PeerLimit > 0 {
		args["peer-limit"] = opts.PeerLimit
	}

	var out struct {
		Added     *TorrentInfo `json:"torrent-added"`
		Duplicate *TorrentInfo `json:"torrent-duplicate"`
	}
	if err := c.call(ctx, "torrent-add", args, &out); err != nil {
		return nil, err
	}
	switch {
	case out.Added != nil:
		return out.Added, nil
	case out.Duplicate != nil:
		return out.Duplicate, nil
	default:
		return nil, errors.New("transmission rpc torrent-add: response has no torrent")
	}
}

// Get returns the current state of torrent id.
func (c *RPCClient) Get(ctx context.Context, id int64) (*TorrentInfo, error) {
	args := map[string]any{
		"ids": []int64{id},
		"fields": []string{
			"id", "name", "percentDone", "sizeWhenDone", "rateDownload",
			"status", "error", "errorString", "downloadDir",
		},
	}
	var out struct {
		Torrents []TorrentInfo `json:"torrents"`
	}
	if err := c.call(ctx, "torrent-get", args, &out); err != nil {
		return nil, err
	}
	if len(out.Torrents) == 0 {
		return nil, fmt.Errorf("torrent %d not found", id)
	}
	return &out.Torrents[0], nil
}
