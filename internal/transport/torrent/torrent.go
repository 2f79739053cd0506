// Package torrent hands magnet links and .torrent URLs to an external
// client: a Transmission daemon when one is configured, otherwise the
// operating system's default handler.
package torrent

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/kget-downloader/kget/internal/config"
	"github.com/kget-downloader/kget/internal/engine/events"
	"github.com/kget-downloader/kget/internal/transport"
	"github.com/kget-downloader/kget/internal/utils"
)

const (
	defaultPollInterval = time.Second
	defaultMaxPolls     = 1800 // 30 minutes at one poll per second
	stalledAfterPolls   = 5
)

// ErrStalled is returned when the daemon stops a torrent before it finishes.
var ErrStalled = errors.New("torrent stopped and not progressing")

// ErrTimeout is returned when polling gives up.
var ErrTimeout = errors.New("torrent did not finish in time")

// IsTorrentURL reports whether rawurl should go to this transport.
func IsTorrentURL(rawurl string) bool {
	if strings.HasPrefix(strings.ToLower(rawurl), "magnet:") {
		return true
	}
	u, err := url.Parse(rawurl)
	if err != nil {
		return false
	}
	return strings.EqualFold(filepath.Ext(u.Path), ".torrent")
}

// Transport delegates torrent downloads.
type Transport struct {
	Settings     config.TorrentSettings
	RPC          *RPCClient
	Open         func(target string) error
	PollInterval time.Duration
	MaxPolls     int
}

// New creates a torrent transport from the user's settings.
func New(settings config.TorrentSettings) *Transport {
	t := &Transport{
		Settings:     settings,
		Open:         openDefault,
		PollInterval: defaultPollInterval,
		MaxPolls:     defaultMaxPolls,
	}
	if settings.Enabled && settings.RPCURL != "" {
		t.RPC = NewRPCClient(settings.RPCURL, settings.Username, settings.Password)
	}
	return t
}

// Download adds req.URL to Transmission and follows it to completion, or
// opens it with the system handler when no daemon is reachable.
func (t *Transport) Download(ctx context.Context, req transport.Request) (*transport.Result, error) {
	reporter := events.OrNop(req.Reporter)

	dir := req.Output
	if dir == "" {
		dir = t.Settings.DownloadDir
	}

	if t.RPC == nil {
		return t.handOff(req.URL, reporter)
	}

	reporter.OnStatus(fmt.Sprintf("Adding torrent: %s", req.URL))
	added, err := t.RPC.AddTorrent(ctx, req.URL, AddOptions{DownloadDir: dir, PeerLimit: t.Settings.MaxPeers})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		reporter.OnStatus(fmt.Sprintf("Failed to reach Transmission RPC at %s, opening in the default torrent client: %v", t.RPC.URL, err))
		return t.handOff(req.URL, reporter)
	}

	info, err := t.follow(ctx, added.ID, reporter)
	if err != nil {
		return nil, err
	}

	reporter.OnStatus("Torrent completed successfully!")
	return &transport.Result{
		Path: filepath.Join(info.DownloadDir, info.Name),
		Size: info.SizeWhenDone,
	}, nil
}

func (t *Transport) handOff(target string, reporter events.Reporter) (*transport.Result, error) {
	if err := t.Open(target); err != nil {
		return nil, fmt.Errorf("open %s: %w", target, err)
	}
	reporter.OnStatus("Opened in the default torrent client")
	return &transport.Result{HandedOff: true}, nil
}

func (t *Transport) follow(ctx context.Context, id int64, reporter events.Reporter) (*TorrentInfo, error) {
	ticker := time.NewTicker(t.PollInterval)
	defer ticker.Stop()

	for polls := 0; ; polls++ {
		if polls >= t.MaxPolls {
			return nil, ErrTimeout
		}

		info, err := t.RPC.Get(ctx, id)
		if err != nil {
			return nil, err
		}

		if info.SizeWhenDone > 0 {
			done := int64(info.PercentDone * float64(info.SizeWhenDone))
			if info.PercentDone >= 1 {
				done = info.SizeWhenDone
			}
			reporter.OnProgress(done, info.SizeWhenDone)
		}
		if polls%2 == 0 && info.Name != "" {
			reporter.OnStatus(fmt.Sprintf("%s - %.2f%% - %s", info.Name, info.PercentDone*100, utils.FormatSpeed(float64(info.RateDownload))))
		}

		if info.Error != 0 {
			msg := info.ErrorString
			if msg == "" {
				msg = "unknown torrent error"
			}
			return nil, fmt.Errorf("torrent error (code %d): %s", info.Error, msg)
		}
		if info.PercentDone >= 1 {
			return info, nil
		}
		if info.Status == StatusStopped && polls > stalledAfterPolls {
			return nil, ErrStalled
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func openDefault(target string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("cmd", "/C", "start", "", target)
	case "darwin":
		cmd = exec.Command("open", target)
	default:
		cmd = exec.Command("xdg-open", target)
	}
	return cmd.Start()
}
