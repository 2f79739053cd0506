// Package ftp downloads ftp:// URLs, resuming partial files with REST.
package ftp

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/kget-downloader/kget/internal/config"
	"github.com/kget-downloader/kget/internal/engine/events"
	"github.com/kget-downloader/kget/internal/engine/sink"
	"github.com/kget-downloader/kget/internal/engine/types"
	"github.com/kget-downloader/kget/internal/transport"
	"github.com/kget-downloader/kget/internal/utils"
)

const (
	defaultPort = "21"
	anonymous   = "anonymous"
)

// Transport fetches files from FTP servers.
type Transport struct {
	Timeout time.Duration
}

// New creates an FTP transport from the user's settings.
func New(settings config.FTPSettings) *Transport {
	timeout := time.Duration(settings.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Transport{Timeout: timeout}
}

// credentials falls back to anonymous login, as browsers and wget do.
func credentials(ep *transport.Endpoint) (string, string) {
	user, pass := ep.User, ep.Password
	if user == "" {
		user = anonymous
	}
	if pass == "" && user == anonymous {
		pass = anonymous
	}
	return user, pass
}

// Download fetches req.URL, continuing an existing partial file.
func (t *Transport) Download(ctx context.Context, req transport.Request) (*transport.Result, error) {
	ep, err := transport.ParseEndpoint(req.URL, defaultPort)
	if err != nil {
		return nil, err
	}
	reporter := events.OrNop(req.Reporter)
	log := utils.Logger("ftp")

	reporter.OnStatus(fmt.Sprintf("Connecting to %s", ep.Addr))
	conn, err := ftp.Dial(ep.Addr, ftp.DialWithContext(ctx), ftp.DialWithTimeout(t.Timeout))
	if err != nil {
		return nil, fmt.Errorf("ftp dial %s: %w", ep.Addr, err)
	}
	defer func() {
		if err := conn.Quit(); err != nil {
			log.Debug().Err(err).Msg("quit failed")
		}
	}()

	user, pass := credentials(ep)
	if err := conn.Login(user, pass); err != nil {
		return nil, fmt.Errorf("ftp login as %s: %w", user, err)
	}

	total, err := conn.FileSize(ep.Path)
	if err != nil {
		return nil, &types.ProbeError{URL: req.URL, Err: err}
	}

	dest := utils.ResolveDestination(req.Output, utils.SanitizeFilename(path.Base(ep.Path)))
	resume, err := sink.ExistingSize(dest, total)
	if err != nil {
		return nil, err
	}

	if starter, ok := reporter.(events.StartReporter); ok {
		starter.OnStart(events.DownloadStartedMsg{
			DownloadID: req.ID,
			URL:        req.URL,
			Filename:   path.Base(dest),
			Total:      total,
			DestPath:   dest,
			Resumed:    resume,
		})
	}

	out, err := sink.OpenOrCreate(dest, total)
	if err != nil {
		return nil, err
	}
	// valid is how much of the file is known good. Anything past it, including
	// the preallocated tail, is cut off unless the transfer completes.
	valid, complete := resume, false
	defer func() {
		if complete {
			_ = out.Close()
			return
		}
		if err := out.Abandon(valid); err != nil {
			log.Debug().Err(err).Int64("keep", valid).Msg("discarding partial file")
		}
	}()

	state := types.NewProgressState(req.ID, total, reporter)
	state.SetBase(resume)

	if resume < total {
		log.Debug().Str("path", ep.Path).Int64("offset", resume).Int64("total", total).Msg("retrieving")
		resp, err := conn.RetrFrom(ep.Path, uint64(resume))
		if err != nil {
			return nil, fmt.Errorf("ftp retr %s: %w", ep.Path, err)
		}

		n, err := transport.Stream(ctx, resp, out, dest, resume, total, state, req.Limiter)
		if closeErr := resp.Close(); closeErr != nil && err == nil {
			log.Debug().Err(closeErr).Msg("closing data connection")
		}
		if err != nil {
			valid = resume + n
			return nil, err
		}
	}

	if err := out.Sync(); err != nil {
		return nil, err
	}
	complete = true
	state.Finish()
	return &transport.Result{Path: dest, Size: total}, nil
}
