package single

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/kget-downloader/kget/internal/engine/types"
	"github.com/kget-downloader/kget/internal/utils"
)

// SingleDownloader handles single-stream downloads for servers that don't support range requests.
// NOTE: Resume is NOT supported: without ranges the only way to continue would be
// to fetch the whole body again and append it, which corrupts the file.
type SingleDownloader struct {
	ID      string
	Client  *http.Client
	State   *types.ProgressState // Shared state for progress reporting
	Runtime *types.RuntimeConfig
	Limiter *rate.Limiter // Optional bandwidth cap
}

// NewSingleDownloader creates a new single-stream downloader with all required parameters
func NewSingleDownloader(id string, client *http.Client, state *types.ProgressState, runtime *types.RuntimeConfig) *SingleDownloader {
	return &SingleDownloader{
		ID:      id,
		Client:  client,
		State:   state,
		Runtime: runtime,
	}
}

// Download streams the whole body into out starting at offset 0. A partial
// file (target.ResumeOffset > 0) fails with ResumeUnsupportedError before any
// request is sent. The body must be exactly total bytes long.
func (d *SingleDownloader) Download(ctx context.Context, target types.Target, total int64, out io.WriterAt) error {
	if target.ResumeOffset > 0 {
		return &types.ResumeUnsupportedError{Path: target.DestPath, ResumeOffset: target.ResumeOffset}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.URL, nil)
	if err != nil {
		return err
	}

	resp, err := d.Client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			utils.Debug("Error closing response body: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return &types.StatusError{StatusCode: resp.StatusCode}
	}

	start := time.Now()
	buf := make([]byte, d.Runtime.GetBufferSize())
	var offset int64

	for {
		nr, readErr := resp.Body.Read(buf)
		if nr > 0 {
			if offset+int64(nr) > total {
				return &types.SizeMismatchError{Path: target.DestPath, Expected: total, Actual: offset + int64(nr)}
			}
			if d.Limiter != nil {
				if err := d.Limiter.WaitN(ctx, nr); err != nil {
					return err
				}
			}
			if _, err := out.WriteAt(buf[:nr], offset); err != nil {
				return &types.IoError{Op: "write", Path: target.DestPath, Err: err}
			}
			offset += int64(nr)
			if d.State != nil {
				d.State.Add(int64(nr))
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read error: %w", readErr)
		}
	}

	if offset != total {
		return &types.SizeMismatchError{Path: target.DestPath, Expected: total, Actual: offset}
	}

	elapsed := time.Since(start)
	utils.Debug("Downloaded %s in %s (%s)",
		target.DestPath,
		elapsed.Round(time.Millisecond),
		utils.FormatSpeed(float64(offset)/elapsed.Seconds()),
	)
	return nil
}
