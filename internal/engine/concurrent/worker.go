package concurrent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kget-downloader/kget/internal/engine/types"
	"github.com/kget-downloader/kget/internal/utils"
)

// fetchChunk downloads one chunk, retrying transient failures with linear
// backoff. A retry resumes where the previous attempt stopped writing.
func (d *ConcurrentDownloader) fetchChunk(ctx context.Context, task Task, buf []byte) error {
	maxAttempts := d.Runtime.GetMaxTaskRetries()
	baseDelay := d.Runtime.GetRetryBaseDelay()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			delay := baseDelay * time.Duration(attempt-1)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			utils.Debug("Chunk %s: retry %d after %v", task.Chunk, attempt, delay)
		}

		taskStart := time.Now()
		retryable, err := d.downloadRange(ctx, task, buf)
		if err == nil {
			utils.Debug("Chunk %s done in %v", task.Chunk, time.Since(taskStart))
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		lastErr = err
		utils.Debug("Chunk %s attempt %d failed: %v", task.Chunk, attempt, err)
		if !retryable {
			return &types.ChunkError{Range: task.Chunk, Attempts: attempt, Cause: err}
		}
	}

	return &types.ChunkError{Range: task.Chunk, Attempts: maxAttempts, Cause: lastErr}
}

// downloadRange performs one attempt for the unwritten tail of a chunk. It
// reports whether a failure may be retried.
func (d *ConcurrentDownloader) downloadRange(ctx context.Context, task Task, buf []byte) (bool, error) {
	cursor := &d.cursors[task.Index]
	start := cursor.Load()
	end := task.Chunk.End
	if start >= end {
		return false, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.Target.URL, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Range", types.Chunk{Start: start, End: end}.HeaderValue())

	resp, err := d.Client.Do(req)
	if err != nil {
		return true, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch code := resp.StatusCode; {
	case code == http.StatusPartialContent:
	case code == http.StatusOK:
		// Writing a full body at a chunk offset would corrupt the file.
		return false, types.ErrRangeIgnored
	case code == http.StatusRequestedRangeNotSatisfiable:
		return true, types.ErrRangeNotSatisfiable
	case code == http.StatusTooManyRequests || code >= http.StatusInternalServerError:
		return true, &types.StatusError{StatusCode: code}
	default:
		return false, &types.StatusError{StatusCode: code}
	}

	if cr := resp.Header.Get("Content-Range"); cr != "" {
		var gotStart int64
		if _, err := fmt.Sscanf(cr, "bytes %d-", &gotStart); err != nil || gotStart != start {
			return false, fmt.Errorf("%w: asked for offset %d, got Content-Range %q", types.ErrRangeIgnored, start, cr)
		}
	}

	offset := start
	for offset < end {
		want := int64(len(buf))
		if remaining := end - offset; remaining < want {
			want = remaining
		}

		n, readErr := io.ReadFull(resp.Body, buf[:want])
		if n > 0 {
			if d.Limiter != nil {
				if err := d.Limiter.WaitN(ctx, n); err != nil {
					return false, err
				}
			}
			if _, err := d.Sink.WriteAt(buf[:n], offset); err != nil {
				return false, &types.IoError{Op: "write", Path: d.Target.DestPath, Err: err}
			}
			offset += int64(n)
			cursor.Store(offset)
			if d.State != nil {
				d.State.Add(int64(n))
			}
		}

		if readErr != nil {
			if offset >= end {
				break
			}
			if errors.Is(readErr, io.EOF) {
				readErr = io.ErrUnexpectedEOF
			}
			return true, fmt.Errorf("read error: %w", readErr)
		}
	}

	return false, nil
}
