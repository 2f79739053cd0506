package concurrent

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kget-downloader/kget/internal/engine/types"
	"github.com/kget-downloader/kget/internal/utils"
)

// ConcurrentDownloader fetches planned chunks over a bounded pool of workers,
// each writing its ranges directly into the shared sink.
type ConcurrentDownloader struct {
	ID      string
	Client  *http.Client
	Target  types.Target
	Sink    io.WriterAt
	State   *types.ProgressState
	Runtime *types.RuntimeConfig
	Limiter *rate.Limiter // Optional bandwidth cap shared by all workers

	chunks  []types.Chunk
	cursors []atomic.Int64 // Next offset to write, per chunk
}

// NewConcurrentDownloader creates a new concurrent downloader with all required parameters
func NewConcurrentDownloader(id string, client *http.Client, target types.Target, sink io.WriterAt, state *types.ProgressState, runtime *types.RuntimeConfig) *ConcurrentDownloader {
	return &ConcurrentDownloader{
		ID:      id,
		Client:  client,
		Target:  target,
		Sink:    sink,
		State:   state,
		Runtime: runtime,
	}
}

// Download fetches every chunk and returns the first chunk failure. Once a
// failure is observed no further chunk is claimed and in-flight requests are
// cancelled.
func (d *ConcurrentDownloader) Download(ctx context.Context, chunks []types.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	utils.Debug("ConcurrentDownloader.Download: %s -> %s (%d chunks from %d)",
		d.Target.URL, d.Target.DestPath, len(chunks), d.Target.ResumeOffset)

	if d.State == nil {
		d.State = types.NewProgressState(d.ID, chunks[len(chunks)-1].End, nil)
	}

	d.chunks = chunks
	d.cursors = make([]atomic.Int64, len(chunks))
	for i, c := range chunks {
		d.cursors[i].Store(c.Start)
	}

	numWorkers := d.Runtime.GetWorkers()
	if numWorkers > len(chunks) {
		numWorkers = len(chunks)
	}

	queue := NewTaskQueue(chunks)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < numWorkers; i++ {
		workerID := i
		g.Go(func() error {
			return d.worker(gctx, workerID, queue)
		})
	}

	if err := g.Wait(); err != nil {
		if left := queue.Len(); left > 0 {
			utils.Debug("Download %s aborted with %d chunks never started", d.ID, left)
		}
		return err
	}

	expected := d.State.Total - d.Target.ResumeOffset
	if got := d.State.Downloaded.Load(); got != expected {
		return fmt.Errorf("%w: wrote %d of %d bytes", types.ErrIncompleteTransfer, got, expected)
	}
	return nil
}

// CompletedPrefix returns the end of the contiguous run of written bytes that
// starts at the resume offset. Everything below it is safe to resume from.
func (d *ConcurrentDownloader) CompletedPrefix() int64 {
	if len(d.chunks) == 0 {
		return d.Target.ResumeOffset
	}
	prefix := d.chunks[0].Start
	for i, c := range d.chunks {
		cur := d.cursors[i].Load()
		if cur < c.End {
			return cur
		}
		prefix = c.End
	}
	return prefix
}

// worker claims chunks until the queue is empty or the group is cancelled.
func (d *ConcurrentDownloader) worker(ctx context.Context, id int, queue *TaskQueue) error {
	buf := make([]byte, d.Runtime.GetBufferSize())

	utils.Debug("Worker %d started", id)
	defer utils.Debug("Worker %d finished", id)

	for {
		// No new chunk starts after a failure.
		if err := ctx.Err(); err != nil {
			return err
		}

		task, ok := queue.Pop()
		if !ok {
			return nil
		}

		if err := d.fetchChunk(ctx, task, buf); err != nil {
			return err
		}
	}
}
