package events

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/kget-downloader/kget/internal/utils"
)

// Reporter receives progress and status updates of a download.
// Implementations must be safe for concurrent use.
type Reporter interface {
	OnProgress(done, total int64)
	OnStatus(text string)
}

// StartReporter is implemented by reporters that want the probe result.
type StartReporter interface {
	OnStart(msg DownloadStartedMsg)
}

// Nop discards every update.
type Nop struct{}

func (Nop) OnProgress(int64, int64) {}
func (Nop) OnStatus(string)         {}

// OrNop returns r, or Nop when r is nil.
func OrNop(r Reporter) Reporter {
	if r == nil {
		return Nop{}
	}
	return r
}

// ChannelReporter turns updates into messages on a channel, for the TUI.
// Intermediate progress is dropped when the consumer falls behind; the
// completion snapshot and status lines are always delivered.
type ChannelReporter struct {
	ID string
	ch chan any

	mu        sync.Mutex
	start     time.Time
	lastTime  time.Time
	lastBytes int64
	speed     float64
}

// NewChannelReporter creates a reporter with a buffered channel.
func NewChannelReporter(id string, buffer int) *ChannelReporter {
	now := time.Now()
	return &ChannelReporter{
		ID:       id,
		ch:       make(chan any, buffer),
		start:    now,
		lastTime: now,
	}
}

// Messages returns the channel carrying ProgressMsg, StatusMsg and the lifecycle messages.
func (r *ChannelReporter) Messages() <-chan any {
	return r.ch
}

func (r *ChannelReporter) OnStart(msg DownloadStartedMsg) {
	msg.DownloadID = r.ID
	r.mu.Lock()
	r.lastBytes = msg.Resumed
	r.lastTime = time.Now()
	r.mu.Unlock()
	r.ch <- msg
}

func (r *ChannelReporter) OnProgress(done, total int64) {
	r.mu.Lock()
	now := time.Now()
	if dt := now.Sub(r.lastTime).Seconds(); dt > 0 && done >= r.lastBytes {
		instant := float64(done-r.lastBytes) / dt
		if r.speed == 0 {
			r.speed = instant
		} else {
			// Exponential moving average keeps the readout steady.
			r.speed = 0.3*instant + 0.7*r.speed
		}
	}
	r.lastTime = now
	r.lastBytes = done
	msg := ProgressMsg{
		DownloadID: r.ID,
		Downloaded: done,
		Total:      total,
		Speed:      r.speed,
		Elapsed:    now.Sub(r.start),
	}
	r.mu.Unlock()

	if done >= total {
		r.ch <- msg
		return
	}
	select {
	case r.ch <- msg:
	default:
		utils.Debug("progress update dropped for %s at %d/%d", r.ID, done, total)
	}
}

func (r *ChannelReporter) OnStatus(text string) {
	r.ch <- StatusMsg{DownloadID: r.ID, Text: text}
}

// Complete publishes the final message and closes the channel.
func (r *ChannelReporter) Complete(filename string, total int64, sha string) {
	r.ch <- DownloadCompleteMsg{
		DownloadID: r.ID,
		Filename:   filename,
		Elapsed:    time.Since(r.start),
		Total:      total,
		SHA256:     sha,
	}
	close(r.ch)
}

// Fail publishes the error and closes the channel.
func (r *ChannelReporter) Fail(filename string, err error) {
	r.ch <- DownloadErrorMsg{DownloadID: r.ID, Filename: filename, Err: err}
	close(r.ch)
}

// LineReporter writes plain text lines, for non-interactive output.
type LineReporter struct {
	mu       sync.Mutex
	w        io.Writer
	interval time.Duration
	last     time.Time
}

// NewLineReporter prints status lines to w and at most one progress line per interval.
func NewLineReporter(w io.Writer, interval time.Duration) *LineReporter {
	return &LineReporter{w: w, interval: interval}
}

func (l *LineReporter) OnProgress(done, total int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if done < total && now.Sub(l.last) < l.interval {
		return
	}
	l.last = now

	pct := 100.0
	if total > 0 {
		pct = float64(done) * 100 / float64(total)
	}
	fmt.Fprintf(l.w, "%s / %s (%.1f%%)\n",
		utils.ConvertBytesToHumanReadable(done),
		utils.ConvertBytesToHumanReadable(total),
		pct)
}

func (l *LineReporter) OnStatus(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, text)
}
