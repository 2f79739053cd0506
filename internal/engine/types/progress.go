package types

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// ProgressSink receives throttled progress snapshots.
type ProgressSink interface {
	OnProgress(done, total int64)
}

// ProgressState is shared by every worker of one download. Downloaded only ever
// grows; snapshots handed to the sink are monotonic and the final one is
// delivered exactly once.
type ProgressState struct {
	ID         string
	Downloaded atomic.Int64 // Bytes transferred by this invocation
	Base       int64        // Bytes already on disk before this invocation
	Total      int64
	StartTime  time.Time

	sink    ProgressSink
	limiter *rate.Limiter

	mu       sync.Mutex
	lastSent int64
	finished bool
}

// NewProgressState creates the progress state of one download. sink may be nil.
func NewProgressState(id string, total int64, sink ProgressSink) *ProgressState {
	return &ProgressState{
		ID:        id,
		Total:     total,
		StartTime: time.Now(),
		sink:      sink,
		limiter:   rate.NewLimiter(rate.Limit(ProgressEventsPerSecond), 1),
		lastSent:  -1,
	}
}

// SetBase records the resume offset so snapshots are reported against the whole file.
func (s *ProgressState) SetBase(base int64) {
	s.mu.Lock()
	s.Base = base
	s.mu.Unlock()
}

// Add records n freshly written bytes and returns the new counter value.
func (s *ProgressState) Add(n int64) int64 {
	v := s.Downloaded.Add(n)
	if s.sink != nil && s.limiter.Allow() {
		s.emit(false)
	}
	return v
}

// Snapshot returns the bytes present on disk so far and the total.
func (s *ProgressState) Snapshot() (done, total int64) {
	s.mu.Lock()
	base := s.Base
	s.mu.Unlock()
	return base + s.Downloaded.Load(), s.Total
}

// Finish delivers the final snapshot. Later calls are no-ops.
func (s *ProgressState) Finish() {
	if s.sink == nil {
		return
	}
	s.emit(true)
}

// Elapsed returns time since the state was created.
func (s *ProgressState) Elapsed() time.Duration {
	return time.Since(s.StartTime)
}

func (s *ProgressState) emit(final bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return
	}
	done := s.Base + s.Downloaded.Load()
	if !final {
		// The completed value is reserved for Finish.
		if done >= s.Total || done <= s.lastSent {
			return
		}
	} else {
		s.finished = true
	}
	s.lastSent = done
	s.sink.OnProgress(done, s.Total)
}
