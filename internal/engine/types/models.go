package types

import "fmt"

// Target describes one download invocation. It is built once and never mutated.
type Target struct {
	URL          string
	DestPath     string
	ResumeOffset int64 // Bytes already present on disk when the download started
}

// Capability is what the prober learned about the remote resource.
type Capability struct {
	TotalSize      int64
	SupportsRanges bool
	Filename       string
	ContentType    string
}

// Chunk is a half-open byte range [Start, End) of the target file.
type Chunk struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Len returns the number of bytes covered by the chunk.
func (c Chunk) Len() int64 {
	return c.End - c.Start
}

// HeaderValue renders the chunk as an HTTP Range header value (inclusive end).
func (c Chunk) HeaderValue() string {
	return fmt.Sprintf("bytes=%d-%d", c.Start, c.End-1)
}

func (c Chunk) String() string {
	return fmt.Sprintf("[%d, %d)", c.Start, c.End)
}

// Phase is a state of the top-level download state machine.
type Phase int

const (
	PhaseProbing Phase = iota
	PhasePlanning
	PhaseParallelFetch
	PhaseSingleStreamFetch
	PhaseVerifying
	PhaseDone
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseProbing:
		return "probing"
	case PhasePlanning:
		return "planning"
	case PhaseParallelFetch:
		return "parallel-fetch"
	case PhaseSingleStreamFetch:
		return "single-stream-fetch"
	case PhaseVerifying:
		return "verifying"
	case PhaseDone:
		return "done"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DownloadEntry represents a download in the history
type DownloadEntry struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	DestPath    string `json:"dest_path"`
	Status      string `json:"status"` // "completed", "error"
	TotalSize   int64  `json:"total_size"`
	Downloaded  int64  `json:"downloaded"`
	SHA256      string `json:"sha256,omitempty"`
	Error       string `json:"error,omitempty"`
	CompletedAt int64  `json:"completed_at"` // Unix timestamp
	TimeTaken   int64  `json:"time_taken"`   // Milliseconds
}
