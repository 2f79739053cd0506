package types

import (
	"errors"
	"fmt"
)

var (
	// ErrRangeNotSatisfiable is the cause of a chunk whose final attempt got HTTP 416.
	ErrRangeNotSatisfiable = errors.New("range not satisfiable")

	// ErrDestinationBusy is returned when another kget process holds the destination.
	ErrDestinationBusy = errors.New("destination is being written by another download")

	// ErrIncompleteTransfer is returned when workers finished without covering every byte.
	ErrIncompleteTransfer = errors.New("transfer finished with missing bytes")

	// ErrRangeIgnored is returned when a server answers a range request with the whole body.
	ErrRangeIgnored = errors.New("server ignored range request")
)

// ProbeError means the remote size could not be determined.
type ProbeError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *ProbeError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("probe %s: HTTP %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("probe %s: %v", e.URL, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// ResumeUnsupportedError means a partial file exists but the server cannot serve ranges.
type ResumeUnsupportedError struct {
	Path         string
	ResumeOffset int64
}

func (e *ResumeUnsupportedError) Error() string {
	return fmt.Sprintf("cannot resume %s at byte %d: server does not support range requests", e.Path, e.ResumeOffset)
}

// SizeMismatchError means a file on disk does not have the size the server reported.
type SizeMismatchError struct {
	Path     string
	Expected int64
	Actual   int64
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("size mismatch for %s: expected %d bytes, got %d bytes", e.Path, e.Expected, e.Actual)
}

// ChunkError is a chunk that exhausted its retries or failed fatally.
type ChunkError struct {
	Range    Chunk
	Attempts int
	Cause    error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %s failed after %d attempt(s): %v", e.Range, e.Attempts, e.Cause)
}

func (e *ChunkError) Unwrap() error { return e.Cause }

// IoError is a local disk failure. It is never retried.
type IoError struct {
	Op   string
	Path string
	Err  error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IoError) Unwrap() error { return e.Err }

// ChecksumMismatchError means the SHA-256 of the file differs from the expected one.
type ChecksumMismatchError struct {
	Path     string
	Expected string
	Actual   string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: expected %s, got %s", e.Path, e.Expected, e.Actual)
}

// StatusError is an unexpected HTTP status on a body request.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.StatusCode)
}
