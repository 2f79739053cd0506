// Package sink provides the preallocated destination file that parallel
// workers write into at disjoint offsets.
package sink

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/kget-downloader/kget/internal/config"
	"github.com/kget-downloader/kget/internal/engine/types"
	"github.com/kget-downloader/kget/internal/utils"
)

// File is the destination of one download. WriteAt is safe for concurrent
// callers as long as their ranges do not overlap.
type File struct {
	path string
	f    *os.File
	lock *flock.Flock
}

// OpenOrCreate opens path read-write, creating it if absent, and sizes it to
// exactly total bytes before returning. An existing prefix is kept as-is.
// Another kget process writing the same destination yields ErrDestinationBusy.
func OpenOrCreate(path string, total int64) (*File, error) {
	lock, err := acquireLock(path)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		releaseLock(lock)
		return nil, &types.IoError{Op: "open", Path: path, Err: err}
	}

	if err := f.Truncate(total); err != nil {
		_ = f.Close()
		releaseLock(lock)
		return nil, &types.IoError{Op: "preallocate", Path: path, Err: err}
	}

	utils.Debug("Sink: opened %s preallocated to %d bytes", path, total)
	return &File{path: path, f: f, lock: lock}, nil
}

// ExistingSize returns the size of a partial file at path, 0 if there is none.
// A file larger than total is a SizeMismatchError: it cannot be a prefix.
func ExistingSize(path string, total int64) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, &types.IoError{Op: "stat", Path: path, Err: err}
	}
	if info.IsDir() {
		return 0, &types.IoError{Op: "open", Path: path, Err: fmt.Errorf("is a directory")}
	}
	if info.Size() > total {
		return 0, &types.SizeMismatchError{Path: path, Expected: total, Actual: info.Size()}
	}
	return info.Size(), nil
}

// Path returns the destination path.
func (s *File) Path() string {
	return s.path
}

// WriteAt writes p at offset off.
func (s *File) WriteAt(p []byte, off int64) (int, error) {
	return s.f.WriteAt(p, off)
}

// Sync flushes written data to disk.
func (s *File) Sync() error {
	if err := s.f.Sync(); err != nil {
		return &types.IoError{Op: "sync", Path: s.path, Err: err}
	}
	return nil
}

// Size returns the current size of the file on disk.
func (s *File) Size() (int64, error) {
	info, err := s.f.Stat()
	if err != nil {
		return 0, &types.IoError{Op: "stat", Path: s.path, Err: err}
	}
	return info.Size(), nil
}

// TruncateTo shrinks or extends the file to n bytes.
func (s *File) TruncateTo(n int64) error {
	if err := s.f.Truncate(n); err != nil {
		return &types.IoError{Op: "truncate", Path: s.path, Err: err}
	}
	return nil
}

// Close closes the file and releases the destination lock.
func (s *File) Close() error {
	err := s.f.Close()
	releaseLock(s.lock)
	if err != nil {
		return &types.IoError{Op: "close", Path: s.path, Err: err}
	}
	return nil
}

// Abandon ends a failed transfer: the file is cut back to the keep bytes known
// to be valid, closed, and removed when nothing valid is left.
func (s *File) Abandon(keep int64) error {
	truncErr := s.TruncateTo(keep)
	closeErr := s.Close()
	if keep == 0 {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return &types.IoError{Op: "remove", Path: s.path, Err: err}
		}
		return nil
	}
	return errors.Join(truncErr, closeErr)
}

// lockPath maps a destination to a lock file in the state directory, so no
// stray files appear next to the download.
func lockPath(dest string) string {
	abs, err := filepath.Abs(dest)
	if err != nil {
		abs = dest
	}
	sum := sha256.Sum256([]byte(abs))
	return filepath.Join(config.GetStateDir(), "locks", hex.EncodeToString(sum[:8])+".lock")
}

func acquireLock(dest string) (*flock.Flock, error) {
	p := lockPath(dest)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, &types.IoError{Op: "lock", Path: p, Err: err}
	}

	lock := flock.New(p)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, &types.IoError{Op: "lock", Path: p, Err: err}
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", dest, types.ErrDestinationBusy)
	}
	return lock, nil
}

func releaseLock(lock *flock.Flock) {
	if lock == nil {
		return
	}
	if err := lock.Unlock(); err != nil {
		utils.Debug("Sink: failed to unlock %s: %v", lock.Path(), err)
	}
	_ = os.Remove(lock.Path())
}
