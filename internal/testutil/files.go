package testutil

import (
	"bytes"
	"fmt"
	"os"
)

// FileExists reports whether path exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// VerifyFileSize returns an error unless the file at path has exactly size bytes.
func VerifyFileSize(path string, size int64) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() != size {
		return fmt.Errorf("file size mismatch: expected %d, got %d", size, info.Size())
	}
	return nil
}

// VerifyFileContent returns an error unless the file at path holds exactly want.
func VerifyFileContent(path string, want []byte) error {
	got, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(got) != len(want) {
		return fmt.Errorf("content length mismatch: expected %d, got %d", len(want), len(got))
	}
	if !bytes.Equal(got, want) {
		idx := 0
		for idx < len(got) && got[idx] == want[idx] {
			idx++
		}
		return fmt.Errorf("content differs at byte %d", idx)
	}
	return nil
}
