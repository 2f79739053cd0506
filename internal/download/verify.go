package download

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/h2non/filetype"

	"github.com/kget-downloader/kget/internal/engine/types"
)

// sniffLen is how much of the file filetype needs to recognise every
// format it knows.
const sniffLen = 262

// verify checks the finished file: exact size, optional SHA-256 and the
// sniffed content type. headerType is what the server claimed, if anything.
func (m *Manager) verify(req Request, res *Result, headerType string) error {
	req.Reporter.OnStatus(fmt.Sprintf("Verifying size of %s", res.Path))
	info, err := os.Stat(res.Path)
	if err != nil {
		return &types.IoError{Op: "stat", Path: res.Path, Err: err}
	}
	if info.Size() != res.Size {
		return &types.SizeMismatchError{Path: res.Path, Expected: res.Size, Actual: info.Size()}
	}

	res.ContentType = sniffContentType(res.Path, headerType)
	if res.ContentType != "" {
		req.Reporter.OnStatus(fmt.Sprintf("Content type: %s", res.ContentType))
	}

	if !req.Verify && req.ExpectedSHA256 == "" {
		return nil
	}

	req.Reporter.OnStatus("Verifying file integrity...")
	sum, err := fileSHA256(res.Path)
	if err != nil {
		return err
	}
	res.SHA256 = sum
	req.Reporter.OnStatus(fmt.Sprintf("SHA-256: %s", sum))

	if want := strings.ToLower(strings.TrimSpace(req.ExpectedSHA256)); want != "" && want != sum {
		return &types.ChecksumMismatchError{Path: res.Path, Expected: want, Actual: sum}
	}
	return nil
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &types.IoError{Op: "open", Path: path, Err: err}
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", &types.IoError{Op: "read", Path: path, Err: err}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// sniffContentType prefers the file's magic bytes over the header.
func sniffContentType(path, headerType string) string {
	f, err := os.Open(path)
	if err != nil {
		return headerType
	}
	defer func() { _ = f.Close() }()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return headerType
	}

	kind, err := filetype.Match(head[:n])
	if err != nil || kind == filetype.Unknown {
		return headerType
	}
	return kind.MIME.Value
}
