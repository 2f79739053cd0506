// Package transport holds the non-HTTP download paths: FTP, SFTP and torrent
// hand-off. Each one resolves its own destination and reports through the
// same events.Reporter as the HTTP core.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"github.com/kget-downloader/kget/internal/engine/events"
	"github.com/kget-downloader/kget/internal/engine/types"
)

// Request is one download handed to a transport.
type Request struct {
	ID       string
	URL      string
	Output   string // File or directory; empty means the current directory
	Reporter events.Reporter
	Limiter  *rate.Limiter
}

// Result describes where the bytes ended up.
type Result struct {
	Path      string
	Size      int64
	HandedOff bool // The transfer continues in another program
}

// Transport downloads URLs of one family of schemes.
type Transport interface {
	Download(ctx context.Context, req Request) (*Result, error)
}

// Endpoint is the connection part of an ftp:// or sftp:// URL.
type Endpoint struct {
	Addr     string // host:port
	User     string
	Password string
	Path     string
}

// ParseEndpoint splits rawurl into address, credentials and remote path.
// defaultPort is used when the URL names none.
func ParseEndpoint(rawurl, defaultPort string) (*Endpoint, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawurl, err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("invalid url %q: missing host", rawurl)
	}
	if u.Path == "" || strings.HasSuffix(u.Path, "/") {
		return nil, fmt.Errorf("invalid url %q: missing file path", rawurl)
	}

	port := u.Port()
	if port == "" {
		port = defaultPort
	}

	ep := &Endpoint{
		Addr: net.JoinHostPort(u.Hostname(), port),
		Path: u.Path,
	}
	if u.User != nil {
		ep.User = u.User.Username()
		ep.Password, _ = u.User.Password()
	}
	return ep, nil
}

// Stream copies src into dst starting at offset until total is reached,
// reporting through state. It returns the number of bytes written.
func Stream(ctx context.Context, src io.Reader, dst io.WriterAt, path string, offset, total int64, state *types.ProgressState, limiter *rate.Limiter) (int64, error) {
	buf := make([]byte, types.WorkerBuffer)
	var written int64

	for offset+written < total {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		want := int64(len(buf))
		if remaining := total - offset - written; remaining < want {
			want = remaining
		}
		n, readErr := src.Read(buf[:want])
		if n > 0 {
			if limiter != nil {
				if err := limiter.WaitN(ctx, n); err != nil {
					return written, err
				}
			}
			if _, err := dst.WriteAt(buf[:n], offset+written); err != nil {
				return written, &types.IoError{Op: "write", Path: path, Err: err}
			}
			written += int64(n)
			if state != nil {
				state.Add(int64(n))
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return written, fmt.Errorf("read error: %w", readErr)
		}
	}

	if offset+written != total {
		return written, &types.SizeMismatchError{Path: path, Expected: total, Actual: offset + written}
	}
	return written, nil
}
