package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/vfaronov/httpheader"

	"github.com/kget-downloader/kget/internal/engine/types"
	"github.com/kget-downloader/kget/internal/utils"
)

var (
	errNoContentLength  = errors.New("server did not report Content-Length")
	errBadContentLength = errors.New("invalid Content-Length")
)

// ProbeServer sends a HEAD request to learn the size of the resource, whether
// byte ranges are accepted and what the file should be called. It does not retry.
func ProbeServer(ctx context.Context, client *http.Client, rawurl string) (*types.Capability, error) {
	utils.Debug("Probing server: %s", rawurl)

	probeCtx, cancel := context.WithTimeout(ctx, types.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, rawurl, nil)
	if err != nil {
		return nil, &types.ProbeError{URL: rawurl, Err: fmt.Errorf("failed to create probe request: %w", err)}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &types.ProbeError{URL: rawurl, Err: err}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	utils.Debug("Probe response status: %d", resp.StatusCode)

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &types.ProbeError{
			URL:        rawurl,
			StatusCode: resp.StatusCode,
			Err:        &types.StatusError{StatusCode: resp.StatusCode},
		}
	}

	lengthHeader := strings.TrimSpace(resp.Header.Get("Content-Length"))
	if lengthHeader == "" {
		return nil, &types.ProbeError{URL: rawurl, StatusCode: resp.StatusCode, Err: errNoContentLength}
	}
	size, err := strconv.ParseInt(lengthHeader, 10, 64)
	if err != nil || size < 0 {
		return nil, &types.ProbeError{
			URL:        rawurl,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w: %q", errBadContentLength, lengthHeader),
		}
	}

	result := &types.Capability{
		TotalSize:      size,
		SupportsRanges: acceptsByteRanges(resp.Header),
		Filename:       determineFilename(rawurl, resp),
	}
	result.ContentType, _ = httpheader.ContentType(resp.Header)

	utils.Debug("Probe complete - filename: %s, size: %d, range: %v",
		result.Filename, result.TotalSize, result.SupportsRanges)

	return result, nil
}

// acceptsByteRanges reports whether Accept-Ranges lists the "bytes" unit.
// A missing header means ranges are not supported.
func acceptsByteRanges(h http.Header) bool {
	for _, v := range h.Values("Accept-Ranges") {
		for _, unit := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(unit), "bytes") {
				return true
			}
		}
	}
	return false
}

func determineFilename(rawurl string, resp *http.Response) string {
	if _, name, _ := httpheader.ContentDisposition(resp.Header); name != "" {
		return utils.SanitizeFilename(name)
	}
	// Prefer the final URL after redirects.
	if resp.Request != nil && resp.Request.URL != nil {
		if name := utils.FilenameFromURL(resp.Request.URL.String()); name != utils.DefaultFilename {
			return name
		}
	}
	return utils.FilenameFromURL(rawurl)
}
