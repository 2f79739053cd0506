package utils

import (
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// DefaultFilename is used when neither the server nor the URL names the file.
const DefaultFilename = "download.bin"

// FilenameFromURL returns the last path segment of rawURL, unescaped.
// Example: https://example.com/a/b/file%20x.zip?t=1 -> "file x.zip"
func FilenameFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return DefaultFilename
	}

	name := path.Base(parsed.Path)
	if name == "." || name == "/" || name == "" {
		return DefaultFilename
	}
	return SanitizeFilename(name)
}

// SanitizeFilename strips directory components and characters that are
// unsafe in file names on common platforms.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)

	name = strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', ':', '"', '|', '?', '*':
			return '_'
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, name)

	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || name == "/" {
		return DefaultFilename
	}
	return name
}

// ResolveDestination turns the user's output argument into a file path.
// An empty output uses the filename in the current directory; an existing
// directory (or one ending in a separator) gets the filename appended.
func ResolveDestination(output, filename string) string {
	if filename == "" {
		filename = DefaultFilename
	}
	if output == "" {
		return filename
	}
	if strings.HasSuffix(output, "/") || strings.HasSuffix(output, string(filepath.Separator)) {
		return filepath.Join(output, filename)
	}
	if info, err := os.Stat(output); err == nil && info.IsDir() {
		return filepath.Join(output, filename)
	}
	return output
}
