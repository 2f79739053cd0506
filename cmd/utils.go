package cmd

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/kget-downloader/kget/internal/config"
	"github.com/kget-downloader/kget/internal/download"
	"github.com/kget-downloader/kget/internal/engine/types"
	"github.com/kget-downloader/kget/internal/utils"
)

// readURLsFromFile reads URLs from a file, one per line.
// Blank lines and lines starting with # are skipped.
func readURLsFromFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var urls []string
	scanner := bufio.NewScanner(file)

	// Increase buffer size for long URLs (default is 64KB, increase to 1MB)
	const maxCapacity = 1024 * 1024
	scanner.Buffer(make([]byte, maxCapacity), maxCapacity)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			urls = append(urls, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return urls, nil
}

// clipboardURL accepts the clipboard text only if it is a single URL.
func clipboardURL(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("clipboard is empty")
	}
	if strings.HasPrefix(strings.ToLower(text), "magnet:") {
		return text, nil
	}
	u, err := url.Parse(text)
	if err != nil || u.Scheme == "" || u.Host == "" || strings.ContainsAny(text, " \n\t") {
		return "", fmt.Errorf("clipboard does not contain a URL: %q", truncate(text, 60))
	}
	return text, nil
}

// parseSpeedLimit turns "500K", "2MiB" or "1048576" into bytes per second.
func parseSpeedLimit(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}
	s = strings.TrimSuffix(strings.TrimSuffix(s, "/s"), "ps")
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid speed limit %q: %w", s, err)
	}
	return int64(n), nil
}

// applySettingsFlags applies overrides for settings the engine runtime does
// not carry, such as the torrent hand-off options.
func applySettingsFlags(cmd *cobra.Command, settings *config.Settings) error {
	if cmd.Flags().Changed("max-peers") {
		n, _ := cmd.Flags().GetInt("max-peers")
		if n < 1 {
			return fmt.Errorf("--max-peers must be at least 1, got %d", n)
		}
		settings.Torrent.MaxPeers = n
	}
	return nil
}

// runtimeFromFlags applies command-line overrides on top of the settings file.
func runtimeFromFlags(cmd *cobra.Command, settings *config.Settings) (*types.RuntimeConfig, error) {
	rc := settings.ToRuntimeConfig()
	f := cmd.Flags()

	if f.Changed("connections") {
		n, _ := f.GetInt("connections")
		if n < 1 {
			return nil, fmt.Errorf("--connections must be at least 1, got %d", n)
		}
		rc.MaxConnections = n
	}
	if f.Changed("proxy") {
		rc.ProxyURL, _ = f.GetString("proxy")
		rc.ProxyEnabled = rc.ProxyURL != ""
	}
	if f.Changed("proxy-user") {
		rc.ProxyUsername, _ = f.GetString("proxy-user")
	}
	if f.Changed("proxy-pass") {
		rc.ProxyPassword, _ = f.GetString("proxy-pass")
	}
	if f.Changed("proxy-type") {
		t, _ := f.GetString("proxy-type")
		rc.ProxyType = config.NormalizeProxyType(t)
	}
	if f.Changed("limit") {
		s, _ := f.GetString("limit")
		limit, err := parseSpeedLimit(s)
		if err != nil {
			return nil, err
		}
		rc.SpeedLimit = limit
	}

	return types.ConvertRuntimeConfig(rc), nil
}

func printResult(w io.Writer, res *download.Result) {
	if res.HandedOff {
		fmt.Fprintln(w, "Handed off to the torrent client")
		return
	}
	fmt.Fprintf(w, "Saved %s (%s) in %s\n", res.Path, utils.ConvertBytesToHumanReadable(res.Size), utils.FormatDuration(res.Elapsed))
	if res.SHA256 != "" {
		fmt.Fprintf(w, "SHA-256: %s\n", res.SHA256)
	}
}

func isDirectory(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// isTerminal reports whether f is an interactive terminal.
func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
