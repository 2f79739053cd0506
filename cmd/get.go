package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/atotto/clipboard"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kget-downloader/kget/internal/config"
	"github.com/kget-downloader/kget/internal/download"
	"github.com/kget-downloader/kget/internal/engine/events"
	"github.com/kget-downloader/kget/internal/engine/types"
	"github.com/kget-downloader/kget/internal/tui"
	"github.com/kget-downloader/kget/internal/utils"
)

// errNoURL is returned when neither arguments, a batch file nor the clipboard name a URL.
var errNoURL = errors.New("no URL given (pass one as an argument, use --batch or --clipboard)")

func newGetCmd() *cobra.Command {
	get := &cobra.Command{
		Use:   "get [url]...",
		Short: "Download one or more URLs",
		Long:  `get downloads files and saves them to the local filesystem. It is what kget does when called with URLs directly.`,
		Args:  cobra.ArbitraryArgs,
		RunE:  runGet,
	}
	addDownloadFlags(get)
	return get
}

func addDownloadFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("output", "O", "", "output file, or directory to save into")
	f.BoolP("quiet", "q", false, "print nothing but errors")
	f.IntP("connections", "c", 0, "parallel connections per download (default from settings)")
	f.StringP("proxy", "p", "", "proxy URL")
	f.String("proxy-user", "", "proxy username")
	f.String("proxy-pass", "", "proxy password")
	f.String("proxy-type", "", "proxy type: http, https or socks5")
	f.StringP("limit", "l", "", "bandwidth limit, e.g. 500K or 2MiB (per second)")
	f.Bool("verify", false, "print the SHA-256 of the downloaded file")
	f.String("sha256", "", "expected SHA-256; the download fails if it differs")
	f.Bool("clipboard", false, "download the URL currently in the clipboard")
	f.StringP("batch", "b", "", "file containing URLs to download (one per line)")
	f.Int("max-peers", 0, "peer limit sent to Transmission for torrents (default from settings)")
}

func runGet(cmd *cobra.Command, args []string) error {
	urls, err := collectURLs(cmd, args)
	if err != nil {
		return err
	}
	if len(urls) == 0 {
		return cmd.Help()
	}

	settings, err := config.LoadSettings()
	if err != nil {
		utils.Debug("Failed to load settings, using defaults: %v", err)
		settings = config.DefaultSettings()
	}

	if err := applySettingsFlags(cmd, settings); err != nil {
		return err
	}

	runtime, err := runtimeFromFlags(cmd, settings)
	if err != nil {
		return err
	}

	mgr, err := download.NewManager(settings, runtime)
	if err != nil {
		return err
	}
	mgr.History = true

	output, _ := cmd.Flags().GetString("output")
	verify, _ := cmd.Flags().GetBool("verify")
	expected, _ := cmd.Flags().GetString("sha256")
	quiet, _ := cmd.Flags().GetBool("quiet")

	if len(urls) > 1 && output != "" && !isDirectory(output) {
		return fmt.Errorf("--output must be a directory when downloading %d URLs", len(urls))
	}

	var failed int
	for _, u := range urls {
		req := download.Request{
			ID:             uuid.New().String(),
			URL:            u,
			Output:         output,
			Verify:         verify,
			ExpectedSHA256: expected,
		}

		var res *download.Result
		if !quiet && isTerminal(os.Stdout) {
			res, err = downloadWithTUI(cmd.Context(), mgr, req)
		} else {
			res, err = downloadPlain(cmd.Context(), mgr, req, cmd.ErrOrStderr(), quiet)
		}

		if err != nil {
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "Error downloading %s: %v\n", u, err)
			if cmd.Context().Err() != nil {
				break
			}
			continue
		}
		if !quiet {
			printResult(cmd.OutOrStdout(), res)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d downloads failed", failed, len(urls))
	}
	return nil
}

// collectURLs merges positional arguments, the batch file and the clipboard.
func collectURLs(cmd *cobra.Command, args []string) ([]string, error) {
	urls := append([]string(nil), args...)

	if batch, _ := cmd.Flags().GetString("batch"); batch != "" {
		fromFile, err := readURLsFromFile(batch)
		if err != nil {
			return nil, err
		}
		urls = append(urls, fromFile...)
	}

	if useClipboard, _ := cmd.Flags().GetBool("clipboard"); useClipboard {
		text, err := clipboard.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("failed to read clipboard: %w", err)
		}
		u, err := clipboardURL(text)
		if err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}

	if len(urls) == 0 && (cmd.Flags().Changed("batch") || cmd.Flags().Changed("clipboard")) {
		return nil, errNoURL
	}
	return urls, nil
}

func downloadPlain(ctx context.Context, mgr *download.Manager, req download.Request, w io.Writer, quiet bool) (*download.Result, error) {
	if !quiet {
		req.Reporter = events.NewLineReporter(w, time.Second)
	}
	return mgr.Download(ctx, req)
}

type outcome struct {
	res *download.Result
	err error
}

func downloadWithTUI(ctx context.Context, mgr *download.Manager, req download.Request) (*download.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rep := events.NewChannelReporter(req.ID, types.ProgressChannelBuffer)
	req.Reporter = rep

	done := make(chan outcome, 1)
	go func() {
		res, err := mgr.Download(ctx, req)
		if err != nil {
			rep.Fail(utils.FilenameFromURL(req.URL), err)
		} else {
			rep.Complete(filepath.Base(res.Path), res.Size, res.SHA256)
		}
		done <- outcome{res, err}
	}()

	if _, err := tui.Run(rep, req.URL, cancel); err != nil {
		utils.Debug("TUI failed, cancelling download: %v", err)
		cancel()
		// Unblock the reporter so the download can return.
		go func() {
			for range rep.Messages() {
			}
		}()
	}

	out := <-done
	return out.res, out.err
}
