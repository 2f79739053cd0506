package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kget-downloader/kget/internal/config"
	"github.com/kget-downloader/kget/internal/engine/state"
	"github.com/kget-downloader/kget/internal/utils"
)

// Version information - set via ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// NewRootCmd builds the command tree. Every call returns fresh flag state.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "kget [url]...",
		Short:   "A parallel, resumable file downloader",
		Long:    `kget downloads files over HTTP(S), FTP and SFTP, splitting HTTP transfers into byte ranges fetched in parallel and resuming partial files. Magnet links and .torrent URLs are handed to Transmission or the system torrent client.`,
		Version: fmt.Sprintf("%s (built %s)", Version, BuildTime),
		Args:    cobra.ArbitraryArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if err := utils.InitLogger(debug, config.GetLogPath()); err != nil {
				return fmt.Errorf("failed to open debug log: %w", err)
			}
			state.Configure(state.DefaultDBPath())
			return nil
		},
		RunE:          runGet,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().Bool("debug", false, "write a debug log to the kget directory")
	addDownloadFlags(root)

	root.AddCommand(newGetCmd(), newConfigCmd(), newHistoryCmd())
	return root
}

// Execute runs the CLI and exits non-zero on any error.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, NewRootCmd())
	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run executes root and then releases the history database and debug log.
// Cobra skips post-run hooks when a command fails, so this happens here.
func run(ctx context.Context, root *cobra.Command) error {
	defer func() {
		state.CloseDB()
		utils.CloseLogger()
	}()
	return root.ExecuteContext(ctx)
}
