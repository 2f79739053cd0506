package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kget-downloader/kget/internal/engine/state"
	"github.com/kget-downloader/kget/internal/utils"
)

func newHistoryCmd() *cobra.Command {
	history := &cobra.Command{
		Use:   "history",
		Short: "List past downloads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			entries, err := state.ListDownloads(limit)
			if err != nil {
				return fmt.Errorf("failed to read history: %w", err)
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No downloads recorded yet.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "WHEN\tSTATUS\tSIZE\tFILE\tURL")
			for _, e := range entries {
				status := e.Status
				if e.Error != "" {
					status += ": " + truncate(e.Error, 40)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					time.Unix(e.CompletedAt, 0).Format("2006-01-02 15:04"),
					status,
					utils.ConvertBytesToHumanReadable(e.TotalSize),
					e.DestPath,
					e.URL,
				)
			}
			return w.Flush()
		},
	}
	history.Flags().IntP("limit", "n", 20, "number of entries to show (0 for all)")

	history.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete all history entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := state.ClearHistory(); err != nil {
				return fmt.Errorf("failed to clear history: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "History cleared.")
			return nil
		},
	})

	return history
}
