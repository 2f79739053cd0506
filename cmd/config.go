package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kget-downloader/kget/internal/config"
)

func newConfigCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect or reset the settings file",
	}

	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective settings as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.LoadSettings()
			if err != nil {
				return fmt.Errorf("failed to load settings: %w", err)
			}
			if settings.Proxy.Password != "" {
				settings.Proxy.Password = "********"
			}
			if settings.Torrent.Password != "" {
				settings.Torrent.Password = "********"
			}
			data, err := json.MarshalIndent(settings, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	})

	cfg.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the location of the settings file",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), config.GetSettingsPath())
		},
	})

	cfg.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Overwrite the settings file with defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.SaveSettings(config.DefaultSettings()); err != nil {
				return fmt.Errorf("failed to reset settings: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Settings reset to defaults at %s\n", config.GetSettingsPath())
			return nil
		},
	})

	return cfg
}
