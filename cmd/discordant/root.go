package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type rootFlags struct {
	configPath string
	logLevel   string
	noConsole  bool
}

// newRootCmd creates the discordant command. Running it without a
// subcommand starts the bridge.
func newRootCmd() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:   "discordant",
		Short: "Discord event bridge with a decoupled image fetch pipeline",
		Long: `discordant connects to the Discord gateway, turns every gateway event into
a typed message on a bounded queue, and fetches and decodes the images those
events reference off the gateway goroutine.

The bot token is read from DISCORD_TOKEN.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVarP(&flags.configPath, "config", "c", "", "path to a YAML config file")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "override the log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&flags.noConsole, "no-console", false, "run without the interactive console")

	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the discordant version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "discordant %s\n", version)
		},
	}
}
