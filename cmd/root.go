package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"stemdeck/server"
)

var rootCmd = &cobra.Command{
	Use:   "stemdeck",
	Short: "Stemdeck is a stem separation and multi-track playback studio.",
	Run: func(cmd *cobra.Command, args []string) {
		// Running with no subcommand starts the server.
		if err := server.Start(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
