package cmd

import (
	"log"

	"github.com/spf13/cobra"

	"stemdeck/server"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the stemdeck HTTP server",
	Long:  `Start the HTTP server: upload and separation API, stem files, transport and mixer control, the live mix stream and the websocket event feed.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := server.Start(); err != nil {
			log.Fatalf("server failed: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
