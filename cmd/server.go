package cmd

import (
	"artistsfirst/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the ArtistsFirst HTTP server",
	Long:  `Start the HTTP server serving the storefront API, the playback gate and the wallet endpoints.`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
