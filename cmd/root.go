package cmd

import (
	"fmt"
	"os"

	"artistsfirst/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "artistsfirst",
	Short: "ArtistsFirst is a fair-pay music storefront.",
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
