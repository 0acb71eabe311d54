package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ragnode",
	Short: "ragnode - per-project document Q&A service",
	Long: `ragnode ingests documents into per-project knowledge stores and
answers questions grounded on them over an HTTP API.

Run "ragnode serve" to start the server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
