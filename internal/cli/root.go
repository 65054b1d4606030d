// Package cli handles the command-line interface logic
// using the Cobra library.
package cli

import (
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	return newRootCmd(openDeps)
}

func newRootCmd(open opener) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "casemigrate",
		Short: "casemigrate - case management data migration",
		Long: `casemigrate pulls clients, cases and sessions from the case management API
into MongoDB in tracked, resumable batches, derives shallow sessions from
migrated cases, verifies samples against the source and exports the results.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	rootCmd.AddCommand(
		NewMigrateCmd(open),
		newResourcesCmd(open),
		newSessionsCmd(open),
		newVerifyCmd(open),
		newExportCmd(open),
	)

	return rootCmd
}
