package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the engine version",
	RunE: func(c *cobra.Command, _ []string) error {
		_, err := fmt.Fprintf(c.OutOrStdout(), "quorum-debate %s (%s, built %s)\n", appVersion, appCommit, appDate)
		return err
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
