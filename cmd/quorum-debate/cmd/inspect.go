package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/quorum-debate/internal/service/debate"
)

var inspectCheckpointDir string

var inspectCmd = &cobra.Command{
	Use:   "inspect <sessionId>",
	Short: "Print a checkpointed session's current state without advancing it",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().StringVar(&inspectCheckpointDir, "checkpoint-dir", "", "directory the session was checkpointed into (required)")
	_ = inspectCmd.MarkFlagRequired("checkpoint-dir")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(_ *cobra.Command, args []string) error {
	sessionID := args[0]

	session, err := debate.ReadCheckpoint(inspectCheckpointDir, sessionID)
	if err != nil {
		return fmt.Errorf("loading checkpoint: %w", err)
	}

	judgePanelEnabled := session.Config.JudgePanelEnabled
	output := debate.BuildDebateOutput(session, judgePanelEnabled)
	return writeOutput(output)
}
