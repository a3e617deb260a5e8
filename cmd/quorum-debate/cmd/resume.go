package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/quorum-debate/internal/service/debate"
)

var resumeCheckpointDir string

var resumeCmd = &cobra.Command{
	Use:   "resume <sessionId>",
	Short: "Resume a debate session from its last checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE:  runResume,
}

func init() {
	resumeCmd.Flags().StringVar(&resumeCheckpointDir, "checkpoint-dir", "", "directory the session was checkpointed into (required)")
	resumeCmd.Flags().StringVar(&runOutPath, "out", "", "write the DebateOutput document here instead of stdout")
	_ = resumeCmd.MarkFlagRequired("checkpoint-dir")
	rootCmd.AddCommand(resumeCmd)
}

func runResume(c *cobra.Command, args []string) error {
	sessionID := args[0]

	session, err := debate.ReadCheckpoint(resumeCheckpointDir, sessionID)
	if err != nil {
		return fmt.Errorf("loading checkpoint: %w", err)
	}

	orch := debate.NewOrchestrator(buildRegistry())
	orch.CheckpointDir = resumeCheckpointDir
	orch.Logger = buildLogger()

	output, exitCode, err := orch.Run(c.Context(), session)
	if err != nil {
		return err
	}
	recordHistory(c.Context(), session, int(exitCode))
	if err := writeOutput(output); err != nil {
		return err
	}
	return exitWith(exitCode)
}
