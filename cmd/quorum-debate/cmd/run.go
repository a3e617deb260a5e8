package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/quorum-debate/internal/config"
	"github.com/hugo-lorenzo-mato/quorum-debate/internal/service/debate"
)

var (
	runConfigPath    string
	runCheckpointDir string
	runOutPath       string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a fresh debate session from a config file",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringVar(&runConfigPath, "config", "", "debate config file (YAML, required)")
	runCmd.Flags().StringVar(&runCheckpointDir, "checkpoint-dir", "", "directory to checkpoint into after every round")
	runCmd.Flags().StringVar(&runOutPath, "out", "", "write the DebateOutput document here instead of stdout")
	_ = runCmd.MarkFlagRequired("config")
	rootCmd.AddCommand(runCmd)
}

func runRun(c *cobra.Command, _ []string) error {
	cfg, err := config.NewLoader("QUORUM_DEBATE").LoadFile(runConfigPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	session, err := debate.NewSession(*cfg)
	if err != nil {
		return err
	}

	orch := debate.NewOrchestrator(buildRegistry())
	orch.CheckpointDir = runCheckpointDir
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

func writeOutput(output debate.DebateOutput) error {
	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	if runOutPath == "" {
		_, err = os.Stdout.Write(append(data, '\n'))
		return err
	}
	return os.WriteFile(runOutPath, append(data, '\n'), 0o644)
}

func exitWith(code debate.ExitCode) error {
	if code == debate.ExitConsensusReached {
		return nil
	}
	os.Exit(int(code))
	return nil
}
