package cmd

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/quorum-debate/internal/service/debate"
)

var watchCheckpointDir string

var watchCmd = &cobra.Command{
	Use:   "watch <sessionId>",
	Short: "Tail a session's checkpoint file and print phase transitions as another process advances it",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchCheckpointDir, "checkpoint-dir", "", "directory the session is being checkpointed into (required)")
	_ = watchCmd.MarkFlagRequired("checkpoint-dir")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(c *cobra.Command, args []string) error {
	sessionID := args[0]

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(watchCheckpointDir); err != nil {
		return fmt.Errorf("watching checkpoint dir: %w", err)
	}

	lastPhase := printCheckpointPhase(c, watchCheckpointDir, sessionID, "")

	ctx := c.Context()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			lastPhase = printCheckpointPhase(c, watchCheckpointDir, sessionID, lastPhase)
			if lastPhase == "consensus_reached" || lastPhase == "deadlock" {
				return nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watching checkpoint dir: %w", err)
		}
	}
}

func printCheckpointPhase(c *cobra.Command, checkpointDir, sessionID, lastPhase string) string {
	session, err := debate.ReadCheckpoint(checkpointDir, sessionID)
	if err != nil {
		return lastPhase
	}
	phase := string(session.Phase)
	if phase == lastPhase {
		return phase
	}
	fmt.Fprintf(c.OutOrStdout(), "%s: %s (agent rounds %d, judge rounds %d)\n",
		sessionID, phase, len(session.AgentRounds), len(session.JudgeRounds))
	return phase
}
