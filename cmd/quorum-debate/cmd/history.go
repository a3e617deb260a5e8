package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/quorum-debate/internal/adapters/state"
	"github.com/hugo-lorenzo-mato/quorum-debate/internal/core"
)

// recordHistory upserts a completed or in-flight session into the
// --history-db index, if one was configured. Indexing is best-effort: a
// failure here is logged and swallowed rather than turned into a fatal CLI
// error, since the checkpoint file (not the index) is this engine's source
// of truth (spec.md §6.2).
func recordHistory(ctx context.Context, session *core.DebateSession, exitCode int) {
	if historyDBPath == "" {
		return
	}
	idx, err := state.Open(historyDBPath)
	if err != nil {
		buildLogger().Warn("opening history db", "error", err)
		return
	}
	defer idx.Close()

	if err := idx.Upsert(ctx, session, exitCode); err != nil {
		buildLogger().Warn("indexing session history", "error", err)
	}
}

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past sessions recorded in the --history-db index",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of sessions to list")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(c *cobra.Command, _ []string) error {
	if historyDBPath == "" {
		return fmt.Errorf("--history-db is required for the history command")
	}
	idx, err := state.Open(historyDBPath)
	if err != nil {
		return fmt.Errorf("opening history db: %w", err)
	}
	defer idx.Close()

	rows, err := idx.List(c.Context(), historyLimit)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}

	w := c.OutOrStdout()
	fmt.Fprintf(w, "%-26s %-20s %-16s %6s %6s %8s\n", "ID", "STARTED", "PHASE", "AGENT", "JUDGE", "TOKENS")
	for _, r := range rows {
		fmt.Fprintf(w, "%-26s %-20s %-16s %6d %6d %8d\n",
			r.ID, r.StartedAt.Format("2006-01-02T15:04:05Z"), r.Phase, r.AgentRounds, r.JudgeRounds, r.TotalTokens)
	}
	return nil
}
