package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/quorum-debate/internal/core"
)

func newTestSession(id string) *core.DebateSession {
	return &core.DebateSession{
		ID:    id,
		Topic: "should we ship on Friday",
		Phase: core.PhaseConsensusReached,
		FinalVerdict: &core.FinalVerdict{
			PositionID: "abc123",
			Source:     core.SourceAgentConsensus,
		},
		Metadata: core.SessionMetadata{
			StartedAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			TotalTokens: 1200,
		},
	}
}

func TestSessionIndex_UpsertThenList(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	idx, err := Open(dbPath)
	require.NoError(t, err)
	defer idx.Close()

	session := newTestSession("01HXYZ")
	require.NoError(t, idx.Upsert(context.Background(), session, 0))

	rows, err := idx.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "01HXYZ", rows[0].ID)
	require.Equal(t, string(core.SourceAgentConsensus), rows[0].VerdictSource)
	require.Equal(t, 1200, rows[0].TotalTokens)
}

func TestSessionIndex_UpsertIsIdempotentByID(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	idx, err := Open(dbPath)
	require.NoError(t, err)
	defer idx.Close()

	session := newTestSession("01HXYZ")
	require.NoError(t, idx.Upsert(context.Background(), session, 0))

	session.Phase = core.PhaseDeadlock
	require.NoError(t, idx.Upsert(context.Background(), session, 2))

	rows, err := idx.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, string(core.PhaseDeadlock), rows[0].Phase)
	require.Equal(t, 2, rows[0].ExitCode)
}

func TestSessionIndex_ListOrdersMostRecentFirst(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	idx, err := Open(dbPath)
	require.NoError(t, err)
	defer idx.Close()

	older := newTestSession("older")
	older.Metadata.StartedAt = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := newTestSession("newer")
	newer.Metadata.StartedAt = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, idx.Upsert(context.Background(), older, 0))
	require.NoError(t, idx.Upsert(context.Background(), newer, 0))

	rows, err := idx.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "newer", rows[0].ID)
	require.Equal(t, "older", rows[1].ID)
}
