package debate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/quorum-debate/internal/core"
)

func newTestSession() *core.DebateSession {
	return &core.DebateSession{ID: "sess1", Phase: core.PhaseInit}
}

func TestStateManager_LegalTransitionSucceeds(t *testing.T) {
	sm := NewStateManager(newTestSession())
	require.NotPanics(t, func() { sm.Transition(core.PhaseAgentDebate) })
	require.Equal(t, core.PhaseAgentDebate, sm.Session().Phase)
}

func TestStateManager_IllegalTransitionPanics(t *testing.T) {
	sm := NewStateManager(newTestSession())
	require.Panics(t, func() { sm.Transition(core.PhaseConsensusReached) })
}

func TestStateManager_TerminalTransitionStampsCompletedAt(t *testing.T) {
	sm := NewStateManager(newTestSession())
	sm.Transition(core.PhaseAgentDebate)
	sm.Transition(core.PhaseConsensusReached)
	require.NotNil(t, sm.Session().Metadata.CompletedAt)
}

func TestStateManager_SetFinalVerdictTwicePanics(t *testing.T) {
	sm := NewStateManager(newTestSession())
	sm.SetFinalVerdict(core.FinalVerdict{Source: core.SourceDeadlock})
	require.Panics(t, func() { sm.SetFinalVerdict(core.FinalVerdict{Source: core.SourceDeadlock}) })
}

func TestStateManager_RecordRetryIncrementsCounter(t *testing.T) {
	sm := NewStateManager(newTestSession())
	sm.RecordRetry("a1", 1, nil, time.Millisecond)
	sm.RecordRetry("a1", 2, nil, time.Millisecond)
	require.Equal(t, 2, sm.Session().Metadata.TotalRetries)
}

func TestStateManager_AppendRoundsAreCumulative(t *testing.T) {
	sm := NewStateManager(newTestSession())
	sm.AppendAgentRound(core.RoundResult{RoundNumber: 1})
	sm.AppendAgentRound(core.RoundResult{RoundNumber: 2})
	require.Len(t, sm.Session().AgentRounds, 2)
	require.Equal(t, 2, sm.Session().CurrentAgentRound()-1)
}

func TestCountErrors_CountsOnlyErrorStatus(t *testing.T) {
	responses := []core.AgentResponse{
		{Status: core.StatusOK},
		{Status: core.StatusError},
		{Status: core.StatusError},
	}
	require.Equal(t, 2, CountErrors(responses))
}
