package debate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/quorum-debate/internal/core"
)

func strp(s string) *string { return &s }

// TestSelectCandidate_AbstainWithProposalCounts locks in the spec.md §8
// scenario A behavior: round 1 is entirely vote=abstain, yet its proposals
// must seed round 2's candidate (DESIGN.md: Scenario A vs. literal §4.4.2
// wording).
func TestSelectCandidate_AbstainWithProposalCounts(t *testing.T) {
	responses := []core.AgentResponse{
		{Status: core.StatusOK, Vote: core.VoteAbstain, PositionID: strp("p1"), PositionText: "Ship Friday", Confidence: 0.8},
		{Status: core.StatusOK, Vote: core.VoteAbstain, PositionID: strp("p2"), PositionText: "Ship Monday", Confidence: 0.7},
		{Status: core.StatusOK, Vote: core.VoteAbstain, PositionID: strp("p3"), PositionText: "Hold", Confidence: 0.6},
	}

	id, text := SelectCandidate(responses)
	require.Equal(t, "p1", id)
	require.Equal(t, "Ship Friday", text)
}

func TestSelectCandidate_NoPositionAtAllIsExcluded(t *testing.T) {
	responses := []core.AgentResponse{
		{Status: core.StatusOK, Vote: core.VoteAbstain, PositionID: nil, Confidence: 0.9},
		{Status: core.StatusOK, Vote: core.VoteAbstain, PositionID: strp("p1"), PositionText: "Ship Friday", Confidence: 0.5},
	}

	id, _ := SelectCandidate(responses)
	require.Equal(t, "p1", id)
}

func TestSelectCandidate_IneligibleResponseIsExcluded(t *testing.T) {
	responses := []core.AgentResponse{
		{Status: core.StatusError, Vote: core.VoteAbstain, PositionID: strp("p-err"), Confidence: 0.99},
		{Status: core.StatusOK, Vote: core.VoteAbstain, PositionID: strp("p1"), PositionText: "Ship Friday", Confidence: 0.5},
	}

	id, _ := SelectCandidate(responses)
	require.Equal(t, "p1", id)
}

func TestSelectCandidate_TieBreaksOnSupporterCountThenID(t *testing.T) {
	responses := []core.AgentResponse{
		// p1: one supporter, score 0.9
		{Status: core.StatusOK, Vote: core.VoteAbstain, PositionID: strp("p1"), PositionText: "A", Confidence: 0.9},
		// p2: two supporters, score 0.45 each = 0.9 total, tied with p1 on score
		{Status: core.StatusOK, Vote: core.VoteYes, PositionID: strp("p2"), PositionText: "B", Confidence: 0.45},
		{Status: core.StatusOK, Vote: core.VoteNo, PositionID: strp("p2"), PositionText: "B", Confidence: 0.45},
	}

	id, _ := SelectCandidate(responses)
	require.Equal(t, "p2", id, "equal SupportScore breaks on higher SupporterCount")
}

func TestSelectCandidate_NoEligiblePositionedResponsesReturnsEmpty(t *testing.T) {
	responses := []core.AgentResponse{
		{Status: core.StatusError, PositionID: nil},
		{Status: core.StatusOK, Vote: core.VoteAbstain, PositionID: nil},
	}

	id, text := SelectCandidate(responses)
	require.Equal(t, "", id)
	require.Equal(t, "", text)
}

// TestSelectCandidate_OrderIndependent matches spec.md §8 scenario F: the
// winning candidate must not depend on slice order.
func TestSelectCandidate_OrderIndependent(t *testing.T) {
	forward := []core.AgentResponse{
		{Status: core.StatusOK, Vote: core.VoteAbstain, PositionID: strp("p1"), PositionText: "A", Confidence: 0.9},
		{Status: core.StatusOK, Vote: core.VoteAbstain, PositionID: strp("p2"), PositionText: "B", Confidence: 0.3},
		{Status: core.StatusOK, Vote: core.VoteYes, PositionID: strp("p2"), PositionText: "B", Confidence: 0.3},
	}
	reversed := []core.AgentResponse{forward[2], forward[1], forward[0]}

	id1, text1 := SelectCandidate(forward)
	id2, text2 := SelectCandidate(reversed)
	require.Equal(t, id1, id2)
	require.Equal(t, text1, text2)
}

func TestEvaluateAgentConsensus_RoundOneNeverReachesConsensus(t *testing.T) {
	responses := []core.AgentResponse{
		{Status: core.StatusOK, Vote: core.VoteAbstain, PositionID: strp("p1"), Confidence: 0.8},
		{Status: core.StatusOK, Vote: core.VoteAbstain, PositionID: strp("p2"), Confidence: 0.8},
	}

	result := EvaluateAgentConsensus(responses, "", 0.7)
	require.False(t, result.Reached)
	require.Equal(t, 0, result.Tally.VotingTotal)
}

func TestEvaluateAgentConsensus_UnanimousYesReachesConsensus(t *testing.T) {
	responses := []core.AgentResponse{
		{Status: core.StatusOK, Vote: core.VoteYes, PositionID: strp("p1"), Confidence: 0.9},
		{Status: core.StatusOK, Vote: core.VoteYes, PositionID: strp("p1"), Confidence: 0.9},
	}

	result := EvaluateAgentConsensus(responses, "p1", 0.7)
	require.True(t, result.Reached)
	require.Equal(t, "unanimous", result.Method)
	require.Equal(t, "p1", result.PositionID)
}

func TestEvaluateAgentConsensus_SupermajorityBelowThresholdFails(t *testing.T) {
	responses := []core.AgentResponse{
		{Status: core.StatusOK, Vote: core.VoteYes, PositionID: strp("p1"), Confidence: 0.9},
		{Status: core.StatusOK, Vote: core.VoteNo, PositionID: strp("p1"), Confidence: 0.9},
		{Status: core.StatusOK, Vote: core.VoteNo, PositionID: strp("p1"), Confidence: 0.9},
	}

	// 1/3 yes, needs ceil(3*0.7)=3
	result := EvaluateAgentConsensus(responses, "p1", 0.7)
	require.False(t, result.Reached)
}

func TestEvaluateAgentConsensus_ErrorResponsesCountAsAbstainInTotal(t *testing.T) {
	responses := []core.AgentResponse{
		{Status: core.StatusOK, Vote: core.VoteYes, PositionID: strp("p1"), Confidence: 0.9},
		core.NewErrorResponse("a2", 2, 10, "timeout"),
	}

	result := EvaluateAgentConsensus(responses, "p1", 1.0)
	require.Equal(t, 1, result.Tally.Eligible)
	require.Equal(t, 2, result.Tally.Total)
	require.Equal(t, 1, result.Tally.Abstain)
}

func evalOK(judgeID, positionID string, confidence float64) core.JudgeEvaluation {
	return core.JudgeEvaluation{JudgeID: judgeID, SelectedPositionID: strp(positionID), Confidence: confidence, Status: core.StatusOK}
}

func TestEvaluateJudgeConsensus_MajorityAboveConfidenceReachesConsensus(t *testing.T) {
	evals := []core.JudgeEvaluation{
		evalOK("j1", "p1", 0.9),
		evalOK("j2", "p1", 0.8),
		evalOK("j3", "p2", 0.95),
	}

	result := EvaluateJudgeConsensus(evals, 0.6, 0.5, func(id string) string { return "text:" + id })
	require.True(t, result.Reached)
	require.Equal(t, "p1", result.WinnerID)
	require.Equal(t, 2, result.WinnerVotes)
	require.Len(t, result.Dissents, 1)
}

func TestEvaluateJudgeConsensus_BelowMinConfidenceFails(t *testing.T) {
	evals := []core.JudgeEvaluation{
		evalOK("j1", "p1", 0.4),
		evalOK("j2", "p1", 0.3),
	}

	result := EvaluateJudgeConsensus(evals, 0.5, 0.5, func(id string) string { return id })
	require.False(t, result.Reached)
	require.Equal(t, "p1", result.WinnerID, "winner is still reported even when confidence gate fails")
}

func TestEvaluateJudgeConsensus_NoEligibleEvaluationsReturnsEmptyResult(t *testing.T) {
	evals := []core.JudgeEvaluation{
		{JudgeID: "j1", Status: core.StatusError, SelectedPositionID: nil},
	}

	result := EvaluateJudgeConsensus(evals, 0.6, 0.5, func(id string) string { return id })
	require.False(t, result.Reached)
	require.Equal(t, "", result.WinnerID)
}

func TestEvaluateJudgeConsensus_TieBreaksOnMeanConfidence(t *testing.T) {
	evals := []core.JudgeEvaluation{
		evalOK("j1", "p1", 0.9),
		evalOK("j2", "p2", 0.5),
	}

	result := EvaluateJudgeConsensus(evals, 0.5, 0.4, func(id string) string { return id })
	require.Equal(t, "p1", result.WinnerID, "equal vote counts break on higher mean confidence")
}
