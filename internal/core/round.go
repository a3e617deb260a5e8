package core

import "time"

// RoundResult is the immutable record of one agent round (spec.md §3).
// Once appended to a DebateSession it is never mutated.
type RoundResult struct {
	RoundNumber           int             `json:"roundNumber"`
	CandidatePositionID   *string         `json:"candidatePositionId"`
	CandidatePositionText *string         `json:"candidatePositionText"`
	Responses             []AgentResponse `json:"responses"`
	ConsensusReached      bool            `json:"consensusReached"`
	ConsensusPositionID   *string         `json:"consensusPositionId"`
	ConsensusPositionText *string         `json:"consensusPositionText"`
	VoteTally             VoteTally       `json:"voteTally"`
	Timestamp             time.Time       `json:"timestamp"`
}

// JudgeEvaluation is one judge's verdict in a judge round (spec.md §3). Every
// judge must score every position presented to the panel.
type JudgeEvaluation struct {
	JudgeID            string         `json:"judgeId"`
	Round              int            `json:"round"`
	SelectedPositionID *string        `json:"selectedPositionId"`
	ScoresByPositionID map[string]int `json:"scoresByPositionId"`
	Reasoning          string         `json:"reasoning"`
	Confidence         float64        `json:"confidence"`
	TokenUsage         TokenUsage     `json:"tokenUsage"`
	LatencyMs          int64          `json:"latencyMs"`
	Status             ResponseStatus `json:"status"`
	Error              string         `json:"error,omitempty"`
}

// Eligible reports whether this evaluation counts toward judge consensus.
func (e JudgeEvaluation) Eligible() bool {
	return e.Status == StatusOK && e.SelectedPositionID != nil
}

// JudgeRoundResult is the judge-panel analogue of RoundResult.
type JudgeRoundResult struct {
	RoundNumber          int               `json:"roundNumber"`
	Evaluations          []JudgeEvaluation `json:"evaluations"`
	ConsensusReached     bool              `json:"consensusReached"`
	WinnerPositionID      *string          `json:"winnerPositionId"`
	WinnerPositionText    *string          `json:"winnerPositionText"`
	WinnerMeanConfidence  float64          `json:"winnerMeanConfidence"`
	RequiredVotes        int               `json:"requiredVotes"`
	WinnerVotes           int              `json:"winnerVotes"`
	Dissents             []JudgeEvaluation `json:"dissents"`
	Timestamp            time.Time         `json:"timestamp"`
}
