package core

// VerdictSource attributes a FinalVerdict to the process that produced it.
type VerdictSource string

const (
	SourceAgentConsensus VerdictSource = "agent_consensus"
	SourceJudgeConsensus VerdictSource = "judge_consensus"
	SourceDeadlock       VerdictSource = "deadlock"
)

// FinalVerdict is the session's single terminal outcome (spec.md §3). For
// Source == SourceDeadlock, PositionID/PositionText may be empty; otherwise
// PositionID MUST reference a position that appeared in some round.
type FinalVerdict struct {
	PositionID   string        `json:"positionId"`
	PositionText string        `json:"positionText"`
	Confidence   float64       `json:"confidence"`
	Source       VerdictSource `json:"source"`
}
