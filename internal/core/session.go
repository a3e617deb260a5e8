package core

import (
	"time"

	"github.com/hugo-lorenzo-mato/quorum-debate/internal/config"
)

// SessionMetadata accumulates session-wide bookkeeping (spec.md §3).
type SessionMetadata struct {
	EngineVersion  string     `json:"engineVersion"`
	StartedAt      time.Time  `json:"startedAt"`
	CompletedAt    *time.Time `json:"completedAt"`
	TotalTokens    int        `json:"totalTokens"`
	TotalCostUsd   float64    `json:"totalCostUsd"`
	PricingKnown   bool       `json:"pricingKnown"`
	CheckpointPath *string    `json:"checkpointPath"`
	TotalRetries   int        `json:"totalRetries"`
	TotalErrors    int        `json:"totalErrors"`
}

// DebateSession is the single owned record of one deliberation (spec.md §3).
// The State Manager is its exclusive owner: rounds are appended and never
// mutated after append.
type DebateSession struct {
	ID           string
	Topic        string
	InitialQuery string
	Phase        Phase
	Config       config.Config
	AgentRounds  []RoundResult
	JudgeRounds  []JudgeRoundResult
	FinalVerdict *FinalVerdict
	Metadata     SessionMetadata
}

// CurrentAgentRound returns the 1-based round number the session is about to
// run next, i.e. len(AgentRounds)+1.
func (s *DebateSession) CurrentAgentRound() int {
	return len(s.AgentRounds) + 1
}

// CurrentJudgeRound returns the 1-based judge round number to run next.
func (s *DebateSession) CurrentJudgeRound() int {
	return len(s.JudgeRounds) + 1
}

// LastAgentRound returns the most recently appended agent round, or nil if
// none has been appended yet.
func (s *DebateSession) LastAgentRound() *RoundResult {
	if len(s.AgentRounds) == 0 {
		return nil
	}
	return &s.AgentRounds[len(s.AgentRounds)-1]
}
