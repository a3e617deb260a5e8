package debate

import (
	"time"

	"github.com/hugo-lorenzo-mato/quorum-debate/internal/core"
)

// SpecVersion is the document version stamped into every DebateOutput
// (spec.md §6.1).
const SpecVersion = "quorum-debate/1"

// EngineVersion identifies the build producing a session's output, stamped
// into SessionMetadata.EngineVersion at session creation.
const EngineVersion = "0.1.0"

// DebateOutput is the engine's primary output document (spec.md §6.1).
type DebateOutput struct {
	Version      string              `json:"version"`
	Session      SessionSummary      `json:"session"`
	AgentDebate  AgentDebateSummary  `json:"agentDebate"`
	JudgePanel   JudgePanelSummary   `json:"judgePanel"`
	FinalVerdict *core.FinalVerdict  `json:"finalVerdict"`
}

// SessionSummary is the "session" block of a DebateOutput.
type SessionSummary struct {
	ID            string     `json:"id"`
	Topic         string     `json:"topic"`
	InitialQuery  *string    `json:"initialQuery"`
	Phase         core.Phase `json:"phase"`
	StartedAt     string     `json:"startedAt"`
	CompletedAt   *string    `json:"completedAt"`
	TotalTokens   int        `json:"totalTokens"`
	TotalCostUsd  float64    `json:"totalCostUsd"`
	PricingKnown  bool       `json:"pricingKnown"`
	EngineVersion string     `json:"engineVersion"`
	TotalRetries  int        `json:"totalRetries"`
	TotalErrors   int        `json:"totalErrors"`
}

// AgentDebateSummary is the "agentDebate" block.
type AgentDebateSummary struct {
	Rounds                []core.RoundResult `json:"rounds"`
	FinalPositionID       *string             `json:"finalPositionId"`
	FinalPositionText     *string             `json:"finalPositionText"`
}

// JudgePanelSummary is the "judgePanel" block.
type JudgePanelSummary struct {
	Enabled bool                    `json:"enabled"`
	Rounds  []core.JudgeRoundResult `json:"rounds"`
	Final   *JudgePanelFinal        `json:"final"`
}

// JudgePanelFinal is the judge panel's consensus outcome, nil if the judge
// phase never ran or never reached consensus.
type JudgePanelFinal struct {
	ConsensusPositionID   string                  `json:"consensusPositionId"`
	ConsensusPositionText string                  `json:"consensusPositionText"`
	ConsensusConfidence   float64                 `json:"consensusConfidence"`
	Dissents              []core.JudgeEvaluation  `json:"dissents"`
}

// BuildDebateOutput assembles the final document from a terminal session
// (spec.md §4.7's "Output" step, §6.1).
func BuildDebateOutput(session *core.DebateSession, judgePanelEnabled bool) DebateOutput {
	out := DebateOutput{
		Version: SpecVersion,
		Session: SessionSummary{
			ID:            session.ID,
			Topic:         session.Topic,
			Phase:         session.Phase,
			StartedAt:     formatTimeRFC3339(session.Metadata.StartedAt),
			TotalTokens:   session.Metadata.TotalTokens,
			TotalCostUsd:  session.Metadata.TotalCostUsd,
			PricingKnown:  session.Metadata.PricingKnown,
			EngineVersion: session.Metadata.EngineVersion,
			TotalRetries:  session.Metadata.TotalRetries,
			TotalErrors:   session.Metadata.TotalErrors,
		},
		AgentDebate: AgentDebateSummary{Rounds: session.AgentRounds},
		JudgePanel:  JudgePanelSummary{Enabled: judgePanelEnabled, Rounds: session.JudgeRounds},
		FinalVerdict: session.FinalVerdict,
	}

	if session.InitialQuery != "" {
		q := session.InitialQuery
		out.Session.InitialQuery = &q
	}
	if session.Metadata.CompletedAt != nil {
		c := formatTimeRFC3339(*session.Metadata.CompletedAt)
		out.Session.CompletedAt = &c
	}

	if last := session.LastAgentRound(); last != nil && last.ConsensusReached {
		out.AgentDebate.FinalPositionID = last.ConsensusPositionID
		out.AgentDebate.FinalPositionText = last.ConsensusPositionText
	}

	if len(session.JudgeRounds) > 0 {
		last := session.JudgeRounds[len(session.JudgeRounds)-1]
		if last.ConsensusReached {
			out.JudgePanel.Final = &JudgePanelFinal{
				ConsensusPositionID:   derefString(last.WinnerPositionID),
				ConsensusPositionText: derefString(last.WinnerPositionText),
				ConsensusConfidence:   last.WinnerMeanConfidence,
				Dissents:              last.Dissents,
			}
		}
	}

	return out
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatTimeRFC3339(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
