package debate

import (
	"fmt"
	"time"

	"github.com/hugo-lorenzo-mato/quorum-debate/internal/core"
)

// StateManager owns one DebateSession exclusively: every phase transition,
// round append, and counter increment goes through it, mirroring the
// teacher's StateManager interface in service/workflow/runner.go (state
// ownership + locking) generalized to the debate session shape.
type StateManager struct {
	session *core.DebateSession
}

// NewStateManager wraps an already-constructed session (fresh or resumed
// from a checkpoint) for phase-transition-enforced mutation.
func NewStateManager(session *core.DebateSession) *StateManager {
	return &StateManager{session: session}
}

// Session returns the owned session. Callers must not mutate its fields
// directly; use the StateManager's methods instead.
func (sm *StateManager) Session() *core.DebateSession {
	return sm.session
}

// Transition moves the session to a new phase, panicking if the edge is
// illegal (spec.md §4.6: an illegal transition is a programmer error, never
// a silently-ignored no-op). Entering a terminal phase stamps CompletedAt.
func (sm *StateManager) Transition(to core.Phase) {
	from := sm.session.Phase
	if !core.CanTransition(from, to) {
		panic(core.ErrStateMachine(string(from), string(to)))
	}
	sm.session.Phase = to
	if to.Terminal() && sm.session.Metadata.CompletedAt == nil {
		now := time.Now().UTC()
		sm.session.Metadata.CompletedAt = &now
	}
}

// AppendAgentRound records one completed agent round. It is an append-only
// operation: previously appended rounds are never mutated.
func (sm *StateManager) AppendAgentRound(round core.RoundResult) {
	sm.session.AgentRounds = append(sm.session.AgentRounds, round)
}

// AppendJudgeRound records one completed judge round.
func (sm *StateManager) AppendJudgeRound(round core.JudgeRoundResult) {
	sm.session.JudgeRounds = append(sm.session.JudgeRounds, round)
}

// SetFinalVerdict sets the session's terminal verdict exactly once.
// Calling it twice is a programmer error (spec.md §3: FinalVerdict is set
// exactly once, on entry to a terminal phase).
func (sm *StateManager) SetFinalVerdict(v core.FinalVerdict) {
	if sm.session.FinalVerdict != nil {
		panic("debate: final verdict already set for session " + sm.session.ID)
	}
	sm.session.FinalVerdict = &v
}

// RecordUsage accumulates token/cost counters from one adapter response.
func (sm *StateManager) RecordUsage(usage core.TokenUsage, costUsd float64, pricingKnown bool) {
	sm.session.Metadata.TotalTokens += usage.Total
	sm.session.Metadata.TotalCostUsd += costUsd
	if pricingKnown {
		sm.session.Metadata.PricingKnown = true
	}
}

// RecordError increments the session's total-errors counter, called once
// per error-status response a round produces.
func (sm *StateManager) RecordError() {
	sm.session.Metadata.TotalErrors++
}

// CheckLimits returns a fatal *core.DomainError the moment cumulative usage
// recorded so far breaches the session's configured resource limits
// (spec.md §5 "Resource limits"; §7 "Limit breaches ... Fatal; partial
// output retained"). Callers check this right after RecordUsage for a
// round's responses so a breach is caught before the next round starts.
func (sm *StateManager) CheckLimits() error {
	limits := sm.session.Config.Limits
	meta := sm.session.Metadata
	if meta.TotalTokens > limits.MaxTotalTokens {
		return core.ErrLimitExceeded("MAX_TOTAL_TOKENS_EXCEEDED",
			fmt.Sprintf("cumulative tokens %d exceeds limit %d", meta.TotalTokens, limits.MaxTotalTokens))
	}
	if meta.TotalCostUsd > limits.MaxTotalCostUsd {
		return core.ErrLimitExceeded("MAX_TOTAL_COST_EXCEEDED",
			fmt.Sprintf("cumulative cost $%.4f exceeds limit $%.2f", meta.TotalCostUsd, limits.MaxTotalCostUsd))
	}
	return nil
}

// RecordRetry increments the session's total-retries counter; wired as the
// RoundRunner's OnRetry callback so every retry attempt, across every
// participant, is counted (spec.md §4.2's onRetry hook).
func (sm *StateManager) RecordRetry(participantID string, attempt int, err error, delay time.Duration) {
	sm.session.Metadata.TotalRetries++
}

// CountErrors tallies error-status responses in a batch, for callers that
// want to record a whole round's errors in one call.
func CountErrors(responses []core.AgentResponse) int {
	n := 0
	for _, r := range responses {
		if r.Status == core.StatusError {
			n++
		}
	}
	return n
}

// CountJudgeErrors is CountErrors' judge-evaluation analogue.
func CountJudgeErrors(evaluations []core.JudgeEvaluation) int {
	n := 0
	for _, e := range evaluations {
		if e.Status == core.StatusError {
			n++
		}
	}
	return n
}
