package core

// Phase is a DebateSession's position in the two-phase state machine
// (spec.md §4.6). The transition graph is declarative and closed: any edge
// not listed in legalTransitions is a programmer-fatal error, not a silent
// no-op (spec.md §9, "State-machine discipline").
type Phase string

const (
	PhaseInit             Phase = "init"
	PhaseAgentDebate      Phase = "agent_debate"
	PhaseJudgeEvaluation  Phase = "judge_evaluation"
	PhaseConsensusReached Phase = "consensus_reached"
	PhaseDeadlock         Phase = "deadlock"
)

// legalTransitions enumerates every edge the state machine permits.
var legalTransitions = map[Phase]map[Phase]bool{
	PhaseInit: {
		PhaseAgentDebate: true,
	},
	PhaseAgentDebate: {
		PhaseConsensusReached: true,
		PhaseJudgeEvaluation:  true,
		PhaseDeadlock:         true,
	},
	PhaseJudgeEvaluation: {
		PhaseConsensusReached: true,
		PhaseDeadlock:         true,
	},
	PhaseConsensusReached: {},
	PhaseDeadlock:         {},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to Phase) bool {
	edges, ok := legalTransitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

// Terminal reports whether p has no outgoing edges.
func (p Phase) Terminal() bool {
	edges, ok := legalTransitions[p]
	return ok && len(edges) == 0
}

// ValidPhase reports whether p is one of the five recognized phases.
func ValidPhase(p Phase) bool {
	_, ok := legalTransitions[p]
	return ok
}
