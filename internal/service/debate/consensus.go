// Package debate implements the debate orchestration engine's core
// components: consensus evaluation, candidate selection, JSON repair, the
// round runner, the state manager, and the orchestrator loop. It is
// organized as a single package the way the teacher's internal/service/workflow
// package groups the runner, arbiter, and DAG builder together.
package debate

import (
	"math"
	"sort"

	"github.com/hugo-lorenzo-mato/quorum-debate/internal/core"
)

// AgentConsensusResult is the outcome of evaluating one agent round against
// a candidate position (spec.md §4.4.1).
type AgentConsensusResult struct {
	Tally            core.VoteTally
	Reached          bool
	Method           string // "unanimous" | "supermajority" | ""
	PositionID       string
	PositionText     string
}

// EvaluateAgentConsensus implements spec.md §4.4.1. candidateID may be empty
// (round 1 has no candidate).
func EvaluateAgentConsensus(responses []core.AgentResponse, candidateID string, threshold float64) AgentConsensusResult {
	var eligible []core.AgentResponse
	for _, r := range responses {
		if r.Eligible() {
			eligible = append(eligible, r)
		}
	}

	var yes, no, abstain int
	var yesPositionText string
	for _, r := range eligible {
		switch r.Vote {
		case core.VoteYes:
			if candidateID != "" && r.PositionID != nil && *r.PositionID == candidateID {
				yes++
				if yesPositionText == "" {
					yesPositionText = r.PositionText
				}
			}
		case core.VoteNo:
			no++
		case core.VoteAbstain:
			abstain++
		}
	}

	// Errors count as abstain toward total (spec.md §3: error responses
	// carry vote=abstain); those are not in `eligible` but are accounted
	// for separately in Total below to satisfy invariant 2.
	errAbstain := 0
	for _, r := range responses {
		if !r.Eligible() {
			errAbstain++
		}
	}

	votingTotal := yes + no
	tally := core.VoteTally{
		Yes:         yes,
		No:          no,
		Abstain:     abstain + errAbstain,
		Total:       yes + no + abstain + errAbstain,
		Eligible:    len(eligible),
		VotingTotal: votingTotal,
	}

	if candidateID == "" || votingTotal == 0 {
		return AgentConsensusResult{Tally: tally}
	}

	required := int(math.Ceil(float64(votingTotal) * threshold))
	tally.SupermajorityThreshold = required

	if yes < required {
		return AgentConsensusResult{Tally: tally}
	}

	method := "supermajority"
	if yes == votingTotal {
		method = "unanimous"
	}
	tally.SupermajorityReached = true

	return AgentConsensusResult{
		Tally:        tally,
		Reached:      true,
		Method:       method,
		PositionID:   candidateID,
		PositionText: yesPositionText,
	}
}

// candidateAggregate accumulates SupportScore/SupporterCount for one
// position during candidate selection.
type candidateAggregate struct {
	positionID   string
	positionText string
	supportScore float64
	supporters   int
}

// SelectCandidate implements spec.md §4.4.2: deterministic next-round
// candidate selection from every eligible response that proposed or
// referenced a position. Round 1 is entirely vote=abstain by construction
// (spec.md §4.5), yet its proposals must seed round 2's candidate (spec.md
// §8 scenario A) — so a response counts here whenever it carries a
// positionId, abstain included; only responses with no position at all
// (nil positionId) are excluded. Returns ("", "") when there is nothing to
// select from (spec.md §9 open question: zero eligible responses with a
// position).
func SelectCandidate(responses []core.AgentResponse) (positionID, positionText string) {
	byPosition := map[string]*candidateAggregate{}
	var order []string

	for _, r := range responses {
		if !r.Eligible() || r.PositionID == nil {
			continue
		}
		id := *r.PositionID
		agg, ok := byPosition[id]
		if !ok {
			agg = &candidateAggregate{positionID: id, positionText: r.PositionText}
			byPosition[id] = agg
			order = append(order, id)
		}
		agg.supportScore += r.Confidence
		agg.supporters++
		if agg.positionText == "" {
			agg.positionText = r.PositionText
		}
	}

	if len(order) == 0 {
		return "", ""
	}

	aggs := make([]*candidateAggregate, 0, len(order))
	for _, id := range order {
		aggs = append(aggs, byPosition[id])
	}

	sort.Slice(aggs, func(i, j int) bool {
		a, b := aggs[i], aggs[j]
		if a.supportScore != b.supportScore {
			return a.supportScore > b.supportScore
		}
		if a.supporters != b.supporters {
			return a.supporters > b.supporters
		}
		return a.positionID < b.positionID
	})

	head := aggs[0]
	return head.positionID, head.positionText
}

// JudgeConsensusResult is the outcome of evaluating one judge round
// (spec.md §4.4.3).
type JudgeConsensusResult struct {
	Reached        bool
	WinnerID       string
	WinnerText     string
	MeanConfidence float64
	RequiredVotes  int
	WinnerVotes    int
	Dissents       []core.JudgeEvaluation
}

// EvaluateJudgeConsensus implements spec.md §4.4.3. positionText resolves a
// positionId to its text (from the fixed positions set judges voted over).
func EvaluateJudgeConsensus(evaluations []core.JudgeEvaluation, majorityThreshold, minConfidence float64, positionText func(id string) string) JudgeConsensusResult {
	var eligible []core.JudgeEvaluation
	for _, e := range evaluations {
		if e.Eligible() {
			eligible = append(eligible, e)
		}
	}
	if len(eligible) == 0 {
		return JudgeConsensusResult{}
	}

	required := int(math.Ceil(float64(len(eligible)) * majorityThreshold))

	votes := map[string]int{}
	confidences := map[string][]float64{}
	var ids []string
	for _, e := range eligible {
		id := *e.SelectedPositionID
		if _, ok := votes[id]; !ok {
			ids = append(ids, id)
		}
		votes[id]++
		confidences[id] = append(confidences[id], e.Confidence)
	}
	sort.Strings(ids)

	meanOf := func(id string) float64 {
		cs := confidences[id]
		if len(cs) == 0 {
			return 0
		}
		sum := 0.0
		for _, c := range cs {
			sum += c
		}
		return sum / float64(len(cs))
	}

	winner := ids[0]
	for _, id := range ids[1:] {
		if votes[id] > votes[winner] {
			winner = id
		} else if votes[id] == votes[winner] && meanOf(id) > meanOf(winner) {
			winner = id
		}
	}

	winnerMean := meanOf(winner)

	var dissents []core.JudgeEvaluation
	for _, e := range eligible {
		if *e.SelectedPositionID != winner {
			dissents = append(dissents, e)
		}
	}

	result := JudgeConsensusResult{
		WinnerID:       winner,
		WinnerText:     positionText(winner),
		MeanConfidence: winnerMean,
		RequiredVotes:  required,
		WinnerVotes:    votes[winner],
		Dissents:       dissents,
	}

	if votes[winner] < required {
		return result
	}
	if winnerMean < minConfidence {
		return result
	}

	result.Reached = true
	return result
}
