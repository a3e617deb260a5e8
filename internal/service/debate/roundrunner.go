package debate

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hugo-lorenzo-mato/quorum-debate/internal/adapters/model"
	"github.com/hugo-lorenzo-mato/quorum-debate/internal/config"
	"github.com/hugo-lorenzo-mato/quorum-debate/internal/core"
)

// charsPerToken approximates token count from prompt text length when a
// provider does not report exact usage (spec.md §4.5): 4 characters/token.
const charsPerToken = 4

// truncationMarker separates the head and tail of a middle-elided prompt
// section that exceeded its token budget.
const truncationMarker = "\n...[truncated]...\n"

// OnRetryFunc is invoked by the Round Runner on every retry attempt it
// drives through a RetryPolicy, so the State Manager can count it toward
// DebateSession.Metadata.TotalRetries.
type RoundOnRetryFunc func(participantID string, attempt int, err error, delay time.Duration)

// RoundRunner fans agent and judge calls out across a round with bounded
// concurrency (spec.md §4.5), grounded on the teacher's
// sync.WaitGroup-plus-mutex fan-out in workflow/analyzer.go: every
// participant gets a slot in the round regardless of how others finish,
// so a context cancellation or an adapter failure never shrinks the
// round's cardinality — it produces an error response instead.
type RoundRunner struct {
	Registry *model.Registry
	OnRetry  RoundOnRetryFunc
}

// NewRoundRunner constructs a RoundRunner over a populated Adapter Registry.
func NewRoundRunner(registry *model.Registry) *RoundRunner {
	return &RoundRunner{Registry: registry}
}

// judgedPosition is one distinct position a judge panel scores in a judge
// round: the fixed positions set built by the orchestrator from the agent
// rounds in scope (spec.md §4.6, §9 judgePositionsScope decision).
type judgedPosition struct {
	ID   string
	Text string
}

// RunAgentRound executes one agent round: every agent in agents runs
// concurrently, bounded by cfg.Concurrency.MaxConcurrentRequests, and the
// result slice is indexed by agents' position so ordering never depends on
// completion order (spec.md §5 concurrency model).
func (rr *RoundRunner) RunAgentRound(ctx context.Context, cfg config.Config, agents []config.AgentConfig, roundNumber int, candidateID, candidateText string, history []core.RoundResult) []core.AgentResponse {
	responses := make([]core.AgentResponse, len(agents))
	limit := int64(cfg.Concurrency.MaxConcurrentRequests)
	if limit < 1 {
		limit = 1
	}
	sem := semaphore.NewWeighted(limit)
	var wg sync.WaitGroup

	for i, agent := range agents {
		i, agent := i, agent
		if err := sem.Acquire(ctx, 1); err != nil {
			for j := i; j < len(agents); j++ {
				responses[j] = core.NewErrorResponse(agents[j].ID, roundNumber, 0, "round canceled: "+err.Error())
			}
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			responses[i] = rr.runOneAgent(ctx, cfg, agent, roundNumber, candidateID, candidateText, history)
		}()
	}
	wg.Wait()
	return responses
}

// RunJudgeRound executes one judge-panel round the same way RunAgentRound
// does, over the fixed positions set the orchestrator assembled.
func (rr *RoundRunner) RunJudgeRound(ctx context.Context, cfg config.Config, judges []config.AgentConfig, roundNumber int, positions []judgedPosition) []core.JudgeEvaluation {
	evaluations := make([]core.JudgeEvaluation, len(judges))
	limit := int64(cfg.Concurrency.MaxConcurrentRequests)
	if limit < 1 {
		limit = 1
	}
	sem := semaphore.NewWeighted(limit)
	var wg sync.WaitGroup

	for i, judge := range judges {
		i, judge := i, judge
		if err := sem.Acquire(ctx, 1); err != nil {
			for j := i; j < len(judges); j++ {
				evaluations[j] = errorJudgeEvaluation(judges[j].ID, roundNumber, 0, "round canceled: "+err.Error())
			}
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			evaluations[i] = rr.runOneJudge(ctx, cfg, judge, roundNumber, positions)
		}()
	}
	wg.Wait()
	return evaluations
}

// --- agent pipeline -------------------------------------------------------

// agentResponseSchemaHint documents the wire shape for providers that accept
// a schema hint alongside the prompt.
const agentResponseSchemaHint = `{"vote":"yes|no|abstain","targetPositionId":"string, required when vote=yes","newPositionText":"string, required in round 1 and whenever vote=no/abstain proposes a replacement","reasoning":"string","confidence":0.0}`

type wireAgentResponse struct {
	Vote             string  `json:"vote"`
	TargetPositionID string  `json:"targetPositionId"`
	NewPositionText  string  `json:"newPositionText"`
	Reasoning        string  `json:"reasoning"`
	Confidence       float64 `json:"confidence"`
}

func (rr *RoundRunner) runOneAgent(ctx context.Context, cfg config.Config, agent config.AgentConfig, roundNumber int, candidateID, candidateText string, history []core.RoundResult) core.AgentResponse {
	start := time.Now()

	adapter, err := rr.Registry.Get(participantConfig(agent))
	if err != nil {
		return core.NewErrorResponse(agent.ID, roundNumber, time.Since(start).Milliseconds(), err.Error())
	}

	userPrompt := buildAgentPrompt(cfg, agent, roundNumber, candidateID, candidateText, history)

	callResp, execErr := rr.invoke(ctx, cfg, agent.ID, func(ctx context.Context) (model.CallResponse, error) {
		return adapter.Call(ctx, model.CallRequest{
			SystemPrompt:  agent.SystemPrompt,
			UserPrompt:    userPrompt,
			MaxTokens:     effectiveMaxTokens(cfg.Limits.MaxTokensPerResponse, agent.MaxTokens),
			Temperature:   agent.Temperature,
			TimeoutBudget: time.Duration(cfg.Timeouts.ModelMs) * time.Millisecond,
			SchemaHint:    agentResponseSchemaHint,
		})
	})

	latency := time.Since(start).Milliseconds()
	if execErr != nil {
		return core.NewErrorResponse(agent.ID, roundNumber, latency, execErr.Error())
	}

	wire, parseErr := decodeWithRepair[wireAgentResponse](callResp.Content, cfg.DeterministicMode)
	if parseErr != nil {
		return core.NewErrorResponse(agent.ID, roundNumber, latency, parseErr.Error())
	}

	response, err := normalizeAgentResponse(agent.ID, roundNumber, latency, candidateID, candidateText, wire, callResp.TokenUsage)
	if err != nil {
		return core.NewErrorResponse(agent.ID, roundNumber, latency, err.Error())
	}
	return response
}

// normalizeAgentResponse implements spec.md §4.5's per-response processing
// step 4: a "yes" vote must target the round's candidate verbatim (its
// positionId is the candidate's id, its text the candidate's text); a "no"
// or "abstain" vote derives its position, if any, by hashing newPositionText
// (round 1's agents always land here, since round 1 has no candidate to
// vote yes on).
func normalizeAgentResponse(agentID string, round int, latencyMs int64, candidateID, candidateText string, wire wireAgentResponse, usage core.TokenUsage) (core.AgentResponse, error) {
	vote := core.Vote(strings.ToLower(strings.TrimSpace(wire.Vote)))
	if !core.ValidVote(vote) {
		return core.AgentResponse{}, fmt.Errorf("invalid vote %q", wire.Vote)
	}
	if round == 1 && vote != core.VoteAbstain {
		return core.AgentResponse{}, fmt.Errorf("round 1 requires vote=abstain, got %q", vote)
	}
	if wire.Confidence < 0 || wire.Confidence > 1 {
		return core.AgentResponse{}, fmt.Errorf("confidence %.4f out of [0,1]", wire.Confidence)
	}

	reasoning := strings.TrimSpace(wire.Reasoning)
	if len(reasoning) < core.MinReasoningLen || len(reasoning) > core.MaxReasoningLen {
		return core.AgentResponse{}, fmt.Errorf("reasoning length %d out of [%d,%d]", len(reasoning), core.MinReasoningLen, core.MaxReasoningLen)
	}

	var positionID *string
	var positionText string

	if vote == core.VoteYes {
		target := strings.TrimSpace(wire.TargetPositionID)
		if candidateID == "" || target == "" || target != candidateID {
			return core.AgentResponse{}, fmt.Errorf("yes vote must set targetPositionId to the round's candidate position")
		}
		id := candidateID
		positionID = &id
		positionText = candidateText
	} else {
		newText := strings.TrimSpace(wire.NewPositionText)
		if vote == core.VoteNo && newText == "" {
			return core.AgentResponse{}, fmt.Errorf("no vote requires a fresh newPositionText")
		}
		if newText != "" {
			if len(newText) < core.MinPositionTextLen || len(newText) > core.MaxPositionTextLen {
				return core.AgentResponse{}, fmt.Errorf("position text length %d out of [%d,%d]", len(newText), core.MinPositionTextLen, core.MaxPositionTextLen)
			}
			id := core.PositionID(newText)
			positionID = &id
			positionText = newText
		}
	}

	return core.AgentResponse{
		AgentID:      agentID,
		Round:        round,
		PositionID:   positionID,
		PositionText: positionText,
		Reasoning:    reasoning,
		Vote:         vote,
		Confidence:   wire.Confidence,
		TokenUsage:   usage,
		LatencyMs:    latencyMs,
		Status:       core.StatusOK,
	}, nil
}

// --- judge pipeline --------------------------------------------------------

const judgeResponseSchemaHint = `{"selectedPositionId":"string","scoresByPositionId":{"id":0},"reasoning":"string","confidence":0.0}`

type wireJudgeResponse struct {
	SelectedPositionID string         `json:"selectedPositionId"`
	ScoresByPositionID map[string]int `json:"scoresByPositionId"`
	Reasoning          string         `json:"reasoning"`
	Confidence         float64        `json:"confidence"`
}

func (rr *RoundRunner) runOneJudge(ctx context.Context, cfg config.Config, judge config.AgentConfig, roundNumber int, positions []judgedPosition) core.JudgeEvaluation {
	start := time.Now()

	adapter, err := rr.Registry.Get(participantConfig(judge))
	if err != nil {
		return errorJudgeEvaluation(judge.ID, roundNumber, time.Since(start).Milliseconds(), err.Error())
	}

	userPrompt := buildJudgePrompt(cfg, judge, roundNumber, positions)

	callResp, execErr := rr.invoke(ctx, cfg, judge.ID, func(ctx context.Context) (model.CallResponse, error) {
		return adapter.Call(ctx, model.CallRequest{
			SystemPrompt:  judge.SystemPrompt,
			UserPrompt:    userPrompt,
			MaxTokens:     effectiveMaxTokens(cfg.Limits.MaxTokensPerResponse, judge.MaxTokens),
			Temperature:   judge.Temperature,
			TimeoutBudget: time.Duration(cfg.Timeouts.ModelMs) * time.Millisecond,
			SchemaHint:    judgeResponseSchemaHint,
		})
	})

	latency := time.Since(start).Milliseconds()
	if execErr != nil {
		return errorJudgeEvaluation(judge.ID, roundNumber, latency, execErr.Error())
	}

	wire, parseErr := decodeWithRepair[wireJudgeResponse](callResp.Content, cfg.DeterministicMode)
	if parseErr != nil {
		return errorJudgeEvaluation(judge.ID, roundNumber, latency, parseErr.Error())
	}

	evaluation, err := normalizeJudgeEvaluation(judge.ID, roundNumber, latency, wire, callResp.TokenUsage, positions)
	if err != nil {
		return errorJudgeEvaluation(judge.ID, roundNumber, latency, err.Error())
	}
	return evaluation
}

func normalizeJudgeEvaluation(judgeID string, round int, latencyMs int64, wire wireJudgeResponse, usage core.TokenUsage, positions []judgedPosition) (core.JudgeEvaluation, error) {
	if wire.Confidence < 0 || wire.Confidence > 1 {
		return core.JudgeEvaluation{}, fmt.Errorf("confidence %.4f out of [0,1]", wire.Confidence)
	}
	selected := strings.TrimSpace(wire.SelectedPositionID)
	found := false
	for _, p := range positions {
		if p.ID == selected {
			found = true
			break
		}
	}
	if selected == "" || !found {
		return core.JudgeEvaluation{}, fmt.Errorf("selectedPositionId %q is not one of the positions under evaluation", selected)
	}

	id := selected
	return core.JudgeEvaluation{
		JudgeID:            judgeID,
		Round:              round,
		SelectedPositionID: &id,
		ScoresByPositionID: wire.ScoresByPositionID,
		Reasoning:          strings.TrimSpace(wire.Reasoning),
		Confidence:         wire.Confidence,
		TokenUsage:         usage,
		LatencyMs:          latencyMs,
		Status:             core.StatusOK,
	}, nil
}

func errorJudgeEvaluation(judgeID string, round int, latencyMs int64, reason string) core.JudgeEvaluation {
	return core.JudgeEvaluation{
		JudgeID:    judgeID,
		Round:      round,
		TokenUsage: core.TokenUsage{Estimated: true},
		LatencyMs:  latencyMs,
		Status:     core.StatusError,
		Error:      reason,
	}
}

// --- shared call/parse machinery -------------------------------------------

// effectiveMaxTokens enforces spec.md §5's per-response token cap: a
// participant's own MaxTokens never raises the request above
// Limits.MaxTokensPerResponse, and an unset (zero) participant MaxTokens
// falls back to the limit outright.
func effectiveMaxTokens(limit, requested int) int {
	if requested <= 0 || requested > limit {
		return limit
	}
	return requested
}

func participantConfig(agent config.AgentConfig) model.ParticipantConfig {
	return model.ParticipantConfig{
		ID:            agent.ID,
		Provider:      agent.Provider,
		Model:         agent.Model,
		Endpoint:      agent.Endpoint,
		CredentialEnv: agent.CredentialEnv,
		MaxTokens:     agent.MaxTokens,
	}
}

// invoke wraps one participant's adapter call in a RetryPolicy built from
// cfg.Retries (spec.md §4.2), reporting each retry through rr.OnRetry.
func (rr *RoundRunner) invoke(ctx context.Context, cfg config.Config, participantID string, call func(ctx context.Context) (model.CallResponse, error)) (model.CallResponse, error) {
	policy := NewRetryPolicy(cfg.Retries.MaxAttempts, cfg.Retries.BaseDelayMs, cfg.Retries.MaxDelayMs, cfg.DeterministicMode)

	var resp model.CallResponse
	execErr := policy.Execute(ctx, func(ctx context.Context) error {
		r, err := call(ctx)
		if err != nil {
			return err
		}
		resp = r
		return nil
	}, func(attempt int, err error, delay time.Duration) {
		if rr.OnRetry != nil {
			rr.OnRetry(participantID, attempt, err, delay)
		}
	})
	if execErr != nil {
		return model.CallResponse{}, execErr
	}
	return resp, nil
}

// decodeWithRepair runs ParseWithRepair over raw, falling back to the
// third-party salvage pass when the pipeline fails and the session is not
// in deterministic mode (spec.md §4.3), then decodes into T.
func decodeWithRepair[T any](raw string, deterministic bool) (T, error) {
	var out T

	parsed := ParseWithRepair(raw, !deterministic)
	if !parsed.OK && !deterministic {
		if salvaged, err := FallbackRepair(raw); err == nil {
			if retried := ParseWithRepair(salvaged, false); retried.OK {
				parsed = retried
			}
		}
	}
	if !parsed.OK {
		return out, fmt.Errorf("model output was not valid JSON: %s", parsed.Reason)
	}

	if err := json.Unmarshal([]byte(parsed.Value), &out); err != nil {
		return out, fmt.Errorf("schema decode failed: %w", err)
	}
	return out, nil
}

// --- prompt construction ----------------------------------------------------

func buildAgentPrompt(cfg config.Config, agent config.AgentConfig, roundNumber int, candidateID, candidateText string, history []core.RoundResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Topic: %s\n", cfg.Topic)
	fmt.Fprintf(&b, "Question: %s\n\n", cfg.InitialQuery)

	if roundNumber == 1 {
		b.WriteString("This is round 1. There is no candidate position yet. Set vote=\"abstain\" and propose your initial position in newPositionText, with your reasoning and confidence.\n\n")
	} else {
		fmt.Fprintf(&b, "This is round %d. The current candidate position is:\n", roundNumber)
		fmt.Fprintf(&b, "  [%s] %s\n\n", candidateID, candidateText)
		fmt.Fprintf(&b, "Vote \"yes\" to support the candidate as-is, setting targetPositionId to %q, or \"no\"/\"abstain\" to reject it (optionally proposing a replacement position in newPositionText). Explain your reasoning.\n\n", candidateID)
	}

	if historyBlock := buildContextBlock(cfg.ContextTopology, history, agent.ID, cfg.Limits.MaxContextTokens); historyBlock != "" {
		b.WriteString("Debate history:\n")
		b.WriteString(historyBlock)
		b.WriteString("\n")
	}

	b.WriteString("Respond with a single JSON object matching this shape: ")
	b.WriteString(agentResponseSchemaHint)
	return b.String()
}

func buildJudgePrompt(cfg config.Config, judge config.AgentConfig, roundNumber int, positions []judgedPosition) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Topic: %s\n", cfg.Topic)
	fmt.Fprintf(&b, "Question: %s\n\n", cfg.InitialQuery)
	fmt.Fprintf(&b, "Judge round %d. The agent debate did not reach consensus. Evaluate the following positions and select the one you judge strongest, scoring each on a 0-10 scale and explaining your reasoning.\n\n", roundNumber)

	sorted := append([]judgedPosition(nil), positions...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	for _, p := range sorted {
		fmt.Fprintf(&b, "  [%s] %s\n", p.ID, truncateToTokenBudget(p.Text, cfg.Limits.MaxContextTokens/max(len(sorted), 1)))
	}

	b.WriteString("\nRespond with a single JSON object matching this shape: ")
	b.WriteString(judgeResponseSchemaHint)
	return b.String()
}

// buildContextBlock renders the debate history an agent sees, per the
// context topology configured for the session (spec.md §4.5, §9):
//
//   - FULL_HISTORY: every prior round's responses in full.
//   - LAST_ROUND: only the responses other agents gave last round.
//   - LAST_ROUND_WITH_SELF (default): the last round's responses from every
//     other agent, unioned with this agent's own responses from every prior
//     round, so an agent's earlier reasoning is never dropped from its own
//     context even as older rounds age out for everyone else.
//   - SUMMARY: a one-line-per-round digest (candidate, tally, consensus)
//     instead of full response text, for long debates.
func buildContextBlock(topology string, history []core.RoundResult, agentID string, maxContextTokens int) string {
	if len(history) == 0 {
		return ""
	}

	var b strings.Builder
	switch topology {
	case config.TopologyFullHistory:
		for _, round := range history {
			writeRoundResponses(&b, round, agentID, true)
		}
	case config.TopologyLastRound:
		writeRoundResponses(&b, history[len(history)-1], agentID, false)
	case config.TopologySummary:
		for _, round := range history {
			writeRoundSummary(&b, round)
		}
	default: // config.TopologyLastRoundSelf
		lastRound := len(history) - 1
		for i, round := range history {
			if i == lastRound {
				writeRoundResponses(&b, round, agentID, true)
			} else {
				writeRoundResponsesSelfOnly(&b, round, agentID)
			}
		}
	}

	return truncateToTokenBudget(b.String(), maxContextTokens)
}

func writeRoundResponses(b *strings.Builder, round core.RoundResult, agentID string, includeSelf bool) {
	fmt.Fprintf(b, "Round %d:\n", round.RoundNumber)
	for _, r := range round.Responses {
		if !includeSelf && r.AgentID == agentID {
			continue
		}
		fmt.Fprintf(b, "  %s voted %s (confidence %.2f): %s\n", r.AgentID, r.Vote, r.Confidence, r.Reasoning)
	}
}

// writeRoundResponsesSelfOnly renders only agentID's own response from round,
// carrying an earlier round's self-reasoning forward even once that round
// has otherwise aged out of the LAST_ROUND_WITH_SELF window (spec.md §4.5).
func writeRoundResponsesSelfOnly(b *strings.Builder, round core.RoundResult, agentID string) {
	for _, r := range round.Responses {
		if r.AgentID != agentID {
			continue
		}
		fmt.Fprintf(b, "Round %d (your prior response):\n", round.RoundNumber)
		fmt.Fprintf(b, "  %s voted %s (confidence %.2f): %s\n", r.AgentID, r.Vote, r.Confidence, r.Reasoning)
	}
}

func writeRoundSummary(b *strings.Builder, round core.RoundResult) {
	candidate := "none"
	if round.CandidatePositionID != nil {
		candidate = *round.CandidatePositionID
	}
	fmt.Fprintf(b, "Round %d: candidate=%s yes=%d no=%d abstain=%d consensus=%t\n",
		round.RoundNumber, candidate, round.VoteTally.Yes, round.VoteTally.No, round.VoteTally.Abstain, round.ConsensusReached)
}

// truncateToTokenBudget middle-elides s so its approximate token count
// (len/charsPerToken) does not exceed maxTokens (spec.md §4.5). maxTokens<=0
// disables the budget.
func truncateToTokenBudget(s string, maxTokens int) string {
	if maxTokens <= 0 {
		return s
	}
	budget := maxTokens * charsPerToken
	if len(s) <= budget {
		return s
	}
	if budget <= len(truncationMarker) {
		return s[:budget]
	}
	remaining := budget - len(truncationMarker)
	head := remaining / 2
	tail := remaining - head
	return s[:head] + truncationMarker + s[len(s)-tail:]
}
