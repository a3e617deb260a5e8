package debate

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/quorum-debate/internal/adapters/model"
	"github.com/hugo-lorenzo-mato/quorum-debate/internal/config"
	"github.com/hugo-lorenzo-mato/quorum-debate/internal/core"
)

// scriptedAdapter returns a fixed JSON body (or fails) every call, letting
// tests drive the round runner's parse/normalize/error paths without a real
// provider.
type scriptedAdapter struct {
	provider string
	body     string
	err      error
	calls    int
}

func (a *scriptedAdapter) Provider() string { return a.provider }

func (a *scriptedAdapter) Call(ctx context.Context, req model.CallRequest) (model.CallResponse, error) {
	a.calls++
	if a.err != nil {
		return model.CallResponse{}, a.err
	}
	return model.CallResponse{Content: a.body, TokenUsage: core.TokenUsage{Total: 10}}, nil
}

func registryWithScript(provider string, adapter model.Adapter) *model.Registry {
	r := model.NewRegistry()
	r.RegisterFactory(provider, func(cfg model.ParticipantConfig) (model.Adapter, error) {
		return adapter, nil
	})
	return r
}

func testConfig() config.Config {
	return config.Config{
		Topic:        "Should we ship it",
		InitialQuery: "Should we ship it this week?",
		Timeouts:     config.TimeoutsConfig{ModelMs: 1000},
		Retries:      config.RetriesConfig{MaxAttempts: 1, BaseDelayMs: 1, MaxDelayMs: 2},
		Concurrency:  config.ConcurrencyConfig{MaxConcurrentRequests: 4},
		Limits:       config.LimitsConfig{MaxContextTokens: 1000},
	}
}

func TestRunAgentRound_Round1ProposesAndHashesPosition(t *testing.T) {
	adapter := &scriptedAdapter{provider: "fake", body: `{"vote":"abstain","newPositionText":"Ship it Friday","reasoning":"Tests are green","confidence":0.8}`}
	registry := registryWithScript("fake", adapter)
	rr := NewRoundRunner(registry)

	agents := []config.AgentConfig{{ID: "a1", Provider: "fake"}}
	responses := rr.RunAgentRound(context.Background(), testConfig(), agents, 1, "", "", nil)

	require.Len(t, responses, 1)
	require.Equal(t, core.StatusOK, responses[0].Status)
	require.Equal(t, core.VoteAbstain, responses[0].Vote)
	require.Equal(t, core.PositionID("Ship it Friday"), *responses[0].PositionID)
}

func TestRunAgentRound_VoteYesOnCandidateReferencesCandidateID(t *testing.T) {
	adapter := &scriptedAdapter{provider: "fake", body: `{"vote":"yes","targetPositionId":"abc123","reasoning":"agreed","confidence":0.9}`}
	registry := registryWithScript("fake", adapter)
	rr := NewRoundRunner(registry)

	agents := []config.AgentConfig{{ID: "a1", Provider: "fake"}}
	responses := rr.RunAgentRound(context.Background(), testConfig(), agents, 2, "abc123", "Ship it Friday", nil)

	require.Equal(t, core.StatusOK, responses[0].Status)
	require.Equal(t, "abc123", *responses[0].PositionID)
	require.Equal(t, "Ship it Friday", responses[0].PositionText)
}

func TestRunAgentRound_YesVoteWithoutMatchingTargetIsError(t *testing.T) {
	adapter := &scriptedAdapter{provider: "fake", body: `{"vote":"yes","targetPositionId":"wrong-id","reasoning":"agreed","confidence":0.9}`}
	registry := registryWithScript("fake", adapter)
	rr := NewRoundRunner(registry)

	agents := []config.AgentConfig{{ID: "a1", Provider: "fake"}}
	responses := rr.RunAgentRound(context.Background(), testConfig(), agents, 2, "abc123", "Ship it Friday", nil)

	require.Equal(t, core.StatusError, responses[0].Status)
}

func TestRunAgentRound_MalformedJSONYieldsErrorResponseNotFailure(t *testing.T) {
	adapter := &scriptedAdapter{provider: "fake", body: `not json at all`}
	registry := registryWithScript("fake", adapter)
	rr := NewRoundRunner(registry)

	agents := []config.AgentConfig{{ID: "a1", Provider: "fake"}}
	responses := rr.RunAgentRound(context.Background(), testConfig(), agents, 1, "", "", nil)

	require.Len(t, responses, 1)
	require.Equal(t, core.StatusError, responses[0].Status)
	require.Equal(t, core.VoteAbstain, responses[0].Vote)
	require.Nil(t, responses[0].PositionID)
}

func TestRunAgentRound_TransportErrorYieldsErrorResponse(t *testing.T) {
	adapter := &scriptedAdapter{provider: "fake", err: core.ErrModelTimeout("fake", "m1")}
	registry := registryWithScript("fake", adapter)
	rr := NewRoundRunner(registry)

	agents := []config.AgentConfig{{ID: "a1", Provider: "fake"}}
	responses := rr.RunAgentRound(context.Background(), testConfig(), agents, 1, "", "", nil)

	require.Equal(t, core.StatusError, responses[0].Status)
	require.NotEmpty(t, responses[0].Error)
}

func TestRunAgentRound_ResultOrderMatchesAgentOrderNotCompletionOrder(t *testing.T) {
	fast := &scriptedAdapter{provider: "fast", body: `{"vote":"abstain","newPositionText":"Fast answer","reasoning":"quick","confidence":0.5}`}
	slow := &scriptedAdapter{provider: "slow", body: `{"vote":"abstain","newPositionText":"Slow answer","reasoning":"careful","confidence":0.5}`}

	registry := model.NewRegistry()
	registry.RegisterFactory("fast", func(cfg model.ParticipantConfig) (model.Adapter, error) { return fast, nil })
	registry.RegisterFactory("slow", func(cfg model.ParticipantConfig) (model.Adapter, error) { return slow, nil })

	rr := NewRoundRunner(registry)
	agents := []config.AgentConfig{
		{ID: "slow-agent", Provider: "slow"},
		{ID: "fast-agent", Provider: "fast"},
	}
	responses := rr.RunAgentRound(context.Background(), testConfig(), agents, 1, "", "", nil)

	require.Equal(t, "slow-agent", responses[0].AgentID)
	require.Equal(t, "fast-agent", responses[1].AgentID)
}

func TestRunAgentRound_FullCardinalityAcrossManyAgents(t *testing.T) {
	registry := model.NewRegistry()
	registry.RegisterFactory("fake", func(cfg model.ParticipantConfig) (model.Adapter, error) {
		return &scriptedAdapter{provider: "fake", body: `{"vote":"abstain","reasoning":"undecided","confidence":0.1}`}, nil
	})
	rr := NewRoundRunner(registry)

	agents := make([]config.AgentConfig, 6)
	for i := range agents {
		agents[i] = config.AgentConfig{ID: fmt.Sprintf("a%d", i), Provider: "fake"}
	}
	cfg := testConfig()
	cfg.Concurrency.MaxConcurrentRequests = 2

	responses := rr.RunAgentRound(context.Background(), cfg, agents, 1, "", "", nil)
	require.Len(t, responses, len(agents))
	for i, r := range responses {
		require.Equal(t, agents[i].ID, r.AgentID)
	}
}

func TestRunJudgeRound_SelectsAmongGivenPositions(t *testing.T) {
	adapter := &scriptedAdapter{provider: "fake", body: `{"selectedPositionId":"pos1","scoresByPositionId":{"pos1":9,"pos2":4},"reasoning":"pos1 is stronger","confidence":0.7}`}
	registry := registryWithScript("fake", adapter)
	rr := NewRoundRunner(registry)

	judges := []config.AgentConfig{{ID: "j1", Provider: "fake"}}
	positions := []judgedPosition{{ID: "pos1", Text: "Ship now"}, {ID: "pos2", Text: "Wait a week"}}

	evaluations := rr.RunJudgeRound(context.Background(), testConfig(), judges, 1, positions)
	require.Equal(t, core.StatusOK, evaluations[0].Status)
	require.Equal(t, "pos1", *evaluations[0].SelectedPositionID)
}

func TestRunJudgeRound_SelectionOutsidePositionsSetIsError(t *testing.T) {
	adapter := &scriptedAdapter{provider: "fake", body: `{"selectedPositionId":"unknown","reasoning":"x","confidence":0.5}`}
	registry := registryWithScript("fake", adapter)
	rr := NewRoundRunner(registry)

	judges := []config.AgentConfig{{ID: "j1", Provider: "fake"}}
	positions := []judgedPosition{{ID: "pos1", Text: "Ship now"}}

	evaluations := rr.RunJudgeRound(context.Background(), testConfig(), judges, 1, positions)
	require.Equal(t, core.StatusError, evaluations[0].Status)
}

func TestBuildContextBlock_LastRoundExcludesSelfUnlessConfigured(t *testing.T) {
	history := []core.RoundResult{
		{
			RoundNumber: 1,
			Responses: []core.AgentResponse{
				{AgentID: "a1", Vote: core.VoteYes, Reasoning: "mine"},
				{AgentID: "a2", Vote: core.VoteNo, Reasoning: "theirs"},
			},
		},
	}

	lastRound := buildContextBlock(config.TopologyLastRound, history, "a1", 1000)
	require.NotContains(t, lastRound, "mine")
	require.Contains(t, lastRound, "theirs")

	withSelf := buildContextBlock(config.TopologyLastRoundSelf, history, "a1", 1000)
	require.Contains(t, withSelf, "mine")
	require.Contains(t, withSelf, "theirs")
}

func TestBuildContextBlock_LastRoundWithSelfCarriesForwardOwnEarlierRounds(t *testing.T) {
	history := []core.RoundResult{
		{
			RoundNumber: 1,
			Responses: []core.AgentResponse{
				{AgentID: "a1", Vote: core.VoteYes, Reasoning: "round one mine"},
				{AgentID: "a2", Vote: core.VoteNo, Reasoning: "round one theirs"},
			},
		},
		{
			RoundNumber: 2,
			Responses: []core.AgentResponse{
				{AgentID: "a1", Vote: core.VoteYes, Reasoning: "round two mine"},
				{AgentID: "a2", Vote: core.VoteNo, Reasoning: "round two theirs"},
			},
		},
	}

	got := buildContextBlock(config.TopologyLastRoundSelf, history, "a1", 1000)
	require.Contains(t, got, "round one mine")
	require.NotContains(t, got, "round one theirs")
	require.Contains(t, got, "round two mine")
	require.Contains(t, got, "round two theirs")
}

func TestBuildContextBlock_SummaryTopologyOmitsResponseText(t *testing.T) {
	history := []core.RoundResult{
		{
			RoundNumber: 1,
			Responses: []core.AgentResponse{
				{AgentID: "a1", Vote: core.VoteYes, Reasoning: "a very specific argument"},
			},
			VoteTally: core.VoteTally{Yes: 1},
		},
	}

	summary := buildContextBlock(config.TopologySummary, history, "a1", 1000)
	require.NotContains(t, summary, "a very specific argument")
	require.Contains(t, summary, "yes=1")
}

func TestTruncateToTokenBudget_MiddleElidesOversizedText(t *testing.T) {
	text := ""
	for i := 0; i < 500; i++ {
		text += "x"
	}
	truncated := truncateToTokenBudget(text, 10)
	require.Less(t, len(truncated), len(text))
	require.Contains(t, truncated, truncationMarker)
}

func TestTruncateToTokenBudget_NoOpUnderBudget(t *testing.T) {
	require.Equal(t, "short", truncateToTokenBudget("short", 1000))
}
