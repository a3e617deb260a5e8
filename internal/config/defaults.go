package config

// DefaultConfigYAML is the baseline configuration merged under user
// overrides by the Loader, mirroring the teacher's embedded-default
// pattern (internal/config/defaults.go in the teacher repo).
const DefaultConfigYAML = `
judge_panel_enabled: true
max_agent_rounds: 5
max_judge_rounds: 3
consensus_threshold: 0.67
judge_consensus_threshold: 0.6
judge_min_confidence: 0.7
judge_positions_scope: all_rounds
context_topology: LAST_ROUND_WITH_SELF
deterministic_mode: false
allow_external_paths: false
timeouts:
  model_ms: 60000
  round_ms: 300000
  session_ms: 3600000
retries:
  max_attempts: 3
  base_delay_ms: 500
  max_delay_ms: 30000
concurrency:
  max_concurrent_requests: 4
limits:
  max_tokens_per_response: 4096
  max_total_tokens: 2000000
  max_total_cost_usd: 25.0
  max_context_tokens: 8000
`

// DefaultAgentTemperature and DefaultJudgeTemperature are applied to any
// participant whose Temperature field was left at its YAML zero value
// (spec.md §6.3: agents default 0.7, judges default 0.3).
const (
	DefaultAgentTemperature = 0.7
	DefaultJudgeTemperature = 0.3
)

// Default returns a Config populated purely from DefaultConfigYAML, with no
// topic/agents/judges set. Callers merge user configuration on top via the
// Loader.
func Default() *Config {
	return &Config{
		JudgePanelEnabled:       true,
		MaxAgentRounds:          5,
		MaxJudgeRounds:          3,
		ConsensusThreshold:      0.67,
		JudgeConsensusThreshold: 0.6,
		JudgeMinConfidence:      0.7,
		JudgePositionsScope:     ScopeAllRounds,
		ContextTopology:         TopologyLastRoundSelf,
		Timeouts: TimeoutsConfig{
			ModelMs:   60000,
			RoundMs:   300000,
			SessionMs: 3600000,
		},
		Retries: RetriesConfig{
			MaxAttempts: 3,
			BaseDelayMs: 500,
			MaxDelayMs:  30000,
		},
		Concurrency: ConcurrencyConfig{
			MaxConcurrentRequests: 4,
		},
		Limits: LimitsConfig{
			MaxTokensPerResponse: 4096,
			MaxTotalTokens:       2000000,
			MaxTotalCostUsd:      25.0,
			MaxContextTokens:     8000,
		},
	}
}

// ApplyDeterministicMode enforces spec.md §9's "apply all four together"
// rule: temperature -> 0, retries off, jitter off (handled by the retry
// package reading DeterministicMode directly), JSON repair off (handled by
// the jsonrepair package reading DeterministicMode directly).
func (c *Config) ApplyDeterministicMode() {
	if !c.DeterministicMode {
		return
	}
	for i := range c.Agents {
		c.Agents[i].Temperature = 0
	}
	for i := range c.Judges {
		c.Judges[i].Temperature = 0
	}
	c.Retries.MaxAttempts = 0
}
