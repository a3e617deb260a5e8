// Package config loads and validates the debate engine's configuration
// surface (spec.md §6.3) using the same viper + mapstructure pipeline the
// rest of the module's CLI tooling uses.
package config

// Config holds the full configuration surface for a debate session.
type Config struct {
	Topic        string `mapstructure:"topic"`
	InitialQuery string `mapstructure:"initial_query"`

	Agents []AgentConfig `mapstructure:"agents"`
	Judges []AgentConfig `mapstructure:"judges"`

	JudgePanelEnabled bool `mapstructure:"judge_panel_enabled"`

	MaxAgentRounds int `mapstructure:"max_agent_rounds"`
	MaxJudgeRounds int `mapstructure:"max_judge_rounds"`

	ConsensusThreshold       float64 `mapstructure:"consensus_threshold"`
	JudgeConsensusThreshold  float64 `mapstructure:"judge_consensus_threshold"`
	JudgeMinConfidence       float64 `mapstructure:"judge_min_confidence"`
	JudgePositionsScope      string  `mapstructure:"judge_positions_scope"`

	ContextTopology string `mapstructure:"context_topology"`

	CheckpointDir string `mapstructure:"checkpoint_dir"`

	Timeouts    TimeoutsConfig    `mapstructure:"timeouts"`
	Retries     RetriesConfig     `mapstructure:"retries"`
	Concurrency ConcurrencyConfig `mapstructure:"concurrency"`
	Limits      LimitsConfig      `mapstructure:"limits"`

	DeterministicMode  bool `mapstructure:"deterministic_mode"`
	AllowExternalPaths bool `mapstructure:"allow_external_paths"`
}

// AgentConfig configures one debate participant — an agent or a judge,
// which share the same shape (spec.md §6.3).
type AgentConfig struct {
	ID           string  `mapstructure:"id"`
	Provider     string  `mapstructure:"provider"` // e.g. "claude-cli", "openai", "bedrock"
	Model        string  `mapstructure:"model"`
	Endpoint     string  `mapstructure:"endpoint"` // HTTP base URL, or CLI binary path
	SystemPrompt string  `mapstructure:"system_prompt"`
	Temperature  float64 `mapstructure:"temperature"`
	CredentialEnv string `mapstructure:"credential_env"`
	MaxTokens    int     `mapstructure:"max_tokens"`
}

// TimeoutsConfig bounds adapter calls, rounds, and sessions (spec.md §5).
type TimeoutsConfig struct {
	ModelMs   int64 `mapstructure:"model_ms"`
	RoundMs   int64 `mapstructure:"round_ms"`
	SessionMs int64 `mapstructure:"session_ms"`
}

// RetriesConfig drives the Retry Wrapper (spec.md §4.2).
type RetriesConfig struct {
	MaxAttempts int   `mapstructure:"max_attempts"`
	BaseDelayMs int64 `mapstructure:"base_delay_ms"`
	MaxDelayMs  int64 `mapstructure:"max_delay_ms"`
}

// ConcurrencyConfig bounds the Round Runner's fan-out (spec.md §5).
type ConcurrencyConfig struct {
	MaxConcurrentRequests int `mapstructure:"max_concurrent_requests"`
}

// LimitsConfig enforces resource guards (spec.md §5, §6.3).
type LimitsConfig struct {
	MaxTokensPerResponse int     `mapstructure:"max_tokens_per_response"`
	MaxTotalTokens       int     `mapstructure:"max_total_tokens"`
	MaxTotalCostUsd      float64 `mapstructure:"max_total_cost_usd"`
	MaxContextTokens     int     `mapstructure:"max_context_tokens"`
}

// Context topology values (spec.md §4.5).
const (
	TopologyFullHistory     = "FULL_HISTORY"
	TopologyLastRound       = "LAST_ROUND"
	TopologyLastRoundSelf   = "LAST_ROUND_WITH_SELF"
	TopologySummary         = "SUMMARY"
)

// Judge positions scope values (spec.md §6.3, §9).
const (
	ScopeAllRounds = "all_rounds"
	ScopeLastRound = "last_round"
)

// MinAgents, MaxAgents, MinJudges, MaxJudges, MinJudgesWhenEnabled bound the
// participant list sizes (spec.md §6.3).
const (
	MinAgents            = 2
	MaxAgents            = 10
	MinJudges            = 0
	MaxJudges            = 15
	MinJudgesWhenEnabled = 3
)
