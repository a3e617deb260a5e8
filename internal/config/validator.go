package config

import (
	"fmt"
	"math"
)

// ValidationError is one field-level validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors accumulates every failure found in a single pass, rather
// than aborting at the first one, matching the teacher's validator
// (internal/config/validator.go in the teacher repo).
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msg := fmt.Sprintf("%d validation error(s):", len(e))
	for _, ve := range e {
		msg += "\n  - " + ve.Error()
	}
	return msg
}

// Validator accumulates ValidationErrors across a single Validate pass.
type Validator struct {
	errs ValidationErrors
}

// NewValidator returns an empty Validator.
func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) addError(field, message string) {
	v.errs = append(v.errs, ValidationError{Field: field, Message: message})
}

// Errors returns the accumulated errors, or nil if validation passed.
func (v *Validator) Errors() error {
	if len(v.errs) == 0 {
		return nil
	}
	return v.errs
}

// Validate checks every recognized option in Config against the rules in
// spec.md §6.3 and returns all violations at once.
func Validate(c *Config) error {
	v := NewValidator()

	if c.Topic == "" {
		v.addError("topic", "must not be empty")
	}

	if n := len(c.Agents); n < MinAgents || n > MaxAgents {
		v.addError("agents", fmt.Sprintf("must have between %d and %d agents, got %d", MinAgents, MaxAgents, n))
	}
	seenAgentIDs := map[string]bool{}
	for i, a := range c.Agents {
		validateParticipant(v, fmt.Sprintf("agents[%d]", i), a, seenAgentIDs)
	}

	if n := len(c.Judges); n > MaxJudges {
		v.addError("judges", fmt.Sprintf("must have at most %d judges, got %d", MaxJudges, n))
	}
	if c.JudgePanelEnabled && len(c.Judges) < MinJudgesWhenEnabled {
		v.addError("judges", fmt.Sprintf("judge_panel_enabled requires at least %d judges, got %d", MinJudgesWhenEnabled, len(c.Judges)))
	}
	seenJudgeIDs := map[string]bool{}
	for i, j := range c.Judges {
		validateParticipant(v, fmt.Sprintf("judges[%d]", i), j, seenJudgeIDs)
	}

	if c.MaxAgentRounds < 1 || c.MaxAgentRounds > 10 {
		v.addError("max_agent_rounds", "must be between 1 and 10")
	}
	if c.MaxJudgeRounds < 1 || c.MaxJudgeRounds > 5 {
		v.addError("max_judge_rounds", "must be between 1 and 5")
	}

	validateFraction(v, "consensus_threshold", c.ConsensusThreshold, 0.5, 1.0)
	validateFraction(v, "judge_consensus_threshold", c.JudgeConsensusThreshold, 0.5, 1.0)
	validateFraction(v, "judge_min_confidence", c.JudgeMinConfidence, 0.0, 1.0)

	switch c.JudgePositionsScope {
	case ScopeAllRounds, ScopeLastRound:
	default:
		v.addError("judge_positions_scope", fmt.Sprintf("must be %q or %q, got %q", ScopeAllRounds, ScopeLastRound, c.JudgePositionsScope))
	}

	switch c.ContextTopology {
	case TopologyFullHistory, TopologyLastRound, TopologyLastRoundSelf, TopologySummary:
	default:
		v.addError("context_topology", fmt.Sprintf("unrecognized context topology %q", c.ContextTopology))
	}

	if c.Timeouts.ModelMs <= 0 {
		v.addError("timeouts.model_ms", "must be positive")
	}
	if c.Timeouts.RoundMs <= 0 {
		v.addError("timeouts.round_ms", "must be positive")
	}
	if c.Timeouts.SessionMs <= 0 {
		v.addError("timeouts.session_ms", "must be positive")
	}

	if c.Retries.MaxAttempts < 0 {
		v.addError("retries.max_attempts", "must not be negative")
	}
	if c.Retries.BaseDelayMs < 0 {
		v.addError("retries.base_delay_ms", "must not be negative")
	}
	if c.Retries.MaxDelayMs < c.Retries.BaseDelayMs {
		v.addError("retries.max_delay_ms", "must be >= base_delay_ms")
	}

	if c.Concurrency.MaxConcurrentRequests < 1 {
		v.addError("concurrency.max_concurrent_requests", "must be at least 1")
	}

	if c.Limits.MaxTokensPerResponse < 1 {
		v.addError("limits.max_tokens_per_response", "must be at least 1")
	}
	if c.Limits.MaxTotalTokens < 1 {
		v.addError("limits.max_total_tokens", "must be at least 1")
	}
	if c.Limits.MaxTotalCostUsd <= 0 {
		v.addError("limits.max_total_cost_usd", "must be positive")
	}
	if c.Limits.MaxContextTokens < 1 {
		v.addError("limits.max_context_tokens", "must be at least 1")
	}

	return v.Errors()
}

func validateParticipant(v *Validator, field string, a AgentConfig, seen map[string]bool) {
	if a.ID == "" {
		v.addError(field+".id", "must not be empty")
	} else if seen[a.ID] {
		v.addError(field+".id", fmt.Sprintf("duplicate participant id %q", a.ID))
	} else {
		seen[a.ID] = true
	}
	if a.Provider == "" {
		v.addError(field+".provider", "must not be empty")
	}
	if a.Model == "" {
		v.addError(field+".model", "must not be empty")
	}
	if a.Temperature < 0 || a.Temperature > 2 {
		v.addError(field+".temperature", "must be between 0 and 2")
	}
}

func validateFraction(v *Validator, field string, val, lo, hi float64) {
	if math.IsNaN(val) || val < lo || val > hi {
		v.addError(field, fmt.Sprintf("must be between %.2f and %.2f", lo, hi))
	}
}
