// Package model implements the Adapter Registry and the ModelAdapter
// contract (spec.md §4.1, §6.4): constructing and caching model adapters per
// (provider, model, endpoint), and the polymorphic provider variants
// (CLI subprocess, OpenAI-compatible HTTP, AWS Bedrock) that implement it.
package model

import (
	"context"
	"time"

	"github.com/hugo-lorenzo-mato/quorum-debate/internal/core"
)

// CallRequest is the single operation every ModelAdapter exposes
// (spec.md §4.1).
type CallRequest struct {
	SystemPrompt  string
	UserPrompt    string
	MaxTokens     int
	Temperature   float64
	TimeoutBudget time.Duration
	SchemaHint    string
}

// CallResponse is the adapter's result for one call.
type CallResponse struct {
	Content     string
	TokenUsage  core.TokenUsage
	LatencyMs   int64
	RawResponse any
}

// Adapter is a ModelAdapter: a single polymorphic operation over a provider
// variant (spec.md §6.4). Implementations must enforce the per-call
// timeout, report token usage (marking it estimated or true), map transport
// errors to the classified *core.DomainError set, and never interpret the
// prompts beyond passing them to the model.
type Adapter interface {
	// Provider returns the adapter's provider identifier (e.g. "claude-cli",
	// "openai", "bedrock").
	Provider() string
	// Call executes a single prompt/response round trip.
	Call(ctx context.Context, req CallRequest) (CallResponse, error)
}
