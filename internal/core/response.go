package core

// ResponseStatus classifies whether a participant produced a usable response.
type ResponseStatus string

const (
	StatusOK    ResponseStatus = "ok"
	StatusError ResponseStatus = "error"
)

// TokenUsage records prompt/completion token accounting for a single call.
// Estimated is true when the adapter approximated usage (4 chars/token)
// rather than reading it from the provider response.
type TokenUsage struct {
	Prompt     int  `json:"prompt"`
	Completion int  `json:"completion"`
	Total      int  `json:"total"`
	Estimated  bool `json:"estimated"`
}

// AgentResponse is one participant's contribution to a round (spec.md §3).
type AgentResponse struct {
	AgentID      string     `json:"agentId"`
	Round        int        `json:"round"`
	PositionID   *string    `json:"positionId"`
	PositionText string     `json:"positionText"`
	Reasoning    string     `json:"reasoning"`
	Vote         Vote       `json:"vote"`
	Confidence   float64    `json:"confidence"`
	TokenUsage   TokenUsage `json:"tokenUsage"`
	LatencyMs    int64      `json:"latencyMs"`

	Status ResponseStatus `json:"status"`
	Error  string         `json:"error,omitempty"`
}

// NewErrorResponse builds the canonical error response shape required by
// spec.md §3: vote=abstain, positionId=nil, empty text/reasoning, confidence=0.
func NewErrorResponse(agentID string, round int, latencyMs int64, reason string) AgentResponse {
	return AgentResponse{
		AgentID:    agentID,
		Round:      round,
		PositionID: nil,
		Vote:       VoteAbstain,
		Confidence: 0,
		LatencyMs:  latencyMs,
		Status:     StatusError,
		Error:      reason,
	}
}

// Eligible reports whether this response counts toward tallies and candidate
// selection (spec.md Glossary: "Eligible response").
func (r AgentResponse) Eligible() bool {
	return r.Status == StatusOK
}
