package model

import (
	"context"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hugo-lorenzo-mato/quorum-debate/internal/core"
)

// OpenAIAdapter implements Adapter over an OpenAI-compatible chat completion
// API via github.com/sashabaranov/go-openai, grounded on the provider
// wiring seen in storbeck-augustus.
type OpenAIAdapter struct {
	client *openai.Client
	model  string
}

// NewOpenAIAdapter constructs an OpenAIAdapter. cfg.CredentialEnv names the
// environment variable holding the API key; cfg.Endpoint, if set, overrides
// the default API base URL (for OpenAI-compatible third-party endpoints).
func NewOpenAIAdapter(cfg ParticipantConfig) (Adapter, error) {
	apiKey := lookupCredential(cfg.CredentialEnv)
	if apiKey == "" {
		return nil, core.ErrConfiguration("MISSING_CREDENTIAL", "openai adapter requires an API key in "+cfg.CredentialEnv)
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.Endpoint != "" {
		clientCfg.BaseURL = cfg.Endpoint
	}

	return &OpenAIAdapter{client: openai.NewClientWithConfig(clientCfg), model: cfg.Model}, nil
}

// Provider implements Adapter.
func (a *OpenAIAdapter) Provider() string { return "openai" }

// Call implements Adapter.
func (a *OpenAIAdapter) Call(ctx context.Context, req CallRequest) (CallResponse, error) {
	start := time.Now()

	callCtx := ctx
	var cancel context.CancelFunc
	if req.TimeoutBudget > 0 {
		callCtx, cancel = context.WithTimeout(ctx, req.TimeoutBudget)
		defer cancel()
	}

	resp, err := a.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.UserPrompt},
		},
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	})
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return CallResponse{}, classifyOpenAIError(a.model, err)
	}
	if len(resp.Choices) == 0 {
		return CallResponse{}, core.ErrModelParse("openai response had no choices")
	}

	return CallResponse{
		Content:   resp.Choices[0].Message.Content,
		LatencyMs: latency,
		TokenUsage: core.TokenUsage{
			Prompt:     resp.Usage.PromptTokens,
			Completion: resp.Usage.CompletionTokens,
			Total:      resp.Usage.TotalTokens,
			Estimated:  false,
		},
		RawResponse: resp,
	}, nil
}

// classifyOpenAIError maps the go-openai error surface onto the engine's
// classified error taxonomy (spec.md §4.1).
func classifyOpenAIError(model string, err error) *core.DomainError {
	var apiErr *openai.APIError
	if ok := asAPIError(err, &apiErr); ok {
		switch apiErr.HTTPStatusCode {
		case 429:
			return core.ErrModelRateLimit("openai", model, 0)
		case 408, 504:
			return core.ErrModelTimeout("openai", model)
		case 401, 403:
			return core.ErrConfiguration("OPENAI_AUTH_FAILED", "openai credential rejected")
		}
		retryable := apiErr.HTTPStatusCode >= 500
		return core.ErrModelTransport("openai", model, retryable, err)
	}
	return core.ErrModelTransport("openai", model, true, err)
}

func asAPIError(err error, target **openai.APIError) bool {
	apiErr, ok := err.(*openai.APIError)
	if !ok {
		return false
	}
	*target = apiErr
	return true
}
