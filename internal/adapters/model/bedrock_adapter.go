package model

import (
	"context"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"github.com/hugo-lorenzo-mato/quorum-debate/internal/core"
)

// BedrockAdapter implements Adapter over AWS Bedrock's Converse API,
// grounded on the Bedrock wiring seen in storbeck-augustus and
// itsneelabh-gomind/ai. It serves models hosted behind Bedrock (Claude,
// Llama, etc.) as an alternative to the CLI-subprocess adapters.
type BedrockAdapter struct {
	client *bedrockruntime.Client
	model  string
}

// NewBedrockAdapter constructs a BedrockAdapter from the default AWS
// credential chain (environment, shared config, instance role).
func NewBedrockAdapter(cfg ParticipantConfig) (Adapter, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		return nil, core.ErrConfiguration("AWS_CONFIG_FAILED", "could not load AWS config").WithCause(err)
	}
	return &BedrockAdapter{client: bedrockruntime.NewFromConfig(awsCfg), model: cfg.Model}, nil
}

// Provider implements Adapter.
func (a *BedrockAdapter) Provider() string { return "bedrock" }

// Call implements Adapter.
func (a *BedrockAdapter) Call(ctx context.Context, req CallRequest) (CallResponse, error) {
	start := time.Now()

	callCtx := ctx
	var cancel context.CancelFunc
	if req.TimeoutBudget > 0 {
		callCtx, cancel = context.WithTimeout(ctx, req.TimeoutBudget)
		defer cancel()
	}

	maxTokens := int32(req.MaxTokens)
	temperature := float32(req.Temperature)

	out, err := a.client.Converse(callCtx, &bedrockruntime.ConverseInput{
		ModelId: &a.model,
		System: []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: req.SystemPrompt},
		},
		Messages: []types.Message{
			{
				Role:    types.ConversationRoleUser,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: req.UserPrompt}},
			},
		},
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   &maxTokens,
			Temperature: &temperature,
		},
	})
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return CallResponse{}, classifyBedrockError(a.model, err)
	}

	content, err := extractBedrockText(out.Output)
	if err != nil {
		return CallResponse{}, core.ErrModelParse(err.Error())
	}

	usage := core.TokenUsage{Estimated: true}
	if out.Usage != nil {
		if out.Usage.InputTokens != nil {
			usage.Prompt = int(*out.Usage.InputTokens)
		}
		if out.Usage.OutputTokens != nil {
			usage.Completion = int(*out.Usage.OutputTokens)
		}
		if out.Usage.TotalTokens != nil {
			usage.Total = int(*out.Usage.TotalTokens)
		}
		usage.Estimated = false
	}

	return CallResponse{Content: content, LatencyMs: latency, TokenUsage: usage, RawResponse: out}, nil
}

func extractBedrockText(output types.ConverseOutput) (string, error) {
	msgOutput, ok := output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return "", fmt.Errorf("unexpected bedrock converse output type")
	}
	for _, block := range msgOutput.Value.Content {
		if textBlock, ok := block.(*types.ContentBlockMemberText); ok {
			return textBlock.Value, nil
		}
	}
	return "", fmt.Errorf("bedrock response had no text content block")
}

// classifyBedrockError maps AWS SDK errors onto the engine's classified
// error taxonomy (spec.md §4.1).
func classifyBedrockError(model string, err error) *core.DomainError {
	var throttle *types.ThrottlingException
	if asType(err, &throttle) {
		return core.ErrModelRateLimit("bedrock", model, 0)
	}
	var timeoutErr *types.ModelTimeoutException
	if asType(err, &timeoutErr) {
		return core.ErrModelTimeout("bedrock", model)
	}
	var apiErr smithy.APIError
	if asSmithyAPIError(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDeniedException", "UnrecognizedClientException":
			return core.ErrConfiguration("BEDROCK_AUTH_FAILED", "bedrock credential rejected")
		}
	}
	return core.ErrModelTransport("bedrock", model, true, err)
}

func asType[T error](err error, target *T) bool {
	v, ok := err.(T)
	if !ok {
		return false
	}
	*target = v
	return true
}

func asSmithyAPIError(err error, target *smithy.APIError) bool {
	v, ok := err.(smithy.APIError)
	if !ok {
		return false
	}
	*target = v
	return true
}
