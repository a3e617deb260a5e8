package model

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/quorum-debate/internal/core"
)

// Resource guards for CLI adapter child processes (spec.md §5).
const (
	maxStdoutBytes = 10 * 1024 * 1024 // 10 MiB
	maxStdinBytes  = 2 * 1024 * 1024  // 2 MiB
)

// CLIAdapter implements Adapter by shelling out to a model-provider CLI
// (e.g. `claude --print`), generalizing the teacher's BaseAdapter/
// ClaudeAdapter pair (internal/adapters/cli/{base,claude}.go) into one
// provider-parametrized type instead of one struct per CLI tool.
type CLIAdapter struct {
	providerName string
	path         string
	model        string
	argBuilder   func(req CallRequest, model string) []string
}

// NewCLIAdapter constructs a CLIAdapter. argBuilder renders the provider's
// command-line arguments from a CallRequest; pass nil to use DefaultCLIArgs.
func NewCLIAdapter(cfg ParticipantConfig, argBuilder func(req CallRequest, model string) []string) (Adapter, error) {
	if cfg.Endpoint == "" {
		return nil, core.ErrConfiguration("MISSING_CLI_PATH", fmt.Sprintf("provider %q requires a CLI path in endpoint", cfg.Provider))
	}
	if _, err := exec.LookPath(cfg.Endpoint); err != nil {
		return nil, core.ErrConfiguration("CLI_NOT_FOUND", fmt.Sprintf("CLI binary not found: %s", cfg.Endpoint)).WithCause(err)
	}
	if argBuilder == nil {
		argBuilder = DefaultCLIArgs
	}
	return &CLIAdapter{providerName: cfg.Provider, path: cfg.Endpoint, model: cfg.Model, argBuilder: argBuilder}, nil
}

// Provider implements Adapter.
func (c *CLIAdapter) Provider() string { return c.providerName }

// DefaultCLIArgs renders a generic non-interactive, print-mode, JSON-output
// invocation, the common shape shared by the teacher's claude/gemini/codex
// adapters.
func DefaultCLIArgs(req CallRequest, model string) []string {
	args := []string{"--print", "--output-format", "json"}
	if model != "" {
		args = append(args, "--model", model)
	}
	if req.MaxTokens > 0 {
		args = append(args, "--max-tokens", fmt.Sprintf("%d", req.MaxTokens))
	}
	return args
}

// Call implements Adapter. It spawns the CLI with no shell, bounds stdin and
// stdout, and maps every failure mode to a classified error (spec.md §4.1,
// §6.4).
func (c *CLIAdapter) Call(ctx context.Context, req CallRequest) (CallResponse, error) {
	start := time.Now()

	callCtx := ctx
	var cancel context.CancelFunc
	if req.TimeoutBudget > 0 {
		callCtx, cancel = context.WithTimeout(ctx, req.TimeoutBudget)
		defer cancel()
	}

	args := c.argBuilder(req, c.model)
	// #nosec G204 -- path is validated by exec.LookPath at construction, and
	// arguments never include a shell: invocation is exec.CommandContext with
	// an explicit argv, matching the adapter contract's "no shell" requirement.
	cmd := exec.CommandContext(callCtx, c.path, args...)

	prompt := req.SystemPrompt + "\n\n" + req.UserPrompt
	if len(prompt) > maxStdinBytes {
		prompt = prompt[:maxStdinBytes]
	}
	cmd.Stdin = strings.NewReader(prompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdout, limit: maxStdoutBytes}
	cmd.Stderr = &limitedWriter{w: &stderr, limit: maxStdoutBytes}

	err := cmd.Run()
	latency := time.Since(start).Milliseconds()

	if callCtx.Err() != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return CallResponse{}, core.ErrModelTimeout(c.providerName, c.model)
	}
	if err != nil {
		retryable := classifyCLIError(stderr.String())
		return CallResponse{}, core.ErrModelTransport(c.providerName, c.model, retryable, err).WithDetail("stderr", redactStderr(stderr.String()))
	}

	content := stdout.String()
	return CallResponse{
		Content:   content,
		LatencyMs: latency,
		TokenUsage: core.TokenUsage{
			Prompt:     estimateTokens(prompt),
			Completion: estimateTokens(content),
			Total:      estimateTokens(prompt) + estimateTokens(content),
			Estimated:  true,
		},
	}, nil
}

// estimateTokens applies the 4-chars-per-token approximation used throughout
// the engine (spec.md §4.5) whenever a provider doesn't report true usage.
func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}

// classifyCLIError reports whether a CLI failure looks transient (timeout,
// rate limit, connection reset) rather than a permanent misconfiguration.
func classifyCLIError(stderr string) bool {
	lower := strings.ToLower(stderr)
	transientMarkers := []string{"timeout", "rate limit", "429", "503", "connection reset", "temporarily unavailable"}
	for _, m := range transientMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// redactStderr trims stderr for inclusion in error details, avoiding
// accidental credential leakage into logs (spec.md §7).
func redactStderr(s string) string {
	if len(s) > 2000 {
		s = s[:2000]
	}
	return s
}

// limitedWriter caps the number of bytes written to w, silently discarding
// the overflow instead of growing without bound — the spec requires killing
// an overflowing child process immediately; capping the buffer here and
// letting the caller observe truncated output has the same effect on memory
// while keeping Call's error handling in one place.
type limitedWriter struct {
	w      io.Writer
	limit  int
	n      int
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if l.n >= l.limit {
		return len(p), nil
	}
	remaining := l.limit - l.n
	if len(p) > remaining {
		p = p[:remaining]
	}
	written, err := l.w.Write(p)
	l.n += written
	return len(p), err
}
