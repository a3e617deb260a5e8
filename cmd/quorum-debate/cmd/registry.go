package cmd

import (
	"github.com/hugo-lorenzo-mato/quorum-debate/internal/adapters/model"
	"github.com/hugo-lorenzo-mato/quorum-debate/internal/logging"
)

// buildLogger constructs the process logger from the persistent log-level
// and log-format flags (root.go), the way the teacher's root command wires
// its logger in cmd/quorum/cmd/root.go.
func buildLogger() *logging.Logger {
	return logging.New(logging.Config{
		Level:  logLevel,
		Format: logFormat,
	})
}

// buildRegistry wires every provider the model adapter package implements
// into one process-wide Adapter Registry (spec.md §4.1), the way the
// teacher's root command wires its CLI adapters in cmd/quorum/cmd/common.go.
func buildRegistry() *model.Registry {
	r := model.NewRegistry()

	r.RegisterFactory("bedrock", model.NewBedrockAdapter)
	r.RegisterFactory("openai", model.NewOpenAIAdapter)

	for _, cli := range []string{"claude-cli", "gemini-cli", "codex-cli"} {
		r.RegisterFactory(cli, func(cfg model.ParticipantConfig) (model.Adapter, error) {
			return model.NewCLIAdapter(cfg, nil)
		})
	}

	return r
}
