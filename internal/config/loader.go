package config

import (
	"bytes"
	"fmt"

	"github.com/spf13/viper"

	"github.com/hugo-lorenzo-mato/quorum-debate/internal/fsutil"
)

// Loader reads a YAML configuration file (or reader), merges it under
// DefaultConfigYAML, applies environment-variable overrides, and validates
// the result — mirroring the teacher's viper-based Loader
// (internal/config/loader.go in the teacher repo).
type Loader struct {
	EnvPrefix string
}

// NewLoader returns a Loader that binds environment variables under the
// given prefix (e.g. "QUORUM_DEBATE_AGENTS_0_MODEL").
func NewLoader(envPrefix string) *Loader {
	return &Loader{EnvPrefix: envPrefix}
}

// LoadFile reads and validates the configuration at path.
func (l *Loader) LoadFile(path string) (*Config, error) {
	data, err := fsutil.ReadFileScoped(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	return l.Load(data)
}

// Load merges user-supplied YAML over DefaultConfigYAML, overlays
// environment variables, decodes into a Config, applies temperature
// defaults, and validates.
func (l *Loader) Load(userYAML []byte) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if err := v.ReadConfig(bytes.NewBufferString(DefaultConfigYAML)); err != nil {
		return nil, fmt.Errorf("reading default config: %w", err)
	}
	if len(userYAML) > 0 {
		if err := v.MergeConfig(bytes.NewReader(userYAML)); err != nil {
			return nil, fmt.Errorf("merging user config: %w", err)
		}
	}

	if l.EnvPrefix != "" {
		v.SetEnvPrefix(l.EnvPrefix)
		v.AutomaticEnv()
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	applyParticipantDefaults(cfg.Agents, DefaultAgentTemperature)
	applyParticipantDefaults(cfg.Judges, DefaultJudgeTemperature)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyParticipantDefaults fills in the default temperature for any
// participant whose Temperature was left at the YAML zero value. A
// participant that explicitly configures temperature: 0 is indistinguishable
// from one that omitted it; this is an accepted ambiguity of the YAML
// decoding layer (deterministicMode forces 0 anyway, so it is only
// observable in non-deterministic runs that explicitly want temperature 0).
func applyParticipantDefaults(participants []AgentConfig, defaultTemp float64) {
	for i := range participants {
		if participants[i].Temperature == 0 {
			participants[i].Temperature = defaultTemp
		}
	}
}
