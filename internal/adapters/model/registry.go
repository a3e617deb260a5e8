package model

import (
	"fmt"
	"sync"

	"github.com/hugo-lorenzo-mato/quorum-debate/internal/core"
)

// Factory constructs an Adapter from a participant configuration. Factories
// must return a classified, non-retryable *core.DomainError on construction
// failure (missing credential, missing CLI binary) — the registry never
// retries construction (spec.md §4.1).
type Factory func(cfg ParticipantConfig) (Adapter, error)

// ParticipantConfig is the subset of config.AgentConfig an adapter factory
// needs, kept provider-agnostic so this package does not import internal/config
// (avoiding a dependency cycle with packages that configure the registry).
type ParticipantConfig struct {
	ID            string
	Provider      string
	Model         string
	Endpoint      string
	CredentialEnv string
	MaxTokens     int
}

// cacheKey is the Adapter Registry's cache key (spec.md §4.1):
// (provider, model, endpoint-or-CLI-path).
type cacheKey struct {
	provider string
	model    string
	endpoint string
}

// Registry constructs and caches Adapters, process-wide, per spec.md §4.1.
// Its construction path is exclusion-safe: concurrent Get calls for the same
// key serialize on the mutex, and reads after the first insert only need a
// map lookup under the same lock (the teacher's registry uses the same
// single-mutex-guards-map-and-construction shape).
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	cache     map[cacheKey]Adapter
}

// NewRegistry returns an empty Registry. Callers register provider factories
// via RegisterFactory before calling Get.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		cache:     make(map[cacheKey]Adapter),
	}
}

// RegisterFactory binds a provider identifier (e.g. "claude-cli", "openai",
// "bedrock") to its constructor.
func (r *Registry) RegisterFactory(provider string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[provider] = factory
}

// Get returns the cached Adapter for cfg, constructing (and caching) one if
// this is the first request for its (provider, model, endpoint) key.
// Construction failures are returned as non-retryable errors and are never
// cached, so a subsequent Get may retry construction (e.g. after a config
// fix) without restarting the process.
func (r *Registry) Get(cfg ParticipantConfig) (Adapter, error) {
	key := cacheKey{provider: cfg.Provider, model: cfg.Model, endpoint: cfg.Endpoint}

	r.mu.Lock()
	defer r.mu.Unlock()

	if adapter, ok := r.cache[key]; ok {
		return adapter, nil
	}

	factory, ok := r.factories[cfg.Provider]
	if !ok {
		return nil, core.ErrConfiguration("UNKNOWN_PROVIDER", fmt.Sprintf("no adapter factory registered for provider %q", cfg.Provider))
	}

	adapter, err := factory(cfg)
	if err != nil {
		return nil, err
	}

	r.cache[key] = adapter
	return adapter, nil
}

// Size returns the number of cached adapters, for diagnostics and tests.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache)
}
