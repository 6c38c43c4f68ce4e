package core

import (
	"context"
	"sort"
)

// Provider is a source of generative models (e.g. "gemini").
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Model returns a handle for the named model. No remote call is made.
	Model(name string) Model
}

// Model is a remote generative-language model.
type Model interface {
	// Name returns the model identifier without the provider prefix.
	Name() string

	// Probe issues a single cheap request to fail fast on bad credentials.
	Probe(ctx context.Context) error

	// OpenDialogue starts a stateful multi-turn dialogue with empty history.
	OpenDialogue(ctx context.Context, cfg DialogueConfig) (Dialogue, error)
}

// DialogueConfig configures a new dialogue.
type DialogueConfig struct {
	MaxOutputTokens int
}

// Dialogue is a stateful conversation handle. Implementations are not
// required to be safe for concurrent Send calls; callers serialize.
type Dialogue interface {
	Send(ctx context.Context, parts ...Part) (string, error)
}

// ProviderRegistry manages available providers.
type ProviderRegistry interface {
	Register(provider Provider)
	Get(name string) (Provider, bool)
	List() []string
}

type defaultRegistry struct {
	providers map[string]Provider
}

// NewProviderRegistry creates a new provider registry.
func NewProviderRegistry() ProviderRegistry {
	return &defaultRegistry{
		providers: make(map[string]Provider),
	}
}

func (r *defaultRegistry) Register(provider Provider) {
	r.providers[provider.Name()] = provider
}

func (r *defaultRegistry) Get(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

func (r *defaultRegistry) List() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
