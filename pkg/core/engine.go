package core

import (
	"fmt"
	"strings"
)

// DefaultProvider is assumed for model strings without a "provider/" prefix.
const DefaultProvider = "gemini"

// Engine resolves model strings to models across registered providers.
type Engine struct {
	registry ProviderRegistry
}

// NewEngine creates an Engine with the given providers registered.
func NewEngine(providers ...Provider) *Engine {
	e := &Engine{registry: NewProviderRegistry()}
	for _, p := range providers {
		e.RegisterProvider(p)
	}
	return e
}

// RegisterProvider adds a provider to the engine.
func (e *Engine) RegisterProvider(provider Provider) {
	e.registry.Register(provider)
}

// ProviderNames returns the list of registered provider names.
func (e *Engine) ProviderNames() []string {
	return e.registry.List()
}

// Resolve returns the model addressed by a "provider/model-name" string.
func (e *Engine) Resolve(model string) (Model, error) {
	providerName, modelName, err := ParseModelString(model)
	if err != nil {
		return nil, err
	}
	provider, ok := e.registry.Get(providerName)
	if !ok {
		return nil, NewInvalidRequestError(fmt.Sprintf("provider %q not registered", providerName))
	}
	return provider.Model(modelName), nil
}

// ParseModelString parses "provider/model-name". A bare model name resolves
// to DefaultProvider.
func ParseModelString(model string) (provider string, modelName string, err error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return "", "", NewInvalidRequestError("model must not be empty")
	}
	parts := strings.SplitN(model, "/", 2)
	if len(parts) == 1 {
		return DefaultProvider, parts[0], nil
	}
	if parts[0] == "" || parts[1] == "" {
		return "", "", NewInvalidRequestError(
			fmt.Sprintf("invalid model format: %q, expected 'provider/model-name'", model),
		)
	}
	return parts[0], parts[1], nil
}
