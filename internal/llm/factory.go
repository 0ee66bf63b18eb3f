package llm

import (
	"context"
	"fmt"
	"strings"
)

// NewBackend creates a backend based on configuration
func NewBackend(ctx context.Context, config Config) (Backend, error) {
	switch strings.ToLower(config.Provider) {
	case "openai":
		return NewOpenAIBackend(config)

	case "anthropic", "claude":
		return NewAnthropicBackend(config)

	case "google", "gemini":
		return NewGoogleBackend(ctx, config)

	case "ollama":
		return NewOllamaBackend(config)

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, anthropic, google, ollama)", config.Provider)
	}
}

// Canonical maps provider aliases onto backend ids
func Canonical(provider string) string {
	switch p := strings.ToLower(provider); p {
	case "claude":
		return "anthropic"
	case "gemini":
		return "google"
	default:
		return p
	}
}

// Registry resolves backend ids to Backend values
type Registry struct {
	backends map[string]Backend
}

// NewRegistry creates a registry from the given backends, keyed by Name()
func NewRegistry(backends ...Backend) *Registry {
	r := &Registry{backends: make(map[string]Backend, len(backends))}
	for _, b := range backends {
		r.backends[b.Name()] = b
	}
	return r
}

// Get returns the backend for id, accepting provider aliases
func (r *Registry) Get(id string) (Backend, error) {
	if b, ok := r.backends[Canonical(id)]; ok {
		return b, nil
	}
	return nil, fmt.Errorf("backend %q is not configured", id)
}

// Names lists configured backend ids
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	return names
}
