package ai

import (
	"context"
	"fmt"
	"sort"
)

// GenerateRequest is a single system + user prompt completion.
type GenerateRequest struct {
	System      string
	Prompt      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// GenerateResponse is the text produced for a GenerateRequest.
type GenerateResponse struct {
	Text             string
	Model            string
	PromptTokens     int64
	CompletionTokens int64
}

// AIProvider is the interface for AI providers
type AIProvider interface {
	// Generate runs one chat completion. Implementations must not retry.
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)

	// Embed returns the embedding vector for text.
	Embed(ctx context.Context, text string) ([]float64, error)
}

// ProviderFactory creates an AI provider from string settings.
type ProviderFactory func(config map[string]string) (AIProvider, error)

// ProviderRegistry stores available AI providers
type ProviderRegistry struct {
	providers map[string]ProviderFactory
}

// NewProviderRegistry creates a new provider registry
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		providers: make(map[string]ProviderFactory),
	}
}

// Register registers a provider factory
func (r *ProviderRegistry) Register(name string, factory ProviderFactory) {
	r.providers[name] = factory
}

// Names returns the registered provider names in sorted order.
func (r *ProviderRegistry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetProvider gets a provider by name
func (r *ProviderRegistry) GetProvider(name string, config map[string]string) (AIProvider, error) {
	factory, ok := r.providers[name]
	if !ok {
		return nil, &ErrProviderNotFound{Name: name}
	}

	return factory(config)
}

// ErrProviderNotFound is returned when a provider is not found
type ErrProviderNotFound struct {
	Name string
}

func (e *ErrProviderNotFound) Error() string {
	return "AI provider not found: " + e.Name
}

// UnavailableProvider stands in when no provider could be built, so the
// AI routes stay mounted and answer with ErrProviderUnavailable.
type UnavailableProvider struct {
	Reason error
}

func (p UnavailableProvider) err() error {
	if p.Reason == nil {
		return ErrProviderUnavailable
	}
	return fmt.Errorf("%w: %w", ErrProviderUnavailable, p.Reason)
}

// Generate implements AIProvider.
func (p UnavailableProvider) Generate(context.Context, GenerateRequest) (*GenerateResponse, error) {
	return nil, p.err()
}

// Embed implements AIProvider.
func (p UnavailableProvider) Embed(context.Context, string) ([]float64, error) {
	return nil, p.err()
}
