package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/benvon/mentra/internal/models"
	"go.uber.org/zap"
)

const (
	// DefaultQuestion replaces an empty question.
	DefaultQuestion = "Why are you opening this site?"
	// DefaultSystem is used when a template declares no system instruction.
	DefaultSystem = "You are a helpful assistant"
	// NoMemories fills the memories placeholder when there are none.
	NoMemories = "None"
	// MaxMemories is the number of memories included in a prompt.
	MaxMemories = 5
	// DefaultTemperature is the sampling temperature when none is requested.
	DefaultTemperature = 0.7
	// DefaultMaxTokens caps the completion length when none is requested.
	DefaultMaxTokens = 150
)

// RAGResult is the outcome of a retrieval-augmented generation.
type RAGResult struct {
	Suggestion string
	PromptUsed string
}

// RAGService assembles reflection prompts and calls the provider once.
type RAGService struct {
	provider AIProvider
	prompts  *PromptStore
	logger   *zap.Logger
}

// NewRAGService creates a RAGService.
func NewRAGService(provider AIProvider, prompts *PromptStore, logger *zap.Logger) *RAGService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RAGService{provider: provider, prompts: prompts, logger: logger}
}

// Prompt returns the template with id, or DefaultPromptID when id is empty.
func (s *RAGService) Prompt(id string) (models.PromptTemplate, error) {
	if id == "" {
		id = DefaultPromptID
	}
	p, ok := s.prompts.Get(id)
	if !ok {
		return models.PromptTemplate{}, fmt.Errorf("%w: %s", ErrPromptNotFound, id)
	}
	return p, nil
}

// Run builds the prompt for req and issues a single generation call.
func (s *RAGService) Run(ctx context.Context, req models.RAGRequest) (*RAGResult, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}
	tmpl, err := s.Prompt(req.Options.PromptID)
	if err != nil {
		return nil, err
	}

	prompt := BuildPrompt(tmpl.Template, req.Text, req.Question, req.Memories)
	system := tmpl.System
	if system == "" {
		system = DefaultSystem
	}

	gen := GenerateRequest{
		System:      system,
		Prompt:      prompt,
		Model:       req.Options.Model,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}
	if gen.Model == "" {
		gen.Model = DefaultOpenAIModel
	}
	if req.Options.Temperature != nil {
		gen.Temperature = *req.Options.Temperature
	}
	if req.Options.MaxTokens != nil {
		gen.MaxTokens = *req.Options.MaxTokens
	}

	resp, err := s.provider.Generate(ctx, gen)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("rag_completed",
		zap.String("prompt_id", tmpl.ID),
		zap.Int("memory_count", min(len(req.Memories), MaxMemories)),
		zap.Int("suggestion_length", len(resp.Text)),
	)
	return &RAGResult{Suggestion: resp.Text, PromptUsed: prompt}, nil
}

// Embed returns the embedding vector for text.
func (s *RAGService) Embed(ctx context.Context, text string) ([]float64, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	return s.provider.Embed(ctx, text)
}

// BuildPrompt fills {question}, {text} and {memories} in template in a
// single pass, so placeholder-like text inside the inputs is left as is.
func BuildPrompt(template, text, question string, memories []string) string {
	if question == "" {
		question = DefaultQuestion
	}
	joined := NoMemories
	if len(memories) > 0 {
		if len(memories) > MaxMemories {
			memories = memories[:MaxMemories]
		}
		joined = strings.Join(memories, "\n- ")
	}
	return strings.NewReplacer(
		"{question}", question,
		"{text}", text,
		"{memories}", joined,
	).Replace(template)
}
