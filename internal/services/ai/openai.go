package ai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	logpkg "github.com/benvon/mentra/internal/logger"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"go.uber.org/zap"
)

const (
	// DefaultOpenAIModel is the default chat model
	DefaultOpenAIModel = "gpt-4o-mini"
	// DefaultEmbeddingModel is the default embedding model
	DefaultEmbeddingModel = "text-embedding-ada-002"
	// DefaultOpenAIBaseURL is the default OpenAI API base URL
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	// DefaultTimeout bounds every provider HTTP call
	DefaultTimeout = 30 * time.Second
)

var _ AIProvider = (*OpenAIProvider)(nil)

// OpenAIProvider implements AIProvider using OpenAI's API
type OpenAIProvider struct {
	client         openai.Client
	model          string
	embeddingModel string
	logger         *zap.Logger
	debugMode      bool
}

// NewOpenAIProvider creates a provider with default base URL and no logging.
func NewOpenAIProvider(apiKey string, model string) *OpenAIProvider {
	return NewOpenAIProviderWithLogger(apiKey, DefaultOpenAIBaseURL, model, "", nil, false)
}

// NewOpenAIProviderWithLogger creates a provider. Empty model names select
// the defaults. In debug mode prompts and completions are logged, sanitized.
func NewOpenAIProviderWithLogger(apiKey, baseURL, model, embeddingModel string, logger *zap.Logger, debugMode bool) *OpenAIProvider {
	if model == "" {
		model = DefaultOpenAIModel
	}
	if embeddingModel == "" {
		embeddingModel = DefaultEmbeddingModel
	}
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := &http.Client{
		Timeout: DefaultTimeout,
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	)

	return &OpenAIProvider{
		client:         client,
		model:          model,
		embeddingModel: embeddingModel,
		logger:         logger,
		debugMode:      debugMode,
	}
}

// NewOpenAIProviderFromConfig is the ProviderFactory for "openai".
func NewOpenAIProviderFromConfig(logger *zap.Logger, debugMode bool) ProviderFactory {
	return func(config map[string]string) (AIProvider, error) {
		if config["api_key"] == "" {
			return nil, fmt.Errorf("openai provider requires api_key")
		}
		return NewOpenAIProviderWithLogger(
			config["api_key"], config["base_url"], config["model"], config["embedding_model"], logger, debugMode,
		), nil
	}
}

// Generate runs one chat completion with a system and a user message.
func (p *OpenAIProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.Prompt),
		},
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	fields := p.requestFields(ctx, "generate", model)
	if p.debugMode {
		p.logger.Debug("llm_api_request", append(fields,
			zap.Int("prompt_length", len(req.Prompt)),
			zap.String("prompt_preview", SanitizePrompt(req.Prompt, true)),
			zap.Float64("temperature", req.Temperature),
			zap.Int("max_tokens", req.MaxTokens),
		)...)
	}

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, params)
	latency := time.Since(start)
	if err != nil {
		p.logError(fields, err, latency)
		if apiErr := ExtractAPIError(err); apiErr != nil {
			return nil, fmt.Errorf("failed to generate completion: %w", apiErr)
		}
		return nil, fmt.Errorf("failed to generate completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrNoChoicesInResponse
	}

	content := resp.Choices[0].Message.Content
	if p.debugMode {
		p.logger.Debug("llm_api_response", append(fields,
			zap.Int("response_length", len(content)),
			zap.String("response_preview", SanitizeResponse(content, true)),
			zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
			zap.Int64("completion_tokens", resp.Usage.CompletionTokens),
			zap.Int64("latency_ms", latency.Milliseconds()),
		)...)
	}

	return &GenerateResponse{
		Text:             content,
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// Embed returns the embedding vector for text.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float64, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	fields := p.requestFields(ctx, "embed", p.embeddingModel)
	if p.debugMode {
		p.logger.Debug("llm_api_request", append(fields, zap.Int("input_length", len(text)))...)
	}

	start := time.Now()
	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(p.embeddingModel),
	})
	latency := time.Since(start)
	if err != nil {
		p.logError(fields, err, latency)
		if apiErr := ExtractAPIError(err); apiErr != nil {
			return nil, fmt.Errorf("failed to create embedding: %w", apiErr)
		}
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, ErrNoEmbeddingInResponse
	}

	if p.debugMode {
		p.logger.Debug("llm_api_response", append(fields,
			zap.Int("dimensions", len(resp.Data[0].Embedding)),
			zap.Int64("latency_ms", latency.Milliseconds()),
		)...)
	}
	return resp.Data[0].Embedding, nil
}

func (p *OpenAIProvider) requestFields(ctx context.Context, operation, model string) []zap.Field {
	return []zap.Field{
		zap.String("operation", operation),
		zap.String("model", model),
		zap.String("user_id", logpkg.SanitizeUserID(ExtractUserID(ctx))),
		zap.String("request_id", ExtractRequestID(ctx)),
	}
}

func (p *OpenAIProvider) logError(fields []zap.Field, err error, latency time.Duration) {
	level := p.logger.Warn
	if p.debugMode {
		level = p.logger.Debug
	}
	level("llm_api_error", append(fields,
		zap.String("error", logpkg.SanitizeError(err)),
		zap.Bool("rate_limited", IsRateLimitError(err)),
		zap.Bool("quota_exhausted", IsQuotaError(err)),
		zap.Int64("latency_ms", latency.Milliseconds()),
	)...)
}
