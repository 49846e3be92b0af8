package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/benvon/mentra/internal/logger"
	"github.com/benvon/mentra/internal/models"
	"github.com/benvon/mentra/internal/request"
	"github.com/benvon/mentra/internal/services/ai"
)

// RAGRunner is the subset of ai.RAGService used by AIHandler.
type RAGRunner interface {
	Prompt(id string) (models.PromptTemplate, error)
	Run(ctx context.Context, req models.RAGRequest) (*ai.RAGResult, error)
	Embed(ctx context.Context, text string) ([]float64, error)
}

var _ RAGRunner = (*ai.RAGService)(nil)

const missingTextMessage = "Missing 'text' in request body"

// AIHandler serves the generation and embedding routes.
type AIHandler struct {
	rag    RAGRunner
	logger *zap.Logger
}

// NewAIHandler creates a new AI handler.
func NewAIHandler(rag RAGRunner, log *zap.Logger) *AIHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AIHandler{rag: rag, logger: log}
}

// RegisterRoutes registers the ai routes on a router prefixed with /ai.
func (h *AIHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/rag", h.RunRAG).Methods(http.MethodPost)
	r.HandleFunc("/prompts", h.GetPrompt).Methods(http.MethodGet)
	r.HandleFunc("/embed", h.Embed).Methods(http.MethodPost)
}

// RunRAG generates a coaching suggestion for the reflection text.
func (h *AIHandler) RunRAG(w http.ResponseWriter, r *http.Request) {
	var req models.RAGRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondJSONError(w, http.StatusBadRequest, missingTextMessage)
		return
	}
	if !validateBody(w, req) {
		return
	}

	ctx := ai.WithRequestID(r.Context(), requestIDFrom(r))
	result, err := h.rag.Run(ctx, req)
	switch {
	case errors.Is(err, ai.ErrPromptNotFound):
		respondOKError(w, http.StatusNotFound, "Prompt not found")
		return
	case errors.Is(err, ai.ErrEmptyText):
		respondJSONError(w, http.StatusBadRequest, missingTextMessage)
		return
	case err != nil:
		h.logUpstreamError("rag_failed", err)
		respondOKError(w, http.StatusInternalServerError, upstreamMessage(err))
		return
	}

	respondJSON(w, http.StatusOK, models.RAGResponse{
		OK:         true,
		Suggestion: result.Suggestion,
		Metadata:   models.RAGMetadata{PromptUsed: result.PromptUsed},
	})
}

// GetPrompt returns a prompt template by id (default reflection_v1).
func (h *AIHandler) GetPrompt(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	prompt, err := h.rag.Prompt(id)
	if err != nil {
		respondOKError(w, http.StatusNotFound, "Prompt not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "prompt": prompt})
}

// Embed returns the embedding vector for the given text.
func (h *AIHandler) Embed(w http.ResponseWriter, r *http.Request) {
	var req models.EmbedRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondJSONError(w, http.StatusBadRequest, missingTextMessage)
		return
	}

	ctx := ai.WithRequestID(r.Context(), requestIDFrom(r))
	vec, err := h.rag.Embed(ctx, req.Text)
	if err != nil {
		h.logUpstreamError("embed_failed", err)
		respondOKError(w, http.StatusInternalServerError, upstreamMessage(err))
		return
	}
	respondJSON(w, http.StatusOK, models.EmbedResponse{OK: true, Embedding: vec})
}

func (h *AIHandler) logUpstreamError(event string, err error) {
	fields := []zap.Field{zap.String("error", logger.SanitizeError(err))}
	if apiErr := ai.ExtractAPIError(err); apiErr != nil {
		fields = append(fields,
			zap.Int("status_code", apiErr.StatusCode),
			zap.String("error_type", apiErr.Type),
			zap.Bool("rate_limited", ai.IsRateLimitError(err)),
			zap.Bool("quota_exceeded", ai.IsQuotaError(err)),
		)
	}
	h.logger.Error(event, fields...)
}

// upstreamMessage is the client-facing text for a provider failure.
func upstreamMessage(err error) string {
	switch {
	case errors.Is(err, ai.ErrProviderUnavailable):
		return "AI provider not configured"
	case ai.IsRateLimitError(err):
		return "AI provider rate limit exceeded"
	case ai.IsQuotaError(err):
		return "AI provider quota exceeded"
	}
	if apiErr := ai.ExtractAPIError(err); apiErr != nil && apiErr.Message != "" {
		return apiErr.Message
	}
	return "AI provider request failed"
}

// requestIDFrom reads the id set by the request id middleware.
func requestIDFrom(r *http.Request) string {
	return request.ID(r.Context())
}
