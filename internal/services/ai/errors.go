package ai

import (
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
)

var (
	// ErrPromptNotFound is returned when a prompt template id is unknown.
	ErrPromptNotFound = errors.New("prompt template not found")
	// ErrEmptyText is returned when the input text is blank.
	ErrEmptyText = errors.New("text is required")
	// ErrNoChoicesInResponse is returned when a completion has no choices.
	ErrNoChoicesInResponse = errors.New("no choices in response")
	// ErrNoEmbeddingInResponse is returned when an embedding response is empty.
	ErrNoEmbeddingInResponse = errors.New("no embedding in response")
	// ErrProviderUnavailable is returned by every call on an UnavailableProvider.
	ErrProviderUnavailable = errors.New("AI provider not configured")
)

// APIError represents an error from the AI provider API
type APIError struct {
	Message    string
	Type       string
	Code       string
	StatusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d, type %s): %s", e.StatusCode, e.Type, e.Message)
}

// IsRateLimitError reports whether err is a provider 429 that is not quota exhaustion.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 && apiErr.Code != "insufficient_quota"
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests")
}

// IsQuotaError reports whether err means the account is out of credit.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == "insufficient_quota"
	}
	errStr := err.Error()
	return strings.Contains(errStr, "insufficient_quota") ||
		strings.Contains(errStr, "quota") ||
		strings.Contains(errStr, "billing")
}

// ExtractAPIError returns the provider error details carried by err, or nil
// when err did not come from the provider's HTTP API.
func ExtractAPIError(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	var oaErr *openai.Error
	if errors.As(err, &oaErr) {
		return &APIError{
			Message:    oaErr.Message,
			Type:       oaErr.Type,
			Code:       oaErr.Code,
			StatusCode: oaErr.StatusCode,
		}
	}
	return nil
}
