// Package apiclient is a typed HTTP client for the mentra backend API, used
// by the companion to mirror local state.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/benvon/mentra/internal/models"
)

// DefaultTimeout bounds every request, including generation calls.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of a failed response is read.
const maxErrorBody = 64 << 10

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned status %d", e.Status)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Client talks to the backend under a base URL such as http://host/api.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a Client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshalling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return apiErr
	}
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil {
		apiErr.Message = body.Error
	}
	return apiErr
}

func userPath(prefix, userID string, rest ...string) string {
	parts := append([]string{prefix, url.PathEscape(userID)}, rest...)
	return strings.Join(parts, "/")
}

// CreateReflection posts a reflection and returns the stored copy.
func (c *Client) CreateReflection(ctx context.Context, req models.CreateReflectionRequest) (*models.Reflection, error) {
	var out struct {
		Reflection *models.Reflection `json:"reflection"`
	}
	if err := c.do(ctx, http.MethodPost, "/reflections", req, &out); err != nil {
		return nil, err
	}
	if out.Reflection == nil {
		return nil, errors.New("backend response has no reflection")
	}
	return out.Reflection, nil
}

// ListReflections returns the user's newest reflections. limit <= 0 leaves
// the server default.
func (c *Client) ListReflections(ctx context.Context, userID string, limit int) ([]models.Reflection, error) {
	path := userPath("/reflections", userID)
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []models.Reflection
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateReflection patches the helpful and proceeded flags of a reflection.
func (c *Client) UpdateReflection(ctx context.Context, userID, reflectionID string, req models.UpdateReflectionRequest) (*models.Reflection, error) {
	var out struct {
		Reflection *models.Reflection `json:"reflection"`
	}
	if err := c.do(ctx, http.MethodPatch, userPath("/reflections", userID, url.PathEscape(reflectionID)), req, &out); err != nil {
		return nil, err
	}
	return out.Reflection, nil
}

// GetStats returns the user's stats.
func (c *Client) GetStats(ctx context.Context, userID string) (*models.Stats, error) {
	var out models.Stats
	if err := c.do(ctx, http.MethodGet, userPath("/stats", userID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateStats applies u and returns the resulting stats.
func (c *Client) UpdateStats(ctx context.Context, userID string, u models.StatsUpdate) (*models.Stats, error) {
	var out struct {
		Stats *models.Stats `json:"stats"`
	}
	if err := c.do(ctx, http.MethodPost, userPath("/stats", userID), u, &out); err != nil {
		return nil, err
	}
	if out.Stats == nil {
		return nil, errors.New("backend response has no stats")
	}
	return out.Stats, nil
}

// GetSettings returns the user's settings.
func (c *Client) GetSettings(ctx context.Context, userID string) (*models.Settings, error) {
	var out models.Settings
	if err := c.do(ctx, http.MethodGet, userPath("/settings", userID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateSettings merges u into the user's settings.
func (c *Client) UpdateSettings(ctx context.Context, userID string, u models.SettingsUpdate) (*models.Settings, error) {
	var out struct {
		Settings *models.Settings `json:"settings"`
	}
	if err := c.do(ctx, http.MethodPut, userPath("/settings", userID), u, &out); err != nil {
		return nil, err
	}
	if out.Settings == nil {
		return nil, errors.New("backend response has no settings")
	}
	return out.Settings, nil
}

// DefaultBlockedSites returns the server's built-in blocked list.
func (c *Client) DefaultBlockedSites(ctx context.Context) ([]string, error) {
	var out struct {
		Sites []string `json:"sites"`
	}
	if err := c.do(ctx, http.MethodGet, "/settings/defaults/blocked-sites", nil, &out); err != nil {
		return nil, err
	}
	return out.Sites, nil
}

// RAG asks the backend for a coaching suggestion.
func (c *Client) RAG(ctx context.Context, req models.RAGRequest) (*models.RAGResponse, error) {
	var out models.RAGResponse
	if err := c.do(ctx, http.MethodPost, "/ai/rag", req, &out); err != nil {
		return nil, err
	}
	if !out.OK {
		return nil, errors.New("backend reported rag failure")
	}
	return &out, nil
}

// Embed returns the embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	var out models.EmbedResponse
	if err := c.do(ctx, http.MethodPost, "/ai/embed", models.EmbedRequest{Text: text}, &out); err != nil {
		return nil, err
	}
	if !out.OK || len(out.Embedding) == 0 {
		return nil, errors.New("backend returned no embedding")
	}
	return out.Embedding, nil
}

// Prompt fetches a prompt template. An empty id selects the server default.
func (c *Client) Prompt(ctx context.Context, id string) (*models.PromptTemplate, error) {
	path := "/ai/prompts"
	if id != "" {
		path += "?id=" + url.QueryEscape(id)
	}
	var out struct {
		Prompt *models.PromptTemplate `json:"prompt"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if out.Prompt == nil {
		return nil, errors.New("backend response has no prompt")
	}
	return out.Prompt, nil
}
