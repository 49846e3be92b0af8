package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gorilla/mux"

	"github.com/benvon/mentra/internal/database"
	"github.com/benvon/mentra/internal/models"
)

func TestRespondJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		status   int
		data     any
		validate func(*testing.T, *http.Response)
	}{
		{
			name:   "object is written bare",
			status: http.StatusOK,
			data:   map[string]string{"message": "hello"},
			validate: func(t *testing.T, resp *http.Response) {
				if resp.StatusCode != http.StatusOK {
					t.Errorf("Expected status 200, got %d", resp.StatusCode)
				}
				if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
					t.Errorf("Expected Content-Type 'application/json', got '%s'", ct)
				}
				var body map[string]any
				if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
					t.Fatalf("Failed to decode response: %v", err)
				}
				if body["message"] != "hello" {
					t.Errorf("Expected message 'hello', got %v", body["message"])
				}
				if _, wrapped := body["data"]; wrapped {
					t.Error("Expected no envelope around the payload")
				}
			},
		},
		{
			name:   "array stays an array",
			status: http.StatusOK,
			data:   []string{"a", "b", "c"},
			validate: func(t *testing.T, resp *http.Response) {
				var body []any
				if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
					t.Fatalf("Failed to decode response: %v", err)
				}
				if len(body) != 3 {
					t.Errorf("Expected array length 3, got %d", len(body))
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := httptest.NewRecorder()
			respondJSON(w, tt.status, tt.data)

			resp := w.Result()
			defer resp.Body.Close()
			tt.validate(t, resp)
		})
	}
}

func TestRespondJSONError(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	respondJSONError(w, http.StatusBadRequest, strings.Repeat("x", 500))

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
	body := decodeMap(t, w)
	msg, _ := body["error"].(string)
	if len(msg) > 203 {
		t.Errorf("Expected error message to be truncated, got %d bytes", len(msg))
	}
	if _, ok := body["ok"]; ok {
		t.Error("Expected no ok field on plain errors")
	}
}

func TestParseLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want int
	}{
		{"", DefaultListLimit},
		{"10", 10},
		{"abc", DefaultListLimit},
		{"-4", DefaultListLimit},
		{"0", DefaultListLimit},
		{"100000", MaxListLimit},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			if got := parseLimit(tt.raw); got != tt.want {
				t.Errorf("parseLimit(%q) = %d, want %d", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNotFoundRoute(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t, &mockRAG{})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected status 404, got %d", w.Code)
	}
	if body := decodeMap(t, w); body["error"] != "Route not found" {
		t.Errorf("Expected 'Route not found', got %v", body["error"])
	}
}

func TestBothPrefixesServeTheAPI(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t, &mockRAG{})
	for _, prefix := range APIPrefixes {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, prefix+"/settings/defaults/blocked-sites", nil))
		if w.Code != http.StatusOK {
			t.Errorf("%s: expected status 200, got %d", prefix, w.Code)
		}
	}
}

func TestAPIMiddlewareSkipsHealthRoutes(t *testing.T) {
	t.Parallel()

	var seen atomic.Int32
	count := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen.Add(1)
			next.ServeHTTP(w, r)
		})
	}
	r := mux.NewRouter()
	API{
		Stats:      NewStatsHandler(database.NewMemoryStatsRepository(), nil),
		Middleware: []mux.MiddlewareFunc{count},
	}.Register(r)
	NewHealthChecker("test", nil).RegisterRoutes(r)

	for _, path := range []string{"/health", "/api/stats/u1", "/api/v1/stats/u1"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	if got := seen.Load(); got != 2 {
		t.Errorf("middleware ran %d times, want 2", got)
	}
}

func TestAPIScopeMiddleware(t *testing.T) {
	t.Parallel()

	var api, ai atomic.Int32
	counter := func(n *atomic.Int32) mux.MiddlewareFunc {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n.Add(1)
				next.ServeHTTP(w, r)
			})
		}
	}
	r := mux.NewRouter()
	API{
		Stats:    NewStatsHandler(database.NewMemoryStatsRepository(), nil),
		Settings: NewSettingsHandler(database.NewMemorySettingsRepository(), nil),
		AI:       NewAIHandler(&mockRAG{}, nil),
		ScopeMiddleware: map[models.RateLimitScope][]mux.MiddlewareFunc{
			models.ScopeAPI: {counter(&api)},
			models.ScopeAI:  {counter(&ai)},
		},
	}.Register(r)

	tests := []struct {
		method, path string
	}{
		{http.MethodGet, "/api/v1/stats/u1"},
		{http.MethodGet, "/api/settings/defaults/blocked-sites"},
		{http.MethodGet, "/api/v1/ai/prompts"},
		{http.MethodPost, "/api/ai/rag"},
		{http.MethodPost, "/api/v1/ai/embed"},
	}
	for _, tt := range tests {
		r.ServeHTTP(httptest.NewRecorder(), newTestRequest(tt.method, tt.path, "{}"))
	}
	if got := api.Load(); got != 2 {
		t.Errorf("api scope ran %d times, want 2", got)
	}
	if got := ai.Load(); got != 3 {
		t.Errorf("ai scope ran %d times, want 3", got)
	}
}

func TestAIPaths(t *testing.T) {
	t.Parallel()
	got := AIPaths()
	if len(got) != len(APIPrefixes) {
		t.Fatalf("AIPaths() = %v", got)
	}
	for i, prefix := range APIPrefixes {
		if got[i] != prefix+"/ai/" {
			t.Errorf("AIPaths()[%d] = %q, want %q", i, got[i], prefix+"/ai/")
		}
	}
}

// newTestRouter wires every handler over in-memory repositories.
func newTestRouter(t *testing.T, rag RAGRunner) *mux.Router {
	t.Helper()
	r := mux.NewRouter()
	API{
		Reflections: NewReflectionHandler(database.NewMemoryReflectionRepository(), nil),
		Stats:       NewStatsHandler(database.NewMemoryStatsRepository(), nil),
		Settings:    NewSettingsHandler(database.NewMemorySettingsRepository(), nil),
		AI:          NewAIHandler(rag, nil),
	}.Register(r)
	NewHealthChecker("test", nil).RegisterRoutes(r)
	r.NotFoundHandler = http.HandlerFunc(NotFound)
	return r
}

// Test helper to create a test request with body
func newTestRequest(method, path string, body any) *http.Request {
	var bodyReader *bytes.Reader
	switch b := body.(type) {
	case nil:
		bodyReader = bytes.NewReader(nil)
	case string:
		bodyReader = bytes.NewReader([]byte(b))
	default:
		bodyBytes, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(bodyBytes)
	}
	req := httptest.NewRequest(method, path, bodyReader)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeMap(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return body
}
