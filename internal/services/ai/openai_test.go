package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"
)

func newFakeOpenAI(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAIProviderWithLogger("sk-test-key", srv.URL, "", "", zap.NewNop(), true)
}

func TestOpenAIProviderGenerate(t *testing.T) {
	t.Parallel()

	bodies := make(chan map[string]any, 1)
	p := newFakeOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		bodies <- body
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[{"index":0,"message":{"role":"assistant","content":"Pause first."},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":12,"completion_tokens":3,"total_tokens":15}}`))
	})

	resp, err := p.Generate(context.Background(), GenerateRequest{
		System: "sys", Prompt: "hello", Temperature: 0.7, MaxTokens: 150,
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp.Text != "Pause first." || resp.PromptTokens != 12 {
		t.Errorf("Generate() = %+v", resp)
	}
	body := <-bodies
	if body["model"] != DefaultOpenAIModel {
		t.Errorf("model sent = %v", body["model"])
	}
	if body["max_tokens"] != float64(150) {
		t.Errorf("max_tokens sent = %v", body["max_tokens"])
	}
	msgs, _ := body["messages"].([]any)
	if len(msgs) != 2 {
		t.Errorf("messages sent = %v", body["messages"])
	}
}

func TestOpenAIProviderGenerateNoChoices(t *testing.T) {
	t.Parallel()

	p := newFakeOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"m","choices":[]}`))
	})
	if _, err := p.Generate(context.Background(), GenerateRequest{Prompt: "x"}); err != ErrNoChoicesInResponse {
		t.Errorf("Generate() error = %v, want ErrNoChoicesInResponse", err)
	}
}

func TestOpenAIProviderGenerateAPIError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	p := newFakeOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"requests","code":"rate_limit_exceeded","param":null}}`))
	})

	_, err := p.Generate(context.Background(), GenerateRequest{Prompt: "x"})
	if err == nil {
		t.Fatal("Generate() expected error")
	}
	if !IsRateLimitError(err) {
		t.Errorf("IsRateLimitError(%v) = false", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("server called %d times, want exactly 1", n)
	}
}

func TestOpenAIProviderEmbed(t *testing.T) {
	t.Parallel()

	p := newFakeOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"text-embedding-ada-002",
			"data":[{"object":"embedding","index":0,"embedding":[0.5,-0.25,1]}],
			"usage":{"prompt_tokens":2,"total_tokens":2}}`))
	})

	got, err := p.Embed(context.Background(), "I'm bored")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(got) != 3 || got[0] != 0.5 || got[1] != -0.25 {
		t.Errorf("Embed() = %v", got)
	}

	if _, err := p.Embed(context.Background(), ""); err != ErrEmptyText {
		t.Errorf("Embed(\"\") error = %v, want ErrEmptyText", err)
	}
}

func TestProviderRegistry(t *testing.T) {
	t.Parallel()

	r := NewProviderRegistry()
	r.Register("openai", NewOpenAIProviderFromConfig(nil, false))

	if _, err := r.GetProvider("openai", map[string]string{"api_key": "k"}); err != nil {
		t.Errorf("GetProvider(openai) error = %v", err)
	}
	if _, err := r.GetProvider("openai", map[string]string{}); err == nil {
		t.Error("GetProvider(openai) without key should fail")
	}
	var notFound *ErrProviderNotFound
	if _, err := r.GetProvider("other", nil); !errors.As(err, &notFound) {
		t.Errorf("GetProvider(other) error = %v", err)
	}
	if names := r.Names(); len(names) != 1 || names[0] != "openai" {
		t.Errorf("Names() = %v", names)
	}
}

func TestSanitizeAPIKey(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":                "",
		"short":           RedactedValue,
		"sk-1234567890ab": "sk-1" + RedactedValue + "90ab",
	}
	for in, want := range tests {
		if got := SanitizeAPIKey(in); got != want {
			t.Errorf("SanitizeAPIKey(%q) = %q, want %q", in, got, want)
		}
	}
}
