package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthChecker_Root(t *testing.T) {
	t.Parallel()

	h := NewHealthChecker("1.2.3", nil)
	w := httptest.NewRecorder()
	h.Root(w, httptest.NewRequest(http.MethodGet, "/", nil))

	body := decodeMap(t, w)
	if body["status"] != "healthy" || body["version"] != "1.2.3" {
		t.Errorf("body = %v", body)
	}
	if _, ok := body["timestamp"].(string); !ok {
		t.Error("Expected timestamp to be present")
	}
}

func TestHealthChecker_Health(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	NewHealthChecker("dev", nil).Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if body := decodeMap(t, w); body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
}

func TestHealthChecker_Modes(t *testing.T) {
	t.Parallel()

	healthy := func(context.Context) error { return nil }
	broken := func(context.Context) error { return errors.New("dial tcp: refused") }

	tests := []struct {
		name       string
		mode       string
		checks     map[string]CheckFunc
		wantStatus int
		wantChecks map[string]string
	}{
		{
			name:       "basic mode skips checks",
			checks:     map[string]CheckFunc{"database": broken},
			wantStatus: http.StatusOK,
		},
		{
			name:       "extended healthy",
			mode:       "extended",
			checks:     map[string]CheckFunc{"database": healthy, "redis": nil},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"database": "healthy", "redis": "not configured"},
		},
		{
			name:       "extended unhealthy",
			mode:       "extended",
			checks:     map[string]CheckFunc{"database": broken, "rabbitmq": healthy},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"database": "unhealthy: dial tcp: refused", "rabbitmq": "healthy"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := NewHealthChecker("dev", tt.checks)
			w := httptest.NewRecorder()
			h.HealthCheck(w, httptest.NewRequest(http.MethodGet, "/healthz?mode="+tt.mode, nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			body := decodeMap(t, w)
			checks, _ := body["checks"].(map[string]any)
			if tt.wantChecks == nil && checks != nil {
				t.Errorf("basic mode returned checks: %v", checks)
			}
			for k, v := range tt.wantChecks {
				if checks[k] != v {
					t.Errorf("checks[%s] = %v, want %q", k, checks[k], v)
				}
			}
		})
	}
}
