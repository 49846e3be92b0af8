package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/benvon/mentra/internal/models"
)

func TestSettingsHandler_GetDefaults(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t, &mockRAG{})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/settings/u1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decodeMap(t, w)
	if body["aiModel"] != models.DefaultAIModel {
		t.Errorf("aiModel = %v", body["aiModel"])
	}
	if body["notifications"] != true || body["cloudSync"] != false {
		t.Errorf("flags = %v / %v", body["notifications"], body["cloudSync"])
	}
	if v, ok := body["apiKey"]; !ok || v != nil {
		t.Errorf("apiKey = %v, want explicit null", v)
	}
	sites, _ := body["blockedSites"].([]any)
	if len(sites) != len(models.DefaultBlockedSites()) {
		t.Errorf("blockedSites = %v", sites)
	}
}

func TestSettingsHandler_UpdateMerges(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t, &mockRAG{})

	steps := []struct {
		body map[string]any
	}{
		{map[string]any{"aiModel": "gpt-4o-mini"}},
		{map[string]any{"blockedSites": []string{"https://www.News.ycombinator.com/", "x.com"}}},
	}
	var w *httptest.ResponseRecorder
	for _, s := range steps {
		w = httptest.NewRecorder()
		router.ServeHTTP(w, newTestRequest(http.MethodPut, "/api/v1/settings/u1", s.body))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d (body %s)", w.Code, w.Body.String())
		}
	}

	body := decodeMap(t, w)
	settings, _ := body["settings"].(map[string]any)
	if settings["aiModel"] != "gpt-4o-mini" {
		t.Errorf("aiModel = %v, want value from the first update", settings["aiModel"])
	}
	sites, _ := settings["blockedSites"].([]any)
	if len(sites) != 2 || sites[0] != "news.ycombinator.com" || sites[1] != "x.com" {
		t.Errorf("blockedSites = %v", sites)
	}
}

func TestSettingsHandler_DefaultBlockedSites(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t, &mockRAG{})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/settings/defaults/blocked-sites", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decodeMap(t, w)
	sites, _ := body["sites"].([]any)
	if body["ok"] != true || len(sites) != 8 {
		t.Errorf("body = %v", body)
	}
}
