package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStatsHandler_DefaultsThenAccumulates(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t, &mockRAG{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stats/u1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decodeMap(t, w)
	for _, field := range []string{"focusTime", "distractions", "streak", "productivity"} {
		if body[field] != float64(0) {
			t.Errorf("%s = %v, want 0", field, body[field])
		}
	}

	updates := []map[string]any{
		{"focusTime": 10, "streak": 5},
		{"focusTime": 5, "distractions": 1, "streak": 2, "productivity": 0.5},
	}
	for _, u := range updates {
		w = httptest.NewRecorder()
		router.ServeHTTP(w, newTestRequest(http.MethodPost, "/api/v1/stats/u1", u))
		if w.Code != http.StatusOK {
			t.Fatalf("POST status = %d (body %s)", w.Code, w.Body.String())
		}
	}
	body = decodeMap(t, w)
	stats, _ := body["stats"].(map[string]any)
	if body["ok"] != true {
		t.Errorf("ok = %v", body["ok"])
	}
	want := map[string]float64{"focusTime": 15, "distractions": 1, "streak": 2, "productivity": 0.5}
	for field, v := range want {
		if stats[field] != v {
			t.Errorf("%s = %v, want %v", field, stats[field], v)
		}
	}
}

func TestStatsHandler_Corrections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		updates    []map[string]any
		wantStatus int
		want       map[string]float64
	}{
		{
			name:       "negative increments subtract",
			updates:    []map[string]any{{"focusTime": 10, "distractions": 4}, {"focusTime": -3, "distractions": -1}},
			wantStatus: http.StatusOK,
			want:       map[string]float64{"focusTime": 7, "distractions": 3},
		},
		{
			name:       "negative overwrite values",
			updates:    []map[string]any{{"streak": -1, "productivity": -0.25}},
			wantStatus: http.StatusOK,
			want:       map[string]float64{"streak": -1, "productivity": -0.25},
		},
		{
			name:       "fractional minutes",
			updates:    []map[string]any{{"focusTime": 1.5}},
			wantStatus: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			router := newTestRouter(t, &mockRAG{})
			var w *httptest.ResponseRecorder
			for _, u := range tt.updates {
				w = httptest.NewRecorder()
				router.ServeHTTP(w, newTestRequest(http.MethodPost, "/api/v1/stats/u1", u))
			}
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.want == nil {
				return
			}
			stats, _ := decodeMap(t, w)["stats"].(map[string]any)
			for field, v := range tt.want {
				if stats[field] != v {
					t.Errorf("%s = %v, want %v", field, stats[field], v)
				}
			}
		})
	}
}
