package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/benvon/mentra/internal/database"
	"github.com/benvon/mentra/internal/models"
)

var testExtension = "chrome-extension://" + strings.Repeat("abcdefghijklmnop", 2)

func hitFrom(h http.Handler, ip string) int {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", ip)
	h.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimitReloader_SeedsScopeDefault(t *testing.T) {
	t.Parallel()

	repo := database.NewMemoryRateLimitRepository()
	rl := NewRateLimitReloader(memory.NewStore(), repo, models.ScopeAI, nil, 0)
	rl.Load(context.Background())

	stored, err := repo.Get(context.Background(), models.ScopeAI)
	if err != nil || stored == nil || stored.Rate != models.ScopeAI.DefaultRate() {
		t.Fatalf("default ai rate not seeded: %+v, %v", stored, err)
	}
	if got := rl.Rate().Limit; got != 30 {
		t.Errorf("limit = %d, want 30", got)
	}
}

func TestRateLimitReloader_ScopesCountSeparately(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := database.NewMemoryRateLimitRepository()
	for _, scope := range models.RateLimitScopes {
		if err := repo.Set(ctx, scope, "2-M"); err != nil {
			t.Fatal(err)
		}
	}
	store := memory.NewStore()
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	api := NewRateLimitReloader(store, repo, models.ScopeAPI, nil, 0)
	ai := NewRateLimitReloader(store, repo, models.ScopeAI, nil, 0)
	api.Load(ctx)
	ai.Load(ctx)
	apiHandler := api.Middleware()(ok)
	aiHandler := ai.Middleware()(ok)

	got := []int{
		hitFrom(aiHandler, "203.0.113.7"),
		hitFrom(aiHandler, "203.0.113.7"),
		hitFrom(aiHandler, "203.0.113.7"),
		hitFrom(apiHandler, "203.0.113.7"),
		hitFrom(aiHandler, "198.51.100.1"),
	}
	want := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests, http.StatusOK, http.StatusOK}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("status codes = %v, want %v", got, want)
			break
		}
	}
}

func TestRateLimitReloader_InvalidStoredRate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := database.NewMemoryRateLimitRepository()
	if err := repo.Set(ctx, models.ScopeAPI, "100-H"); err != nil {
		t.Fatal(err)
	}
	rl := NewRateLimitReloader(memory.NewStore(), repo, models.ScopeAPI, nil, 0)

	if got := hitFrom(rl.Middleware()(http.NotFoundHandler()), "203.0.113.7"); got != http.StatusNotFound {
		t.Errorf("status before Load = %d, want pass-through", got)
	}
	rl.Load(ctx)
	if got := rl.Rate().Limit; got != 100 {
		t.Errorf("limit = %d, want 100", got)
	}

	if err := repo.Set(ctx, models.ScopeAPI, "not-a-rate"); err != nil {
		t.Fatal(err)
	}
	rl.Load(ctx)
	if got := rl.Rate().Limit; got != 10 {
		t.Errorf("invalid stored rate should fall back to the api default, got limit %d", got)
	}
}

type failingOrigins struct {
	database.OriginRepositoryInterface
}

func (failingOrigins) List(context.Context) ([]models.AllowedOrigin, error) {
	return nil, errors.New("database down")
}

func preflight(h http.Handler, origin string) string {
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/stats/u1", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Header().Get("Access-Control-Allow-Origin")
}

func TestCORSReloader_SeedsDashboardAndExtension(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := database.NewMemoryOriginRepository()
	c := NewCORSReloader(repo, []string{"https://app.mentra.dev", testExtension, "http://evil.example"}, nil, 0)
	c.Load(ctx)
	h := c.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	stored, err := repo.List(ctx)
	if err != nil || len(stored) != 2 {
		t.Fatalf("seeded origins = %+v, %v; want the two valid ones", stored, err)
	}
	tests := []struct {
		origin string
		want   string
	}{
		{"https://app.mentra.dev", "https://app.mentra.dev"},
		{testExtension, testExtension},
		{"http://evil.example", ""},
		{"chrome-extension://" + strings.Repeat("p", 32), ""},
	}
	for _, tt := range tests {
		if got := preflight(h, tt.origin); got != tt.want {
			t.Errorf("preflight(%s) allow-origin = %q, want %q", tt.origin, got, tt.want)
		}
	}

	if _, err := repo.Add(ctx, "https://beta.mentra.dev"); err != nil {
		t.Fatal(err)
	}
	if err := repo.Remove(ctx, testExtension); err != nil {
		t.Fatal(err)
	}
	c.Load(ctx)
	if got := preflight(h, testExtension); got != "" {
		t.Errorf("removed extension still allowed: %q", got)
	}
	if got := preflight(h, "https://beta.mentra.dev"); got != "https://beta.mentra.dev" {
		t.Errorf("added origin not allowed: %q", got)
	}
	if n := len(c.Origins()); n != 2 {
		t.Errorf("Origins() = %d, want 2", n)
	}
}

func TestCORSReloader_Fallbacks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		repo    database.OriginRepositoryInterface
		seed    []string
		allowed string
	}{
		{"store unreadable serves seed", failingOrigins{}, []string{testExtension}, testExtension},
		{"nothing configured", database.NewMemoryOriginRepository(), nil, DefaultAllowedOrigin},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := NewCORSReloader(tt.repo, tt.seed, nil, 0)
			c.Load(context.Background())
			h := c.Middleware()(http.NotFoundHandler())
			if got := preflight(h, tt.allowed); got != tt.allowed {
				t.Errorf("allow-origin = %q, want %q", got, tt.allowed)
			}
		})
	}
}
