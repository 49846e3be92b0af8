package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/benvon/mentra/internal/database"
	"github.com/benvon/mentra/internal/models"
	"github.com/benvon/mentra/internal/request"
)

// DefaultAllowedOrigin is used when neither the database nor the seed list names an origin.
const DefaultAllowedOrigin = "http://localhost:3000"

// corsMaxAge lets browsers cache a preflight for ten minutes.
const corsMaxAge = 600

// CORSReloader answers CORS for the dashboard and the browser extension from
// the stored allowed origins, reloading them on an interval. An empty store
// is seeded once with the configured origins.
type CORSReloader struct {
	repo     database.OriginRepositoryInterface
	seed     []string
	log      *zap.Logger
	interval time.Duration

	mu      sync.RWMutex
	cors    *cors.Cors
	origins []models.AllowedOrigin
}

// NewCORSReloader creates a reloader that seeds repo with seed when it is empty.
func NewCORSReloader(repo database.OriginRepositoryInterface, seed []string, log *zap.Logger, reloadInterval time.Duration) *CORSReloader {
	if log == nil {
		log = zap.NewNop()
	}
	return &CORSReloader{
		repo:     repo,
		seed:     seed,
		log:      log,
		interval: reloadInterval,
	}
}

// Middleware applies the origins loaded last. Requests pass through untouched
// until the first Load.
func (r *CORSReloader) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			r.mu.RLock()
			c := r.cors
			r.mu.RUnlock()
			if c == nil {
				next.ServeHTTP(w, req)
				return
			}
			c.ServeHTTP(w, req, next.ServeHTTP)
		})
	}
}

// Start reloads every interval until ctx is cancelled.
func (r *CORSReloader) Start(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Load(ctx)
		}
	}
}

// Origins returns the origins currently allowed.
func (r *CORSReloader) Origins() []models.AllowedOrigin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.AllowedOrigin(nil), r.origins...)
}

// Load reads the stored origins, seeding them when none are stored. On a
// read error the seed list is served without touching the store.
func (r *CORSReloader) Load(ctx context.Context) {
	origins, err := r.repo.List(ctx)
	switch {
	case err != nil:
		r.log.Warn("failed_to_load_allowed_origins_using_seed", zap.Error(err))
		origins = r.parsedSeed()
	case len(origins) == 0:
		origins = r.seedStore(ctx)
	}
	if len(origins) == 0 {
		origins = []models.AllowedOrigin{{Origin: DefaultAllowedOrigin, Kind: models.OriginDashboard}}
	}

	allowed := make([]string, 0, len(origins))
	extensions := 0
	for _, o := range origins {
		allowed = append(allowed, o.Origin)
		if o.Kind == models.OriginExtension {
			extensions++
		}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: allowed,
		// The API is keyed by user id in the path; browsers send no cookies.
		AllowCredentials: false,
		MaxAge:           corsMaxAge,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", request.IDHeader},
		ExposedHeaders:   []string{request.IDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
	})

	r.mu.Lock()
	r.cors = c
	r.origins = origins
	r.mu.Unlock()
	r.log.Debug("cors_origins_loaded",
		zap.Int("dashboard_origins", len(origins)-extensions),
		zap.Int("extension_origins", extensions),
	)
}

func (r *CORSReloader) seedStore(ctx context.Context) []models.AllowedOrigin {
	var out []models.AllowedOrigin
	for _, raw := range r.seed {
		o, err := r.repo.Add(ctx, raw)
		if err != nil {
			r.log.Warn("invalid_seed_origin_skipped", zap.String("origin", raw), zap.Error(err))
			continue
		}
		out = append(out, *o)
	}
	if len(out) > 0 {
		r.log.Info("seeded_allowed_origins", zap.Int("count", len(out)))
	}
	return out
}

func (r *CORSReloader) parsedSeed() []models.AllowedOrigin {
	var out []models.AllowedOrigin
	for _, raw := range r.seed {
		if o, err := models.ParseOrigin(raw); err == nil {
			out = append(out, o)
		}
	}
	return out
}
