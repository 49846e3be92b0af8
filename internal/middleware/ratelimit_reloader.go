package middleware

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ulule/limiter/v3"
	stdlibmw "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"go.uber.org/zap"

	"github.com/benvon/mentra/internal/database"
	"github.com/benvon/mentra/internal/models"
	"github.com/benvon/mentra/internal/request"
)

// RateLimitReloader enforces the stored budget of one scope per client IP and
// reloads it on an interval. Scopes share a store but never a counter.
type RateLimitReloader struct {
	store    limiter.Store
	repo     database.RateLimitRepositoryInterface
	scope    models.RateLimitScope
	log      *zap.Logger
	interval time.Duration

	mu   sync.RWMutex
	mw   *stdlibmw.Middleware
	rate limiter.Rate
}

// NewRateLimitReloader creates a reloader for scope over store.
func NewRateLimitReloader(store limiter.Store, repo database.RateLimitRepositoryInterface, scope models.RateLimitScope, log *zap.Logger, reloadInterval time.Duration) *RateLimitReloader {
	if log == nil {
		log = zap.NewNop()
	}
	return &RateLimitReloader{
		store:    store,
		repo:     repo,
		scope:    scope,
		log:      log.With(zap.String("scope", string(scope))),
		interval: reloadInterval,
	}
}

// Middleware limits requests with the budget loaded last. Requests pass
// through unlimited until the first Load.
func (r *RateLimitReloader) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			r.mu.RLock()
			mw := r.mw
			r.mu.RUnlock()
			if mw == nil {
				next.ServeHTTP(w, req)
				return
			}
			mw.Handler(next).ServeHTTP(w, req)
		})
	}
}

// Start reloads every interval until ctx is cancelled.
func (r *RateLimitReloader) Start(ctx context.Context) {
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

// Rate returns the rate currently enforced.
func (r *RateLimitReloader) Rate() limiter.Rate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rate
}

// Load reads the scope's stored budget, storing the default when none exists.
// An unparsable stored rate falls back to the default.
func (r *RateLimitReloader) Load(ctx context.Context) {
	defaultRate := r.scope.DefaultRate()
	rateStr := defaultRate
	stored, err := r.repo.Get(ctx, r.scope)
	switch {
	case err != nil:
		r.log.Warn("failed_to_load_rate_limit_using_default", zap.Error(err), zap.String("default_rate", defaultRate))
	case stored != nil:
		rateStr = stored.Rate
	default:
		if err := r.repo.Set(ctx, r.scope, defaultRate); err != nil {
			r.log.Error("failed_to_save_default_rate_limit", zap.Error(err), zap.String("default_rate", defaultRate))
		}
	}

	rate, err := limiter.NewRateFromFormatted(rateStr)
	if err != nil {
		r.log.Error("failed_to_parse_rate_limit_using_default",
			zap.Error(err),
			zap.String("rate", rateStr),
			zap.String("default_rate", defaultRate),
		)
		if rate, err = limiter.NewRateFromFormatted(defaultRate); err != nil {
			r.log.Error("failed_to_parse_default_rate_limit", zap.Error(err))
			return
		}
	}

	instance := limiter.New(r.store, rate)
	mw := stdlibmw.NewMiddleware(instance, stdlibmw.WithKeyGetter(r.key))

	r.mu.Lock()
	r.mw = mw
	r.rate = rate
	r.mu.Unlock()
}

func (r *RateLimitReloader) key(req *http.Request) string {
	return fmt.Sprintf("%s:%s", r.scope, request.ClientIP(req))
}
