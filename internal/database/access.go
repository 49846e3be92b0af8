package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benvon/mentra/internal/models"
)

var errEmptyRate = errors.New("rate cannot be empty")

// OriginRepository stores the browser origins CORS lets through.
type OriginRepository struct {
	db *DB
}

// NewOriginRepository creates a new origin repository.
func NewOriginRepository(db *DB) *OriginRepository {
	return &OriginRepository{db: db}
}

// List returns every allowed origin, dashboards first.
func (r *OriginRepository) List(ctx context.Context) ([]models.AllowedOrigin, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT origin, kind, created_at FROM allowed_origins ORDER BY kind, origin
	`)
	if err != nil {
		return nil, fmt.Errorf("list origins: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]models.AllowedOrigin, 0)
	for rows.Next() {
		var o models.AllowedOrigin
		if err := rows.Scan(&o.Origin, &o.Kind, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan origin: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate origins: %w", err)
	}
	return out, nil
}

// Add validates raw and stores it. Adding a stored origin again is a no-op.
func (r *OriginRepository) Add(ctx context.Context, raw string) (*models.AllowedOrigin, error) {
	o, err := models.ParseOrigin(raw)
	if err != nil {
		return nil, err
	}
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO allowed_origins (origin, kind, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (origin) DO UPDATE SET kind = EXCLUDED.kind
		RETURNING created_at
	`, o.Origin, o.Kind, time.Now().UTC()).Scan(&o.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("add origin: %w", err)
	}
	return &o, nil
}

// Remove deletes origin. It returns ErrNotFound when origin is not stored.
func (r *OriginRepository) Remove(ctx context.Context, origin string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM allowed_origins WHERE origin = $1`, normalizeOrigin(origin))
	if err != nil {
		return fmt.Errorf("remove origin: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove origin: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// normalizeOrigin lets callers remove an origin spelled the way they added it.
func normalizeOrigin(origin string) string {
	if o, err := models.ParseOrigin(origin); err == nil {
		return o.Origin
	}
	return strings.TrimSpace(origin)
}

// RateLimitRepository stores the request budget of each rate limit scope.
type RateLimitRepository struct {
	db *DB
}

// NewRateLimitRepository creates a new rate limit repository.
func NewRateLimitRepository(db *DB) *RateLimitRepository {
	return &RateLimitRepository{db: db}
}

// Get returns the stored budget for scope, or nil, nil when none is stored.
func (r *RateLimitRepository) Get(ctx context.Context, scope models.RateLimitScope) (*models.RateLimit, error) {
	rl := &models.RateLimit{}
	err := r.db.QueryRowContext(ctx, `
		SELECT scope, rate, updated_at FROM rate_limits WHERE scope = $1
	`, scope).Scan(&rl.Scope, &rl.Rate, &rl.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get rate limit %s: %w", scope, err)
	}
	return rl, nil
}

// List returns the stored budgets. Scopes without one are absent.
func (r *RateLimitRepository) List(ctx context.Context) ([]models.RateLimit, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT scope, rate, updated_at FROM rate_limits ORDER BY scope`)
	if err != nil {
		return nil, fmt.Errorf("list rate limits: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]models.RateLimit, 0, len(models.RateLimitScopes))
	for rows.Next() {
		var rl models.RateLimit
		if err := rows.Scan(&rl.Scope, &rl.Rate, &rl.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan rate limit: %w", err)
		}
		out = append(out, rl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rate limits: %w", err)
	}
	return out, nil
}

// Set upserts the budget for scope. Rate format: e.g. "10-S", "30-M".
func (r *RateLimitRepository) Set(ctx context.Context, scope models.RateLimitScope, rate string) error {
	rate = strings.TrimSpace(rate)
	if rate == "" {
		return errEmptyRate
	}
	if _, err := models.ParseRateLimitScope(string(scope)); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO rate_limits (scope, rate, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (scope) DO UPDATE SET
			rate = EXCLUDED.rate,
			updated_at = EXCLUDED.updated_at
	`, scope, rate, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set rate limit %s: %w", scope, err)
	}
	return nil
}
