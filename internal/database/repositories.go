package database

import (
	"context"

	"github.com/benvon/mentra/internal/models"
)

// ReflectionRepositoryInterface stores reflections keyed by user id.
type ReflectionRepositoryInterface interface {
	Create(ctx context.Context, r *models.Reflection) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.Reflection, error)
	// Update applies u and returns the updated record. It returns
	// ErrUserNotFound when the user has no reflections and
	// ErrReflectionNotFound when id is unknown for the user.
	Update(ctx context.Context, userID, id string, u models.UpdateReflectionRequest) (*models.Reflection, error)
}

// StatsRepositoryInterface stores per-user focus counters.
type StatsRepositoryInterface interface {
	// Get returns ErrNotFound when the user has no stats yet.
	Get(ctx context.Context, userID string) (*models.Stats, error)
	// Apply merges u into the stored stats atomically, creating them if needed.
	Apply(ctx context.Context, userID string, u models.StatsUpdate) (*models.Stats, error)
	// Rollover closes the user's day: the streak grows when the day had any
	// activity and the day's counters return to zero.
	Rollover(ctx context.Context, userID string) (*models.Stats, error)
	ListUserIDs(ctx context.Context) ([]string, error)
}

// SettingsRepositoryInterface stores per-user settings.
type SettingsRepositoryInterface interface {
	// Get returns ErrNotFound when the user never saved settings.
	Get(ctx context.Context, userID string) (*models.Settings, error)
	// Update merges u over the stored settings (or the defaults) atomically.
	Update(ctx context.Context, userID string, u models.SettingsUpdate) (*models.Settings, error)
}

// OriginRepositoryInterface stores the browser origins allowed by CORS.
type OriginRepositoryInterface interface {
	List(ctx context.Context) ([]models.AllowedOrigin, error)
	// Add validates and stores an origin, returning it normalized.
	Add(ctx context.Context, raw string) (*models.AllowedOrigin, error)
	// Remove returns ErrNotFound when the origin is not stored.
	Remove(ctx context.Context, origin string) error
}

// RateLimitRepositoryInterface stores the request budget of each scope.
type RateLimitRepositoryInterface interface {
	// Get returns nil, nil when no budget is stored for scope.
	Get(ctx context.Context, scope models.RateLimitScope) (*models.RateLimit, error)
	List(ctx context.Context) ([]models.RateLimit, error)
	Set(ctx context.Context, scope models.RateLimitScope, rate string) error
}

// Ensure concrete types implement the interfaces
var (
	_ ReflectionRepositoryInterface = (*ReflectionRepository)(nil)
	_ StatsRepositoryInterface      = (*StatsRepository)(nil)
	_ SettingsRepositoryInterface   = (*SettingsRepository)(nil)
	_ OriginRepositoryInterface     = (*OriginRepository)(nil)
	_ RateLimitRepositoryInterface  = (*RateLimitRepository)(nil)

	_ ReflectionRepositoryInterface = (*MemoryReflectionRepository)(nil)
	_ StatsRepositoryInterface      = (*MemoryStatsRepository)(nil)
	_ SettingsRepositoryInterface   = (*MemorySettingsRepository)(nil)
	_ OriginRepositoryInterface     = (*MemoryOriginRepository)(nil)
	_ RateLimitRepositoryInterface  = (*MemoryRateLimitRepository)(nil)
)
