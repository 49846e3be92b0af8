package database

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/benvon/mentra/internal/models"
)

// MemoryReflectionRepository keeps reflections in process memory. It backs the
// server when STORAGE_BACKEND=memory and the handler tests.
type MemoryReflectionRepository struct {
	mu     sync.RWMutex
	byUser map[string][]*models.Reflection
	now    func() time.Time
}

// NewMemoryReflectionRepository creates an empty in-memory reflection store.
func NewMemoryReflectionRepository() *MemoryReflectionRepository {
	return &MemoryReflectionRepository{
		byUser: make(map[string][]*models.Reflection),
		now:    time.Now,
	}
}

func (m *MemoryReflectionRepository) Create(_ context.Context, r *models.Reflection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.CreatedAt = m.now().UTC()
	stored := *r
	m.byUser[r.UserID] = append(m.byUser[r.UserID], &stored)
	return nil
}

func (m *MemoryReflectionRepository) ListByUser(_ context.Context, userID string, limit int) ([]*models.Reflection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.byUser[userID]
	// Reverse insertion order breaks ties between equal creation times.
	sorted := make([]*models.Reflection, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		sorted = append(sorted, list[i])
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})

	out := make([]*models.Reflection, 0, min(len(sorted), max(limit, 0)))
	for _, r := range sorted {
		if len(out) == limit {
			break
		}
		c := *r
		out = append(out, &c)
	}
	return out, nil
}

func (m *MemoryReflectionRepository) Update(_ context.Context, userID, id string, u models.UpdateReflectionRequest) (*models.Reflection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list, ok := m.byUser[userID]
	if !ok || len(list) == 0 {
		return nil, ErrUserNotFound
	}
	for _, r := range list {
		if r.ID == id {
			u.Apply(r)
			c := *r
			return &c, nil
		}
	}
	return nil, ErrReflectionNotFound
}

// MemoryStatsRepository keeps stats in process memory.
type MemoryStatsRepository struct {
	mu    sync.Mutex
	stats map[string]models.Stats
	now   func() time.Time
}

// NewMemoryStatsRepository creates an empty in-memory stats store.
func NewMemoryStatsRepository() *MemoryStatsRepository {
	return &MemoryStatsRepository{stats: make(map[string]models.Stats), now: time.Now}
}

func (m *MemoryStatsRepository) Get(_ context.Context, userID string) (*models.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stats[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *MemoryStatsRepository) Apply(_ context.Context, userID string, u models.StatsUpdate) (*models.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()
	s, ok := m.stats[userID]
	if !ok {
		s = models.DefaultStats(now)
	}
	s = s.Merge(u, now)
	m.stats[userID] = s
	return &s, nil
}

func (m *MemoryStatsRepository) Rollover(_ context.Context, userID string) (*models.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stats[userID]
	if !ok {
		return nil, ErrNotFound
	}
	if s.HadActivity() {
		s.Streak++
	}
	s.FocusTime = 0
	s.Distractions = 0
	s.LastUpdated = m.now().UTC()
	m.stats[userID] = s
	return &s, nil
}

func (m *MemoryStatsRepository) ListUserIDs(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.stats))
	for id := range m.stats {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// MemorySettingsRepository keeps settings in process memory.
type MemorySettingsRepository struct {
	mu       sync.Mutex
	settings map[string]models.Settings
	now      func() time.Time
}

// NewMemorySettingsRepository creates an empty in-memory settings store.
func NewMemorySettingsRepository() *MemorySettingsRepository {
	return &MemorySettingsRepository{settings: make(map[string]models.Settings), now: time.Now}
}

func (m *MemorySettingsRepository) Get(_ context.Context, userID string) (*models.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.settings[userID]
	if !ok {
		return nil, ErrNotFound
	}
	c := cloneSettings(s)
	return &c, nil
}

func (m *MemorySettingsRepository) Update(_ context.Context, userID string, u models.SettingsUpdate) (*models.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()
	s, ok := m.settings[userID]
	if !ok {
		s = models.DefaultSettings(now)
	}
	s = s.Merge(u, now)
	m.settings[userID] = s
	c := cloneSettings(s)
	return &c, nil
}

func cloneSettings(s models.Settings) models.Settings {
	s.BlockedSites = append([]string(nil), s.BlockedSites...)
	if s.BlockedSites == nil {
		s.BlockedSites = []string{}
	}
	if s.APIKey != nil {
		k := *s.APIKey
		s.APIKey = &k
	}
	return s
}

// MemoryOriginRepository holds the allowed origins in memory.
type MemoryOriginRepository struct {
	mu      sync.RWMutex
	origins map[string]models.AllowedOrigin
}

// NewMemoryOriginRepository creates an empty in-memory origin store.
func NewMemoryOriginRepository() *MemoryOriginRepository {
	return &MemoryOriginRepository{origins: make(map[string]models.AllowedOrigin)}
}

func (m *MemoryOriginRepository) List(_ context.Context) ([]models.AllowedOrigin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.AllowedOrigin, 0, len(m.origins))
	for _, o := range m.origins {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Origin < out[j].Origin
	})
	return out, nil
}

func (m *MemoryOriginRepository) Add(_ context.Context, raw string) (*models.AllowedOrigin, error) {
	o, err := models.ParseOrigin(raw)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.origins[o.Origin]; ok {
		return &existing, nil
	}
	o.CreatedAt = time.Now().UTC()
	m.origins[o.Origin] = o
	return &o, nil
}

func (m *MemoryOriginRepository) Remove(_ context.Context, origin string) error {
	key := normalizeOrigin(origin)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.origins[key]; !ok {
		return ErrNotFound
	}
	delete(m.origins, key)
	return nil
}

// MemoryRateLimitRepository holds the rate limit budgets in memory.
type MemoryRateLimitRepository struct {
	mu     sync.RWMutex
	limits map[models.RateLimitScope]models.RateLimit
}

// NewMemoryRateLimitRepository creates an empty in-memory rate limit store.
func NewMemoryRateLimitRepository() *MemoryRateLimitRepository {
	return &MemoryRateLimitRepository{limits: make(map[models.RateLimitScope]models.RateLimit)}
}

func (m *MemoryRateLimitRepository) Get(_ context.Context, scope models.RateLimitScope) (*models.RateLimit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rl, ok := m.limits[scope]
	if !ok {
		return nil, nil
	}
	return &rl, nil
}

func (m *MemoryRateLimitRepository) List(_ context.Context) ([]models.RateLimit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.RateLimit, 0, len(m.limits))
	for _, rl := range m.limits {
		out = append(out, rl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Scope < out[j].Scope })
	return out, nil
}

func (m *MemoryRateLimitRepository) Set(_ context.Context, scope models.RateLimitScope, rate string) error {
	rate = strings.TrimSpace(rate)
	if rate == "" {
		return errEmptyRate
	}
	if _, err := models.ParseRateLimitScope(string(scope)); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limits[scope] = models.RateLimit{Scope: scope, Rate: rate, UpdatedAt: time.Now().UTC()}
	return nil
}
