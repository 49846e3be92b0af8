package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benvon/mentra/internal/models"
)

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }

func TestMemoryReflectionRepository_ListNewestFirst(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewMemoryReflectionRepository()

	for i := 0; i < 5; i++ {
		r := &models.Reflection{UserID: "u1", Website: "youtube.com", Reflection: fmt.Sprintf("r%d", i)}
		if err := repo.Create(ctx, r); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if r.ID == "" {
			t.Fatal("Create() did not assign an id")
		}
	}

	got, err := repo.ListByUser(ctx, "u1", 3)
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("ListByUser() len = %d, want 3", len(got))
	}
	for i, want := range []string{"r4", "r3", "r2"} {
		if got[i].Reflection != want {
			t.Errorf("ListByUser()[%d] = %q, want %q", i, got[i].Reflection, want)
		}
	}

	empty, err := repo.ListByUser(ctx, "nobody", 50)
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("ListByUser(unknown) = %v, want empty non-nil slice", empty)
	}
}

func TestMemoryReflectionRepository_ListByTimestamp(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewMemoryReflectionRepository()
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	// Mirrored offline reflections arrive out of order.
	for _, r := range []struct {
		text string
		at   time.Duration
	}{
		{"late", 3 * time.Hour},
		{"early", 0},
		{"middle", time.Hour},
		{"middle again", time.Hour},
	} {
		if err := repo.Create(ctx, &models.Reflection{
			UserID: "u1", Website: "reddit.com", Reflection: r.text, Timestamp: base.Add(r.at),
		}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	got, err := repo.ListByUser(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	want := []string{"late", "middle again", "middle", "early"}
	if len(got) != len(want) {
		t.Fatalf("ListByUser() len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Reflection != want[i] {
			t.Errorf("ListByUser()[%d] = %q, want %q", i, got[i].Reflection, want[i])
		}
	}
}

func TestMemoryReflectionRepository_Update(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewMemoryReflectionRepository()
	r := &models.Reflection{UserID: "u1", Website: "reddit.com", Reflection: "bored"}
	if err := repo.Create(ctx, r); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	tests := []struct {
		name    string
		userID  string
		id      string
		upd     models.UpdateReflectionRequest
		wantErr error
	}{
		{"unknown user", "u2", r.ID, models.UpdateReflectionRequest{Helpful: boolPtr(true)}, ErrUserNotFound},
		{"unknown reflection", "u1", "missing", models.UpdateReflectionRequest{Helpful: boolPtr(true)}, ErrReflectionNotFound},
		{"helpful only", "u1", r.ID, models.UpdateReflectionRequest{Helpful: boolPtr(true)}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repo.Update(ctx, tt.userID, tt.id, tt.upd)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Update() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	updated, err := repo.Update(ctx, "u1", r.ID, models.UpdateReflectionRequest{Proceeded: boolPtr(true)})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Helpful == nil || !*updated.Helpful {
		t.Error("Update() lost the helpful flag set earlier")
	}
	if !updated.Proceeded {
		t.Error("Update() did not set proceeded")
	}
}

func TestMemoryStatsRepository_ApplySemantics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewMemoryStatsRepository()

	if _, err := repo.Get(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() on empty repo error = %v, want ErrNotFound", err)
	}

	if _, err := repo.Apply(ctx, "u1", models.StatsUpdate{FocusTime: intPtr(10), Streak: intPtr(3)}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	s, err := repo.Apply(ctx, "u1", models.StatsUpdate{FocusTime: intPtr(5), Distractions: intPtr(1), Streak: intPtr(1)})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if s.FocusTime != 15 || s.Distractions != 1 {
		t.Errorf("counters = (%d, %d), want (15, 1)", s.FocusTime, s.Distractions)
	}
	if s.Streak != 1 {
		t.Errorf("streak = %d, want overwritten value 1", s.Streak)
	}
}

func TestMemoryStatsRepository_ConcurrentIncrements(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewMemoryStatsRepository()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = repo.Apply(ctx, "u1", models.StatsUpdate{Distractions: intPtr(1)})
		}()
	}
	wg.Wait()

	s, err := repo.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if s.Distractions != 50 {
		t.Errorf("distractions = %d, want 50", s.Distractions)
	}
}

func TestMemoryStatsRepository_Rollover(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewMemoryStatsRepository()

	if _, err := repo.Rollover(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Rollover(unknown) error = %v, want ErrNotFound", err)
	}

	_, _ = repo.Apply(ctx, "active", models.StatsUpdate{FocusTime: intPtr(30), Streak: intPtr(2)})
	_, _ = repo.Apply(ctx, "idle", models.StatsUpdate{Streak: intPtr(4)})

	tests := []struct {
		userID     string
		wantStreak int
	}{
		{"active", 3},
		{"idle", 4},
	}
	for _, tt := range tests {
		s, err := repo.Rollover(ctx, tt.userID)
		if err != nil {
			t.Fatalf("Rollover(%s) error = %v", tt.userID, err)
		}
		if s.Streak != tt.wantStreak {
			t.Errorf("Rollover(%s) streak = %d, want %d", tt.userID, s.Streak, tt.wantStreak)
		}
		if s.FocusTime != 0 || s.Distractions != 0 {
			t.Errorf("Rollover(%s) did not reset counters: %+v", tt.userID, s)
		}
	}

	ids, err := repo.ListUserIDs(ctx)
	if err != nil {
		t.Fatalf("ListUserIDs() error = %v", err)
	}
	if len(ids) != 2 || ids[0] != "active" || ids[1] != "idle" {
		t.Errorf("ListUserIDs() = %v", ids)
	}
}

func TestMemorySettingsRepository_MergesOverDefaults(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewMemorySettingsRepository()

	if _, err := repo.Get(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}

	model := "gpt-4o-mini"
	s, err := repo.Update(ctx, "u1", models.SettingsUpdate{AIModel: &model})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if s.AIModel != model {
		t.Errorf("AIModel = %q, want %q", s.AIModel, model)
	}
	if len(s.BlockedSites) != len(models.DefaultBlockedSites()) {
		t.Errorf("BlockedSites = %v, want defaults kept", s.BlockedSites)
	}
	if !s.Notifications {
		t.Error("Notifications default should stay true")
	}

	sites := []string{"news.ycombinator.com"}
	if _, err := repo.Update(ctx, "u1", models.SettingsUpdate{BlockedSites: &sites}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	sites[0] = "mutated.example"

	got, err := repo.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.AIModel != model {
		t.Errorf("second update dropped AIModel: %q", got.AIModel)
	}
	if len(got.BlockedSites) != 1 || got.BlockedSites[0] != "news.ycombinator.com" {
		t.Errorf("BlockedSites = %v", got.BlockedSites)
	}
}

func TestMemoryOriginRepository(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewMemoryOriginRepository()
	ext := "chrome-extension://" + strings.Repeat("abcdefghijklmnop", 2)

	tests := []struct {
		raw      string
		want     string
		wantKind models.OriginKind
		wantErr  bool
	}{
		{raw: "https://Dashboard.Mentra.app/", want: "https://dashboard.mentra.app", wantKind: models.OriginDashboard},
		{raw: " " + ext + " ", want: ext, wantKind: models.OriginExtension},
		{raw: "http://localhost:3000", want: "http://localhost:3000", wantKind: models.OriginDashboard},
		{raw: "http://mentra.app", wantErr: true},
		{raw: "chrome-extension://short", wantErr: true},
	}
	for _, tt := range tests {
		got, err := repo.Add(ctx, tt.raw)
		if (err != nil) != tt.wantErr {
			t.Fatalf("Add(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
		}
		if err == nil && (got.Origin != tt.want || got.Kind != tt.wantKind) {
			t.Errorf("Add(%q) = %+v, want %s (%s)", tt.raw, got, tt.want, tt.wantKind)
		}
	}

	if _, err := repo.Add(ctx, "https://dashboard.mentra.app"); err != nil {
		t.Fatalf("re-adding an origin: %v", err)
	}
	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	wantOrder := []string{"http://localhost:3000", "https://dashboard.mentra.app", ext}
	if len(list) != len(wantOrder) {
		t.Fatalf("List() = %+v", list)
	}
	for i, o := range list {
		if o.Origin != wantOrder[i] {
			t.Errorf("List()[%d] = %s, want %s", i, o.Origin, wantOrder[i])
		}
	}

	if err := repo.Remove(ctx, "https://DASHBOARD.mentra.app/"); err != nil {
		t.Errorf("Remove() error = %v", err)
	}
	if err := repo.Remove(ctx, "https://dashboard.mentra.app"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Remove() error = %v, want ErrNotFound", err)
	}
}

func TestMemoryRateLimitRepository(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewMemoryRateLimitRepository()

	if rl, err := repo.Get(ctx, models.ScopeAI); rl != nil || err != nil {
		t.Fatalf("Get() = %v, %v; want nil, nil", rl, err)
	}
	if err := repo.Set(ctx, models.ScopeAPI, " "); err == nil {
		t.Error("Set() with empty rate should fail")
	}
	if err := repo.Set(ctx, "admin", "1-S"); err == nil {
		t.Error("Set() with unknown scope should fail")
	}
	if err := repo.Set(ctx, models.ScopeAI, " 20-M "); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := repo.Set(ctx, models.ScopeAPI, "50-S"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	rl, _ := repo.Get(ctx, models.ScopeAI)
	if rl == nil || rl.Rate != "20-M" {
		t.Errorf("ai rate = %+v, want 20-M", rl)
	}
	list, err := repo.List(ctx)
	if err != nil || len(list) != 2 || list[0].Scope != models.ScopeAI || list[1].Scope != models.ScopeAPI {
		t.Errorf("List() = %+v, %v", list, err)
	}
}

func TestParseMigrationVersion(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		want    int
		wantErr bool
	}{
		{"001_initial.sql", 1, false},
		{"002_reflections_timestamp.sql", 2, false},
		{"012_add_index.sql", 12, false},
		{"initial.sql", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseMigrationVersion(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMigrationVersion() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseMigrationVersion() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	t.Parallel()
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("no embedded migrations")
	}
}
