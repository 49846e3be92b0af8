package policy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benvon/mentra/internal/localstore"
	"github.com/benvon/mentra/internal/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func openTestStore(t *testing.T) *localstore.Store {
	t.Helper()
	s, err := localstore.Open(":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestPolicy(t *testing.T, store Store, clock *fakeClock) *Policy {
	t.Helper()
	p, err := New(context.Background(), store, models.DefaultBlockedSites(), nil, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

func TestHostname(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "https://www.YouTube.com/watch?v=1", want: "youtube.com"},
		{in: "http://old.reddit.com:8080/r/golang", want: "old.reddit.com"},
		{in: "https://wwwx.com", want: "wwwx.com"},
		{in: "chrome://extensions", want: ""},
		{in: "about:blank", want: ""},
		{in: "http://[::1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := Hostname(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Hostname() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Hostname() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecideAllowsUnblockedDomains(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.Local)}
	p := newTestPolicy(t, openTestStore(t), clock)

	for _, u := range []string{"https://go.dev", "https://github.com/golang/go", "file:///tmp/x", "https://example.org"} {
		res, err := p.Decide(context.Background(), u)
		if err != nil {
			t.Fatalf("Decide(%q) error = %v", u, err)
		}
		if res.Decision != Allow {
			t.Errorf("Decide(%q) = %s, want %s", u, res.Decision, Allow)
		}
	}

	state, err := p.WarmState(context.Background())
	if err != nil || state.Count != 0 {
		t.Errorf("unblocked visits changed the counter: %+v, %v", state, err)
	}
}

func TestDecideSubstringMatch(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.Local)}
	p := newTestPolicy(t, openTestStore(t), clock)

	res, err := p.Decide(context.Background(), "https://m.youtube.com/shorts")
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if res.Decision == Allow || res.MatchedSite != "youtube.com" || res.Hostname != "m.youtube.com" {
		t.Errorf("Decide() = %+v", res)
	}
}

func TestDecideWarmStartAndDailyReset(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.Local)}
	store := openTestStore(t)
	p := newTestPolicy(t, store, clock)
	ctx := context.Background()

	want := []Decision{AllowWarm, AllowWarm, Challenge, Challenge}
	for i, w := range want {
		res, err := p.Decide(ctx, "https://reddit.com/r/all")
		if err != nil {
			t.Fatalf("Decide() #%d error = %v", i+1, err)
		}
		if res.Decision != w || res.Count != i+1 {
			t.Errorf("Decide() #%d = %s (count %d), want %s (count %d)", i+1, res.Decision, res.Count, w, i+1)
		}
	}

	clock.Advance(24 * time.Hour)
	res, err := p.Decide(ctx, "https://reddit.com")
	if err != nil {
		t.Fatalf("Decide() after date change error = %v", err)
	}
	if res.Decision != AllowWarm || res.Count != 1 {
		t.Errorf("first decision of new day = %s (count %d), want %s (count 1)", res.Decision, res.Count, AllowWarm)
	}
}

func TestNewResetsStaleWarmState(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()
	if err := store.PutSetting(ctx, localstore.KeyWarmStart, WarmState{Date: "2020-01-01", Count: 9}); err != nil {
		t.Fatalf("PutSetting() error = %v", err)
	}

	clock := &fakeClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.Local)}
	newTestPolicy(t, store, clock)

	var state WarmState
	if err := store.GetSetting(ctx, localstore.KeyWarmStart, &state); err != nil {
		t.Fatalf("GetSetting() error = %v", err)
	}
	want := WarmState{Date: "2026-05-01", Count: 0, WarmActive: true}
	if state != want {
		t.Errorf("warm state after New = %+v, want %+v", state, want)
	}
}

func TestDecideHonorsActiveOverridesOnly(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.Local)}
	store := openTestStore(t)
	p := newTestPolicy(t, store, clock)
	ctx := context.Background()

	expires, err := OverrideExpiry(models.OverrideTenMinutes, clock.Now())
	if err != nil {
		t.Fatalf("OverrideExpiry() error = %v", err)
	}
	if _, err := store.AddOverride(ctx, localstore.OverrideRule{
		Domain: "reddit.com", Kind: models.OverrideTenMinutes, ExpiresAt: expires,
	}); err != nil {
		t.Fatalf("AddOverride() error = %v", err)
	}

	res, err := p.Decide(ctx, "https://www.reddit.com/")
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if res.Decision != Allow || res.Override == nil {
		t.Errorf("Decide() with active override = %+v, want Allow via override", res)
	}

	// The rule is still stored but no longer applies.
	clock.Advance(10 * time.Minute)
	res, err = p.Decide(ctx, "https://www.reddit.com/")
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if res.Decision == Allow {
		t.Errorf("Decide() after expiry = %s, want a non-Allow decision", res.Decision)
	}

	// Overrides match the exact hostname only.
	if _, err := store.AddOverride(ctx, localstore.OverrideRule{
		Domain: "youtube.com", Kind: models.OverrideSession, ExpiresAt: clock.Now().Add(time.Hour),
	}); err != nil {
		t.Fatalf("AddOverride() error = %v", err)
	}
	res, err = p.Decide(ctx, "https://music.youtube.com/")
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if res.Override != nil {
		t.Errorf("override for youtube.com applied to music.youtube.com")
	}
}

func TestSetBlockedSites(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.Local)}
	p := newTestPolicy(t, openTestStore(t), clock)
	p.SetBlockedSites([]string{" News.YCombinator.com ", ""})

	if got := p.BlockedSites(); len(got) != 1 || got[0] != "news.ycombinator.com" {
		t.Errorf("BlockedSites() = %v", got)
	}
	if _, ok := p.MatchBlocked("reddit.com"); ok {
		t.Error("reddit.com should no longer be blocked")
	}
	if site, ok := p.MatchBlocked("news.ycombinator.com"); !ok || site != "news.ycombinator.com" {
		t.Errorf("MatchBlocked() = %q, %v", site, ok)
	}
}

type errStore struct{ Store }

func (errStore) GetSetting(context.Context, string, any) error {
	return errors.New("settings unavailable")
}

func TestNewPropagatesStoreError(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Now()}
	if _, err := New(context.Background(), errStore{}, nil, nil, WithClock(clock.Now)); err == nil {
		t.Error("New() should fail when warm state cannot be read")
	}
}
