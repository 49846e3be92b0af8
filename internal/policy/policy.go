// Package policy decides whether navigation to a URL is allowed, allowed with
// a gentle warm-start notice, or challenged with a reflection prompt.
package policy

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/benvon/mentra/internal/localstore"
	logpkg "github.com/benvon/mentra/internal/logger"
	"github.com/benvon/mentra/internal/models"
	"go.uber.org/zap"
)

// Decision is the outcome of a navigation check.
type Decision string

const (
	Allow     Decision = "ALLOW"
	AllowWarm Decision = "ALLOW_WARM"
	Challenge Decision = "CHALLENGE"
)

// WarmStartThreshold is the number of blocked visits per day answered with a
// notice instead of a challenge.
const WarmStartThreshold = 2

// Result describes a decision.
type Result struct {
	Decision    Decision `json:"decision"`
	Hostname    string   `json:"hostname"`
	MatchedSite string   `json:"matchedSite,omitempty"`
	// Count is the day's blocked-visit count after this decision.
	Count int `json:"count"`
	// Override is set when an active override rule allowed the visit.
	Override *localstore.OverrideRule `json:"-"`
}

// WarmState is the per-day warm-start counter, persisted in the settings store.
type WarmState struct {
	Date       string `json:"date"`
	Count      int    `json:"count"`
	WarmActive bool   `json:"warmActive"`
}

// Store is the subset of the local store used by the policy.
type Store interface {
	ActiveOverride(ctx context.Context, domain string, now time.Time) (localstore.OverrideRule, bool, error)
	GetSetting(ctx context.Context, key string, dst any) error
	PutSetting(ctx context.Context, key string, value any) error
}

var _ Store = (*localstore.Store)(nil)

// Policy evaluates navigations. It is safe for concurrent use; decisions are
// serialized so the warm-start counter never loses an increment.
type Policy struct {
	store     Store
	log       *zap.Logger
	now       func() time.Time
	threshold int

	mu      sync.Mutex
	blocked []string
}

// Option configures a Policy.
type Option func(*Policy)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Policy) { p.now = now }
}

// WithWarmStartThreshold overrides WarmStartThreshold.
func WithWarmStartThreshold(n int) Option {
	return func(p *Policy) { p.threshold = n }
}

// New creates a Policy over blocked and resets a stale warm-start counter.
func New(ctx context.Context, store Store, blocked []string, log *zap.Logger, opts ...Option) (*Policy, error) {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Policy{
		store:     store,
		log:       log,
		now:       time.Now,
		threshold: WarmStartThreshold,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.SetBlockedSites(blocked)

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.loadWarmState(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// SetBlockedSites replaces the blocked list. Empty entries are ignored.
func (p *Policy) SetBlockedSites(sites []string) {
	clean := make([]string, 0, len(sites))
	for _, s := range sites {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			clean = append(clean, s)
		}
	}
	p.mu.Lock()
	p.blocked = clean
	p.mu.Unlock()
}

// BlockedSites returns a copy of the blocked list.
func (p *Policy) BlockedSites() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.blocked))
	copy(out, p.blocked)
	return out
}

// Hostname extracts the lower-cased host of rawURL without port or a
// leading "www.". Non-web URLs yield "".
func Hostname(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parsing url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", nil
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www."), nil
}

// MatchBlocked returns the first blocked site contained in hostname.
func (p *Policy) MatchBlocked(hostname string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.matchLocked(hostname)
}

func (p *Policy) matchLocked(hostname string) (string, bool) {
	if hostname == "" {
		return "", false
	}
	for _, site := range p.blocked {
		if strings.Contains(hostname, site) {
			return site, true
		}
	}
	return "", false
}

// Decide evaluates a navigation to rawURL.
func (p *Policy) Decide(ctx context.Context, rawURL string) (Result, error) {
	hostname, err := Hostname(rawURL)
	if err != nil {
		return Result{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	result := Result{Decision: Allow, Hostname: hostname}

	site, blocked := p.matchLocked(hostname)
	if !blocked {
		return result, nil
	}
	result.MatchedSite = site

	rule, ok, err := p.store.ActiveOverride(ctx, hostname, now)
	if err != nil {
		return Result{}, fmt.Errorf("checking override rules: %w", err)
	}
	if ok {
		result.Override = &rule
		return result, nil
	}

	state, err := p.loadWarmState(ctx)
	if err != nil {
		return Result{}, err
	}
	state.Count++
	if state.WarmActive && state.Count <= p.threshold {
		result.Decision = AllowWarm
	} else {
		state.WarmActive = false
		result.Decision = Challenge
	}
	result.Count = state.Count

	if err := p.store.PutSetting(ctx, localstore.KeyWarmStart, state); err != nil {
		return Result{}, fmt.Errorf("saving warm-start state: %w", err)
	}

	p.log.Debug("navigation_decision",
		zap.String("domain", logpkg.SanitizeDomain(hostname)),
		zap.String("decision", string(result.Decision)),
		zap.Int("count", state.Count),
	)
	return result, nil
}

// WarmState returns the current day's counter, resetting it when the date changed.
func (p *Policy) WarmState(ctx context.Context) (WarmState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loadWarmState(ctx)
}

// loadWarmState must be called with mu held.
func (p *Policy) loadWarmState(ctx context.Context) (WarmState, error) {
	today := localstore.DateKey(p.now())

	var state WarmState
	err := p.store.GetSetting(ctx, localstore.KeyWarmStart, &state)
	if err != nil && !errors.Is(err, localstore.ErrNotFound) {
		return WarmState{}, fmt.Errorf("loading warm-start state: %w", err)
	}
	if err == nil && state.Date == today {
		return state, nil
	}

	state = WarmState{Date: today, Count: 0, WarmActive: true}
	if err := p.store.PutSetting(ctx, localstore.KeyWarmStart, state); err != nil {
		return WarmState{}, fmt.Errorf("resetting warm-start state: %w", err)
	}
	p.log.Info("warm_start_reset", zap.String("date", today))
	return state, nil
}

// OverrideExpiry returns when an override of kind granted at now expires.
func OverrideExpiry(kind models.OverrideKind, now time.Time) (time.Time, error) {
	expires, ok := kind.ExpiresAt(now)
	if !ok {
		return time.Time{}, fmt.Errorf("unknown override kind %q", kind)
	}
	return expires, nil
}
