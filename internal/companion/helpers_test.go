package companion

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/benvon/mentra/internal/localstore"
	"github.com/benvon/mentra/internal/models"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

var errBackendDown = errors.New("backend down")

type fakeBackend struct {
	mu sync.Mutex

	vector     []float64
	suggestion string
	settings   *models.Settings
	defaults   []string
	questions  []string
	stats      models.Stats
	nextID     int

	embedErr, ragErr, statsErr, settingsErr, defaultsErr, promptErr, createErr error

	created           []models.CreateReflectionRequest
	reflectionUpdates []models.UpdateReflectionRequest
	statsUpdates      []models.StatsUpdate
	settingsUpdates   []models.SettingsUpdate
	ragRequests       []models.RAGRequest
}

var _ Backend = (*fakeBackend)(nil)

func (f *fakeBackend) CreateReflection(_ context.Context, req models.CreateReflectionRequest) (*models.Reflection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, req)
	f.nextID++
	return &models.Reflection{ID: fmt.Sprintf("remote-%d", f.nextID), UserID: req.UserID, Website: req.Website}, nil
}

func (f *fakeBackend) UpdateReflection(_ context.Context, _, id string, req models.UpdateReflectionRequest) (*models.Reflection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reflectionUpdates = append(f.reflectionUpdates, req)
	return &models.Reflection{ID: id}, nil
}

func (f *fakeBackend) UpdateStats(_ context.Context, _ string, u models.StatsUpdate) (*models.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statsErr != nil {
		return nil, f.statsErr
	}
	f.statsUpdates = append(f.statsUpdates, u)
	f.stats = f.stats.Merge(u, time.Now())
	s := f.stats
	return &s, nil
}

func (f *fakeBackend) GetSettings(context.Context, string) (*models.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.settingsErr != nil {
		return nil, f.settingsErr
	}
	if f.settings == nil {
		s := models.DefaultSettings(time.Now())
		return &s, nil
	}
	s := *f.settings
	return &s, nil
}

func (f *fakeBackend) UpdateSettings(_ context.Context, _ string, u models.SettingsUpdate) (*models.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.settingsErr != nil {
		return nil, f.settingsErr
	}
	f.settingsUpdates = append(f.settingsUpdates, u)
	s := models.DefaultSettings(time.Now()).Merge(u, time.Now())
	return &s, nil
}

func (f *fakeBackend) DefaultBlockedSites(context.Context) ([]string, error) {
	if f.defaultsErr != nil {
		return nil, f.defaultsErr
	}
	return f.defaults, nil
}

func (f *fakeBackend) RAG(_ context.Context, req models.RAGRequest) (*models.RAGResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ragRequests = append(f.ragRequests, req)
	if f.ragErr != nil {
		return nil, f.ragErr
	}
	return &models.RAGResponse{OK: true, Suggestion: f.suggestion}, nil
}

func (f *fakeBackend) Embed(context.Context, string) ([]float64, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return f.vector, nil
}

func (f *fakeBackend) Prompt(_ context.Context, id string) (*models.PromptTemplate, error) {
	if f.promptErr != nil {
		return nil, f.promptErr
	}
	return &models.PromptTemplate{ID: id, Template: "{text}", Questions: f.questions}, nil
}

type fakePrompter struct {
	mu      sync.Mutex
	answer  ShowPromptResponse
	askErr  error
	outcome ReviewOutcome
	asked   []ShowPromptRequest
	reviews []Review
	notices []Notice
}

var _ Prompter = (*fakePrompter)(nil)

func (p *fakePrompter) Ask(_ context.Context, req ShowPromptRequest) (ShowPromptResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.asked = append(p.asked, req)
	return p.answer, p.askErr
}

func (p *fakePrompter) Review(_ context.Context, r Review) (ReviewOutcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reviews = append(p.reviews, r)
	return p.outcome, nil
}

func (p *fakePrompter) Notify(_ context.Context, n Notice) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notices = append(p.notices, n)
	return nil
}

type fakeSecrets struct {
	key string
}

var _ Secrets = (*fakeSecrets)(nil)

func (s *fakeSecrets) APIKey() (string, error) {
	if s.key == "" {
		return "", ErrSecretNotFound
	}
	return s.key, nil
}

func (s *fakeSecrets) SetAPIKey(key string) error {
	s.key = key
	return nil
}

func (s *fakeSecrets) DeleteAPIKey() error {
	s.key = ""
	return nil
}

func openTestStore(t *testing.T) *localstore.Store {
	t.Helper()
	store, err := localstore.Open(":memory:")
	if err != nil {
		t.Fatalf("localstore.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

type testAgent struct {
	*Agent
	store    *localstore.Store
	backend  *fakeBackend
	prompter *fakePrompter
	secrets  *fakeSecrets
	clock    *fakeClock
}

func newTestAgent(t *testing.T, configure ...func(*Config)) *testAgent {
	t.Helper()
	ta := &testAgent{
		store:    openTestStore(t),
		backend:  &fakeBackend{vector: []float64{1, 0, 0}, suggestion: "Take a breath first."},
		prompter: &fakePrompter{},
		secrets:  &fakeSecrets{},
		clock:    newFakeClock(),
	}
	cfg := Config{
		Store:    ta.store,
		Backend:  ta.backend,
		Prompter: ta.prompter,
		Secrets:  ta.secrets,
		Now:      ta.clock.Now,
		Rand:     rand.New(rand.NewPCG(1, 2)),
	}
	for _, fn := range configure {
		fn(&cfg)
	}
	a, err := NewAgent(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewAgent: %v", err)
	}
	ta.Agent = a
	return ta
}

func send[R Response](t *testing.T, ch Channel, req Request) R {
	t.Helper()
	resp, err := ch.Send(context.Background(), req)
	if err != nil {
		t.Fatalf("Send(%s): %v", req.Kind(), err)
	}
	typed, ok := resp.(R)
	if !ok {
		t.Fatalf("Send(%s) returned %T", req.Kind(), resp)
	}
	return typed
}

func intPtr(v int) *int { return &v }

func boolPtr(v bool) *bool { return &v }
