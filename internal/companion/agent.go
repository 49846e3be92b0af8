// Package companion is the on-device side of mentra. It intercepts
// navigations, asks reflection questions for blocked sites, keeps the local
// record store and mirrors activity to the backend API. Every interaction
// goes through a closed set of tagged messages.
package companion

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benvon/mentra/internal/localstore"
	logpkg "github.com/benvon/mentra/internal/logger"
	"github.com/benvon/mentra/internal/models"
	"github.com/benvon/mentra/internal/policy"
	"github.com/benvon/mentra/internal/retrieval"
	"github.com/benvon/mentra/internal/services/ai"
	"github.com/benvon/mentra/internal/validation"
)

// DefaultReflectionLimit is the number of reflections get-reflections
// returns when no limit is given.
const DefaultReflectionLimit = 50

const (
	warmStartPrompt   = "Warm start notification"
	warmStartResponse = "warm_start"
)

// DefaultQuestions are asked until the backend provides its own list.
var DefaultQuestions = []string{
	"What brings you here right now?",
	"Is this intentional, or a drift?",
	"What do you truly need in this moment?",
}

// ErrNoPrompter is returned by show-prompt when the agent has no UI.
var ErrNoPrompter = errors.New("no prompter configured")

// Store is the local record store used by the agent.
type Store interface {
	policy.Store
	retrieval.Source
	SaveReflection(ctx context.Context, r localstore.Reflection) (int64, error)
	ListReflections(ctx context.Context, limit int) ([]localstore.Reflection, error)
	SetHelpful(ctx context.Context, id int64, helpful bool) error
	SetProceeded(ctx context.Context, id int64, proceeded bool) error
	SetRemoteID(ctx context.Context, id int64, remoteID string) error
	SetAIResponse(ctx context.Context, id int64, response string) error
	SaveEmbedding(ctx context.Context, e localstore.Embedding) (int64, error)
	LinkEmbedding(ctx context.Context, embeddingID, reflectionID int64) error
	AddOverride(ctx context.Context, rule localstore.OverrideRule) (int64, error)
	AddToDaily(ctx context.Context, date string, delta localstore.AggregateDelta) error
	GetDaily(ctx context.Context, date string) (localstore.DailyAggregate, error)
}

var _ Store = (*localstore.Store)(nil)

// Backend is the API the agent mirrors to. *apiclient.Client implements it.
type Backend interface {
	CreateReflection(ctx context.Context, req models.CreateReflectionRequest) (*models.Reflection, error)
	UpdateReflection(ctx context.Context, userID, reflectionID string, req models.UpdateReflectionRequest) (*models.Reflection, error)
	UpdateStats(ctx context.Context, userID string, u models.StatsUpdate) (*models.Stats, error)
	GetSettings(ctx context.Context, userID string) (*models.Settings, error)
	UpdateSettings(ctx context.Context, userID string, u models.SettingsUpdate) (*models.Settings, error)
	DefaultBlockedSites(ctx context.Context) ([]string, error)
	RAG(ctx context.Context, req models.RAGRequest) (*models.RAGResponse, error)
	Embed(ctx context.Context, text string) ([]float64, error)
	Prompt(ctx context.Context, id string) (*models.PromptTemplate, error)
}

// Prompter is the user interface the agent talks to.
type Prompter interface {
	// Ask shows the reflection question and waits for an answer.
	Ask(ctx context.Context, req ShowPromptRequest) (ShowPromptResponse, error)
	// Review shows the coaching reply and asks what to do next.
	Review(ctx context.Context, r Review) (ReviewOutcome, error)
	// Notify shows a message without waiting.
	Notify(ctx context.Context, n Notice) error
}

// Config holds the agent's dependencies. Store and Backend are required.
type Config struct {
	Store    Store
	Backend  Backend
	Prompter Prompter
	Secrets  Secrets
	Logger   *zap.Logger
	// Now replaces time.Now; it is also handed to the policy.
	Now func() time.Time
	// Rand picks questions and fallback sentences. nil uses the global source.
	Rand *rand.Rand
	// PolicyOptions are passed to policy.New after the clock option.
	PolicyOptions []policy.Option
}

type handlerFunc func(ctx context.Context, req Request) (Response, error)

// Agent handles messages and navigations. It is safe for concurrent use;
// challenges are shown one at a time.
type Agent struct {
	store     Store
	backend   Backend
	prompter  Prompter
	secrets   Secrets
	logger    *zap.Logger
	now       func() time.Time
	policy    *policy.Policy
	retriever *retrieval.Retriever
	focus     focusTracker
	userID    string
	handlers  map[Kind]handlerFunc

	randMu sync.Mutex
	rng    *rand.Rand

	mu        sync.RWMutex
	questions []string

	challengeMu sync.Mutex
}

// NewAgent loads (or creates) the device user id and blocked list, builds
// the policy and checks that every message kind has a handler.
func NewAgent(ctx context.Context, cfg Config) (*Agent, error) {
	if cfg.Store == nil {
		return nil, errors.New("companion: store is required")
	}
	if cfg.Backend == nil {
		return nil, errors.New("companion: backend is required")
	}
	a := &Agent{
		store:     cfg.Store,
		backend:   cfg.Backend,
		prompter:  cfg.Prompter,
		secrets:   cfg.Secrets,
		logger:    cfg.Logger,
		now:       cfg.Now,
		rng:       cfg.Rand,
		retriever: retrieval.NewRetriever(cfg.Store),
		questions: append([]string(nil), DefaultQuestions...),
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	if a.now == nil {
		a.now = time.Now
	}

	userID, err := a.loadUserID(ctx)
	if err != nil {
		return nil, err
	}
	a.userID = userID

	blocked, err := a.loadBlockedSites(ctx)
	if err != nil {
		return nil, err
	}
	opts := append([]policy.Option{policy.WithClock(a.now)}, cfg.PolicyOptions...)
	a.policy, err = policy.New(ctx, cfg.Store, blocked, a.logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating policy: %w", err)
	}

	a.handlers = a.handlerTable()
	if err := checkHandlers(a.handlers); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Agent) handlerTable() map[Kind]handlerFunc {
	return map[Kind]handlerFunc{
		KindShowPrompt:      handle(a.showPrompt),
		KindSaveReflection:  handle(a.saveReflection),
		KindGetAIResponse:   handle(a.getAIResponse),
		KindUpdateStats:     handle(a.updateStats),
		KindAddOverrideRule: handle(a.addOverrideRule),
		KindSubmitFeedback:  handle(a.submitFeedback),
		KindGetBlockedSites: handle(a.getBlockedSites),
		KindGetUserID:       handle(a.getUserID),
		KindGetReflections:  handle(a.getReflections),
		KindGetStats:        handle(a.getStats),
		KindGetSettings:     handle(a.getSettings),
		KindUpdateSettings:  handle(a.updateSettings),
	}
}

// handle adapts a typed handler to the generic handler signature.
func handle[T Request, R Response](fn func(context.Context, T) (R, error)) handlerFunc {
	return func(ctx context.Context, req Request) (Response, error) {
		typed, ok := req.(T)
		if !ok {
			return nil, fmt.Errorf("handler for %s received %T", req.Kind(), req)
		}
		return fn(ctx, typed)
	}
}

// checkHandlers fails when a kind in Kinds has no handler.
func checkHandlers(handlers map[Kind]handlerFunc) error {
	var missing []string
	for _, k := range Kinds() {
		if handlers[k] == nil {
			missing = append(missing, string(k))
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("no handler for message kinds: %s", strings.Join(missing, ", "))
	}
	return nil
}

// normalizer is implemented by requests that clean their input before
// validation.
type normalizer interface {
	normalized() Request
}

// Send dispatches req to its handler. It satisfies Channel.
func (a *Agent) Send(ctx context.Context, req Request) (Response, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", ErrUnknownKind)
	}
	h, ok := a.handlers[req.Kind()]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, req.Kind())
	}
	if n, ok := req.(normalizer); ok {
		req = n.normalized()
	}
	if err := validation.Validate.Struct(req); err != nil {
		return nil, &ValidationError{Kind: req.Kind(), Err: err}
	}
	resp, err := h(ctx, req)
	if err != nil {
		a.logger.Debug("message_failed",
			zap.String("kind", string(req.Kind())),
			zap.String("error", logpkg.SanitizeError(err)),
		)
		return nil, err
	}
	return resp, nil
}

// ValidationError reports a request that failed field validation.
type ValidationError struct {
	Kind Kind
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s request: %v", e.Kind, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// UserID returns the device's user id.
func (a *Agent) UserID() string {
	return a.userID
}

// Policy exposes the navigation policy.
func (a *Agent) Policy() *policy.Policy {
	return a.policy
}

// Navigate runs the policy for rawURL and, for a challenge, the full
// reflection flow with the prompter.
func (a *Agent) Navigate(ctx context.Context, rawURL string) (NavigateResult, error) {
	res, err := a.policy.Decide(ctx, rawURL)
	if err != nil {
		return NavigateResult{}, err
	}
	now := a.now()
	out := NavigateResult{
		Decision: string(res.Decision),
		Hostname: res.Hostname,
		Count:    res.Count,
		Proceed:  true,
	}

	switch res.Decision {
	case policy.Allow:
		if res.MatchedSite != "" {
			a.flushFocus(ctx, now)
			if res.Override != nil {
				ends := res.Override.ExpiresAt
				out.OverrideEnds = &ends
			}
		} else if res.Hostname != "" {
			a.focus.visitAllowed(now)
		}
		return out, nil
	case policy.AllowWarm:
		a.flushFocus(ctx, now)
		a.recordWarmStart(ctx, rawURL, res.Hostname, now)
		return out, nil
	default:
		a.flushFocus(ctx, now)
		return a.challenge(ctx, rawURL, res, out)
	}
}

func (a *Agent) recordWarmStart(ctx context.Context, rawURL, hostname string, now time.Time) {
	_, err := a.store.SaveReflection(ctx, localstore.Reflection{
		UserID:        a.userID,
		Domain:        hostname,
		Website:       rawURL,
		Prompt:        warmStartPrompt,
		QuickResponse: warmStartResponse,
		Timestamp:     now,
	})
	if err != nil {
		a.logger.Warn("warm_start_record_failed", zap.String("error", logpkg.SanitizeError(err)))
	}
	if a.prompter == nil {
		return
	}
	notice := Notice{Title: "Mentra is active", Message: "We'll help you stay intentional today."}
	if err := a.prompter.Notify(ctx, notice); err != nil {
		a.logger.Warn("notify_failed", zap.String("error", logpkg.SanitizeError(err)))
	}
}

func (a *Agent) challenge(ctx context.Context, rawURL string, res policy.Result, out NavigateResult) (NavigateResult, error) {
	a.challengeMu.Lock()
	defer a.challengeMu.Unlock()

	question := a.pickQuestion()
	resp, promptErr := a.Send(ctx, ShowPromptRequest{
		Website:  rawURL,
		Domain:   res.Hostname,
		Question: question,
		Count:    res.Count,
	})

	one := 1
	if _, err := a.Send(ctx, UpdateStatsRequest{Distractions: &one}); err != nil {
		a.logger.Warn("distraction_update_failed", zap.String("error", logpkg.SanitizeError(err)))
	}

	if promptErr != nil {
		out.Proceed = false
		return out, fmt.Errorf("showing prompt: %w", promptErr)
	}
	answer := resp.(ShowPromptResponse)
	text := answer.Text()
	if answer.Dismissed || text == "" {
		out.Proceed = false
		return out, nil
	}

	aiResp, err := a.Send(ctx, GetAIResponseRequest{Reflection: text, Website: rawURL, Prompt: question})
	if err != nil {
		return out, fmt.Errorf("getting coaching reply: %w", err)
	}
	reply := aiResp.(GetAIResponseResponse)
	out.Suggestion = reply.Response

	saved, err := a.Send(ctx, SaveReflectionRequest{
		Website:       rawURL,
		Prompt:        question,
		QuickResponse: answer.QuickResponse,
		FreeText:      answer.FreeText,
		AIResponse:    out.Suggestion,
	})
	if err != nil {
		return out, fmt.Errorf("saving reflection: %w", err)
	}
	savedResp := saved.(SaveReflectionResponse)
	out.ReflectionID = savedResp.ID
	if reply.EmbeddingID > 0 {
		if err := a.store.LinkEmbedding(ctx, reply.EmbeddingID, savedResp.ID); err != nil {
			a.logger.Warn("embedding_link_failed", zap.String("error", logpkg.SanitizeError(err)))
		}
	}

	outcome, err := a.prompter.Review(ctx, Review{
		Domain:     res.Hostname,
		Question:   question,
		Answer:     text,
		Suggestion: out.Suggestion,
	})
	if err != nil {
		return out, fmt.Errorf("showing coaching reply: %w", err)
	}
	out.Outcome = outcome

	if outcome.Helpful != nil {
		if _, err := a.Send(ctx, SubmitFeedbackRequest{ReflectionID: savedResp.ID, Helpful: *outcome.Helpful}); err != nil {
			a.logger.Warn("feedback_failed", zap.String("error", logpkg.SanitizeError(err)))
		}
	}

	switch outcome.Action {
	case ActionAllow:
		ruleResp, err := a.Send(ctx, AddOverrideRuleRequest{Domain: res.Hostname, Duration: outcome.Override})
		if err != nil {
			return out, fmt.Errorf("adding override: %w", err)
		}
		ends := ruleResp.(AddOverrideRuleResponse).Rule.ExpiresAt
		out.OverrideEnds = &ends
		out.Proceed = true
	case ActionProceed:
		out.Proceed = true
	default:
		out.Proceed = false
	}
	a.recordProceeded(ctx, savedResp, out.Proceed)
	return out, nil
}

func (a *Agent) recordProceeded(ctx context.Context, saved SaveReflectionResponse, proceeded bool) {
	if err := a.store.SetProceeded(ctx, saved.ID, proceeded); err != nil {
		a.logger.Warn("proceeded_record_failed", zap.String("error", logpkg.SanitizeError(err)))
	}
	if saved.RemoteID == "" {
		return
	}
	_, err := a.backend.UpdateReflection(ctx, a.userID, saved.RemoteID, models.UpdateReflectionRequest{Proceeded: &proceeded})
	if err != nil {
		a.logger.Warn("proceeded_mirror_failed", zap.String("error", logpkg.SanitizeError(err)))
	}
}

// flushFocus stops the focus timer and mirrors whole minutes.
func (a *Agent) flushFocus(ctx context.Context, now time.Time) {
	minutes := a.focus.visitBlocked(now)
	if minutes <= 0 {
		return
	}
	if _, err := a.Send(ctx, UpdateStatsRequest{FocusTime: &minutes}); err != nil {
		a.logger.Warn("focus_update_failed", zap.String("error", logpkg.SanitizeError(err)))
	}
}

func (a *Agent) pickQuestion() string {
	a.mu.RLock()
	questions := a.questions
	a.mu.RUnlock()
	if len(questions) == 0 {
		return ai.DefaultQuestion
	}
	return questions[a.intN(len(questions))]
}

func (a *Agent) intN(n int) int {
	a.randMu.Lock()
	defer a.randMu.Unlock()
	if a.rng == nil {
		return rand.IntN(n)
	}
	return a.rng.IntN(n)
}

func (a *Agent) fallback(domain string) string {
	a.randMu.Lock()
	defer a.randMu.Unlock()
	return ai.FallbackResponse(domain, a.rng)
}

// Questions returns the reflection questions currently in use.
func (a *Agent) Questions() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]string(nil), a.questions...)
}

func (a *Agent) setQuestions(q []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.questions = append([]string(nil), q...)
}

func (a *Agent) loadUserID(ctx context.Context) (string, error) {
	var id string
	err := a.store.GetSetting(ctx, localstore.KeyUserID, &id)
	if err == nil && id != "" {
		return id, nil
	}
	if err != nil && !errors.Is(err, localstore.ErrNotFound) {
		return "", fmt.Errorf("loading user id: %w", err)
	}
	id = uuid.NewString()
	if err := a.store.PutSetting(ctx, localstore.KeyUserID, id); err != nil {
		return "", fmt.Errorf("saving user id: %w", err)
	}
	a.logger.Info("user_id_created", zap.String("user_id", logpkg.SanitizeUserID(id)))
	return id, nil
}

func (a *Agent) loadBlockedSites(ctx context.Context) ([]string, error) {
	var sites []string
	err := a.store.GetSetting(ctx, localstore.KeyBlockedSites, &sites)
	switch {
	case errors.Is(err, localstore.ErrNotFound):
		return models.DefaultBlockedSites(), nil
	case err != nil:
		return nil, fmt.Errorf("loading blocked sites: %w", err)
	}
	return sites, nil
}

// domainOf returns the normalized hostname of website, falling back to the
// input itself for values that are not http(s) URLs.
func domainOf(website string) string {
	if host, err := policy.Hostname(website); err == nil && host != "" {
		return host
	}
	return validation.NormalizeSite(website)
}
