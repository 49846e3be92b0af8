package companion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/benvon/mentra/internal/localstore"
	logpkg "github.com/benvon/mentra/internal/logger"
	"github.com/benvon/mentra/internal/models"
	"github.com/benvon/mentra/internal/policy"
	"github.com/benvon/mentra/internal/retrieval"
	"github.com/benvon/mentra/internal/validation"
)

func (r AddOverrideRuleRequest) normalized() Request {
	r.Domain = validation.NormalizeSite(r.Domain)
	return r
}

func (r UpdateSettingsRequest) normalized() Request {
	if r.Settings.BlockedSites == nil {
		return r
	}
	sites := make([]string, 0, len(*r.Settings.BlockedSites))
	seen := make(map[string]bool)
	for _, s := range *r.Settings.BlockedSites {
		s = validation.NormalizeSite(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		sites = append(sites, s)
	}
	r.Settings.BlockedSites = &sites
	return r
}

func (r SaveReflectionRequest) normalized() Request {
	r.FreeText = validation.SanitizeText(r.FreeText)
	r.QuickResponse = validation.SanitizeText(r.QuickResponse)
	return r
}

func (a *Agent) showPrompt(ctx context.Context, req ShowPromptRequest) (ShowPromptResponse, error) {
	if a.prompter == nil {
		return ShowPromptResponse{}, ErrNoPrompter
	}
	return a.prompter.Ask(ctx, req)
}

func (a *Agent) saveReflection(ctx context.Context, req SaveReflectionRequest) (SaveReflectionResponse, error) {
	now := a.now()
	r := localstore.Reflection{
		UserID:        a.userID,
		Domain:        domainOf(req.Website),
		Website:       req.Website,
		Prompt:        req.Prompt,
		QuickResponse: req.QuickResponse,
		FreeText:      req.FreeText,
		AIResponse:    req.AIResponse,
		Timestamp:     now,
	}
	id, err := a.store.SaveReflection(ctx, r)
	if err != nil {
		return SaveReflectionResponse{}, err
	}
	resp := SaveReflectionResponse{ID: id}
	a.addDaily(ctx, now, localstore.AggregateDelta{Reflections: 1})

	text := r.Text()
	if text == "" {
		return resp, nil
	}
	created, err := a.backend.CreateReflection(ctx, models.CreateReflectionRequest{
		UserID:     a.userID,
		Website:    req.Website,
		Reflection: text,
		AIResponse: req.AIResponse,
		Timestamp:  &now,
	})
	if err != nil {
		a.logger.Warn("reflection_mirror_failed",
			zap.Int64("reflection_id", id),
			zap.String("error", logpkg.SanitizeError(err)),
		)
		return resp, nil
	}
	if err := a.store.SetRemoteID(ctx, id, created.ID); err != nil {
		a.logger.Warn("remote_id_record_failed", zap.String("error", logpkg.SanitizeError(err)))
		return resp, nil
	}
	resp.RemoteID = created.ID
	return resp, nil
}

// getAIResponse embeds the reflection, retrieves similar memories, asks the
// backend for a coaching reply and stores the embedding. Any remote failure
// yields a fallback sentence instead of an error.
func (a *Agent) getAIResponse(ctx context.Context, req GetAIResponseRequest) (GetAIResponseResponse, error) {
	domain := domainOf(req.Website)

	vec, err := a.backend.Embed(ctx, req.Reflection)
	if err != nil {
		a.logger.Warn("embed_failed", zap.String("error", logpkg.SanitizeError(err)))
		return GetAIResponseResponse{Response: a.fallback(domain), Fallback: true}, nil
	}
	query := retrieval.ToFloat32(vec)

	var memories []string
	matches, err := a.retriever.FindSimilar(ctx, query, retrieval.DefaultLimit, retrieval.DefaultThreshold)
	if err != nil {
		a.logger.Warn("memory_retrieval_failed", zap.String("error", logpkg.SanitizeError(err)))
	} else {
		memories = retrieval.Memories(matches)
	}

	rag, err := a.backend.RAG(ctx, models.RAGRequest{
		Text:     req.Reflection,
		Question: req.Prompt,
		Memories: memories,
	})
	if err != nil || rag.Suggestion == "" {
		if err == nil {
			err = errors.New("empty suggestion")
		}
		a.logger.Warn("rag_failed", zap.String("error", logpkg.SanitizeError(err)))
		return GetAIResponseResponse{Response: a.fallback(domain), Fallback: true}, nil
	}

	emb := localstore.Embedding{Domain: domain, Vector: query, Timestamp: a.now()}
	if req.ReflectionID > 0 {
		id := req.ReflectionID
		emb.ReflectionID = &id
	}
	embeddingID, err := a.store.SaveEmbedding(ctx, emb)
	if err != nil {
		a.logger.Warn("embedding_save_failed", zap.String("error", logpkg.SanitizeError(err)))
	}
	if req.ReflectionID > 0 {
		if err := a.store.SetAIResponse(ctx, req.ReflectionID, rag.Suggestion); err != nil {
			a.logger.Warn("ai_response_record_failed", zap.String("error", logpkg.SanitizeError(err)))
		}
	}

	a.logger.Debug("coaching_reply_ready",
		zap.String("domain", logpkg.SanitizeDomain(domain)),
		zap.Int("memory_count", len(memories)),
	)
	return GetAIResponseResponse{Response: rag.Suggestion, EmbeddingID: embeddingID}, nil
}

func (a *Agent) updateStats(ctx context.Context, req UpdateStatsRequest) (UpdateStatsResponse, error) {
	now := a.now()
	u := req.statsUpdate()
	resp := UpdateStatsResponse{}

	if u == (models.StatsUpdate{}) {
		// Only the local aggregate changes.
		resp.Stats = a.cachedStats(ctx, now)
		resp.Synced = true
	} else {
		remote, err := a.backend.UpdateStats(ctx, a.userID, u)
		if err != nil {
			a.logger.Warn("stats_mirror_failed", zap.String("error", logpkg.SanitizeError(err)))
			resp.Stats = a.cachedStats(ctx, now).Merge(u, now)
		} else {
			resp.Stats = *remote
			resp.Synced = true
		}
		if err := a.store.PutSetting(ctx, localstore.KeyStats, resp.Stats); err != nil {
			a.logger.Warn("stats_cache_failed", zap.String("error", logpkg.SanitizeError(err)))
		}
	}

	a.addDaily(ctx, now, req.delta())
	return resp, nil
}

func (a *Agent) addOverrideRule(ctx context.Context, req AddOverrideRuleRequest) (AddOverrideRuleResponse, error) {
	now := a.now()
	expires, err := policy.OverrideExpiry(req.Duration, now)
	if err != nil {
		return AddOverrideRuleResponse{}, err
	}
	rule := localstore.OverrideRule{
		Domain:    req.Domain,
		Kind:      req.Duration,
		ExpiresAt: expires,
		CreatedAt: now,
	}
	id, err := a.store.AddOverride(ctx, rule)
	if err != nil {
		return AddOverrideRuleResponse{}, err
	}
	rule.ID = id
	a.logger.Info("override_added",
		zap.String("domain", logpkg.SanitizeDomain(rule.Domain)),
		zap.String("kind", string(rule.Kind)),
		zap.Time("expires_at", rule.ExpiresAt),
	)
	return AddOverrideRuleResponse{Rule: rule}, nil
}

func (a *Agent) submitFeedback(ctx context.Context, req SubmitFeedbackRequest) (SubmitFeedbackResponse, error) {
	r, err := a.store.GetReflection(ctx, req.ReflectionID)
	if err != nil {
		return SubmitFeedbackResponse{}, fmt.Errorf("reflection %d: %w", req.ReflectionID, err)
	}
	if err := a.store.SetHelpful(ctx, req.ReflectionID, req.Helpful); err != nil {
		return SubmitFeedbackResponse{}, err
	}
	if r.RemoteID == "" {
		return SubmitFeedbackResponse{}, nil
	}
	helpful := req.Helpful
	if _, err := a.backend.UpdateReflection(ctx, a.userID, r.RemoteID, models.UpdateReflectionRequest{Helpful: &helpful}); err != nil {
		a.logger.Warn("feedback_mirror_failed", zap.String("error", logpkg.SanitizeError(err)))
		return SubmitFeedbackResponse{}, nil
	}
	return SubmitFeedbackResponse{Synced: true}, nil
}

func (a *Agent) getBlockedSites(context.Context, GetBlockedSitesRequest) (BlockedSitesResponse, error) {
	return BlockedSitesResponse{Sites: a.policy.BlockedSites()}, nil
}

func (a *Agent) getUserID(context.Context, GetUserIDRequest) (UserIDResponse, error) {
	return UserIDResponse{UserID: a.userID}, nil
}

func (a *Agent) getReflections(ctx context.Context, req GetReflectionsRequest) (ReflectionsResponse, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultReflectionLimit
	}
	list, err := a.store.ListReflections(ctx, limit)
	if err != nil {
		return ReflectionsResponse{}, err
	}
	if list == nil {
		list = []localstore.Reflection{}
	}
	return ReflectionsResponse{Reflections: list}, nil
}

func (a *Agent) getStats(ctx context.Context, _ GetStatsRequest) (StatsResponse, error) {
	now := a.now()
	resp := StatsResponse{}
	var stats models.Stats
	switch err := a.store.GetSetting(ctx, localstore.KeyStats, &stats); {
	case err == nil:
		resp.Stats = &stats
	case !errors.Is(err, localstore.ErrNotFound):
		return StatsResponse{}, err
	}
	today, err := a.store.GetDaily(ctx, localstore.DateKey(now))
	if err != nil {
		return StatsResponse{}, err
	}
	resp.Today = today
	return resp, nil
}

func (a *Agent) getSettings(ctx context.Context, _ GetSettingsRequest) (SettingsResponse, error) {
	return SettingsResponse{
		Settings:  a.cachedSettings(ctx, a.now()),
		HasAPIKey: hasAPIKey(a.secrets),
	}, nil
}

// updateSettings stores the merged settings locally, applies a new blocked
// list and pushes the change. The API key goes to the keyring only.
func (a *Agent) updateSettings(ctx context.Context, req UpdateSettingsRequest) (SettingsResponse, error) {
	now := a.now()
	u := req.Settings

	if u.APIKey != nil {
		if a.secrets == nil {
			return SettingsResponse{}, errors.New("no secret store configured for api key")
		}
		var err error
		if *u.APIKey == "" {
			err = a.secrets.DeleteAPIKey()
		} else {
			err = a.secrets.SetAPIKey(*u.APIKey)
		}
		if err != nil {
			return SettingsResponse{}, err
		}
		u.APIKey = nil
	}

	merged := a.cachedSettings(ctx, now).Merge(u, now)
	if err := a.store.PutSetting(ctx, localstore.KeySettings, merged); err != nil {
		return SettingsResponse{}, err
	}
	if u.BlockedSites != nil {
		if err := a.applyBlockedSites(ctx, *u.BlockedSites); err != nil {
			return SettingsResponse{}, err
		}
	}

	if _, err := a.backend.UpdateSettings(ctx, a.userID, u); err != nil {
		a.logger.Warn("settings_push_failed", zap.String("error", logpkg.SanitizeError(err)))
	}
	return SettingsResponse{Settings: merged, HasAPIKey: hasAPIKey(a.secrets)}, nil
}

func (a *Agent) applyBlockedSites(ctx context.Context, sites []string) error {
	if err := a.store.PutSetting(ctx, localstore.KeyBlockedSites, sites); err != nil {
		return err
	}
	a.policy.SetBlockedSites(sites)
	return nil
}

// cachedStats returns the locally cached stats, or zero stats.
func (a *Agent) cachedStats(ctx context.Context, now time.Time) models.Stats {
	var stats models.Stats
	if err := a.store.GetSetting(ctx, localstore.KeyStats, &stats); err != nil {
		if !errors.Is(err, localstore.ErrNotFound) {
			a.logger.Warn("stats_cache_read_failed", zap.String("error", logpkg.SanitizeError(err)))
		}
		return models.DefaultStats(now)
	}
	return stats
}

// cachedSettings returns the locally cached settings, or defaults carrying
// the active blocked list.
func (a *Agent) cachedSettings(ctx context.Context, now time.Time) models.Settings {
	var s models.Settings
	if err := a.store.GetSetting(ctx, localstore.KeySettings, &s); err != nil {
		if !errors.Is(err, localstore.ErrNotFound) {
			a.logger.Warn("settings_cache_read_failed", zap.String("error", logpkg.SanitizeError(err)))
		}
		s = models.DefaultSettings(now)
		s.BlockedSites = a.policy.BlockedSites()
	}
	s.APIKey = nil
	return s
}

func (a *Agent) addDaily(ctx context.Context, now time.Time, d localstore.AggregateDelta) {
	if d.IsZero() {
		return
	}
	if err := a.store.AddToDaily(ctx, localstore.DateKey(now), d); err != nil {
		a.logger.Warn("daily_aggregate_failed", zap.String("error", logpkg.SanitizeError(err)))
	}
}
