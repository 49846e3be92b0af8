package companion

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/benvon/mentra/internal/localstore"
	logpkg "github.com/benvon/mentra/internal/logger"
	"github.com/benvon/mentra/internal/models"
	"github.com/benvon/mentra/internal/services/ai"
)

// Where Sync found the blocked list.
const (
	SyncSourceBackend  = "backend"
	SyncSourceCache    = "cache"
	SyncSourceDefaults = "defaults"
	SyncSourceBuiltin  = "builtin"
)

// SyncResult reports what Sync loaded.
type SyncResult struct {
	Source    string `json:"source"`
	Sites     int    `json:"sites"`
	Questions int    `json:"questions"`
}

// Sync refreshes settings and reflection questions from the backend. When
// the backend has no settings for the user the locally cached blocked list
// is kept; without one the server defaults are used, and without those the
// built-in list.
func (a *Agent) Sync(ctx context.Context) (SyncResult, error) {
	sites, source, err := a.syncBlockedSites(ctx)
	if err != nil {
		return SyncResult{}, err
	}
	if err := a.applyBlockedSites(ctx, sites); err != nil {
		return SyncResult{}, err
	}

	prompt, err := a.backend.Prompt(ctx, ai.DefaultPromptID)
	switch {
	case err != nil:
		a.logger.Warn("prompt_sync_failed", zap.String("error", logpkg.SanitizeError(err)))
	case len(prompt.Questions) > 0:
		a.setQuestions(prompt.Questions)
	}

	res := SyncResult{Source: source, Sites: len(sites), Questions: len(a.Questions())}
	a.logger.Info("settings_synced",
		zap.String("source", res.Source),
		zap.Int("blocked_sites", res.Sites),
		zap.Int("questions", res.Questions),
	)
	return res, nil
}

func (a *Agent) syncBlockedSites(ctx context.Context) ([]string, string, error) {
	settings, err := a.backend.GetSettings(ctx, a.userID)
	if err == nil {
		settings.APIKey = nil
		if err := a.store.PutSetting(ctx, localstore.KeySettings, settings); err != nil {
			return nil, "", err
		}
		return settings.BlockedSites, SyncSourceBackend, nil
	}
	a.logger.Warn("settings_sync_failed", zap.String("error", logpkg.SanitizeError(err)))

	var cached []string
	switch err := a.store.GetSetting(ctx, localstore.KeyBlockedSites, &cached); {
	case err == nil && len(cached) > 0:
		return cached, SyncSourceCache, nil
	case err != nil && !errors.Is(err, localstore.ErrNotFound):
		return nil, "", err
	}

	defaults, err := a.backend.DefaultBlockedSites(ctx)
	if err == nil && len(defaults) > 0 {
		return defaults, SyncSourceDefaults, nil
	}
	if err != nil {
		a.logger.Warn("default_sites_sync_failed", zap.String("error", logpkg.SanitizeError(err)))
	}
	return models.DefaultBlockedSites(), SyncSourceBuiltin, nil
}
