package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/benvon/mentra/internal/database"
	"github.com/benvon/mentra/internal/logger"
	"github.com/benvon/mentra/internal/models"
	"github.com/benvon/mentra/internal/validation"
)

// SettingsHandler serves the settings routes.
type SettingsHandler struct {
	repo   database.SettingsRepositoryInterface
	logger *zap.Logger
}

// NewSettingsHandler creates a new settings handler.
func NewSettingsHandler(repo database.SettingsRepositoryInterface, log *zap.Logger) *SettingsHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &SettingsHandler{repo: repo, logger: log}
}

// RegisterRoutes registers settings routes on a router prefixed with /settings.
// The defaults route is registered first so it is never read as a user id.
func (h *SettingsHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/defaults/blocked-sites", h.DefaultBlockedSites).Methods(http.MethodGet)
	r.HandleFunc("/{userId}", h.GetSettings).Methods(http.MethodGet)
	r.HandleFunc("/{userId}", h.UpdateSettings).Methods(http.MethodPut)
}

// GetSettings returns the stored settings, or the defaults for an unknown user.
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, mux.Vars(r)["userId"])
	if !ok {
		return
	}

	settings, err := h.repo.Get(r.Context(), userID)
	if errors.Is(err, database.ErrNotFound) {
		respondJSON(w, http.StatusOK, models.DefaultSettings(time.Now().UTC()))
		return
	}
	if err != nil {
		h.logger.Error("settings_get_failed",
			zap.String("user_id", logger.SanitizeUserID(userID)),
			zap.String("error", logger.SanitizeError(err)),
		)
		respondJSONError(w, http.StatusInternalServerError, "Failed to retrieve settings")
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

// UpdateSettings merges the provided fields over the stored settings.
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, mux.Vars(r)["userId"])
	if !ok {
		return
	}

	var req models.SettingsUpdate
	if !decodeBody(w, r, &req) {
		return
	}
	if req.BlockedSites != nil {
		sites := make([]string, 0, len(*req.BlockedSites))
		for _, s := range *req.BlockedSites {
			if n := validation.NormalizeSite(s); n != "" {
				sites = append(sites, n)
			}
		}
		req.BlockedSites = &sites
	}
	if !validateBody(w, req) {
		return
	}

	settings, err := h.repo.Update(r.Context(), userID, req)
	if err != nil {
		h.logger.Error("settings_update_failed",
			zap.String("user_id", logger.SanitizeUserID(userID)),
			zap.String("error", logger.SanitizeError(err)),
		)
		respondJSONError(w, http.StatusInternalServerError, "Failed to update settings")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "settings": settings})
}

// DefaultBlockedSites returns the built-in distraction list.
func (h *SettingsHandler) DefaultBlockedSites(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "sites": models.DefaultBlockedSites()})
}
