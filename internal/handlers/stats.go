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
)

// StatsHandler serves the stats routes.
type StatsHandler struct {
	repo   database.StatsRepositoryInterface
	logger *zap.Logger
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(repo database.StatsRepositoryInterface, log *zap.Logger) *StatsHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &StatsHandler{repo: repo, logger: log}
}

// RegisterRoutes registers stats routes on a router prefixed with /stats.
func (h *StatsHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/{userId}", h.GetStats).Methods(http.MethodGet)
	r.HandleFunc("/{userId}", h.UpdateStats).Methods(http.MethodPost)
}

// GetStats returns the stored stats, or zeros for an unknown user.
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, mux.Vars(r)["userId"])
	if !ok {
		return
	}

	stats, err := h.repo.Get(r.Context(), userID)
	if errors.Is(err, database.ErrNotFound) {
		respondJSON(w, http.StatusOK, models.DefaultStats(time.Now().UTC()))
		return
	}
	if err != nil {
		h.logger.Error("stats_get_failed",
			zap.String("user_id", logger.SanitizeUserID(userID)),
			zap.String("error", logger.SanitizeError(err)),
		)
		respondJSONError(w, http.StatusInternalServerError, "Failed to retrieve stats")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// UpdateStats adds focusTime and distractions and overwrites streak and
// productivity when present.
func (h *StatsHandler) UpdateStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, mux.Vars(r)["userId"])
	if !ok {
		return
	}

	var req models.StatsUpdate
	if !decodeBody(w, r, &req) {
		return
	}
	if !validateBody(w, req) {
		return
	}

	stats, err := h.repo.Apply(r.Context(), userID, req)
	if err != nil {
		h.logger.Error("stats_update_failed",
			zap.String("user_id", logger.SanitizeUserID(userID)),
			zap.String("error", logger.SanitizeError(err)),
		)
		respondJSONError(w, http.StatusInternalServerError, "Failed to update stats")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "stats": stats})
}
